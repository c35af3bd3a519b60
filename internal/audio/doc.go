// Package audio provides the PCM primitives the dubbing pipeline is built
// on: a normalized multi-channel track type, WAV decode and encode, sample
// rate and channel conversion, time compression, and per-job scratch space
// for intermediate artifacts.
package audio
