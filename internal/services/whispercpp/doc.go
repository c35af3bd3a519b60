// Package whispercpp shells out to a whisper-cli binary for offline
// transcription. It is the local fallback behind the hosted transcriber:
// model files live under a configured directory keyed by tier, and the JSON
// output (millisecond offsets) is mapped onto capability segments.
package whispercpp
