// Package mixdown assembles the final dubbed tracks. It decodes the source
// audio once, runs the synchronization engine per target language, and writes
// one WAV plus a per-segment placement report for each.
package mixdown
