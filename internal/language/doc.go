// Package language provides unified language code normalization and mapping.
//
// All language-related conversions (BCP 47 parsing, display names, spelled
// out name lookup) are consolidated here so transcription, translation, and
// synthesis agree on a single canonical code per language. It also carries
// the pacing heuristics used to predict how translated speech fits source
// time slots.
package language
