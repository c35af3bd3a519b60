// Package mixer composites synthesized speech over the original soundtrack.
// It fits each utterance into its source time slot with bounded time
// compression, ducks the background under speech with ramped gain envelopes,
// and emits a track whose duration and format match the configured output
// exactly.
package mixer
