// Package validation implements the first pipeline stage: it verifies the
// source media decodes, target languages are recognized, the config snapshot
// fits the detected hardware, and every capability has a reachable provider,
// before any transcription compute is spent.
package validation
