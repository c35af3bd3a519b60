// Package adapter wraps capability providers in fallback chains.
//
// Each chain tries its providers in configured order. Transient failures
// (outages, throttling) retry against the same provider with exponential
// backoff before advancing; rejected input aborts the chain immediately.
// Exhausting every provider yields a ChainError carrying the full attempt
// history for the job's error record.
package adapter
