// Package logging configures slog-based structured logging for the daemon
// and CLI. It provides a JSON handler for machine consumption, a pretty
// console handler for interactive sessions, and helpers for carrying job
// metadata from context into log attributes.
package logging
