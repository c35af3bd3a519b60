// Package daemon coordinates the long-running dubbing process.
//
// It wires configuration, queue storage, the workflow manager, and the
// control API into a single lifecycle with flock-based locking to prevent
// multiple instances. On startup it resets jobs orphaned by a previous
// crash and starts a background sweeper for stale scratch directories.
//
// Keep orchestration logic here: individual pipeline stages live in their
// respective packages while the daemon focuses on startup, shutdown, and
// high level coordination.
package daemon
