// Package httpapi serves the local control API for the dubbing daemon.
//
// The server binds to the configured loopback address and exposes job
// submission, inspection, and lifecycle transitions (pause, resume, abort,
// retry, remove) plus a daemon status view combining queue statistics,
// stage health, hardware capacity, and the configured provider chains.
// Every mutation goes through the queue store so the CLI and the workflow
// manager observe the same rows.
package httpapi
