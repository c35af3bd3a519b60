// Package main hosts the mockingbird CLI entrypoint and command graph.
//
// The cobra-based command tree translates terminal invocations into control
// API calls against the daemon, queue maintenance operations, and
// configuration scaffolding. When no daemon answers, queue commands fall
// back to direct store access so inspection and repair work offline. It
// centralizes configuration resolution and API address discovery so
// subcommands can focus on user experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
