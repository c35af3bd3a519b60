// Package config loads, normalizes, and validates Mockingbird configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// OPENAI_API_KEY. The Config type centralizes every knob the daemon and CLI
// need: directories, provider chains, dubbing defaults, and workflow timing.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, clamped numeric ranges, and clear validation errors.
package config
