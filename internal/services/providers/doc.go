// Package providers constructs the concrete service providers the runtime
// config enables and assembles per-job fallback chains over them. It is the
// single place where provider names in a config snapshot meet provider
// implementations.
package providers
