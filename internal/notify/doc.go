// Package notify pushes terminal job events to an ntfy topic. The daemon
// runs unattended, so a finished or failed dub is surfaced on the operator's
// devices instead of waiting to be noticed in logs. Without a configured
// topic every publish is a no-op.
package notify
