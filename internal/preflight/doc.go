// Package preflight provides readiness checks for the directories, engine
// binaries, and hosted API the dubbing pipeline depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll once at startup and logs every failure before
//     the queue starts moving, so a missing directory or dead API key is
//     visible immediately instead of surfacing as the first job's failure.
//   - The CLI "mockingbird config validate" command uses the individual
//     check functions to display readiness without starting the daemon.
//
// Engine binary checks are gated by the engine enable flags; disabled
// engines are skipped.
package preflight
