package stage

import (
	"context"

	"mockingbird/internal/queue"
)

// Handler describes the contract the workflow manager needs from each
// pipeline stage. Prepare runs before the heartbeat loop and persists derived
// fields; Execute performs the stage work and leaves the job ready to commit;
// HealthCheck reports readiness for the status surfaces.
type Handler interface {
	Prepare(context.Context, *queue.Job) error
	Execute(context.Context, *queue.Job) error
	HealthCheck(context.Context) Health
}
