package stage

import (
	"mockingbird/internal/queue"
	"mockingbird/internal/services"
)

// Segments decodes and validates the job's segment list. On failure it
// returns a services.ErrValidation suitable for stage Execute methods.
func Segments(job *queue.Job) ([]queue.Segment, error) {
	segments, err := job.Segments()
	if err != nil {
		return nil, services.Wrap(
			services.ErrValidation, string(job.Stage), "decode segments",
			"Segment list missing or invalid; rerun transcription", err)
	}
	if err := queue.ValidateSegments(segments); err != nil {
		return nil, services.Wrap(
			services.ErrValidation, string(job.Stage), "validate segments",
			"Segment list inconsistent; rerun transcription", err)
	}
	return segments, nil
}

// Snapshot decodes the processing config the job captured at creation. On
// failure it returns a services.ErrConfiguration; a job without a snapshot
// cannot run any stage.
func Snapshot(job *queue.Job) (queue.ProcessingConfig, error) {
	pc, err := job.Config()
	if err != nil {
		return queue.ProcessingConfig{}, services.Wrap(
			services.ErrConfiguration, string(job.Stage), "decode config snapshot",
			"Processing config snapshot missing or invalid", err)
	}
	return pc, nil
}
