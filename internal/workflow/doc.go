// Package workflow advances queue jobs through the configured dubbing
// stages.
//
// The Manager polls the queue, reclaims stale work via heartbeats, and feeds
// jobs into registered stage handlers (validator, transcriber, translator,
// synthesizer, mixer) while capturing progress and failure metadata. Each
// committed stage writes a checkpoint in the same transaction as the job row,
// so a restart resumes every job from the last stage boundary instead of the
// beginning.
//
// The workflow runs two independent lanes: network (validation, translation)
// and compute (transcription, synthesis, mixdown). Each lane polls for jobs
// matching its statuses and processes them independently, so job B can
// translate while job A holds the GPU for synthesis.
//
// Transient stage failures requeue the job at the start of its stage until
// the retry budget in its config snapshot runs out; validation and
// configuration failures park it as failed immediately.
package workflow
