package workflow

import (
	"mockingbird/internal/queue"
	"mockingbird/internal/stage"
)

// ConfigureStages registers the concrete stage handlers the workflow will
// run. The network lane carries the API-heavy stages (validation probes
// providers, translation calls them per segment); the compute lane carries
// the stages that contend for local hardware (transcription, synthesis,
// mixing). A nil handler leaves its stage out, so partial sets work in tests.
func (m *Manager) ConfigureStages(set StageSet) {
	network := &laneState{lane: queue.LaneNetwork, name: string(queue.LaneNetwork)}
	compute := &laneState{lane: queue.LaneCompute, name: string(queue.LaneCompute)}

	if set.Validator != nil {
		network.stages = append(network.stages, newPipelineStage("validation", set.Validator, queue.StatusPending, queue.StageValidated))
	}
	if set.Translator != nil {
		network.stages = append(network.stages, newPipelineStage("translation", set.Translator, queue.StatusTranscribed, queue.StageTranslated))
	}
	if set.Transcriber != nil {
		compute.stages = append(compute.stages, newPipelineStage("transcription", set.Transcriber, queue.StatusValidated, queue.StageTranscribed))
	}
	if set.Synthesizer != nil {
		compute.stages = append(compute.stages, newPipelineStage("synthesis", set.Synthesizer, queue.StatusTranslated, queue.StageSynthesized))
	}
	if set.Mixer != nil {
		compute.stages = append(compute.stages, newPipelineStage("mixdown", set.Mixer, queue.StatusSynthesized, queue.StageMixed))
	}

	lanes := make(map[queue.ProcessingLane]*laneState)
	order := make([]queue.ProcessingLane, 0, 2)
	if len(network.stages) > 0 {
		network.finalize()
		lanes[network.lane] = network
		order = append(order, network.lane)
	}
	if len(compute.stages) > 0 {
		compute.finalize()
		lanes[compute.lane] = compute
		order = append(order, compute.lane)
	}

	m.mu.Lock()
	m.lanes = lanes
	m.laneOrder = order
	m.mu.Unlock()
}

func newPipelineStage(name string, handler stage.Handler, start queue.Status, commits queue.Stage) pipelineStage {
	processing, _ := queue.ProcessingStatusFor(start)
	return pipelineStage{
		name:             name,
		handler:          handler,
		startStatus:      start,
		processingStatus: processing,
		commits:          commits,
	}
}
