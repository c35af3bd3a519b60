package workflow

import (
	"slices"

	"log/slog"

	"mockingbird/internal/queue"
	"mockingbird/internal/stage"
)

// StageSet bundles the concrete handlers the manager orchestrates.
type StageSet struct {
	Validator   stage.Handler
	Transcriber stage.Handler
	Translator  stage.Handler
	Synthesizer stage.Handler
	Mixer       stage.Handler
}

type pipelineStage struct {
	name             string
	handler          stage.Handler
	startStatus      queue.Status
	processingStatus queue.Status
	commits          queue.Stage
}

type laneState struct {
	lane               queue.ProcessingLane
	name               string
	stages             []pipelineStage
	statusOrder        []queue.Status
	stageByStart       map[queue.Status]pipelineStage
	processingStatuses []queue.Status
	logger             *slog.Logger
}

// finalize derives the lookup structures from the stage list. Call it after
// every change to l.stages.
func (l *laneState) finalize() {
	if l == nil {
		return
	}
	l.stageByStart = make(map[queue.Status]pipelineStage, len(l.stages))
	l.statusOrder = make([]queue.Status, 0, len(l.stages))
	l.processingStatuses = nil
	for _, stg := range l.stages {
		l.stageByStart[stg.startStatus] = stg
		l.statusOrder = append(l.statusOrder, stg.startStatus)
		if stg.processingStatus == "" || slices.Contains(l.processingStatuses, stg.processingStatus) {
			continue
		}
		l.processingStatuses = append(l.processingStatuses, stg.processingStatus)
	}
}

func (l *laneState) stageForStatus(status queue.Status) (pipelineStage, bool) {
	if l == nil {
		return pipelineStage{}, false
	}
	stg, ok := l.stageByStart[status]
	return stg, ok
}
