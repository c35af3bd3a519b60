package queue

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"mockingbird/internal/config"
)

// Stage names the last pipeline stage a job has committed. It only moves
// forward; operator retry and resume re-enter the pipeline after it without
// rewinding it.
type Stage string

const (
	StageCreated     Stage = "created"
	StageValidated   Stage = "validated"
	StageTranscribed Stage = "transcribed"
	StageTranslated  Stage = "translated"
	StageSynthesized Stage = "synthesized"
	StageMixed       Stage = "mixed"
)

var allStages = []Stage{
	StageCreated,
	StageValidated,
	StageTranscribed,
	StageTranslated,
	StageSynthesized,
	StageMixed,
}

var stageSet = func() map[Stage]struct{} {
	set := make(map[Stage]struct{}, len(allStages))
	for _, stage := range allStages {
		set[stage] = struct{}{}
	}
	return set
}()

// Status is the queue dispatch state of a job. Waiting statuses pair with an
// in-flight processing status per stage; completed, failed, and paused sit
// outside the dispatch loop.
type Status string

const (
	StatusPending      Status = "pending"
	StatusValidating   Status = "validating"
	StatusValidated    Status = "validated"
	StatusTranscribing Status = "transcribing"
	StatusTranscribed  Status = "transcribed"
	StatusTranslating  Status = "translating"
	StatusTranslated   Status = "translated"
	StatusSynthesizing Status = "synthesizing"
	StatusSynthesized  Status = "synthesized"
	StatusMixing       Status = "mixing"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusPaused       Status = "paused"
)

// UserAbortReason is the error message set when an operator aborts a job.
const UserAbortReason = "Aborted by operator"

// DaemonStopReason is the progress message set when in-flight work is
// returned to the queue because the daemon shut down.
const DaemonStopReason = "Daemon stopped"

var allStatuses = []Status{
	StatusPending,
	StatusValidating,
	StatusValidated,
	StatusTranscribing,
	StatusTranscribed,
	StatusTranslating,
	StatusTranslated,
	StatusSynthesizing,
	StatusSynthesized,
	StatusMixing,
	StatusCompleted,
	StatusFailed,
	StatusPaused,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusValidating:   {},
	StatusTranscribing: {},
	StatusTranslating:  {},
	StatusSynthesizing: {},
	StatusMixing:       {},
}

type statusTransition struct {
	from Status
	to   Status
}

// stageRollbackTransitions returns in-flight work to the waiting status of
// its stage, used when heartbeats expire or the daemon restarts mid-stage.
var stageRollbackTransitions = []statusTransition{
	{from: StatusValidating, to: StatusPending},
	{from: StatusTranscribing, to: StatusValidated},
	{from: StatusTranslating, to: StatusTranscribed},
	{from: StatusSynthesizing, to: StatusTranslated},
	{from: StatusMixing, to: StatusSynthesized},
}

// processingTransitions moves a waiting job into its in-flight status when a
// lane claims it.
var processingTransitions = map[Status]Status{
	StatusPending:     StatusValidating,
	StatusValidated:   StatusTranscribing,
	StatusTranscribed: StatusTranslating,
	StatusTranslated:  StatusSynthesizing,
	StatusSynthesized: StatusMixing,
}

// stageResumeStatuses maps a committed stage to the dispatch status the job
// occupies afterwards. Retry and resume consult the same table so a job never
// replays a committed stage.
var stageResumeStatuses = map[Stage]Status{
	StageCreated:     StatusPending,
	StageValidated:   StatusValidated,
	StageTranscribed: StatusTranscribed,
	StageTranslated:  StatusTranslated,
	StageSynthesized: StatusSynthesized,
	StageMixed:       StatusCompleted,
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	return slices.Clone(allStatuses)
}

// AllStages returns the ordered list of pipeline stages.
func AllStages() []Stage {
	return slices.Clone(allStages)
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// ParseStage converts a string into a known Stage.
func ParseStage(value string) (Stage, bool) {
	normalized := Stage(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := stageSet[normalized]
	return normalized, ok
}

// NextStatus returns the dispatch status a job holds once the given stage has
// committed.
func NextStatus(stage Stage) Status {
	if status, ok := stageResumeStatuses[stage]; ok {
		return status
	}
	return StatusPending
}

// ProcessingStatusFor returns the in-flight status a lane assigns when it
// claims a job waiting at the given status.
func ProcessingStatusFor(waiting Status) (Status, bool) {
	status, ok := processingTransitions[waiting]
	return status, ok
}

// IsProcessingStatus reports whether a status reflects an in-flight stage.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// IsTerminalStatus reports whether a status ends the current attempt.
func IsTerminalStatus(status Status) bool {
	return status == StatusCompleted || status == StatusFailed
}

// ProcessingLane partitions dispatch statuses between the two workflow
// goroutines so network-bound stages never wait behind GPU work.
type ProcessingLane string

const (
	LaneNetwork ProcessingLane = "network"
	LaneCompute ProcessingLane = "compute"
)

var laneDispatch = map[ProcessingLane][]Status{
	LaneNetwork: {StatusPending, StatusTranscribed},
	LaneCompute: {StatusValidated, StatusTranslated, StatusSynthesized},
}

// DispatchStatuses returns the waiting statuses a lane polls for.
func DispatchStatuses(lane ProcessingLane) []Status {
	return slices.Clone(laneDispatch[lane])
}

// LaneForStatus maps any status to the lane that owns its stage.
func LaneForStatus(status Status) ProcessingLane {
	switch status {
	case StatusPending, StatusValidating, StatusTranscribed, StatusTranslating:
		return LaneNetwork
	case StatusValidated, StatusTranscribing, StatusTranslated, StatusSynthesizing, StatusSynthesized, StatusMixing:
		return LaneCompute
	default:
		return LaneNetwork
	}
}

// SynthesizedAudio references one segment's generated speech for one target
// language. The audio itself lives as a scratch WAV on disk.
type SynthesizedAudio struct {
	Path            string  `json:"path"`
	SampleRate      int     `json:"sample_rate"`
	Channels        int     `json:"channels"`
	DurationSeconds float64 `json:"duration_seconds"`
	Provider        string  `json:"provider,omitempty"`
}

// Segment is one detected utterance. Times are seconds from the start of the
// source media. Translations and synthesis results are keyed by target
// language tag.
type Segment struct {
	Index        int                         `json:"index"`
	Start        float64                     `json:"start"`
	End          float64                     `json:"end"`
	SpeakerID    string                      `json:"speaker_id,omitempty"`
	SourceText   string                      `json:"source_text,omitempty"`
	Translations map[string]string           `json:"translations,omitempty"`
	Synthesis    map[string]SynthesizedAudio `json:"synthesis,omitempty"`
}

// Duration returns the segment slot length in seconds.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// ValidateSegments checks the ordering rules detected segments must satisfy:
// positive extent, ascending start times, and no overlap. Overlap is never
// silently resolved.
func ValidateSegments(segments []Segment) error {
	for i, seg := range segments {
		if seg.Start < 0 {
			return fmt.Errorf("segment %d starts at %.3fs before zero", i, seg.Start)
		}
		if seg.End <= seg.Start {
			return fmt.Errorf("segment %d ends at %.3fs, not after its start %.3fs", i, seg.End, seg.Start)
		}
		if i > 0 && seg.Start < segments[i-1].End {
			return fmt.Errorf("segment %d starts at %.3fs inside segment %d which ends at %.3fs", i, seg.Start, i-1, segments[i-1].End)
		}
	}
	return nil
}

// ProcessingConfig is the immutable per-job snapshot of dubbing settings. It
// is taken once at job creation; later config edits only affect new jobs. The
// resource guard may derive a downgraded copy for stage execution while the
// job keeps this original for the record.
type ProcessingConfig struct {
	ModelSize               string   `json:"model_size"`
	Device                  string   `json:"device"`
	TargetSampleRate        int      `json:"target_sample_rate"`
	TargetChannels          int      `json:"target_channels"`
	DuckingGainDB           float64  `json:"ducking_gain_db"`
	DuckRampMs              int      `json:"duck_ramp_ms"`
	CrossfadeMs             int      `json:"crossfade_ms"`
	StretchCeiling          float64  `json:"stretch_ceiling"`
	MaxRetries              int      `json:"max_retries"`
	Workers                 int      `json:"workers"`
	FailureTolerancePercent int      `json:"failure_tolerance_percent"`
	AbortOnSyncError        bool     `json:"abort_on_sync_error"`
	TranscribeChain         []string `json:"transcribe_chain"`
	TranslateChain          []string `json:"translate_chain"`
	SynthesizeChain         []string `json:"synthesize_chain"`
}

// NewProcessingConfig snapshots the dubbing section of the runtime config.
func NewProcessingConfig(cfg *config.Config) ProcessingConfig {
	d := cfg.Dubbing
	return ProcessingConfig{
		ModelSize:               d.ModelSize,
		Device:                  d.Device,
		TargetSampleRate:        d.TargetSampleRate,
		TargetChannels:          d.TargetChannels,
		DuckingGainDB:           d.DuckingGainDB,
		DuckRampMs:              d.DuckRampMs,
		CrossfadeMs:             d.CrossfadeMs,
		StretchCeiling:          d.StretchCeiling,
		MaxRetries:              d.MaxRetries,
		Workers:                 d.Workers,
		FailureTolerancePercent: d.FailureTolerancePercent,
		AbortOnSyncError:        d.AbortOnSyncError,
		TranscribeChain:         slices.Clone(d.TranscribeChain),
		TranslateChain:          slices.Clone(d.TranslateChain),
		SynthesizeChain:         slices.Clone(d.SynthesizeChain),
	}
}

// JobError is one recorded failure or warning in a job's ordered history.
type JobError struct {
	ID           int64     `json:"id"`
	JobID        string    `json:"job_id"`
	Stage        string    `json:"stage"`
	SegmentIndex *int      `json:"segment_index,omitempty"`
	Severity     string    `json:"severity"`
	Kind         string    `json:"kind"`
	Message      string    `json:"message"`
	CreatedAt    time.Time `json:"created_at"`
}

// Severity values recorded in the error history.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalJobs        int
	Error            string
}

// HealthSummary describes aggregated queue counts per key lifecycle states.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Paused     int
	Failed     int
	Completed  int
}

// Job is a dubbing job persisted in SQLite. Segment state, the config
// snapshot, output paths, and mix reports are stored as JSON columns the way
// the accessors below read and write them; WarningCount is derived from the
// error history and never written back.
type Job struct {
	ID               string
	SourcePath       string
	Title            string
	TargetLanguages  []string
	DetectedLanguage string
	Status           Status
	Stage            Stage
	SegmentsJSON     string
	ConfigJSON       string
	OutputFilesJSON  string
	MixReportsJSON   string
	ErrorMessage     string
	WarningCount     int
	ProgressStage    string
	ProgressPercent  float64
	ProgressMessage  string
	RetryCount       int
	CreatedAt        time.Time
	UpdatedAt        time.Time
	LastHeartbeat    *time.Time
}

// IsProcessing returns true when the job is mid-stage.
func (j Job) IsProcessing() bool {
	return IsProcessingStatus(j.Status)
}

// CompletedWithWarnings distinguishes a clean completion from one that
// absorbed segment failures, truncations, or downgrades along the way.
func (j Job) CompletedWithWarnings() bool {
	return j.Status == StatusCompleted && j.WarningCount > 0
}

// Segments decodes the job's segment list. An empty column yields nil.
func (j *Job) Segments() ([]Segment, error) {
	if strings.TrimSpace(j.SegmentsJSON) == "" {
		return nil, nil
	}
	var segments []Segment
	if err := json.Unmarshal([]byte(j.SegmentsJSON), &segments); err != nil {
		return nil, fmt.Errorf("decode segments: %w", err)
	}
	return segments, nil
}

// SetSegments replaces the job's segment list.
func (j *Job) SetSegments(segments []Segment) error {
	if segments == nil {
		j.SegmentsJSON = ""
		return nil
	}
	data, err := json.Marshal(segments)
	if err != nil {
		return fmt.Errorf("encode segments: %w", err)
	}
	j.SegmentsJSON = string(data)
	return nil
}

// Config decodes the job's processing config snapshot.
func (j *Job) Config() (ProcessingConfig, error) {
	var cfg ProcessingConfig
	if strings.TrimSpace(j.ConfigJSON) == "" {
		return cfg, fmt.Errorf("job %s has no config snapshot", j.ID)
	}
	if err := json.Unmarshal([]byte(j.ConfigJSON), &cfg); err != nil {
		return cfg, fmt.Errorf("decode config snapshot: %w", err)
	}
	return cfg, nil
}

// SetConfig replaces the job's processing config snapshot.
func (j *Job) SetConfig(cfg ProcessingConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config snapshot: %w", err)
	}
	j.ConfigJSON = string(data)
	return nil
}

// OutputFiles decodes the language to mixed-output-path map.
func (j *Job) OutputFiles() (map[string]string, error) {
	if strings.TrimSpace(j.OutputFilesJSON) == "" {
		return nil, nil
	}
	files := make(map[string]string)
	if err := json.Unmarshal([]byte(j.OutputFilesJSON), &files); err != nil {
		return nil, fmt.Errorf("decode output files: %w", err)
	}
	return files, nil
}

// SetOutputFiles replaces the language to mixed-output-path map.
func (j *Job) SetOutputFiles(files map[string]string) error {
	if len(files) == 0 {
		j.OutputFilesJSON = ""
		return nil
	}
	data, err := json.Marshal(files)
	if err != nil {
		return fmt.Errorf("encode output files: %w", err)
	}
	j.OutputFilesJSON = string(data)
	return nil
}

// InitProgress resets progress fields as a stage begins. An existing progress
// stage is preserved so resumed jobs keep their stage label.
func (j *Job) InitProgress(stage, message string) {
	if j.ProgressStage == "" {
		j.ProgressStage = stage
	}
	j.ProgressMessage = message
	j.ProgressPercent = 0
	j.ErrorMessage = ""
}

// SetProgress updates all three progress fields together.
func (j *Job) SetProgress(stage, message string, percent float64) {
	j.ProgressStage = stage
	j.ProgressMessage = message
	j.ProgressPercent = percent
}

// SetProgressComplete sets progress to 100% with the given stage and message.
func (j *Job) SetProgressComplete(stage, message string) {
	j.SetProgress(stage, message, 100)
}

// SetFailed marks the job failed with the given message, clearing the
// heartbeat so the reclaimer ignores it.
func (j *Job) SetFailed(message string) {
	j.Status = StatusFailed
	j.ErrorMessage = message
	j.ProgressStage = "Failed"
	j.ProgressPercent = 0
	j.ProgressMessage = message
	j.LastHeartbeat = nil
}
