package resource

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"mockingbird/internal/config"
	"mockingbird/internal/logging"
	"mockingbird/internal/queue"
	"mockingbird/internal/services"
)

// Bounds for resource-dependent processing settings. Values outside these
// ranges are rejected outright rather than downgraded.
const (
	MinDuckingGainDB = -30.0
	MaxDuckingGainDB = 0.0
	MinStretch       = 1.0
	MaxStretch       = 1.5
	MinWorkers       = 1
	MaxWorkers       = 16
	MinSampleRate    = 8000
	MaxSampleRate    = 192000
)

// Guard validates processing settings against detected hardware and owns the
// singleton GPU lease. One Guard is constructed per process and handed to the
// stages that need it; nothing in this package holds ambient global state.
type Guard struct {
	hw     Hardware
	lease  *Lease
	logger *slog.Logger
}

// NewGuard builds a Guard around a hardware snapshot.
func NewGuard(hw Hardware, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Guard{
		hw:     hw,
		lease:  NewLease(),
		logger: logging.NewComponentLogger(logger, "resource-guard"),
	}
}

// Hardware returns the snapshot this guard was built from.
func (g *Guard) Hardware() Hardware {
	hw := g.hw
	hw.GPUs = slices.Clone(g.hw.GPUs)
	return hw
}

// Lease exposes the GPU lease for status reporting.
func (g *Guard) Lease() *Lease {
	return g.lease
}

// Violation describes one processing-config field that cannot run on any
// hardware. Field uses the config key name so operators can find it.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Violations is the complete set found in one validation pass.
type Violations []Violation

// Err collapses the set into a single configuration error, or nil when the
// set is empty.
func (v Violations) Err() error {
	if len(v) == 0 {
		return nil
	}
	parts := make([]string, len(v))
	for i, violation := range v {
		parts[i] = fmt.Sprintf("%s: %s", violation.Field, violation.Message)
	}
	return services.Wrap(services.ErrConfiguration, "", "validate processing config", strings.Join(parts, "; "), nil)
}

// ValidateProcessingConfig checks every resource-dependent field and returns
// all violations at once. A tier too heavy for the detected hardware is not a
// violation; Downgrade absorbs that case.
func (g *Guard) ValidateProcessingConfig(pc queue.ProcessingConfig) Violations {
	var violations Violations
	add := func(field, format string, args ...any) {
		violations = append(violations, Violation{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if pc.ModelSize != "auto" && !config.KnownModelSize(pc.ModelSize) {
		add("model_size", "unknown model %q (known: auto, %s)", pc.ModelSize, strings.Join(config.ModelSizes, ", "))
	}
	switch pc.Device {
	case "auto", "cpu", "cuda":
	default:
		add("device", "unknown device %q (known: auto, cpu, cuda)", pc.Device)
	}
	if pc.TargetSampleRate < MinSampleRate || pc.TargetSampleRate > MaxSampleRate {
		add("target_sample_rate", "%d Hz outside [%d, %d]", pc.TargetSampleRate, MinSampleRate, MaxSampleRate)
	}
	if pc.TargetChannels < 1 || pc.TargetChannels > 8 {
		add("target_channels", "%d outside [1, 8]", pc.TargetChannels)
	}
	if pc.DuckingGainDB < MinDuckingGainDB || pc.DuckingGainDB > MaxDuckingGainDB {
		add("ducking_gain_db", "%.1f dB outside [%.1f, %.1f]", pc.DuckingGainDB, MinDuckingGainDB, MaxDuckingGainDB)
	}
	if pc.DuckRampMs < 0 {
		add("duck_ramp_ms", "must not be negative, got %d", pc.DuckRampMs)
	}
	if pc.CrossfadeMs < 0 {
		add("crossfade_ms", "must not be negative, got %d", pc.CrossfadeMs)
	}
	if pc.StretchCeiling < MinStretch || pc.StretchCeiling > MaxStretch {
		add("stretch_ceiling", "%.2f outside [%.1f, %.1f]", pc.StretchCeiling, MinStretch, MaxStretch)
	}
	if pc.MaxRetries < 0 {
		add("max_retries", "must not be negative, got %d", pc.MaxRetries)
	}
	if pc.Workers < MinWorkers || pc.Workers > MaxWorkers {
		add("workers", "%d outside [%d, %d]", pc.Workers, MinWorkers, MaxWorkers)
	}
	if pc.FailureTolerancePercent < 0 || pc.FailureTolerancePercent > 100 {
		add("failure_tolerance_percent", "%d outside [0, 100]", pc.FailureTolerancePercent)
	}
	for field, chain := range map[string][]string{
		"transcribe_chain": pc.TranscribeChain,
		"translate_chain":  pc.TranslateChain,
		"synthesize_chain": pc.SynthesizeChain,
	} {
		if len(chain) == 0 {
			add(field, "must list at least one provider")
		}
	}

	slices.SortFunc(violations, func(a, b Violation) int {
		return strings.Compare(a.Field, b.Field)
	})
	return violations
}

// Adjustment records one non-destructive downgrade applied to a processing
// config before stage execution. The workflow stores these as warnings in the
// job's error history.
type Adjustment struct {
	Field  string `json:"field"`
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}

func (a Adjustment) String() string {
	return fmt.Sprintf("%s downgraded from %s to %s: %s", a.Field, a.From, a.To, a.Reason)
}

// Downgrade resolves automatic settings and lowers any that exceed the
// detected hardware. The input is never mutated; the job keeps its original
// snapshot while stages execute against the returned copy. Each true
// downgrade (not an "auto" resolution) produces an Adjustment.
func (g *Guard) Downgrade(pc queue.ProcessingConfig) (queue.ProcessingConfig, []Adjustment) {
	resolved := pc
	resolved.TranscribeChain = slices.Clone(pc.TranscribeChain)
	resolved.TranslateChain = slices.Clone(pc.TranslateChain)
	resolved.SynthesizeChain = slices.Clone(pc.SynthesizeChain)

	var adjustments []Adjustment

	switch {
	case resolved.Device == "auto":
		resolved.Device = g.hw.Device()
	case resolved.Device == "cuda" && !g.hw.HasGPU():
		adjustments = append(adjustments, Adjustment{
			Field:  "device",
			From:   "cuda",
			To:     "cpu",
			Reason: "no GPU-class accelerator detected",
		})
		resolved.Device = "cpu"
	}

	ceiling := g.RecommendedModel()
	switch {
	case resolved.ModelSize == "auto":
		resolved.ModelSize = ceiling
	case resolved.Device == "cuda":
		// The GPU raises the ceiling to whatever tier was configured.
	case config.ModelTierIndex(resolved.ModelSize) > config.ModelTierIndex(ceiling):
		adjustments = append(adjustments, Adjustment{
			Field:  "model_size",
			From:   resolved.ModelSize,
			To:     ceiling,
			Reason: fmt.Sprintf("%.1f GiB system memory supports at most %s on cpu", g.hw.TotalMemoryGiB(), ceiling),
		})
		resolved.ModelSize = ceiling
	}

	for _, adj := range adjustments {
		g.logger.Warn("processing config downgraded",
			logging.String("field", adj.Field),
			logging.String("from", adj.From),
			logging.String("to", adj.To),
			logging.String("reason", adj.Reason),
		)
	}
	return resolved, adjustments
}

// RecommendedModel returns the transcription tier the detected memory
// supports.
func (g *Guard) RecommendedModel() string {
	return RecommendedModelForMemory(g.hw.TotalMemoryGiB())
}

// RecommendedModelForMemory maps total system memory to the heaviest
// transcription model tier that runs comfortably on CPU.
func RecommendedModelForMemory(gib float64) string {
	switch {
	case gib < 4:
		return "tiny"
	case gib < 8:
		return "base"
	case gib < 16:
		return "small"
	default:
		return "medium"
	}
}

// Summary is the hardware view exposed through the status API and CLI.
type Summary struct {
	Device           string  `json:"device"`
	GPUs             []GPU   `json:"gpus,omitempty"`
	TotalMemoryGiB   float64 `json:"total_memory_gib"`
	FreeMemoryGiB    float64 `json:"free_memory_gib"`
	CPUCount         int     `json:"cpu_count"`
	RecommendedModel string  `json:"recommended_model"`
	GPULeaseHolder   string  `json:"gpu_lease_holder,omitempty"`
	GPULeaseWaiting  int     `json:"gpu_lease_waiting,omitempty"`
}

// Summary reports the detected hardware and current lease occupancy.
func (g *Guard) Summary() Summary {
	return Summary{
		Device:           g.hw.Device(),
		GPUs:             slices.Clone(g.hw.GPUs),
		TotalMemoryGiB:   g.hw.TotalMemoryGiB(),
		FreeMemoryGiB:    g.hw.FreeMemoryGiB(),
		CPUCount:         g.hw.CPUCount,
		RecommendedModel: g.RecommendedModel(),
		GPULeaseHolder:   g.lease.Holder(),
		GPULeaseWaiting:  g.lease.Waiting(),
	}
}
