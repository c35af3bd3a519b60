package mixer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"mockingbird/internal/audio"
	"mockingbird/internal/logging"
	"mockingbird/internal/services"
)

// maxPeak is the ceiling the final composite is normalized against so
// quantization to 16-bit output never clips.
const maxPeak = 0.999

// Params holds the mix policy for one job. Values come from the job's
// processing config and do not change mid-mix.
type Params struct {
	SampleRate       int
	Channels         int
	DuckingGainDB    float64
	DuckRamp         time.Duration
	Crossfade        time.Duration
	StretchCeiling   float64
	AbortOnSyncError bool
}

func (p Params) withDefaults() Params {
	if p.SampleRate <= 0 {
		p.SampleRate = 48000
	}
	if p.Channels <= 0 {
		p.Channels = 2
	}
	if p.StretchCeiling < 1 {
		p.StretchCeiling = 1
	}
	if p.DuckRamp < 0 {
		p.DuckRamp = 0
	}
	if p.Crossfade < 0 {
		p.Crossfade = 0
	}
	return p
}

// Clip is one synthesized utterance scheduled against its source slot.
type Clip struct {
	SegmentID string
	Index     int
	Start     time.Duration
	End       time.Duration
	Track     *audio.Track
}

// SegmentReport records how one segment was placed into the mix.
type SegmentReport struct {
	SegmentID     string        `json:"segment_id"`
	Index         int           `json:"index"`
	SlotStart     time.Duration `json:"slot_start"`
	SlotEnd       time.Duration `json:"slot_end"`
	PlacedStart   time.Duration `json:"placed_start"`
	PlacedEnd     time.Duration `json:"placed_end"`
	StretchFactor float64       `json:"stretch_factor"`
	Extended      time.Duration `json:"extended,omitempty"`
	TruncatedBy   time.Duration `json:"truncated_by,omitempty"`
	Truncated     bool          `json:"truncated,omitempty"`
	Dropped       bool          `json:"dropped,omitempty"`
	DuckGainDB    float64       `json:"duck_gain_db"`
	Note          string        `json:"note,omitempty"`
}

// Result is the output of one mix pass.
type Result struct {
	Track    *audio.Track
	Reports  []SegmentReport
	PeakGain float64
	Duration time.Duration
}

// DroppedCount returns how many segments could not be placed.
func (r *Result) DroppedCount() int {
	count := 0
	for _, report := range r.Reports {
		if report.Dropped {
			count++
		}
	}
	return count
}

// Engine composites synthesized speech over the original soundtrack. One
// engine serves one parameter set and may be reused across jobs.
type Engine struct {
	params Params
	logger *slog.Logger
}

// NewEngine builds a mix engine.
func NewEngine(params Params, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{
		params: params.withDefaults(),
		logger: logging.NewComponentLogger(logger, "mixer"),
	}
}

// Mix fits every clip into its source slot, ducks the background under
// speech, and returns the composite. The background track is not modified.
// The result always matches the background duration and the configured
// output format exactly.
func (e *Engine) Mix(ctx context.Context, background *audio.Track, clips []Clip) (*Result, error) {
	if background == nil || background.Frames() == 0 {
		return nil, services.Wrap(services.ErrValidation, "mixing", "mix", "empty background track", nil)
	}

	out := background.Conform(e.params.SampleRate, e.params.Channels)
	if out == background {
		out = background.Clone()
	}
	totalFrames := out.Frames()

	ordered := make([]Clip, len(clips))
	copy(ordered, clips)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Start < ordered[j].Start })
	for i := 1; i < len(ordered); i++ {
		if ordered[i].Start < ordered[i-1].End {
			return nil, services.Wrap(services.ErrValidation, "mixing", "mix",
				fmt.Sprintf("segments %d and %d overlap", ordered[i-1].Index, ordered[i].Index), nil)
		}
	}

	rampFrames := audio.FramesFor(e.params.DuckRamp, e.params.SampleRate)
	fadeFrames := audio.FramesFor(e.params.Crossfade, e.params.SampleRate)

	reports := make([]SegmentReport, 0, len(ordered))
	placements := make([]placement, 0, len(ordered))
	var dips []dip

	for i, clip := range ordered {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		limitFrames := totalFrames
		if i+1 < len(ordered) {
			if next := audio.FramesFor(ordered[i+1].Start, e.params.SampleRate); next < limitFrames {
				limitFrames = next
			}
		}

		placement, err := e.placeClip(clip, limitFrames, totalFrames, fadeFrames)
		if err != nil {
			if e.params.AbortOnSyncError {
				return nil, err
			}
			e.logger.Warn("segment skipped",
				logging.String(logging.FieldJobID, jobIDFrom(ctx)),
				logging.Int("segment", clip.Index),
				logging.Error(err))
			reports = append(reports, SegmentReport{
				SegmentID:  clip.SegmentID,
				Index:      clip.Index,
				SlotStart:  clip.Start,
				SlotEnd:    clip.End,
				DuckGainDB: e.params.DuckingGainDB,
				Dropped:    true,
				Note:       err.Error(),
			})
			continue
		}

		placements = append(placements, placement)
		dips = append(dips, dip{
			start: placement.startFrame,
			end:   max(placement.startFrame+placement.track.Frames(), audio.FramesFor(clip.End, e.params.SampleRate)),
		})
		reports = append(reports, placement.report(clip, e.params))
	}

	// The envelope shapes the background only. Speech sums in afterwards at
	// full level: out[t] = background[t]*envelope(t) + speech[t].
	applyDucking(out, mergeDips(dips, rampFrames, totalFrames), rampFrames, audio.DBToLinear(e.params.DuckingGainDB))
	for _, p := range placements {
		addClip(out, p.track, p.startFrame)
	}

	peakGain := out.Normalize(maxPeak)

	result := &Result{
		Track:    out,
		Reports:  reports,
		PeakGain: peakGain,
		Duration: out.Duration(),
	}

	e.logger.Info("mix complete",
		logging.String(logging.FieldJobID, jobIDFrom(ctx)),
		logging.Int("segments", len(ordered)),
		logging.Int("dropped", result.DroppedCount()),
		logging.Duration("duration", result.Duration),
		logging.Float64("peak_gain", peakGain))

	return result, nil
}

func jobIDFrom(ctx context.Context) string {
	if jobID, ok := services.JobIDFromContext(ctx); ok {
		return jobID
	}
	return ""
}

func addClip(out, clip *audio.Track, startFrame int) {
	total := out.Frames()
	for ch := 0; ch < out.Channels(); ch++ {
		src := clip.Data[ch]
		for i, v := range src {
			pos := startFrame + i
			if pos >= total {
				break
			}
			out.Data[ch][pos] += v
		}
	}
}
