package mixer

import (
	"fmt"
	"math"

	"mockingbird/internal/audio"
	"mockingbird/internal/services"
)

// placement is the outcome of fitting one clip into its slot.
type placement struct {
	track         *audio.Track
	startFrame    int
	slotFrames    int
	stretchFactor float64
	extendedBy    int
	truncatedBy   int
	truncated     bool
}

// placeClip fits a synthesized clip into its source slot. Speech longer than
// the slot is compressed up to the stretch ceiling, then allowed to run into
// trailing silence up to limitFrames, and only then truncated. Speech shorter
// than the slot is left at natural pace. The clip never reaches past
// limitFrames, so it cannot overlap the next segment's slot.
func (e *Engine) placeClip(clip Clip, limitFrames, totalFrames, fadeFrames int) (placement, error) {
	if clip.Track == nil || clip.Track.Frames() == 0 {
		return placement{}, services.Wrap(services.ErrSync, "mixing", "place",
			fmt.Sprintf("segment %d has no synthesized audio", clip.Index), nil)
	}
	if clip.End <= clip.Start || clip.Start < 0 {
		return placement{}, services.Wrap(services.ErrSync, "mixing", "place",
			fmt.Sprintf("segment %d has invalid slot %v..%v", clip.Index, clip.Start, clip.End), nil)
	}

	startFrame := audio.FramesFor(clip.Start, e.params.SampleRate)
	if startFrame >= totalFrames {
		return placement{}, services.Wrap(services.ErrSync, "mixing", "place",
			fmt.Sprintf("segment %d starts beyond the soundtrack end", clip.Index), nil)
	}

	endFrame := min(audio.FramesFor(clip.End, e.params.SampleRate), totalFrames)
	slotFrames := endFrame - startFrame
	if slotFrames <= 0 {
		return placement{}, services.Wrap(services.ErrSync, "mixing", "place",
			fmt.Sprintf("segment %d slot is empty after clamping to the soundtrack", clip.Index), nil)
	}

	window := limitFrames - startFrame
	if window < slotFrames {
		window = slotFrames
	}
	if window > totalFrames-startFrame {
		window = totalFrames - startFrame
	}

	prepared := clip.Track.Conform(e.params.SampleRate, e.params.Channels)
	if prepared == clip.Track {
		prepared = prepared.Clone()
	}
	clipFrames := prepared.Frames()

	out := placement{
		startFrame:    startFrame,
		slotFrames:    slotFrames,
		stretchFactor: 1,
	}

	switch {
	case clipFrames <= slotFrames:
		// Natural pace, trailing silence keeps the ambience.
		out.track = prepared

	case float64(clipFrames) <= e.params.StretchCeiling*float64(slotFrames):
		out.stretchFactor = float64(clipFrames) / float64(slotFrames)
		out.track = prepared.TimeCompressTo(slotFrames)

	default:
		// Even at the ceiling the speech overflows the slot. Spill into
		// trailing silence when the gap to the next segment allows it,
		// otherwise drop material from the clip's tail.
		needFrames := int(math.Ceil(float64(clipFrames) / e.params.StretchCeiling))
		if needFrames <= window {
			out.stretchFactor = float64(clipFrames) / float64(needFrames)
			out.track = prepared.TimeCompressTo(needFrames)
			out.extendedBy = needFrames - slotFrames
		} else {
			material := int(math.Round(float64(window) * e.params.StretchCeiling))
			if material > clipFrames {
				material = clipFrames
			}
			out.truncatedBy = clipFrames - material
			out.truncated = out.truncatedBy > 0
			prepared.Truncate(material)
			out.stretchFactor = float64(material) / float64(window)
			out.track = prepared.TimeCompressTo(window)
			out.extendedBy = window - slotFrames
		}
	}

	out.track.FadeEdges(fadeFrames)
	return out, nil
}

func (p placement) report(clip Clip, params Params) SegmentReport {
	placedFrames := p.track.Frames()
	return SegmentReport{
		SegmentID:     clip.SegmentID,
		Index:         clip.Index,
		SlotStart:     clip.Start,
		SlotEnd:       clip.End,
		PlacedStart:   audio.DurationFor(p.startFrame, params.SampleRate),
		PlacedEnd:     audio.DurationFor(p.startFrame+placedFrames, params.SampleRate),
		StretchFactor: p.stretchFactor,
		Extended:      audio.DurationFor(p.extendedBy, params.SampleRate),
		TruncatedBy:   audio.DurationFor(p.truncatedBy, params.SampleRate),
		Truncated:     p.truncated,
		DuckGainDB:    params.DuckingGainDB,
	}
}
