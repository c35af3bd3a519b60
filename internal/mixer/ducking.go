package mixer

import (
	"sort"

	"mockingbird/internal/audio"
)

// dip is one fully ducked background interval in frames. Ramps extend one
// ramp length before start and after end.
type dip struct {
	start int
	end   int
}

// mergeDips combines dips whose gap is too small for the background to
// recover, so back-to-back speech produces one continuous dip instead of
// pumping. Dips are clamped to the track.
func mergeDips(dips []dip, rampFrames, totalFrames int) []dip {
	if len(dips) == 0 {
		return nil
	}

	sorted := make([]dip, 0, len(dips))
	for _, d := range dips {
		d.start = max(d.start, 0)
		d.end = min(d.end, totalFrames)
		if d.end <= d.start {
			continue
		}
		sorted = append(sorted, d)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].start < sorted[j].start })

	merged := make([]dip, 0, len(sorted))
	for _, d := range sorted {
		if len(merged) > 0 && d.start-merged[len(merged)-1].end <= 2*rampFrames {
			if d.end > merged[len(merged)-1].end {
				merged[len(merged)-1].end = d.end
			}
			continue
		}
		merged = append(merged, d)
	}
	return merged
}

// applyDucking shapes the background in place: unity gain outside dips, the
// duck factor inside, and linear ramps in between.
func applyDucking(track *audio.Track, dips []dip, rampFrames int, duck float64) {
	if duck >= 1 || len(dips) == 0 {
		return
	}
	total := track.Frames()

	scale := func(frame int, gain float64) {
		if frame < 0 || frame >= total {
			return
		}
		for ch := range track.Data {
			track.Data[ch][frame] *= gain
		}
	}

	for _, d := range dips {
		for i := d.start; i < d.end; i++ {
			scale(i, duck)
		}
		// Frames nearest the dip sit just above the duck level and the
		// outermost ramp frame returns to unity.
		for i := 0; i < rampFrames; i++ {
			gain := duck + (1-duck)*float64(i+1)/float64(rampFrames)
			scale(d.start-1-i, gain)
			scale(d.end+i, gain)
		}
	}
}
