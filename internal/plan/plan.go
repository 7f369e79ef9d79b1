// Package plan computes the scroll offsets needed to cover a page's full
// height with viewport-sized steps, and keeps the sequence valid while the
// page grows under lazy loading.
package plan

import (
	"fmt"
)

// Plan is an ordered sequence of target scroll offsets together with the
// page geometry it was derived from. The union of [pos, pos+Viewport)
// over Positions covers [0, Total) with no gap, and the final position is
// exactly Total-Viewport.
type Plan struct {
	Positions []int
	Total     int
	Viewport  int
}

// Build computes the offsets 0, V, 2V, ... clamped so the last offset equals
// exactly total-viewport. A page no taller than its viewport yields the
// single position 0.
func Build(total, viewport int) (Plan, error) {
	if viewport <= 0 {
		return Plan{}, fmt.Errorf("plan: viewport height %d", viewport)
	}
	if total <= 0 {
		return Plan{}, fmt.Errorf("plan: total height %d", total)
	}

	if total <= viewport {
		return Plan{Positions: []int{0}, Total: total, Viewport: viewport}, nil
	}

	last := total - viewport
	var positions []int
	for pos := 0; pos < last; pos += viewport {
		positions = append(positions, pos)
	}
	positions = append(positions, last)

	return Plan{Positions: positions, Total: total, Viewport: viewport}, nil
}

// Adjust recomputes the remaining positions when the live page height has
// drifted from the plan's assumption (lazy-loaded content appending while
// scrolling). Positions before index from are kept as captured; the tail is
// rebuilt from the next uncovered offset against the new total.
func (p Plan) Adjust(from, liveTotal int) Plan {
	if liveTotal == p.Total || from >= len(p.Positions) {
		return p
	}

	kept := append([]int(nil), p.Positions[:from]...)

	next := 0
	if from > 0 {
		next = p.Positions[from-1] + p.Viewport
	}

	last := liveTotal - p.Viewport
	if last < 0 {
		last = 0
	}
	for pos := next; pos < last; pos += p.Viewport {
		kept = append(kept, pos)
	}
	if len(kept) == 0 || kept[len(kept)-1] != last {
		kept = append(kept, last)
	}

	return Plan{Positions: kept, Total: liveTotal, Viewport: p.Viewport}
}

// FitScale returns the uniform scale-down to apply before capturing so the
// scaled page height stays at or under the raster ceiling, clamped to
// minScale. Returns 1 when no shrinking is needed.
func FitScale(total, ceiling int, minScale float64) float64 {
	if ceiling <= 0 || total <= ceiling {
		return 1
	}
	s := float64(ceiling) / float64(total)
	if s < minScale {
		s = minScale
	}
	return s
}
