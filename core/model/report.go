package model

import "time"

// Report is published to bounds subscribers after every recomputation. It
// carries the resolved target for the group and, per priority tier, the
// headroom that tier may use for its next proposal.
type Report struct {
	Target    *float64 // nil when no proposal declared a target
	Bounds    map[int]PowerBounds
	Timestamp time.Time
}

// TargetPower returns the resolved target. The second return value is false
// when no active proposal declared a target.
func (r Report) TargetPower() (float64, bool) {
	if r.Target == nil {
		return 0, false
	}
	return *r.Target, true
}

// BoundsFor returns the available bounds for the given priority. The second
// return value is false when the priority submitted no active proposal.
func (r Report) BoundsFor(priority int) (PowerBounds, bool) {
	b, ok := r.Bounds[priority]
	return b, ok
}
