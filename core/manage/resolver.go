package manage

import (
	"fmt"
	"sort"
	"time"

	"github.com/kilianp07/microgrid/core/model"
)

// resolution is the outcome of resolving the active proposals of one group.
type resolution struct {
	// target is the resolved group target including the shifting offset.
	// It is nil when no proposal declared a target and the offset is zero.
	target *float64
	// bounds holds, per priority tier, the envelope that tier may use.
	bounds map[int]model.PowerBounds
	// offset is the shifting-group contribution.
	offset float64
}

// resolve computes the group target and per-priority bounds from the active
// proposals and the physical envelope of the working components.
//
// The shifting group contributes an additive offset instead of competing on
// priority. Regular proposals are walked from the most senior (lowest
// priority value) to the most junior: each tier sees the envelope left over
// by its seniors' declared bounds, may refine the target within it, and
// narrows it further for its juniors. The most junior concrete target,
// clamped into its tier's envelope, wins; the offset is applied afterwards.
func resolve(proposals []model.Proposal, envelope model.PowerBounds, now time.Time) resolution {
	if err := envelope.Validate(); err != nil {
		// The envelope is computed from per-component bounds that are each
		// validated on arrival; an inverted sum is a resolution-logic defect.
		panic(fmt.Sprintf("manage: invalid envelope: %v", err))
	}

	var shifting, regular []model.Proposal
	for _, p := range proposals {
		if p.Expired(now) {
			continue
		}
		if p.InShiftingGroup {
			shifting = append(shifting, p)
		} else {
			regular = append(regular, p)
		}
	}

	var offset float64
	var shiftingBounds model.PowerBounds
	declared := false
	for _, p := range shifting {
		if p.TargetPower != nil {
			offset += *p.TargetPower
		}
		if p.Bounds != nil {
			if declared {
				shiftingBounds = shiftingBounds.Add(*p.Bounds)
			} else {
				shiftingBounds = *p.Bounds
				declared = true
			}
		}
	}
	if !declared {
		shiftingBounds = envelope
	}
	offset = shiftingBounds.Clamp(offset)

	// More senior first; equal priorities ordered oldest first so the most
	// recent proposal refines the target last and wins the tie.
	sort.SliceStable(regular, func(i, j int) bool {
		if regular[i].Priority != regular[j].Priority {
			return regular[i].Priority < regular[j].Priority
		}
		return regular[i].CreatedAt.Before(regular[j].CreatedAt)
	})

	// The offset consumes part of the physical envelope, so the room left
	// for the regular proposals is the envelope shifted the other way.
	available := envelope.Shift(-offset)

	res := resolution{bounds: make(map[int]model.PowerBounds), offset: offset}
	var target *float64
	for _, p := range regular {
		if _, seen := res.bounds[p.Priority]; !seen {
			res.bounds[p.Priority] = available
		}
		if p.TargetPower != nil {
			t := available.Clamp(*p.TargetPower)
			target = &t
		}
		if p.Bounds != nil {
			available = available.Intersect(*p.Bounds)
		}
		if err := available.Validate(); err != nil {
			panic(fmt.Sprintf("manage: bounds inverted while resolving priority %d: %v", p.Priority, err))
		}
	}

	switch {
	case target != nil:
		t := envelope.Clamp(*target + offset)
		res.target = &t
	case len(shifting)+len(regular) > 0:
		// No regular proposal declared a target, the offset stands alone.
		t := envelope.Clamp(offset)
		res.target = &t
	}
	return res
}
