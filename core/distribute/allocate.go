package distribute

import (
	"math"

	"github.com/kilianp07/microgrid/core/model"
)

// candidate is one component participating in a split, with its usable
// capacity in the requested direction and its allocation weight.
type candidate struct {
	id       model.ComponentID
	capacity float64
	weight   float64
	bounds   model.PowerBounds
}

// directionCapacity returns how much power the component can take in the
// requested direction: the upper bound for consumption, the lower bound
// magnitude for production.
func directionCapacity(b model.PowerBounds, sign float64) float64 {
	var cap float64
	if sign >= 0 {
		cap = b.Upper
	} else {
		cap = -b.Lower
	}
	if cap < 0 {
		return 0
	}
	return cap
}

// socWeight balances state of charge across a battery group: charging favours
// emptier batteries, discharging favours fuller ones. Components without SoC
// data weigh by capacity alone.
func socWeight(sample model.Telemetry, sign float64) float64 {
	if sample.CapacityKWh <= 0 {
		return 1
	}
	soc := sample.SoC
	if soc < 0 {
		soc = 0
	}
	if soc > 1 {
		soc = 1
	}
	if sign >= 0 {
		return 0.1 + 0.9*(1-soc)
	}
	return 0.1 + 0.9*soc
}

// buildCandidates keeps the components with usable capacity in the requested
// direction and computes their weights.
func buildCandidates(ids []model.ComponentID, samples map[model.ComponentID]model.Telemetry, sign float64) []candidate {
	var list []candidate
	for _, id := range ids {
		sample, known := samples[id]
		if !known {
			continue
		}
		cap := directionCapacity(sample.Bounds, sign)
		if cap <= 0 {
			continue
		}
		list = append(list, candidate{
			id:       id,
			capacity: cap,
			weight:   cap * socWeight(sample, sign),
			bounds:   sample.Bounds,
		})
	}
	return list
}

// allocate splits target across the candidates proportionally to their
// weights. Each share is clipped to the candidate's capacity; residual from
// clipping is redistributed among non-saturated candidates until a fixed
// point or nothing more can be placed. The returned map carries signed powers
// in the passive sign convention.
func allocate(list []candidate, target float64) map[model.ComponentID]float64 {
	assignments := make(map[model.ComponentID]float64, len(list))
	limits := make(map[model.ComponentID]model.PowerBounds, len(list))
	for _, c := range list {
		assignments[c.id] = 0
		limits[c.id] = c.bounds
	}
	if target != 0 && len(list) > 0 {
		sign := 1.0
		if target < 0 {
			sign = -1
		}
		remaining := math.Abs(target)

		var weightSum float64
		for _, c := range list {
			weightSum += c.weight
		}
		for remaining > 1e-9 && len(list) > 0 && weightSum > 0 {
			var consumed float64
			list, weightSum, remaining, consumed = allocateRound(list, weightSum, sign, remaining, assignments)
			if consumed == 0 {
				break
			}
		}
	}
	// Clip against both ends of the component's own bounds: a device with a
	// minimum draw (lower bound above zero, or upper bound below it) must
	// not be commanded outside its operating range.
	for id, b := range limits {
		assignments[id] = b.Clamp(assignments[id])
	}
	return assignments
}

// allocateRound performs one proportional pass, saturating candidates whose
// share exceeds their remaining capacity.
func allocateRound(list []candidate, weightSum, sign, remaining float64, assignments map[model.ComponentID]float64) ([]candidate, float64, float64, float64) {
	consumed := 0.0
	next := list[:0]
	for _, c := range list {
		if remaining <= 0 || weightSum <= 0 {
			break
		}
		share := remaining * (c.weight / weightSum)
		if share >= c.capacity {
			assignments[c.id] += sign * c.capacity
			consumed += c.capacity
			remaining -= c.capacity
			weightSum -= c.weight
		} else {
			assignments[c.id] += sign * share
			c.capacity -= share
			consumed += share
			remaining -= share
			next = append(next, c)
		}
	}
	return next, weightSum, remaining, consumed
}

// reallocate spreads the residual lost to failed components over the
// remaining ones, respecting their leftover capacity. It returns the amount
// that could not be placed.
func reallocate(list []candidate, assignments map[model.ComponentID]float64, residual, sign float64) float64 {
	remaining := residual
	for remaining > 1e-9 && len(list) > 0 {
		var totalCap float64
		for _, c := range list {
			totalCap += c.capacity
		}
		if totalCap == 0 {
			break
		}
		next := list[:0]
		for i := range list {
			c := list[i]
			share := remaining * (c.capacity / totalCap)
			if share > c.capacity {
				share = c.capacity
			}
			assignments[c.id] += sign * share
			remaining -= share
			c.capacity -= share
			if c.capacity > 1e-9 {
				next = append(next, c)
			}
		}
		list = next
	}
	return remaining
}
