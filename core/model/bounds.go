package model

import "fmt"

// PowerBounds is an inclusive power interval in kW, passive sign convention.
type PowerBounds struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Validate checks that the interval is well formed.
func (b PowerBounds) Validate() error {
	if b.Lower > b.Upper {
		return fmt.Errorf("power bounds lower %.2f exceeds upper %.2f", b.Lower, b.Upper)
	}
	return nil
}

// Shift moves both ends of the interval by the given offset.
func (b PowerBounds) Shift(offset float64) PowerBounds {
	return PowerBounds{Lower: b.Lower + offset, Upper: b.Upper + offset}
}

// Intersect returns the overlap of the two intervals. When the intervals are
// disjoint the result collapses onto the nearest edge so that Lower == Upper.
func (b PowerBounds) Intersect(o PowerBounds) PowerBounds {
	res := PowerBounds{Lower: b.Lower, Upper: b.Upper}
	if o.Lower > res.Lower {
		res.Lower = o.Lower
	}
	if o.Upper < res.Upper {
		res.Upper = o.Upper
	}
	if res.Lower > res.Upper {
		if o.Upper < b.Lower {
			res.Lower, res.Upper = b.Lower, b.Lower
		} else {
			res.Lower, res.Upper = b.Upper, b.Upper
		}
	}
	return res
}

// Clamp restricts the value to the interval.
func (b PowerBounds) Clamp(v float64) float64 {
	if v < b.Lower {
		return b.Lower
	}
	if v > b.Upper {
		return b.Upper
	}
	return v
}

// Contains reports whether the value lies inside the interval.
func (b PowerBounds) Contains(v float64) bool {
	return v >= b.Lower && v <= b.Upper
}

// Add sums the two intervals end to end.
func (b PowerBounds) Add(o PowerBounds) PowerBounds {
	return PowerBounds{Lower: b.Lower + o.Lower, Upper: b.Upper + o.Upper}
}
