package model

import (
	"fmt"
	"time"
)

// Proposal is a prioritized request to influence the target power of a
// component group. A lower Priority value is more senior. TargetPower and
// Bounds are optional: a proposal may only reserve headroom, or only declare
// a target. A new proposal from the same SourceID replaces the previous one;
// proposals expire when not renewed within Lifetime; a zero Lifetime means
// the proposal never expires and must be withdrawn explicitly.
type Proposal struct {
	SourceID        string
	Priority        int
	ComponentIDs    []ComponentID
	TargetPower     *float64 // kW, passive sign convention
	Bounds          *PowerBounds
	InShiftingGroup bool
	CreatedAt       time.Time
	Lifetime        time.Duration
}

// Validate checks the proposal invariants.
func (p Proposal) Validate() error {
	if p.SourceID == "" {
		return fmt.Errorf("proposal source id must not be empty")
	}
	if p.Lifetime < 0 {
		return fmt.Errorf("proposal lifetime must not be negative")
	}
	if p.Bounds != nil {
		if err := p.Bounds.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Expired reports whether the proposal has outlived its lifetime at now.
func (p Proposal) Expired(now time.Time) bool {
	if p.Lifetime == 0 {
		return false
	}
	return now.After(p.CreatedAt.Add(p.Lifetime))
}

// Withdrawal removes all proposals from the given source.
type Withdrawal struct {
	SourceID string
}
