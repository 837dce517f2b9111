package model

import "time"

// Request is a resolved power target for a component group, produced by the
// management actor and consumed by the distribution actor. It is derived
// state: recomputed on every change, never persisted.
type Request struct {
	ComponentIDs []ComponentID
	TargetPower  float64 // kW, passive sign convention
	CreatedAt    time.Time
}

// Result is the outcome of one command sent to one component.
type Result struct {
	ComponentID ComponentID
	Applied     float64 // power actually commanded, kW
	Err         error
}

// Succeeded reports whether the command was acknowledged without error.
func (r Result) Succeeded() bool { return r.Err == nil }

// AggregateResult summarizes one distribution cycle for a request. Success
// requires every targeted component to succeed; otherwise PartialFailure is
// set and Failed names the components that did not apply their share.
type AggregateResult struct {
	Request        Request
	Succeeded      []Result
	Failed         []Result
	PartialFailure bool
}

// AppliedPower returns the total power applied by the succeeding components.
func (a AggregateResult) AppliedPower() float64 {
	var sum float64
	for _, r := range a.Succeeded {
		sum += r.Applied
	}
	return sum
}
