package model

import "time"

// ComponentID uniquely identifies a physical device within the microgrid.
type ComponentID string

// Category defines the kind of controllable component a pool manages.
type Category int

const (
	CategoryBattery Category = iota
	CategoryEVCharger
	CategoryPVArray
)

// String returns a human-readable representation of the category.
func (c Category) String() string {
	switch c {
	case CategoryBattery:
		return "battery"
	case CategoryEVCharger:
		return "ev_charger"
	case CategoryPVArray:
		return "pv_array"
	default:
		return "unknown"
	}
}

// ComponentState describes whether a component may receive commands.
type ComponentState int

const (
	// StateWorking means the component has fresh data and no recent failures.
	StateWorking ComponentState = iota
	// StateBlocked means the component must not be commanded until BlockedUntil.
	StateBlocked
)

// String returns a human-readable representation of the state.
func (s ComponentState) String() string {
	switch s {
	case StateWorking:
		return "working"
	case StateBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// ComponentStatus is the tracker's view of a single component.
type ComponentStatus struct {
	ComponentID  ComponentID
	State        ComponentState
	BlockedUntil time.Time
	LastDataAt   time.Time
}

// WorkingSet is a snapshot of the components currently safe to command.
type WorkingSet struct {
	Working map[ComponentID]struct{}
}

// NewWorkingSet builds a snapshot from the given ids.
func NewWorkingSet(ids ...ComponentID) WorkingSet {
	ws := WorkingSet{Working: make(map[ComponentID]struct{}, len(ids))}
	for _, id := range ids {
		ws.Working[id] = struct{}{}
	}
	return ws
}

// Contains reports whether the component is part of the working set.
func (w WorkingSet) Contains(id ComponentID) bool {
	_, ok := w.Working[id]
	return ok
}

// Telemetry carries the latest measurement sample for one component.
// Bounds are the physical power envelope in the passive sign convention
// (positive = consume/charge, negative = produce/discharge).
type Telemetry struct {
	ComponentID ComponentID
	Bounds      PowerBounds
	SoC         float64 // state of charge between 0 and 1, batteries only
	CapacityKWh float64 // usable energy capacity, batteries only
	Timestamp   time.Time
}
