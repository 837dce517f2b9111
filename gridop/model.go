package gridop

import (
	"fmt"
	"time"

	"github.com/kilianp07/microgrid/core/model"
	"github.com/kilianp07/microgrid/core/pool"
)

// Priorities assigned to operator signals. Curtailments outrank local
// setpoints so a declared limit is never overridden by an operator target.
const (
	priorityCurtailment = 1
	prioritySetpoint    = 2
)

// Signal is the payload received from the grid operator.
type Signal struct {
	SignalType string            `json:"signal_type"`
	Category   string            `json:"category"`
	StartTime  time.Time         `json:"start_time"`
	EndTime    time.Time         `json:"end_time"`
	PowerKW    float64           `json:"power_kw"`
	Meta       map[string]string `json:"meta"`
}

// Validate checks that the signal payload is well formed.
func (s Signal) Validate() error {
	switch s.SignalType {
	case "curtailment", "setpoint":
	default:
		return fmt.Errorf("unknown signal type: %s", s.SignalType)
	}
	if _, err := pool.ParseCategory(s.Category); err != nil {
		return err
	}
	if s.StartTime.IsZero() || s.EndTime.IsZero() {
		return fmt.Errorf("start_time and end_time required")
	}
	if !s.EndTime.After(s.StartTime) {
		return fmt.Errorf("end_time must be after start_time")
	}
	if s.SignalType == "curtailment" && s.PowerKW <= 0 {
		return fmt.Errorf("curtailment power must be positive")
	}
	return nil
}

// ToProposal converts the operator signal into a pool proposal. A
// curtailment of P kW caps the pool to [-P, P]; a setpoint requests P kW.
// Resubmitting the same signal type replaces the previous proposal, and the
// lifetime withdraws it when the signal window ends.
func (s Signal) ToProposal(now time.Time) (model.Category, pool.ProposalSpec, error) {
	category, err := pool.ParseCategory(s.Category)
	if err != nil {
		return 0, pool.ProposalSpec{}, err
	}
	lifetime := s.EndTime.Sub(now)
	if lifetime <= 0 {
		return 0, pool.ProposalSpec{}, fmt.Errorf("signal window already closed at %s", s.EndTime)
	}
	spec := pool.ProposalSpec{
		SourceID: "grid-operator/" + s.SignalType,
		Lifetime: lifetime,
	}
	switch s.SignalType {
	case "curtailment":
		spec.Priority = priorityCurtailment
		spec.Bounds = &model.PowerBounds{Lower: -s.PowerKW, Upper: s.PowerKW}
	case "setpoint":
		spec.Priority = prioritySetpoint
		target := s.PowerKW
		spec.TargetPower = &target
	default:
		return 0, pool.ProposalSpec{}, fmt.Errorf("unknown signal type: %s", s.SignalType)
	}
	return category, spec, nil
}
