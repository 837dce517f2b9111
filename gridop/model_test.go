package gridop

import (
	"testing"
	"time"

	"github.com/kilianp07/microgrid/core/model"
)

func validSignal() Signal {
	now := time.Now()
	return Signal{
		SignalType: "curtailment",
		Category:   "battery",
		StartTime:  now,
		EndTime:    now.Add(time.Hour),
		PowerKW:    500,
	}
}

func TestSignalValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Signal)
		wantErr bool
	}{
		{"valid curtailment", func(*Signal) {}, false},
		{"valid setpoint", func(s *Signal) { s.SignalType = "setpoint"; s.PowerKW = -200 }, false},
		{"unknown type", func(s *Signal) { s.SignalType = "FCR" }, true},
		{"unknown category", func(s *Signal) { s.Category = "diesel" }, true},
		{"missing window", func(s *Signal) { s.StartTime = time.Time{} }, true},
		{"inverted window", func(s *Signal) { s.EndTime = s.StartTime.Add(-time.Hour) }, true},
		{"non-positive curtailment", func(s *Signal) { s.PowerKW = 0 }, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sig := validSignal()
			tc.mutate(&sig)
			err := sig.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestCurtailmentBecomesBoundsProposal(t *testing.T) {
	sig := validSignal()
	now := sig.StartTime

	category, spec, err := sig.ToProposal(now)
	if err != nil {
		t.Fatalf("to proposal: %v", err)
	}
	if category != model.CategoryBattery {
		t.Fatalf("unexpected category %s", category)
	}
	if spec.Priority != priorityCurtailment {
		t.Fatalf("unexpected priority %d", spec.Priority)
	}
	if spec.TargetPower != nil {
		t.Fatal("curtailment must not carry a target")
	}
	if spec.Bounds == nil || *spec.Bounds != (model.PowerBounds{Lower: -500, Upper: 500}) {
		t.Fatalf("unexpected bounds %+v", spec.Bounds)
	}
	if spec.Lifetime != time.Hour {
		t.Fatalf("unexpected lifetime %s", spec.Lifetime)
	}
}

func TestSetpointBecomesTargetProposal(t *testing.T) {
	sig := validSignal()
	sig.SignalType = "setpoint"
	sig.PowerKW = -200

	_, spec, err := sig.ToProposal(sig.StartTime)
	if err != nil {
		t.Fatalf("to proposal: %v", err)
	}
	if spec.Priority != prioritySetpoint {
		t.Fatalf("unexpected priority %d", spec.Priority)
	}
	if spec.TargetPower == nil || *spec.TargetPower != -200 {
		t.Fatalf("unexpected target %+v", spec.TargetPower)
	}
	if spec.Bounds != nil {
		t.Fatal("setpoint must not carry bounds")
	}
}

func TestClosedWindowRejected(t *testing.T) {
	sig := validSignal()
	if _, _, err := sig.ToProposal(sig.EndTime.Add(time.Minute)); err == nil {
		t.Fatal("expected error for a closed signal window")
	}
}

func TestSameTypeSharesSourceID(t *testing.T) {
	sig := validSignal()
	_, first, err := sig.ToProposal(sig.StartTime)
	if err != nil {
		t.Fatalf("to proposal: %v", err)
	}
	sig.PowerKW = 300
	_, second, err := sig.ToProposal(sig.StartTime)
	if err != nil {
		t.Fatalf("to proposal: %v", err)
	}
	// Renewals replace the previous proposal instead of stacking.
	if first.SourceID != second.SourceID {
		t.Fatalf("source ids differ: %s vs %s", first.SourceID, second.SourceID)
	}
}
