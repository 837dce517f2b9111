package manage

import (
	"context"
	"testing"
	"time"

	"github.com/kilianp07/microgrid/core/model"
	"github.com/kilianp07/microgrid/infra/logger"
	"github.com/kilianp07/microgrid/internal/broadcast"
)

type managerFixture struct {
	actor       *Actor
	proposals   *broadcast.Broadcast[model.Proposal]
	withdrawals *broadcast.Broadcast[model.Withdrawal]
	workingSets *broadcast.Broadcast[model.WorkingSet]
	telemetry   *broadcast.Broadcast[model.Telemetry]
	results     *broadcast.Broadcast[model.AggregateResult]
	requests    *broadcast.Receiver[model.Request]
	reports     *ReportRegistry
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	proposals := broadcast.New[model.Proposal]("proposals")
	withdrawals := broadcast.New[model.Withdrawal]("withdrawals")
	workingSets := broadcast.New[model.WorkingSet]("status", broadcast.WithResendLatest())
	telemetry := broadcast.New[model.Telemetry]("telemetry")
	results := broadcast.New[model.AggregateResult]("results")
	requestsOut := broadcast.New[model.Request]("requests")
	registry := NewReportRegistry()

	actor, err := NewActor(
		model.CategoryBattery,
		proposals.NewReceiver(),
		withdrawals.NewReceiver(),
		workingSets.NewReceiver(),
		telemetry.NewReceiver(),
		results.NewReceiver(),
		requestsOut,
		registry,
		nil,
		logger.NopLogger{},
	)
	if err != nil {
		t.Fatalf("new actor: %v", err)
	}
	f := &managerFixture{
		actor:       actor,
		proposals:   proposals,
		withdrawals: withdrawals,
		workingSets: workingSets,
		telemetry:   telemetry,
		results:     results,
		requests:    requestsOut.NewReceiver(),
		reports:     registry,
	}

	ctx, cancel := context.WithCancel(context.Background())
	actor.Start(ctx)
	t.Cleanup(func() {
		cancel()
		actor.Stop()
		proposals.Close()
		withdrawals.Close()
		workingSets.Close()
		telemetry.Close()
		results.Close()
		requestsOut.Close()
		registry.Close()
	})
	return f
}

// feed installs the working set and telemetry and waits for the actor to
// drain them before any proposal arrives.
func (f *managerFixture) feed(ws model.WorkingSet, samples ...model.Telemetry) {
	f.workingSets.Send(ws)
	for _, s := range samples {
		f.telemetry.Send(s)
	}
	time.Sleep(50 * time.Millisecond)
}

func (f *managerFixture) awaitRequest(t *testing.T) model.Request {
	t.Helper()
	select {
	case req, ok := <-f.requests.C():
		if !ok {
			t.Fatal("request channel closed")
		}
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for request")
	}
	return model.Request{}
}

func (f *managerFixture) expectNoRequest(t *testing.T, within time.Duration) {
	t.Helper()
	select {
	case req := <-f.requests.C():
		t.Fatalf("unexpected request for %.2f kW", req.TargetPower)
	case <-time.After(within):
	}
}

func sample(id model.ComponentID, lower, upper float64) model.Telemetry {
	return model.Telemetry{
		ComponentID: id,
		Bounds:      model.PowerBounds{Lower: lower, Upper: upper},
		Timestamp:   time.Now(),
	}
}

var groupIDs = []model.ComponentID{"bat-1", "bat-2"}

func seniorProposal() model.Proposal {
	return model.Proposal{
		SourceID:     "grid",
		Priority:     1,
		ComponentIDs: groupIDs,
		TargetPower:  kw(1000),
		Bounds:       bounds(-4000, 2500),
		CreatedAt:    time.Now(),
	}
}

func juniorProposal() model.Proposal {
	return model.Proposal{
		SourceID:     "trader",
		Priority:     2,
		ComponentIDs: groupIDs,
		TargetPower:  kw(2500),
		CreatedAt:    time.Now(),
	}
}

func TestPrioritizedProposalsProduceRequests(t *testing.T) {
	f := newManagerFixture(t)
	f.feed(model.NewWorkingSet("bat-1", "bat-2"),
		sample("bat-1", -1500, 1500),
		sample("bat-2", -1500, 1500),
	)

	f.proposals.Send(seniorProposal())
	req := f.awaitRequest(t)
	if req.TargetPower != 1000 {
		t.Fatalf("expected first request for 1000 kW, got %.2f", req.TargetPower)
	}

	f.proposals.Send(juniorProposal())
	req = f.awaitRequest(t)
	if req.TargetPower != 2500 {
		t.Fatalf("expected refined request for 2500 kW, got %.2f", req.TargetPower)
	}
}

func TestReportCarriesTierBounds(t *testing.T) {
	f := newManagerFixture(t)
	f.feed(model.NewWorkingSet("bat-1", "bat-2"),
		sample("bat-1", -1500, 1500),
		sample("bat-2", -1500, 1500),
	)

	f.proposals.Send(seniorProposal())
	f.awaitRequest(t)
	f.proposals.Send(juniorProposal())
	f.awaitRequest(t)

	r := f.reports.Subscribe(groupIDs)
	defer r.Close()
	var report model.Report
	select {
	case report = <-r.C():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for report")
	}
	if target, ok := report.TargetPower(); !ok || target != 2500 {
		t.Fatalf("expected report target 2500, got %v", report.Target)
	}
	if got, ok := report.BoundsFor(1); !ok || got != (model.PowerBounds{Lower: -3000, Upper: 3000}) {
		t.Errorf("priority 1 bounds: got %+v", got)
	}
	if got, ok := report.BoundsFor(2); !ok || got != (model.PowerBounds{Lower: -3000, Upper: 2500}) {
		t.Errorf("priority 2 bounds: got %+v", got)
	}
}

func TestShiftingGroupOffset(t *testing.T) {
	f := newManagerFixture(t)
	f.feed(model.NewWorkingSet("bat-1", "bat-2"),
		sample("bat-1", -1500, 1500),
		sample("bat-2", -1500, 1500),
	)

	f.proposals.Send(seniorProposal())
	f.awaitRequest(t)
	f.proposals.Send(juniorProposal())
	f.awaitRequest(t)

	shift := model.Proposal{
		SourceID:        "pv-forecast",
		ComponentIDs:    groupIDs,
		TargetPower:     kw(-1000),
		InShiftingGroup: true,
		CreatedAt:       time.Now(),
	}
	f.proposals.Send(shift)
	req := f.awaitRequest(t)
	if req.TargetPower != 1500 {
		t.Fatalf("expected shifted request for 1500 kW, got %.2f", req.TargetPower)
	}
}

func TestResubmissionIsIdempotent(t *testing.T) {
	f := newManagerFixture(t)
	f.feed(model.NewWorkingSet("bat-1", "bat-2"),
		sample("bat-1", -1500, 1500),
		sample("bat-2", -1500, 1500),
	)

	f.proposals.Send(seniorProposal())
	f.awaitRequest(t)
	f.proposals.Send(seniorProposal())
	f.expectNoRequest(t, 100*time.Millisecond)
}

func TestWithdrawalRevertsTarget(t *testing.T) {
	f := newManagerFixture(t)
	f.feed(model.NewWorkingSet("bat-1", "bat-2"),
		sample("bat-1", -1500, 1500),
		sample("bat-2", -1500, 1500),
	)

	f.proposals.Send(seniorProposal())
	f.awaitRequest(t)
	f.proposals.Send(juniorProposal())
	f.awaitRequest(t)

	f.withdrawals.Send(model.Withdrawal{SourceID: "trader"})
	req := f.awaitRequest(t)
	if req.TargetPower != 1000 {
		t.Fatalf("expected reverted request for 1000 kW, got %.2f", req.TargetPower)
	}
}

func TestProposalExpiryRevertsTarget(t *testing.T) {
	f := newManagerFixture(t)
	f.feed(model.NewWorkingSet("bat-1", "bat-2"),
		sample("bat-1", -1500, 1500),
		sample("bat-2", -1500, 1500),
	)

	f.proposals.Send(seniorProposal())
	f.awaitRequest(t)

	short := juniorProposal()
	short.Lifetime = 100 * time.Millisecond
	f.proposals.Send(short)
	req := f.awaitRequest(t)
	if req.TargetPower != 2500 {
		t.Fatalf("expected request for 2500 kW, got %.2f", req.TargetPower)
	}

	// The expiry sweep runs every 500ms.
	select {
	case req, ok := <-f.requests.C():
		if !ok {
			t.Fatal("request channel closed")
		}
		if req.TargetPower != 1000 {
			t.Fatalf("expected reverted request for 1000 kW, got %.2f", req.TargetPower)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expired proposal was not dropped")
	}
}

func TestBoundsChangeTriggersRecompute(t *testing.T) {
	f := newManagerFixture(t)
	f.feed(model.NewWorkingSet("bat-1", "bat-2"),
		sample("bat-1", -1500, 1500),
		sample("bat-2", -1500, 1500),
	)

	f.proposals.Send(juniorProposal())
	req := f.awaitRequest(t)
	if req.TargetPower != 2500 {
		t.Fatalf("expected request for 2500 kW, got %.2f", req.TargetPower)
	}

	// The envelope shrinks, the clamped target follows.
	f.telemetry.Send(sample("bat-1", -500, 500))
	req = f.awaitRequest(t)
	if req.TargetPower != 2000 {
		t.Fatalf("expected request clamped to 2000 kW, got %.2f", req.TargetPower)
	}

	// Same bounds again: no recomputation, no request.
	f.telemetry.Send(sample("bat-1", -500, 500))
	f.expectNoRequest(t, 100*time.Millisecond)
}

func TestEmptyGroupIssuesNoCommand(t *testing.T) {
	f := newManagerFixture(t)
	f.feed(model.NewWorkingSet()) // nothing working

	f.proposals.Send(juniorProposal())
	f.expectNoRequest(t, 150*time.Millisecond)

	r := f.reports.Subscribe(groupIDs)
	defer r.Close()
	select {
	case report := <-r.C():
		if got, ok := report.BoundsFor(2); !ok || got != (model.PowerBounds{}) {
			t.Fatalf("expected collapsed [0,0] bounds, got %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for report")
	}
}

func TestInvalidTelemetryDiscarded(t *testing.T) {
	f := newManagerFixture(t)
	f.feed(model.NewWorkingSet("bat-1", "bat-2"),
		sample("bat-1", -1500, 1500),
		sample("bat-2", -1500, 1500),
	)

	// Inverted bounds never reach the resolver, so no panic and no request.
	f.telemetry.Send(sample("bat-1", 500, -500))
	f.proposals.Send(juniorProposal())
	req := f.awaitRequest(t)
	if req.TargetPower != 2500 {
		t.Fatalf("expected request for 2500 kW, got %.2f", req.TargetPower)
	}
}

func TestMovedProposalRecomputesOldGroup(t *testing.T) {
	f := newManagerFixture(t)
	f.feed(model.NewWorkingSet("bat-1", "bat-2"),
		sample("bat-1", -1500, 1500),
		sample("bat-2", -1500, 1500),
	)

	f.proposals.Send(model.Proposal{
		SourceID:     "mover",
		Priority:     3,
		ComponentIDs: []model.ComponentID{"bat-1"},
		TargetPower:  kw(500),
		CreatedAt:    time.Now(),
	})
	req := f.awaitRequest(t)
	if req.TargetPower != 500 || len(req.ComponentIDs) != 1 {
		t.Fatalf("unexpected request %+v", req)
	}

	// The same source resubmits over a different group: the old group must
	// drop the replaced target from its report, not keep publishing it.
	f.proposals.Send(model.Proposal{
		SourceID:     "mover",
		Priority:     3,
		ComponentIDs: []model.ComponentID{"bat-2"},
		TargetPower:  kw(500),
		CreatedAt:    time.Now(),
	})
	req = f.awaitRequest(t)
	if len(req.ComponentIDs) != 1 || req.ComponentIDs[0] != "bat-2" {
		t.Fatalf("expected request for bat-2, got %+v", req)
	}

	r := f.reports.Subscribe([]model.ComponentID{"bat-1"})
	defer r.Close()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case report := <-r.C():
			if report.Target == nil {
				return
			}
		case <-deadline:
			t.Fatal("old group report still carries the moved source's target")
		}
	}
}

func TestAvailabilityChangeResendsTarget(t *testing.T) {
	f := newManagerFixture(t)
	f.feed(model.NewWorkingSet("bat-1", "bat-2"),
		sample("bat-1", -1500, 1500),
		sample("bat-2", -1500, 1500),
	)

	f.proposals.Send(model.Proposal{
		SourceID:     "site",
		Priority:     3,
		ComponentIDs: groupIDs,
		TargetPower:  kw(500),
		CreatedAt:    time.Now(),
	})
	req := f.awaitRequest(t)
	if req.TargetPower != 500 {
		t.Fatalf("expected request for 500 kW, got %.2f", req.TargetPower)
	}

	// A member drops out while the clamped target stays 500: the request
	// must be re-issued so the remaining component picks up the full share.
	f.workingSets.Send(model.NewWorkingSet("bat-1"))
	req = f.awaitRequest(t)
	if req.TargetPower != 500 {
		t.Fatalf("expected re-issued request for 500 kW, got %.2f", req.TargetPower)
	}

	// The same working set again changes nothing and sends nothing.
	f.workingSets.Send(model.NewWorkingSet("bat-1"))
	f.expectNoRequest(t, 150*time.Millisecond)
}
