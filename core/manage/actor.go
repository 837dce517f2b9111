// Package manage resolves many prioritized, possibly conflicting power
// proposals for a component group into one target plus the operating
// headroom each priority tier may use. Recomputation happens on every
// proposal change, availability change or bounds change, serialized in a
// single goroutine so no subscriber ever observes a half-applied proposal
// set.
package manage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kilianp07/microgrid/core/logger"
	"github.com/kilianp07/microgrid/core/metrics"
	"github.com/kilianp07/microgrid/core/model"
	"github.com/kilianp07/microgrid/internal/broadcast"
)

// expirySweep is how often proposal lifetimes are checked between events.
const expirySweep = 500 * time.Millisecond

// group is the per-component-group proposal table.
type group struct {
	key         string
	ids         []model.ComponentID
	proposals   map[string]model.Proposal
	lastTarget  *float64
	lastWorking string
}

// Actor is the conflict resolver. It owns the proposal tables for every
// distinct component group of its category and republishes a report after
// every recomputation.
type Actor struct {
	category    model.Category
	proposals   *broadcast.Receiver[model.Proposal]
	withdrawals *broadcast.Receiver[model.Withdrawal]
	workingSets *broadcast.Receiver[model.WorkingSet]
	telemetry   *broadcast.Receiver[model.Telemetry]
	results     *broadcast.Receiver[model.AggregateResult]
	requestsOut *broadcast.Broadcast[model.Request]
	sink        metrics.Sink
	log         logger.Logger
	now         func() time.Time

	groups  map[string]*group
	reports *ReportRegistry
	working model.WorkingSet
	samples map[model.ComponentID]model.Telemetry

	cancel context.CancelFunc
	done   chan struct{}
}

// NewActor creates a management actor for one component category.
func NewActor(
	category model.Category,
	proposals *broadcast.Receiver[model.Proposal],
	withdrawals *broadcast.Receiver[model.Withdrawal],
	workingSets *broadcast.Receiver[model.WorkingSet],
	telemetry *broadcast.Receiver[model.Telemetry],
	results *broadcast.Receiver[model.AggregateResult],
	requestsOut *broadcast.Broadcast[model.Request],
	reports *ReportRegistry,
	sink metrics.Sink,
	log logger.Logger,
) (*Actor, error) {
	if proposals == nil || withdrawals == nil || workingSets == nil || telemetry == nil || results == nil || requestsOut == nil || reports == nil {
		return nil, fmt.Errorf("manage: nil parameter provided to NewActor")
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Actor{
		category:    category,
		proposals:   proposals,
		withdrawals: withdrawals,
		workingSets: workingSets,
		telemetry:   telemetry,
		results:     results,
		requestsOut: requestsOut,
		reports:     reports,
		sink:        sink,
		log:         log,
		now:         time.Now,
		groups:      make(map[string]*group),
		working:     model.NewWorkingSet(),
		samples:     make(map[model.ComponentID]model.Telemetry),
		done:        make(chan struct{}),
	}, nil
}

// Start launches the actor loop.
func (a *Actor) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	go a.run(ctx)
}

// Stop cancels the loop and waits for it to settle.
func (a *Actor) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	<-a.done
}

func (a *Actor) run(ctx context.Context) {
	defer close(a.done)
	ticker := time.NewTicker(expirySweep)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-a.proposals.C():
			if !ok {
				return
			}
			a.accept(p)
		case w, ok := <-a.withdrawals.C():
			if !ok {
				return
			}
			a.withdraw(w.SourceID)
		case ws, ok := <-a.workingSets.C():
			if !ok {
				return
			}
			a.working = ws
			a.recomputeAll()
		case sample, ok := <-a.telemetry.C():
			if !ok {
				return
			}
			a.observe(sample)
		case res, ok := <-a.results.C():
			if !ok {
				return
			}
			if res.PartialFailure {
				a.log.Warnf("%s: %d of %d components failed to apply %.2f kW",
					a.category, len(res.Failed), len(res.Failed)+len(res.Succeeded), res.Request.TargetPower)
			}
		case <-ticker.C:
			a.expire()
		}
	}
}

// accept stores a proposal, replacing any prior one from the same source,
// and recomputes its group.
func (a *Actor) accept(p model.Proposal) {
	if err := p.Validate(); err != nil {
		a.log.Errorf("rejecting proposal from %s: %v", p.SourceID, err)
		return
	}
	// A source holds at most one active proposal, also across groups.
	touched := a.withdrawQuiet(p.SourceID)
	key := groupKey(p.ComponentIDs)
	g, ok := a.groups[key]
	if !ok {
		g = &group{key: key, ids: append([]model.ComponentID(nil), p.ComponentIDs...), proposals: make(map[string]model.Proposal)}
		a.groups[key] = g
	}
	g.proposals[p.SourceID] = p
	a.recompute(g)
	// A source moving to a new group leaves its old group changed too.
	for _, old := range touched {
		if old != g {
			a.recompute(old)
		}
	}
}

// withdraw removes the source's proposal and recomputes the affected group.
func (a *Actor) withdraw(sourceID string) {
	for _, g := range a.groups {
		if _, ok := g.proposals[sourceID]; ok {
			delete(g.proposals, sourceID)
			a.recompute(g)
			return
		}
	}
}

// withdrawQuiet removes the source's proposal without recomputing and
// returns the groups it touched; the caller recomputes them once the
// replacement has landed.
func (a *Actor) withdrawQuiet(sourceID string) []*group {
	var touched []*group
	for _, g := range a.groups {
		if _, ok := g.proposals[sourceID]; ok {
			delete(g.proposals, sourceID)
			touched = append(touched, g)
		}
	}
	return touched
}

// observe records a telemetry sample and recomputes the groups it belongs to.
func (a *Actor) observe(sample model.Telemetry) {
	if err := sample.Bounds.Validate(); err != nil {
		a.log.Errorf("discarding telemetry for %s: %v", sample.ComponentID, err)
		return
	}
	prev, known := a.samples[sample.ComponentID]
	a.samples[sample.ComponentID] = sample
	if known && prev.Bounds == sample.Bounds {
		// Only a bounds change triggers recomputation.
		return
	}
	for _, g := range a.groups {
		for _, id := range g.ids {
			if id == sample.ComponentID {
				a.recompute(g)
				break
			}
		}
	}
}

// expire drops outlived proposals and recomputes the affected groups.
func (a *Actor) expire() {
	now := a.now()
	for _, g := range a.groups {
		changed := false
		for src, p := range g.proposals {
			if p.Expired(now) {
				delete(g.proposals, src)
				changed = true
				a.log.Infof("proposal from %s expired", src)
			}
		}
		if changed {
			a.recompute(g)
		}
	}
}

func (a *Actor) recomputeAll() {
	for _, g := range a.groups {
		a.recompute(g)
	}
}

// recompute resolves one group and publishes the report and, when the target
// changed, the request for the distribution actor.
func (a *Actor) recompute(g *group) {
	now := a.now()

	var workingIDs []model.ComponentID
	envelope := model.PowerBounds{}
	for _, id := range g.ids {
		if !a.working.Contains(id) {
			continue
		}
		sample, known := a.samples[id]
		if !known {
			continue
		}
		workingIDs = append(workingIDs, id)
		envelope = envelope.Add(sample.Bounds)
	}

	active := make([]model.Proposal, 0, len(g.proposals))
	for _, p := range g.proposals {
		active = append(active, p)
	}
	res := resolve(active, envelope, now)

	report := model.Report{Target: res.target, Bounds: res.bounds, Timestamp: now}
	a.reports.publish(g.key, report)

	if rr, ok := a.sink.(metrics.ResolutionRecorder); ok {
		rec := metrics.ResolutionRecord{Category: a.category.String(), Proposals: len(active), Time: now}
		if res.target != nil {
			rec.Target = *res.target
			rec.HasTarget = true
		}
		if err := rr.RecordResolution(rec); err != nil {
			a.log.Errorf("metrics error: %v", err)
		}
	}

	if res.target == nil || len(workingIDs) == 0 {
		g.lastTarget = nil
		return
	}
	// An unchanged target is not forwarded again unless the working subset
	// changed: the remaining components must then be re-commanded with
	// their new shares.
	working := groupKey(workingIDs)
	if g.lastTarget != nil && *g.lastTarget == *res.target && g.lastWorking == working {
		return
	}
	target := *res.target
	g.lastTarget = &target
	g.lastWorking = working
	a.requestsOut.Send(model.Request{ComponentIDs: g.ids, TargetPower: target, CreatedAt: now})
}

// groupKey derives a stable identifier from the set of component ids.
func groupKey(ids []model.ComponentID) string {
	ss := make([]string, len(ids))
	for i, id := range ids {
		ss[i] = string(id)
	}
	sort.Strings(ss)
	return strings.Join(ss, ",")
}
