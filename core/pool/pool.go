// Package pool wires one availability tracker, one management actor and one
// distribution actor per component category and exposes proposal submission
// and bounds/status streams to application actors.
package pool

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/microgrid/core/device"
	"github.com/kilianp07/microgrid/core/distribute"
	"github.com/kilianp07/microgrid/core/logger"
	"github.com/kilianp07/microgrid/core/manage"
	"github.com/kilianp07/microgrid/core/metrics"
	"github.com/kilianp07/microgrid/core/model"
	"github.com/kilianp07/microgrid/core/status"
	"github.com/kilianp07/microgrid/internal/broadcast"
)

// Topology is the component graph collaborator. It is queried once at
// startup for the ids of each category.
type Topology interface {
	Components(category model.Category) []model.ComponentID
}

// Config holds the pool timing settings. All fields are required; there are
// no silent defaults in the core.
type Config struct {
	MaxDataAge          time.Duration
	MaxBlockingDuration time.Duration
	WaitForData         time.Duration
}

// Validate rejects incomplete configurations.
func (c Config) Validate() error {
	if c.MaxDataAge <= 0 {
		return fmt.Errorf("pool: max data age must be positive")
	}
	if c.MaxBlockingDuration <= 0 {
		return fmt.Errorf("pool: max blocking duration must be positive")
	}
	if c.WaitForData <= 0 {
		return fmt.Errorf("pool: wait for data must be positive")
	}
	return nil
}

// Pool owns the actor pair of one component category plus the broadcast
// channels connecting them.
type Pool struct {
	category model.Category
	ids      []model.ComponentID
	log      logger.Logger

	statusChannel     *broadcast.Broadcast[model.WorkingSet]
	telemetryChannel  *broadcast.Broadcast[model.Telemetry]
	proposalChannel   *broadcast.Broadcast[model.Proposal]
	withdrawalChannel *broadcast.Broadcast[model.Withdrawal]
	requestChannel    *broadcast.Broadcast[model.Request]
	resultChannel     *broadcast.Broadcast[model.AggregateResult]
	failureChannel    *broadcast.Broadcast[status.Failure]
	reports           *manage.ReportRegistry

	tracker     *status.Tracker
	manager     *manage.Actor
	distributor *distribute.Actor

	started bool
}

// New builds the pool for one category. When the topology has no components
// of the category the pool is created inert: Start logs a warning and the
// actors are never launched, which is not fatal to the rest of the process.
func New(
	category model.Category,
	cfg Config,
	topo Topology,
	client device.Client,
	sink metrics.Sink,
	log logger.Logger,
) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if topo == nil || client == nil {
		return nil, fmt.Errorf("pool: nil parameter provided to New")
	}

	name := category.String()
	p := &Pool{
		category:          category,
		ids:               topo.Components(category),
		log:               log,
		statusChannel:     broadcast.New[model.WorkingSet](name+":status", broadcast.WithResendLatest()),
		telemetryChannel:  broadcast.New[model.Telemetry](name + ":telemetry"),
		proposalChannel:   broadcast.New[model.Proposal](name + ":proposals"),
		withdrawalChannel: broadcast.New[model.Withdrawal](name + ":withdrawals"),
		requestChannel:    broadcast.New[model.Request](name + ":requests"),
		resultChannel:     broadcast.New[model.AggregateResult](name + ":results"),
		failureChannel:    broadcast.New[status.Failure](name + ":failures"),
		reports:           manage.NewReportRegistry(),
	}
	if len(p.ids) == 0 {
		return p, nil
	}

	var err error
	p.tracker, err = status.NewTracker(
		category,
		status.Config{MaxDataAge: cfg.MaxDataAge, MaxBlockingDuration: cfg.MaxBlockingDuration},
		p.ids,
		p.telemetryChannel.NewReceiver(),
		p.failureChannel.NewReceiver(),
		p.statusChannel,
		sink,
		log,
	)
	if err != nil {
		return nil, err
	}
	p.distributor, err = distribute.NewActor(
		distribute.Config{WaitForData: cfg.WaitForData},
		client,
		p.requestChannel.NewReceiver(),
		p.resultChannel,
		p.statusChannel.NewReceiver(),
		p.telemetryChannel.NewReceiver(),
		p.failureChannel,
		sink,
		log,
	)
	if err != nil {
		return nil, err
	}
	p.manager, err = manage.NewActor(
		category,
		p.proposalChannel.NewReceiver(),
		p.withdrawalChannel.NewReceiver(),
		p.statusChannel.NewReceiver(),
		p.telemetryChannel.NewReceiver(),
		p.resultChannel.NewReceiver(),
		p.requestChannel,
		p.reports,
		sink,
		log,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Category returns the component category this pool manages.
func (p *Pool) Category() model.Category { return p.category }

// ComponentIDs returns the ids the pool was built with.
func (p *Pool) ComponentIDs() []model.ComponentID {
	return append([]model.ComponentID(nil), p.ids...)
}

// Started reports whether the actors are running.
func (p *Pool) Started() bool { return p.started }

// Start launches the tracker, distribution and management actors. A pool
// over an empty category stays inert.
func (p *Pool) Start(ctx context.Context) error {
	if p.started {
		return nil
	}
	if len(p.ids) == 0 {
		p.log.Warnf("no %s found in the topology, the pool will not be started", p.category)
		return nil
	}
	p.tracker.Start(ctx)
	p.distributor.Start(ctx)
	p.manager.Start(ctx)
	p.started = true
	return nil
}

// Stop stops the actors in reverse dependency order and releases the
// channels. It waits for in-flight device calls to resolve or time out.
func (p *Pool) Stop() error {
	if p.started {
		p.distributor.Stop()
		p.manager.Stop()
		p.tracker.Stop()
		p.started = false
	}
	p.proposalChannel.Close()
	p.withdrawalChannel.Close()
	p.requestChannel.Close()
	p.resultChannel.Close()
	p.telemetryChannel.Close()
	p.failureChannel.Close()
	p.statusChannel.Close()
	p.reports.Close()
	return nil
}

// ProposalSpec is the caller-facing shape of a proposal submission.
type ProposalSpec struct {
	SourceID        string // optional, generated when empty
	Priority        int
	ComponentIDs    []model.ComponentID // optional, defaults to the whole pool
	TargetPower     *float64
	Bounds          *model.PowerBounds
	InShiftingGroup bool
	Lifetime        time.Duration
}

// SubmitProposal validates and submits a proposal, returning a handle that
// can renew or withdraw it.
func (p *Pool) SubmitProposal(spec ProposalSpec) (*ProposalHandle, error) {
	if spec.SourceID == "" {
		spec.SourceID = uuid.NewString()
	}
	if len(spec.ComponentIDs) == 0 {
		spec.ComponentIDs = p.ComponentIDs()
	}
	proposal := model.Proposal{
		SourceID:        spec.SourceID,
		Priority:        spec.Priority,
		ComponentIDs:    spec.ComponentIDs,
		TargetPower:     spec.TargetPower,
		Bounds:          spec.Bounds,
		InShiftingGroup: spec.InShiftingGroup,
		CreatedAt:       time.Now(),
		Lifetime:        spec.Lifetime,
	}
	if err := proposal.Validate(); err != nil {
		return nil, err
	}
	p.proposalChannel.Send(proposal)
	return &ProposalHandle{pool: p, proposal: proposal}, nil
}

// SubscribeBounds returns a stream of reports for the given component group.
// New subscribers receive the latest report immediately.
func (p *Pool) SubscribeBounds(ids []model.ComponentID) *broadcast.Receiver[model.Report] {
	if len(ids) == 0 {
		ids = p.ids
	}
	return p.reports.Subscribe(ids)
}

// SubscribeStatus returns a stream of working-set snapshots.
func (p *Pool) SubscribeStatus() *broadcast.Receiver[model.WorkingSet] {
	return p.statusChannel.NewReceiver()
}

// FeedTelemetry injects one measurement sample from the measurement
// collaborator.
func (p *Pool) FeedTelemetry(sample model.Telemetry) {
	p.telemetryChannel.Send(sample)
}

// ProposalHandle allows a caller to renew or withdraw its proposal.
type ProposalHandle struct {
	pool     *Pool
	proposal model.Proposal
}

// SourceID returns the proposal's source identifier.
func (h *ProposalHandle) SourceID() string { return h.proposal.SourceID }

// Renew resubmits the proposal with a fresh creation time, restarting its
// lifetime.
func (h *ProposalHandle) Renew() {
	h.proposal.CreatedAt = time.Now()
	h.pool.proposalChannel.Send(h.proposal)
}

// Withdraw removes the proposal before its lifetime expires.
func (h *ProposalHandle) Withdraw() {
	h.pool.withdrawalChannel.Send(model.Withdrawal{SourceID: h.proposal.SourceID})
}
