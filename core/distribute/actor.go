// Package distribute turns resolved power targets for a component group into
// per-component commands. Power is split across the working components in
// proportion to their capacity, SoC-balanced for batteries, and the outcome
// of every command feeds back into the availability tracker.
package distribute

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/kilianp07/microgrid/core/device"
	"github.com/kilianp07/microgrid/core/logger"
	"github.com/kilianp07/microgrid/core/metrics"
	"github.com/kilianp07/microgrid/core/model"
	"github.com/kilianp07/microgrid/core/status"
	"github.com/kilianp07/microgrid/internal/broadcast"
)

// ErrCommandFailed marks a device command that was not applied, either
// rejected by the transport or never acknowledged. Results wrap it so
// callers can test with errors.Is.
var ErrCommandFailed = errors.New("distribute: command failed")

// Config holds the distribution actor settings. All fields are required.
type Config struct {
	// WaitForData is the maximum time to wait for a component acknowledgment.
	WaitForData time.Duration
}

// Validate rejects incomplete configurations.
func (c Config) Validate() error {
	if c.WaitForData <= 0 {
		return fmt.Errorf("distribute: wait for data must be positive")
	}
	return nil
}

// Actor consumes resolved requests and issues one command per working
// component. Failing or timed-out components are reported to the tracker and
// their share is reallocated once over the remaining components; an
// unsatisfiable request ends in a partial-failure aggregate instead of
// retrying indefinitely.
type Actor struct {
	cfg         Config
	client      device.Client
	requests    *broadcast.Receiver[model.Request]
	results     *broadcast.Broadcast[model.AggregateResult]
	workingSets *broadcast.Receiver[model.WorkingSet]
	telemetry   *broadcast.Receiver[model.Telemetry]
	failures    *broadcast.Broadcast[status.Failure]
	sink        metrics.Sink
	log         logger.Logger

	working model.WorkingSet
	samples map[model.ComponentID]model.Telemetry

	cancel context.CancelFunc
	done   chan struct{}
}

// NewActor creates a distribution actor.
func NewActor(
	cfg Config,
	client device.Client,
	requests *broadcast.Receiver[model.Request],
	results *broadcast.Broadcast[model.AggregateResult],
	workingSets *broadcast.Receiver[model.WorkingSet],
	telemetry *broadcast.Receiver[model.Telemetry],
	failures *broadcast.Broadcast[status.Failure],
	sink metrics.Sink,
	log logger.Logger,
) (*Actor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil || requests == nil || results == nil || workingSets == nil || telemetry == nil || failures == nil {
		return nil, fmt.Errorf("distribute: nil parameter provided to NewActor")
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Actor{
		cfg:         cfg,
		client:      client,
		requests:    requests,
		results:     results,
		workingSets: workingSets,
		telemetry:   telemetry,
		failures:    failures,
		sink:        sink,
		log:         log,
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

// Stop cancels the loop and waits for the in-flight request to settle.
func (a *Actor) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	<-a.done
}

func (a *Actor) run(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			return
		case ws, ok := <-a.workingSets.C():
			if !ok {
				return
			}
			a.working = ws
		case sample, ok := <-a.telemetry.C():
			if !ok {
				return
			}
			a.samples[sample.ComponentID] = sample
		case req, ok := <-a.requests.C():
			if !ok {
				return
			}
			a.handle(req)
		}
	}
}

// handle distributes one request across the working subset of its group.
func (a *Actor) handle(req model.Request) {
	sign := 1.0
	if req.TargetPower < 0 {
		sign = -1
	}

	var usable []model.ComponentID
	for _, id := range req.ComponentIDs {
		if !a.working.Contains(id) {
			continue
		}
		if _, known := a.samples[id]; !known {
			// Unknown bounds, the component cannot be commanded safely.
			continue
		}
		usable = append(usable, id)
	}

	list := buildCandidates(usable, a.samples, sign)
	if len(list) == 0 {
		if req.TargetPower != 0 {
			a.log.Warnf("no working components for %.2f kW request over %d components", req.TargetPower, len(req.ComponentIDs))
		}
		a.results.Send(model.AggregateResult{Request: req, PartialFailure: req.TargetPower != 0})
		return
	}

	assignments, err := allocateExact(list, req.TargetPower)
	if err != nil {
		a.log.Debugf("exact split unavailable (%v), using proportional allocation", err)
		assignments = allocate(list, req.TargetPower)
	} else {
		// The exact split also honours each component's own bounds.
		for _, c := range list {
			assignments[c.id] = c.bounds.Clamp(assignments[c.id])
		}
	}

	outcomes := a.sendAll(assignments)
	outcomes = a.redistribute(req, list, assignments, outcomes, sign)

	agg := model.AggregateResult{Request: req}
	var acked int
	for _, res := range outcomes {
		if res.Succeeded() {
			agg.Succeeded = append(agg.Succeeded, res)
			acked++
		} else {
			agg.Failed = append(agg.Failed, res)
		}
	}
	agg.PartialFailure = len(agg.Failed) > 0
	if agg.PartialFailure {
		partialFailures.Inc()
	}
	if len(outcomes) > 0 {
		ackRate.Set(float64(acked) / float64(len(outcomes)))
	}
	a.results.Send(agg)
	a.record(outcomes)
}

// sendAll publishes the commands concurrently and collects per-component
// outcomes. Failures are reported to the tracker.
func (a *Actor) sendAll(assignments map[model.ComponentID]float64) map[model.ComponentID]model.Result {
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	outcomes := make(map[model.ComponentID]model.Result, len(assignments))
	for id, power := range assignments {
		wg.Add(1)
		go func(id model.ComponentID, power float64) {
			defer wg.Done()
			ack, latency, err := a.sendAndWait(id, power)
			if err == nil && !ack {
				err = fmt.Errorf("component %s did not acknowledge within %s", id, a.cfg.WaitForData)
			}
			if err != nil {
				err = fmt.Errorf("%w: %v", ErrCommandFailed, err)
			}
			mu.Lock()
			outcomes[id] = model.Result{ComponentID: id, Applied: power, Err: err}
			mu.Unlock()
			ackLatency.Observe(latency.Seconds())
			if err != nil {
				a.failures.Send(status.Failure{ComponentID: id, Reason: err.Error(), Time: time.Now()})
			}
		}(id, power)
	}
	wg.Wait()
	return outcomes
}

// sendAndWait sends the command and waits for the acknowledgment while
// measuring the latency.
func (a *Actor) sendAndWait(id model.ComponentID, power float64) (bool, time.Duration, error) {
	start := time.Now()
	cmdID, err := a.client.SendCommand(string(id), power)
	if err != nil {
		commandFailures.WithLabelValues(string(id)).Inc()
		return false, time.Since(start), err
	}
	commandsSent.WithLabelValues(string(id)).Inc()
	ack, err := a.client.WaitForAck(cmdID, a.cfg.WaitForData)
	if err != nil || !ack {
		commandFailures.WithLabelValues(string(id)).Inc()
	}
	return ack, time.Since(start), err
}

// redistribute runs one bounded fallback round: the share lost to failed
// components is spread over the remaining capacity of the acknowledged ones,
// which then receive an updated setpoint.
func (a *Actor) redistribute(req model.Request, list []candidate, assignments map[model.ComponentID]float64, outcomes map[model.ComponentID]model.Result, sign float64) map[model.ComponentID]model.Result {
	var residual float64
	for id, res := range outcomes {
		if !res.Succeeded() {
			residual += math.Abs(assignments[id])
		}
	}
	if residual == 0 {
		return outcomes
	}

	var leftover []candidate
	for _, c := range list {
		res, sent := outcomes[c.id]
		if !sent || !res.Succeeded() {
			continue
		}
		c.capacity -= math.Abs(assignments[c.id])
		if c.capacity > 1e-9 {
			leftover = append(leftover, c)
		}
	}
	if len(leftover) == 0 {
		a.log.Warnf("%.2f kW lost to failed components could not be reallocated", residual)
		return outcomes
	}

	before := make(map[model.ComponentID]float64, len(assignments))
	for id, p := range assignments {
		before[id] = p
	}
	unplaced := reallocate(leftover, assignments, residual, sign)
	if unplaced > 1e-9 {
		a.log.Warnf("fallback: %.2f kW of %.2f kW could not be reallocated", unplaced, residual)
	} else {
		a.log.Infof("fallback: reallocated %.2f kW after %d failures", residual, len(outcomes)-len(leftover))
	}

	updated := make(map[model.ComponentID]float64)
	for id, p := range assignments {
		if p != before[id] {
			updated[id] = p
		}
	}
	for id, res := range a.sendAll(updated) {
		outcomes[id] = res
	}
	return outcomes
}

// record forwards per-command outcomes to the configured metrics sink.
func (a *Actor) record(outcomes map[model.ComponentID]model.Result) {
	records := make([]metrics.CommandRecord, 0, len(outcomes))
	now := time.Now()
	for _, res := range outcomes {
		rec := metrics.CommandRecord{
			ComponentID:  string(res.ComponentID),
			PowerKW:      res.Applied,
			Acknowledged: res.Succeeded(),
			Time:         now,
		}
		if res.Err != nil {
			rec.Error = res.Err.Error()
		}
		records = append(records, rec)
	}
	if err := a.sink.RecordCommands(records); err != nil {
		a.log.Errorf("metrics error: %v", err)
	}
}
