// Package status tracks which components of a pool are safe to command.
//
// Each component runs a small state machine: working components become
// blocked when their data goes stale or when the distribution layer reports a
// command failure, and return to working once the blocking timer elapses and
// fresh data is seen again. The current working set is published on a
// resend-latest broadcast channel so new subscribers always observe a
// snapshot without waiting for the next change.
package status

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/microgrid/core/logger"
	"github.com/kilianp07/microgrid/core/metrics"
	"github.com/kilianp07/microgrid/core/model"
	"github.com/kilianp07/microgrid/internal/broadcast"
)

// Config holds the tracker settings. All fields are required.
type Config struct {
	// MaxDataAge is the maximum age of the last telemetry sample before a
	// component is considered stale and blocked.
	MaxDataAge time.Duration
	// MaxBlockingDuration is how long a component stays blocked after a
	// staleness or failure event.
	MaxBlockingDuration time.Duration
}

// Validate rejects incomplete configurations. The tracker has no silent
// defaults: a zero duration is a configuration error.
func (c Config) Validate() error {
	if c.MaxDataAge <= 0 {
		return fmt.Errorf("status: max data age must be positive")
	}
	if c.MaxBlockingDuration <= 0 {
		return fmt.Errorf("status: max blocking duration must be positive")
	}
	return nil
}

// Failure reports a failed or timed-out command for a component.
type Failure struct {
	ComponentID model.ComponentID
	Reason      string
	Time        time.Time
}

// Tracker classifies each tracked component as working or blocked and
// publishes working-set snapshots. It is the only writer of component status.
type Tracker struct {
	category  model.Category
	cfg       Config
	statuses  map[model.ComponentID]*model.ComponentStatus
	telemetry *broadcast.Receiver[model.Telemetry]
	failures  *broadcast.Receiver[Failure]
	out       *broadcast.Broadcast[model.WorkingSet]
	sink      metrics.Sink
	log       logger.Logger
	now       func() time.Time

	lastPublished model.WorkingSet
	published     bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewTracker creates a tracker for the given component ids. Components not in
// the list are ignored; they stay permanently outside the working set until a
// new tracker is built from a fresh topology.
func NewTracker(
	category model.Category,
	cfg Config,
	componentIDs []model.ComponentID,
	telemetry *broadcast.Receiver[model.Telemetry],
	failures *broadcast.Receiver[Failure],
	out *broadcast.Broadcast[model.WorkingSet],
	sink metrics.Sink,
	log logger.Logger,
) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if telemetry == nil || failures == nil || out == nil {
		return nil, fmt.Errorf("status: nil channel provided to NewTracker")
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	statuses := make(map[model.ComponentID]*model.ComponentStatus, len(componentIDs))
	for _, id := range componentIDs {
		// Components start blocked until their first fresh sample.
		statuses[id] = &model.ComponentStatus{ComponentID: id, State: model.StateBlocked}
	}
	return &Tracker{
		category:  category,
		cfg:       cfg,
		statuses:  statuses,
		telemetry: telemetry,
		failures:  failures,
		out:       out,
		sink:      sink,
		log:       log,
		now:       time.Now,
		done:      make(chan struct{}),
	}, nil
}

// Start launches the tracker loop.
func (t *Tracker) Start(ctx context.Context) {
	ctx, t.cancel = context.WithCancel(ctx)
	go t.run(ctx)
}

// Stop cancels the loop and waits for it to settle.
func (t *Tracker) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
	<-t.done
}

func (t *Tracker) run(ctx context.Context) {
	defer close(t.done)

	// The sweep period is derived from the staleness window so expiry is
	// observed within one tracker cycle.
	sweep := t.cfg.MaxDataAge / 2
	if sweep < 10*time.Millisecond {
		sweep = 10 * time.Millisecond
	}
	ticker := time.NewTicker(sweep)
	defer ticker.Stop()

	t.publish(t.evaluate(t.now()))
	for {
		select {
		case <-ctx.Done():
			return
		case sample, ok := <-t.telemetry.C():
			if !ok {
				return
			}
			if st, tracked := t.statuses[sample.ComponentID]; tracked {
				st.LastDataAt = sample.Timestamp
			}
			t.publishIfChanged(t.evaluate(t.now()))
		case failure, ok := <-t.failures.C():
			if !ok {
				return
			}
			t.block(failure)
			t.publishIfChanged(t.evaluate(t.now()))
		case <-ticker.C:
			t.publishIfChanged(t.evaluate(t.now()))
		}
	}
}

// block marks the component blocked for the configured duration.
func (t *Tracker) block(f Failure) {
	st, tracked := t.statuses[f.ComponentID]
	if !tracked {
		return
	}
	now := t.now()
	st.State = model.StateBlocked
	st.BlockedUntil = now.Add(t.cfg.MaxBlockingDuration)
	t.log.Warnf("component %s blocked until %s: %s", f.ComponentID, st.BlockedUntil.Format(time.RFC3339), f.Reason)
}

// evaluate advances every component's state machine and returns the working
// set snapshot at now.
func (t *Tracker) evaluate(now time.Time) model.WorkingSet {
	ws := model.WorkingSet{Working: make(map[model.ComponentID]struct{}, len(t.statuses))}
	for id, st := range t.statuses {
		stale := st.LastDataAt.IsZero() || now.Sub(st.LastDataAt) > t.cfg.MaxDataAge
		switch st.State {
		case model.StateWorking:
			if stale {
				st.State = model.StateBlocked
				st.BlockedUntil = now.Add(t.cfg.MaxBlockingDuration)
				t.log.Warnf("component %s data stale, blocked until %s", id, st.BlockedUntil.Format(time.RFC3339))
			}
		case model.StateBlocked:
			// Recovery needs both the blocking timer elapsed and fresh data.
			// The timer is armed by events only, so a component that was
			// never blocked by one recovers on its first fresh sample.
			if !now.Before(st.BlockedUntil) && !stale {
				st.State = model.StateWorking
			}
		}
		if st.State == model.StateWorking {
			ws.Working[id] = struct{}{}
		}
	}
	return ws
}

func (t *Tracker) publish(ws model.WorkingSet) {
	t.lastPublished = ws
	t.published = true
	t.out.Send(ws)
	if br, ok := t.sink.(metrics.BlockedRecorder); ok {
		blocked := len(t.statuses) - len(ws.Working)
		if err := br.RecordBlockedComponents(t.category.String(), blocked); err != nil {
			t.log.Errorf("metrics error: %v", err)
		}
	}
}

func (t *Tracker) publishIfChanged(ws model.WorkingSet) {
	if t.published && equalSets(t.lastPublished, ws) {
		return
	}
	t.publish(ws)
}

func equalSets(a, b model.WorkingSet) bool {
	if len(a.Working) != len(b.Working) {
		return false
	}
	for id := range a.Working {
		if !b.Contains(id) {
			return false
		}
	}
	return true
}
