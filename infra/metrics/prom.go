package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/microgrid/core/metrics"
)

// PromSink records command outcomes and power resolutions in Prometheus
// metrics.
type PromSink struct {
	commands    *prometheus.CounterVec
	resolutions *prometheus.CounterVec
	target      *prometheus.GaugeVec
	blocked     *prometheus.GaugeVec
}

// NewPromSink registers the sink metrics on the default Prometheus
// registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	commands := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "power_commands_total",
		Help: "Total number of component command outcomes",
	}, []string{"component_id", "acknowledged"})
	resolutions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "power_resolutions_total",
		Help: "Total number of power resolutions per category",
	}, []string{"category"})
	target := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "resolved_target_power_kw",
		Help: "Last resolved target power per category",
	}, []string{"category"})
	blocked := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "blocked_components",
		Help: "Number of currently blocked components per category",
	}, []string{"category"})

	s := &PromSink{commands: commands, resolutions: resolutions, target: target, blocked: blocked}
	for _, c := range []prometheus.Collector{commands, resolutions, target, blocked} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return nil, err
			}
		}
	}
	return s, nil
}

// RecordCommands increments the command counter for each outcome.
func (s *PromSink) RecordCommands(records []coremetrics.CommandRecord) error {
	for _, r := range records {
		s.commands.WithLabelValues(r.ComponentID, strconv.FormatBool(r.Acknowledged)).Inc()
	}
	return nil
}

// RecordResolution counts the recomputation and tracks the resolved target.
func (s *PromSink) RecordResolution(rec coremetrics.ResolutionRecord) error {
	s.resolutions.WithLabelValues(rec.Category).Inc()
	if rec.HasTarget {
		s.target.WithLabelValues(rec.Category).Set(rec.Target)
	}
	return nil
}

// RecordBlockedComponents sets the blocked gauge for the category.
func (s *PromSink) RecordBlockedComponents(category string, blocked int) error {
	s.blocked.WithLabelValues(category).Set(float64(blocked))
	return nil
}
