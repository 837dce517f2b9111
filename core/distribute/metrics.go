package distribute

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ackLatency      prometheus.Histogram
	commandsSent    *prometheus.CounterVec
	commandFailures *prometheus.CounterVec
	partialFailures prometheus.Counter
	ackRate         prometheus.Gauge
)

// newCollectors creates new metric collectors.
func newCollectors() (prometheus.Histogram, *prometheus.CounterVec, *prometheus.CounterVec, prometheus.Counter, prometheus.Gauge) {
	lat := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "component_command_ack_latency_seconds",
			Help:    "Latency of component commands from publish to acknowledgment",
			Buckets: prometheus.DefBuckets,
		},
	)
	sent := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "component_commands_sent_total",
			Help: "Number of power commands sent to components",
		},
		[]string{"component_id"},
	)
	failures := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "component_command_failures_total",
			Help: "Number of failed or unacknowledged component commands",
		},
		[]string{"component_id"},
	)
	partial := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "distribution_partial_failures_total",
			Help: "Number of distribution cycles that ended in partial failure",
		},
	)
	ack := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "distribution_ack_rate",
			Help: "Acknowledgment rate of the last distribution cycle",
		},
	)
	return lat, sent, failures, partial, ack
}

func init() {
	ackLatency, commandsSent, commandFailures, partialFailures, ackRate = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers distribution metrics on the provided
// registry. If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(ackLatency, commandsSent, commandFailures, partialFailures, ackRate)
}

// ResetMetrics reinitializes metric collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	ackLatency, commandsSent, commandFailures, partialFailures, ackRate = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
