// Package infra groups the technical adapters of the control plane: the
// MQTT device client and telemetry source, the Prometheus and InfluxDB
// metrics sinks, and the zerolog adapter. These packages depend only on the
// interfaces defined under core and never on each other.
package infra
