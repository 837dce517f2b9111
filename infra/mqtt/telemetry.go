package mqtt

import (
	"encoding/json"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/microgrid/core/model"
	"github.com/kilianp07/microgrid/infra/logger"
)

// telemetryMessage is the wire form of a measurement sample published by a
// component on component/<id>/telemetry.
type telemetryMessage struct {
	ComponentID string  `json:"component_id"`
	LowerKW     float64 `json:"lower_kw"`
	UpperKW     float64 `json:"upper_kw"`
	SoC         float64 `json:"soc"`
	CapacityKWh float64 `json:"capacity_kwh"`
	TimestampMS int64   `json:"timestamp"`
}

// TelemetrySource subscribes to the shared telemetry topic and forwards
// decoded samples to a handler.
type TelemetrySource struct {
	cli     pahoClient
	topic   string
	qos     byte
	handler func(model.Telemetry)
	logger  logger.Logger
}

// NewTelemetrySource connects to the broker and subscribes to the telemetry
// topic, invoking handler for every decoded sample. The handler runs on the
// Paho callback goroutine and must not block.
func NewTelemetrySource(cfg Config, topic string, handler func(model.Telemetry)) (*TelemetrySource, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt_telemetry")
	s := &TelemetrySource{
		topic:   topic,
		qos:     cfg.AckQoS,
		handler: handler,
		logger:  log,
	}
	opts.OnConnect = func(cli paho.Client) {
		if token := cli.Subscribe(s.topic, s.qos, s.onSample); token.Wait() && token.Error() != nil {
			log.Errorf("telemetry subscribe error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("telemetry connection lost: %v", err)
	}

	cli := newMQTTClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	s.cli = cli
	return s, nil
}

func (s *TelemetrySource) onSample(_ paho.Client, msg paho.Message) {
	var m telemetryMessage
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		s.logger.Errorf("failed to decode telemetry: %v", err)
		return
	}
	ts := time.Now()
	if m.TimestampMS > 0 {
		ts = time.UnixMilli(m.TimestampMS)
	}
	s.handler(model.Telemetry{
		ComponentID: model.ComponentID(m.ComponentID),
		Bounds:      model.PowerBounds{Lower: m.LowerKW, Upper: m.UpperKW},
		SoC:         m.SoC,
		CapacityKWh: m.CapacityKWh,
		Timestamp:   ts,
	})
}

// Close disconnects the underlying client.
func (s *TelemetrySource) Close() {
	if s.cli != nil && s.cli.IsConnected() {
		s.cli.Disconnect(250)
	}
}
