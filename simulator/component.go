package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// SimulatedComponent connects to MQTT, acknowledges power commands and
// periodically publishes its telemetry.
type SimulatedComponent struct {
	ID       string
	Category string
	Broker   string
	Strategy AckStrategy
	Interval time.Duration

	// Battery is set for batteries and EV chargers; PV arrays produce a
	// daylight-shaped bound instead.
	Battery  *Battery
	PVPeakKW float64

	client paho.Client
	ackCh  chan string

	mu       sync.Mutex
	setpoint float64
}

// NewSimulatedComponent creates a new component.
func NewSimulatedComponent(id, category, broker string, strat AckStrategy) *SimulatedComponent {
	return &SimulatedComponent{
		ID:       id,
		Category: category,
		Broker:   broker,
		Strategy: strat,
		ackCh:    make(chan string, 50),
	}
}

// Run connects to the broker and serves commands until ctx is done.
func (c *SimulatedComponent) Run(ctx context.Context) error {
	cli, err := mqttClientFactory(c.Broker, "sim-"+c.ID)
	if err != nil {
		return err
	}
	c.client = cli
	for i := 0; i < 5; i++ {
		go c.worker(ctx)
	}
	topic := fmt.Sprintf("component/%s/command", c.ID)
	if token := cli.Subscribe(topic, 0, c.onCommand); token.Wait() && token.Error() != nil {
		cli.Disconnect(250)
		return token.Error()
	}

	ticker := time.NewTicker(c.Interval)
	defer ticker.Stop()
	c.publishTelemetry()
	for {
		select {
		case <-ticker.C:
			c.applySetpoint(c.Interval)
			c.publishTelemetry()
		case <-ctx.Done():
			close(c.ackCh)
			cli.Disconnect(250)
			return nil
		}
	}
}

func (c *SimulatedComponent) onCommand(_ paho.Client, msg paho.Message) {
	var m struct {
		CommandID string  `json:"command_id"`
		PowerKW   float64 `json:"power_kw"`
	}
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		log.Printf("%s: decode command: %v", c.ID, err)
		return
	}
	c.mu.Lock()
	c.setpoint = m.PowerKW
	c.mu.Unlock()
	select {
	case c.ackCh <- m.CommandID:
	default:
		log.Printf("%s: ack queue full, dropping command %s", c.ID, m.CommandID)
	}
}

func (c *SimulatedComponent) worker(ctx context.Context) {
	for {
		select {
		case cmdID, ok := <-c.ackCh:
			if !ok {
				return
			}
			c.Strategy.Ack(ctx, c.client, c.ID, cmdID)
		case <-ctx.Done():
			return
		}
	}
}

func (c *SimulatedComponent) applySetpoint(dt time.Duration) {
	if c.Battery == nil {
		return
	}
	c.mu.Lock()
	sp := c.setpoint
	c.mu.Unlock()
	c.Battery.ApplyPower(sp, dt)
}

func (c *SimulatedComponent) publishTelemetry() {
	var soc, lower, upper float64
	if c.Battery != nil {
		soc, lower, upper = c.Battery.State()
	} else {
		lower = -c.pvProduction(time.Now())
	}
	var capacity float64
	if c.Battery != nil {
		capacity = c.Battery.CapacityKWh
	}
	payload, err := json.Marshal(struct {
		ComponentID string  `json:"component_id"`
		LowerKW     float64 `json:"lower_kw"`
		UpperKW     float64 `json:"upper_kw"`
		SoC         float64 `json:"soc"`
		CapacityKWh float64 `json:"capacity_kwh"`
		TimestampMS int64   `json:"timestamp"`
	}{
		ComponentID: c.ID,
		LowerKW:     lower,
		UpperKW:     upper,
		SoC:         soc,
		CapacityKWh: capacity,
		TimestampMS: time.Now().UnixMilli(),
	})
	if err != nil {
		log.Printf("%s: marshal telemetry: %v", c.ID, err)
		return
	}
	topic := fmt.Sprintf("component/%s/telemetry", c.ID)
	token := c.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		log.Printf("%s: telemetry publish timeout", c.ID)
		return
	}
	if err := token.Error(); err != nil {
		log.Printf("%s: publish telemetry error: %v", c.ID, err)
	}
}

// pvProduction approximates a solar curve peaking at noon.
func (c *SimulatedComponent) pvProduction(now time.Time) float64 {
	hour := float64(now.Hour()) + float64(now.Minute())/60
	if hour < 6 || hour > 20 {
		return 0
	}
	return c.PVPeakKW * math.Sin((hour-6)/14*math.Pi)
}
