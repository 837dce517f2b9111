// Package mqtt implements the device command client over an MQTT broker.
// Commands are published to a per-component topic and acknowledgments are
// correlated back through a shared ack topic.
package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/microgrid/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker      string      `json:"broker"`
	ClientID    string      `json:"client_id"`
	Username    string      `json:"username"`
	Password    string      `json:"password"`
	AckTopic    string      `json:"ack_topic"`
	UseTLS      bool        `json:"use_tls"`
	ClientCert  string      `json:"client_cert"`
	ClientKey   string      `json:"client_key"`
	CABundle    string      `json:"ca_bundle"`
	CommandQoS  byte        `json:"command_qos"`
	AckQoS      byte        `json:"ack_qos"`
	MaxRetries  int         `json:"max_retries"`
	BackoffMS   int         `json:"backoff_ms"`
	TLSConfig   *tls.Config `json:"-"`
}

// pahoClient is the subset of the Paho API the client uses; it is swapped in
// tests.
type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// Client implements device.Client using Eclipse Paho.
type Client struct {
	cli        pahoClient
	ackTopic   string
	commandQoS byte
	ackQoS     byte
	maxRetries int
	backoff    time.Duration
	logger     logger.Logger

	mu       sync.Mutex
	ackChans map[string]chan struct{}
}

// NewClient connects to the MQTT broker and subscribes to the ack topic.
func NewClient(cfg Config) (*Client, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt_client")
	c := &Client{
		ackTopic:   cfg.AckTopic,
		commandQoS: cfg.CommandQoS,
		ackQoS:     cfg.AckQoS,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
		logger:     log,
		ackChans:   make(map[string]chan struct{}),
	}
	if c.maxRetries <= 0 {
		c.maxRetries = 3
	}
	if c.backoff <= 0 {
		c.backoff = 100 * time.Millisecond
	}

	opts.OnConnect = func(cli paho.Client) {
		log.Infof("MQTT connected")
		if token := cli.Subscribe(c.ackTopic, c.ackQoS, c.onAck); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}

	cli := newMQTTClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	c.cli = cli
	return c, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

func (c *Client) onAck(_ paho.Client, msg paho.Message) {
	var m struct {
		CommandID string `json:"command_id"`
	}
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		c.logger.Errorf("failed to decode ack: %v", err)
		return
	}
	c.mu.Lock()
	if ch, ok := c.ackChans[m.CommandID]; ok {
		select {
		case ch <- struct{}{}:
		default:
		}
		c.logger.Debugf("received ack %s", m.CommandID)
	}
	c.mu.Unlock()
}

// SendCommand publishes a power setpoint to the component topic and returns
// the command identifier used for acknowledgment tracking.
func (c *Client) SendCommand(componentID string, powerKW float64) (string, error) {
	cmdID := uuid.NewString()
	command := struct {
		CommandID   string  `json:"command_id"`
		ComponentID string  `json:"component_id"`
		PowerKW     float64 `json:"power_kw"`
		Timestamp   int64   `json:"timestamp"`
	}{
		CommandID:   cmdID,
		ComponentID: componentID,
		PowerKW:     powerKW,
		Timestamp:   time.Now().UnixMilli(),
	}
	payload, err := json.Marshal(command)
	if err != nil {
		return "", err
	}

	// Register before publishing: a fast component may ack while Publish
	// is still in flight.
	c.mu.Lock()
	c.ackChans[cmdID] = make(chan struct{}, 1)
	c.mu.Unlock()

	topic := fmt.Sprintf("component/%s/command", componentID)
	var publishErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		token := c.cli.Publish(topic, c.commandQoS, false, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			c.logger.Debugf("sent command %s to %s", cmdID, topic)
			break
		}
		c.logger.Errorf("publish attempt %d failed: %v", attempt+1, publishErr)
		time.Sleep(c.backoff * time.Duration(1<<attempt))
	}
	if publishErr != nil {
		c.forget(cmdID)
		return "", publishErr
	}
	return cmdID, nil
}

// ErrAckTimeout indicates the component did not acknowledge in time.
var ErrAckTimeout = fmt.Errorf("ack timeout")

// WaitForAck blocks until an ack for the given command id arrives or the
// timeout expires.
func (c *Client) WaitForAck(commandID string, timeout time.Duration) (bool, error) {
	c.mu.Lock()
	ch := c.ackChans[commandID]
	c.mu.Unlock()
	if ch == nil {
		return false, fmt.Errorf("unknown command %s", commandID)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		c.forget(commandID)
		return true, nil
	case <-timer.C:
		c.forget(commandID)
		return false, ErrAckTimeout
	}
}

func (c *Client) forget(commandID string) {
	c.mu.Lock()
	delete(c.ackChans, commandID)
	c.mu.Unlock()
}

// Disconnect gracefully closes the MQTT connection.
func (c *Client) Disconnect() {
	if c.cli != nil && c.cli.IsConnected() {
		c.cli.Disconnect(250)
	}
}
