// Package app assembles the per-category power pools and their
// collaborators from the configuration.
package app

import (
	"context"
	"fmt"

	"github.com/kilianp07/microgrid/config"
	"github.com/kilianp07/microgrid/core/device"
	coremetrics "github.com/kilianp07/microgrid/core/metrics"
	"github.com/kilianp07/microgrid/core/model"
	"github.com/kilianp07/microgrid/core/pool"
	"github.com/kilianp07/microgrid/gridop"
	"github.com/kilianp07/microgrid/infra/logger"
	"github.com/kilianp07/microgrid/infra/metrics"
	"github.com/kilianp07/microgrid/infra/mqtt"
)

// Service orchestrates the power pools, the device client and the telemetry
// source.
type Service struct {
	Pools map[model.Category]*pool.Pool

	client    *mqtt.Client
	telemetry *mqtt.TelemetrySource
	grid      gridop.Connector
	byID      map[model.ComponentID]model.Category
	log       logger.Logger
	promAddr  string
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")
	client, err := mqtt.NewClient(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("mqtt client: %w", err)
	}
	svc, err := newService(cfg, client, logg)
	if err != nil {
		client.Disconnect()
		return nil, err
	}
	svc.client = client

	telemetryCfg := cfg.MQTT
	if telemetryCfg.ClientID != "" {
		telemetryCfg.ClientID += "-telemetry"
	}
	svc.telemetry, err = mqtt.NewTelemetrySource(telemetryCfg, "component/+/telemetry", svc.routeTelemetry)
	if err != nil {
		client.Disconnect()
		return nil, fmt.Errorf("telemetry source: %w", err)
	}
	return svc, nil
}

// NewWithClient creates a Service around an existing device client, bypassing
// MQTT. Telemetry is then fed through FeedTelemetry.
func NewWithClient(cfg *config.Config, client device.Client) (*Service, error) {
	return newService(cfg, client, logger.New("service"))
}

func newService(cfg *config.Config, client device.Client, logg logger.Logger) (*Service, error) {
	var sinks []coremetrics.Sink
	if cfg.Metrics.PrometheusAddr != "" {
		sink, err := metrics.NewPromSink()
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.Influx.URL != "" {
		in := cfg.Metrics.Influx
		sinks = append(sinks, metrics.NewInfluxSinkWithFallback(in.URL, in.Token, in.Org, in.Bucket))
	}
	var sink coremetrics.Sink = coremetrics.NopSink{}
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = metrics.NewMultiSink(sinks...)
	}

	topo := cfg.Topology.ToTopology()
	pools, err := pool.NewAll(cfg.Pool.ToPool(), topo, client, sink, logg)
	if err != nil {
		return nil, err
	}

	byID := make(map[model.ComponentID]model.Category)
	for _, category := range pool.Categories {
		for _, id := range topo.Components(category) {
			byID[id] = category
		}
	}
	svc := &Service{
		Pools:    pools,
		byID:     byID,
		log:      logg,
		promAddr: cfg.Metrics.PrometheusAddr,
	}
	if cfg.Grid.Mode != "" {
		svc.grid = gridop.NewConnector(cfg.Grid, svc)
	}
	return svc, nil
}

// routeTelemetry forwards a sample to the pool of the component's category.
// Samples for unknown components are dropped with a warning.
func (s *Service) routeTelemetry(sample model.Telemetry) {
	category, ok := s.byID[sample.ComponentID]
	if !ok {
		s.log.Warnf("telemetry for unknown component %s", sample.ComponentID)
		return
	}
	s.Pools[category].FeedTelemetry(sample)
}

// FeedTelemetry injects one sample, routed by component category.
func (s *Service) FeedTelemetry(sample model.Telemetry) { s.routeTelemetry(sample) }

// Pool returns the pool of the given category.
func (s *Service) Pool(category model.Category) *pool.Pool { return s.Pools[category] }

// SubmitProposal forwards a proposal to the pool of the given category.
func (s *Service) SubmitProposal(category model.Category, spec pool.ProposalSpec) error {
	p, ok := s.Pools[category]
	if !ok {
		return fmt.Errorf("no pool for category %s", category)
	}
	_, err := p.SubmitProposal(spec)
	return err
}

// Run starts the pools and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if err := pool.StartAll(ctx, s.Pools); err != nil {
		return err
	}
	if s.promAddr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, s.promAddr); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	if s.grid != nil {
		go func() {
			if err := s.grid.Start(ctx); err != nil {
				s.log.Errorf("grid connector: %v", err)
			}
		}()
	}
	<-ctx.Done()
	return nil
}

// Close stops the pools and releases the MQTT connections.
func (s *Service) Close() error {
	pool.StopAll(s.Pools)
	if s.telemetry != nil {
		s.telemetry.Close()
	}
	if s.client != nil {
		s.client.Disconnect()
	}
	return nil
}
