package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

func main() {
	cfg := parseFlags()
	if err := (&cfg).Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	if !cfg.Verbose {
		log.SetOutput(io.Discard)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	strat := RandomAck{Delay: cfg.AckLatency, DropRate: cfg.DropRate}
	fleet := GenerateFleet(cfg, strat)
	runFleet(ctx, fleet)
}

func parseFlags() Config {
	var cfg Config
	flag.StringVar(&cfg.Broker, "broker", "tcp://localhost:1883", "MQTT broker URL")
	flag.IntVar(&cfg.Batteries, "batteries", 1, "number of batteries")
	flag.IntVar(&cfg.EVChargers, "ev-chargers", 0, "number of EV chargers")
	flag.IntVar(&cfg.PVArrays, "pv-arrays", 0, "number of PV arrays")
	flag.DurationVar(&cfg.AckLatency, "ack-latency", 0, "ack latency")
	flag.Float64Var(&cfg.DropRate, "drop-rate", 0, "ack drop rate")
	flag.DurationVar(&cfg.Interval, "interval", 5*time.Second, "telemetry publish interval")
	flag.Float64Var(&cfg.CapacityKWh, "capacity", 40, "battery capacity kWh")
	flag.Float64Var(&cfg.ChargeRateKW, "charge-rate", 7, "charge rate kW")
	flag.Float64Var(&cfg.DischargeRateKW, "discharge-rate", 10, "discharge rate kW")
	flag.Float64Var(&cfg.PVPeakKW, "pv-peak", 8, "PV peak production kW")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "enable verbose logging")
	flag.Parse()
	return cfg
}

func runFleet(ctx context.Context, fleet []*SimulatedComponent) {
	var wg sync.WaitGroup
	for _, c := range fleet {
		wg.Add(1)
		go func(c *SimulatedComponent) {
			defer wg.Done()
			if err := c.Run(ctx); err != nil {
				log.Printf("%s: %v", c.ID, err)
			}
		}(c)
	}
	wg.Wait()
}
