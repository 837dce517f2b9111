package main

import (
	"fmt"
	"time"
)

// Config holds parameters for the simulator.
type Config struct {
	Broker          string
	Batteries       int
	EVChargers      int
	PVArrays        int
	AckLatency      time.Duration
	DropRate        float64
	Interval        time.Duration
	CapacityKWh     float64
	ChargeRateKW    float64
	DischargeRateKW float64
	PVPeakKW        float64
	Verbose         bool
}

// Validate rejects configurations that would simulate nothing.
func (c *Config) Validate() error {
	if c.Batteries+c.EVChargers+c.PVArrays <= 0 {
		return fmt.Errorf("at least one component is required")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	if c.DropRate < 0 || c.DropRate > 1 {
		return fmt.Errorf("drop rate must be within [0,1]")
	}
	return nil
}
