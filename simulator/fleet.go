package main

import "fmt"

// GenerateFleet creates the simulated components described by the
// configuration. Batteries get ids bat-0001.., EV chargers evc-0001.. and
// PV arrays pv-0001...
func GenerateFleet(cfg Config, strat AckStrategy) []*SimulatedComponent {
	var fleet []*SimulatedComponent
	for i := 0; i < cfg.Batteries; i++ {
		c := NewSimulatedComponent(fmt.Sprintf("bat-%04d", i+1), "battery", cfg.Broker, strat)
		c.Interval = cfg.Interval
		c.Battery = &Battery{
			CapacityKWh:     cfg.CapacityKWh,
			Soc:             0.5,
			ChargeRateKW:    cfg.ChargeRateKW,
			DischargeRateKW: cfg.DischargeRateKW,
		}
		fleet = append(fleet, c)
	}
	for i := 0; i < cfg.EVChargers; i++ {
		c := NewSimulatedComponent(fmt.Sprintf("evc-%04d", i+1), "ev_charger", cfg.Broker, strat)
		c.Interval = cfg.Interval
		c.Battery = &Battery{
			CapacityKWh:     cfg.CapacityKWh,
			Soc:             0.3,
			ChargeRateKW:    cfg.ChargeRateKW,
			DischargeRateKW: 0, // chargers only draw power
		}
		fleet = append(fleet, c)
	}
	for i := 0; i < cfg.PVArrays; i++ {
		c := NewSimulatedComponent(fmt.Sprintf("pv-%04d", i+1), "pv_array", cfg.Broker, strat)
		c.Interval = cfg.Interval
		c.PVPeakKW = cfg.PVPeakKW
		fleet = append(fleet, c)
	}
	return fleet
}
