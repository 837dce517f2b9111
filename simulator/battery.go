package main

import (
	"math"
	"sync"
	"time"
)

// Battery models a storage unit with charge/discharge limits. The passive
// sign convention is used throughout: positive power charges the battery,
// negative power discharges it.
type Battery struct {
	CapacityKWh     float64 // total capacity
	Soc             float64 // state of charge [0,1]
	ChargeRateKW    float64 // maximum charging power
	DischargeRateKW float64 // maximum discharging power
	mu              sync.Mutex
}

// ApplyPower updates the SoC according to the requested power and duration.
// It returns the actual power applied after enforcing limits.
func (b *Battery) ApplyPower(powerKW float64, dt time.Duration) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	hours := dt.Hours()
	if hours <= 0 || b.CapacityKWh <= 0 {
		return 0
	}

	actual := powerKW
	if powerKW > 0 { // charge
		if powerKW > b.ChargeRateKW {
			actual = b.ChargeRateKW
		}
		avail := (1 - b.Soc) * b.CapacityKWh
		needed := actual * hours
		if needed > avail {
			needed = avail
			actual = needed / hours
		}
		b.Soc += needed / b.CapacityKWh
	} else if powerKW < 0 { // discharge
		p := math.Abs(powerKW)
		if p > b.DischargeRateKW {
			p = b.DischargeRateKW
		}
		maxEnergy := b.Soc * b.CapacityKWh
		needed := p * hours
		if needed > maxEnergy {
			needed = maxEnergy
			p = needed / hours
		}
		b.Soc -= needed / b.CapacityKWh
		actual = -p
	}

	if b.Soc < 0 {
		b.Soc = 0
	}
	if b.Soc > 1 {
		b.Soc = 1
	}
	return actual
}

// State returns the current state of charge and the power bounds the battery
// can honor right now.
func (b *Battery) State() (soc, lowerKW, upperKW float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	lower := -b.DischargeRateKW
	if b.Soc <= 0 {
		lower = 0
	}
	upper := b.ChargeRateKW
	if b.Soc >= 1 {
		upper = 0
	}
	return b.Soc, lower, upper
}
