package pool

import (
	"context"
	"fmt"

	"github.com/kilianp07/microgrid/core/device"
	"github.com/kilianp07/microgrid/core/logger"
	"github.com/kilianp07/microgrid/core/metrics"
	"github.com/kilianp07/microgrid/core/model"
)

// Categories is the closed set of component categories a site can manage.
// Pools are constructed for each once at startup; there is no dynamic
// registration.
var Categories = []model.Category{
	model.CategoryBattery,
	model.CategoryEVCharger,
	model.CategoryPVArray,
}

// ParseCategory resolves a category name such as "battery" or "ev_charger".
func ParseCategory(name string) (model.Category, error) {
	for _, c := range Categories {
		if c.String() == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown category %q", name)
}

// NewAll builds one pool per category from the same topology and device
// client. Categories without components yield inert pools, which is logged
// at Start and not fatal.
func NewAll(
	cfg Config,
	topo Topology,
	client device.Client,
	sink metrics.Sink,
	log logger.Logger,
) (map[model.Category]*Pool, error) {
	pools := make(map[model.Category]*Pool, len(Categories))
	for _, category := range Categories {
		p, err := New(category, cfg, topo, client, sink, log)
		if err != nil {
			return nil, err
		}
		pools[category] = p
	}
	return pools, nil
}

// StartAll starts every pool. Individual empty categories only warn.
func StartAll(ctx context.Context, pools map[model.Category]*Pool) error {
	for _, p := range pools {
		if err := p.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// StopAll stops every pool.
func StopAll(pools map[model.Category]*Pool) {
	for _, p := range pools {
		_ = p.Stop()
	}
}

// StaticTopology is a Topology backed by a fixed map, used by the simulator
// and in tests.
type StaticTopology map[model.Category][]model.ComponentID

// Components returns the ids of the given category.
func (t StaticTopology) Components(category model.Category) []model.ComponentID {
	return append([]model.ComponentID(nil), t[category]...)
}
