// Package gridop integrates grid-operator flexibility signals. Signals
// arrive either by polling the operator API or through a local mock server
// and are translated into senior proposals on the category pools.
package gridop

import (
	"context"
	"strings"

	"github.com/kilianp07/microgrid/config"
	"github.com/kilianp07/microgrid/core/model"
	"github.com/kilianp07/microgrid/core/pool"
)

// Submitter is the subset of the service used by connectors.
type Submitter interface {
	SubmitProposal(category model.Category, spec pool.ProposalSpec) error
}

// Connector defines the behavior of a connector receiving operator signals.
type Connector interface {
	Start(ctx context.Context) error
}

// NewConnector creates a connector depending on cfg.Mode ("client" or "mock").
func NewConnector(cfg config.GridConfig, s Submitter) Connector {
	switch strings.ToLower(cfg.Mode) {
	case "mock":
		return NewServerMock(cfg.Mock, s)
	default:
		return NewClient(cfg.Client, s)
	}
}
