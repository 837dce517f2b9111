package gridop

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kilianp07/microgrid/config"
	"github.com/kilianp07/microgrid/infra/logger"
)

// Client polls the grid-operator API for flexibility signals.
type Client struct {
	sub      Submitter
	log      logger.Logger
	client   *http.Client
	apiURL   string
	interval time.Duration
}

// NewClient creates a new operator API client.
func NewClient(cfg config.GridClientConfig, s Submitter) *Client {
	if cfg.PollIntervalSec <= 0 {
		cfg.PollIntervalSec = 60
	}
	return &Client{
		sub:      s,
		log:      logger.New("gridop-client"),
		client:   &http.Client{Timeout: 10 * time.Second},
		apiURL:   cfg.APIURL,
		interval: time.Duration(cfg.PollIntervalSec) * time.Second,
	}
}

// Start begins the polling loop. The first poll happens immediately so a
// restarted service picks up active signals without waiting a full interval.
func (c *Client) Start(ctx context.Context) error {
	if err := c.poll(ctx); err != nil {
		c.log.Errorf("poll error: %v", err)
	}
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.poll(ctx); err != nil {
				c.log.Errorf("poll error: %v", err)
			}
		}
	}
}

func (c *Client) poll(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.log.Errorf("close response body: %v", err)
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	var signals []Signal
	if err := json.NewDecoder(resp.Body).Decode(&signals); err != nil {
		return fmt.Errorf("decode signals: %w", err)
	}
	for _, sig := range signals {
		if err := sig.Validate(); err != nil {
			c.log.Warnf("discarding signal: %v", err)
			continue
		}
		c.submit(sig)
	}
	return nil
}

func (c *Client) submit(sig Signal) {
	category, spec, err := sig.ToProposal(time.Now())
	if err != nil {
		c.log.Warnf("discarding %s signal: %v", sig.SignalType, err)
		return
	}
	if err := c.sub.SubmitProposal(category, spec); err != nil {
		c.log.Errorf("submit %s signal: %v", sig.SignalType, err)
		return
	}
	c.log.Infof("applied %s signal on the %s pool", sig.SignalType, sig.Category)
}
