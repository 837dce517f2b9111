// Package config loads the process configuration from a YAML or JSON file
// with optional environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/microgrid/core/model"
	"github.com/kilianp07/microgrid/core/pool"
	"github.com/kilianp07/microgrid/infra/mqtt"
)

// PoolConfig holds the core timing settings. All three values are required:
// the core refuses to guess safe staleness or blocking windows.
type PoolConfig struct {
	MaxDataAgeSec          float64 `json:"max_data_age_sec"`
	MaxBlockingDurationSec float64 `json:"max_blocking_duration_sec"`
	WaitForDataSec         float64 `json:"wait_for_data_sec"`
}

// Validate checks that every required value is present.
func (c PoolConfig) Validate() error {
	if c.MaxDataAgeSec <= 0 {
		return fmt.Errorf("config: max_data_age_sec is required")
	}
	if c.MaxBlockingDurationSec <= 0 {
		return fmt.Errorf("config: max_blocking_duration_sec is required")
	}
	if c.WaitForDataSec <= 0 {
		return fmt.Errorf("config: wait_for_data_sec is required")
	}
	return nil
}

// ToPool converts the settings to the core pool configuration.
func (c PoolConfig) ToPool() pool.Config {
	return pool.Config{
		MaxDataAge:          secondsToDuration(c.MaxDataAgeSec),
		MaxBlockingDuration: secondsToDuration(c.MaxBlockingDurationSec),
		WaitForData:         secondsToDuration(c.WaitForDataSec),
	}
}

// TopologyConfig lists the component ids per category. It stands in for the
// component graph collaborator queried at startup.
type TopologyConfig struct {
	Batteries  []string `json:"batteries"`
	EVChargers []string `json:"ev_chargers"`
	PVArrays   []string `json:"pv_arrays"`
}

// ToTopology converts the lists to a static topology.
func (c TopologyConfig) ToTopology() pool.StaticTopology {
	topo := pool.StaticTopology{}
	add := func(category model.Category, ids []string) {
		for _, id := range ids {
			topo[category] = append(topo[category], model.ComponentID(id))
		}
	}
	add(model.CategoryBattery, c.Batteries)
	add(model.CategoryEVCharger, c.EVChargers)
	add(model.CategoryPVArray, c.PVArrays)
	return topo
}

// MetricsConfig selects the metrics sinks.
type MetricsConfig struct {
	PrometheusAddr string       `json:"prometheus_addr"`
	Influx         InfluxConfig `json:"influx"`
}

// InfluxConfig holds the InfluxDB sink settings. The sink is enabled when
// URL is non-empty.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// GridConfig selects how grid-operator signals reach the service. An empty
// mode disables the connector.
type GridConfig struct {
	Mode   string           `json:"mode"`
	Client GridClientConfig `json:"client"`
	Mock   GridMockConfig   `json:"mock"`
}

// GridClientConfig holds the operator API polling settings.
type GridClientConfig struct {
	APIURL          string `json:"api_url"`
	PollIntervalSec int    `json:"poll_interval_sec"`
}

// GridMockConfig holds the local signal-injection server settings.
type GridMockConfig struct {
	Address string `json:"address"`
}

// Config is the root configuration.
type Config struct {
	MQTT     mqtt.Config    `json:"mqtt"`
	Pool     PoolConfig     `json:"pool"`
	Topology TopologyConfig `json:"topology"`
	Metrics  MetricsConfig  `json:"metrics"`
	Grid     GridConfig     `json:"grid"`
}

// Load reads and validates the configuration file. Environment variables
// prefixed with MG_ override file values, with __ separating nesting levels.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	if err := k.Load(env.Provider("MG_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "mg_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	if err := cfg.Pool.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
