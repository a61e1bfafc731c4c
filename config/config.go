package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/warehousekit/dispatchd/core/availability"
	"github.com/warehousekit/dispatchd/core/breaker"
	"github.com/warehousekit/dispatchd/core/classify"
	"github.com/warehousekit/dispatchd/core/engine"
	"github.com/warehousekit/dispatchd/core/metrics"
	"github.com/warehousekit/dispatchd/core/model"
	"github.com/warehousekit/dispatchd/infra/mqtt"
	"github.com/warehousekit/dispatchd/infra/status"
	"github.com/warehousekit/dispatchd/infra/submit"
)

type Config struct {
	Groups       []GroupConfig      `json:"groups"`
	Availability AvailabilityConfig `json:"availability"`
	Classifier   ClassifierConfig   `json:"classifier"`
	Breaker      BreakerConfig      `json:"breaker"`
	Pacing       PacingConfig       `json:"pacing"`
	Engine       engine.Config      `json:"engine"`
	Submit       submit.Config      `json:"submit"`
	Status       status.Config      `json:"status"`
	Metrics      metrics.Config     `json:"metrics"`
	MQTT         mqtt.Config        `json:"mqtt"`
	Logging      LoggingConfig      `json:"logging"`
}

// GroupConfig declares one candidate group with its sampling weight and the
// pickup points tasks for this group originate from.
type GroupConfig struct {
	ID         string   `json:"id"`
	Weight     float64  `json:"weight"`
	Pickups    []string `json:"pickups"`
	Candidates []string `json:"candidates"`
}

// AvailabilityConfig tunes the status cache.
type AvailabilityConfig struct {
	PollSeconds float64 `json:"poll_seconds"`
}

// ClassifierConfig tunes response classification.
type ClassifierConfig struct {
	TargetCode int `json:"target_code"`
}

// BreakerConfig tunes the circuit breaker.
type BreakerConfig struct {
	Threshold int `json:"threshold"`
}

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
	// Optional environment overrides
	if err := k.Load(env.Provider("DISPATCHD_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "dispatchd_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	if c.Availability.PollSeconds <= 0 {
		c.Availability.PollSeconds = availability.DefaultPollInterval.Seconds()
	}
	if c.Classifier.TargetCode == 0 {
		c.Classifier.TargetCode = classify.DefaultTargetCode
	}
	if c.Breaker.Threshold <= 0 {
		c.Breaker.Threshold = breaker.DefaultThreshold
	}
	c.Pacing.SetDefaults()
	c.Engine.SetDefaults()
	c.Submit.SetDefaults()
	c.Status.SetDefaults()
	c.Metrics.SetDefaults()
	c.MQTT.SetDefaults()
	c.Logging.SetDefaults()
}

// Validate checks every section and the group topology.
func (c Config) Validate() error {
	if len(c.Groups) == 0 {
		return fmt.Errorf("at least one group is required")
	}
	seen := make(map[string]bool)
	for i, g := range c.Groups {
		if g.ID == "" {
			return fmt.Errorf("groups[%d]: id is required", i)
		}
		if seen[g.ID] {
			return fmt.Errorf("groups[%d]: duplicate group id %s", i, g.ID)
		}
		seen[g.ID] = true
		if g.Weight <= 0 {
			return fmt.Errorf("group %s: weight must be positive, got %v", g.ID, g.Weight)
		}
		if len(g.Pickups) == 0 {
			return fmt.Errorf("group %s: at least one pickup is required", g.ID)
		}
		if len(g.Candidates) == 0 {
			return fmt.Errorf("group %s: at least one candidate is required", g.ID)
		}
	}
	if err := c.Pacing.Validate(); err != nil {
		return fmt.Errorf("pacing: %w", err)
	}
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if err := c.Submit.Validate(); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	if err := c.Status.Validate(); err != nil {
		return fmt.Errorf("status: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	if err := c.MQTT.Validate(); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}

// ModelGroups converts the declared groups to the domain representation.
func (c Config) ModelGroups() []model.Group {
	groups := make([]model.Group, 0, len(c.Groups))
	for _, g := range c.Groups {
		candidates := make([]model.Candidate, 0, len(g.Candidates))
		for _, id := range g.Candidates {
			candidates = append(candidates, model.Candidate{ID: id, Group: g.ID})
		}
		groups = append(groups, model.Group{
			ID:         g.ID,
			Weight:     g.Weight,
			Pickups:    append([]string(nil), g.Pickups...),
			Candidates: candidates,
		})
	}
	return groups
}

// TotalPickups counts pickup points across all groups.
func (c Config) TotalPickups() int {
	n := 0
	for _, g := range c.Groups {
		n += len(g.Pickups)
	}
	return n
}
