package status

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/warehousekit/dispatchd/core/availability"
	"github.com/warehousekit/dispatchd/infra/logger"
)

// Config defines the resource-status endpoint parameters.
type Config struct {
	Protocol       string  `json:"protocol"`
	Host           string  `json:"host"`
	Port           int     `json:"port"`
	Path           string  `json:"path"`
	TimeoutSeconds float64 `json:"timeout_seconds"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Protocol == "" {
		c.Protocol = "http"
	}
	if c.Path == "" {
		c.Path = "/location_manage_server/locations/status/"
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 5
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be in 1..65535, got %d", c.Port)
	}
	return nil
}

// Source fetches the latest per-candidate status over HTTP. It implements
// availability.StatusSource.
type Source struct {
	cfg  Config
	http *http.Client
	log  logger.Logger
}

// NewSource creates a status source from the configuration.
func NewSource(cfg Config, log logger.Logger) *Source {
	return &Source{
		cfg:  cfg,
		http: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds * float64(time.Second))},
		log:  log,
	}
}

// statusResponse tolerates both a bare map and a wrapped statuses object.
type statusResponse struct {
	Statuses map[string]string `json:"statuses"`
}

// FetchStatuses POSTs the candidate ids and returns id->status. Ids absent
// from the response are unknown and not blocking; an empty result is
// reported as ErrNoData so the cache keeps its snapshot.
func (s *Source) FetchStatuses(ctx context.Context, ids []string) (map[string]string, error) {
	body, err := json.Marshal(map[string][]string{"ids": ids})
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	url := fmt.Sprintf("%s://%s:%d%s", s.cfg.Protocol, s.cfg.Host, s.cfg.Port, s.cfg.Path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch statuses: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch statuses: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var wrapped statusResponse
	if err := json.Unmarshal(data, &wrapped); err == nil && len(wrapped.Statuses) > 0 {
		return wrapped.Statuses, nil
	}
	var bare map[string]string
	if err := json.Unmarshal(data, &bare); err == nil && len(bare) > 0 {
		return bare, nil
	}
	return nil, availability.ErrNoData
}
