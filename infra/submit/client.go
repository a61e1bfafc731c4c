package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/warehousekit/dispatchd/infra/logger"
)

// maxBodyBytes bounds how much of a response body is retained for
// classification.
const maxBodyBytes = 1 << 20

// Config defines the dispatch endpoint connection parameters. Token is the
// bearer credential; it is attached to every request and never logged.
type Config struct {
	Protocol       string  `json:"protocol"`
	Host           string  `json:"host"`
	Port           int     `json:"port"`
	TaskPath       string  `json:"task_path"`
	ReleasePath    string  `json:"release_path"`
	Token          string  `json:"token"`
	TimeoutSeconds float64 `json:"timeout_seconds"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Protocol == "" {
		c.Protocol = "http"
	}
	if c.TaskPath == "" {
		c.TaskPath = "/dispatch_server/dispatch/start/location_call/task/"
	}
	if c.ReleasePath == "" {
		c.ReleasePath = "/location_manage_server/locations/release_location/all/"
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 10
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.Protocol != "http" && c.Protocol != "https" {
		return fmt.Errorf("protocol must be http or https, got %q", c.Protocol)
	}
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be in 1..65535, got %d", c.Port)
	}
	if c.Token == "" {
		return fmt.Errorf("token is required")
	}
	return nil
}

// BaseURL builds the endpoint root from the configured parts.
func (c Config) BaseURL() string {
	return fmt.Sprintf("%s://%s:%d", c.Protocol, c.Host, c.Port)
}

// Client submits warehouse tasks to the remote dispatch endpoint.
type Client struct {
	cfg  Config
	http *http.Client
	log  logger.Logger
}

// NewClient creates a submitter from the configuration.
func NewClient(cfg Config, log logger.Logger) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds * float64(time.Second))},
		log:  log,
	}
}

// taskPayload is the wire format of one dispatch request.
type taskPayload struct {
	LocationID string `json:"location_id"`
	Area       string `json:"area"`
}

// Submit PUTs the task and returns the raw status and body for the
// classifier. A non-nil error means the request never produced a usable
// HTTP response.
func (c *Client) Submit(ctx context.Context, pickupID, area string) (int, []byte, error) {
	body, err := json.Marshal(taskPayload{LocationID: pickupID, Area: area})
	if err != nil {
		return 0, nil, fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.cfg.BaseURL()+c.cfg.TaskPath, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	c.log.Debugf("submitting task: pickup=%s area=%s", pickupID, area)
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("submit task: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, data, nil
}

// ReleaseLocations frees location occupancy on the remote side. With
// all=false only usage state is released; all=true also releases manually
// occupied locations.
func (c *Client) ReleaseLocations(ctx context.Context, all bool) error {
	body, err := json.Marshal(map[string]bool{"is_all": all})
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.cfg.BaseURL()+c.cfg.ReleasePath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("release locations: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("release locations: status %d: %s", resp.StatusCode, data)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Content-Type", "application/json")
}
