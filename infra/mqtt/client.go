package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	coremetrics "github.com/warehousekit/dispatchd/core/metrics"
	"github.com/warehousekit/dispatchd/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Enabled     bool        `json:"enabled"`
	Broker      string      `json:"broker"`
	ClientID    string      `json:"client_id"`
	Username    string      `json:"username"`
	Password    string      `json:"password"`
	TopicPrefix string      `json:"topic_prefix"`
	UseTLS      bool        `json:"use_tls"`
	ClientCert  string      `json:"client_cert"`
	ClientKey   string      `json:"client_key"`
	CABundle    string      `json:"ca_bundle"`
	QoS         byte        `json:"qos"`
	MaxRetries  int         `json:"max_retries"`
	BackoffMS   int         `json:"backoff_ms"`
	TLSConfig   *tls.Config `json:"-"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "dispatchd"
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "dispatchd"
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS <= 0 {
		c.BackoffMS = 100
	}
}

// Validate checks mandatory fields when the publisher is enabled.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Broker == "" {
		return fmt.Errorf("broker is required")
	}
	if c.QoS > 2 {
		return fmt.Errorf("qos must be 0, 1 or 2, got %d", c.QoS)
	}
	return nil
}

// Publisher pushes engine events to an external broker.
type Publisher interface {
	PublishAttempt(ev coremetrics.AttemptEvent) error
	PublishRefresh(ev coremetrics.RefreshEvent) error
	Close()
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// PahoClient implements Publisher using Eclipse Paho.
type PahoClient struct {
	cli         pahoClient
	topicPrefix string
	qos         byte
	maxRetries  int
	backoff     time.Duration
	logger      logger.Logger
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPahoClient connects to the MQTT broker.
func NewPahoClient(cfg Config) (*PahoClient, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt_client")
	opts.OnConnect = func(_ paho.Client) {
		log.Infof("MQTT connected")
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &PahoClient{
		cli:         c,
		topicPrefix: cfg.TopicPrefix,
		qos:         cfg.QoS,
		maxRetries:  cfg.MaxRetries,
		backoff:     time.Duration(cfg.BackoffMS) * time.Millisecond,
		logger:      log,
	}, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}
	return cfg, nil
}

// attemptMessage is the wire format of one published attempt.
type attemptMessage struct {
	TaskID    string `json:"task_id"`
	Group     string `json:"group"`
	PickupID  string `json:"pickup_id"`
	Candidate string `json:"candidate"`
	Attempt   int    `json:"attempt"`
	Outcome   string `json:"outcome"`
	Code      int    `json:"code"`
	LatencyMS int64  `json:"latency_ms"`
	Timestamp int64  `json:"timestamp"`
}

// PublishAttempt pushes the attempt to <prefix>/attempts.
func (p *PahoClient) PublishAttempt(ev coremetrics.AttemptEvent) error {
	payload, err := json.Marshal(attemptMessage{
		TaskID:    ev.TaskID,
		Group:     ev.Group,
		PickupID:  ev.PickupID,
		Candidate: ev.Candidate,
		Attempt:   ev.Attempt,
		Outcome:   ev.Outcome.Kind.String(),
		Code:      ev.Outcome.Code,
		LatencyMS: ev.Latency.Milliseconds(),
		Timestamp: ev.Time.UnixMilli(),
	})
	if err != nil {
		return err
	}
	return p.publish(p.topicPrefix+"/attempts", payload)
}

// PublishRefresh pushes the availability transition to <prefix>/availability.
func (p *PahoClient) PublishRefresh(ev coremetrics.RefreshEvent) error {
	payload, err := json.Marshal(struct {
		Blocked      []string `json:"blocked"`
		Unblocked    []string `json:"unblocked"`
		BlockedTotal int      `json:"blocked_total"`
		Timestamp    int64    `json:"timestamp"`
	}{ev.Blocked, ev.Unblocked, ev.BlockedTotal, ev.Time.UnixMilli()})
	if err != nil {
		return err
	}
	return p.publish(p.topicPrefix+"/availability", payload)
}

func (p *PahoClient) publish(topic string, payload []byte) error {
	var publishErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		token := p.cli.Publish(topic, p.qos, false, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			return nil
		}
		p.logger.Warnf("publish to %s failed (attempt %d): %v", topic, attempt+1, publishErr)
		time.Sleep(p.backoff)
	}
	return publishErr
}

// Close disconnects from the broker.
func (p *PahoClient) Close() {
	p.cli.Disconnect(250)
}
