package app

import (
	"context"
	"fmt"
	"time"

	"github.com/warehousekit/dispatchd/config"
	"github.com/warehousekit/dispatchd/core/availability"
	"github.com/warehousekit/dispatchd/core/breaker"
	"github.com/warehousekit/dispatchd/core/classify"
	"github.com/warehousekit/dispatchd/core/engine"
	"github.com/warehousekit/dispatchd/core/engine/logging"
	coremetrics "github.com/warehousekit/dispatchd/core/metrics"
	"github.com/warehousekit/dispatchd/core/pacing"
	"github.com/warehousekit/dispatchd/core/selector"
	"github.com/warehousekit/dispatchd/infra/logger"
	"github.com/warehousekit/dispatchd/infra/metrics"
	"github.com/warehousekit/dispatchd/infra/mqtt"
	"github.com/warehousekit/dispatchd/infra/status"
	"github.com/warehousekit/dispatchd/infra/submit"
	"github.com/warehousekit/dispatchd/internal/eventbus"
)

// Service assembles the dispatch engine with its collaborators.
type Service struct {
	Engine      *engine.Engine
	bus         eventbus.EventBus
	store       logging.Store
	publisher   mqtt.Publisher
	influx      *metrics.InfluxSink
	log         logger.Logger
	promEnabled bool
	promPort    string
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	var sinks []coremetrics.Sink
	var influx *metrics.InfluxSink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink()
		if err != nil {
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sink := metrics.NewInfluxSinkWithFallback(cfg.Metrics.InfluxURL,
			cfg.Metrics.InfluxToken, cfg.Metrics.InfluxOrg, cfg.Metrics.InfluxBucket)
		if is, ok := sink.(*metrics.InfluxSink); ok {
			influx = is
		}
		sinks = append(sinks, sink)
	}
	var sink coremetrics.Sink = coremetrics.NopSink{}
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = metrics.NewMultiSink(sinks...)
	}

	var store logging.Store
	var err error
	switch cfg.Logging.Backend {
	case "sqlite":
		store, err = logging.NewSQLiteStore(cfg.Logging.Path)
	default:
		store, err = logging.NewJSONLStore(cfg.Logging.Path,
			cfg.Logging.MaxSizeMB, cfg.Logging.MaxBackups, cfg.Logging.MaxAgeDays)
	}
	if err != nil {
		return nil, fmt.Errorf("attempt log store: %w", err)
	}

	bus := eventbus.New()

	source := status.NewSource(cfg.Status, logger.New("status_source"))
	allIDs := candidateIDs(cfg)
	cache := availability.NewCache(source, allIDs,
		time.Duration(cfg.Availability.PollSeconds*float64(time.Second)),
		logger.New("availability"))
	cache.OnTransition(func(tr availability.Transition) {
		ev := coremetrics.RefreshEvent{
			Blocked:      tr.Blocked,
			Unblocked:    tr.Unblocked,
			BlockedTotal: cache.BlockedCount(),
			Time:         tr.At,
		}
		if err := sink.RecordRefresh(ev); err != nil {
			logg.Errorf("metrics sink: %v", err)
		}
		bus.Publish(ev)
	})

	sel, err := selector.New(cfg.ModelGroups(), cache, nil)
	if err != nil {
		return nil, fmt.Errorf("selector: %w", err)
	}

	var pacer pacing.Pacer
	switch cfg.Pacing.Mode {
	case config.ModeWindow:
		perWindow := cfg.Pacing.Rate * cfg.TotalPickups()
		pacer = pacing.NewFixedWindow(cfg.Pacing.Window(), perWindow,
			cfg.Pacing.Duration(), logger.New("pacing"))
	default:
		pacer = pacing.NewTargetCount(cfg.Pacing.Target, cfg.Pacing.FailureDelay())
	}

	submitter := submit.NewClient(cfg.Submit, logger.New("submitter"))
	cls := classify.New(cfg.Classifier.TargetCode)
	brk := breaker.New(cfg.Breaker.Threshold)

	eng, err := engine.New(cfg.Engine, cfg.Pacing.Mode, sel, cache, submitter,
		cls, brk, pacer, sink, bus, store, logger.New("engine"))
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	svc := &Service{
		Engine:      eng,
		bus:         bus,
		store:       store,
		influx:      influx,
		log:         logg,
		promEnabled: cfg.Metrics.PrometheusEnabled,
		promPort:    cfg.Metrics.PrometheusPort,
	}

	if cfg.MQTT.Enabled {
		pub, err := mqtt.NewPahoClient(cfg.MQTT)
		if err != nil {
			return nil, fmt.Errorf("mqtt client: %w", err)
		}
		svc.publisher = pub
	}
	return svc, nil
}

// Run executes one dispatch run and blocks until it ends or the context is
// canceled.
func (s *Service) Run(ctx context.Context) (engine.RunReport, error) {
	if s.promEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, ":"+s.promPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	if s.publisher != nil {
		events := s.bus.Subscribe(64)
		go mqtt.Forward(ctx, events, s.publisher, logger.New("mqtt_forwarder"))
	}
	return s.Engine.Run(ctx)
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.bus.Close()
	if s.publisher != nil {
		s.publisher.Close()
	}
	if s.influx != nil {
		s.influx.Close()
	}
	return s.store.Close()
}

func candidateIDs(cfg *config.Config) []string {
	var ids []string
	for _, g := range cfg.Groups {
		ids = append(ids, g.Candidates...)
	}
	return ids
}
