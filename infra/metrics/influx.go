package metrics

import (
	"context"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/warehousekit/dispatchd/core/metrics"
	"github.com/warehousekit/dispatchd/infra/logger"
)

// InfluxSink writes engine events to an InfluxDB instance using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a
// NopSink when the health check fails, so a missing TSDB never blocks a
// run.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.Sink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordAttempt writes the attempt as a line protocol point.
func (s *InfluxSink) RecordAttempt(ev coremetrics.AttemptEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("dispatch_attempt").
		AddTag("group", ev.Group).
		AddTag("candidate", ev.Candidate).
		AddTag("outcome", ev.Outcome.Kind.String()).
		AddTag("task_id", ev.TaskID).
		AddField("attempt", ev.Attempt).
		AddField("code", ev.Outcome.Code).
		AddField("latency_ms", ev.Latency.Milliseconds()).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordRefresh writes the availability transition.
func (s *InfluxSink) RecordRefresh(ev coremetrics.RefreshEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("availability_refresh").
		AddField("blocked", len(ev.Blocked)).
		AddField("unblocked", len(ev.Unblocked)).
		AddField("blocked_total", ev.BlockedTotal).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordRunReport writes the end-of-run summary.
func (s *InfluxSink) RecordRunReport(ev coremetrics.RunEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("dispatch_run").
		AddTag("mode", ev.Mode).
		AddField("attempts", ev.Attempts).
		AddField("successes", ev.Successes).
		AddField("business_failures", ev.BusinessFailures).
		AddField("transport_failures", ev.TransportFailures).
		AddField("skipped", ev.Skipped).
		AddField("breaker_tripped", ev.BreakerTripped).
		AddField("elapsed_seconds", ev.Ended.Sub(ev.Started).Seconds()).
		SetTime(ev.Ended)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the underlying client.
func (s *InfluxSink) Close() {
	s.client.Close()
}
