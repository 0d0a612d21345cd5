// Package metrics writes numeric capability values to InfluxDB.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/engine"
)

var ErrConnectionFailed = errors.New("influxdb: connection failed")

const connectTimeout = 10 * time.Second

// Config selects the InfluxDB bucket to write to.
type Config struct {
	URL           string
	Token         string
	Org           string
	Bucket        string
	BatchSize     uint
	FlushInterval time.Duration
}

type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// Sink turns capability_value events into device_metrics points.
type Sink struct {
	client influxdb2.Client
	writer pointWriter
	logger *slog.Logger
	unsub  func()
	now    func() time.Time
}

// Connect pings the server and prepares a batching write API.
func Connect(cfg Config, logger *slog.Logger) (*Sink, error) {
	opts := influxdb2.DefaultOptions()
	if cfg.BatchSize > 0 {
		opts.SetBatchSize(cfg.BatchSize)
	}
	if cfg.FlushInterval > 0 {
		opts.SetFlushInterval(uint(cfg.FlushInterval.Milliseconds()))
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	s := newSink(writeAPI, logger)
	s.client = client
	go func() {
		for err := range writeAPI.Errors() {
			s.logger.Warn("influx write failed", "err", err)
		}
	}()
	return s, nil
}

func newSink(w pointWriter, logger *slog.Logger) *Sink {
	return &Sink{
		writer: w,
		logger: logger.With("component", "metrics"),
		now:    time.Now,
	}
}

// Start subscribes to capability values.
func (s *Sink) Start(events *engine.EventBus) {
	s.unsub = events.On(engine.EventCapabilityValue, s.handleValue)
}

func (s *Sink) handleValue(event engine.Event) {
	data, ok := event.Data.(engine.CapabilityData)
	if !ok {
		return
	}
	value, ok := numeric(data.Value)
	if !ok {
		return
	}
	tags := map[string]string{
		"device_id":   data.IEEE,
		"measurement": data.Capability,
	}
	if data.Source != "" {
		tags["source"] = data.Source
	}
	point := write.NewPoint("device_metrics", tags, map[string]interface{}{"value": value}, s.now())
	s.writer.WritePoint(point)
}

// numeric accepts numbers and booleans, which are stored as 0/1.
func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// Close flushes pending points and closes the client.
func (s *Sink) Close() {
	if s.unsub != nil {
		s.unsub()
	}
	s.writer.Flush()
	if s.client != nil {
		s.client.Close()
	}
}
