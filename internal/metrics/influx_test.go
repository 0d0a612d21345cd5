package metrics

import (
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/engine"
)

type memWriter struct {
	mu      sync.Mutex
	points  []*write.Point
	flushed int
}

func (m *memWriter) WritePoint(p *write.Point) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = append(m.points, p)
}

func (m *memWriter) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushed++
}

func newTestSink() (*Sink, *memWriter, *engine.EventBus) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w := &memWriter{}
	s := newSink(w, logger)
	s.now = func() time.Time { return time.Unix(1700000000, 0) }
	events := engine.NewEventBus(logger)
	s.Start(events)
	return s, w, events
}

func TestSinkWritesCapabilityValues(t *testing.T) {
	_, w, events := newTestSink()

	events.Emit(engine.Event{Type: engine.EventCapabilityValue, Data: engine.CapabilityData{
		IEEE: "A4C138F0E1D2C3B4", Capability: "measure_temperature", Value: 21.5, Source: "datapoint",
	}})

	if len(w.points) != 1 {
		t.Fatalf("got %d points, want 1", len(w.points))
	}
	line := write.PointToLineProtocol(w.points[0], time.Second)
	for _, want := range []string{
		"device_metrics,",
		"device_id=A4C138F0E1D2C3B4",
		"measurement=measure_temperature",
		"value=21.5",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestSinkStoresBoolsAsNumbers(t *testing.T) {
	_, w, events := newTestSink()

	events.Emit(engine.Event{Type: engine.EventCapabilityValue, Data: engine.CapabilityData{
		IEEE: "A4C138F0E1D2C3B4", Capability: "alarm_motion", Value: true,
	}})

	if len(w.points) != 1 {
		t.Fatalf("got %d points, want 1", len(w.points))
	}
	if line := write.PointToLineProtocol(w.points[0], time.Second); !strings.Contains(line, "value=1") {
		t.Errorf("line = %q", line)
	}
}

func TestSinkIgnoresOtherEvents(t *testing.T) {
	_, w, events := newTestSink()

	events.Emit(engine.Event{Type: engine.EventCapabilityAdded, Data: engine.CapabilityData{
		IEEE: "A4C138F0E1D2C3B4", Capability: "measure_temperature",
	}})
	events.Emit(engine.Event{Type: engine.EventCapabilityValue, Data: engine.CapabilityData{
		IEEE: "A4C138F0E1D2C3B4", Capability: "mode", Value: "auto",
	}})

	if len(w.points) != 0 {
		t.Errorf("got %d points, want 0", len(w.points))
	}
}

func TestSinkCloseFlushes(t *testing.T) {
	s, w, events := newTestSink()
	s.Close()

	events.Emit(engine.Event{Type: engine.EventCapabilityValue, Data: engine.CapabilityData{
		IEEE: "A4C138F0E1D2C3B4", Capability: "measure_power", Value: 12.0,
	}})
	if w.flushed != 1 {
		t.Errorf("flushed = %d, want 1", w.flushed)
	}
	if len(w.points) != 0 {
		t.Errorf("point written after Close")
	}
}
