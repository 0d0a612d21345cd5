package refresh

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/bus"
	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/capability"
	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/zcl"
)

type attrKey struct {
	cluster, attr uint16
}

type fakeReader struct {
	mu     sync.Mutex
	values map[attrKey]bus.AttributeResponse
	errs   map[attrKey]error
	reads  []bus.ReadAttributesRequest
}

func newFakeReader() *fakeReader {
	return &fakeReader{values: make(map[attrKey]bus.AttributeResponse), errs: make(map[attrKey]error)}
}

func (r *fakeReader) set(cluster, attr uint16, dataType uint8, value []byte) {
	r.values[attrKey{cluster, attr}] = bus.AttributeResponse{AttrID: attr, DataType: dataType, Value: value}
}

func (r *fakeReader) ReadAttributes(_ context.Context, req bus.ReadAttributesRequest) ([]bus.AttributeResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads = append(r.reads, req)
	k := attrKey{req.ClusterID, req.AttrIDs[0]}
	if err := r.errs[k]; err != nil {
		return nil, err
	}
	if v, ok := r.values[k]; ok {
		return []bus.AttributeResponse{v}, nil
	}
	return []bus.AttributeResponse{{AttrID: req.AttrIDs[0], Status: zcl.StatusUnsupportedAttr}}, nil
}

func (r *fakeReader) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reads)
}

type fakeSink struct {
	exposed map[string]bool
	values  map[string]any
}

func newFakeSink(exposed ...string) *fakeSink {
	s := &fakeSink{exposed: make(map[string]bool), values: make(map[string]any)}
	for _, c := range exposed {
		s.exposed[c] = true
	}
	return s
}

func (s *fakeSink) Refresh(c string, v any) (capability.Outcome, error) {
	if !s.exposed[c] {
		return capability.Skipped, nil
	}
	s.values[c] = v
	return capability.Updated, nil
}

func (s *fakeSink) isExposed(c string) bool { return s.exposed[c] }

func le16(v int16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, uint16(v))
	return b
}

var sensorTargets = []Target{
	{Capability: capability.MeasureTemperature, Endpoint: 1, ClusterID: zcl.ClusterTemperature, AttrID: 0x0000, Scale: 100},
	{Capability: capability.MeasureHumidity, Endpoint: 1, ClusterID: zcl.ClusterRelativeHumidity, AttrID: 0x0000, Scale: 100},
	{Capability: capability.MeasureBattery, Endpoint: 1, ClusterID: zcl.ClusterPowerConfiguration, AttrID: 0x0021, Scale: 2, Encoding: "percent"},
}

func TestRunPassUpdatesExposed(t *testing.T) {
	r := newFakeReader()
	r.set(zcl.ClusterTemperature, 0, zcl.TypeInt16, le16(2150))
	r.set(zcl.ClusterRelativeHumidity, 0, zcl.TypeUint16, le16(4800))
	r.set(zcl.ClusterPowerConfiguration, 0x0021, zcl.TypeUint8, []byte{180})

	sink := newFakeSink(capability.MeasureTemperature, capability.MeasureHumidity, capability.MeasureBattery)
	rep := RunPass(context.Background(), r, 0x1234, sensorTargets, sink.isExposed, sink, time.Second)

	assert.Equal(t, 3, rep.Attempted)
	assert.Equal(t, 3, rep.Updated)
	assert.Equal(t, 0, rep.Skipped)
	assert.NoError(t, rep.Err())
	assert.InDelta(t, 21.5, sink.values[capability.MeasureTemperature], 0.001)
	assert.InDelta(t, 48.0, sink.values[capability.MeasureHumidity], 0.001)
	assert.InDelta(t, 90.0, sink.values[capability.MeasureBattery], 0.001)
}

func TestRunPassNothingExposed(t *testing.T) {
	r := newFakeReader()
	sink := newFakeSink()
	rep := RunPass(context.Background(), r, 0x1234, sensorTargets, sink.isExposed, sink, time.Second)

	assert.Equal(t, Report{}, rep)
	assert.Zero(t, r.count())
	assert.Empty(t, sink.values)
}

func TestRunPassSkipsFailures(t *testing.T) {
	r := newFakeReader()
	r.errs[attrKey{zcl.ClusterTemperature, 0}] = fmt.Errorf("read: %w", bus.ErrTimeout)
	// humidity left unset: unsupported attribute status
	r.set(zcl.ClusterPowerConfiguration, 0x0021, zcl.TypeUint8, []byte{150})

	sink := newFakeSink(capability.MeasureTemperature, capability.MeasureHumidity, capability.MeasureBattery)
	rep := RunPass(context.Background(), r, 0x1234, sensorTargets, sink.isExposed, sink, time.Second)

	assert.Equal(t, 3, rep.Attempted)
	assert.Equal(t, 1, rep.Updated)
	assert.Equal(t, 2, rep.Skipped)
	assert.ErrorIs(t, rep.Err(), bus.ErrTimeout)
	assert.NotContains(t, sink.values, capability.MeasureTemperature)
	assert.InDelta(t, 75.0, sink.values[capability.MeasureBattery], 0.001)
}

func TestRunPassRejectsOutOfRange(t *testing.T) {
	r := newFakeReader()
	r.set(zcl.ClusterTemperature, 0, zcl.TypeInt16, le16(-27315)) // invalid marker
	sink := newFakeSink(capability.MeasureTemperature)

	rep := RunPass(context.Background(), r, 0x1234, sensorTargets[:1], sink.isExposed, sink, time.Second)
	assert.Equal(t, 1, rep.Skipped)
	assert.Error(t, rep.Err())
	assert.Empty(t, sink.values)
}

func TestTargetValueLogLux(t *testing.T) {
	tgt := Target{Capability: capability.MeasureLuminance, Encoding: "log_lux"}
	v, err := tgt.Value(uint16(10001))
	require.NoError(t, err)
	assert.Equal(t, 10.0, v)

	v, err = tgt.Value(uint16(0))
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)
}

func TestTargetValueBool(t *testing.T) {
	tgt := Target{Capability: capability.OnOff}
	v, err := tgt.Value(true)
	require.NoError(t, err)
	assert.Equal(t, true, v)

	_, err = tgt.Value("text")
	assert.Error(t, err)
}
