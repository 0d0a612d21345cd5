package datapoint

import (
	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/capability"
)

// Encoding selects how a coerced integer becomes a capability value.
type Encoding string

const (
	EncodingLinear       Encoding = "linear"        // raw / scale
	EncodingPercent      Encoding = "percent"       // raw / scale, clamped to 0..100
	EncodingLogLux       Encoding = "log_lux"       // round(10^((raw-1)/10000))
	EncodingBool         Encoding = "bool"          // raw != 0
	EncodingBatteryState Encoding = "battery_state" // enum 0=low, 1=medium, 2=high -> low
	EncodingRaw          Encoding = "raw"           // hex bytes or string passthrough
)

// Entry maps a datapoint to one candidate capability.
type Entry struct {
	Capability   string   `json:"capability"`
	Kind         *Kind    `json:"kind,omitempty"` // expected payload kind; nil accepts any
	Scale        float64  `json:"scale,omitempty"`
	Min          float64  `json:"min,omitempty"`
	Max          float64  `json:"max,omitempty"`
	Bounded      bool     `json:"bounded,omitempty"`
	Encoding     Encoding `json:"encoding,omitempty"`
	LittleEndian bool     `json:"little_endian,omitempty"`
}

func kindOf(k Kind) *Kind { return &k }

var (
	kBool  = kindOf(KindBool)
	kValue = kindOf(KindValue)
	kEnum  = kindOf(KindEnum)
)

func temperature() Entry {
	return Entry{Capability: capability.MeasureTemperature, Kind: kValue, Scale: 10, Min: -40, Max: 80, Bounded: true, Encoding: EncodingLinear}
}

func humidity() Entry {
	return Entry{Capability: capability.MeasureHumidity, Kind: kValue, Scale: 1, Min: 0, Max: 100, Bounded: true, Encoding: EncodingLinear}
}

func battery() Entry {
	return Entry{Capability: capability.MeasureBattery, Kind: kValue, Scale: 1, Encoding: EncodingPercent}
}

// staticTable covers the datapoints commonly seen on Tuya sensors. Ids
// collide across models, so some carry several candidates in preference
// order; the capability manager picks one and remembers it per device.
var staticTable = map[uint8][]Entry{
	1:  {{Capability: capability.AlarmMotion, Kind: kBool, Encoding: EncodingBool}, temperature()},
	2:  {humidity()},
	3:  {temperature()},
	4:  {humidity(), battery()},
	12: {{Capability: capability.MeasureLuminance, Kind: kValue, Encoding: EncodingLogLux, Min: 0, Max: 200000, Bounded: true}},
	14: {{Capability: capability.AlarmBattery, Kind: kEnum, Encoding: EncodingBatteryState}},
	15: {battery()},
	17: {{Capability: capability.MeterPower, Kind: kValue, Scale: 100, Min: 0, Max: 1e7, Bounded: true, Encoding: EncodingLinear}},
	18: {{Capability: capability.MeasureCurrent, Kind: kValue, Scale: 1000, Min: 0, Max: 100, Bounded: true, Encoding: EncodingLinear}},
	19: {{Capability: capability.MeasurePower, Kind: kValue, Scale: 10, Min: 0, Max: 25000, Bounded: true, Encoding: EncodingLinear}},
	20: {{Capability: capability.MeasureVoltage, Kind: kValue, Scale: 10, Min: 0, Max: 300, Bounded: true, Encoding: EncodingLinear}},
	101: {
		{Capability: capability.MeasureLuminance, Kind: kValue, Scale: 1, Min: 0, Max: 200000, Bounded: true, Encoding: EncodingLinear},
		humidity(),
	},
	102: {battery(), temperature()},
	103: {temperature(), {Capability: capability.MeasurePressure, Kind: kValue, Scale: 10, Min: 300, Max: 1100, Bounded: true, Encoding: EncodingLinear}},
	104: {{Capability: capability.AlarmTamper, Kind: kBool, Encoding: EncodingBool}},
}

// Lookup returns the static candidates for a datapoint id.
func Lookup(id uint8) ([]Entry, bool) {
	entries, ok := staticTable[id]
	return entries, ok
}
