package datapoint

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"

	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/capability"
	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/store"
)

// Status is the outcome of decoding one datapoint.
type Status int

const (
	// Mapped: at least one candidate produced a valid value.
	Mapped Status = iota + 1
	// NoMapping: the id is not known for this device. Nothing changes.
	NoMapping
	// Rejected: the id is known but no candidate produced a valid value.
	Rejected
)

func (s Status) String() string {
	switch s {
	case Mapped:
		return "mapped"
	case NoMapping:
		return "no mapping"
	case Rejected:
		return "rejected"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Result of decoding one datapoint. Candidates keeps table order and
// includes those that failed coercion or range (with Err set); candidates of
// the wrong payload kind are left out.
type Result struct {
	Event      Event
	Status     Status
	Candidates []capability.Candidate
	Reason     string // why the last candidate was rejected
}

// Override is a per-model datapoint mapping from static metadata. It
// replaces the static table entries for its id.
type Override struct {
	Datapoint uint8 `json:"dp"`
	Entry
	Expr string `json:"expr,omitempty"`
}

type mapping struct {
	entry  Entry
	script *Script
}

// Decoder turns datapoint events into capability candidates. One decoder is
// built per device model.
type Decoder struct {
	overrides map[uint8][]mapping
	logger    *slog.Logger
}

// NewDecoder builds a decoder with per-model overrides. Scripts are compiled
// up front so a bad expression fails at load time.
func NewDecoder(overrides []Override, logger *slog.Logger) (*Decoder, error) {
	d := &Decoder{
		overrides: make(map[uint8][]mapping),
		logger:    logger.With("component", "datapoint"),
	}
	for _, o := range overrides {
		m := mapping{entry: o.Entry}
		if o.Expr != "" {
			s, err := CompileScript(o.Expr)
			if err != nil {
				d.Close()
				return nil, fmt.Errorf("dp %d: %w", o.Datapoint, err)
			}
			m.script = s
		}
		d.overrides[o.Datapoint] = append(d.overrides[o.Datapoint], m)
	}
	return d, nil
}

// Close releases override scripts.
func (d *Decoder) Close() {
	for _, ms := range d.overrides {
		for _, m := range ms {
			if m.script != nil {
				m.script.Close()
			}
		}
	}
}

// Decode maps evt to capability candidates. A learned binding, when given,
// short-circuits inference: only the bound capability is tried, with the
// binding's scale and range. Override scripts still apply to a bound
// capability.
func (d *Decoder) Decode(evt Event, bound *store.Binding) Result {
	res := Result{Event: evt}

	mappings := d.mappings(evt.ID)
	if bound != nil {
		m := mapping{entry: entryFromBinding(*bound)}
		for _, om := range d.overrides[evt.ID] {
			if om.entry.Capability == bound.Capability {
				m.script = om.script
			}
		}
		mappings = []mapping{m}
	}
	if len(mappings) == 0 {
		res.Status = NoMapping
		return res
	}

	valid := 0
	for _, m := range mappings {
		if k := m.entry.Kind; k != nil && *k != evt.Kind {
			res.Reason = fmt.Sprintf("%s: kind %s, want %s", m.entry.Capability, evt.Kind, *k)
			continue
		}
		cand := capability.Candidate{
			Capability: m.entry.Capability,
			Binding:    bindingFromEntry(evt.ID, m.entry),
		}
		v, err := convert(evt, m)
		if err != nil {
			res.Reason = fmt.Sprintf("%s: %v", m.entry.Capability, err)
			cand.Err = err
		} else {
			cand.Value = v
			valid++
		}
		res.Candidates = append(res.Candidates, cand)
	}
	if valid == 0 {
		res.Status = Rejected
		d.logger.Debug("datapoint rejected", "dp", evt.ID, "kind", evt.Kind, "reason", res.Reason)
		return res
	}
	res.Status = Mapped
	return res
}

func (d *Decoder) mappings(id uint8) []mapping {
	if ms, ok := d.overrides[id]; ok {
		return ms
	}
	entries := staticTable[id]
	ms := make([]mapping, len(entries))
	for i, e := range entries {
		ms[i] = mapping{entry: e}
	}
	return ms
}

func convert(evt Event, m mapping) (any, error) {
	e := m.entry
	v, err := coerce(evt, e)
	if err != nil {
		return nil, err
	}
	if m.script != nil {
		if v, err = m.script.Eval(v); err != nil {
			return nil, err
		}
		if v == nil {
			return nil, fmt.Errorf("dropped by script")
		}
	}
	if f, ok := v.(float64); ok {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("not a number")
		}
		if e.Bounded && (f < e.Min || f > e.Max) {
			return nil, fmt.Errorf("%v outside [%v, %v]", f, e.Min, e.Max)
		}
	}
	return v, nil
}

func coerce(evt Event, e Entry) (any, error) {
	switch e.Encoding {
	case EncodingRaw:
		if evt.Kind == KindString {
			return string(evt.Raw), nil
		}
		return hex.EncodeToString(evt.Raw), nil
	case EncodingBool:
		b, ok := evt.Bool()
		if !ok {
			return nil, fmt.Errorf("cannot coerce %s to bool", evt.Kind)
		}
		return b, nil
	}

	n, ok := evt.Integer(e.LittleEndian)
	if !ok {
		return nil, fmt.Errorf("cannot coerce %d-byte %s to integer", len(evt.Raw), evt.Kind)
	}
	switch e.Encoding {
	case EncodingBatteryState:
		return n == 0, nil
	case EncodingLogLux:
		return LogLux(n), nil
	case EncodingPercent:
		return math.Max(0, math.Min(100, scale(n, e.Scale))), nil
	case EncodingLinear, "":
		return scale(n, e.Scale), nil
	}
	return nil, fmt.Errorf("unknown encoding %q", e.Encoding)
}

func scale(n int64, divisor float64) float64 {
	if divisor == 0 || divisor == 1 {
		return float64(n)
	}
	return float64(n) / divisor
}

// LogLux converts a ZCL/Tuya logarithmic illuminance code to lux.
func LogLux(raw int64) float64 {
	if raw <= 0 {
		return 0
	}
	return math.Round(math.Pow(10, float64(raw-1)/10000))
}

func entryFromBinding(b store.Binding) Entry {
	e := Entry{
		Capability:   b.Capability,
		Scale:        b.Scale,
		Min:          b.Min,
		Max:          b.Max,
		Bounded:      b.Bounded,
		Encoding:     Encoding(b.Encoding),
		LittleEndian: b.LittleEndian,
	}
	var k Kind
	if b.Kind != "" && k.UnmarshalText([]byte(b.Kind)) == nil {
		e.Kind = &k
	}
	return e
}

func bindingFromEntry(id uint8, e Entry) store.Binding {
	b := store.Binding{
		Datapoint:    id,
		Capability:   e.Capability,
		Scale:        e.Scale,
		Min:          e.Min,
		Max:          e.Max,
		Bounded:      e.Bounded,
		Encoding:     string(e.Encoding),
		LittleEndian: e.LittleEndian,
	}
	if e.Kind != nil {
		b.Kind = e.Kind.String()
	}
	return b
}
