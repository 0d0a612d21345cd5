package store

import (
	"slices"
	"time"
)

// Enrollment states as persisted.
const (
	EnrollmentUnenrolled = "unenrolled"
	EnrollmentEnrolling  = "enrolling"
	EnrollmentEnrolled   = "enrolled"
	EnrollmentFailed     = "failed"
)

// Record is the engine's persisted state for one device.
type Record struct {
	IEEEAddress  string    `cbor:"1,keyasint" json:"ieee_address"`
	ShortAddress uint16    `cbor:"2,keyasint,omitempty" json:"short_address"`
	Endpoint     uint8     `cbor:"3,keyasint,omitempty" json:"endpoint,omitempty"`
	Manufacturer string    `cbor:"4,keyasint,omitempty" json:"manufacturer,omitempty"`
	Model        string    `cbor:"5,keyasint,omitempty" json:"model,omitempty"`
	Exposed      []string  `cbor:"6,keyasint,omitempty" json:"exposed,omitempty"`
	Bindings     []Binding `cbor:"7,keyasint,omitempty" json:"bindings,omitempty"`
	ZoneID       uint8     `cbor:"8,keyasint,omitempty" json:"zone_id"`
	ZoneAssigned bool      `cbor:"9,keyasint,omitempty" json:"zone_assigned"`
	Enrollment   string    `cbor:"10,keyasint,omitempty" json:"enrollment,omitempty"`
	Removed      []string  `cbor:"12,keyasint,omitempty" json:"removed,omitempty"`
	UpdatedAt    time.Time `cbor:"11,keyasint" json:"updated_at"`
}

// Binding is a learned datapoint to capability mapping.
type Binding struct {
	Datapoint    uint8   `cbor:"1,keyasint" json:"dp"`
	Capability   string  `cbor:"2,keyasint" json:"capability"`
	Scale        float64 `cbor:"3,keyasint,omitempty" json:"scale,omitempty"`
	Min          float64 `cbor:"4,keyasint,omitempty" json:"min,omitempty"`
	Max          float64 `cbor:"5,keyasint,omitempty" json:"max,omitempty"`
	Bounded      bool    `cbor:"6,keyasint,omitempty" json:"bounded,omitempty"`
	Encoding     string  `cbor:"7,keyasint,omitempty" json:"encoding,omitempty"`
	LittleEndian bool    `cbor:"8,keyasint,omitempty" json:"little_endian,omitempty"`
	Kind         string  `cbor:"9,keyasint,omitempty" json:"kind,omitempty"` // expected payload kind; empty accepts any
}

// Binding returns the binding for a datapoint, if any.
func (r *Record) Binding(dp uint8) (Binding, bool) {
	for _, b := range r.Bindings {
		if b.Datapoint == dp {
			return b, true
		}
	}
	return Binding{}, false
}

// SetBinding inserts or replaces the binding for b.Datapoint.
func (r *Record) SetBinding(b Binding) {
	for i := range r.Bindings {
		if r.Bindings[i].Datapoint == b.Datapoint {
			r.Bindings[i] = b
			return
		}
	}
	r.Bindings = append(r.Bindings, b)
}

// IsExposed reports whether the record lists capability as exposed.
func (r *Record) IsExposed(capability string) bool {
	return slices.Contains(r.Exposed, capability)
}

// Device is the host view of a device: what it exposes and the last value
// written to each capability.
type Device struct {
	IEEEAddress  string         `json:"ieee_address"`
	Capabilities []string       `json:"capabilities"`
	Values       map[string]any `json:"values,omitempty"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (d *Device) has(capability string) bool {
	return slices.Contains(d.Capabilities, capability)
}

func (d *Device) add(capability string) bool {
	if d.has(capability) {
		return false
	}
	d.Capabilities = append(d.Capabilities, capability)
	return true
}

func (d *Device) remove(capability string) bool {
	i := slices.Index(d.Capabilities, capability)
	if i < 0 {
		return false
	}
	d.Capabilities = slices.Delete(d.Capabilities, i, i+1)
	delete(d.Values, capability)
	return true
}

func (d *Device) set(capability string, value any) error {
	if !d.has(capability) {
		return ErrNotExposed
	}
	if d.Values == nil {
		d.Values = make(map[string]any)
	}
	d.Values[capability] = value
	return nil
}
