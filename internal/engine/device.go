package engine

import (
	"log/slog"
	"sync"

	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/capability"
	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/datapoint"
	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/enrollment"
	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/refresh"
	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/store"
)

// DeviceInfo identifies a device on attach.
type DeviceInfo struct {
	IEEE         string `json:"ieee"`
	ShortAddr    uint16 `json:"short_addr"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Model        string `json:"model,omitempty"`
}

// Snapshot is a read-only view of a device unit.
type Snapshot struct {
	IEEEAddress  string              `json:"ieee_address"`
	ShortAddress uint16              `json:"short_address"`
	Manufacturer string              `json:"manufacturer,omitempty"`
	Model        string              `json:"model,omitempty"`
	FriendlyName string              `json:"friendly_name,omitempty"`
	Declared     []string            `json:"declared"`
	Exposed      []string            `json:"exposed"`
	Bindings     []store.Binding     `json:"bindings,omitempty"`
	Enrollment   string              `json:"enrollment,omitempty"`
	Session      *enrollment.Session `json:"enroll_session,omitempty"` // running or last handshake
	ZoneID       *uint8              `json:"zone_id,omitempty"`
	Refresh      *refresh.Job        `json:"refresh,omitempty"`
}

// Device is the unit bound to one paired device. mu serializes enrollment
// signals, datapoint events and refresh results against the manager.
type Device struct {
	ieee         string
	manufacturer string
	model        string
	def          *DeviceDefinition
	manager      *capability.Manager
	decoder      *datapoint.Decoder
	logger       *slog.Logger

	mu      sync.Mutex
	closed  bool
	machine *enrollment.Machine
	zoneEP  uint8
	alarm   string

	addrMu    sync.RWMutex
	shortAddr uint16
	endpoint  uint8
}

// IEEE returns the device id.
func (d *Device) IEEE() string { return d.ieee }

func (d *Device) address() (uint16, uint8) {
	d.addrMu.RLock()
	defer d.addrMu.RUnlock()
	ep := d.endpoint
	if ep == 0 {
		ep = 1
	}
	return d.shortAddr, ep
}

func (d *Device) setAddress(short uint16) {
	d.addrMu.Lock()
	d.shortAddr = short
	d.addrMu.Unlock()
}

// zoneAddress is the enrollment target: the endpoint the enroll request
// came from, the definition's zone endpoint, or the device endpoint.
func (d *Device) zoneAddress() (uint16, uint8) {
	short, ep := d.address()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.zoneEP != 0 {
		return short, d.zoneEP
	}
	if d.def != nil && d.def.Zone != nil && d.def.Zone.Endpoint != 0 {
		return short, d.def.Zone.Endpoint
	}
	return short, ep
}

// alarmCapability returns the capability zone alarms drive. Caller holds mu.
func (d *Device) alarmCapability() string {
	if d.def != nil && d.def.Zone != nil && d.def.Zone.AlarmCapability != "" {
		return d.def.Zone.AlarmCapability
	}
	if d.alarm != "" {
		return d.alarm
	}
	if d.def != nil && d.def.Zone != nil && d.def.Zone.ZoneType != 0 {
		return enrollment.AlarmCapability(d.def.Zone.ZoneType)
	}
	return capability.AlarmGeneric
}

func (d *Device) declared() []string {
	if d.def == nil {
		return nil
	}
	return d.def.Capabilities
}

// shutdown stops the enrollment machine and releases the decoder. Events
// arriving afterwards are dropped. The machine is stopped without holding mu
// since its callback takes mu.
func (d *Device) shutdown() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	m := d.machine
	d.mu.Unlock()

	if m != nil {
		m.Stop()
	}
	d.decoder.Close()
}
