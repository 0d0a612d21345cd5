// Package engine binds the normalization components to paired devices: one
// unit per device, fed by bus events and driven by the refresh scheduler.
package engine

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/bus"
	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/capability"
	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/datapoint"
	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/enrollment"
	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/refresh"
	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/store"
	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/zcl"
)

var (
	// ErrUnknownDevice is returned for operations on a device that is not attached.
	ErrUnknownDevice = errors.New("engine: unknown device")

	// ErrNoFreeZone is returned when all 255 IAS zone ids are taken.
	ErrNoFreeZone = errors.New("engine: no free zone id")
)

// Records persists per-device engine state.
type Records interface {
	GetRecord(ieee string) (*store.Record, error)
	ListRecords() ([]*store.Record, error)
	UpdateRecord(ieee string, fn func(rec *store.Record) error) error
	DeleteRecord(ieee string) error
}

// deviceDeleter is implemented by hosts that drop a device's state on unpair.
type deviceDeleter interface {
	DeleteDevice(ieee string) error
}

// Config holds engine timing.
type Config struct {
	Enrollment  enrollment.Config
	Refresh     refresh.Config
	ReadTimeout time.Duration // per attribute read, default 5s
}

// Engine owns the device units.
type Engine struct {
	bus       bus.Adapter
	host      capability.Host
	records   Records
	db        *DeviceDB
	events    *EventBus
	cfg       Config
	logger    *slog.Logger
	scheduler *refresh.Scheduler

	attachMu sync.Mutex

	mu        sync.RWMutex
	devices   map[string]*Device
	addrIndex map[uint16]string

	zoneMu sync.Mutex
	zones  map[uint8]string
}

// New creates an engine and registers its bus handlers. Call Restore to
// re-attach persisted devices.
func New(b bus.Adapter, host capability.Host, records Records, db *DeviceDB, events *EventBus, cfg Config, logger *slog.Logger) *Engine {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 5 * time.Second
	}
	if db == nil {
		db = NewDeviceDB()
	}
	e := &Engine{
		bus:       b,
		host:      host,
		records:   records,
		db:        db,
		events:    events,
		cfg:       cfg,
		logger:    logger.With("component", "engine"),
		devices:   make(map[string]*Device),
		addrIndex: make(map[uint16]string),
		zones:     make(map[uint8]string),
	}
	e.scheduler = refresh.NewScheduler(cfg.Refresh, e.runPass, logger)

	b.OnAttributeReport(e.handleAttributeReport)
	b.OnClusterCommand(e.handleClusterCommand)
	b.OnDeviceAnnounce(e.handleDeviceAnnounce)
	b.OnDeviceLeft(e.handleDeviceLeft)
	return e
}

// Events returns the engine's event bus.
func (e *Engine) Events() *EventBus {
	return e.events
}

// Restore attaches every device with a persisted record.
func (e *Engine) Restore() error {
	recs, err := e.records.ListRecords()
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}
	var errs []error
	for _, rec := range recs {
		_, err := e.Attach(DeviceInfo{
			IEEE:         rec.IEEEAddress,
			ShortAddr:    rec.ShortAddress,
			Manufacturer: rec.Manufacturer,
			Model:        rec.Model,
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	e.logger.Info("devices restored", "count", len(recs))
	return errors.Join(errs...)
}

// Attach creates the unit for a device, reloading its persisted state before
// any event is processed. Attaching an attached device only updates its
// short address.
func (e *Engine) Attach(info DeviceInfo) (*Device, error) {
	if info.IEEE == "" {
		return nil, errors.New("engine: empty device id")
	}
	e.attachMu.Lock()
	defer e.attachMu.Unlock()

	if d, ok := e.device(info.IEEE); ok {
		e.updateAddress(d, info.ShortAddr)
		return d, nil
	}

	rec, err := e.records.GetRecord(info.IEEE)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load record %s: %w", info.IEEE, err)
	}
	if rec == nil {
		rec = &store.Record{IEEEAddress: info.IEEE}
	}
	if info.Manufacturer == "" {
		info.Manufacturer = rec.Manufacturer
	}
	if info.Model == "" {
		info.Model = rec.Model
	}
	logger := e.logger.With("ieee", info.IEEE)

	err = e.records.UpdateRecord(info.IEEE, func(r *store.Record) error {
		r.ShortAddress = info.ShortAddr
		r.Manufacturer = info.Manufacturer
		r.Model = info.Model
		return nil
	})
	if err != nil {
		logger.Warn("save device record", "err", err)
	}

	def := e.db.Lookup(info.Manufacturer, info.Model)
	var overrides []datapoint.Override
	if def != nil {
		overrides = def.Datapoints
	}
	dec, err := datapoint.NewDecoder(overrides, e.logger)
	if err != nil {
		logger.Warn("datapoint overrides disabled", "err", err)
		dec, _ = datapoint.NewDecoder(nil, e.logger)
	}

	d := &Device{
		ieee:         info.IEEE,
		manufacturer: info.Manufacturer,
		model:        info.Model,
		def:          def,
		decoder:      dec,
		logger:       logger,
		shortAddr:    info.ShortAddr,
		endpoint:     rec.Endpoint,
	}
	d.manager = capability.NewManager(info.IEEE, d.declared(), e.host, e.records, e.logger)
	d.manager.Load(rec)
	if rec.ZoneAssigned {
		e.reserveZone(info.IEEE, rec.ZoneID)
	}
	if (def != nil && def.Zone != nil) || rec.Enrollment != "" {
		d.machine = e.newMachine(d, enrollment.ParseState(rec.Enrollment))
	}

	e.mu.Lock()
	e.devices[info.IEEE] = d
	e.addrIndex[info.ShortAddr] = info.IEEE
	e.mu.Unlock()

	var evs []Event
	e.withDevice(d, func() []Event {
		before := d.manager.Exposed()
		if err := d.manager.EnsureDeclared(); err != nil {
			logger.Warn("expose declared capabilities", "err", err)
		}
		for _, c := range d.manager.Exposed() {
			if !slices.Contains(before, c) {
				evs = append(evs, Event{Type: EventCapabilityAdded, Data: CapabilityData{IEEE: d.ieee, Capability: c, Source: "declared"}})
			}
		}
		return nil
	})

	if def != nil && def.Refresh && len(def.Attributes) > 0 {
		e.scheduler.Schedule(info.IEEE)
	}

	logger.Info("device attached", "manufacturer", info.Manufacturer, "model", info.Model,
		"known", def != nil, "exposed", len(d.manager.Exposed()))
	e.events.Emit(Event{Type: EventDeviceAttached, Data: DeviceData{IEEE: info.IEEE, Manufacturer: info.Manufacturer, Model: info.Model}})
	e.emitAll(evs)
	return d, nil
}

func (e *Engine) newMachine(d *Device, initial enrollment.State) *enrollment.Machine {
	return enrollment.New(d.ieee, initial, e.bus, d.zoneAddress, e.cfg.Enrollment,
		func(t enrollment.Transition) { e.onEnrollment(d, t) }, e.logger)
}

func (e *Engine) onEnrollment(d *Device, t enrollment.Transition) {
	err := e.records.UpdateRecord(d.ieee, func(r *store.Record) error {
		r.Enrollment = t.To.String()
		return nil
	})
	if err != nil {
		d.logger.Warn("persist enrollment state", "state", t.To, "err", err)
	}
	data := EnrollmentData{IEEE: d.ieee, State: t.To.String(), ZoneID: t.ZoneID, Attempts: t.Attempts}
	if t.Err != nil {
		data.Error = t.Err.Error()
	}
	e.events.Emit(Event{Type: EventEnrollmentState, Data: data})
}

// Detach stops a device unit and cancels its refresh job. Persisted state
// is kept.
func (e *Engine) Detach(ieee string) error {
	e.mu.Lock()
	d, ok := e.devices[ieee]
	if ok {
		delete(e.devices, ieee)
		short, _ := d.address()
		if e.addrIndex[short] == ieee {
			delete(e.addrIndex, short)
		}
	}
	e.mu.Unlock()
	if !ok {
		return ErrUnknownDevice
	}

	e.scheduler.Cancel(ieee)
	d.shutdown()
	d.logger.Info("device detached")
	return nil
}

// Remove tears a device down for good: its unit, zone id, engine record and
// host state.
func (e *Engine) Remove(ieee string) error {
	if err := e.Detach(ieee); err != nil && !errors.Is(err, ErrUnknownDevice) {
		return err
	}
	e.releaseZone(ieee)

	var errs []error
	if err := e.records.DeleteRecord(ieee); err != nil && !errors.Is(err, store.ErrNotFound) {
		errs = append(errs, fmt.Errorf("delete record %s: %w", ieee, err))
	}
	if dd, ok := e.host.(deviceDeleter); ok {
		if err := dd.DeleteDevice(ieee); err != nil && !errors.Is(err, store.ErrNotFound) {
			errs = append(errs, fmt.Errorf("delete host device %s: %w", ieee, err))
		}
	}
	e.logger.Info("device removed", "ieee", ieee)
	e.events.Emit(Event{Type: EventDeviceRemoved, Data: DeviceData{IEEE: ieee}})
	return errors.Join(errs...)
}

// RemoveCapability drops one capability from a device on explicit request.
func (e *Engine) RemoveCapability(ieee, c string) error {
	d, ok := e.device(ieee)
	if !ok {
		return ErrUnknownDevice
	}
	var err error
	e.withDevice(d, func() []Event {
		err = d.manager.Remove(c)
		return nil
	})
	if err != nil {
		return err
	}
	e.events.Emit(Event{Type: EventCapabilityRemoved, Data: CapabilityData{IEEE: ieee, Capability: c}})
	return nil
}

// RefreshNow runs one refresh pass for a device immediately.
func (e *Engine) RefreshNow(ctx context.Context, ieee string) (refresh.Report, error) {
	d, ok := e.device(ieee)
	if !ok {
		return refresh.Report{}, ErrUnknownDevice
	}
	return e.pass(ctx, d), nil
}

func (e *Engine) runPass(ctx context.Context, ieee string) refresh.Report {
	d, ok := e.device(ieee)
	if !ok {
		return refresh.Report{}
	}
	return e.pass(ctx, d)
}

// pass reads outside the device mutex; only the results take it.
func (e *Engine) pass(ctx context.Context, d *Device) refresh.Report {
	short, _ := d.address()
	rep := refresh.RunPass(ctx, e.bus, short, attributeTargets(d.def), d.manager.IsExposed,
		deviceSink{e: e, d: d}, e.cfg.ReadTimeout)
	if err := rep.Err(); err != nil {
		d.logger.Debug("refresh skipped capabilities", "err", err)
	}
	e.events.Emit(Event{Type: EventRefreshPass, Data: RefreshData{
		IEEE:      d.ieee,
		Attempted: rep.Attempted,
		Updated:   rep.Updated,
		Skipped:   rep.Skipped,
	}})
	return rep
}

type deviceSink struct {
	e *Engine
	d *Device
}

func (s deviceSink) Refresh(c string, v any) (capability.Outcome, error) {
	out, err := capability.Skipped, error(nil)
	s.e.withDevice(s.d, func() []Event {
		out, err = s.d.manager.Refresh(c, v)
		if out == capability.Updated && err == nil {
			return []Event{valueEvent(s.d, c, v, "refresh")}
		}
		return nil
	})
	return out, err
}

// Device returns a snapshot of an attached device.
func (e *Engine) Device(ieee string) (Snapshot, bool) {
	d, ok := e.device(ieee)
	if !ok {
		return Snapshot{}, false
	}
	return e.snapshot(d), true
}

// Devices returns snapshots of all attached devices, ordered by id.
func (e *Engine) Devices() []Snapshot {
	e.mu.RLock()
	devs := make([]*Device, 0, len(e.devices))
	for _, d := range e.devices {
		devs = append(devs, d)
	}
	e.mu.RUnlock()

	out := make([]Snapshot, 0, len(devs))
	for _, d := range devs {
		out = append(out, e.snapshot(d))
	}
	slices.SortFunc(out, func(a, b Snapshot) int { return strings.Compare(a.IEEEAddress, b.IEEEAddress) })
	return out
}

func (e *Engine) snapshot(d *Device) Snapshot {
	short, _ := d.address()
	s := Snapshot{
		IEEEAddress:  d.ieee,
		ShortAddress: short,
		Manufacturer: d.manufacturer,
		Model:        d.model,
		Declared:     d.declared(),
		Exposed:      d.manager.Exposed(),
		Bindings:     d.manager.Bindings(),
	}
	if d.def != nil {
		s.FriendlyName = d.def.FriendlyName
	}
	d.mu.Lock()
	m := d.machine
	d.mu.Unlock()
	if m != nil {
		s.Enrollment = m.State().String()
		if sess, ok := m.Session(); ok {
			s.Session = &sess
		}
	}
	if id, ok := e.zoneOf(d.ieee); ok {
		s.ZoneID = &id
	}
	if job, ok := e.scheduler.Job(d.ieee); ok {
		s.Refresh = &job
	}
	return s
}

// Stop cancels all refresh jobs and stops every device unit.
func (e *Engine) Stop() {
	e.scheduler.Stop()

	e.mu.Lock()
	devs := make([]*Device, 0, len(e.devices))
	for _, d := range e.devices {
		devs = append(devs, d)
	}
	clear(e.devices)
	clear(e.addrIndex)
	e.mu.Unlock()

	for _, d := range devs {
		d.shutdown()
	}
	e.logger.Info("engine stopped", "devices", len(devs))
}

func (e *Engine) device(ieee string) (*Device, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	d, ok := e.devices[ieee]
	return d, ok
}

func (e *Engine) deviceByAddr(short uint16) (*Device, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ieee, ok := e.addrIndex[short]
	if !ok {
		return nil, false
	}
	d, ok := e.devices[ieee]
	return d, ok
}

func (e *Engine) updateAddress(d *Device, short uint16) {
	old, _ := d.address()
	if old == short {
		return
	}
	d.setAddress(short)
	e.mu.Lock()
	if e.addrIndex[old] == d.ieee {
		delete(e.addrIndex, old)
	}
	e.addrIndex[short] = d.ieee
	e.mu.Unlock()

	err := e.records.UpdateRecord(d.ieee, func(r *store.Record) error {
		r.ShortAddress = short
		return nil
	})
	if err != nil {
		d.logger.Warn("persist short address", "err", err)
	}
	d.logger.Info("short address changed", "old", fmt.Sprintf("0x%04X", old), "new", fmt.Sprintf("0x%04X", short))
}

// withDevice runs fn under the device mutex unless the unit is shut down,
// then emits the events fn returned.
func (e *Engine) withDevice(d *Device, fn func() []Event) {
	var evs []Event
	func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.closed {
			return
		}
		evs = fn()
	}()
	e.emitAll(evs)
}

func (e *Engine) emitAll(evs []Event) {
	for _, ev := range evs {
		e.events.Emit(ev)
	}
}

func valueEvent(d *Device, c string, v any, source string) Event {
	return Event{Type: EventCapabilityValue, Data: CapabilityData{IEEE: d.ieee, Capability: c, Value: v, Source: source}}
}

// observe hands one value to the manager. Caller holds d.mu.
func (e *Engine) observe(d *Device, c string, v any, source string) []Event {
	out, err := d.manager.Observe(c, v)
	return e.outcomeEvents(d, c, v, source, out, err)
}

func (e *Engine) outcomeEvents(d *Device, c string, v any, source string, out capability.Outcome, err error) []Event {
	if err != nil {
		d.logger.Warn("capability update", "capability", c, "outcome", out, "err", err)
	}
	switch out {
	case capability.Added:
		evs := []Event{{Type: EventCapabilityAdded, Data: CapabilityData{IEEE: d.ieee, Capability: c, Source: source}}}
		if err == nil {
			evs = append(evs, valueEvent(d, c, v, source))
		}
		return evs
	case capability.Updated:
		if err == nil {
			return []Event{valueEvent(d, c, v, source)}
		}
	case capability.Refused:
		d.logger.Debug("capability refused", "capability", c, "source", source)
	}
	return nil
}

func (e *Engine) recoverHandler(kind string) {
	if r := recover(); r != nil {
		e.logger.Error("handler panic", "event", kind, "panic", r)
	}
}

func (e *Engine) handleAttributeReport(evt bus.AttributeReportEvent) {
	defer e.recoverHandler("attribute_report")

	d, ok := e.deviceByAddr(evt.SrcAddr)
	if !ok {
		e.logger.Debug("report from unknown device", "short", fmt.Sprintf("0x%04X", evt.SrcAddr))
		return
	}
	decoded, _, err := zcl.DecodeValue(evt.DataType, evt.Value)
	if err != nil {
		d.logger.Warn("decode attribute", "cluster", fmt.Sprintf("0x%04X", evt.ClusterID),
			"attr", fmt.Sprintf("0x%04X", evt.AttrID), "err", err)
		return
	}

	if evt.ClusterID == zcl.ClusterIASZone && evt.AttrID == zcl.AttrIASZoneStatus {
		if n, ok := zcl.Numeric(decoded); ok {
			e.applyZoneStatus(d, uint16(n))
		}
		return
	}

	t, ok := attributeTarget(d.def, evt.SrcEP, evt.ClusterID, evt.AttrID)
	if !ok {
		return
	}
	v, err := t.Value(decoded)
	if err != nil {
		d.logger.Debug("attribute value rejected", "err", err)
		return
	}
	e.withDevice(d, func() []Event {
		return e.observe(d, t.Capability, v, "report")
	})
}

func (e *Engine) handleClusterCommand(evt bus.ClusterCommandEvent) {
	defer e.recoverHandler("cluster_command")

	d, ok := e.deviceByAddr(evt.SrcAddr)
	if !ok {
		e.logger.Debug("command from unknown device", "short", fmt.Sprintf("0x%04X", evt.SrcAddr),
			"cluster", fmt.Sprintf("0x%04X", evt.ClusterID))
		return
	}

	switch {
	case evt.ClusterID == zcl.ClusterIASZone && evt.CommandID == zcl.IASCmdZoneStatusChangeNotification:
		n, err := zcl.ParseZoneStatusChangeNotification(evt.Payload)
		if err != nil {
			d.logger.Warn("zone status notification", "err", err)
			return
		}
		e.applyZoneStatus(d, n.Status)
	case evt.ClusterID == zcl.ClusterIASZone && evt.CommandID == zcl.IASCmdZoneEnrollRequest:
		e.handleEnrollRequest(d, evt)
	case evt.ClusterID == zcl.ClusterTuya && zcl.IsTuyaDatapointCommand(evt.CommandID):
		e.handleDatapoints(d, evt.Payload)
	}
}

func (e *Engine) applyZoneStatus(d *Device, raw uint16) {
	e.withDevice(d, func() []Event {
		var evs []Event
		for _, u := range enrollment.StatusUpdates(raw, d.alarmCapability()) {
			evs = append(evs, e.observe(d, u.Capability, u.Value, "zone")...)
		}
		return evs
	})
}

func (e *Engine) handleEnrollRequest(d *Device, evt bus.ClusterCommandEvent) {
	req := zcl.ParseZoneEnrollRequest(evt.Payload)
	zoneID, err := e.assignZone(d.ieee)
	if err != nil {
		d.logger.Warn("enroll request", "err", err)
		return
	}

	var m *enrollment.Machine
	e.withDevice(d, func() []Event {
		d.zoneEP = evt.SrcEP
		if req.ZoneType != 0 && d.alarm == "" {
			d.alarm = enrollment.AlarmCapability(req.ZoneType)
		}
		if d.machine == nil {
			d.machine = e.newMachine(d, enrollment.Unenrolled)
		}
		m = d.machine
		return nil
	})
	if m != nil {
		m.HandleEnrollRequest(zoneID)
	}
}

func (e *Engine) handleDatapoints(d *Device, payload []byte) {
	seq, events, err := datapoint.ParseFrame(payload, time.Now())
	if err != nil {
		d.logger.Warn("datapoint frame", "seq", seq, "parsed", len(events), "err", err)
	}
	e.withDevice(d, func() []Event {
		var evs []Event
		for _, ev := range events {
			evs = append(evs, e.applyDatapoint(d, ev)...)
		}
		return evs
	})
}

// applyDatapoint decodes one datapoint and observes the result. Caller
// holds d.mu.
func (e *Engine) applyDatapoint(d *Device, ev datapoint.Event) []Event {
	var bound *store.Binding
	if b, ok := d.manager.Binding(ev.ID); ok {
		bound = &b
	}
	res := d.decoder.Decode(ev, bound)
	switch res.Status {
	case datapoint.NoMapping:
		d.logger.Debug("unmapped datapoint", "dp", ev.ID, "kind", ev.Kind, "raw", hex.EncodeToString(ev.Raw))
		return nil
	case datapoint.Rejected:
		return []Event{rejectedEvent(d, ev, res.Reason)}
	}

	c, out, err := d.manager.ObserveDatapoint(ev.ID, res.Candidates)
	var v any
	for _, cand := range res.Candidates {
		if cand.Capability != c {
			continue
		}
		if out == capability.Rejected {
			return []Event{rejectedEvent(d, ev, fmt.Sprintf("%s: %v", c, cand.Err))}
		}
		v = cand.Value
		break
	}
	return e.outcomeEvents(d, c, v, "datapoint", out, err)
}

func rejectedEvent(d *Device, ev datapoint.Event, reason string) Event {
	return Event{Type: EventDatapointRejected, Data: RejectedData{
		IEEE:      d.ieee,
		Datapoint: ev.ID,
		Kind:      ev.Kind.String(),
		Reason:    reason,
	}}
}

func (e *Engine) handleDeviceAnnounce(evt bus.DeviceAnnounceEvent) {
	defer e.recoverHandler("device_announce")

	_, err := e.Attach(DeviceInfo{
		IEEE:         bus.FormatIEEE(evt.IEEEAddr),
		ShortAddr:    evt.ShortAddr,
		Manufacturer: evt.Manufacturer,
		Model:        evt.Model,
	})
	if err != nil {
		e.logger.Error("attach on announce", "err", err)
	}
}

func (e *Engine) handleDeviceLeft(evt bus.DeviceLeftEvent) {
	defer e.recoverHandler("device_left")

	ieee := bus.FormatIEEE(evt.IEEEAddr)
	if evt.IEEEAddr == ([8]byte{}) {
		d, ok := e.deviceByAddr(evt.ShortAddr)
		if !ok {
			return
		}
		ieee = d.ieee
	}
	if err := e.Remove(ieee); err != nil {
		e.logger.Error("remove on leave", "ieee", ieee, "err", err)
	}
}

func (e *Engine) assignZone(ieee string) (uint8, error) {
	e.zoneMu.Lock()
	defer e.zoneMu.Unlock()
	for id, owner := range e.zones {
		if owner == ieee {
			return id, nil
		}
	}
	for i := 0; i < 0xFF; i++ {
		id := uint8(i)
		if _, used := e.zones[id]; used {
			continue
		}
		err := e.records.UpdateRecord(ieee, func(r *store.Record) error {
			r.ZoneID = id
			r.ZoneAssigned = true
			return nil
		})
		if err != nil {
			return 0, fmt.Errorf("persist zone id: %w", err)
		}
		e.zones[id] = ieee
		return id, nil
	}
	return 0, ErrNoFreeZone
}

func (e *Engine) reserveZone(ieee string, id uint8) {
	e.zoneMu.Lock()
	defer e.zoneMu.Unlock()
	if owner, ok := e.zones[id]; ok && owner != ieee {
		e.logger.Warn("zone id already taken", "ieee", ieee, "zone_id", id, "owner", owner)
		return
	}
	e.zones[id] = ieee
}

func (e *Engine) releaseZone(ieee string) {
	e.zoneMu.Lock()
	defer e.zoneMu.Unlock()
	for id, owner := range e.zones {
		if owner == ieee {
			delete(e.zones, id)
		}
	}
}

func (e *Engine) zoneOf(ieee string) (uint8, bool) {
	e.zoneMu.Lock()
	defer e.zoneMu.Unlock()
	for id, owner := range e.zones {
		if owner == ieee {
			return id, true
		}
	}
	return 0, false
}
