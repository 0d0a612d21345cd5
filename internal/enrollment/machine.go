// Package enrollment runs the IAS Zone enrollment handshake for alarm-class
// devices and decodes their zone status.
package enrollment

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/bus"
	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/store"
	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/zcl"
)

// State of the enrollment handshake.
type State int

const (
	Unenrolled State = iota
	Enrolling
	Enrolled
	Failed
)

func (s State) String() string {
	switch s {
	case Unenrolled:
		return store.EnrollmentUnenrolled
	case Enrolling:
		return store.EnrollmentEnrolling
	case Enrolled:
		return store.EnrollmentEnrolled
	case Failed:
		return store.EnrollmentFailed
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ParseState converts a persisted state name. An interrupted handshake
// (enrolling) restarts as unenrolled; the device will ask again.
func ParseState(s string) State {
	switch s {
	case store.EnrollmentEnrolled:
		return Enrolled
	case store.EnrollmentFailed:
		return Failed
	}
	return Unenrolled
}

// Sender is the part of the bus the handshake needs.
type Sender interface {
	WriteAttributes(ctx context.Context, req bus.WriteAttributesRequest) error
	SendCommand(ctx context.Context, req bus.ClusterCommandRequest) error
	LocalIEEE() [8]byte
}

// Config bounds the handshake.
type Config struct {
	MaxAttempts    int           // default 3
	Backoff        time.Duration // linear step between attempts, default 1s
	AttemptTimeout time.Duration // per send, default 5s
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = time.Second
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 5 * time.Second
	}
	return c
}

// Session is the transient state of one handshake.
type Session struct {
	Attempts    int       `json:"attempts"`
	LastRequest time.Time `json:"last_request"`
	ZoneID      uint8     `json:"zone_id"`
}

// Transition is reported after every state change. Err is set when the
// machine gave up. Transitions are delivered one at a time in state order; a
// transition overtaken by a newer one is not delivered.
type Transition struct {
	From, To State
	ZoneID   uint8
	Attempts int
	Err      error
}

// Address returns the device's current short address and IAS endpoint.
type Address func() (shortAddr uint16, endpoint uint8)

// Machine is the enrollment state machine of one device.
type Machine struct {
	ieee     string
	sender   Sender
	addr     Address
	cfg      Config
	onChange func(Transition)
	logger   *slog.Logger

	mu      sync.Mutex
	state   State
	seq     uint64 // bumped on every state change
	session *Session
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	notifyMu sync.Mutex
	notified uint64 // seq of the last delivered transition
}

// New creates a machine in the given initial state. onChange may be nil.
func New(ieee string, initial State, sender Sender, addr Address, cfg Config, onChange func(Transition), logger *slog.Logger) *Machine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Machine{
		ieee:     ieee,
		sender:   sender,
		addr:     addr,
		cfg:      cfg.withDefaults(),
		onChange: onChange,
		logger:   logger.With("component", "enrollment", "ieee", ieee),
		state:    initial,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Session returns a copy of the running or last handshake, if any.
func (m *Machine) Session() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return Session{}, false
	}
	return *m.session, true
}

// HandleEnrollRequest starts a handshake with the given zone id. It returns
// false when the request is ignored: a handshake is already running, or the
// machine is stopped.
func (m *Machine) HandleEnrollRequest(zoneID uint8) bool {
	m.mu.Lock()
	if m.state == Enrolling || m.ctx.Err() != nil {
		m.mu.Unlock()
		m.logger.Debug("enroll request ignored", "state", m.State())
		return false
	}
	from := m.state
	m.state = Enrolling
	m.seq++
	seq := m.seq
	m.session = &Session{LastRequest: time.Now(), ZoneID: zoneID}
	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.Info("enrolling", "zone_id", zoneID, "from", from)
	m.notify(seq, Transition{From: from, To: Enrolling, ZoneID: zoneID})
	go m.run(zoneID)
	return true
}

func (m *Machine) run(zoneID uint8) {
	defer m.wg.Done()

	m.writeCIEAddress()

	var lastErr error
	for attempt := 1; attempt <= m.cfg.MaxAttempts; attempt++ {
		m.mu.Lock()
		m.session.Attempts = attempt
		m.mu.Unlock()

		lastErr = m.sendResponse(zoneID)
		if lastErr == nil {
			m.finish(Enrolled, attempt, nil)
			return
		}
		if m.ctx.Err() != nil {
			return
		}
		m.logger.Warn("enroll response failed", "attempt", attempt, "err", lastErr)

		if attempt < m.cfg.MaxAttempts {
			delay := time.Duration(attempt) * m.cfg.Backoff
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-m.ctx.Done():
				timer.Stop()
				return
			}
		}
	}
	m.finish(Failed, m.cfg.MaxAttempts, lastErr)
}

func (m *Machine) finish(to State, attempts int, err error) {
	m.mu.Lock()
	zoneID := m.session.ZoneID
	m.state = to
	m.seq++
	seq := m.seq
	m.mu.Unlock()

	if to == Failed {
		m.logger.Warn("enrollment failed", "attempts", attempts, "err", err)
	} else {
		m.logger.Info("enrolled", "zone_id", zoneID, "attempts", attempts)
	}
	m.notify(seq, Transition{From: Enrolling, To: to, ZoneID: zoneID, Attempts: attempts, Err: err})
}

// writeCIEAddress tells the device where to report. Many devices work
// without it, so failure is only logged.
func (m *Machine) writeCIEAddress() {
	short, ep := m.addr()
	local := m.sender.LocalIEEE()
	value, err := zcl.EncodeValue(zcl.TypeEUI64, local)
	if err != nil {
		m.logger.Warn("encode CIE address", "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.AttemptTimeout)
	defer cancel()
	err = m.sender.WriteAttributes(ctx, bus.WriteAttributesRequest{
		DstAddr:   short,
		DstEP:     ep,
		ClusterID: zcl.ClusterIASZone,
		Records: []bus.WriteRecord{{
			AttrID:   zcl.AttrIASCIEAddress,
			DataType: zcl.TypeEUI64,
			Value:    value,
		}},
	})
	if err != nil {
		m.logger.Warn("write CIE address", "err", err)
	}
}

func (m *Machine) sendResponse(zoneID uint8) error {
	short, ep := m.addr()
	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.AttemptTimeout)
	defer cancel()
	return m.sender.SendCommand(ctx, bus.ClusterCommandRequest{
		DstAddr:   short,
		DstEP:     ep,
		ClusterID: zcl.ClusterIASZone,
		CommandID: zcl.IASCmdZoneEnrollResponse,
		Payload:   zcl.EncodeZoneEnrollResponse(zcl.EnrollSuccess, zoneID),
	})
}

// notify delivers t unless a transition with a later seq already went out.
// onChange must not start a handshake.
func (m *Machine) notify(seq uint64, t Transition) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	if seq <= m.notified {
		m.logger.Debug("stale transition dropped", "to", t.To)
		return
	}
	m.notified = seq
	if m.onChange != nil {
		m.onChange(t)
	}
}

// Stop cancels a running handshake and waits for it to exit. Safe to call
// more than once.
func (m *Machine) Stop() {
	m.mu.Lock()
	m.cancel()
	m.mu.Unlock()
	m.wg.Wait()
}
