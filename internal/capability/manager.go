package capability

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/store"
)

var (
	// ErrPersist means the exposed set or a binding could not be saved. The
	// change is not committed and will be retried on the next event.
	ErrPersist = errors.New("capability: persist failed")

	// ErrRemoveUnsupported is returned by Remove when the host cannot
	// remove capabilities.
	ErrRemoveUnsupported = errors.New("capability: host cannot remove capabilities")
)

// Host is the device-state store the host application provides.
type Host interface {
	SetCapabilityValue(ieee, capability string, value any) error
	AddCapability(ieee, capability string) error
	HasCapability(ieee, capability string) (bool, error)
}

// Remover is implemented by hosts that support explicit capability removal.
type Remover interface {
	RemoveCapability(ieee, capability string) error
}

// Records persists per-device engine state.
type Records interface {
	UpdateRecord(ieee string, fn func(rec *store.Record) error) error
}

// Outcome is the result of handing a value to the manager.
type Outcome int

const (
	// Updated: the capability was exposed and received the value.
	Updated Outcome = iota + 1
	// Added: the capability was added to the exposed set, then updated.
	Added
	// Refused: policy does not allow exposing the capability.
	Refused
	// Skipped: nothing was written (not exposed on a refresh, an earlier
	// add failed this session, or the capability was removed explicitly).
	Skipped
	// Rejected: the candidate resolution picked failed validation. Nothing
	// was written and no binding was learned.
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Updated:
		return "updated"
	case Added:
		return "added"
	case Refused:
		return "refused"
	case Skipped:
		return "skipped"
	case Rejected:
		return "rejected"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Candidate is one possible target for a decoded datapoint value. Err is set
// when the value failed coercion or range for this target; such a candidate
// still takes part in resolution but is never written.
type Candidate struct {
	Capability string
	Value      any
	Binding    store.Binding
	Err        error
}

// Manager owns the exposed capability set of one device.
type Manager struct {
	ieee    string
	host    Host
	records Records
	logger  *slog.Logger

	mu       sync.Mutex
	declared map[string]bool
	exposed  map[string]bool
	removed  map[string]bool
	failed   map[string]bool // host add failed this session
	bindings map[uint8]store.Binding
}

// NewManager creates a manager for one device. declared lists the
// capabilities static metadata says the device has.
func NewManager(ieee string, declared []string, host Host, records Records, logger *slog.Logger) *Manager {
	m := &Manager{
		ieee:     ieee,
		host:     host,
		records:  records,
		logger:   logger.With("component", "capability", "ieee", ieee),
		declared: make(map[string]bool),
		exposed:  make(map[string]bool),
		removed:  make(map[string]bool),
		failed:   make(map[string]bool),
		bindings: make(map[uint8]store.Binding),
	}
	for _, c := range declared {
		m.declared[c] = true
	}
	return m
}

// Load restores persisted state. Call before the first event.
func (m *Manager) Load(rec *store.Record) {
	if rec == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range rec.Exposed {
		m.exposed[c] = true
	}
	for _, c := range rec.Removed {
		m.removed[c] = true
	}
	for _, b := range rec.Bindings {
		m.bindings[b.Datapoint] = b
	}
}

// EnsureDeclared exposes every declared capability that is not yet exposed
// and not explicitly removed. Declared capabilities bypass the allow-list.
func (m *Manager) EnsureDeclared() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for c := range m.declared {
		if m.exposed[c] || m.removed[c] {
			continue
		}
		if err := m.expose(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Observe writes value to capability c, adding c to the exposed set first if
// policy allows. A capability is added at most once.
func (m *Manager) Observe(c string, value any) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.observe(c, value)
}

func (m *Manager) observe(c string, value any) (Outcome, error) {
	if m.exposed[c] {
		return m.write(c, value)
	}
	if !m.declared[c] && !AllowListed(c) {
		return Refused, nil
	}
	if m.removed[c] || m.failed[c] {
		return Skipped, nil
	}
	if err := m.expose(c); err != nil {
		return Skipped, err
	}
	m.logger.Info("capability added", "capability", c)
	if _, err := m.write(c, value); err != nil {
		return Added, err
	}
	return Added, nil
}

// expose adds c on the host and records it. The add counts only once the
// record is saved. Caller holds mu.
func (m *Manager) expose(c string) error {
	has, err := m.host.HasCapability(m.ieee, c)
	if err != nil {
		return fmt.Errorf("has capability %s: %w", c, err)
	}
	if !has {
		if err := m.host.AddCapability(m.ieee, c); err != nil {
			m.failed[c] = true
			return fmt.Errorf("add capability %s: %w", c, err)
		}
	}
	err = m.records.UpdateRecord(m.ieee, func(rec *store.Record) error {
		if !rec.IsExposed(c) {
			rec.Exposed = append(rec.Exposed, c)
		}
		return nil
	})
	if err != nil {
		m.logger.Warn("persist exposed set", "capability", c, "err", err)
		return fmt.Errorf("%w: exposed set: %v", ErrPersist, err)
	}
	m.exposed[c] = true
	return nil
}

func (m *Manager) write(c string, value any) (Outcome, error) {
	if err := m.host.SetCapabilityValue(m.ieee, c, value); err != nil {
		return Updated, fmt.Errorf("set %s: %w", c, err)
	}
	return Updated, nil
}

// Refresh writes value only if c is already exposed. It never grows the set.
func (m *Manager) Refresh(c string, value any) (Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.exposed[c] {
		return Skipped, nil
	}
	return m.write(c, value)
}

// Binding returns the learned binding for a datapoint.
func (m *Manager) Binding(dp uint8) (store.Binding, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bindings[dp]
	return b, ok
}

// ObserveDatapoint resolves which candidate receives a datapoint value and
// observes it. Resolution order: learned binding, a candidate already
// exposed, then the first candidate policy would allow adding. The chosen
// binding is persisted once the observe commits, so later events for the
// same datapoint skip inference. If the chosen candidate carries an error the
// event is Rejected: a bad value never moves inference to a lower-ranked
// candidate.
func (m *Manager) ObserveDatapoint(dp uint8, candidates []Candidate) (string, Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	chosen, ok := m.resolve(dp, candidates)
	if !ok {
		return "", Refused, nil
	}
	if chosen.Err != nil {
		m.logger.Debug("datapoint value rejected", "dp", dp, "capability", chosen.Capability, "err", chosen.Err)
		return chosen.Capability, Rejected, nil
	}
	outcome, err := m.observe(chosen.Capability, chosen.Value)
	if outcome != Updated && outcome != Added {
		return chosen.Capability, outcome, err
	}
	if _, bound := m.bindings[dp]; !bound {
		b := chosen.Binding
		b.Datapoint = dp
		b.Capability = chosen.Capability
		if perr := m.persistBinding(b); perr != nil && err == nil {
			err = perr
		}
	}
	return chosen.Capability, outcome, err
}

func (m *Manager) resolve(dp uint8, candidates []Candidate) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	if b, ok := m.bindings[dp]; ok {
		for _, cand := range candidates {
			if cand.Capability == b.Capability {
				return cand, true
			}
		}
		return Candidate{}, false
	}
	for _, cand := range candidates {
		if m.exposed[cand.Capability] {
			return cand, true
		}
	}
	for _, cand := range candidates {
		c := cand.Capability
		if (m.declared[c] || AllowListed(c)) && !m.removed[c] && !m.failed[c] {
			return cand, true
		}
	}
	return candidates[0], true
}

func (m *Manager) persistBinding(b store.Binding) error {
	err := m.records.UpdateRecord(m.ieee, func(rec *store.Record) error {
		rec.SetBinding(b)
		return nil
	})
	if err != nil {
		m.logger.Warn("persist binding", "dp", b.Datapoint, "capability", b.Capability, "err", err)
		return fmt.Errorf("%w: binding dp %d: %v", ErrPersist, b.Datapoint, err)
	}
	m.bindings[b.Datapoint] = b
	m.logger.Debug("datapoint bound", "dp", b.Datapoint, "capability", b.Capability)
	return nil
}

// Remove drops c from the exposed set. It is only ever called on explicit
// request; a removed capability is not re-added automatically.
func (m *Manager) Remove(c string) error {
	remover, ok := m.host.(Remover)
	if !ok {
		return ErrRemoveUnsupported
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := remover.RemoveCapability(m.ieee, c); err != nil {
		return fmt.Errorf("remove capability %s: %w", c, err)
	}
	err := m.records.UpdateRecord(m.ieee, func(rec *store.Record) error {
		rec.Exposed = slices.DeleteFunc(rec.Exposed, func(e string) bool { return e == c })
		rec.Bindings = slices.DeleteFunc(rec.Bindings, func(b store.Binding) bool { return b.Capability == c })
		if !slices.Contains(rec.Removed, c) {
			rec.Removed = append(rec.Removed, c)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: remove %s: %v", ErrPersist, c, err)
	}
	delete(m.exposed, c)
	for dp, b := range m.bindings {
		if b.Capability == c {
			delete(m.bindings, dp)
		}
	}
	m.removed[c] = true
	m.logger.Info("capability removed", "capability", c)
	return nil
}

// Exposed returns the committed exposed set, sorted.
func (m *Manager) Exposed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.exposed))
	for c := range m.exposed {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// IsExposed reports whether c is in the committed exposed set.
func (m *Manager) IsExposed(c string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exposed[c]
}

// Bindings returns a copy of the learned binding table.
func (m *Manager) Bindings() []store.Binding {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Binding, 0, len(m.bindings))
	for _, b := range m.bindings {
		out = append(out, b)
	}
	slices.SortFunc(out, func(a, b store.Binding) int { return int(a.Datapoint) - int(b.Datapoint) })
	return out
}
