package store

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	ErrNotFound = errors.New("not found")

	// ErrNotExposed is returned when a value is written to a capability the
	// device does not expose.
	ErrNotExposed = errors.New("capability not exposed")
)

// Store defines the persistence interface. It holds two kinds of data:
// engine records (bindings, exposed set, zone id, enrollment) and the host
// view of each device (exposed capabilities and their last values).
type Store interface {
	// Engine records
	GetRecord(ieee string) (*Record, error)
	ListRecords() ([]*Record, error)
	DeleteRecord(ieee string) error

	// UpdateRecord atomically reads, modifies, and saves a record in a single
	// transaction. A missing record is created empty before fn runs.
	UpdateRecord(ieee string, fn func(rec *Record) error) error

	// Host device state
	GetDevice(ieee string) (*Device, error)
	ListDevices() ([]*Device, error)
	DeleteDevice(ieee string) error
	AddCapability(ieee, capability string) error
	HasCapability(ieee, capability string) (bool, error)
	RemoveCapability(ieee, capability string) error
	SetCapabilityValue(ieee, capability string, value any) error

	// Close the store
	Close() error
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
