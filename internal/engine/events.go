package engine

import (
	"log/slog"
	"sync"
)

// Event types
const (
	EventDeviceAttached    = "device_attached"
	EventDeviceRemoved     = "device_removed"
	EventCapabilityAdded   = "capability_added"
	EventCapabilityValue   = "capability_value"
	EventCapabilityRemoved = "capability_removed"
	EventEnrollmentState   = "enrollment_state"
	EventDatapointRejected = "datapoint_rejected"
	EventRefreshPass       = "refresh_pass"
)

// Event represents an engine event.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// CapabilityData is carried by the capability_* events.
type CapabilityData struct {
	IEEE       string `json:"ieee"`
	Capability string `json:"capability"`
	Value      any    `json:"value,omitempty"`
	Source     string `json:"source,omitempty"` // report, zone, datapoint, refresh
}

// EnrollmentData is carried by enrollment_state.
type EnrollmentData struct {
	IEEE     string `json:"ieee"`
	State    string `json:"state"`
	ZoneID   uint8  `json:"zone_id"`
	Attempts int    `json:"attempts,omitempty"`
	Error    string `json:"error,omitempty"`
}

// RejectedData is carried by datapoint_rejected.
type RejectedData struct {
	IEEE      string `json:"ieee"`
	Datapoint uint8  `json:"dp"`
	Kind      string `json:"kind"`
	Reason    string `json:"reason"`
}

// RefreshData is carried by refresh_pass.
type RefreshData struct {
	IEEE      string `json:"ieee"`
	Attempted int    `json:"attempted"`
	Updated   int    `json:"updated"`
	Skipped   int    `json:"skipped"`
}

// DeviceData is carried by device_attached and device_removed.
type DeviceData struct {
	IEEE         string `json:"ieee"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Model        string `json:"model,omitempty"`
}

// EventHandler is a callback for events.
type EventHandler func(Event)

// EventBus provides pub/sub for engine events.
type EventBus struct {
	mu          sync.RWMutex
	handlers    map[string]map[uint64]EventHandler
	allHandlers map[uint64]EventHandler
	nextID      uint64
	logger      *slog.Logger
}

// NewEventBus creates a new event bus.
func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		handlers:    make(map[string]map[uint64]EventHandler),
		allHandlers: make(map[uint64]EventHandler),
		logger:      logger,
	}
}

// On registers a handler for one event type and returns its unsubscribe
// function.
func (eb *EventBus) On(eventType string, handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	id := eb.nextID
	eb.nextID++
	if eb.handlers[eventType] == nil {
		eb.handlers[eventType] = make(map[uint64]EventHandler)
	}
	eb.handlers[eventType][id] = handler
	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		delete(eb.handlers[eventType], id)
	}
}

// OnAll registers a handler that receives every event.
func (eb *EventBus) OnAll(handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	id := eb.nextID
	eb.nextID++
	eb.allHandlers[id] = handler
	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		delete(eb.allHandlers, id)
	}
}

// Emit calls the matching handlers synchronously. A panicking handler is
// recovered and logged.
func (eb *EventBus) Emit(event Event) {
	eb.mu.RLock()
	handlers := make([]EventHandler, 0, len(eb.handlers[event.Type])+len(eb.allHandlers))
	for _, h := range eb.handlers[event.Type] {
		handlers = append(handlers, h)
	}
	for _, h := range eb.allHandlers {
		handlers = append(handlers, h)
	}
	eb.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					eb.logger.Error("event handler panic", "type", event.Type, "panic", r)
				}
			}()
			h(event)
		}()
	}
}
