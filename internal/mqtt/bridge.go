//go:build !no_mqtt

// Package mqtt publishes normalized device state to MQTT with Home Assistant
// discovery.
package mqtt

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/engine"
)

// Config holds MQTT bridge configuration.
type Config struct {
	Broker      string
	Username    string
	Password    string
	ClientID    string
	TopicPrefix string
}

// Devices is the read side of the engine the bridge needs.
type Devices interface {
	Device(ieee string) (engine.Snapshot, bool)
	Devices() []engine.Snapshot
}

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
}

// Bridge mirrors engine events to MQTT.
type Bridge struct {
	client  pahomqtt.Client
	pub     publisher
	devices Devices
	events  *engine.EventBus
	prefix  string
	logger  *slog.Logger
	unsub   func()

	// Per-device state accumulator and the capabilities announced to HA.
	mu        sync.Mutex
	states    map[string]map[string]any
	announced map[string][]string
	topics    map[string]string
}

func newBridge(devices Devices, events *engine.EventBus, prefix string, logger *slog.Logger) *Bridge {
	return &Bridge{
		devices:   devices,
		events:    events,
		prefix:    prefix,
		logger:    logger.With("component", "mqtt"),
		states:    make(map[string]map[string]any),
		announced: make(map[string][]string),
		topics:    make(map[string]string),
	}
}

// NewBridge creates and connects an MQTT bridge.
func NewBridge(devices Devices, events *engine.EventBus, cfg Config, logger *slog.Logger) (*Bridge, error) {
	b := newBridge(devices, events, cfg.TopicPrefix, logger)

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "tuya-normalizer"
	}
	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(cfg.TopicPrefix+"/bridge/state", "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			b.logger.Info("MQTT connected")
			b.publishBridgeState("online")
			b.publishAllDiscovery()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.Warn("MQTT connection lost", "err", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	b.client = client
	b.pub = client
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return b, nil
}

// Start subscribes to engine events.
func (b *Bridge) Start() {
	b.unsub = b.events.OnAll(b.handleEvent)
	b.logger.Info("MQTT bridge started", "prefix", b.prefix)
}

// Stop publishes offline state, unsubscribes, and disconnects.
func (b *Bridge) Stop() {
	if b.unsub != nil {
		b.unsub()
	}
	b.publishBridgeState("offline")
	if b.client != nil {
		b.client.Disconnect(1000)
	}
	b.logger.Info("MQTT bridge stopped")
}

func (b *Bridge) handleEvent(event engine.Event) {
	switch data := event.Data.(type) {
	case engine.CapabilityData:
		switch event.Type {
		case engine.EventCapabilityAdded:
			b.announce(data.IEEE, data.Capability)
		case engine.EventCapabilityValue:
			b.updateAndPublishState(data.IEEE, data.Capability, data.Value)
		case engine.EventCapabilityRemoved:
			b.withdraw(data.IEEE, data.Capability)
		}
	case engine.EnrollmentData:
		b.updateAndPublishState(data.IEEE, "enrollment", data.State)
	case engine.DeviceData:
		switch event.Type {
		case engine.EventDeviceAttached:
			if dev, ok := b.devices.Device(data.IEEE); ok {
				b.publishDeviceDiscovery(dev)
			}
		case engine.EventDeviceRemoved:
			b.handleDeviceRemoved(data.IEEE)
		}
	}
}

func (b *Bridge) announce(ieee, c string) {
	dev, ok := b.devices.Device(ieee)
	if !ok {
		return
	}
	b.mu.Lock()
	if slices.Contains(b.announced[ieee], c) {
		b.mu.Unlock()
		return
	}
	b.announced[ieee] = append(b.announced[ieee], c)
	b.mu.Unlock()

	msg := buildCapabilityDiscovery(dev, c, b.prefix)
	b.publish(msg.Topic, msg.Payload, true)
}

func (b *Bridge) withdraw(ieee, c string) {
	b.mu.Lock()
	b.announced[ieee] = slices.DeleteFunc(b.announced[ieee], func(s string) bool { return s == c })
	if state, ok := b.states[ieee]; ok {
		delete(state, c)
	}
	b.mu.Unlock()

	for _, msg := range buildRemoveDiscovery(ieee, []string{c}) {
		b.publish(msg.Topic, msg.Payload, true)
	}
}

func (b *Bridge) updateAndPublishState(ieee, prop string, value any) {
	topic := b.prefix + "/" + b.topicName(ieee)
	b.mu.Lock()
	b.topics[ieee] = topic
	state, ok := b.states[ieee]
	if !ok {
		state = make(map[string]any)
		b.states[ieee] = state
	}
	state[prop] = value
	state["last_seen"] = time.Now().Format(time.RFC3339)
	payload := mustJSON(state)
	b.mu.Unlock()

	b.publish(topic, payload, true)
}

func (b *Bridge) handleDeviceRemoved(ieee string) {
	b.mu.Lock()
	caps := b.announced[ieee]
	topic, published := b.topics[ieee]
	delete(b.announced, ieee)
	delete(b.states, ieee)
	delete(b.topics, ieee)
	b.mu.Unlock()

	for _, msg := range buildRemoveDiscovery(ieee, caps) {
		b.publish(msg.Topic, msg.Payload, true)
	}
	if published {
		b.publish(topic, []byte{}, true)
	}
}

func (b *Bridge) publishBridgeState(state string) {
	b.publish(b.prefix+"/bridge/state", []byte(state), true)
}

func (b *Bridge) publishAllDiscovery() {
	for _, dev := range b.devices.Devices() {
		b.publishDeviceDiscovery(dev)
	}
}

func (b *Bridge) publishDeviceDiscovery(dev engine.Snapshot) {
	if len(dev.Exposed) == 0 {
		return
	}
	b.mu.Lock()
	b.announced[dev.IEEEAddress] = slices.Clone(dev.Exposed)
	b.mu.Unlock()

	for _, msg := range buildDiscovery(dev, b.prefix) {
		b.publish(msg.Topic, msg.Payload, true)
	}
	b.logger.Info("published HA discovery", "ieee", dev.IEEEAddress, "name", deviceDisplayName(dev))
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) {
	if b.pub == nil {
		return
	}
	token := b.pub.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			b.logger.Warn("MQTT publish timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			b.logger.Warn("MQTT publish error", "topic", topic, "err", err)
		}
	}()
}

// topicName returns the MQTT topic name for a device by IEEE.
func (b *Bridge) topicName(ieee string) string {
	dev, ok := b.devices.Device(ieee)
	if !ok {
		return ieee
	}
	return deviceTopicName(dev)
}
