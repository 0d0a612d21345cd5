// Package mqttbus implements bus.Adapter against a radio gateway that
// exposes the Zigbee network over MQTT.
//
// Topics, relative to the configured prefix:
//
//	<prefix>/event/attribute_report   gateway -> engine
//	<prefix>/event/cluster_command    gateway -> engine
//	<prefix>/event/device_announce    gateway -> engine
//	<prefix>/event/device_left        gateway -> engine
//	<prefix>/request/<id>             engine -> gateway
//	<prefix>/response/<id>            gateway -> engine
package mqttbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/bus"
)

// Config holds gateway connection settings.
type Config struct {
	Broker          string
	Username        string
	Password        string
	ClientID        string
	TopicPrefix     string
	CoordinatorIEEE string
	RequestTimeout  time.Duration
}

// Request operations understood by the gateway.
const (
	opReadAttributes  = "read_attributes"
	opWriteAttributes = "write_attributes"
	opCommand         = "command"
)

// publisher is the subset of the paho client used to send requests.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
}

type envelope struct {
	ID      string `json:"id"`
	Op      string `json:"op"`
	Request any    `json:"request"`
}

type response struct {
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Payload []byte `json:"payload,omitempty"` // raw ZCL Read Attributes Response
}

// The gateway sends IEEE addresses as hex strings.
type announceMsg struct {
	ShortAddr    uint16 `json:"short_addr"`
	IEEE         string `json:"ieee"`
	Manufacturer string `json:"manufacturer,omitempty"`
	Model        string `json:"model,omitempty"`
}

type leftMsg struct {
	ShortAddr uint16 `json:"short_addr"`
	IEEE      string `json:"ieee"`
}

// Bus is an MQTT-backed bus.Adapter.
type Bus struct {
	conn    pahomqtt.Client
	pub     publisher
	prefix  string
	local   [8]byte
	timeout time.Duration
	logger  *slog.Logger

	// Pending requests keyed by request id.
	pendingMu sync.Mutex
	pending   map[string]chan response

	handlerMu  sync.RWMutex
	onReport   func(bus.AttributeReportEvent)
	onCommand  func(bus.ClusterCommandEvent)
	onAnnounce func(bus.DeviceAnnounceEvent)
	onLeft     func(bus.DeviceLeftEvent)
}

var _ bus.Adapter = (*Bus)(nil)

func newBus(cfg Config, local [8]byte, logger *slog.Logger) *Bus {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Bus{
		prefix:  strings.TrimSuffix(cfg.TopicPrefix, "/"),
		local:   local,
		timeout: timeout,
		logger:  logger.With("component", "mqttbus"),
		pending: make(map[string]chan response),
	}
}

// New connects to the broker and subscribes to the gateway topics.
func New(cfg Config, logger *slog.Logger) (*Bus, error) {
	local, err := bus.ParseIEEE(cfg.CoordinatorIEEE)
	if err != nil {
		return nil, fmt.Errorf("mqttbus: coordinator ieee: %w", err)
	}
	b := newBus(cfg, local, logger)

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "tuya-normalizer-bus"
	}
	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(c pahomqtt.Client) {
			b.logger.Info("gateway connected", "prefix", b.prefix)
			b.subscribe(c)
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.Warn("gateway connection lost", "err", err)
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqttbus: connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqttbus: connect: %w", err)
	}
	b.conn = client
	b.pub = client
	return b, nil
}

func (b *Bus) subscribe(c pahomqtt.Client) {
	filters := map[string]byte{
		b.prefix + "/event/+":    1,
		b.prefix + "/response/+": 1,
	}
	token := c.SubscribeMultiple(filters, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		b.handleMessage(msg.Topic(), msg.Payload())
	})
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			b.logger.Error("gateway subscribe", "err", err)
		}
	}()
}

// LocalIEEE returns the configured coordinator address.
func (b *Bus) LocalIEEE() [8]byte { return b.local }

// Close disconnects from the broker. Pending requests fail with their
// context deadline.
func (b *Bus) Close() error {
	if b.conn != nil {
		b.conn.Disconnect(1000)
	}
	return nil
}

// ReadAttributes asks the gateway to read attributes and parses the raw
// response frame it returns.
func (b *Bus) ReadAttributes(ctx context.Context, req bus.ReadAttributesRequest) ([]bus.AttributeResponse, error) {
	resp, err := b.request(ctx, opReadAttributes, req)
	if err != nil {
		return nil, err
	}
	return bus.ParseReadAttributesResponse(resp.Payload), nil
}

func (b *Bus) WriteAttributes(ctx context.Context, req bus.WriteAttributesRequest) error {
	_, err := b.request(ctx, opWriteAttributes, req)
	return err
}

func (b *Bus) SendCommand(ctx context.Context, req bus.ClusterCommandRequest) error {
	_, err := b.request(ctx, opCommand, req)
	return err
}

func (b *Bus) request(ctx context.Context, op string, body any) (response, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	id := uuid.NewString()
	raw, err := json.Marshal(envelope{ID: id, Op: op, Request: body})
	if err != nil {
		return response{}, fmt.Errorf("mqttbus: %s: encode: %w", op, err)
	}

	ch := make(chan response, 1)
	b.pendingMu.Lock()
	b.pending[id] = ch
	b.pendingMu.Unlock()
	defer func() {
		b.pendingMu.Lock()
		delete(b.pending, id)
		b.pendingMu.Unlock()
	}()

	token := b.pub.Publish(b.prefix+"/request/"+id, 1, false, raw)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return response{}, fmt.Errorf("mqttbus: %s: publish: %w", op, err)
		}
	case <-ctx.Done():
		return response{}, fmt.Errorf("mqttbus: %s: %w", op, bus.ErrTimeout)
	}

	select {
	case resp := <-ch:
		if resp.Status != "ok" {
			msg := resp.Error
			if msg == "" {
				msg = "status " + resp.Status
			}
			return resp, fmt.Errorf("mqttbus: %s: gateway: %s", op, msg)
		}
		return resp, nil
	case <-ctx.Done():
		return response{}, fmt.Errorf("mqttbus: %s: %w", op, bus.ErrTimeout)
	}
}

func (b *Bus) handleMessage(topic string, payload []byte) {
	rest, ok := strings.CutPrefix(topic, b.prefix+"/")
	if !ok {
		return
	}
	kind, name, ok := strings.Cut(rest, "/")
	if !ok {
		return
	}
	switch kind {
	case "response":
		b.handleResponse(name, payload)
	case "event":
		b.handleEvent(name, payload)
	}
}

func (b *Bus) handleResponse(id string, payload []byte) {
	var resp response
	if err := json.Unmarshal(payload, &resp); err != nil {
		b.logger.Warn("bad gateway response", "id", id, "err", err)
		return
	}
	b.pendingMu.Lock()
	ch, ok := b.pending[id]
	b.pendingMu.Unlock()
	if !ok {
		// Late reply for a request that already timed out.
		return
	}
	select {
	case ch <- resp:
	default:
	}
}

func (b *Bus) handleEvent(name string, payload []byte) {
	b.handlerMu.RLock()
	onReport := b.onReport
	onCommand := b.onCommand
	onAnnounce := b.onAnnounce
	onLeft := b.onLeft
	b.handlerMu.RUnlock()

	var err error
	switch name {
	case "attribute_report":
		var evt bus.AttributeReportEvent
		if err = json.Unmarshal(payload, &evt); err == nil && onReport != nil {
			onReport(evt)
		}
	case "cluster_command":
		var evt bus.ClusterCommandEvent
		if err = json.Unmarshal(payload, &evt); err == nil && onCommand != nil {
			onCommand(evt)
		}
	case "device_announce":
		var msg announceMsg
		if err = json.Unmarshal(payload, &msg); err != nil {
			break
		}
		var addr [8]byte
		if addr, err = bus.ParseIEEE(msg.IEEE); err == nil && onAnnounce != nil {
			onAnnounce(bus.DeviceAnnounceEvent{
				ShortAddr:    msg.ShortAddr,
				IEEEAddr:     addr,
				Manufacturer: msg.Manufacturer,
				Model:        msg.Model,
			})
		}
	case "device_left":
		var msg leftMsg
		if err = json.Unmarshal(payload, &msg); err != nil {
			break
		}
		var addr [8]byte
		if addr, err = bus.ParseIEEE(msg.IEEE); err == nil && onLeft != nil {
			onLeft(bus.DeviceLeftEvent{ShortAddr: msg.ShortAddr, IEEEAddr: addr})
		}
	default:
		b.logger.Debug("unknown gateway event", "event", name)
	}
	if err != nil {
		b.logger.Warn("bad gateway event", "event", name, "err", err)
	}
}

// --- Indication callback setters ---

func (b *Bus) OnAttributeReport(handler func(bus.AttributeReportEvent)) {
	b.handlerMu.Lock()
	defer b.handlerMu.Unlock()
	b.onReport = handler
}

func (b *Bus) OnClusterCommand(handler func(bus.ClusterCommandEvent)) {
	b.handlerMu.Lock()
	defer b.handlerMu.Unlock()
	b.onCommand = handler
}

func (b *Bus) OnDeviceAnnounce(handler func(bus.DeviceAnnounceEvent)) {
	b.handlerMu.Lock()
	defer b.handlerMu.Unlock()
	b.onAnnounce = handler
}

func (b *Bus) OnDeviceLeft(handler func(bus.DeviceLeftEvent)) {
	b.handlerMu.Lock()
	defer b.handlerMu.Unlock()
	b.onLeft = handler
}
