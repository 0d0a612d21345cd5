//go:build !no_mqtt

package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/capability"
	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/engine"
)

// discoveryMsg is a Home Assistant MQTT discovery payload.
type discoveryMsg struct {
	Topic   string // e.g. "homeassistant/sensor/tuya_A4C138.../measure_temperature/config"
	Payload []byte // JSON, empty means delete
}

// haDevice is the "device" block in HA discovery.
type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name"`
}

type haDiscovery struct {
	Name              string   `json:"name"`
	UniqueID          string   `json:"unique_id"`
	StateTopic        string   `json:"state_topic"`
	AvailabilityTopic string   `json:"availability_topic"`
	ValueTemplate     string   `json:"value_template,omitempty"`
	UnitOfMeasurement string   `json:"unit_of_measurement,omitempty"`
	DeviceClass       string   `json:"device_class,omitempty"`
	StateClass        string   `json:"state_class,omitempty"`
	PayloadOn         string   `json:"payload_on,omitempty"`
	PayloadOff        string   `json:"payload_off,omitempty"`
	Device            haDevice `json:"device"`
}

func deviceDisplayName(dev engine.Snapshot) string {
	if dev.FriendlyName != "" {
		return dev.FriendlyName
	}
	if dev.Manufacturer != "" && dev.Model != "" {
		return dev.Manufacturer + " " + dev.Model
	}
	if dev.Model != "" {
		return dev.Model
	}
	return dev.IEEEAddress
}

func deviceIdentifier(ieee string) string {
	return "tuya_" + ieee
}

// deviceTopicName returns the topic name for a device (friendly name or IEEE).
func deviceTopicName(dev engine.Snapshot) string {
	if dev.FriendlyName == "" {
		return dev.IEEEAddress
	}
	name := strings.ToLower(dev.FriendlyName)
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, name)
}

// component picks the HA platform for a capability.
func component(c string) string {
	info, _ := capability.Lookup(c)
	if info.Kind == capability.KindBool {
		return "binary_sensor"
	}
	return "sensor"
}

func discoveryTopic(ieee, c string) string {
	return fmt.Sprintf("homeassistant/%s/%s/%s/config", component(c), deviceIdentifier(ieee), c)
}

// buildDiscovery generates one discovery message per exposed capability.
func buildDiscovery(dev engine.Snapshot, prefix string) []discoveryMsg {
	msgs := make([]discoveryMsg, 0, len(dev.Exposed))
	for _, c := range dev.Exposed {
		msgs = append(msgs, buildCapabilityDiscovery(dev, c, prefix))
	}
	return msgs
}

func buildCapabilityDiscovery(dev engine.Snapshot, c, prefix string) discoveryMsg {
	nodeID := deviceIdentifier(dev.IEEEAddress)
	displayName := deviceDisplayName(dev)
	info, _ := capability.Lookup(c)

	payload := haDiscovery{
		Name:              displayName + " " + capabilityTitle(c),
		UniqueID:          nodeID + "_" + c,
		StateTopic:        prefix + "/" + deviceTopicName(dev),
		AvailabilityTopic: prefix + "/bridge/state",
		DeviceClass:       info.DeviceClass,
		Device: haDevice{
			Identifiers:  []string{nodeID},
			Manufacturer: dev.Manufacturer,
			Model:        dev.Model,
			Name:         displayName,
		},
	}
	if info.Kind == capability.KindBool {
		payload.ValueTemplate = fmt.Sprintf("{{ 'ON' if value_json.%s else 'OFF' }}", c)
		payload.PayloadOn = "ON"
		payload.PayloadOff = "OFF"
	} else {
		payload.ValueTemplate = fmt.Sprintf("{{ value_json.%s }}", c)
		payload.UnitOfMeasurement = info.Unit
		payload.StateClass = "measurement"
		if c == capability.MeterPower {
			payload.StateClass = "total_increasing"
		}
	}
	return discoveryMsg{Topic: discoveryTopic(dev.IEEEAddress, c), Payload: mustJSON(payload)}
}

// capabilityTitle turns "measure_temperature" into "Temperature".
func capabilityTitle(c string) string {
	c = strings.TrimPrefix(c, "measure_")
	words := strings.Split(c, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// buildRemoveDiscovery generates empty retained messages that delete the
// given capabilities from HA.
func buildRemoveDiscovery(ieee string, caps []string) []discoveryMsg {
	msgs := make([]discoveryMsg, 0, len(caps))
	for _, c := range caps {
		msgs = append(msgs, discoveryMsg{Topic: discoveryTopic(ieee, c), Payload: []byte{}})
	}
	return msgs
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
