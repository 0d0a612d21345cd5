//go:build no_mqtt

package main

import (
	"log/slog"

	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/config"
	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/engine"
)

type mqttStopper struct{}

func (m *mqttStopper) Stop() {}

func initMQTT(_ *engine.Engine, _ *config.Config, _ *slog.Logger) *mqttStopper {
	return &mqttStopper{}
}
