package engine

import (
	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/capability"
	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/refresh"
	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/zcl"
)

// standardAttributes maps reports on the standard measurement clusters to
// capabilities. Definitions may override an entry per cluster/attribute.
var standardAttributes = []refresh.Target{
	{Capability: capability.MeasureTemperature, ClusterID: zcl.ClusterTemperature, AttrID: zcl.AttrMeasuredValue, Scale: 100},
	{Capability: capability.MeasureHumidity, ClusterID: zcl.ClusterRelativeHumidity, AttrID: zcl.AttrMeasuredValue, Scale: 100},
	{Capability: capability.MeasurePressure, ClusterID: zcl.ClusterPressure, AttrID: zcl.AttrMeasuredValue}, // kPa*10 == hPa
	{Capability: capability.MeasureLuminance, ClusterID: zcl.ClusterIlluminance, AttrID: zcl.AttrMeasuredValue, Encoding: "log_lux"},
	{Capability: capability.MeasureBattery, ClusterID: zcl.ClusterPowerConfiguration, AttrID: zcl.AttrBatteryPercentageRemaining, Scale: 2, Encoding: "percent"},
	{Capability: capability.MeasurePower, ClusterID: zcl.ClusterElectricalMeasurement, AttrID: zcl.AttrActivePower},
	{Capability: capability.MeasureVoltage, ClusterID: zcl.ClusterElectricalMeasurement, AttrID: zcl.AttrRMSVoltage},
	{Capability: capability.MeasureCurrent, ClusterID: zcl.ClusterElectricalMeasurement, AttrID: zcl.AttrRMSCurrent, Scale: 1000},
	{Capability: capability.MeterPower, ClusterID: zcl.ClusterMetering, AttrID: zcl.AttrCurrentSummationDelivered, Scale: 1000},
	{Capability: capability.AlarmMotion, ClusterID: zcl.ClusterOccupancy, AttrID: zcl.AttrOccupancy, Encoding: "bool"},
	{Capability: capability.OnOff, ClusterID: zcl.ClusterOnOff, AttrID: 0x0000, Encoding: "bool"},
}

// attributeTarget finds the mapping for a report: the device definition
// first, then the standard table.
func attributeTarget(def *DeviceDefinition, endpoint uint8, cluster, attr uint16) (refresh.Target, bool) {
	if def != nil {
		for _, t := range def.Attributes {
			if t.ClusterID != cluster || t.AttrID != attr {
				continue
			}
			if t.Endpoint != 0 && t.Endpoint != endpoint {
				continue
			}
			return t, true
		}
	}
	for _, t := range standardAttributes {
		if t.ClusterID == cluster && t.AttrID == attr {
			return t, true
		}
	}
	return refresh.Target{}, false
}

// attributeTargets returns the attribute bindings a refresh pass reads.
func attributeTargets(def *DeviceDefinition) []refresh.Target {
	if def == nil {
		return nil
	}
	out := make([]refresh.Target, len(def.Attributes))
	for i, t := range def.Attributes {
		if t.Endpoint == 0 {
			t.Endpoint = 1
		}
		out[i] = t
	}
	return out
}
