package enrollment

import (
	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/capability"
	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/zcl"
)

// Update is one capability value derived from a zone status.
type Update struct {
	Capability string
	Value      bool
}

// AlarmCapability picks the capability that carries alarm1 for a zone type.
func AlarmCapability(zoneType uint16) string {
	switch zoneType {
	case zcl.ZoneTypeMotion:
		return capability.AlarmMotion
	case zcl.ZoneTypeContact:
		return capability.AlarmContact
	case zcl.ZoneTypeFire:
		return capability.AlarmSmoke
	case zcl.ZoneTypeWater:
		return capability.AlarmWater
	case zcl.ZoneTypeCarbonMonoxide:
		return capability.AlarmCO
	}
	return capability.AlarmGeneric
}

// StatusUpdates turns a ZoneStatus bitmap into capability updates. Either
// alarm bit drives alarmCap. Zone status never affects enrollment state.
func StatusUpdates(raw uint16, alarmCap string) []Update {
	zs := zcl.DecodeZoneStatus(raw)
	if alarmCap == "" {
		alarmCap = capability.AlarmGeneric
	}
	return []Update{
		{Capability: alarmCap, Value: zs.Alarm1 || zs.Alarm2},
		{Capability: capability.AlarmTamper, Value: zs.Tamper},
		{Capability: capability.AlarmBattery, Value: zs.BatteryLow},
	}
}
