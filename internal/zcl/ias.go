package zcl

import (
	"encoding/binary"
	"fmt"
)

// IAS Zone attributes.
const (
	AttrIASZoneState  uint16 = 0x0000
	AttrIASZoneType   uint16 = 0x0001
	AttrIASZoneStatus uint16 = 0x0002
	AttrIASCIEAddress uint16 = 0x0010
	AttrIASZoneID     uint16 = 0x0011
)

// IAS Zone commands. Server-to-client and client-to-server share ID space.
const (
	IASCmdZoneEnrollResponse           uint8 = 0x00 // to server
	IASCmdZoneStatusChangeNotification uint8 = 0x00 // to client
	IASCmdZoneEnrollRequest            uint8 = 0x01 // to client
)

// Zone enroll response codes.
const (
	EnrollSuccess        uint8 = 0x00
	EnrollNotSupported   uint8 = 0x01
	EnrollNoEnrollPermit uint8 = 0x02
	EnrollTooManyZones   uint8 = 0x03
)

// Zone types reported in the enroll request.
const (
	ZoneTypeMotion          uint16 = 0x000D
	ZoneTypeContact         uint16 = 0x0015
	ZoneTypeFire            uint16 = 0x0028
	ZoneTypeWater           uint16 = 0x002A
	ZoneTypeCarbonMonoxide  uint16 = 0x002B
	ZoneTypeEmergency       uint16 = 0x002C
	ZoneTypeVibration       uint16 = 0x002D
	ZoneTypeRemoteControl   uint16 = 0x010F
	ZoneTypeKeyFob          uint16 = 0x0115
	ZoneTypeStandardWarning uint16 = 0x0225
)

// ZoneStatus is the decoded IAS ZoneStatus bitmap.
type ZoneStatus struct {
	Alarm1        bool `json:"alarm1"`
	Alarm2        bool `json:"alarm2"`
	Tamper        bool `json:"tamper"`
	BatteryLow    bool `json:"battery_low"`
	Supervision   bool `json:"supervision"`
	Restore       bool `json:"restore"`
	Trouble       bool `json:"trouble"`
	ACFault       bool `json:"ac_fault"`
	Test          bool `json:"test"`
	BatteryDefect bool `json:"battery_defect"`
}

// DecodeZoneStatus splits the ZoneStatus bitmap into flags.
func DecodeZoneStatus(raw uint16) ZoneStatus {
	bit := func(n uint) bool { return raw&(1<<n) != 0 }
	return ZoneStatus{
		Alarm1:        bit(0),
		Alarm2:        bit(1),
		Tamper:        bit(2),
		BatteryLow:    bit(3),
		Supervision:   bit(4),
		Restore:       bit(5),
		Trouble:       bit(6),
		ACFault:       bit(7),
		Test:          bit(8),
		BatteryDefect: bit(9),
	}
}

// ZoneStatusChangeNotification is the payload of IAS command 0x00 (to client).
type ZoneStatusChangeNotification struct {
	Status         uint16
	ExtendedStatus uint8
	ZoneID         uint8
	Delay          uint16
}

// ParseZoneStatusChangeNotification decodes a status change notification.
// Only the status field is mandatory; older firmware omits the rest.
func ParseZoneStatusChangeNotification(payload []byte) (ZoneStatusChangeNotification, error) {
	var n ZoneStatusChangeNotification
	if len(payload) < 2 {
		return n, fmt.Errorf("zcl: zone status notification: need 2 bytes, have %d", len(payload))
	}
	n.Status = binary.LittleEndian.Uint16(payload)
	if len(payload) >= 3 {
		n.ExtendedStatus = payload[2]
	}
	if len(payload) >= 4 {
		n.ZoneID = payload[3]
	}
	if len(payload) >= 6 {
		n.Delay = binary.LittleEndian.Uint16(payload[4:6])
	}
	return n, nil
}

// ZoneEnrollRequest is the payload of IAS command 0x01 (to client).
type ZoneEnrollRequest struct {
	ZoneType         uint16
	ManufacturerCode uint16
}

// ParseZoneEnrollRequest decodes an enroll request. A short payload yields a
// zero zone type rather than an error; the request itself is what matters.
func ParseZoneEnrollRequest(payload []byte) ZoneEnrollRequest {
	var r ZoneEnrollRequest
	if len(payload) >= 2 {
		r.ZoneType = binary.LittleEndian.Uint16(payload)
	}
	if len(payload) >= 4 {
		r.ManufacturerCode = binary.LittleEndian.Uint16(payload[2:4])
	}
	return r
}

// EncodeZoneEnrollResponse builds the enroll response payload.
func EncodeZoneEnrollResponse(code, zoneID uint8) []byte {
	return []byte{code, zoneID}
}
