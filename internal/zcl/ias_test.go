package zcl

import (
	"bytes"
	"testing"
)

func TestDecodeZoneStatus(t *testing.T) {
	zs := DecodeZoneStatus(0x0001)
	if !zs.Alarm1 || zs.Alarm2 || zs.Tamper || zs.BatteryLow {
		t.Errorf("0x0001: got %+v", zs)
	}

	zs = DecodeZoneStatus(0x000C) // tamper + battery low
	if zs.Alarm1 || !zs.Tamper || !zs.BatteryLow {
		t.Errorf("0x000C: got %+v", zs)
	}

	zs = DecodeZoneStatus(0x0302)
	if !zs.Alarm2 || !zs.Test || !zs.BatteryDefect || zs.Alarm1 {
		t.Errorf("0x0302: got %+v", zs)
	}
}

func TestParseZoneStatusChangeNotification(t *testing.T) {
	n, err := ParseZoneStatusChangeNotification([]byte{0x05, 0x00, 0x00, 0x07, 0x00, 0x00})
	if err != nil {
		t.Fatal(err)
	}
	if n.Status != 0x0005 || n.ZoneID != 7 {
		t.Errorf("got %+v", n)
	}

	// Status only.
	n, err = ParseZoneStatusChangeNotification([]byte{0x01, 0x00})
	if err != nil {
		t.Fatal(err)
	}
	if n.Status != 1 || n.ZoneID != 0 {
		t.Errorf("short: got %+v", n)
	}

	if _, err := ParseZoneStatusChangeNotification([]byte{0x01}); err == nil {
		t.Error("expected error for 1-byte payload")
	}
}

func TestParseZoneEnrollRequest(t *testing.T) {
	r := ParseZoneEnrollRequest([]byte{0x0D, 0x00, 0x02, 0x10})
	if r.ZoneType != ZoneTypeMotion || r.ManufacturerCode != 0x1002 {
		t.Errorf("got %+v", r)
	}
	r = ParseZoneEnrollRequest(nil)
	if r.ZoneType != 0 {
		t.Errorf("empty: got %+v", r)
	}
}

func TestEncodeZoneEnrollResponse(t *testing.T) {
	got := EncodeZoneEnrollResponse(EnrollSuccess, 3)
	if !bytes.Equal(got, []byte{0x00, 0x03}) {
		t.Errorf("got %X", got)
	}
}
