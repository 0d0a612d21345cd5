package datapoint

import (
	"errors"
	"testing"
	"time"
)

func TestParseFrame(t *testing.T) {
	at := time.Unix(1700000000, 0)
	payload := []byte{
		0x00, 0x2A, // seq
		0x03, 0x02, 0x00, 0x04, 0x00, 0x00, 0x00, 0xF5, // dp3 value 245
		0x01, 0x01, 0x00, 0x01, 0x01, // dp1 bool true
	}
	seq, events, err := ParseFrame(payload, at)
	if err != nil {
		t.Fatal(err)
	}
	if seq != 0x2A {
		t.Errorf("seq = %d, want 42", seq)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].ID != 3 || events[0].Kind != KindValue || len(events[0].Raw) != 4 || !events[0].At.Equal(at) {
		t.Errorf("event 0 = %+v", events[0])
	}
	if n, ok := events[0].Integer(false); !ok || n != 245 {
		t.Errorf("event 0 integer = %d, %v", n, ok)
	}
	if b, ok := events[1].Bool(); !ok || !b {
		t.Errorf("event 1 bool = %v, %v", b, ok)
	}
}

func TestParseFrameTruncated(t *testing.T) {
	payload := []byte{
		0x00, 0x01,
		0x02, 0x02, 0x00, 0x04, 0x00, 0x00, 0x00, 0x37, // dp2 ok
		0x03, 0x02, 0x00, 0x04, 0x00, 0x00, // dp3 short
	}
	_, events, err := ParseFrame(payload, time.Now())
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("err = %v, want ErrTruncated", err)
	}
	if len(events) != 1 || events[0].ID != 2 {
		t.Errorf("events = %+v, want dp 2 only", events)
	}

	if _, _, err := ParseFrame([]byte{0x01}, time.Now()); !errors.Is(err, ErrTruncated) {
		t.Errorf("short header: err = %v", err)
	}
	if _, _, err := ParseFrame([]byte{0x00, 0x01, 0x05, 0x02}, time.Now()); !errors.Is(err, ErrTruncated) {
		t.Errorf("short dp header: err = %v", err)
	}
}

func TestEventInteger(t *testing.T) {
	tests := []struct {
		name string
		evt  Event
		le   bool
		want int64
		ok   bool
	}{
		{"negative value", Event{Kind: KindValue, Raw: []byte{0xFF, 0xFF, 0xFF, 0x9C}}, false, -100, true},
		{"little endian", Event{Kind: KindValue, Raw: []byte{0xF5, 0x00, 0x00, 0x00}}, true, 245, true},
		{"enum", Event{Kind: KindEnum, Raw: []byte{0x02}}, false, 2, true},
		{"bitmap 2 bytes", Event{Kind: KindBitmap, Raw: []byte{0x01, 0x02}}, false, 0x0102, true},
		{"string", Event{Kind: KindString, Raw: []byte("12")}, false, 0, false},
		{"empty", Event{Kind: KindValue}, false, 0, false},
	}
	for _, tt := range tests {
		got, ok := tt.evt.Integer(tt.le)
		if got != tt.want || ok != tt.ok {
			t.Errorf("%s: got %d, %v; want %d, %v", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}

func TestKindText(t *testing.T) {
	var k Kind
	if err := k.UnmarshalText([]byte("enum")); err != nil || k != KindEnum {
		t.Errorf("UnmarshalText(enum) = %v, %v", k, err)
	}
	if err := k.UnmarshalText([]byte("float")); err == nil {
		t.Error("expected error for unknown kind")
	}
}
