// Package datapoint decodes the Tuya private cluster (0xEF00) datapoint
// channel into capability values.
package datapoint

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// ErrTruncated is returned when a frame ends inside a datapoint.
var ErrTruncated = errors.New("datapoint: truncated frame")

// Kind is the payload type tag carried in each datapoint.
type Kind uint8

const (
	KindRaw    Kind = 0x00
	KindBool   Kind = 0x01
	KindValue  Kind = 0x02 // 4-byte signed big-endian
	KindString Kind = 0x03
	KindEnum   Kind = 0x04
	KindBitmap Kind = 0x05
)

func (k Kind) String() string {
	switch k {
	case KindRaw:
		return "raw"
	case KindBool:
		return "bool"
	case KindValue:
		return "value"
	case KindString:
		return "string"
	case KindEnum:
		return "enum"
	case KindBitmap:
		return "bitmap"
	}
	return fmt.Sprintf("kind(0x%02X)", uint8(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	for _, c := range []Kind{KindRaw, KindBool, KindValue, KindString, KindEnum, KindBitmap} {
		if c.String() == string(text) {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("datapoint: unknown kind %q", text)
}

// Event is one datapoint taken from a frame. Events are consumed immediately
// and never persisted.
type Event struct {
	ID   uint8
	Kind Kind
	Raw  []byte
	At   time.Time
}

// ParseFrame splits a 0xEF00 data response/report payload:
// seq(2 BE) followed by repeated dp(1) type(1) len(2 BE) data(len).
// Datapoints parsed before a truncation are returned with ErrTruncated.
func ParseFrame(payload []byte, at time.Time) (uint16, []Event, error) {
	if len(payload) < 2 {
		return 0, nil, fmt.Errorf("%w: %d byte header", ErrTruncated, len(payload))
	}
	seq := binary.BigEndian.Uint16(payload[:2])

	var events []Event
	pos := 2
	for pos < len(payload) {
		if pos+4 > len(payload) {
			return seq, events, fmt.Errorf("%w: datapoint header at offset %d", ErrTruncated, pos)
		}
		id := payload[pos]
		kind := Kind(payload[pos+1])
		n := int(binary.BigEndian.Uint16(payload[pos+2 : pos+4]))
		pos += 4
		if pos+n > len(payload) {
			return seq, events, fmt.Errorf("%w: dp %d needs %d bytes at offset %d, have %d", ErrTruncated, id, n, pos, len(payload)-pos)
		}
		events = append(events, Event{
			ID:   id,
			Kind: kind,
			Raw:  append([]byte(nil), payload[pos:pos+n]...),
			At:   at,
		})
		pos += n
	}
	return seq, events, nil
}

// Integer coerces the payload to an integer. Value payloads are signed
// 32-bit; other widths and kinds are read as unsigned. littleEndian flips the
// byte order for firmware that sends values reversed.
func (e Event) Integer(littleEndian bool) (int64, bool) {
	if len(e.Raw) == 0 || len(e.Raw) > 8 {
		return 0, false
	}
	switch e.Kind {
	case KindBool, KindEnum:
		return int64(e.Raw[0]), true
	case KindValue, KindBitmap, KindRaw:
	default:
		return 0, false
	}
	var u uint64
	if littleEndian {
		for i := len(e.Raw) - 1; i >= 0; i-- {
			u = u<<8 | uint64(e.Raw[i])
		}
	} else {
		for _, b := range e.Raw {
			u = u<<8 | uint64(b)
		}
	}
	if e.Kind == KindValue && len(e.Raw) == 4 {
		return int64(int32(uint32(u))), true
	}
	return int64(u), true
}

// Bool coerces the payload to a boolean.
func (e Event) Bool() (bool, bool) {
	if len(e.Raw) == 0 {
		return false, false
	}
	n, ok := e.Integer(false)
	if !ok {
		return false, false
	}
	return n != 0, true
}
