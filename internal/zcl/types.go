package zcl

import (
	"encoding/binary"
	"fmt"
	"math"
)

// ZCL data type IDs
const (
	TypeNoData     uint8 = 0x00
	TypeData8      uint8 = 0x08
	TypeData64     uint8 = 0x0F
	TypeBool       uint8 = 0x10
	TypeBitmap8    uint8 = 0x18
	TypeBitmap16   uint8 = 0x19
	TypeBitmap24   uint8 = 0x1A
	TypeBitmap32   uint8 = 0x1B
	TypeUint8      uint8 = 0x20
	TypeUint16     uint8 = 0x21
	TypeUint24     uint8 = 0x22
	TypeUint32     uint8 = 0x23
	TypeUint40     uint8 = 0x24
	TypeUint48     uint8 = 0x25
	TypeUint64     uint8 = 0x27
	TypeInt8       uint8 = 0x28
	TypeInt16      uint8 = 0x29
	TypeInt24      uint8 = 0x2A
	TypeInt32      uint8 = 0x2B
	TypeInt64      uint8 = 0x2F
	TypeEnum8      uint8 = 0x30
	TypeEnum16     uint8 = 0x31
	TypeFloat16    uint8 = 0x38
	TypeFloat32    uint8 = 0x39
	TypeFloat64    uint8 = 0x3A
	TypeOctetStr   uint8 = 0x41
	TypeCharStr    uint8 = 0x42
	TypeOctetStr16 uint8 = 0x43
	TypeCharStr16  uint8 = 0x44
	TypeToD        uint8 = 0xE0
	TypeDate       uint8 = 0xE1
	TypeUTC        uint8 = 0xE2
	TypeClusterID  uint8 = 0xE8
	TypeAttrID     uint8 = 0xE9
	TypeEUI64      uint8 = 0xF0
)

// Size sentinels returned by TypeSize for types without a fixed width.
const (
	SizeVariable   = -1 // 1-byte length prefix
	SizeVariable16 = -3 // 2-byte length prefix
	SizeUnknown    = -2
)

// TypeSize returns the fixed size in bytes of a ZCL type, or one of the
// Size* sentinels.
func TypeSize(typeID uint8) int {
	switch {
	case typeID == TypeNoData:
		return 0
	case typeID == TypeBool, typeID == TypeEnum8:
		return 1
	case typeID == TypeEnum16, typeID == TypeFloat16, typeID == TypeClusterID, typeID == TypeAttrID:
		return 2
	case typeID >= TypeData8 && typeID <= TypeData64:
		return int(typeID-TypeData8) + 1
	case typeID >= TypeBitmap8 && typeID <= TypeBitmap32:
		return int(typeID-TypeBitmap8) + 1
	case typeID >= TypeUint8 && typeID <= TypeUint64:
		return int(typeID-TypeUint8) + 1
	case typeID >= TypeInt8 && typeID <= TypeInt64:
		return int(typeID-TypeInt8) + 1
	case typeID == TypeFloat32, typeID == TypeUTC, typeID == TypeToD, typeID == TypeDate:
		return 4
	case typeID == TypeFloat64, typeID == TypeEUI64:
		return 8
	case typeID == TypeOctetStr, typeID == TypeCharStr:
		return SizeVariable
	case typeID == TypeOctetStr16, typeID == TypeCharStr16:
		return SizeVariable16
	}
	return SizeUnknown
}

// DecodeValue decodes a ZCL typed value from raw bytes, returning the Go value and bytes consumed.
func DecodeValue(typeID uint8, data []byte) (any, int, error) {
	size := TypeSize(typeID)
	switch size {
	case 0:
		return nil, 0, nil
	case SizeUnknown:
		return nil, 0, fmt.Errorf("zcl: unsupported type 0x%02X", typeID)
	case SizeVariable, SizeVariable16:
		return decodeString(typeID, size, data)
	}
	if len(data) < size {
		return nil, 0, fmt.Errorf("zcl: not enough data for type 0x%02X: need %d, have %d", typeID, size, len(data))
	}

	switch typeID {
	case TypeBool:
		return data[0] != 0, 1, nil
	case TypeUint8, TypeEnum8, TypeBitmap8:
		return data[0], 1, nil
	case TypeUint16, TypeEnum16, TypeBitmap16, TypeClusterID, TypeAttrID:
		return binary.LittleEndian.Uint16(data), 2, nil
	case TypeUint32, TypeBitmap32, TypeUTC:
		return binary.LittleEndian.Uint32(data), 4, nil
	case TypeUint24, TypeBitmap24, TypeUint40, TypeUint48, 0x26, TypeUint64:
		return leUint(data[:size]), size, nil
	case TypeInt8:
		return int8(data[0]), 1, nil
	case TypeInt16:
		return int16(binary.LittleEndian.Uint16(data)), 2, nil
	case TypeInt24:
		v := uint32(leUint(data[:3]))
		if v&0x800000 != 0 {
			v |= 0xFF000000
		}
		return int32(v), 3, nil
	case TypeInt32:
		return int32(binary.LittleEndian.Uint32(data)), 4, nil
	case 0x2C, 0x2D, 0x2E, TypeInt64:
		shift := uint(64 - 8*size)
		return int64(leUint(data[:size])<<shift) >> shift, size, nil
	case TypeFloat32:
		return math.Float32frombits(binary.LittleEndian.Uint32(data)), 4, nil
	case TypeFloat64:
		return math.Float64frombits(binary.LittleEndian.Uint64(data)), 8, nil
	case TypeEUI64:
		var addr [8]byte
		copy(addr[:], data[:8])
		return addr, 8, nil
	}
	if typeID >= TypeData8 && typeID <= TypeData64 || typeID == TypeToD || typeID == TypeDate {
		return append([]byte(nil), data[:size]...), size, nil
	}
	return nil, 0, fmt.Errorf("zcl: unsupported type 0x%02X", typeID)
}

func leUint(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func decodeString(typeID uint8, size int, data []byte) (any, int, error) {
	prefix := 1
	if size == SizeVariable16 {
		prefix = 2
	}
	if len(data) < prefix {
		return nil, 0, fmt.Errorf("zcl: missing length prefix for type 0x%02X", typeID)
	}
	var length int
	if prefix == 1 {
		length = int(data[0])
		if length == 0xFF {
			return nil, 1, nil
		}
	} else {
		length = int(binary.LittleEndian.Uint16(data))
		if length == 0xFFFF {
			return nil, 2, nil
		}
	}
	if len(data) < prefix+length {
		return nil, 0, fmt.Errorf("zcl: string truncated: need %d, have %d", length, len(data)-prefix)
	}
	body := data[prefix : prefix+length]
	if typeID == TypeCharStr || typeID == TypeCharStr16 {
		return string(body), prefix + length, nil
	}
	b := make([]byte, length)
	copy(b, body)
	return b, prefix + length, nil
}

// EncodeValue encodes a Go value into ZCL wire format. Only the fixed-width
// types the engine writes are supported.
func EncodeValue(typeID uint8, val any) ([]byte, error) {
	switch typeID {
	case TypeBool:
		b, ok := val.(bool)
		if !ok {
			return nil, fmt.Errorf("zcl: cannot convert %T to bool", val)
		}
		if b {
			return []byte{1}, nil
		}
		return []byte{0}, nil

	case TypeEUI64:
		switch a := val.(type) {
		case [8]byte:
			return append([]byte(nil), a[:]...), nil
		case []byte:
			if len(a) != 8 {
				return nil, fmt.Errorf("zcl: EUI64 requires 8 bytes, got %d", len(a))
			}
			return append([]byte(nil), a...), nil
		}
		return nil, fmt.Errorf("zcl: cannot convert %T to EUI64", val)
	}

	size := TypeSize(typeID)
	signed := typeID >= TypeInt8 && typeID <= TypeInt32
	unsigned := (typeID >= TypeUint8 && typeID <= TypeUint48) ||
		(typeID >= TypeBitmap8 && typeID <= TypeBitmap32) ||
		typeID == TypeEnum8 || typeID == TypeEnum16
	if size <= 0 || (!signed && !unsigned) {
		return nil, fmt.Errorf("zcl: encode not implemented for type 0x%02X", typeID)
	}

	n, ok := Numeric(val)
	if !ok || n != math.Trunc(n) {
		return nil, fmt.Errorf("zcl: cannot convert %T to integer type 0x%02X", val, typeID)
	}
	bits := uint(size * 8)
	var u uint64
	if signed {
		lo, hi := -math.Ldexp(1, int(bits)-1), math.Ldexp(1, int(bits)-1)-1
		if n < lo || n > hi {
			return nil, fmt.Errorf("zcl: value %v overflows type 0x%02X", n, typeID)
		}
		u = uint64(int64(n))
	} else {
		if n < 0 || n > math.Ldexp(1, int(bits))-1 {
			return nil, fmt.Errorf("zcl: value %v overflows type 0x%02X", n, typeID)
		}
		u = uint64(n)
	}
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = byte(u >> (8 * i))
	}
	return buf, nil
}

// Numeric converts any decoded integer or float value to float64.
func Numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
