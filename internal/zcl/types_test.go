package zcl

import (
	"bytes"
	"math"
	"testing"
)

func TestTypeSize(t *testing.T) {
	tests := []struct {
		typeID uint8
		want   int
	}{
		{TypeNoData, 0},
		{TypeBool, 1},
		{TypeBitmap8, 1},
		{TypeBitmap16, 2},
		{TypeBitmap24, 3},
		{TypeBitmap32, 4},
		{TypeUint8, 1},
		{TypeUint24, 3},
		{TypeUint48, 6},
		{TypeInt16, 2},
		{TypeInt32, 4},
		{TypeEnum8, 1},
		{TypeEnum16, 2},
		{TypeFloat32, 4},
		{TypeFloat64, 8},
		{TypeUTC, 4},
		{TypeEUI64, 8},
		{TypeCharStr, SizeVariable},
		{TypeOctetStr, SizeVariable},
		{TypeCharStr16, SizeVariable16},
		{0xFE, SizeUnknown},
	}
	for _, tt := range tests {
		if got := TypeSize(tt.typeID); got != tt.want {
			t.Errorf("TypeSize(0x%02X) = %d, want %d", tt.typeID, got, tt.want)
		}
	}
}

func TestDecodeUnsigned(t *testing.T) {
	val, n, err := DecodeValue(TypeUint8, []byte{0x42})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || val.(uint8) != 0x42 {
		t.Errorf("uint8: got %v (%d bytes)", val, n)
	}

	val, n, err = DecodeValue(TypeUint16, []byte{0x34, 0x12})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || val.(uint16) != 0x1234 {
		t.Errorf("uint16: got %v (%d bytes)", val, n)
	}

	val, n, err = DecodeValue(TypeUint24, []byte{0x56, 0x34, 0x12})
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 || val.(uint64) != 0x123456 {
		t.Errorf("uint24: got %v (%d bytes)", val, n)
	}

	val, n, err = DecodeValue(TypeUint48, []byte{0x01, 0x00, 0x00, 0x00, 0x00, 0x01})
	if err != nil {
		t.Fatal(err)
	}
	if n != 6 || val.(uint64) != 0x010000000001 {
		t.Errorf("uint48: got %v (%d bytes)", val, n)
	}
}

func TestDecodeSigned(t *testing.T) {
	// -100 little-endian
	val, _, err := DecodeValue(TypeInt16, []byte{0x9C, 0xFF})
	if err != nil {
		t.Fatal(err)
	}
	if val.(int16) != -100 {
		t.Errorf("int16: got %v, want -100", val)
	}

	val, n, err := DecodeValue(TypeInt24, []byte{0xFF, 0xFF, 0xFF})
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 || val.(int32) != -1 {
		t.Errorf("int24: got %v (%d bytes), want -1", val, n)
	}

	val, _, err = DecodeValue(TypeInt24, []byte{0x64, 0x00, 0x00})
	if err != nil {
		t.Fatal(err)
	}
	if val.(int32) != 100 {
		t.Errorf("int24: got %v, want 100", val)
	}

	val, _, err = DecodeValue(TypeInt8, []byte{0x80})
	if err != nil {
		t.Fatal(err)
	}
	if val.(int8) != -128 {
		t.Errorf("int8: got %v, want -128", val)
	}
}

func TestDecodeBoolAndFloat(t *testing.T) {
	val, _, err := DecodeValue(TypeBool, []byte{0x01})
	if err != nil {
		t.Fatal(err)
	}
	if val.(bool) != true {
		t.Error("expected true")
	}

	bits := math.Float32bits(21.5)
	data := []byte{byte(bits), byte(bits >> 8), byte(bits >> 16), byte(bits >> 24)}
	val, n, err := DecodeValue(TypeFloat32, data)
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 || val.(float32) != 21.5 {
		t.Errorf("float32: got %v (%d bytes)", val, n)
	}
}

func TestDecodeStrings(t *testing.T) {
	val, n, err := DecodeValue(TypeCharStr, []byte{5, 'T', 'S', '0', '2', '0'})
	if err != nil {
		t.Fatal(err)
	}
	if n != 6 || val.(string) != "TS020" {
		t.Errorf("got %q (%d bytes)", val, n)
	}

	// 0xFF length marks an invalid (absent) string.
	val, n, err = DecodeValue(TypeCharStr, []byte{0xFF})
	if err != nil {
		t.Fatal(err)
	}
	if val != nil || n != 1 {
		t.Errorf("invalid string: got %v (%d bytes)", val, n)
	}

	val, n, err = DecodeValue(TypeOctetStr16, []byte{0x02, 0x00, 0xAA, 0xBB})
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 || !bytes.Equal(val.([]byte), []byte{0xAA, 0xBB}) {
		t.Errorf("octet16: got %X (%d bytes)", val, n)
	}

	if _, _, err := DecodeValue(TypeCharStr, []byte{4, 'a'}); err == nil {
		t.Error("expected error for truncated string")
	}
}

func TestDecodeEUI64(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8, 0xFF}
	val, n, err := DecodeValue(TypeEUI64, data)
	if err != nil {
		t.Fatal(err)
	}
	if n != 8 {
		t.Errorf("consumed %d, want 8", n)
	}
	if val.([8]byte) != [8]byte{1, 2, 3, 4, 5, 6, 7, 8} {
		t.Errorf("got %v", val)
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, _, err := DecodeValue(TypeUint32, []byte{0x01}); err == nil {
		t.Error("expected error for insufficient data")
	}
	if _, _, err := DecodeValue(0xFE, []byte{0x01}); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestEncodeIntegers(t *testing.T) {
	tests := []struct {
		name   string
		typeID uint8
		val    any
		want   []byte
	}{
		{"uint8", TypeUint8, uint8(0x42), []byte{0x42}},
		{"uint16 from int", TypeUint16, 0x1234, []byte{0x34, 0x12}},
		{"uint24", TypeUint24, uint64(0x123456), []byte{0x56, 0x34, 0x12}},
		{"int8 min", TypeInt8, -128, []byte{0x80}},
		{"int24 -1", TypeInt24, int64(-1), []byte{0xFF, 0xFF, 0xFF}},
		{"enum8", TypeEnum8, uint8(3), []byte{0x03}},
		{"bitmap16", TypeBitmap16, uint16(0x0102), []byte{0x02, 0x01}},
		{"whole float", TypeUint16, float64(300), []byte{0x2C, 0x01}},
	}
	for _, tt := range tests {
		got, err := EncodeValue(tt.typeID, tt.val)
		if err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		if !bytes.Equal(got, tt.want) {
			t.Errorf("%s: encoded %X, want %X", tt.name, got, tt.want)
		}
	}
}

func TestEncodeRejects(t *testing.T) {
	tests := []struct {
		name   string
		typeID uint8
		val    any
	}{
		{"uint8 overflow", TypeUint8, 256},
		{"uint8 negative", TypeUint8, -1},
		{"int8 overflow", TypeInt8, 128},
		{"fractional", TypeUint16, 1.5},
		{"string to int", TypeUint16, "12"},
		{"bool from int", TypeBool, 1},
		{"short eui64", TypeEUI64, []byte{1, 2, 3}},
		{"char string", TypeCharStr, "hi"},
	}
	for _, tt := range tests {
		if _, err := EncodeValue(tt.typeID, tt.val); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestEncodeBoolAndEUI64(t *testing.T) {
	got, err := EncodeValue(TypeBool, true)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte{1}) {
		t.Errorf("bool: encoded %X", got)
	}

	addr := [8]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, 0x00, 0x11}
	got, err = EncodeValue(TypeEUI64, addr)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, addr[:]) {
		t.Errorf("eui64: encoded %X", got)
	}

	// Decoding what we encoded must give the same address back.
	back, _, err := DecodeValue(TypeEUI64, got)
	if err != nil {
		t.Fatal(err)
	}
	if back.([8]byte) != addr {
		t.Errorf("eui64 decode: got %X", back)
	}
}

func TestNumeric(t *testing.T) {
	tests := []struct {
		in   any
		want float64
		ok   bool
	}{
		{int8(-5), -5, true},
		{uint16(2150), 2150, true},
		{int32(-4000), -4000, true},
		{uint64(1 << 40), 1 << 40, true},
		{float32(1.5), 1.5, true},
		{21.25, 21.25, true},
		{"21", 0, false},
		{true, 0, false},
		{nil, 0, false},
	}
	for _, tt := range tests {
		got, ok := Numeric(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("Numeric(%v) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
