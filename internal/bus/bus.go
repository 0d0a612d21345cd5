// Package bus defines the attribute bus the engine talks to: ZCL attribute
// reads and writes, raw cluster commands, and the inbound event stream.
// The radio side lives behind it (see mqttbus for the gateway backend).
package bus

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrTimeout is returned when a request got no reply before its deadline.
var ErrTimeout = errors.New("bus: request timed out")

// Adapter is the abstract attribute bus.
type Adapter interface {
	// ZCL
	ReadAttributes(ctx context.Context, req ReadAttributesRequest) ([]AttributeResponse, error)
	WriteAttributes(ctx context.Context, req WriteAttributesRequest) error
	SendCommand(ctx context.Context, req ClusterCommandRequest) error

	// LocalIEEE is the coordinator address written into IAS CIE Address.
	LocalIEEE() [8]byte

	// Indication callbacks
	OnAttributeReport(handler func(AttributeReportEvent))
	OnClusterCommand(handler func(ClusterCommandEvent))
	OnDeviceAnnounce(handler func(DeviceAnnounceEvent))
	OnDeviceLeft(handler func(DeviceLeftEvent))

	// Lifecycle
	Close() error
}

// ReadAttributesRequest specifies which attributes to read.
type ReadAttributesRequest struct {
	DstAddr   uint16   `json:"dst_addr"`
	DstEP     uint8    `json:"dst_ep"`
	ClusterID uint16   `json:"cluster_id"`
	AttrIDs   []uint16 `json:"attr_ids"`
}

// AttributeResponse holds a single attribute read result.
type AttributeResponse struct {
	AttrID   uint16
	Status   uint8
	DataType uint8
	Value    []byte
}

// WriteAttributesRequest specifies attributes to write.
type WriteAttributesRequest struct {
	DstAddr   uint16        `json:"dst_addr"`
	DstEP     uint8         `json:"dst_ep"`
	ClusterID uint16        `json:"cluster_id"`
	Records   []WriteRecord `json:"records"`
}

// WriteRecord is a single attribute write.
type WriteRecord struct {
	AttrID   uint16 `json:"attr_id"`
	DataType uint8  `json:"data_type"`
	Value    []byte `json:"value"`
}

// ClusterCommandRequest sends a cluster-specific command.
type ClusterCommandRequest struct {
	DstAddr   uint16 `json:"dst_addr"`
	DstEP     uint8  `json:"dst_ep"`
	ClusterID uint16 `json:"cluster_id"`
	CommandID uint8  `json:"command_id"`
	Payload   []byte `json:"payload"`
}

// DeviceLeftEvent is emitted when a device leaves.
type DeviceLeftEvent struct {
	ShortAddr uint16  `json:"short_addr"`
	IEEEAddr  [8]byte `json:"ieee_addr"`
}

// DeviceAnnounceEvent is emitted on device announce (join or rejoin).
type DeviceAnnounceEvent struct {
	ShortAddr    uint16  `json:"short_addr"`
	IEEEAddr     [8]byte `json:"ieee_addr"`
	Manufacturer string  `json:"manufacturer,omitempty"`
	Model        string  `json:"model,omitempty"`
}

// AttributeReportEvent is emitted for unsolicited attribute reports.
type AttributeReportEvent struct {
	SrcAddr   uint16 `json:"src_addr"`
	SrcEP     uint8  `json:"src_ep"`
	ClusterID uint16 `json:"cluster_id"`
	AttrID    uint16 `json:"attr_id"`
	DataType  uint8  `json:"data_type"`
	Value     []byte `json:"value"`
	LQI       uint8  `json:"lqi,omitempty"`
}

// ClusterCommandEvent is emitted for incoming cluster-specific commands
// (Tuya datapoint frames, IAS enroll requests and status notifications).
type ClusterCommandEvent struct {
	SrcAddr   uint16 `json:"src_addr"`
	SrcEP     uint8  `json:"src_ep"`
	ClusterID uint16 `json:"cluster_id"`
	CommandID uint8  `json:"command_id"`
	Payload   []byte `json:"payload"`
	LQI       uint8  `json:"lqi,omitempty"`
}

// FormatIEEE renders an address as 16 uppercase hex digits in wire byte
// order. This is the device id used across the engine.
func FormatIEEE(addr [8]byte) string {
	return fmt.Sprintf("%016X", addr)
}

// ParseIEEE parses "DD:DD:DD:DD:DD:DD:DD:DD" or "DDDDDDDDDDDDDDDD" into [8]byte.
func ParseIEEE(s string) ([8]byte, error) {
	var result [8]byte
	s = strings.TrimPrefix(s, "0x")
	s = strings.ReplaceAll(s, ":", "")
	b, err := hex.DecodeString(s)
	if err != nil {
		return result, fmt.Errorf("parse ieee address: %w", err)
	}
	if len(b) != 8 {
		return result, fmt.Errorf("ieee address must be 8 bytes, got %d", len(b))
	}
	copy(result[:], b)
	return result, nil
}
