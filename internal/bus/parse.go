package bus

import (
	"encoding/binary"

	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/zcl"
)

// ParseReadAttributesResponse splits a ZCL Read Attributes Response payload
// into per-attribute records. Parsing stops at the first attribute whose type
// width is unknown, since the remaining boundaries cannot be found.
func ParseReadAttributesResponse(data []byte) []AttributeResponse {
	var results []AttributeResponse
	for len(data) >= 3 {
		// AttrID (2 bytes) + Status (1 byte)
		attrID := binary.LittleEndian.Uint16(data[0:2])
		status := data[2]
		data = data[3:]

		ar := AttributeResponse{AttrID: attrID, Status: status}
		if status != zcl.StatusSuccess {
			results = append(results, ar)
			continue
		}
		if len(data) < 1 {
			break
		}
		ar.DataType = data[0]
		data = data[1:]

		size := zcl.TypeSize(ar.DataType)
		switch {
		case size == zcl.SizeUnknown:
			results = append(results, ar)
			return results
		case size >= 0:
			if len(data) < size {
				return results
			}
			ar.Value = append([]byte(nil), data[:size]...)
			data = data[size:]
		case size == zcl.SizeVariable:
			if len(data) < 1 || len(data) < 1+int(data[0]) {
				return results
			}
			n := 1 + int(data[0])
			ar.Value = append([]byte(nil), data[:n]...)
			data = data[n:]
		case size == zcl.SizeVariable16:
			if len(data) < 2 {
				return results
			}
			n := 2 + int(binary.LittleEndian.Uint16(data[:2]))
			if len(data) < n {
				return results
			}
			ar.Value = append([]byte(nil), data[:n]...)
			data = data[n:]
		}
		results = append(results, ar)
	}
	return results
}
