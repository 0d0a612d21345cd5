// Package refresh periodically re-reads exposed capabilities of devices
// that do not report on their own.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/bus"
	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/capability"
	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/zcl"
)

// Target binds a capability to the attribute that holds its value.
type Target struct {
	Capability string  `json:"capability"`
	Endpoint   uint8   `json:"endpoint"`
	ClusterID  uint16  `json:"cluster"`
	AttrID     uint16  `json:"attribute"`
	Scale      float64 `json:"scale,omitempty"` // divisor
	Encoding   string  `json:"encoding,omitempty"`
	Min        float64 `json:"min,omitempty"`
	Max        float64 `json:"max,omitempty"`
	Bounded    bool    `json:"bounded,omitempty"`
}

// Value converts a decoded attribute value into the capability value.
func (t Target) Value(decoded any) (any, error) {
	if b, ok := decoded.(bool); ok {
		return b, nil
	}
	n, ok := zcl.Numeric(decoded)
	if !ok {
		return nil, fmt.Errorf("%s: not numeric: %T", t.Capability, decoded)
	}
	var v float64
	switch t.Encoding {
	case "log_lux":
		if n <= 0 {
			v = 0
		} else {
			v = math.Round(math.Pow(10, (n-1)/10000))
		}
	case "bool":
		return n != 0, nil
	default:
		v = n
		if t.Scale != 0 && t.Scale != 1 {
			v = n / t.Scale
		}
		if t.Encoding == "percent" {
			v = math.Max(0, math.Min(100, v))
		}
	}
	if t.Bounded && (v < t.Min || v > t.Max) {
		return nil, fmt.Errorf("%s: %v outside [%v, %v]", t.Capability, v, t.Min, t.Max)
	}
	if !t.Bounded && !capability.InRange(t.Capability, v) {
		return nil, fmt.Errorf("%s: %v outside plausible range", t.Capability, v)
	}
	return v, nil
}

// Reader is the part of the bus a pass needs.
type Reader interface {
	ReadAttributes(ctx context.Context, req bus.ReadAttributesRequest) ([]bus.AttributeResponse, error)
}

// Sink receives refreshed values. It must never grow the exposed set.
type Sink interface {
	Refresh(capability string, value any) (capability.Outcome, error)
}

// Report summarizes one pass. Zero updates is a normal result.
type Report struct {
	Attempted int     `json:"attempted"`
	Updated   int     `json:"updated"`
	Skipped   int     `json:"skipped"`
	Errors    []error `json:"-"`
}

// Err joins the per-capability errors of the pass.
func (r Report) Err() error {
	return errors.Join(r.Errors...)
}

// RunPass reads each target whose capability is exposed and hands the value
// to sink. Failures skip only the affected capability.
func RunPass(ctx context.Context, reader Reader, shortAddr uint16, targets []Target, exposed func(string) bool, sink Sink, readTimeout time.Duration) Report {
	var r Report
	for _, t := range targets {
		if ctx.Err() != nil {
			break
		}
		if !exposed(t.Capability) {
			continue
		}
		r.Attempted++
		value, err := readTarget(ctx, reader, shortAddr, t, readTimeout)
		if err != nil {
			r.Skipped++
			r.Errors = append(r.Errors, err)
			continue
		}
		outcome, err := sink.Refresh(t.Capability, value)
		if err != nil {
			r.Errors = append(r.Errors, err)
		}
		if outcome == capability.Updated && err == nil {
			r.Updated++
		} else {
			r.Skipped++
		}
	}
	return r
}

func readTarget(ctx context.Context, reader Reader, shortAddr uint16, t Target, timeout time.Duration) (any, error) {
	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	resps, err := reader.ReadAttributes(rctx, bus.ReadAttributesRequest{
		DstAddr:   shortAddr,
		DstEP:     t.Endpoint,
		ClusterID: t.ClusterID,
		AttrIDs:   []uint16{t.AttrID},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: read 0x%04X/0x%04X: %w", t.Capability, t.ClusterID, t.AttrID, err)
	}
	for _, resp := range resps {
		if resp.AttrID != t.AttrID {
			continue
		}
		if resp.Status != zcl.StatusSuccess {
			return nil, fmt.Errorf("%s: read status 0x%02X", t.Capability, resp.Status)
		}
		decoded, _, err := zcl.DecodeValue(resp.DataType, resp.Value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", t.Capability, err)
		}
		return t.Value(decoded)
	}
	return nil, fmt.Errorf("%s: attribute 0x%04X missing from response", t.Capability, t.AttrID)
}
