package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"slices"
	"sync"
	"testing"

	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/bus"
	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/capability"
	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/engine"
	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/refresh"
)

const testIEEE = "A4C138F0E1D2C3B4"

// stubEngine keeps snapshots in memory.
type stubEngine struct {
	mu         sync.Mutex
	devices    map[string]engine.Snapshot
	events     *engine.EventBus
	removeErr  error
	report     refresh.Report
	refreshed  []string
	removedCap []string
}

func (s *stubEngine) Devices() []engine.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]engine.Snapshot, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b engine.Snapshot) int {
		if a.IEEEAddress < b.IEEEAddress {
			return -1
		}
		return 1
	})
	return out
}

func (s *stubEngine) Device(ieee string) (engine.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[ieee]
	return d, ok
}

func (s *stubEngine) Remove(ieee string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.devices, ieee)
	return nil
}

func (s *stubEngine) RemoveCapability(ieee, c string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[ieee]
	if !ok {
		return engine.ErrUnknownDevice
	}
	if s.removeErr != nil {
		return s.removeErr
	}
	d.Exposed = slices.DeleteFunc(d.Exposed, func(e string) bool { return e == c })
	s.devices[ieee] = d
	s.removedCap = append(s.removedCap, c)
	return nil
}

func (s *stubEngine) RefreshNow(_ context.Context, ieee string) (refresh.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[ieee]; !ok {
		return refresh.Report{}, engine.ErrUnknownDevice
	}
	s.refreshed = append(s.refreshed, ieee)
	return s.report, nil
}

func (s *stubEngine) Events() *engine.EventBus { return s.events }

func setupTestServer(t *testing.T, apiKey string) (*Server, *stubEngine) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	eng := &stubEngine{
		devices: map[string]engine.Snapshot{
			testIEEE: {
				IEEEAddress:  testIEEE,
				ShortAddress: 0x1234,
				Manufacturer: "_TZE200_bjawzodf",
				Model:        "TS0601",
				Exposed:      []string{capability.MeasureTemperature, capability.MeasureHumidity},
			},
			"0000000000000001": {IEEEAddress: "0000000000000001", Model: "TS0202"},
		},
		events: engine.NewEventBus(logger),
	}

	var opts []ServerOption
	if apiKey != "" {
		opts = append(opts, WithAPIKey(apiKey))
	}
	opts = append(opts, WithVersion("1.2.3"))
	srv := NewServer(eng, logger, opts...)
	t.Cleanup(srv.Stop)
	return srv, eng
}

func do(srv *Server, method, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func TestAPIListDevices(t *testing.T) {
	srv, _ := setupTestServer(t, "")

	w := do(srv, "GET", "/api/devices", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var devices []engine.Snapshot
	if err := json.NewDecoder(w.Body).Decode(&devices); err != nil {
		t.Fatal(err)
	}
	if len(devices) != 2 {
		t.Fatalf("got %d devices, want 2", len(devices))
	}
	if devices[0].IEEEAddress != "0000000000000001" {
		t.Errorf("devices not ordered: %s first", devices[0].IEEEAddress)
	}
}

func TestAPIGetDevice(t *testing.T) {
	srv, _ := setupTestServer(t, "")

	w := do(srv, "GET", "/api/devices/"+testIEEE, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var dev engine.Snapshot
	if err := json.NewDecoder(w.Body).Decode(&dev); err != nil {
		t.Fatal(err)
	}
	if dev.Model != "TS0601" || len(dev.Exposed) != 2 {
		t.Errorf("device = %+v", dev)
	}
}

func TestAPIGetDeviceNotFound(t *testing.T) {
	srv, _ := setupTestServer(t, "")

	w := do(srv, "GET", "/api/devices/FFFFFFFFFFFFFFFF", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestAPIDeleteDevice(t *testing.T) {
	srv, eng := setupTestServer(t, "")

	w := do(srv, "DELETE", "/api/devices/"+testIEEE, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if _, ok := eng.Device(testIEEE); ok {
		t.Error("device still present after delete")
	}

	w = do(srv, "DELETE", "/api/devices/"+testIEEE, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete: status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestAPIRemoveCapability(t *testing.T) {
	srv, eng := setupTestServer(t, "")

	w := do(srv, "DELETE", "/api/devices/"+testIEEE+"/capabilities/measure_humidity", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body = %s", w.Code, http.StatusOK, w.Body.String())
	}
	if len(eng.removedCap) != 1 || eng.removedCap[0] != capability.MeasureHumidity {
		t.Errorf("removed = %v", eng.removedCap)
	}
	dev, _ := eng.Device(testIEEE)
	if slices.Contains(dev.Exposed, capability.MeasureHumidity) {
		t.Error("humidity still exposed")
	}
}

func TestAPIRemoveCapabilityErrors(t *testing.T) {
	srv, eng := setupTestServer(t, "")

	w := do(srv, "DELETE", "/api/devices/FFFFFFFFFFFFFFFF/capabilities/measure_humidity", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown device: status = %d, want %d", w.Code, http.StatusNotFound)
	}

	eng.removeErr = capability.ErrRemoveUnsupported
	w = do(srv, "DELETE", "/api/devices/"+testIEEE+"/capabilities/measure_humidity", nil)
	if w.Code != http.StatusNotImplemented {
		t.Errorf("unsupported: status = %d, want %d", w.Code, http.StatusNotImplemented)
	}

	eng.removeErr = errors.Join(capability.ErrPersist, errors.New("disk full"))
	w = do(srv, "DELETE", "/api/devices/"+testIEEE+"/capabilities/measure_humidity", nil)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("persist: status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

func TestAPIRefresh(t *testing.T) {
	srv, eng := setupTestServer(t, "")
	eng.report = refresh.Report{Attempted: 2, Updated: 1, Skipped: 1, Errors: []error{bus.ErrTimeout}}

	w := do(srv, "POST", "/api/devices/"+testIEEE+"/refresh", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp refreshResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Attempted != 2 || resp.Updated != 1 || resp.Skipped != 1 {
		t.Errorf("resp = %+v", resp)
	}
	if len(resp.Errors) != 1 {
		t.Errorf("errors = %v", resp.Errors)
	}
	if len(eng.refreshed) != 1 {
		t.Errorf("refreshed = %v", eng.refreshed)
	}
}

func TestAPIRefreshNotFound(t *testing.T) {
	srv, _ := setupTestServer(t, "")

	w := do(srv, "POST", "/api/devices/FFFFFFFFFFFFFFFF/refresh", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestAPIVersion(t *testing.T) {
	srv, _ := setupTestServer(t, "")

	w := do(srv, "GET", "/api/version", nil)
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp["version"] != "1.2.3" {
		t.Errorf("version = %q", resp["version"])
	}
}

func TestAuthMiddleware(t *testing.T) {
	srv, _ := setupTestServer(t, "secret-key")

	tests := []struct {
		name   string
		header map[string]string
		want   int
	}{
		{"correct", map[string]string{"X-API-Key": "secret-key"}, http.StatusOK},
		{"missing", nil, http.StatusUnauthorized},
		{"wrong", map[string]string{"X-API-Key": "wrong-key"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(srv, "GET", "/api/devices", tt.header); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestCORSRejectsForeignOrigin(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	eng := &stubEngine{devices: map[string]engine.Snapshot{}, events: engine.NewEventBus(logger)}
	srv := NewServer(eng, logger, WithAllowedOrigins([]string{"http://ha.local"}))
	t.Cleanup(srv.Stop)

	w := do(srv, "POST", "/api/devices/"+testIEEE+"/refresh", map[string]string{"Origin": "http://evil.example"})
	if w.Code != http.StatusForbidden {
		t.Errorf("foreign origin: status = %d, want %d", w.Code, http.StatusForbidden)
	}

	w = do(srv, "OPTIONS", "/api/devices", map[string]string{"Origin": "http://ha.local"})
	if w.Code != http.StatusNoContent {
		t.Errorf("preflight: status = %d, want %d", w.Code, http.StatusNoContent)
	}
}
