package engine

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/datapoint"
)

func TestDeviceDBAddLookup(t *testing.T) {
	db := NewDeviceDB()

	db.Add(DeviceDefinition{
		Manufacturer: "_TZE200_bjawzodf",
		Model:        "TS0601",
		FriendlyName: "Tuya Temp/Humidity",
		Capabilities: []string{"measure_temperature", "measure_humidity"},
	})
	db.Add(DeviceDefinition{Model: "TS0202", FriendlyName: "Generic PIR"})

	if db.Len() != 2 {
		t.Fatalf("len = %d, want 2", db.Len())
	}

	def := db.Lookup("_TZE200_bjawzodf", "TS0601")
	if def == nil {
		t.Fatal("lookup returned nil")
	}
	if def.FriendlyName != "Tuya Temp/Humidity" {
		t.Errorf("friendly_name = %q", def.FriendlyName)
	}

	// Model-only definitions match any manufacturer.
	if def := db.Lookup("_TZ3000_mcxw5ehu", "TS0202"); def == nil || def.FriendlyName != "Generic PIR" {
		t.Errorf("model fallback = %+v", def)
	}

	if db.Lookup("_TZE200_bjawzodf", "unknown") != nil {
		t.Error("expected nil for unknown model")
	}
}

func TestLoadDeviceDir(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	dir := t.TempDir()

	os.WriteFile(filepath.Join(dir, "tuya.json"), []byte(`{
		"devices": [
			{
				"manufacturer": "_TZ3000_kmh5qpmb",
				"model": "TS0203",
				"capabilities": ["alarm_contact", "alarm_battery"],
				"zone": {"zone_type": 21}
			}
		],
		"manufacturers": [
			{
				"name": "_TZE200_yjjdcqsq",
				"models": [
					{
						"model": "TS0601",
						"refresh": true,
						"attributes": [
							{"capability": "measure_battery", "cluster": 1, "attribute": 33, "scale": 2, "encoding": "percent"}
						],
						"datapoints": [
							{"dp": 2, "capability": "measure_humidity", "kind": "value", "scale": 10},
							{"dp": 9, "capability": "measure_temperature", "expr": "value / 10"}
						]
					}
				]
			}
		]
	}`), 0o644)

	// Non-JSON files are ignored.
	os.WriteFile(filepath.Join(dir, "README.txt"), []byte("ignored"), 0o644)

	db, err := LoadDeviceDir(dir, logger)
	if err != nil {
		t.Fatal(err)
	}
	if db.Len() != 2 {
		t.Fatalf("len = %d, want 2", db.Len())
	}

	contact := db.Lookup("_TZ3000_kmh5qpmb", "TS0203")
	if contact == nil || contact.Zone == nil {
		t.Fatalf("contact sensor = %+v", contact)
	}
	if contact.Zone.ZoneType != 0x0015 {
		t.Errorf("zone type = 0x%04X", contact.Zone.ZoneType)
	}

	th := db.Lookup("_TZE200_yjjdcqsq", "TS0601")
	if th == nil {
		t.Fatal("manufacturer group model not loaded")
	}
	if th.Manufacturer != "_TZE200_yjjdcqsq" {
		t.Errorf("manufacturer = %q", th.Manufacturer)
	}
	if !th.Refresh || len(th.Attributes) != 1 || th.Attributes[0].AttrID != 0x0021 {
		t.Errorf("attributes = %+v", th.Attributes)
	}
	if len(th.Datapoints) != 2 {
		t.Fatalf("datapoints = %+v", th.Datapoints)
	}
	if k := th.Datapoints[0].Kind; k == nil || *k != datapoint.KindValue {
		t.Errorf("dp 2 kind = %v", k)
	}
	if th.Datapoints[1].Expr != "value / 10" {
		t.Errorf("dp 9 expr = %q", th.Datapoints[1].Expr)
	}
}

func TestLoadDeviceDirMissing(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	db, err := LoadDeviceDir(filepath.Join(t.TempDir(), "nope"), logger)
	if err != nil {
		t.Fatal(err)
	}
	if db.Len() != 0 {
		t.Errorf("len = %d, want 0", db.Len())
	}
}

func TestLoadDeviceDirBadJSON(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "bad.json"), []byte(`{"devices": [`), 0o644)

	if _, err := LoadDeviceDir(dir, logger); err == nil {
		t.Fatal("expected parse error")
	}
}
