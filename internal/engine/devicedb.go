package engine

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/datapoint"
	"github.com/dlnraja/com.tuya.zigbee-sub050/internal/refresh"
)

// ZoneDef marks a device as an IAS zone.
type ZoneDef struct {
	Endpoint        uint8  `json:"endpoint,omitempty"`
	ZoneType        uint16 `json:"zone_type,omitempty"`
	AlarmCapability string `json:"alarm_capability,omitempty"`
}

// ManufacturerGroup groups device models under one manufacturer name.
type ManufacturerGroup struct {
	Name   string             `json:"name"`
	Models []DeviceDefinition `json:"models"`
}

// DeviceDefinition is the static metadata of one device model.
type DeviceDefinition struct {
	Manufacturer string               `json:"manufacturer"`
	Model        string               `json:"model"`
	FriendlyName string               `json:"friendly_name,omitempty"`
	Capabilities []string             `json:"capabilities,omitempty"`
	Zone         *ZoneDef             `json:"zone,omitempty"`
	Refresh      bool                 `json:"refresh,omitempty"`
	Attributes   []refresh.Target     `json:"attributes,omitempty"`
	Datapoints   []datapoint.Override `json:"datapoints,omitempty"`
}

// DeviceDB holds device definitions keyed by manufacturer+model.
type DeviceDB struct {
	defs map[string]*DeviceDefinition
}

func deviceKey(manufacturer, model string) string {
	return manufacturer + "\x00" + model
}

// NewDeviceDB creates an empty device database.
func NewDeviceDB() *DeviceDB {
	return &DeviceDB{defs: make(map[string]*DeviceDefinition)}
}

// Add inserts a device definition into the database.
func (db *DeviceDB) Add(def DeviceDefinition) {
	cp := def
	db.defs[deviceKey(def.Manufacturer, def.Model)] = &cp
}

// Lookup finds a definition by manufacturer and model. A definition with an
// empty manufacturer matches any manufacturer of that model.
func (db *DeviceDB) Lookup(manufacturer, model string) *DeviceDefinition {
	if def, ok := db.defs[deviceKey(manufacturer, model)]; ok {
		return def
	}
	return db.defs[deviceKey("", model)]
}

// Len returns the number of device definitions.
func (db *DeviceDB) Len() int {
	return len(db.defs)
}

// deviceFile is the JSON structure for files in the devices directory.
type deviceFile struct {
	Devices       []DeviceDefinition  `json:"devices,omitempty"`
	Manufacturers []ManufacturerGroup `json:"manufacturers,omitempty"`
}

// LoadDeviceDir reads all *.json files from a directory. A missing or empty
// directory yields an empty DeviceDB, not an error.
func LoadDeviceDir(dir string, logger *slog.Logger) (*DeviceDB, error) {
	db := NewDeviceDB()

	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return db, fmt.Errorf("glob devices dir: %w", err)
	}
	if len(matches) == 0 {
		logger.Info("no device definition files found", "dir", dir)
		return db, nil
	}

	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return db, fmt.Errorf("read %s: %w", path, err)
		}

		var df deviceFile
		if err := json.Unmarshal(data, &df); err != nil {
			return db, fmt.Errorf("parse %s: %w", path, err)
		}

		for _, d := range df.Devices {
			db.Add(d)
		}
		deviceCount := len(df.Devices)
		for _, mg := range df.Manufacturers {
			for _, d := range mg.Models {
				d.Manufacturer = mg.Name
				db.Add(d)
			}
			deviceCount += len(mg.Models)
		}
		logger.Info("loaded device file", "path", filepath.Base(path), "devices", deviceCount)
	}

	logger.Info("device database loaded", "files", len(matches), "devices", db.Len())
	return db, nil
}
