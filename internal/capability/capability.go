// Package capability owns the set of features a device exposes to the host
// and decides when that set may grow.
package capability

// Capability names as understood by the host.
const (
	MeasureTemperature = "measure_temperature"
	MeasureHumidity    = "measure_humidity"
	MeasureLuminance   = "measure_luminance"
	MeasureBattery     = "measure_battery"
	MeasurePressure    = "measure_pressure"
	MeasurePower       = "measure_power"
	MeasureVoltage     = "measure_voltage"
	MeasureCurrent     = "measure_current"
	MeterPower         = "meter_power"

	AlarmMotion  = "alarm_motion"
	AlarmContact = "alarm_contact"
	AlarmTamper  = "alarm_tamper"
	AlarmBattery = "alarm_battery"
	AlarmSmoke   = "alarm_smoke"
	AlarmWater   = "alarm_water"
	AlarmCO      = "alarm_co"
	AlarmGeneric = "alarm_generic"

	OnOff = "onoff"
	Dim   = "dim"
)

// allowList holds the read-only measurement capabilities that may be added
// to a device at runtime. Anything implying control, and alarms (which need
// a declared zone), must come from static metadata.
var allowList = map[string]bool{
	MeasureTemperature: true,
	MeasureHumidity:    true,
	MeasureLuminance:   true,
	MeasureBattery:     true,
	MeasurePressure:    true,
	MeasurePower:       true,
	MeasureVoltage:     true,
	MeasureCurrent:     true,
	MeterPower:         true,
}

// AllowListed reports whether c may be added without being declared.
func AllowListed(c string) bool {
	return allowList[c]
}

// Kind of value a capability carries.
type Kind string

const (
	KindNumber Kind = "number"
	KindBool   Kind = "bool"
)

// Info describes how a capability is presented.
type Info struct {
	Kind        Kind    `json:"kind"`
	Unit        string  `json:"unit,omitempty"`
	DeviceClass string  `json:"device_class,omitempty"`
	Min         float64 `json:"min,omitempty"`
	Max         float64 `json:"max,omitempty"`
	Bounded     bool    `json:"-"`
}

var infos = map[string]Info{
	MeasureTemperature: {Kind: KindNumber, Unit: "°C", DeviceClass: "temperature", Min: -40, Max: 125, Bounded: true},
	MeasureHumidity:    {Kind: KindNumber, Unit: "%", DeviceClass: "humidity", Min: 0, Max: 100, Bounded: true},
	MeasureLuminance:   {Kind: KindNumber, Unit: "lx", DeviceClass: "illuminance", Min: 0, Max: 200000, Bounded: true},
	MeasureBattery:     {Kind: KindNumber, Unit: "%", DeviceClass: "battery", Min: 0, Max: 100, Bounded: true},
	MeasurePressure:    {Kind: KindNumber, Unit: "hPa", DeviceClass: "pressure", Min: 300, Max: 1100, Bounded: true},
	MeasurePower:       {Kind: KindNumber, Unit: "W", DeviceClass: "power"},
	MeasureVoltage:     {Kind: KindNumber, Unit: "V", DeviceClass: "voltage"},
	MeasureCurrent:     {Kind: KindNumber, Unit: "A", DeviceClass: "current"},
	MeterPower:         {Kind: KindNumber, Unit: "kWh", DeviceClass: "energy"},

	AlarmMotion:  {Kind: KindBool, DeviceClass: "motion"},
	AlarmContact: {Kind: KindBool, DeviceClass: "door"},
	AlarmTamper:  {Kind: KindBool, DeviceClass: "tamper"},
	AlarmBattery: {Kind: KindBool, DeviceClass: "battery"},
	AlarmSmoke:   {Kind: KindBool, DeviceClass: "smoke"},
	AlarmWater:   {Kind: KindBool, DeviceClass: "moisture"},
	AlarmCO:      {Kind: KindBool, DeviceClass: "carbon_monoxide"},
	AlarmGeneric: {Kind: KindBool, DeviceClass: "safety"},

	OnOff: {Kind: KindBool},
	Dim:   {Kind: KindNumber, Min: 0, Max: 1, Bounded: true},
}

// Lookup returns presentation info for c. Unknown capabilities are numbers.
func Lookup(c string) (Info, bool) {
	info, ok := infos[c]
	if !ok {
		return Info{Kind: KindNumber}, false
	}
	return info, true
}

// InRange reports whether v lies within the capability's plausible range.
// Capabilities without a bound accept any value.
func InRange(c string, v float64) bool {
	info, ok := infos[c]
	if !ok || !info.Bounded {
		return true
	}
	return v >= info.Min && v <= info.Max
}
