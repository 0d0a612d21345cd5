package zcl

// Cluster IDs the normalization engine reads or listens to.
const (
	ClusterBasic                 uint16 = 0x0000
	ClusterPowerConfiguration    uint16 = 0x0001
	ClusterOnOff                 uint16 = 0x0006
	ClusterIlluminance           uint16 = 0x0400
	ClusterTemperature           uint16 = 0x0402
	ClusterPressure              uint16 = 0x0403
	ClusterRelativeHumidity      uint16 = 0x0405
	ClusterOccupancy             uint16 = 0x0406
	ClusterIASZone               uint16 = 0x0500
	ClusterMetering              uint16 = 0x0702
	ClusterElectricalMeasurement uint16 = 0x0B04
	ClusterTuya                  uint16 = 0xEF00
)

// Attribute IDs within the clusters above.
const (
	AttrMeasuredValue              uint16 = 0x0000 // illuminance, temperature, pressure, humidity
	AttrOccupancy                  uint16 = 0x0000
	AttrBatteryVoltage             uint16 = 0x0020
	AttrBatteryPercentageRemaining uint16 = 0x0021
	AttrCurrentSummationDelivered  uint16 = 0x0000
	AttrRMSVoltage                 uint16 = 0x0505
	AttrRMSCurrent                 uint16 = 0x0508
	AttrActivePower                uint16 = 0x050B
)

// Tuya private cluster (0xEF00) command IDs.
const (
	TuyaCmdDataRequest  uint8 = 0x00
	TuyaCmdDataResponse uint8 = 0x01
	TuyaCmdDataReport   uint8 = 0x02
	TuyaCmdActiveStatus uint8 = 0x06
	TuyaCmdMCUSyncTime  uint8 = 0x24
)

// IsTuyaDatapointCommand reports whether a 0xEF00 server-to-client command
// carries a datapoint frame.
func IsTuyaDatapointCommand(cmd uint8) bool {
	switch cmd {
	case TuyaCmdDataResponse, TuyaCmdDataReport, TuyaCmdActiveStatus:
		return true
	}
	return false
}
