package device

// UnknownName is reported for services and characteristics missing from the lookup tables
const UnknownName = "Unknown"

// Nordic UART Service identifiers used by the voltage sensor firmware
const (
	NordicUARTService = "6e400001-b5a3-f393-e0a9-e50e24dcca9e"
	NordicUARTTX      = "6e400002-b5a3-f393-e0a9-e50e24dcca9e"
	NordicUARTRX      = "6e400003-b5a3-f393-e0a9-e50e24dcca9e"
)

// keys are normalized UUIDs
var knownServices = map[string]string{
	"1800":                             "Generic Access Profile",
	"1801":                             "Generic Attribute Profile",
	"180a":                             "Device Information",
	"180f":                             "Battery Service",
	"fe59":                             "Nordic Semiconductor ASA",
	"6e400001b5a3f393e0a9e50e24dcca9e": "Nordic UART Service",
}

var knownCharacteristics = map[string]string{
	"2a00":                             "Device Name",
	"2a01":                             "Appearance",
	"2a04":                             "Peripheral Preferred Connection Parameters",
	"2a05":                             "Service Changed",
	"2a19":                             "Battery Level",
	"2a24":                             "Model Number String",
	"2a25":                             "Serial Number String",
	"2a26":                             "Firmware Revision String",
	"2a27":                             "Hardware Revision String",
	"2a28":                             "Software Revision String",
	"2a29":                             "Manufacturer Name String",
	"2aa6":                             "Central Address Resolution",
	"6e400002b5a3f393e0a9e50e24dcca9e": "Nordic UART TX",
	"6e400003b5a3f393e0a9e50e24dcca9e": "Nordic UART RX",
}

// LookupService returns the well-known name of a service, or "" if unknown
func LookupService(uuid string) string {
	return knownServices[NormalizeUUID(uuid)]
}

// LookupCharacteristic returns the well-known name of a characteristic, or "" if unknown
func LookupCharacteristic(uuid string) string {
	return knownCharacteristics[NormalizeUUID(uuid)]
}

// DescribeService returns the well-known name of a service or UnknownName
func DescribeService(uuid string) string {
	if name := LookupService(uuid); name != "" {
		return name
	}
	return UnknownName
}

// DescribeCharacteristic returns the well-known name of a characteristic or UnknownName
func DescribeCharacteristic(uuid string) string {
	if name := LookupCharacteristic(uuid); name != "" {
		return name
	}
	return UnknownName
}
