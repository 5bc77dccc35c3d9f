package mower

import (
	"fmt"

	"github.com/samber/lo"
)

// Field is a logical status field, resolved to a dotted JSON path per brand.
type Field string

// Status fields the bridge reads from the vendor document.
const (
	FieldStatusCode         Field = "status_code"
	FieldErrorCode          Field = "error_code"
	FieldBatteryLevel       Field = "battery_level"
	FieldBatteryVoltage     Field = "battery_voltage"
	FieldBatteryTemperature Field = "battery_temperature"
	FieldBatteryCycles      Field = "battery_cycles"
	FieldBatteryCharging    Field = "battery_charging"
	FieldWifiQuality        Field = "wifi_quality"
	FieldWifiLock           Field = "wifi_lock"
	FieldFirmware           Field = "firmware"
	FieldMAC                Field = "mac"
	FieldSerial             Field = "serial"
	FieldDate               Field = "date"
	FieldTime               Field = "time"
	FieldScheduleActive     Field = "schedule_active"
	FieldScheduleVariation  Field = "schedule_variation"
	FieldScheduleDays       Field = "schedule_days"
	FieldRainDelay          Field = "rain_delay"
	FieldOrientation        Field = "orientation"
	FieldZoneCurrent        Field = "zone_current"
	FieldZoneStarts         Field = "zone_starts"
	FieldZoneSequence       Field = "zone_sequence"
	FieldBladeTime          Field = "blade_time"
	FieldMowingTime         Field = "mowing_time"
	FieldDistance           Field = "distance"
)

// defaultPaths maps fields to their location in the vendor status document.
// "cfg" holds device configuration, "dat" holds live data.
var defaultPaths = map[Field]string{
	FieldStatusCode:         "dat.ls",
	FieldErrorCode:          "dat.le",
	FieldBatteryLevel:       "dat.bt.p",
	FieldBatteryVoltage:     "dat.bt.v",
	FieldBatteryTemperature: "dat.bt.t",
	FieldBatteryCycles:      "dat.bt.nr",
	FieldBatteryCharging:    "dat.bt.c",
	FieldWifiQuality:        "dat.rsi",
	FieldWifiLock:           "dat.lk",
	FieldFirmware:           "dat.fw",
	FieldMAC:                "dat.mac",
	FieldSerial:             "cfg.sn",
	FieldDate:               "cfg.dt",
	FieldTime:               "cfg.tm",
	FieldScheduleActive:     "cfg.sc.m",
	FieldScheduleVariation:  "cfg.sc.p",
	FieldScheduleDays:       "cfg.sc.d",
	FieldRainDelay:          "cfg.rd",
	FieldOrientation:        "dat.dmp",
	FieldZoneCurrent:        "dat.lz",
	FieldZoneStarts:         "cfg.mz",
	FieldZoneSequence:       "cfg.mzv",
	FieldBladeTime:          "dat.st.b",
	FieldMowingTime:         "dat.st.wt",
	FieldDistance:           "dat.st.d",
}

// Brand describes one rebranded product line sharing the vendor cloud.
type Brand struct {
	// Code is the topic prefix, e.g. "WX".
	Code string

	// Manufacturer is the name shown in Home Assistant device info.
	Manufacturer string

	// Paths overrides defaultPaths for fields this brand reports elsewhere.
	Paths map[Field]string
}

// brandTable lists every supported brand prefix.
var brandTable = []Brand{
	{Code: "WX", Manufacturer: "Worx"},
	{Code: "KR", Manufacturer: "Kress"},
	{Code: "LX", Manufacturer: "Landxcape"},
	{Code: "SM", Manufacturer: "Ferrex"},
}

// LookupBrand returns the descriptor for a brand prefix.
func LookupBrand(code string) (Brand, error) {
	brand, ok := lo.Find(brandTable, func(b Brand) bool {
		return b.Code == code
	})
	if !ok {
		return Brand{}, fmt.Errorf("%w: %q", ErrUnknownBrand, code)
	}
	return brand, nil
}

// BrandCodes returns all supported brand prefixes in table order.
func BrandCodes() []string {
	return lo.Map(brandTable, func(b Brand, _ int) string {
		return b.Code
	})
}

// Path returns the dotted JSON path of a field, preferring the brand's own
// override. An unknown field yields "".
func (b Brand) Path(f Field) string {
	if path, ok := b.Paths[f]; ok {
		return path
	}
	return defaultPaths[f]
}
