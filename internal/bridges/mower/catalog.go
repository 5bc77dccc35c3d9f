package mower

import (
	"fmt"
	"time"

	"github.com/samber/lo"
)

// Home Assistant components used by the catalog.
const (
	ComponentLawnMower    = "lawn_mower"
	ComponentSwitch       = "switch"
	ComponentSensor       = "sensor"
	ComponentBinarySensor = "binary_sensor"
)

const (
	stateOn  = "ON"
	stateOff = "OFF"

	// attributesKey holds the status sensor attributes in the state document.
	attributesKey = "attributes"

	// vendorDateTimeLayout is cfg.dt + " " + cfg.tm as sent by the mower.
	vendorDateTimeLayout = "02/01/2006 15:04:05"
	lastUpdateLayout     = "02.01.06 15:04"
)

// Vendor command payloads.
const (
	cmdStart    = `{"cmd":1}`
	cmdPause    = `{"cmd":2}`
	cmdDock     = `{"cmd":3}`
	cmdRefresh  = `{"cmd":0}`
	cmdLockTmpl = `{% if value == "ON" %}{"cmd":5}{% else %}{"cmd":6}{% endif %}`
)

// Entity is a static discovery template bound to a device at publish time.
type Entity struct {
	Key            string
	Component      string
	Name           string
	Icon           string
	DeviceClass    string
	Unit           string
	EntityCategory string

	// Attributes marks the entity that carries the status attribute map.
	Attributes bool

	// Commands wires the entity to the device command topic.
	Commands EntityCommands

	value func(b Brand, state map[string]any) (any, bool)
}

// EntityCommands are command templates rendered into the discovery config.
// Empty templates are omitted.
type EntityCommands struct {
	Command     string
	Dock        string
	Pause       string
	StartMowing string
}

// statusNames maps dat.ls to a readable status.
var statusNames = map[int64]string{
	0: "Idle", 1: "Home", 2: "Start sequence", 3: "Leaving home",
	4: "Follow wire", 5: "Searching home", 6: "Searching wire", 7: "Mowing",
	8: "Lifted", 9: "Trapped", 10: "Blade blocked", 11: "Debug",
	12: "Remote control", 30: "Going home", 31: "Zone training",
	32: "Border Cut", 33: "Searching zone", 34: "Pause",
}

// errorNames maps dat.le to a readable error.
var errorNames = map[int64]string{
	0: "No errors", 1: "Trapped", 2: "Lifted", 3: "Wire missing",
	4: "Outside wire", 5: "Rain Delay", 6: "Close door to mow",
	7: "Close door to go home", 8: "Blade motor blocked",
	9: "Wheel motor blocked", 10: "Trapped timeout", 11: "Upside down",
	12: "Battery low", 13: "Reverse wire", 14: "Charge error",
	15: "Timeout finding home", 16: "Mower locked",
	17: "Battery temperature too high/low",
}

// activities maps dat.ls to a Home Assistant lawn_mower activity.
var activities = map[int64]string{
	1: "docked",
	2: "mowing", 3: "mowing", 7: "mowing", 32: "mowing", 33: "mowing",
	4: "returning", 5: "returning", 6: "returning", 30: "returning",
	8: "error", 9: "error", 10: "error", 12: "error",
	0: "paused", 11: "paused", 31: "paused", 34: "paused",
}

// statusCodeMowing is the dat.ls value while the blade is cutting.
const statusCodeMowing = 7

// Catalog is the fixed set of entities published for every mower.
var Catalog = []Entity{
	{
		Key:       "lawn_mower",
		Component: ComponentLawnMower,
		Name:      "Lawn Mower",
		Commands:  EntityCommands{Dock: cmdDock, Pause: cmdPause, StartMowing: cmdStart},
		value: func(b Brand, s map[string]any) (any, bool) {
			code, ok := intField(b, s, FieldStatusCode)
			if !ok {
				return nil, false
			}
			return lo.ValueOr(activities, code, "unknown"), true
		},
	},
	{
		Key:       "wifi_lock",
		Component: ComponentSwitch,
		Name:      "Wi-Fi Lock",
		Icon:      "mdi:lock-open",
		Commands:  EntityCommands{Command: cmdLockTmpl},
		value:     onOff(FieldWifiLock, 1),
	},
	{
		Key:        "status",
		Component:  ComponentSensor,
		Name:       "Status",
		Icon:       "mdi:robot-mower-outline",
		Attributes: true,
		value: func(b Brand, s map[string]any) (any, bool) {
			code, ok := intField(b, s, FieldStatusCode)
			if !ok {
				return nil, false
			}
			return lo.ValueOr(statusNames, code, "unknown"), true
		},
	},
	{
		Key:       "error",
		Component: ComponentSensor,
		Name:      "Error",
		Icon:      "mdi:alert-circle",
		value: func(b Brand, s map[string]any) (any, bool) {
			code, ok := intField(b, s, FieldErrorCode)
			if !ok {
				return nil, false
			}
			if name, known := errorNames[code]; known {
				return name, true
			}
			return fmt.Sprintf("Unknown: %d", code), true
		},
	},
	{
		Key:         "battery_level",
		Component:   ComponentSensor,
		Name:        "Battery Level",
		DeviceClass: "battery",
		Unit:        "%",
		value:       rawField(FieldBatteryLevel),
	},
	{
		Key:            "battery_voltage",
		Component:      ComponentSensor,
		Name:           "Battery Voltage",
		DeviceClass:    "voltage",
		Unit:           "V",
		EntityCategory: "diagnostic",
		value:          rawField(FieldBatteryVoltage),
	},
	{
		Key:            "battery_temperature",
		Component:      ComponentSensor,
		Name:           "Battery Temperature",
		DeviceClass:    "temperature",
		Unit:           "°C",
		EntityCategory: "diagnostic",
		value:          rawField(FieldBatteryTemperature),
	},
	{
		Key:            "battery_cycles",
		Component:      ComponentSensor,
		Name:           "Battery Cycles",
		Icon:           "mdi:battery-sync",
		EntityCategory: "diagnostic",
		value:          rawField(FieldBatteryCycles),
	},
	{
		Key:            "wifi_quality",
		Component:      ComponentSensor,
		Name:           "WiFi Quality",
		DeviceClass:    "signal_strength",
		Unit:           "dBm",
		EntityCategory: "diagnostic",
		value:          rawField(FieldWifiQuality),
	},
	{
		Key:       "last_update",
		Component: ComponentSensor,
		Name:      "Last Update",
		Icon:      "mdi:clock",
		value:     lastUpdate,
	},
	{
		Key:            "mowing",
		Component:      ComponentBinarySensor,
		Name:           "Mowing",
		DeviceClass:    "running",
		EntityCategory: "diagnostic",
		value:          onOff(FieldStatusCode, statusCodeMowing),
	},
	{
		Key:            "battery_charging",
		Component:      ComponentBinarySensor,
		Name:           "Battery Charging",
		DeviceClass:    "battery_charging",
		EntityCategory: "diagnostic",
		value:          onOff(FieldBatteryCharging, 1),
	},
}

// attributeField is one raw entry of the status attribute map.
type attributeField struct {
	name  string
	field Field
	index string
}

var statusAttributes = []attributeField{
	{name: "last_update_time", field: FieldTime},
	{name: "last_update_date", field: FieldDate},
	{name: "schedule_active", field: FieldScheduleActive},
	{name: "schedule_variation", field: FieldScheduleVariation},
	{name: "schedule_days", field: FieldScheduleDays},
	{name: "rain_delay", field: FieldRainDelay},
	{name: "serial_number", field: FieldSerial},
	{name: "mac_address", field: FieldMAC},
	{name: "firmware", field: FieldFirmware},
	{name: "battery_temperature", field: FieldBatteryTemperature},
	{name: "battery_voltage", field: FieldBatteryVoltage},
	{name: "battery_charge_percent", field: FieldBatteryLevel},
	{name: "battery_charge_cycles", field: FieldBatteryCycles},
	{name: "battery_charging", field: FieldBatteryCharging},
	{name: "roll", field: FieldOrientation, index: "0"},
	{name: "yaw", field: FieldOrientation, index: "1"},
	{name: "pitch", field: FieldOrientation, index: "2"},
	{name: "status_code", field: FieldStatusCode},
	{name: "error_code", field: FieldErrorCode},
	{name: "zone_current", field: FieldZoneCurrent},
	{name: "zone_mz", field: FieldZoneStarts},
	{name: "zone_mzv", field: FieldZoneSequence},
	{name: "wifi_link_quality", field: FieldWifiQuality},
}

// Value returns the entity value for a device state.
func (e Entity) Value(b Brand, state map[string]any) (any, bool) {
	if e.value == nil {
		return nil, false
	}
	return e.value(b, state)
}

// EntityValues builds the derived state document of a device: one key per
// catalog entity with a value, plus the status attribute map. Entities whose
// source fields are absent are omitted.
func EntityValues(b Brand, state map[string]any) map[string]any {
	doc := make(map[string]any, len(Catalog)+1)
	for _, e := range Catalog {
		if v, ok := e.Value(b, state); ok {
			doc[e.Key] = v
		}
	}
	if attrs := StatusAttributes(b, state); len(attrs) > 0 {
		doc[attributesKey] = attrs
	}
	return doc
}

// StatusAttributes builds the attribute map shown on the status sensor.
func StatusAttributes(b Brand, state map[string]any) map[string]any {
	attrs := make(map[string]any)
	for _, a := range statusAttributes {
		path := b.Path(a.field)
		if a.index != "" {
			path += "." + a.index
		}
		if v, ok := Extract(state, path); ok {
			attrs[a.name] = v
		}
	}

	if minutes, ok := intField(b, state, FieldBladeTime); ok {
		attrs["blade_time"] = formatMinutes(minutes)
	}
	if minutes, ok := intField(b, state, FieldMowingTime); ok {
		attrs["mowing_time"] = formatMinutes(minutes)
	}
	if v, ok := ExtractField(b, state, FieldDistance); ok {
		if metres, ok := asFloat(v); ok {
			attrs["driven_distance"] = formatKilometres(metres)
		}
	}

	return attrs
}

func intField(b Brand, state map[string]any, f Field) (int64, bool) {
	v, ok := ExtractField(b, state, f)
	if !ok {
		return 0, false
	}
	return asInt(v)
}

func rawField(f Field) func(Brand, map[string]any) (any, bool) {
	return func(b Brand, s map[string]any) (any, bool) {
		return ExtractField(b, s, f)
	}
}

func onOff(f Field, on int64) func(Brand, map[string]any) (any, bool) {
	return func(b Brand, s map[string]any) (any, bool) {
		v, ok := intField(b, s, f)
		if !ok {
			return nil, false
		}
		if v == on {
			return stateOn, true
		}
		return stateOff, true
	}
}

func lastUpdate(b Brand, s map[string]any) (any, bool) {
	date, ok := ExtractField(b, s, FieldDate)
	if !ok {
		return nil, false
	}
	clock, ok := ExtractField(b, s, FieldTime)
	if !ok {
		return nil, false
	}
	ds, dok := date.(string)
	cs, cok := clock.(string)
	if !dok || !cok {
		return nil, false
	}
	t, err := time.Parse(vendorDateTimeLayout, ds+" "+cs)
	if err != nil {
		return nil, false
	}
	return t.Format(lastUpdateLayout), true
}
