package mower

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullStatus = `{
	"cfg": {"sn":"SN123","dt":"14/10/2026","tm":"09:30:15","rd":60,
		"sc":{"m":1,"p":20,"d":[["10:00",60,0]]},"mz":[0,0,0,0],"mzv":[0,0,0,0,0,0,0,0,0,0]},
	"dat": {"ls":7,"le":0,"fw":"3.30","mac":"AA:BB:CC:DD:EE:FF","rsi":-61,"lk":0,"lz":0,
		"dmp":[1.5,-2.0,180.0],
		"bt":{"p":80,"v":19.5,"t":21.3,"nr":123,"c":0},
		"st":{"b":5765,"wt":6000,"d":1234567}}
}`

func wx(t *testing.T) Brand {
	t.Helper()
	b, err := LookupBrand("WX")
	require.NoError(t, err)
	return b
}

func TestCatalog_Shape(t *testing.T) {
	components := map[string]string{}
	for _, e := range Catalog {
		_, dup := components[e.Key]
		require.False(t, dup, "duplicate key %s", e.Key)
		components[e.Key] = e.Component
	}

	assert.Equal(t, map[string]string{
		"lawn_mower":          ComponentLawnMower,
		"wifi_lock":           ComponentSwitch,
		"status":              ComponentSensor,
		"error":               ComponentSensor,
		"battery_level":       ComponentSensor,
		"battery_voltage":     ComponentSensor,
		"battery_temperature": ComponentSensor,
		"battery_cycles":      ComponentSensor,
		"wifi_quality":        ComponentSensor,
		"last_update":         ComponentSensor,
		"mowing":              ComponentBinarySensor,
		"battery_charging":    ComponentBinarySensor,
	}, components)
}

func TestEntityValues_FullStatus(t *testing.T) {
	state := mustDecode(t, fullStatus)

	values := EntityValues(wx(t), state)

	assert.Equal(t, "mowing", values["lawn_mower"])
	assert.Equal(t, "Mowing", values["status"])
	assert.Equal(t, "No errors", values["error"])
	assert.Equal(t, stateOff, values["wifi_lock"])
	assert.Equal(t, stateOn, values["mowing"])
	assert.Equal(t, stateOff, values["battery_charging"])
	assert.Equal(t, json.Number("80"), values["battery_level"])
	assert.Equal(t, json.Number("19.5"), values["battery_voltage"])
	assert.Equal(t, json.Number("-61"), values["wifi_quality"])
	assert.Equal(t, "14.10.26 09:30", values["last_update"])

	attrs, ok := values[attributesKey].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "SN123", attrs["serial_number"])
	assert.Equal(t, json.Number("1.5"), attrs["roll"])
	assert.Equal(t, json.Number("-2.0"), attrs["yaw"])
	assert.Equal(t, json.Number("180.0"), attrs["pitch"])
	assert.Equal(t, json.Number("60"), attrs["rain_delay"])
	assert.Equal(t, "4d 00h 05min", attrs["blade_time"])
	assert.Equal(t, "4d 04h 00min", attrs["mowing_time"])
	assert.Equal(t, "1234 km", attrs["driven_distance"])
}

func TestEntityValues_PartialStateOmitsAbsent(t *testing.T) {
	state := mustDecode(t, `{"dat":{"bt":{"p":42}}}`)

	values := EntityValues(wx(t), state)

	assert.Equal(t, json.Number("42"), values["battery_level"])
	for _, key := range []string{"lawn_mower", "status", "error", "mowing", "last_update", "wifi_lock"} {
		assert.NotContains(t, values, key)
	}
	attrs := values[attributesKey].(map[string]any)
	assert.Equal(t, map[string]any{"battery_charge_percent": json.Number("42")}, attrs)
}

func TestEntityValues_EmptyState(t *testing.T) {
	assert.Empty(t, EntityValues(wx(t), map[string]any{}))
}

func TestEntityValues_UnknownCodes(t *testing.T) {
	state := mustDecode(t, `{"dat":{"ls":99,"le":77}}`)

	values := EntityValues(wx(t), state)

	assert.Equal(t, "unknown", values["status"])
	assert.Equal(t, "unknown", values["lawn_mower"])
	assert.Equal(t, "Unknown: 77", values["error"])
	assert.Equal(t, stateOff, values["mowing"])
}

func TestEntityValues_Activities(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"1", "docked"},
		{"2", "mowing"},
		{"32", "mowing"},
		{"5", "returning"},
		{"30", "returning"},
		{"9", "error"},
		{"34", "paused"},
		{"0", "paused"},
	}
	for _, tt := range tests {
		values := EntityValues(wx(t), mustDecode(t, `{"dat":{"ls":`+tt.code+`}}`))
		assert.Equal(t, tt.want, values["lawn_mower"], "ls=%s", tt.code)
	}
}

func TestLastUpdate_BadDate(t *testing.T) {
	values := EntityValues(wx(t), mustDecode(t, `{"cfg":{"dt":"2026-10-14","tm":"09:30:00"}}`))
	assert.NotContains(t, values, "last_update")
}
