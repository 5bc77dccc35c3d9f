package mower

import (
	"errors"
	"reflect"
	"testing"

	"github.com/goccy/go-json"
)

func TestLookupBrand(t *testing.T) {
	tests := []struct {
		code         string
		manufacturer string
	}{
		{"WX", "Worx"},
		{"KR", "Kress"},
		{"LX", "Landxcape"},
		{"SM", "Ferrex"},
	}
	for _, tt := range tests {
		b, err := LookupBrand(tt.code)
		if err != nil {
			t.Fatalf("LookupBrand(%q) error = %v", tt.code, err)
		}
		if b.Manufacturer != tt.manufacturer {
			t.Errorf("LookupBrand(%q).Manufacturer = %q, want %q", tt.code, b.Manufacturer, tt.manufacturer)
		}
	}

	if _, err := LookupBrand("wx"); !errors.Is(err, ErrUnknownBrand) {
		t.Errorf("lowercase code: error = %v, want ErrUnknownBrand", err)
	}
}

func TestBrandCodes(t *testing.T) {
	if got := BrandCodes(); !reflect.DeepEqual(got, []string{"WX", "KR", "LX", "SM"}) {
		t.Errorf("BrandCodes() = %v", got)
	}
}

func TestBrandPath(t *testing.T) {
	b, _ := LookupBrand("WX")
	if got := b.Path(FieldBatteryLevel); got != "dat.bt.p" {
		t.Errorf("Path(battery_level) = %q", got)
	}
	if got := b.Path(FieldSerial); got != "cfg.sn" {
		t.Errorf("Path(serial) = %q", got)
	}
	if got := b.Path(Field("bogus")); got != "" {
		t.Errorf("Path(bogus) = %q, want empty", got)
	}
}

func TestBrandPathOverride(t *testing.T) {
	b := Brand{
		Code:         "XX",
		Manufacturer: "Test",
		Paths: map[Field]string{
			FieldBatteryLevel: "dat.battery.percent",
			FieldStatusCode:   "dat.state",
		},
	}
	if got := b.Path(FieldBatteryLevel); got != "dat.battery.percent" {
		t.Errorf("Path(battery_level) = %q, want override", got)
	}
	if got := b.Path(FieldBatteryVoltage); got != "dat.bt.v" {
		t.Errorf("Path(battery_voltage) = %q, want default", got)
	}

	state := mustDecode(t, `{"dat":{"bt":{"p":10,"v":19.5},"battery":{"percent":55},"ls":1,"state":7}}`)

	v, ok := ExtractField(b, state, FieldBatteryLevel)
	if !ok || v != json.Number("55") {
		t.Errorf("ExtractField(battery_level) = %v, %v; want 55 from override path", v, ok)
	}

	values := EntityValues(b, state)
	if values["battery_level"] != json.Number("55") {
		t.Errorf("battery_level = %v, want 55", values["battery_level"])
	}
	if values["battery_voltage"] != json.Number("19.5") {
		t.Errorf("battery_voltage = %v, want 19.5 from default path", values["battery_voltage"])
	}
	if values["status"] != "Mowing" {
		t.Errorf("status = %v, want Mowing from overridden status path", values["status"])
	}

	wxValues := EntityValues(wx(t), state)
	if wxValues["battery_level"] != json.Number("10") || wxValues["status"] != "Home" {
		t.Errorf("WX values = %v / %v, want default paths", wxValues["battery_level"], wxValues["status"])
	}
}
