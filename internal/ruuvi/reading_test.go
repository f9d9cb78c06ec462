package ruuvi

import (
	"testing"
)

func TestParseMAC(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    MAC
		wantErr bool
	}{
		{"canonical", "CB:B8:33:4C:88:4F", "CB:B8:33:4C:88:4F", false},
		{"lowercase with colons", "cb:b8:33:4c:88:4f", "CB:B8:33:4C:88:4F", false},
		{"bare lowercase hex", "cbb8334c884f", "CB:B8:33:4C:88:4F", false},
		{"dash separated", "CB-B8-33-4C-88-4F", "CB:B8:33:4C:88:4F", false},
		{"surrounding whitespace", "  CB:B8:33:4C:88:4F ", "CB:B8:33:4C:88:4F", false},
		{"too short", "CB:B8:33", "", true},
		{"too long", "CB:B8:33:4C:88:4F:00", "", true},
		{"non-hex", "GG:B8:33:4C:88:4F", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMAC(tt.input)

			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseMAC(%q) expected error, got %q", tt.input, got)
				}
				return
			}

			if err != nil {
				t.Fatalf("ParseMAC(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseMAC(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestMACFromBytes(t *testing.T) {
	mac := MACFromBytes([6]byte{0xCB, 0xB8, 0x33, 0x4C, 0x88, 0x4F})
	if mac != "CB:B8:33:4C:88:4F" {
		t.Errorf("MACFromBytes = %q, want CB:B8:33:4C:88:4F", mac)
	}
}

func validReading() SensorReading {
	return SensorReading{
		SensorMAC:    "CB:B8:33:4C:88:4F",
		GatewayMAC:   "AA:BB:CC:DD:EE:FF",
		TemperatureC: 21.5,
		HumidityPct:  45.0,
		PressureHPa:  1013.25,
		BatteryMV:    2900,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(r *SensorReading)
		wantField string
	}{
		{"valid", func(r *SensorReading) {}, ""},
		{"temperature low", func(r *SensorReading) { r.TemperatureC = -100.5 }, "temperature_c"},
		{"temperature high", func(r *SensorReading) { r.TemperatureC = 100.5 }, "temperature_c"},
		{"humidity negative", func(r *SensorReading) { r.HumidityPct = -0.1 }, "humidity_pct"},
		{"humidity high", func(r *SensorReading) { r.HumidityPct = 150.0 }, "humidity_pct"},
		{"pressure low", func(r *SensorReading) { r.PressureHPa = 299.9 }, "pressure_hpa"},
		{"pressure high", func(r *SensorReading) { r.PressureHPa = 1300.1 }, "pressure_hpa"},
		{"battery negative", func(r *SensorReading) { r.BatteryMV = -1 }, "battery_mv"},
		{"battery high", func(r *SensorReading) { r.BatteryMV = 4001 }, "battery_mv"},
		{"boundary values", func(r *SensorReading) {
			r.TemperatureC = -100
			r.HumidityPct = 0
			r.PressureHPa = 1300
			r.BatteryMV = 4000
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validReading()
			tt.mutate(&r)

			err := r.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}

			rangeErr, ok := err.(*OutOfRangeError)
			if !ok {
				t.Fatalf("Validate() = %v, want *OutOfRangeError", err)
			}
			if rangeErr.Field != tt.wantField {
				t.Errorf("Validate() field = %q, want %q", rangeErr.Field, tt.wantField)
			}
		})
	}
}
