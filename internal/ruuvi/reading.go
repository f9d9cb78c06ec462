package ruuvi

import (
	"fmt"
	"strings"
	"time"
)

// MAC is a 48-bit hardware address in canonical form: upper-case hex pairs
// separated by colons (AA:BB:CC:DD:EE:FF).
type MAC string

// ParseMAC canonicalizes a MAC address string. Upper or lower case hex is
// accepted, with or without colon/dash separators.
func ParseMAC(s string) (MAC, error) {
	cleaned := strings.NewReplacer(":", "", "-", "").Replace(strings.TrimSpace(s))
	if len(cleaned) != 12 {
		return "", fmt.Errorf("invalid MAC %q: expected 12 hex digits, got %d", s, len(cleaned))
	}

	var b strings.Builder
	b.Grow(17)
	for i, r := range strings.ToUpper(cleaned) {
		if !isHexDigit(r) {
			return "", fmt.Errorf("invalid MAC %q: non-hex character %q", s, r)
		}
		if i > 0 && i%2 == 0 {
			b.WriteByte(':')
		}
		b.WriteRune(r)
	}
	return MAC(b.String()), nil
}

// MACFromBytes builds a canonical MAC from 6 raw bytes
func MACFromBytes(b [6]byte) MAC {
	return MAC(fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", b[0], b[1], b[2], b[3], b[4], b[5]))
}

func isHexDigit(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'A' && r <= 'F')
}

func (m MAC) String() string {
	return string(m)
}

// Measurement value ranges accepted for storage. Readings outside these
// bounds are rejected before any database round-trip; the schema carries
// matching CHECK constraints as a backstop.
const (
	TemperatureMinC = -100.0
	TemperatureMaxC = 100.0
	HumidityMinPct  = 0.0
	HumidityMaxPct  = 100.0
	PressureMinHPa  = 300.0
	PressureMaxHPa  = 1300.0
	BatteryMinMV    = 0
	BatteryMaxMV    = 4000
)

// SensorReading is one fully decoded observation from a Ruuvi tag as relayed
// by a gateway. GatewayMAC, RSSIDBm and ObservedAt come from the gateway
// envelope; everything else comes from the advertisement payload.
type SensorReading struct {
	SensorMAC  MAC `db:"sensor_mac" json:"sensor_mac"`
	GatewayMAC MAC `db:"gateway_mac" json:"gateway_mac"`

	TemperatureC float64 `db:"temperature_c" json:"temperature_c"`
	HumidityPct  float64 `db:"humidity_pct" json:"humidity_pct"`
	PressureHPa  float64 `db:"pressure_hpa" json:"pressure_hpa"`

	BatteryMV  int64 `db:"battery_mv" json:"battery_mv"`
	TxPowerDBm int64 `db:"tx_power_dbm" json:"tx_power_dbm"`

	MovementCounter     int64 `db:"movement_counter" json:"movement_counter"`
	MeasurementSequence int64 `db:"measurement_sequence" json:"measurement_sequence"`

	AccelerationXMg        int64   `db:"acceleration_x_mg" json:"acceleration_x_mg"`
	AccelerationYMg        int64   `db:"acceleration_y_mg" json:"acceleration_y_mg"`
	AccelerationZMg        int64   `db:"acceleration_z_mg" json:"acceleration_z_mg"`
	AccelerationMagnitudeG float64 `db:"acceleration_magnitude_g" json:"acceleration_magnitude_g"`

	RSSIDBm    int64     `db:"rssi_dbm" json:"rssi_dbm"`
	ObservedAt time.Time `db:"observed_at" json:"observed_at"`
}

// Validate checks the reading against the storage ranges. The returned error
// is an *OutOfRangeError naming the offending field.
func (r *SensorReading) Validate() error {
	if r.TemperatureC < TemperatureMinC || r.TemperatureC > TemperatureMaxC {
		return &OutOfRangeError{Field: "temperature_c", Value: r.TemperatureC}
	}
	if r.HumidityPct < HumidityMinPct || r.HumidityPct > HumidityMaxPct {
		return &OutOfRangeError{Field: "humidity_pct", Value: r.HumidityPct}
	}
	if r.PressureHPa < PressureMinHPa || r.PressureHPa > PressureMaxHPa {
		return &OutOfRangeError{Field: "pressure_hpa", Value: r.PressureHPa}
	}
	if r.BatteryMV < BatteryMinMV || r.BatteryMV > BatteryMaxMV {
		return &OutOfRangeError{Field: "battery_mv", Value: float64(r.BatteryMV)}
	}
	return nil
}
