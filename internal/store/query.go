package store

import (
	"context"
	"time"

	"github.com/viljami/ruuvi-home/internal/ruuvi"
)

// AggregateRow is one bucketed projection of a sensor's readings
type AggregateRow struct {
	SensorMAC      ruuvi.MAC `db:"sensor_mac" json:"sensor_mac"`
	Bucket         time.Time `db:"bucket" json:"bucket"`
	TemperatureAvg float64   `db:"temperature_avg" json:"temperature_avg"`
	TemperatureMin float64   `db:"temperature_min" json:"temperature_min"`
	TemperatureMax float64   `db:"temperature_max" json:"temperature_max"`
	HumidityAvg    float64   `db:"humidity_avg" json:"humidity_avg"`
	HumidityMin    float64   `db:"humidity_min" json:"humidity_min"`
	HumidityMax    float64   `db:"humidity_max" json:"humidity_max"`
	PressureAvg    float64   `db:"pressure_avg" json:"pressure_avg"`
	PressureMin    float64   `db:"pressure_min" json:"pressure_min"`
	PressureMax    float64   `db:"pressure_max" json:"pressure_max"`
	BatteryAvg     float64   `db:"battery_avg" json:"battery_avg"`
	BatteryMin     int64     `db:"battery_min" json:"battery_min"`
	BatteryMax     int64     `db:"battery_max" json:"battery_max"`
	ReadingCount   int64     `db:"reading_count" json:"reading_count"`
}

const latestPerSensorSQL = `
SELECT DISTINCT ON (sensor_mac)
	sensor_mac, gateway_mac,
	temperature_c, humidity_pct, pressure_hpa,
	battery_mv, tx_power_dbm,
	movement_counter, measurement_sequence,
	acceleration_x_mg, acceleration_y_mg, acceleration_z_mg,
	acceleration_magnitude_g,
	rssi_dbm, observed_at
FROM sensor_data
ORDER BY sensor_mac, observed_at DESC`

// LatestPerSensor returns the most recent reading of every sensor
func (s *Store) LatestPerSensor(ctx context.Context) ([]ruuvi.SensorReading, error) {
	var readings []ruuvi.SensorReading
	if err := s.db.SelectContext(ctx, &readings, latestPerSensorSQL); err != nil {
		return nil, Classify(err)
	}
	return readings, nil
}

// Latest returns the most recent reading of one sensor, or nil when the
// sensor has never been heard
func (s *Store) Latest(ctx context.Context, sensor ruuvi.MAC) (*ruuvi.SensorReading, error) {
	const query = `
		SELECT
			sensor_mac, gateway_mac,
			temperature_c, humidity_pct, pressure_hpa,
			battery_mv, tx_power_dbm,
			movement_counter, measurement_sequence,
			acceleration_x_mg, acceleration_y_mg, acceleration_z_mg,
			acceleration_magnitude_g,
			rssi_dbm, observed_at
		FROM sensor_data
		WHERE sensor_mac = $1
		ORDER BY observed_at DESC
		LIMIT 1`

	var readings []ruuvi.SensorReading
	if err := s.db.SelectContext(ctx, &readings, query, sensor); err != nil {
		return nil, Classify(err)
	}
	if len(readings) == 0 {
		return nil, nil
	}
	return &readings[0], nil
}

// Sensors lists the distinct sensors observed within the last 30 days
func (s *Store) Sensors(ctx context.Context) ([]ruuvi.MAC, error) {
	const query = `
		SELECT DISTINCT sensor_mac
		FROM sensor_data
		WHERE observed_at > NOW() - INTERVAL '30 days'
		ORDER BY sensor_mac`

	var sensors []ruuvi.MAC
	if err := s.db.SelectContext(ctx, &sensors, query); err != nil {
		return nil, Classify(err)
	}
	return sensors, nil
}

// HistoryRaw returns the raw readings of one sensor within [from, to)
func (s *Store) HistoryRaw(ctx context.Context, sensor ruuvi.MAC, from, to time.Time) ([]ruuvi.SensorReading, error) {
	const query = `
		SELECT
			sensor_mac, gateway_mac,
			temperature_c, humidity_pct, pressure_hpa,
			battery_mv, tx_power_dbm,
			movement_counter, measurement_sequence,
			acceleration_x_mg, acceleration_y_mg, acceleration_z_mg,
			acceleration_magnitude_g,
			rssi_dbm, observed_at
		FROM sensor_data
		WHERE sensor_mac = $1 AND observed_at >= $2 AND observed_at < $3
		ORDER BY observed_at`

	var readings []ruuvi.SensorReading
	if err := s.db.SelectContext(ctx, &readings, query, sensor, from, to); err != nil {
		return nil, Classify(err)
	}
	return readings, nil
}

// HistoryBucketed returns a bucketed projection of one sensor's readings
// within [from, to)
func (s *Store) HistoryBucketed(ctx context.Context, sensor ruuvi.MAC, from, to time.Time, bucket time.Duration) ([]AggregateRow, error) {
	const query = `SELECT * FROM get_sensor_data_bucketed($1, $2, $3, $4::interval)`

	var rows []AggregateRow
	if err := s.db.SelectContext(ctx, &rows, query, sensor, from, to, bucket.String()); err != nil {
		return nil, Classify(err)
	}
	return rows, nil
}
