package store

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viljami/ruuvi-home/internal/ruuvi"
	"github.com/viljami/ruuvi-home/pkg/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func validReading(seq int64) ruuvi.SensorReading {
	return ruuvi.SensorReading{
		SensorMAC:           "CB:B8:33:4C:88:4F",
		GatewayMAC:          "AA:BB:CC:DD:EE:FF",
		TemperatureC:        21.5,
		HumidityPct:         45.0,
		PressureHPa:         1013.25,
		BatteryMV:           2900,
		MeasurementSequence: seq,
		ObservedAt:          time.Now().UTC(),
	}
}

func TestInsertBatchRejectsOutOfRangeBeforeTheDatabase(t *testing.T) {
	// No pool behind this store: an invalid reading must be rejected
	// without any database round-trip
	s := &Store{logger: testLogger()}

	batch := []ruuvi.SensorReading{validReading(1), validReading(2)}
	batch[1].PressureHPa = 5000.0

	_, err := s.InsertBatch(context.Background(), batch)

	var storeErr *Error
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, KindConstraintViolated, storeErr.Kind)
	assert.Equal(t, "pressure_hpa", storeErr.Field)
}

func TestInsertBatchEmptyIsANoOp(t *testing.T) {
	s := &Store{logger: testLogger()}

	info, err := s.InsertBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, info.Rows)
}

// setupTestStore opens a store against a live TimescaleDB. Integration
// coverage (batch commit, duplicate tolerance, bucketed history, constraint
// classification) runs only when TEST_DATABASE_URL is set.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := testDatabaseURL(t)
	cfg := config.NewConfig()
	cfg.DatabaseURL = dsn
	cfg.DBPoolSize = 2

	s, err := Open(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testDatabaseURL(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("Integration test - set TEST_DATABASE_URL to a TimescaleDB instance")
	}
	return dsn
}

func TestInsertBatchAndQueries(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	batch := []ruuvi.SensorReading{validReading(1), validReading(2), validReading(3)}
	info, err := s.InsertBatch(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 3, info.Rows)

	// Duplicate delivery is tolerated as extra rows
	_, err = s.InsertBatch(ctx, batch[:1])
	require.NoError(t, err)

	sensors, err := s.Sensors(ctx)
	require.NoError(t, err)
	assert.Contains(t, sensors, ruuvi.MAC("CB:B8:33:4C:88:4F"))

	latest, err := s.Latest(ctx, "CB:B8:33:4C:88:4F")
	require.NoError(t, err)
	require.NotNil(t, latest)

	rows, err := s.HistoryBucketed(ctx, "CB:B8:33:4C:88:4F",
		time.Now().Add(-time.Hour), time.Now().Add(time.Hour), time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.GreaterOrEqual(t, rows[0].ReadingCount, int64(4))
	assert.InDelta(t, 21.5, rows[0].TemperatureAvg, 0.01)
}

func TestConstraintViolationIsClassified(t *testing.T) {
	s := setupTestStore(t)

	// Bypass the pre-validation path by writing through SQL directly
	_, err := s.db.Exec(`INSERT INTO sensor_data (
		sensor_mac, gateway_mac, temperature_c, humidity_pct, pressure_hpa,
		battery_mv, tx_power_dbm, movement_counter, measurement_sequence,
		acceleration_x_mg, acceleration_y_mg, acceleration_z_mg,
		acceleration_magnitude_g, rssi_dbm, observed_at
	) VALUES ('CB:B8:33:4C:88:4F', 'AA:BB:CC:DD:EE:FF', 21.5, 150.0, 1013.25,
		2900, 4, 0, 0, 0, 0, 0, 0, -60, NOW())`)
	require.Error(t, err)

	classified := Classify(err)
	assert.Equal(t, KindConstraintViolated, classified.Kind)
	assert.Equal(t, "humidity_pct", classified.Field)
}

