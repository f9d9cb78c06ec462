package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viljami/ruuvi-home/internal/ruuvi"
	"github.com/viljami/ruuvi-home/internal/store"
	"github.com/viljami/ruuvi-home/pkg/config"
)

type fakeQueryStore struct {
	pingErr  error
	sensors  []ruuvi.MAC
	latest   map[ruuvi.MAC]*ruuvi.SensorReading
	raw      []ruuvi.SensorReading
	buckets  []store.AggregateRow
	gotFrom  time.Time
	gotTo    time.Time
	gotBucket time.Duration
}

func (f *fakeQueryStore) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeQueryStore) Sensors(ctx context.Context) ([]ruuvi.MAC, error) {
	return f.sensors, nil
}

func (f *fakeQueryStore) Latest(ctx context.Context, sensor ruuvi.MAC) (*ruuvi.SensorReading, error) {
	return f.latest[sensor], nil
}

func (f *fakeQueryStore) HistoryRaw(ctx context.Context, sensor ruuvi.MAC, from, to time.Time) ([]ruuvi.SensorReading, error) {
	f.gotFrom, f.gotTo = from, to
	return f.raw, nil
}

func (f *fakeQueryStore) HistoryBucketed(ctx context.Context, sensor ruuvi.MAC, from, to time.Time, bucket time.Duration) ([]store.AggregateRow, error) {
	f.gotFrom, f.gotTo, f.gotBucket = from, to, bucket
	return f.buckets, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(fs *fakeQueryStore) *Server {
	cfg := config.NewConfig()
	return NewServer(cfg, fs, nil, discardLogger())
}

func TestHealth(t *testing.T) {
	t.Run("database reachable", func(t *testing.T) {
		srv := newTestServer(&fakeQueryStore{})
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "OK", rec.Body.String())
	})

	t.Run("database down", func(t *testing.T) {
		srv := newTestServer(&fakeQueryStore{pingErr: errors.New("down")})
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestSensors(t *testing.T) {
	srv := newTestServer(&fakeQueryStore{
		sensors: []ruuvi.MAC{"CB:B8:33:4C:88:4F", "DE:AD:BE:EF:00:01"},
	})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/sensors", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var got []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, []string{"CB:B8:33:4C:88:4F", "DE:AD:BE:EF:00:01"}, got)
}

func TestLatest(t *testing.T) {
	reading := &ruuvi.SensorReading{
		SensorMAC:    "CB:B8:33:4C:88:4F",
		GatewayMAC:   "AA:BB:CC:DD:EE:FF",
		TemperatureC: 24.3,
		HumidityPct:  53.49,
		PressureHPa:  1000.44,
		BatteryMV:    2977,
		ObservedAt:   time.Date(2024, 4, 5, 12, 0, 0, 0, time.UTC),
	}
	fs := &fakeQueryStore{latest: map[ruuvi.MAC]*ruuvi.SensorReading{
		"CB:B8:33:4C:88:4F": reading,
	}}
	srv := newTestServer(fs)

	t.Run("known sensor", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/sensors/CB:B8:33:4C:88:4F/latest", nil))

		require.Equal(t, http.StatusOK, rec.Code)

		var got ruuvi.SensorReading
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, reading.SensorMAC, got.SensorMAC)
		assert.InDelta(t, 24.3, got.TemperatureC, 0.005)
	})

	t.Run("lowercase MAC is canonicalized", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/sensors/cbb8334c884f/latest", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unknown sensor", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/sensors/DE:AD:BE:EF:00:02/latest", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed MAC", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/sensors/nonsense/latest", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHistory(t *testing.T) {
	fs := &fakeQueryStore{
		raw:     []ruuvi.SensorReading{{SensorMAC: "CB:B8:33:4C:88:4F"}},
		buckets: []store.AggregateRow{{SensorMAC: "CB:B8:33:4C:88:4F", ReadingCount: 60}},
	}
	srv := newTestServer(fs)

	t.Run("raw without bucket", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET",
			"/api/sensors/CB:B8:33:4C:88:4F/history?from=2024-04-05T00:00:00Z&to=2024-04-06T00:00:00Z", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, time.Date(2024, 4, 5, 0, 0, 0, 0, time.UTC), fs.gotFrom)
		assert.Equal(t, time.Date(2024, 4, 6, 0, 0, 0, 0, time.UTC), fs.gotTo)

		var got []ruuvi.SensorReading
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Len(t, got, 1)
	})

	t.Run("bucketed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET",
			"/api/sensors/CB:B8:33:4C:88:4F/history?from=2024-04-05T00:00:00Z&to=2024-04-06T00:00:00Z&bucket=1h", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, time.Hour, fs.gotBucket)

		var got []store.AggregateRow
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		require.Len(t, got, 1)
		assert.Equal(t, int64(60), got[0].ReadingCount)
	})

	t.Run("invalid bucket", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET",
			"/api/sensors/CB:B8:33:4C:88:4F/history?bucket=sideways", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("inverted range", func(t *testing.T) {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest("GET",
			"/api/sensors/CB:B8:33:4C:88:4F/history?from=2024-04-06T00:00:00Z&to=2024-04-05T00:00:00Z", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
