package cache

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viljami/ruuvi-home/internal/ruuvi"
	"github.com/viljami/ruuvi-home/pkg/redis"
)

// fakeRedis is an in-memory stand-in for the Redis client
type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		data: make(map[string]string),
		ttls: make(map[string]time.Duration),
	}
}

func (f *fakeRedis) Ping(ctx context.Context) error { return nil }
func (f *fakeRedis) Close() error                   { return nil }

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = string(value.([]byte))
	f.ttls[key] = ttl
	return nil
}

func (f *fakeRedis) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	val, ok := f.data[key]
	if !ok {
		return "", redis.ErrNotFound
	}
	return val, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLatestRoundTrip(t *testing.T) {
	fr := newFakeRedis()
	c := NewLatest(fr, testLogger())
	ctx := context.Background()

	reading := &ruuvi.SensorReading{
		SensorMAC:    "CB:B8:33:4C:88:4F",
		GatewayMAC:   "AA:BB:CC:DD:EE:FF",
		TemperatureC: 24.3,
		HumidityPct:  53.49,
		PressureHPa:  1000.44,
		BatteryMV:    2977,
		ObservedAt:   time.Date(2024, 4, 5, 12, 0, 0, 0, time.UTC),
	}

	require.NoError(t, c.Store(ctx, reading))

	got, err := c.Get(ctx, reading.SensorMAC)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, reading.SensorMAC, got.SensorMAC)
	assert.InDelta(t, 24.3, got.TemperatureC, 0.005)
	assert.Equal(t, reading.ObservedAt, got.ObservedAt)

	assert.Equal(t, latestTTL, fr.ttls[redis.LatestReadingKey(string(reading.SensorMAC))])
}

func TestLatestMiss(t *testing.T) {
	c := NewLatest(newFakeRedis(), testLogger())

	got, err := c.Get(context.Background(), "CB:B8:33:4C:88:4F")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLatestCorruptEntryIsAMiss(t *testing.T) {
	fr := newFakeRedis()
	fr.data[redis.LatestReadingKey("CB:B8:33:4C:88:4F")] = "{not json"

	c := NewLatest(fr, testLogger())

	got, err := c.Get(context.Background(), "CB:B8:33:4C:88:4F")
	require.NoError(t, err)
	assert.Nil(t, got)
}
