// Package cache mirrors the newest reading per sensor into Redis so the
// read API can answer "latest" without touching the hypertable.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/viljami/ruuvi-home/internal/ruuvi"
	"github.com/viljami/ruuvi-home/pkg/redis"
)

// Readings older than this are no longer "latest" in any useful sense
const latestTTL = 24 * time.Hour

// Latest is the per-sensor newest-reading mirror
type Latest struct {
	redis  redis.Client
	logger *slog.Logger
}

// NewLatest creates a latest-reading cache over the given Redis client
func NewLatest(client redis.Client, logger *slog.Logger) *Latest {
	return &Latest{
		redis:  client,
		logger: logger,
	}
}

// Store writes a reading as the sensor's newest observation
func (c *Latest) Store(ctx context.Context, reading *ruuvi.SensorReading) error {
	data, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}

	key := redis.LatestReadingKey(string(reading.SensorMAC))
	if err := c.redis.Set(ctx, key, data, latestTTL); err != nil {
		return fmt.Errorf("failed to cache latest reading: %w", err)
	}
	return nil
}

// Get returns the cached newest reading for a sensor, or nil on a miss
func (c *Latest) Get(ctx context.Context, sensor ruuvi.MAC) (*ruuvi.SensorReading, error) {
	val, err := c.redis.Get(ctx, redis.LatestReadingKey(string(sensor)))
	if errors.Is(err, redis.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var reading ruuvi.SensorReading
	if err := json.Unmarshal([]byte(val), &reading); err != nil {
		// A corrupt cache entry is a miss, not a failure
		c.logger.Warn("Discarding unreadable cache entry", "sensor", sensor, "error", err)
		return nil, nil
	}
	return &reading, nil
}
