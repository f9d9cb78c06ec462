package redis

import (
	"context"
	"time"
)

// Client represents a Redis client interface for testing and abstraction
type Client interface {
	// Ping tests the Redis connection
	Ping(ctx context.Context) error

	// Set sets a key to a value with an optional TTL
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Get gets the value of a key; ErrNotFound when the key does not exist
	Get(ctx context.Context, key string) (string, error)

	// Close closes the connection
	Close() error
}
