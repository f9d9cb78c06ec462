package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// Client represents a PostgreSQL client interface for testing and abstraction
type Client interface {
	// Connect establishes a connection to the PostgreSQL database
	Connect(ctx context.Context) error

	// Disconnect closes the connection to the PostgreSQL database
	Disconnect() error

	// DB returns the underlying connection pool
	DB() *sqlx.DB

	// Ping tests the database connection
	Ping(ctx context.Context) error

	// Transaction executes a function within a database transaction
	Transaction(ctx context.Context, fn func(*sqlx.Tx) error) error

	// HealthCheck performs a health check on the database connection
	HealthCheck(ctx context.Context) (*HealthStatus, error)
}
