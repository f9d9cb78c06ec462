// Package store owns the sensor_data schema and every read and write
// against it. Migrations are ordered, embedded, and checked at startup;
// nothing else in the process issues DDL.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/viljami/ruuvi-home/internal/ruuvi"
	"github.com/viljami/ruuvi-home/pkg/config"
	"github.com/viljami/ruuvi-home/pkg/postgres"
)

const (
	statementTimeout   = 10 * time.Second
	transactionTimeout = 30 * time.Second
)

// Store is the transactional writer and queryable reader over sensor_data
type Store struct {
	pg     postgres.Client
	db     *sqlx.DB
	logger *slog.Logger
}

// Open connects to the database, applies pending migrations and verifies
// the schema version
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Store, error) {
	s, err := openWithoutMigrations(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := s.migrate(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// OpenReadOnly connects without applying migrations, refusing to serve a
// database whose schema version this build does not know
func OpenReadOnly(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Store, error) {
	s, err := openWithoutMigrations(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := s.VerifySchema(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func openWithoutMigrations(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Store, error) {
	pg := postgres.NewClient(cfg, logger)
	if err := pg.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return &Store{pg: pg, db: pg.DB(), logger: logger}, nil
}

// Close releases the connection pool
func (s *Store) Close() error {
	return s.pg.Disconnect()
}

// Ping tests the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.pg.Ping(ctx)
}

// Client exposes the underlying postgres client for health checks
func (s *Store) Client() postgres.Client {
	return s.pg
}

// CommitInfo describes one successful batch commit
type CommitInfo struct {
	BatchID uuid.UUID
	Rows    int
	Elapsed time.Duration
}

const insertReadingSQL = `
INSERT INTO sensor_data (
	sensor_mac, gateway_mac,
	temperature_c, humidity_pct, pressure_hpa,
	battery_mv, tx_power_dbm,
	movement_counter, measurement_sequence,
	acceleration_x_mg, acceleration_y_mg, acceleration_z_mg,
	acceleration_magnitude_g,
	rssi_dbm, observed_at
) VALUES (
	:sensor_mac, :gateway_mac,
	:temperature_c, :humidity_pct, :pressure_hpa,
	:battery_mv, :tx_power_dbm,
	:movement_counter, :measurement_sequence,
	:acceleration_x_mg, :acceleration_y_mg, :acceleration_z_mg,
	:acceleration_magnitude_g,
	:rssi_dbm, :observed_at
)`

// InsertBatch persists a batch of readings in a single transaction.
// Either every row commits or none does. Readings are range-checked
// before touching the database; the schema CHECK constraints are the
// backstop. All failures come back classified.
func (s *Store) InsertBatch(ctx context.Context, batch []ruuvi.SensorReading) (*CommitInfo, error) {
	if len(batch) == 0 {
		return &CommitInfo{BatchID: uuid.New()}, nil
	}

	for i := range batch {
		if err := batch[i].Validate(); err != nil {
			rangeErr := err.(*ruuvi.OutOfRangeError)
			return nil, &Error{Kind: KindConstraintViolated, Field: rangeErr.Field, cause: err}
		}
	}

	start := time.Now()

	txCtx, cancel := context.WithTimeout(ctx, transactionTimeout)
	defer cancel()

	err := s.pg.Transaction(txCtx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(txCtx, fmt.Sprintf("SET LOCAL statement_timeout = %d", statementTimeout.Milliseconds())); err != nil {
			return err
		}
		_, err := tx.NamedExecContext(txCtx, insertReadingSQL, batch)
		return err
	})
	if err != nil {
		return nil, Classify(err)
	}

	info := &CommitInfo{
		BatchID: uuid.New(),
		Rows:    len(batch),
		Elapsed: time.Since(start),
	}

	s.logger.Debug("Committed batch",
		"batch_id", info.BatchID,
		"rows", info.Rows,
		"elapsed", info.Elapsed)

	return info, nil
}
