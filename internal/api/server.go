// Package api is the read-only query façade over the sensor store. It runs
// as its own process and never writes; the ingester owns the write path.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/viljami/ruuvi-home/internal/cache"
	"github.com/viljami/ruuvi-home/internal/ruuvi"
	"github.com/viljami/ruuvi-home/internal/store"
	"github.com/viljami/ruuvi-home/pkg/config"
)

// defaultHistoryWindow applies when the history query gives no bounds
const defaultHistoryWindow = 24 * time.Hour

// QueryStore is the read surface the handlers need
type QueryStore interface {
	Ping(ctx context.Context) error
	Sensors(ctx context.Context) ([]ruuvi.MAC, error)
	Latest(ctx context.Context, sensor ruuvi.MAC) (*ruuvi.SensorReading, error)
	HistoryRaw(ctx context.Context, sensor ruuvi.MAC, from, to time.Time) ([]ruuvi.SensorReading, error)
	HistoryBucketed(ctx context.Context, sensor ruuvi.MAC, from, to time.Time, bucket time.Duration) ([]store.AggregateRow, error)
}

// Server serves the query API
type Server struct {
	store  QueryStore
	latest *cache.Latest // nil when the cache is disabled
	logger *slog.Logger
	http   *http.Server
}

// NewServer creates the API server. latest may be nil.
func NewServer(cfg *config.Config, queryStore QueryStore, latest *cache.Latest, logger *slog.Logger) *Server {
	s := &Server{
		store:  queryStore,
		latest: latest,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/sensors", s.handleSensors)
	mux.HandleFunc("GET /api/sensors/{mac}/latest", s.handleLatest)
	mux.HandleFunc("GET /api/sensors/{mac}/history", s.handleHistory)

	s.http = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.APIPort),
		Handler: mux,
	}

	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	s.logger.Info("Query API listening", "addr", s.http.Addr)

	select {
	case err := <-errCh:
		return fmt.Errorf("API server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

// Handler exposes the mux for tests
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		http.Error(w, "database unreachable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprint(w, "OK")
}

func (s *Server) handleSensors(w http.ResponseWriter, r *http.Request) {
	sensors, err := s.store.Sensors(r.Context())
	if err != nil {
		s.serverError(w, "failed to list sensors", err)
		return
	}
	if sensors == nil {
		sensors = []ruuvi.MAC{}
	}
	s.writeJSON(w, sensors)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	sensor, ok := s.sensorFromPath(w, r)
	if !ok {
		return
	}

	if s.latest != nil {
		if reading, err := s.latest.Get(r.Context(), sensor); err == nil && reading != nil {
			s.writeJSON(w, reading)
			return
		}
	}

	reading, err := s.store.Latest(r.Context(), sensor)
	if err != nil {
		s.serverError(w, "failed to query latest reading", err)
		return
	}
	if reading == nil {
		http.Error(w, "sensor not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, reading)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sensor, ok := s.sensorFromPath(w, r)
	if !ok {
		return
	}

	to := time.Now().UTC()
	from := to.Add(-defaultHistoryWindow)

	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid from parameter (RFC3339)", http.StatusBadRequest)
			return
		}
		from = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid to parameter (RFC3339)", http.StatusBadRequest)
			return
		}
		to = t
	}
	if !from.Before(to) {
		http.Error(w, "from must be before to", http.StatusBadRequest)
		return
	}

	if v := r.URL.Query().Get("bucket"); v != "" {
		bucket, err := time.ParseDuration(v)
		if err != nil || bucket <= 0 {
			http.Error(w, "invalid bucket parameter (e.g. 1h)", http.StatusBadRequest)
			return
		}
		rows, err := s.store.HistoryBucketed(r.Context(), sensor, from, to, bucket)
		if err != nil {
			s.serverError(w, "failed to query bucketed history", err)
			return
		}
		if rows == nil {
			rows = []store.AggregateRow{}
		}
		s.writeJSON(w, rows)
		return
	}

	readings, err := s.store.HistoryRaw(r.Context(), sensor, from, to)
	if err != nil {
		s.serverError(w, "failed to query history", err)
		return
	}
	if readings == nil {
		readings = []ruuvi.SensorReading{}
	}
	s.writeJSON(w, readings)
}

func (s *Server) sensorFromPath(w http.ResponseWriter, r *http.Request) (ruuvi.MAC, bool) {
	sensor, err := ruuvi.ParseMAC(r.PathValue("mac"))
	if err != nil {
		http.Error(w, "invalid sensor MAC", http.StatusBadRequest)
		return "", false
	}
	return sensor, true
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}

func (s *Server) serverError(w http.ResponseWriter, msg string, err error) {
	s.logger.Error(msg, "error", err)
	http.Error(w, msg, http.StatusInternalServerError)
}
