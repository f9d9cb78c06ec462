package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/viljami/ruuvi-home/internal/ruuvi"
	"github.com/viljami/ruuvi-home/internal/store"
)

// maxUnknownRetries bounds retries for unclassified store failures before
// the batch is shed
const maxUnknownRetries = 3

// commit persists one batch, retrying transient failures indefinitely and
// bisecting constraint violations down to the offending rows
func (p *Pipeline) commit(ctx context.Context, batch []ruuvi.SensorReading) {
	bo := newBackoff()
	unknownAttempts := 0

	for {
		info, err := p.store.InsertBatch(ctx, batch)
		if err == nil {
			p.metrics.BatchesCommitted.Inc()
			p.metrics.RowsCommitted.Add(float64(len(batch)))
			p.metrics.CommitObserved()
			p.logger.Debug("Batch committed", "batch_id", info.BatchID, "rows", info.Rows, "elapsed", info.Elapsed)
			p.updateLatest(ctx, batch)
			return
		}

		var storeErr *store.Error
		if !errors.As(err, &storeErr) {
			storeErr = store.Classify(err)
		}

		switch {
		case storeErr.Kind == store.KindConstraintViolated:
			p.bisect(ctx, batch, storeErr)
			return

		case storeErr.Transient():
			p.metrics.BatchesRetried.WithLabelValues(string(storeErr.Kind)).Inc()
			p.logger.Warn("Transient store failure, retrying batch",
				"kind", storeErr.Kind, "rows", len(batch), "error", err)
			if !p.sleep(ctx, bo.Next()) {
				p.logger.Warn("Retry abandoned at shutdown", "rows", len(batch))
				return
			}

		default:
			if unknownAttempts >= maxUnknownRetries {
				p.metrics.BatchesRetried.WithLabelValues("shed").Inc()
				p.logger.Error("Shedding batch after repeated unclassified failures",
					"rows", len(batch), "error", err)
				return
			}
			unknownAttempts++
			p.metrics.BatchesRetried.WithLabelValues(string(store.KindUnknown)).Inc()
			if !p.sleep(ctx, bo.Next()) {
				return
			}
		}
	}
}

// bisect isolates the rows a constraint rejected by halving the batch.
// Single offending rows are discarded and counted; every clean half commits
// through the normal retry path.
func (p *Pipeline) bisect(ctx context.Context, batch []ruuvi.SensorReading, cause *store.Error) {
	if len(batch) == 1 {
		p.metrics.RowsRejected.Inc()
		p.logger.Warn("Discarding reading rejected by constraint",
			"sensor", batch[0].SensorMAC,
			"field", cause.Field,
			"observed_at", batch[0].ObservedAt)
		return
	}

	mid := len(batch) / 2
	p.commit(ctx, batch[:mid])
	p.commit(ctx, batch[mid:])
}

// updateLatest mirrors the newest reading per sensor into the cache.
// Cache failures never fail a commit.
func (p *Pipeline) updateLatest(ctx context.Context, batch []ruuvi.SensorReading) {
	if p.latest == nil {
		return
	}

	newest := make(map[ruuvi.MAC]*ruuvi.SensorReading, 4)
	for i := range batch {
		r := &batch[i]
		if cur, ok := newest[r.SensorMAC]; !ok || r.ObservedAt.After(cur.ObservedAt) {
			newest[r.SensorMAC] = r
		}
	}

	for _, r := range newest {
		if err := p.latest.Store(ctx, r); err != nil {
			p.logger.Warn("Failed to update latest-reading cache", "sensor", r.SensorMAC, "error", err)
		}
	}
}

// sleep waits for d or until ctx is cancelled; false means cancelled
func (p *Pipeline) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
