package history

import (
	"context"
	"sync"
	"time"

	"github.com/usagedeck/usagedeck/internal/logging"
	"github.com/usagedeck/usagedeck/internal/metrics"
	"github.com/usagedeck/usagedeck/internal/models"
)

// Recorder is the write-behind snapshot path. Aggregation hands it a
// report and returns immediately; a single worker goroutine owns the
// batch insert and the follow-up retention prune. Storage failures are
// logged and swallowed so they can never surface as aggregation failures.
type Recorder struct {
	store     *Store
	retention time.Duration
	logger    *logging.Logger
	metrics   *metrics.Metrics

	queue    chan []models.UsageSnapshot
	done     chan struct{}
	stopOnce sync.Once

	mu     sync.Mutex
	closed bool
}

// NewRecorder creates a Recorder and starts its worker. metrics may be
// nil.
func NewRecorder(store *Store, retention time.Duration, queueSize int, logger *logging.Logger, m *metrics.Metrics) *Recorder {
	if queueSize <= 0 {
		queueSize = 16
	}
	r := &Recorder{
		store:     store,
		retention: retention,
		logger:    logger,
		metrics:   m,
		queue:     make(chan []models.UsageSnapshot, queueSize),
		done:      make(chan struct{}),
	}
	go r.run()
	return r
}

// Record extracts snapshot rows from the report and enqueues them. It
// never blocks; when the queue is full the batch is dropped with a
// warning, matching the fire-and-forget contract. An aggregation that
// finishes after Close, which can happen when server shutdown times out
// with a request in flight, drops its batch the same way.
func (r *Recorder) Record(report *models.UsageReport) {
	snapshots := SnapshotsFromReport(report, time.Now().UTC())
	if len(snapshots) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.logger.Warn("recorder closed, dropping batch", "batch_size", len(snapshots))
		r.recordWrite("dropped")
		return
	}

	select {
	case r.queue <- snapshots:
	default:
		r.logger.Warn("snapshot queue full, dropping batch", "batch_size", len(snapshots))
		r.recordWrite("dropped")
	}
}

// Close stops the worker after draining queued batches.
func (r *Recorder) Close() {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.queue)
		r.mu.Unlock()
		<-r.done
	})
}

func (r *Recorder) run() {
	defer close(r.done)

	for batch := range r.queue {
		r.writeBatch(batch)
	}
}

func (r *Recorder) writeBatch(batch []models.UsageSnapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := r.store.InsertBatch(ctx, batch); err != nil {
		r.logger.Error("snapshot batch insert failed", "error", err.Error(), "batch_size", len(batch))
		r.recordWrite("error")
		return
	}
	r.recordWrite("ok")

	pruned, err := r.store.Prune(ctx, time.Now().UTC().Add(-r.retention))
	if err != nil {
		r.logger.Error("snapshot prune failed", "error", err.Error())
		return
	}
	if r.metrics != nil {
		r.metrics.RecordSnapshotsPruned(pruned)
	}
	if pruned > 0 {
		r.logger.Debug("snapshots pruned", "rows", pruned)
	}
}

func (r *Recorder) recordWrite(outcome string) {
	if r.metrics != nil {
		r.metrics.RecordSnapshotWrite(outcome)
	}
}

// SnapshotsFromReport builds one snapshot row per active Claude-family
// account per window metric, all stamped with the same timestamp.
// Accounts in error state are skipped; a failed fetch has no utilization
// worth sampling.
func SnapshotsFromReport(report *models.UsageReport, now time.Time) []models.UsageSnapshot {
	if report == nil {
		return nil
	}

	metricsList := models.SnapshotMetrics()
	snapshots := make([]models.UsageSnapshot, 0, len(report.Accounts)*len(metricsList))
	for i := range report.Accounts {
		acc := &report.Accounts[i]
		if acc.Status != models.StatusActive {
			continue
		}
		account := acc.Email
		if account == "" {
			account = acc.Name
		}
		if account == "" {
			continue
		}
		for _, metric := range metricsList {
			snapshots = append(snapshots, models.UsageSnapshot{
				Account:     account,
				Metric:      metric,
				Utilization: acc.Window(metric).Utilization,
				Timestamp:   now,
			})
		}
	}

	return snapshots
}
