package tracker

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"student-bulk-import/internal/logger"
	"student-bulk-import/internal/metrics"
	"student-bulk-import/internal/model"
	"student-bulk-import/pkg/errors"

	"github.com/rs/zerolog"
)

// Emitter receives the summary of every batch exactly once, when it closes.
type Emitter interface {
	Emit(ctx context.Context, summary model.BatchSummary) error
}

// Tracker counts terminal row events per batch and hands the aggregate to
// the emitter once succeeded+failed reaches the batch total.
type Tracker struct {
	store   Store
	emitter Emitter
	timeout time.Duration
	now     func() time.Time
	log     zerolog.Logger
}

func New(store Store, emitter Emitter, timeout time.Duration) *Tracker {
	return &Tracker{
		store:   store,
		emitter: emitter,
		timeout: timeout,
		now:     time.Now,
		log:     logger.For("tracker"),
	}
}

// Register opens a batch. It must run before any of the batch's jobs can
// complete.
func (t *Tracker) Register(batchID, userID string, rows map[int]model.StudentRow) error {
	now := t.now()
	batch := Batch{
		ID:        batchID,
		UserID:    userID,
		Rows:      rows,
		StartedAt: now,
	}
	if t.timeout > 0 {
		batch.Deadline = now.Add(t.timeout)
	}

	if err := t.store.Create(batch); err != nil {
		return err
	}

	metrics.OpenBatches.Inc()
	t.log.Info().
		Str("batch_id", batchID).
		Str("user_id", userID).
		Int("total", len(rows)).
		Msg("Batch registered")
	return nil
}

func (t *Tracker) OnSuccess(ctx context.Context, batchID string, rowNumber int) error {
	summary, err := t.store.RecordSuccess(batchID, rowNumber)
	return t.settle(ctx, batchID, rowNumber, summary, err)
}

func (t *Tracker) OnFailure(ctx context.Context, batchID string, rowNumber int, row model.StudentRow, message string) error {
	summary, err := t.store.RecordFailure(batchID, rowNumber, model.FailureDocument{Row: row, Error: message})
	return t.settle(ctx, batchID, rowNumber, summary, err)
}

// HandleEvent applies a worker's terminal event.
func (t *Tracker) HandleEvent(ctx context.Context, evt model.JobEvent) error {
	switch evt.Status {
	case model.JobStatusCompleted:
		metrics.RowsProcessed.WithLabelValues(string(model.JobStatusCompleted)).Inc()
		return t.OnSuccess(ctx, evt.RequestID, evt.RowNumber)
	case model.JobStatusFailed:
		metrics.RowsProcessed.WithLabelValues(string(model.JobStatusFailed)).Inc()
		return t.OnFailure(ctx, evt.RequestID, evt.RowNumber, evt.Row, evt.Error)
	default:
		return fmt.Errorf("unknown job status %q", evt.Status)
	}
}

func (t *Tracker) settle(ctx context.Context, batchID string, rowNumber int, summary *model.BatchSummary, err error) error {
	if err != nil {
		if stderrors.Is(err, errors.ErrTrackerNotFound) {
			// Late or duplicate event for a closed or unknown batch.
			t.log.Debug().Str("batch_id", batchID).Int("row_number", rowNumber).Msg("Ignoring event for untracked batch")
			return nil
		}
		return err
	}
	if summary != nil {
		t.close(ctx, *summary)
	}
	return nil
}

func (t *Tracker) close(ctx context.Context, summary model.BatchSummary) {
	metrics.OpenBatches.Dec()
	switch {
	case summary.TimedOut:
		metrics.BatchesClosed.WithLabelValues(metrics.OutcomeTimeout).Inc()
	case len(summary.Failures) > 0:
		metrics.BatchesClosed.WithLabelValues(metrics.OutcomeErrors).Inc()
	default:
		metrics.BatchesClosed.WithLabelValues(metrics.OutcomeSuccess).Inc()
	}

	t.log.Info().
		Str("batch_id", summary.BatchID).
		Str("user_id", summary.UserID).
		Int("succeeded", summary.Succeeded).
		Int("failed", len(summary.Failures)).
		Bool("timed_out", summary.TimedOut).
		Msg("Batch closed")

	if err := t.emitter.Emit(ctx, summary); err != nil {
		t.log.Error().Err(err).Str("batch_id", summary.BatchID).Msg("Failed to emit batch notification")
	}
}

// Sweep force-closes batches past their deadline and returns how many it closed.
func (t *Tracker) Sweep(ctx context.Context) int {
	expired := t.store.Expire(t.now())
	for _, summary := range expired {
		t.log.Warn().Str("batch_id", summary.BatchID).Msg("Batch deadline passed, closing with pending rows as failures")
		t.close(ctx, summary)
	}
	return len(expired)
}

// Run sweeps expired batches every interval until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.Sweep(ctx)
		}
	}
}

func (t *Tracker) Progress(batchID string) (model.ImportProgress, error) {
	return t.store.Progress(batchID)
}

func (t *Tracker) OpenBatches() int {
	return t.store.Len()
}
