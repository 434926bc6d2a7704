package dispatch

import (
	"context"

	"student-bulk-import/internal/excel"
	"student-bulk-import/internal/logger"
	"student-bulk-import/internal/metrics"
	"student-bulk-import/internal/model"
	"student-bulk-import/pkg/errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type JobQueue interface {
	EnqueueStudentJob(ctx context.Context, job model.StudentJob) error
}

// BatchTracker is the part of the completion tracker the dispatcher needs.
type BatchTracker interface {
	Register(batchID, userID string, rows map[int]model.StudentRow) error
	OnFailure(ctx context.Context, batchID string, rowNumber int, row model.StudentRow, message string) error
}

// Dispatcher splits a parsed upload into one queued job per row.
type Dispatcher struct {
	queue   JobQueue
	tracker BatchTracker
	newID   func() string
	log     zerolog.Logger
}

func NewDispatcher(queue JobQueue, tracker BatchTracker) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		tracker: tracker,
		newID:   uuid.NewString,
		log:     logger.For("dispatcher"),
	}
}

// Dispatch registers the batch and enqueues its rows. It returns the batch id
// without waiting for any job to finish.
func (d *Dispatcher) Dispatch(ctx context.Context, rows []excel.ParsedRow, userID string) (string, error) {
	if len(rows) == 0 {
		return "", errors.ErrEmptyBatch
	}

	batchID := d.newID()
	snapshot := make(map[int]model.StudentRow, len(rows))
	for _, r := range rows {
		snapshot[r.Number] = r.Row
	}

	// The tracker has to exist before the first job can possibly complete.
	if err := d.tracker.Register(batchID, userID, snapshot); err != nil {
		return "", err
	}
	metrics.BatchesDispatched.Inc()

	log := d.log.With().Str("batch_id", batchID).Str("user_id", userID).Logger()

	var rejected int
	for _, r := range rows {
		job := model.StudentJob{
			StudentRow: r.Row,
			RowNumber:  r.Number,
			RequestID:  batchID,
			UserID:     userID,
		}
		if err := d.queue.EnqueueStudentJob(ctx, job); err != nil {
			rejected++
			enqueueErr := errors.EnqueueError{Err: err}
			log.Error().Err(err).Int("row_number", r.Number).Msg("Failed to enqueue row")
			if trackErr := d.tracker.OnFailure(ctx, batchID, r.Number, r.Row, enqueueErr.Error()); trackErr != nil {
				log.Error().Err(trackErr).Int("row_number", r.Number).Msg("Failed to record enqueue failure")
			}
		}
	}

	log.Info().Int("rows", len(rows)).Int("rejected", rejected).Msg("Batch dispatched")
	return batchID, nil
}
