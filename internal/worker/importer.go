package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"student-bulk-import/internal/config"
	"student-bulk-import/internal/db"
	"student-bulk-import/internal/ingest"
	"student-bulk-import/internal/logger"
	"student-bulk-import/internal/metrics"
	"student-bulk-import/internal/model"
	"student-bulk-import/internal/queue"
	"student-bulk-import/pkg/errors"

	"github.com/rs/zerolog"
)

type RowProcessor interface {
	Process(ctx context.Context, job model.StudentJob) (ingest.UpsertResult, error)
}

type EventPublisher interface {
	PublishJobEvent(ctx context.Context, replyTo string, evt model.JobEvent) error
}

type DeadLetterer interface {
	DeadLetter(ctx context.Context, queueName string, message []byte) error
}

// ImportWorker pulls row jobs off the student queue, runs each through the
// ingest pipeline and reports exactly one terminal event per job.
type ImportWorker struct {
	cfg        *config.Config
	processor  RowProcessor
	events     EventPublisher
	dlq        DeadLetterer
	consumer   *queue.Consumer
	workerPool *WorkerPool
	sleep      func(ctx context.Context, d time.Duration) error
	log        zerolog.Logger

	// Jobs run on poolCtx, which outlives the consumer's context so that
	// Stop can drain rows already taken off the queue.
	poolCtx    context.Context
	poolCancel context.CancelFunc
}

func NewImportWorker(cfg *config.Config, repo db.Repository, redisClient *queue.RedisClient) *ImportWorker {
	consumer := queue.NewConsumer(redisClient, cfg)
	w := newImportWorker(cfg, ingest.NewPipeline(repo), queue.NewProducer(redisClient, cfg), consumer)
	w.consumer = consumer
	return w
}

func newImportWorker(cfg *config.Config, processor RowProcessor, events EventPublisher, dlq DeadLetterer) *ImportWorker {
	poolCtx, poolCancel := context.WithCancel(context.Background())
	return &ImportWorker{
		cfg:        cfg,
		processor:  processor,
		events:     events,
		dlq:        dlq,
		workerPool: NewWorkerPool(cfg.Workers.Import.Count),
		sleep:      sleepCtx,
		log:        logger.For("import_worker"),
		poolCtx:    poolCtx,
		poolCancel: poolCancel,
	}
}

// Start consumes the student queue until ctx is cancelled. Call Stop only
// after Start has returned.
func (w *ImportWorker) Start(ctx context.Context) error {
	w.log.Info().Int("workers", w.cfg.Workers.Import.Count).Msg("Starting import worker")

	w.workerPool.Start(w.poolCtx)

	return w.consumer.ConsumeStudentQueue(ctx, w.handleMessage)
}

func (w *ImportWorker) Stop() {
	w.log.Info().Msg("Stopping import worker")
	w.workerPool.Stop()
	w.poolCancel()
}

func (w *ImportWorker) handleMessage(ctx context.Context, data []byte) error {
	var job model.StudentJob
	if err := json.Unmarshal(data, &job); err != nil {
		w.log.Error().Err(err).Msg("Failed to unmarshal student job")
		return err
	}

	return w.workerPool.Submit(ctx, func(ctx context.Context) error {
		return w.processJob(ctx, job)
	})
}

// processJob retries transient failures up to RetryAttempts times. Validation
// and conflict errors are terminal on the first attempt.
func (w *ImportWorker) processJob(ctx context.Context, job model.StudentJob) error {
	log := w.log.With().
		Str("batch_id", job.RequestID).
		Int("row_number", job.RowNumber).
		Logger()

	maxAttempts := w.cfg.Workers.Import.RetryAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var err error
	attempts := 0
	for attempts < maxAttempts {
		attempts++
		_, err = w.processor.Process(ctx, job)
		if err == nil || errors.IsTerminal(err) {
			break
		}
		if attempts == maxAttempts {
			err = errors.NewRetryableError(err, fmt.Sprintf("gave up after %d attempts", attempts))
			break
		}

		log.Warn().Err(err).Int("attempt", attempts).Msg("Row processing failed, retrying")
		if sleepErr := w.sleep(ctx, w.cfg.Workers.Import.RetryDelay*time.Duration(attempts)); sleepErr != nil {
			err = sleepErr
			break
		}
	}
	metrics.RowAttempts.Observe(float64(attempts))

	evt := model.JobEvent{
		RequestID:  job.RequestID,
		UserID:     job.UserID,
		RowNumber:  job.RowNumber,
		Status:     model.JobStatusCompleted,
		Row:        job.StudentRow,
		FinishedAt: time.Now(),
	}
	if err != nil {
		evt.Status = model.JobStatusFailed
		evt.Error = err.Error()
		log.Info().Err(err).Int("attempts", attempts).Msg("Row failed")
		w.deadLetter(ctx, job)
	}

	if pubErr := w.events.PublishJobEvent(ctx, job.ReplyTo, evt); pubErr != nil {
		log.Error().Err(pubErr).Msg("Failed to publish job event")
		return pubErr
	}
	return nil
}

func (w *ImportWorker) deadLetter(ctx context.Context, job model.StudentJob) {
	data, err := json.Marshal(job)
	if err != nil {
		return
	}
	if err := w.dlq.DeadLetter(ctx, w.cfg.Redis.StudentQueue, data); err != nil {
		w.log.Error().Err(err).Str("batch_id", job.RequestID).Msg("Failed to dead-letter job")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
