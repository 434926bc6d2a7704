package worker

import (
	"context"
	stderrors "errors"
	"sync"

	"student-bulk-import/internal/logger"

	"github.com/rs/zerolog"
)

var ErrPoolStopped = stderrors.New("worker pool stopped")

type WorkerPool struct {
	workerCount int
	jobChan     chan func(context.Context) error
	wg          sync.WaitGroup
	log         zerolog.Logger

	// mu is held for reading by in-flight Submits so that Stop never closes
	// jobChan under a pending send.
	mu       sync.RWMutex
	stopped  bool
	quit     chan struct{}
	stopOnce sync.Once
}

func NewWorkerPool(workerCount int) *WorkerPool {
	return &WorkerPool{
		workerCount: workerCount,
		jobChan:     make(chan func(context.Context) error, workerCount*2),
		log:         logger.For("worker_pool"),
		quit:        make(chan struct{}),
	}
}

func (wp *WorkerPool) Start(ctx context.Context) {
	wp.log.Info().Int("worker_count", wp.workerCount).Msg("Starting worker pool")

	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

// Stop rejects further submissions, lets the workers drain whatever is
// already buffered and waits for them to exit. It is safe to call twice.
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		wp.log.Info().Msg("Stopping worker pool")
		close(wp.quit)

		wp.mu.Lock()
		wp.stopped = true
		close(wp.jobChan)
		wp.mu.Unlock()

		wp.wg.Wait()
		wp.log.Info().Msg("Worker pool stopped")
	})
}

// Submit hands job to the next free worker. It blocks while the buffer is
// full so that a burst of rows is throttled instead of dropped, and returns
// ErrPoolStopped once Stop has begun.
func (wp *WorkerPool) Submit(ctx context.Context, job func(context.Context) error) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if wp.stopped {
		return ErrPoolStopped
	}

	select {
	case wp.jobChan <- job:
		return nil
	case <-wp.quit:
		return ErrPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()

	log := wp.log.With().Int("worker_id", id).Logger()
	log.Debug().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("Worker stopping due to context cancellation")
			return
		case job, ok := <-wp.jobChan:
			if !ok {
				log.Debug().Msg("Worker stopping due to closed job channel")
				return
			}

			if err := job(ctx); err != nil {
				log.Error().Err(err).Msg("Job execution failed")
			}
		}
	}
}
