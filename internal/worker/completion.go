package worker

import (
	"context"
	"encoding/json"
	"time"

	"student-bulk-import/internal/config"
	"student-bulk-import/internal/logger"
	"student-bulk-import/internal/model"
	"student-bulk-import/internal/queue"

	"github.com/rs/zerolog"
)

type EventHandler interface {
	HandleEvent(ctx context.Context, evt model.JobEvent) error
	Run(ctx context.Context, interval time.Duration) error
}

// CompletionWorker feeds terminal job events from this instance's event
// queue into the batch tracker and runs the tracker's deadline sweep.
type CompletionWorker struct {
	cfg        *config.Config
	tracker    EventHandler
	consumer   *queue.Consumer
	eventQueue string
	log        zerolog.Logger
}

func NewCompletionWorker(cfg *config.Config, tracker EventHandler, redisClient *queue.RedisClient, eventQueue string) *CompletionWorker {
	return &CompletionWorker{
		cfg:        cfg,
		tracker:    tracker,
		consumer:   queue.NewConsumer(redisClient, cfg),
		eventQueue: eventQueue,
		log:        logger.For("completion_worker"),
	}
}

func (w *CompletionWorker) Start(ctx context.Context) error {
	w.log.Info().Dur("sweep_interval", w.cfg.Tracker.SweepInterval).Str("event_queue", w.eventQueue).Msg("Starting completion worker")

	go func() {
		if err := w.tracker.Run(ctx, w.cfg.Tracker.SweepInterval); err != nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("Tracker sweep stopped")
		}
	}()

	return w.consumer.ConsumeEventQueue(ctx, w.eventQueue, w.handleMessage)
}

func (w *CompletionWorker) handleMessage(ctx context.Context, data []byte) error {
	var evt model.JobEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		w.log.Error().Err(err).Msg("Failed to unmarshal job event")
		return err
	}

	return w.tracker.HandleEvent(ctx, evt)
}
