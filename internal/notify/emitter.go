package notify

import (
	"context"
	"fmt"
	"time"

	"student-bulk-import/internal/db"
	"student-bulk-import/internal/logger"
	"student-bulk-import/internal/model"

	"github.com/rs/zerolog"
)

// Publisher delivers a push event to a single user's channel.
type Publisher interface {
	Publish(ctx context.Context, userID string, event model.PushEvent) error
}

// Emitter turns a closed batch into one persisted notification and one push
// event.
type Emitter struct {
	repo       db.NotificationRepository
	publisher  Publisher
	retryDelay time.Duration
	now        func() time.Time
	log        zerolog.Logger
}

func NewEmitter(repo db.NotificationRepository, publisher Publisher) *Emitter {
	return &Emitter{
		repo:       repo,
		publisher:  publisher,
		retryDelay: 200 * time.Millisecond,
		now:        time.Now,
		log:        logger.For("notify"),
	}
}

func Title(failed int) string {
	if failed == 0 {
		return model.NotificationTitleSuccess
	}
	return model.NotificationTitleErrors
}

func Message(succeeded, failed int) string {
	return fmt.Sprintf("Processing completed: %d succeeded, %d failed.", succeeded, failed)
}

// Emit persists first and pushes second. A persistence failure is retried
// once and then logged; the push is attempted regardless.
func (e *Emitter) Emit(ctx context.Context, summary model.BatchSummary) error {
	failures := summary.Failures
	if failures == nil {
		failures = []model.FailureDocument{}
	}
	failed := len(failures)

	log := e.log.With().
		Str("batch_id", summary.BatchID).
		Str("user_id", summary.UserID).
		Logger()

	notification := &model.Notification{
		UserID:           summary.UserID,
		Title:            Title(failed),
		Message:          Message(summary.Succeeded, failed),
		FailureDocuments: failures,
		CreatedAt:        e.now(),
	}
	if err := e.persist(ctx, notification); err != nil {
		log.Error().Err(err).Msg("Giving up on persisting notification")
	}

	event := model.PushEvent{
		Event: model.UploadCompleteEvent,
		Data: model.UploadCompletePayload{
			SuccessCount: summary.Succeeded,
			ErrorCount:   failed,
			ErrorRows:    failures,
		},
	}
	if err := e.publisher.Publish(ctx, summary.UserID, event); err != nil {
		log.Warn().Err(err).Msg("Failed to publish push event")
		return fmt.Errorf("failed to publish push event: %w", err)
	}

	log.Info().
		Int("succeeded", summary.Succeeded).
		Int("failed", failed).
		Msg("Batch notification emitted")
	return nil
}

func (e *Emitter) persist(ctx context.Context, n *model.Notification) error {
	err := e.repo.CreateNotification(ctx, n)
	if err == nil {
		return nil
	}
	e.log.Warn().Err(err).Str("user_id", n.UserID).Msg("Failed to persist notification, retrying once")

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(e.retryDelay):
	}
	return e.repo.CreateNotification(ctx, n)
}
