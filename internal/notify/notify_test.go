package notify

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"student-bulk-import/internal/db"
	"student-bulk-import/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events map[string][]model.PushEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, userID string, event model.PushEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.events == nil {
		p.events = make(map[string][]model.PushEvent)
	}
	p.events[userID] = append(p.events[userID], event)
	return p.err
}

// flakyRepo fails the first failN CreateNotification calls.
type flakyRepo struct {
	*db.MemoryRepository
	failN int
	calls int
}

func (f *flakyRepo) CreateNotification(ctx context.Context, n *model.Notification) error {
	f.calls++
	if f.calls <= f.failN {
		return stderrors.New("connection reset")
	}
	return f.MemoryRepository.CreateNotification(ctx, n)
}

func newTestEmitter(repo db.NotificationRepository, pub Publisher) *Emitter {
	e := NewEmitter(repo, pub)
	e.retryDelay = time.Millisecond
	return e
}

func TestEmitter_AllSucceeded(t *testing.T) {
	repo := db.NewMemoryRepository()
	pub := &recordingPublisher{}
	e := newTestEmitter(repo, pub)

	err := e.Emit(context.Background(), model.BatchSummary{BatchID: "b1", UserID: "u1", Total: 3, Succeeded: 3})
	require.NoError(t, err)

	stored, err := repo.ListNotifications(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, model.NotificationTitleSuccess, stored[0].Title)
	assert.Equal(t, "Processing completed: 3 succeeded, 0 failed.", stored[0].Message)
	assert.False(t, stored[0].Viewed)
	assert.Empty(t, stored[0].FailureDocuments)

	require.Len(t, pub.events["u1"], 1)
	evt := pub.events["u1"][0]
	assert.Equal(t, model.UploadCompleteEvent, evt.Event)
	assert.Equal(t, 3, evt.Data.SuccessCount)
	assert.Equal(t, 0, evt.Data.ErrorCount)
	assert.NotNil(t, evt.Data.ErrorRows)
}

func TestEmitter_WithFailures(t *testing.T) {
	repo := db.NewMemoryRepository()
	pub := &recordingPublisher{}
	e := newTestEmitter(repo, pub)

	failures := []model.FailureDocument{
		{Row: model.StudentRow{Name: "BOB", RollNo: "R2"}, Error: "missing required fields: department"},
	}
	err := e.Emit(context.Background(), model.BatchSummary{UserID: "u1", Total: 2, Succeeded: 1, Failures: failures})
	require.NoError(t, err)

	stored, err := repo.ListNotifications(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, model.NotificationTitleErrors, stored[0].Title)
	assert.Equal(t, failures, stored[0].FailureDocuments)

	evt := pub.events["u1"][0]
	assert.Equal(t, 1, evt.Data.ErrorCount)
	assert.Equal(t, failures, evt.Data.ErrorRows)
}

func TestEmitter_RetriesPersistenceOnce(t *testing.T) {
	repo := &flakyRepo{MemoryRepository: db.NewMemoryRepository(), failN: 1}
	pub := &recordingPublisher{}
	e := newTestEmitter(repo, pub)

	require.NoError(t, e.Emit(context.Background(), model.BatchSummary{UserID: "u1", Succeeded: 1, Total: 1}))

	assert.Equal(t, 2, repo.calls)
	stored, _ := repo.ListNotifications(context.Background(), "u1")
	assert.Len(t, stored, 1)
}

func TestEmitter_PushesEvenWhenPersistenceFails(t *testing.T) {
	repo := &flakyRepo{MemoryRepository: db.NewMemoryRepository(), failN: 5}
	pub := &recordingPublisher{}
	e := newTestEmitter(repo, pub)

	require.NoError(t, e.Emit(context.Background(), model.BatchSummary{UserID: "u1", Succeeded: 1, Total: 1}))

	assert.Equal(t, 2, repo.calls)
	assert.Len(t, pub.events["u1"], 1)
	stored, _ := repo.ListNotifications(context.Background(), "u1")
	assert.Empty(t, stored)
}

func TestEmitter_ReturnsPublishError(t *testing.T) {
	repo := db.NewMemoryRepository()
	pub := &recordingPublisher{err: stderrors.New("redis down")}
	e := newTestEmitter(repo, pub)

	err := e.Emit(context.Background(), model.BatchSummary{UserID: "u1", Succeeded: 1, Total: 1})
	assert.Error(t, err)

	stored, _ := repo.ListNotifications(context.Background(), "u1")
	assert.Len(t, stored, 1)
}

func TestRedisPublisher_DeliversToUserChannel(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	pub := NewRedisPublisher(client, "notifications:")
	assert.Equal(t, "notifications:u1", pub.Channel("u1"))

	sub := pub.Subscribe(ctx, "u1")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	event := model.PushEvent{
		Event: model.UploadCompleteEvent,
		Data:  model.UploadCompletePayload{SuccessCount: 2, ErrorCount: 1, ErrorRows: []model.FailureDocument{{Error: "x"}}},
	}
	require.NoError(t, pub.Publish(ctx, "u1", event))

	select {
	case msg := <-sub.Channel():
		var got model.PushEvent
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, event, got)
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}
