package worker

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"student-bulk-import/internal/config"
	"student-bulk-import/internal/db"
	"student-bulk-import/internal/ingest"
	"student-bulk-import/internal/logger"
	"student-bulk-import/internal/model"
	"student-bulk-import/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedProcessor struct {
	errs  []error
	calls int
}

func (p *scriptedProcessor) Process(ctx context.Context, job model.StudentJob) (ingest.UpsertResult, error) {
	i := p.calls
	p.calls++
	if i < len(p.errs) {
		return "", p.errs[i]
	}
	return ingest.UpsertCreated, nil
}

type recordingEvents struct {
	mu      sync.Mutex
	events  []model.JobEvent
	replies []string
}

func (r *recordingEvents) PublishJobEvent(ctx context.Context, replyTo string, evt model.JobEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	r.replies = append(r.replies, replyTo)
	return nil
}

type recordingDLQ struct {
	queues   []string
	messages [][]byte
}

func (d *recordingDLQ) DeadLetter(ctx context.Context, queueName string, message []byte) error {
	d.queues = append(d.queues, queueName)
	d.messages = append(d.messages, message)
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte("workers:\n  import:\n    count: 2\n    retry_attempts: 3\n"))
	require.NoError(t, err)
	return cfg
}

func newTestImportWorker(t *testing.T, processor RowProcessor) (*ImportWorker, *recordingEvents, *recordingDLQ, *[]time.Duration) {
	events := &recordingEvents{}
	dlq := &recordingDLQ{}
	w := newImportWorker(testConfig(t), processor, events, dlq)
	var sleeps []time.Duration
	w.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return w, events, dlq, &sleeps
}

func testJob() model.StudentJob {
	return model.StudentJob{
		StudentRow: model.StudentRow{Name: "ALICE", RollNo: "A1"},
		RowNumber:  2,
		RequestID:  "batch-1",
		UserID:     "user-1",
	}
}

func TestImportWorker_SuccessPublishesCompleted(t *testing.T) {
	w, events, dlq, _ := newTestImportWorker(t, &scriptedProcessor{})

	require.NoError(t, w.processJob(context.Background(), testJob()))

	require.Len(t, events.events, 1)
	evt := events.events[0]
	assert.Equal(t, model.JobStatusCompleted, evt.Status)
	assert.Equal(t, "batch-1", evt.RequestID)
	assert.Equal(t, 2, evt.RowNumber)
	assert.Empty(t, evt.Error)
	assert.Empty(t, dlq.messages)
}

func TestImportWorker_RepliesToOwningInstance(t *testing.T) {
	w, events, _, _ := newTestImportWorker(t, &scriptedProcessor{})

	job := testJob()
	job.ReplyTo = "studentQueue:events:api-2"
	require.NoError(t, w.processJob(context.Background(), job))

	assert.Equal(t, []string{"studentQueue:events:api-2"}, events.replies)
}

func TestImportWorker_TerminalErrorIsNotRetried(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "validation", err: errors.ValidationError{Fields: []string{"department"}}},
		{name: "conflict", err: errors.ConflictError{Field: "rollNo", Value: "A1", ExistingField: "leetcodeUsername", ExistingValue: "u1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			processor := &scriptedProcessor{errs: []error{tt.err}}
			w, events, dlq, sleeps := newTestImportWorker(t, processor)

			require.NoError(t, w.processJob(context.Background(), testJob()))

			assert.Equal(t, 1, processor.calls)
			assert.Empty(t, *sleeps)
			require.Len(t, events.events, 1)
			assert.Equal(t, model.JobStatusFailed, events.events[0].Status)
			assert.Equal(t, tt.err.Error(), events.events[0].Error)
			assert.Equal(t, testJob().StudentRow, events.events[0].Row)
			require.Len(t, dlq.messages, 1)
			assert.Equal(t, "studentQueue", dlq.queues[0])
		})
	}
}

func TestImportWorker_TransientErrorIsRetried(t *testing.T) {
	processor := &scriptedProcessor{errs: []error{stderrors.New("deadlock"), stderrors.New("deadlock")}}
	w, events, dlq, sleeps := newTestImportWorker(t, processor)

	require.NoError(t, w.processJob(context.Background(), testJob()))

	assert.Equal(t, 3, processor.calls)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, *sleeps)
	require.Len(t, events.events, 1)
	assert.Equal(t, model.JobStatusCompleted, events.events[0].Status)
	assert.Empty(t, dlq.messages)
}

func TestImportWorker_RetriesExhausted(t *testing.T) {
	boom := stderrors.New("connection refused")
	processor := &scriptedProcessor{errs: []error{boom, boom, boom, boom}}
	w, events, dlq, _ := newTestImportWorker(t, processor)

	require.NoError(t, w.processJob(context.Background(), testJob()))

	assert.Equal(t, 3, processor.calls)
	require.Len(t, events.events, 1)
	assert.Equal(t, model.JobStatusFailed, events.events[0].Status)
	assert.Equal(t, "retryable error: gave up after 3 attempts - connection refused", events.events[0].Error)

	require.Len(t, dlq.messages, 1)
	var job model.StudentJob
	require.NoError(t, json.Unmarshal(dlq.messages[0], &job))
	assert.Equal(t, testJob(), job)
}

func TestImportWorker_RunsPipelineAgainstRepository(t *testing.T) {
	repo := db.NewMemoryRepository()
	w, events, _, _ := newTestImportWorker(t, ingest.NewPipeline(repo))

	job := testJob()
	job.StudentRow = model.StudentRow{
		Name:             "alice",
		RollNo:           "a1",
		Department:       "cse",
		LeetcodeUsername: "https://leetcode.com/u/alice/",
		GfgUsername:      "alice_gfg",
		CodechefUsername: "alice_cc",
		Year:             "2025",
		BatchName:        "2025-a",
	}
	require.NoError(t, w.processJob(context.Background(), job))

	require.Len(t, events.events, 1)
	assert.Equal(t, model.JobStatusCompleted, events.events[0].Status)
	assert.Equal(t, 1, repo.StudentCount())
}

func TestWorkerPool_RunsSubmittedJobs(t *testing.T) {
	pool := NewWorkerPool(3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	var ran int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		require.NoError(t, pool.Submit(ctx, func(ctx context.Context) error {
			defer wg.Done()
			atomic.AddInt32(&ran, 1)
			return nil
		}))
	}
	wg.Wait()
	pool.Stop()

	assert.Equal(t, int32(20), atomic.LoadInt32(&ran))
}

func TestWorkerPool_SubmitHonoursContext(t *testing.T) {
	pool := NewWorkerPool(1)
	// No workers started, so the buffer fills up.
	for i := 0; i < 2; i++ {
		require.NoError(t, pool.Submit(context.Background(), func(ctx context.Context) error { return nil }))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := pool.Submit(ctx, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWorkerPool_SubmitConcurrentWithStop(t *testing.T) {
	pool := NewWorkerPool(1)
	// No workers, so two submissions fill the buffer and the rest block.
	const submitters = 10
	results := make(chan error, submitters)
	for i := 0; i < submitters; i++ {
		go func() {
			results <- pool.Submit(context.Background(), func(ctx context.Context) error { return nil })
		}()
	}
	require.Eventually(t, func() bool { return len(pool.jobChan) == cap(pool.jobChan) }, time.Second, 5*time.Millisecond)

	pool.Stop()

	accepted, rejected := 0, 0
	for i := 0; i < submitters; i++ {
		err := <-results
		if err == nil {
			accepted++
			continue
		}
		assert.ErrorIs(t, err, ErrPoolStopped)
		rejected++
	}
	assert.Equal(t, 2, accepted)
	assert.Equal(t, submitters-2, rejected)

	assert.ErrorIs(t, pool.Submit(context.Background(), func(ctx context.Context) error { return nil }), ErrPoolStopped)
	pool.Stop()
}

func TestWorkerPool_StopDrainsBufferedJobs(t *testing.T) {
	pool := NewWorkerPool(1)
	pool.Start(context.Background())

	gate := make(chan struct{})
	var ran int32
	job := func(ctx context.Context) error {
		<-gate
		atomic.AddInt32(&ran, 1)
		return nil
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, pool.Submit(context.Background(), job))
	}

	stopped := make(chan struct{})
	go func() {
		pool.Stop()
		close(stopped)
	}()
	close(gate)

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not stop")
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&ran))
}

type acceptingProcessor struct{}

func (acceptingProcessor) Process(ctx context.Context, job model.StudentJob) (ingest.UpsertResult, error) {
	return ingest.UpsertCreated, nil
}

func TestImportWorker_StopReportsEveryAcceptedJob(t *testing.T) {
	w, events, _, _ := newTestImportWorker(t, acceptingProcessor{})
	w.workerPool.Start(w.poolCtx)

	for row := 2; row < 8; row++ {
		job := testJob()
		job.RowNumber = row
		data, err := json.Marshal(job)
		require.NoError(t, err)
		require.NoError(t, w.handleMessage(context.Background(), data))
	}

	w.Stop()

	events.mu.Lock()
	defer events.mu.Unlock()
	assert.Len(t, events.events, 6)
	assert.Error(t, w.poolCtx.Err())
}

type recordingHandler struct {
	events []model.JobEvent
}

func (h *recordingHandler) HandleEvent(ctx context.Context, evt model.JobEvent) error {
	h.events = append(h.events, evt)
	return nil
}

func (h *recordingHandler) Run(ctx context.Context, interval time.Duration) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestCompletionWorker_HandleMessage(t *testing.T) {
	handler := &recordingHandler{}
	w := &CompletionWorker{cfg: testConfig(t), tracker: handler, log: logger.For("test")}

	data, err := json.Marshal(model.JobEvent{RequestID: "b", RowNumber: 4, Status: model.JobStatusFailed, Error: "x"})
	require.NoError(t, err)
	require.NoError(t, w.handleMessage(context.Background(), data))

	require.Len(t, handler.events, 1)
	assert.Equal(t, 4, handler.events[0].RowNumber)
	assert.Equal(t, model.JobStatusFailed, handler.events[0].Status)

	assert.Error(t, w.handleMessage(context.Background(), []byte("not json")))
}
