package tracker

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"student-bulk-import/internal/model"
	"student-bulk-import/pkg/errors"
)

// Batch is what the dispatcher registers before the first job is enqueued.
type Batch struct {
	ID        string
	UserID    string
	Rows      map[int]model.StudentRow // keyed by sheet row number
	StartedAt time.Time
	Deadline  time.Time
}

// Store holds the open batches. Record* return a non-nil summary to exactly
// one caller: the one whose event closed the batch. The batch is removed
// from the store in the same step.
type Store interface {
	Create(batch Batch) error
	RecordSuccess(batchID string, rowNumber int) (*model.BatchSummary, error)
	RecordFailure(batchID string, rowNumber int, doc model.FailureDocument) (*model.BatchSummary, error)
	Progress(batchID string) (model.ImportProgress, error)
	Expire(now time.Time) []model.BatchSummary
	Len() int
}

type entry struct {
	batch     Batch
	succeeded int
	failures  []model.FailureDocument
	reported  map[int]struct{}
}

func (e *entry) done() bool {
	return e.succeeded+len(e.failures) == len(e.batch.Rows)
}

func (e *entry) summary() *model.BatchSummary {
	return &model.BatchSummary{
		BatchID:   e.batch.ID,
		UserID:    e.batch.UserID,
		Total:     len(e.batch.Rows),
		Succeeded: e.succeeded,
		Failures:  e.failures,
	}
}

// MemoryStore keeps batches in a map guarded by one mutex. Every mutation is
// a short map update, so a single lock is cheaper than per-batch locks.
type MemoryStore struct {
	mu      sync.Mutex
	batches map[string]*entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{batches: make(map[string]*entry)}
}

func (s *MemoryStore) Create(batch Batch) error {
	if len(batch.Rows) == 0 {
		return errors.ErrEmptyBatch
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.batches[batch.ID]; exists {
		return fmt.Errorf("%w: %s", errors.ErrTrackerExists, batch.ID)
	}
	s.batches[batch.ID] = &entry{
		batch:    batch,
		reported: make(map[int]struct{}, len(batch.Rows)),
	}
	return nil
}

func (s *MemoryStore) record(batchID string, rowNumber int, apply func(e *entry)) (*model.BatchSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.batches[batchID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrTrackerNotFound, batchID)
	}
	if _, known := e.batch.Rows[rowNumber]; !known {
		return nil, fmt.Errorf("row %d is not part of batch %s", rowNumber, batchID)
	}
	// A redelivered terminal event must not be counted twice.
	if _, seen := e.reported[rowNumber]; seen {
		return nil, nil
	}

	e.reported[rowNumber] = struct{}{}
	apply(e)

	if !e.done() {
		return nil, nil
	}
	delete(s.batches, batchID)
	return e.summary(), nil
}

func (s *MemoryStore) RecordSuccess(batchID string, rowNumber int) (*model.BatchSummary, error) {
	return s.record(batchID, rowNumber, func(e *entry) {
		e.succeeded++
	})
}

func (s *MemoryStore) RecordFailure(batchID string, rowNumber int, doc model.FailureDocument) (*model.BatchSummary, error) {
	return s.record(batchID, rowNumber, func(e *entry) {
		e.failures = append(e.failures, doc)
	})
}

func (s *MemoryStore) Progress(batchID string) (model.ImportProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.batches[batchID]
	if !ok {
		return model.ImportProgress{}, fmt.Errorf("%w: %s", errors.ErrTrackerNotFound, batchID)
	}
	total := len(e.batch.Rows)
	return model.ImportProgress{
		RequestID: batchID,
		Total:     total,
		Succeeded: e.succeeded,
		Failed:    len(e.failures),
		Pending:   total - e.succeeded - len(e.failures),
		StartedAt: e.batch.StartedAt,
		Deadline:  e.batch.Deadline,
	}, nil
}

// Expire force-closes every batch whose deadline has passed. Rows that never
// reported are appended as timeout failures in sheet order.
func (s *MemoryStore) Expire(now time.Time) []model.BatchSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	var closed []model.BatchSummary
	for id, e := range s.batches {
		if e.batch.Deadline.IsZero() || now.Before(e.batch.Deadline) {
			continue
		}

		pending := make([]int, 0, len(e.batch.Rows)-len(e.reported))
		for rowNumber := range e.batch.Rows {
			if _, seen := e.reported[rowNumber]; !seen {
				pending = append(pending, rowNumber)
			}
		}
		sort.Ints(pending)

		timeoutMsg := errors.TimeoutError{BatchID: id}.Error()
		for _, rowNumber := range pending {
			e.failures = append(e.failures, model.FailureDocument{
				Row:   e.batch.Rows[rowNumber],
				Error: timeoutMsg,
			})
		}

		delete(s.batches, id)
		summary := e.summary()
		summary.TimedOut = true
		closed = append(closed, *summary)
	}
	return closed
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}
