package db

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"student-bulk-import/internal/model"
	"student-bulk-import/pkg/errors"
)

var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository is a process-local Repository. It enforces the same
// unique keys as the MySQL schema, compared case-insensitively like the
// default utf8mb4 collation, and is used for local runs and tests.
type MemoryRepository struct {
	mu            sync.Mutex
	nextID        int64
	students      map[int64]model.Student
	entries       map[int64]model.UploadEntry
	notifications map[int64]model.Notification
	now           func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		students:      make(map[int64]model.Student),
		entries:       make(map[int64]model.UploadEntry),
		notifications: make(map[int64]model.Notification),
		now:           time.Now,
	}
}

func (m *MemoryRepository) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *MemoryRepository) FindStudentsByRollNoOrHandle(ctx context.Context, rollNo, handle string) ([]model.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var found []model.Student
	for _, s := range m.students {
		if strings.EqualFold(s.RollNo, rollNo) || strings.EqualFold(s.LeetcodeUsername, handle) {
			found = append(found, s)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].ID < found[j].ID })
	return found, nil
}

func (m *MemoryRepository) CreateStudent(ctx context.Context, student *model.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.students {
		if strings.EqualFold(s.RollNo, student.RollNo) {
			return fmt.Errorf("%w: roll_no %s", errors.ErrDuplicateKey, student.RollNo)
		}
		if strings.EqualFold(s.LeetcodeUsername, student.LeetcodeUsername) {
			return fmt.Errorf("%w: leetcode_username %s", errors.ErrDuplicateKey, student.LeetcodeUsername)
		}
	}

	now := m.now()
	student.ID = m.id()
	student.CreatedAt = now
	student.UpdatedAt = now
	m.students[student.ID] = *student
	return nil
}

func (m *MemoryRepository) UpdateStudent(ctx context.Context, student *model.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, s := range m.students {
		if !strings.EqualFold(s.RollNo, student.RollNo) || !strings.EqualFold(s.LeetcodeUsername, student.LeetcodeUsername) {
			continue
		}
		s.Name = student.Name
		s.Department = student.Department
		s.Year = student.Year
		s.BatchName = student.BatchName
		s.GfgUsername = student.GfgUsername
		s.CodechefUsername = student.CodechefUsername
		s.UpdatedAt = m.now()
		m.students[id] = s
		student.ID = id
		return nil
	}
	return errors.ErrNotFound
}

func matchesFilter(s model.Student, f model.StudentFilter) bool {
	if f.BatchName != "" && (s.BatchName == nil || *s.BatchName != f.BatchName) {
		return false
	}
	if f.Year != "" && s.Year != f.Year {
		return false
	}
	if f.Department != "" && s.Department != f.Department {
		return false
	}
	return true
}

func (m *MemoryRepository) ListStudents(ctx context.Context, filter model.StudentFilter) ([]model.Student, error) {
	if filter.IsEmpty() {
		return nil, fmt.Errorf("at least one student filter is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Student
	for _, s := range m.students {
		if matchesFilter(s, filter) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RollNo < out[j].RollNo })
	return out, nil
}

func (m *MemoryRepository) DeleteStudents(ctx context.Context, filter model.StudentFilter) (int64, error) {
	if filter.IsEmpty() {
		return 0, fmt.Errorf("at least one student filter is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, s := range m.students {
		if matchesFilter(s, filter) {
			delete(m.students, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepository) findEntry(entryType model.UploadEntryType, name string) (model.UploadEntry, bool) {
	for _, e := range m.entries {
		if e.Type == entryType && e.Name == name {
			return e, true
		}
	}
	return model.UploadEntry{}, false
}

func (m *MemoryRepository) EnsureUploadEntry(ctx context.Context, entryType model.UploadEntryType, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.findEntry(entryType, name); ok {
		return false, nil
	}
	m.insertEntry(entryType, name)
	return true, nil
}

func (m *MemoryRepository) insertEntry(entryType model.UploadEntryType, name string) model.UploadEntry {
	now := m.now()
	e := model.UploadEntry{ID: m.id(), Type: entryType, Name: name, CreatedAt: now, UpdatedAt: now}
	m.entries[e.ID] = e
	return e
}

func (m *MemoryRepository) CreateUploadEntry(ctx context.Context, entryType model.UploadEntryType, name string) (*model.UploadEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.findEntry(entryType, name); ok {
		return nil, fmt.Errorf("%w: %s %s", errors.ErrDuplicateKey, entryType, name)
	}
	e := m.insertEntry(entryType, name)
	return &e, nil
}

func (m *MemoryRepository) ListUploadEntries(ctx context.Context, entryType model.UploadEntryType) ([]model.UploadEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.UploadEntry
	for _, e := range m.entries {
		if e.Type == entryType {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryRepository) DeleteUploadEntry(ctx context.Context, entryType model.UploadEntryType, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[id]; !ok || e.Type != entryType {
		return errors.ErrNotFound
	}
	delete(m.entries, id)
	return nil
}

func (m *MemoryRepository) DeleteUploadEntryByName(ctx context.Context, entryType model.UploadEntryType, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.findEntry(entryType, name); ok {
		delete(m.entries, e.ID)
	}
	return nil
}

func (m *MemoryRepository) CreateNotification(ctx context.Context, n *model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n.ID = m.id()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = m.now()
	}
	stored := *n
	stored.FailureDocuments = append([]model.FailureDocument(nil), n.FailureDocuments...)
	m.notifications[n.ID] = stored
	return nil
}

func (m *MemoryRepository) ListNotifications(ctx context.Context, userID string) ([]model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Notification
	for _, n := range m.notifications {
		if userID == "" || n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryRepository) SetNotificationViewed(ctx context.Context, id int64, viewed bool) (*model.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.notifications[id]
	if !ok {
		return nil, errors.ErrNotFound
	}
	n.Viewed = viewed
	m.notifications[id] = n
	return &n, nil
}

func (m *MemoryRepository) DeleteNotification(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.notifications[id]; !ok {
		return errors.ErrNotFound
	}
	delete(m.notifications, id)
	return nil
}

// StudentCount returns the number of stored students.
func (m *MemoryRepository) StudentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.students)
}
