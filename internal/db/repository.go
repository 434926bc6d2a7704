package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"student-bulk-import/internal/model"
	"student-bulk-import/pkg/errors"
)

type StudentRepository interface {
	// FindStudentsByRollNoOrHandle returns every record whose roll number or
	// LeetCode handle matches. At most two records can match.
	FindStudentsByRollNoOrHandle(ctx context.Context, rollNo, handle string) ([]model.Student, error)
	CreateStudent(ctx context.Context, student *model.Student) error
	UpdateStudent(ctx context.Context, student *model.Student) error
	ListStudents(ctx context.Context, filter model.StudentFilter) ([]model.Student, error)
	DeleteStudents(ctx context.Context, filter model.StudentFilter) (int64, error)
}

type UploadEntryRepository interface {
	// EnsureUploadEntry inserts (type, name) unless it already exists. It
	// reports whether this call created the entry.
	EnsureUploadEntry(ctx context.Context, entryType model.UploadEntryType, name string) (bool, error)
	CreateUploadEntry(ctx context.Context, entryType model.UploadEntryType, name string) (*model.UploadEntry, error)
	ListUploadEntries(ctx context.Context, entryType model.UploadEntryType) ([]model.UploadEntry, error)
	// DeleteUploadEntry removes the entry only if it has the given type.
	DeleteUploadEntry(ctx context.Context, entryType model.UploadEntryType, id int64) error
	DeleteUploadEntryByName(ctx context.Context, entryType model.UploadEntryType, name string) error
}

type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *model.Notification) error
	ListNotifications(ctx context.Context, userID string) ([]model.Notification, error)
	SetNotificationViewed(ctx context.Context, id int64, viewed bool) (*model.Notification, error)
	DeleteNotification(ctx context.Context, id int64) error
}

type Repository interface {
	StudentRepository
	UploadEntryRepository
	NotificationRepository
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const studentColumns = `id, name, roll_no, department, leetcode_username, gfg_username, codechef_username,
	year, batch_name, is_placed, company_id, created_at, updated_at`

func scanStudents(rows *sql.Rows) ([]model.Student, error) {
	var students []model.Student
	for rows.Next() {
		var s model.Student
		err := rows.Scan(&s.ID, &s.Name, &s.RollNo, &s.Department, &s.LeetcodeUsername,
			&s.GfgUsername, &s.CodechefUsername, &s.Year, &s.BatchName, &s.IsPlaced,
			&s.CompanyID, &s.CreatedAt, &s.UpdatedAt)
		if err != nil {
			return nil, err
		}
		students = append(students, s)
	}
	return students, rows.Err()
}

func (r *repository) FindStudentsByRollNoOrHandle(ctx context.Context, rollNo, handle string) ([]model.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students
			  WHERE roll_no = ? OR leetcode_username = ? ORDER BY id LIMIT 2`

	rows, err := r.db.QueryContext(ctx, query, rollNo, handle)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanStudents(rows)
}

func (r *repository) CreateStudent(ctx context.Context, s *model.Student) error {
	query := `INSERT INTO students (name, roll_no, department, leetcode_username, gfg_username,
			  codechef_username, year, batch_name) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := r.db.ExecContext(ctx, query, s.Name, s.RollNo, s.Department, s.LeetcodeUsername,
		s.GfgUsername, s.CodechefUsername, s.Year, s.BatchName)
	if err != nil {
		return translateError(err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = id
	return nil
}

// UpdateStudent rewrites the mutable attributes of the record that holds
// both natural keys of s.
func (r *repository) UpdateStudent(ctx context.Context, s *model.Student) error {
	query := `UPDATE students SET name = ?, department = ?, year = ?, batch_name = ?,
			  gfg_username = ?, codechef_username = ?, updated_at = NOW()
			  WHERE roll_no = ? AND leetcode_username = ?`

	res, err := r.db.ExecContext(ctx, query, s.Name, s.Department, s.Year, s.BatchName,
		s.GfgUsername, s.CodechefUsername, s.RollNo, s.LeetcodeUsername)
	if err != nil {
		return translateError(err)
	}

	// MySQL reports zero affected rows when nothing changed, so only a
	// missing row is an error.
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		var exists int
		err := r.db.QueryRowContext(ctx,
			`SELECT 1 FROM students WHERE roll_no = ? AND leetcode_username = ?`,
			s.RollNo, s.LeetcodeUsername).Scan(&exists)
		return translateError(err)
	}
	return nil
}

func studentFilterClause(filter model.StudentFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	if filter.BatchName != "" {
		conds = append(conds, "batch_name = ?")
		args = append(args, filter.BatchName)
	}
	if filter.Year != "" {
		conds = append(conds, "year = ?")
		args = append(args, filter.Year)
	}
	if filter.Department != "" {
		conds = append(conds, "department = ?")
		args = append(args, filter.Department)
	}
	return strings.Join(conds, " AND "), args
}

func (r *repository) ListStudents(ctx context.Context, filter model.StudentFilter) ([]model.Student, error) {
	if filter.IsEmpty() {
		return nil, fmt.Errorf("at least one student filter is required")
	}
	where, args := studentFilterClause(filter)

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+studentColumns+` FROM students WHERE `+where+` ORDER BY roll_no`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanStudents(rows)
}

func (r *repository) DeleteStudents(ctx context.Context, filter model.StudentFilter) (int64, error) {
	if filter.IsEmpty() {
		return 0, fmt.Errorf("at least one student filter is required")
	}
	where, args := studentFilterClause(filter)

	res, err := r.db.ExecContext(ctx, `DELETE FROM students WHERE `+where, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *repository) EnsureUploadEntry(ctx context.Context, entryType model.UploadEntryType, name string) (bool, error) {
	// INSERT IGNORE lets the unique key settle concurrent inserts in one round trip.
	res, err := r.db.ExecContext(ctx,
		`INSERT IGNORE INTO upload_entries (type, name) VALUES (?, ?)`, entryType, name)
	if err != nil {
		return false, translateError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *repository) CreateUploadEntry(ctx context.Context, entryType model.UploadEntryType, name string) (*model.UploadEntry, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO upload_entries (type, name) VALUES (?, ?)`, entryType, name)
	if err != nil {
		return nil, translateError(err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	var entry model.UploadEntry
	err = r.db.QueryRowContext(ctx,
		`SELECT id, type, name, created_at, updated_at FROM upload_entries WHERE id = ?`, id).
		Scan(&entry.ID, &entry.Type, &entry.Name, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return nil, translateError(err)
	}
	return &entry, nil
}

func (r *repository) ListUploadEntries(ctx context.Context, entryType model.UploadEntryType) ([]model.UploadEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, type, name, created_at, updated_at FROM upload_entries WHERE type = ? ORDER BY name`,
		entryType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.UploadEntry
	for rows.Next() {
		var e model.UploadEntry
		if err := rows.Scan(&e.ID, &e.Type, &e.Name, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *repository) DeleteUploadEntry(ctx context.Context, entryType model.UploadEntryType, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM upload_entries WHERE id = ? AND type = ?`, id, entryType)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *repository) DeleteUploadEntryByName(ctx context.Context, entryType model.UploadEntryType, name string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM upload_entries WHERE type = ? AND name = ?`, entryType, name)
	return err
}

func (r *repository) CreateNotification(ctx context.Context, n *model.Notification) error {
	docs := n.FailureDocuments
	if docs == nil {
		docs = []model.FailureDocument{}
	}
	payload, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("failed to marshal failure documents: %w", err)
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO notifications (user_id, title, message, viewed, failure_documents, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		n.UserID, n.Title, n.Message, n.Viewed, payload, n.CreatedAt)
	if err != nil {
		return translateError(err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	n.ID = id
	return nil
}

func (r *repository) scanNotification(scan func(dest ...interface{}) error) (*model.Notification, error) {
	var n model.Notification
	var docs []byte
	if err := scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Viewed, &docs, &n.CreatedAt); err != nil {
		return nil, translateError(err)
	}
	if len(docs) > 0 {
		if err := json.Unmarshal(docs, &n.FailureDocuments); err != nil {
			return nil, fmt.Errorf("failed to decode failure documents: %w", err)
		}
	}
	return &n, nil
}

func (r *repository) ListNotifications(ctx context.Context, userID string) ([]model.Notification, error) {
	query := `SELECT id, user_id, title, message, viewed, failure_documents, created_at
			  FROM notifications`
	var args []interface{}
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []model.Notification
	for rows.Next() {
		n, err := r.scanNotification(rows.Scan)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, *n)
	}
	return notifications, rows.Err()
}

func (r *repository) SetNotificationViewed(ctx context.Context, id int64, viewed bool) (*model.Notification, error) {
	if _, err := r.db.ExecContext(ctx, `UPDATE notifications SET viewed = ? WHERE id = ?`, viewed, id); err != nil {
		return nil, err
	}

	// Unchanged rows report zero affected, so existence is decided by the read.
	row := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, message, viewed, failure_documents, created_at
		 FROM notifications WHERE id = ?`, id)
	return r.scanNotification(row.Scan)
}

func (r *repository) DeleteNotification(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.ErrNotFound
	}
	return nil
}
