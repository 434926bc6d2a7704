package ingest

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"student-bulk-import/internal/db"
	"student-bulk-import/internal/logger"
	"student-bulk-import/internal/model"
	"student-bulk-import/pkg/errors"

	"github.com/rs/zerolog"
)

type UpsertResult string

const (
	UpsertCreated UpsertResult = "created"
	UpsertUpdated UpsertResult = "updated"
)

// UpsertEngine creates or updates a student keyed by roll number and
// LeetCode handle. An update only happens when both keys match the same
// record; a match on only one of them is a ConflictError.
type UpsertEngine struct {
	repo db.StudentRepository
	log  zerolog.Logger
}

func NewUpsertEngine(repo db.StudentRepository) *UpsertEngine {
	return &UpsertEngine{
		repo: repo,
		log:  logger.For("upsert"),
	}
}

func (e *UpsertEngine) Upsert(ctx context.Context, student *model.Student) (UpsertResult, error) {
	result, err := e.upsert(ctx, student)
	if stderrors.Is(err, errors.ErrDuplicateKey) {
		// A concurrent insert claimed one of the keys between lookup and
		// insert; a second pass sees it and updates or conflicts.
		e.log.Debug().Str("roll_no", student.RollNo).Msg("Insert raced, retrying upsert")
		result, err = e.upsert(ctx, student)
	}
	return result, err
}

func (e *UpsertEngine) upsert(ctx context.Context, student *model.Student) (UpsertResult, error) {
	existing, err := e.repo.FindStudentsByRollNoOrHandle(ctx, student.RollNo, student.LeetcodeUsername)
	if err != nil {
		return "", fmt.Errorf("failed to look up student: %w", err)
	}

	if len(existing) == 0 {
		if err := e.repo.CreateStudent(ctx, student); err != nil {
			return "", err
		}
		return UpsertCreated, nil
	}

	if err := checkConflicts(student, existing); err != nil {
		return "", err
	}

	if err := e.repo.UpdateStudent(ctx, student); err != nil {
		return "", fmt.Errorf("failed to update student: %w", err)
	}
	return UpsertUpdated, nil
}

// checkConflicts reports any looked-up record that is not the same student.
// Key comparison follows the store's case-insensitive collation, so a handle
// that differs only in case is the same handle.
func checkConflicts(student *model.Student, existing []model.Student) error {
	// Handle collisions are reported before roll number collisions.
	for _, s := range existing {
		if strings.EqualFold(s.LeetcodeUsername, student.LeetcodeUsername) && !strings.EqualFold(s.RollNo, student.RollNo) {
			return errors.ConflictError{
				Field:         "leetcodeUsername",
				Value:         student.LeetcodeUsername,
				ExistingField: "rollNo",
				ExistingValue: s.RollNo,
			}
		}
	}
	for _, s := range existing {
		if !sameStudent(s, student) {
			return errors.ConflictError{
				Field:         "rollNo",
				Value:         student.RollNo,
				ExistingField: "leetcodeUsername",
				ExistingValue: s.LeetcodeUsername,
			}
		}
	}
	return nil
}

func sameStudent(s model.Student, student *model.Student) bool {
	return strings.EqualFold(s.RollNo, student.RollNo) &&
		strings.EqualFold(s.LeetcodeUsername, student.LeetcodeUsername)
}
