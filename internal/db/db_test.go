package db

import (
	"context"
	"database/sql"
	stderrors "errors"
	"testing"

	"student-bulk-import/internal/model"
	"student-bulk-import/pkg/errors"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslateError(t *testing.T) {
	other := stderrors.New("connection refused")

	tests := []struct {
		name string
		in   error
		want error
	}{
		{name: "nil", in: nil, want: nil},
		{name: "no rows", in: sql.ErrNoRows, want: errors.ErrNotFound},
		{name: "duplicate entry", in: &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'A1'"}, want: errors.ErrDuplicateKey},
		{name: "other mysql error", in: &mysql.MySQLError{Number: 1213, Message: "Deadlock"}, want: nil},
		{name: "passthrough", in: other, want: other},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translateError(tt.in)
			switch {
			case tt.in == nil:
				assert.NoError(t, got)
			case tt.want == nil:
				assert.Equal(t, tt.in, got)
			default:
				assert.True(t, stderrors.Is(got, tt.want), "got %v", got)
			}
		})
	}
}

func TestMemoryRepository_UniqueKeys(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	batch := "2025-A"

	require.NoError(t, repo.CreateStudent(ctx, &model.Student{RollNo: "A1", LeetcodeUsername: "u1", BatchName: &batch}))

	err := repo.CreateStudent(ctx, &model.Student{RollNo: "A1", LeetcodeUsername: "u2"})
	assert.True(t, stderrors.Is(err, errors.ErrDuplicateKey))
	err = repo.CreateStudent(ctx, &model.Student{RollNo: "A2", LeetcodeUsername: "u1"})
	assert.True(t, stderrors.Is(err, errors.ErrDuplicateKey))

	found, err := repo.FindStudentsByRollNoOrHandle(ctx, "A1", "zzz")
	require.NoError(t, err)
	assert.Len(t, found, 1)

	err = repo.UpdateStudent(ctx, &model.Student{RollNo: "A1", LeetcodeUsername: "u9"})
	assert.True(t, stderrors.Is(err, errors.ErrNotFound))
}

func TestMemoryRepository_UploadEntries(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	created, err := repo.EnsureUploadEntry(ctx, model.UploadEntryYear, "2025")
	require.NoError(t, err)
	assert.True(t, created)
	created, err = repo.EnsureUploadEntry(ctx, model.UploadEntryYear, "2025")
	require.NoError(t, err)
	assert.False(t, created)

	// Same name under another type is a separate entry.
	_, err = repo.CreateUploadEntry(ctx, model.UploadEntryBatch, "2025")
	require.NoError(t, err)
	_, err = repo.CreateUploadEntry(ctx, model.UploadEntryBatch, "2025")
	assert.True(t, stderrors.Is(err, errors.ErrDuplicateKey))

	years, err := repo.ListUploadEntries(ctx, model.UploadEntryYear)
	require.NoError(t, err)
	require.Len(t, years, 1)

	// The id alone is not enough; the type has to match too.
	assert.True(t, stderrors.Is(repo.DeleteUploadEntry(ctx, model.UploadEntryBatch, years[0].ID), errors.ErrNotFound))
	require.NoError(t, repo.DeleteUploadEntry(ctx, model.UploadEntryYear, years[0].ID))
	assert.True(t, stderrors.Is(repo.DeleteUploadEntry(ctx, model.UploadEntryYear, years[0].ID), errors.ErrNotFound))
}

func TestMemoryRepository_StudentFilterRequired(t *testing.T) {
	repo := NewMemoryRepository()

	_, err := repo.ListStudents(context.Background(), model.StudentFilter{})
	assert.Error(t, err)
	_, err = repo.DeleteStudents(context.Background(), model.StudentFilter{})
	assert.Error(t, err)
}
