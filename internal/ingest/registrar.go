package ingest

import (
	"context"
	stderrors "errors"
	"fmt"

	"student-bulk-import/internal/db"
	"student-bulk-import/internal/logger"
	"student-bulk-import/internal/model"
	"student-bulk-import/pkg/errors"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Registrar makes sure categorical values referenced by a row exist in the
// upload-entry vocabulary. The storage unique key on (type, name) is the
// source of truth; singleflight only collapses identical calls in flight
// within this process.
type Registrar struct {
	repo  db.UploadEntryRepository
	group singleflight.Group
	log   zerolog.Logger
}

func NewRegistrar(repo db.UploadEntryRepository) *Registrar {
	return &Registrar{
		repo: repo,
		log:  logger.For("registrar"),
	}
}

func (r *Registrar) EnsureEntry(ctx context.Context, entryType model.UploadEntryType, name string) error {
	if !entryType.Valid() {
		return fmt.Errorf("%w: %s", errors.ErrInvalidEntryType, entryType)
	}
	if name == "" {
		return nil
	}

	_, err, _ := r.group.Do(string(entryType)+"\x00"+name, func() (interface{}, error) {
		created, err := r.repo.EnsureUploadEntry(ctx, entryType, name)
		if err != nil {
			// Another writer won the race on the unique key.
			if stderrors.Is(err, errors.ErrDuplicateKey) {
				return nil, nil
			}
			return nil, err
		}
		if created {
			r.log.Debug().Str("type", string(entryType)).Str("name", name).Msg("Added upload entry")
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("failed to ensure %s entry %q: %w", entryType, name, err)
	}
	return nil
}

// EnsureRowEntries registers the year, batch and department of a row.
func (r *Registrar) EnsureRowEntries(ctx context.Context, row model.StudentRow) error {
	entries := []struct {
		entryType model.UploadEntryType
		name      string
	}{
		{model.UploadEntryYear, row.Year},
		{model.UploadEntryBatch, row.BatchName},
		{model.UploadEntryDepartment, row.Department},
	}
	for _, e := range entries {
		if err := r.EnsureEntry(ctx, e.entryType, e.name); err != nil {
			return err
		}
	}
	return nil
}
