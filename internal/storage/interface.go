package storage

import (
	"context"
	"io"
)

// Storage archives raw uploads. Objects are write-once per request id.
type Storage interface {
	Upload(ctx context.Context, key string, data io.ReadSeeker) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
}

// UploadKey is where the spreadsheet behind a batch is archived.
func UploadKey(requestID string) string {
	return "uploads/" + requestID + ".xlsx"
}
