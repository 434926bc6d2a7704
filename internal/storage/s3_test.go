package storage

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"student-bulk-import/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 serves path-style PUT and GET for a single bucket.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = body
		f.types[r.URL.Path] = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		body, ok := f.objects[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestS3(t *testing.T) (*S3Storage, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	cfg := &config.Config{}
	cfg.Storage.S3 = config.S3Config{
		Endpoint:  server.URL,
		AccessKey: "test",
		SecretKey: "test",
		Bucket:    "imports",
		Region:    "us-east-1",
	}
	s, err := NewS3Storage(cfg)
	require.NoError(t, err)
	return s, fake
}

func TestUploadKey(t *testing.T) {
	assert.Equal(t, "uploads/abc.xlsx", UploadKey("abc"))
}

func TestS3Storage_UploadAndDownload(t *testing.T) {
	s, fake := newTestS3(t)
	ctx := context.Background()
	payload := []byte("PK\x03\x04 spreadsheet bytes")

	require.NoError(t, s.Upload(ctx, UploadKey("req-1"), bytes.NewReader(payload)))
	assert.Equal(t, payload, fake.objects["/imports/uploads/req-1.xlsx"])
	assert.Equal(t, xlsxContentType, fake.types["/imports/uploads/req-1.xlsx"])

	body, err := s.Download(ctx, UploadKey("req-1"))
	require.NoError(t, err)
	defer body.Close()
	got, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestS3Storage_DownloadMissing(t *testing.T) {
	s, _ := newTestS3(t)

	_, err := s.Download(context.Background(), UploadKey("absent"))
	assert.Error(t, err)
}
