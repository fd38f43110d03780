package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/userhub/apiserver/config"
)

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// Storage wraps an ObjectStorage backend with a stable API.
type Storage struct {
	backend ObjectStorage
}

// NewStorage constructs a Storage wrapper for the provided backend.
func NewStorage(backend ObjectStorage) *Storage {
	return &Storage{backend: backend}
}

// Open builds the backend selected by cfg.Storage.Backend.
func Open(ctx context.Context, cfg config.Config) (*Storage, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Backend)) {
	case config.StorageBackendMinio:
		client, err := NewMinioClient(cfg.Minio)
		if err != nil {
			return nil, fmt.Errorf("storage.Open: minio: %w", err)
		}
		return NewStorage(client), nil
	case config.StorageBackendGCS:
		client, err := NewGCSClient(ctx, cfg.GCS)
		if err != nil {
			return nil, fmt.Errorf("storage.Open: gcs: %w", err)
		}
		return NewStorage(client), nil
	default:
		return nil, fmt.Errorf("storage.Open: unsupported storage backend %q", cfg.Storage.Backend)
	}
}

// EnsureBucket ensures the configured bucket exists.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	return s.backend.EnsureBucket(ctx)
}

// Put uploads an object to the configured bucket. A negative size streams
// r until EOF.
func (s *Storage) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	return s.backend.Put(ctx, key, r, size, contentType)
}

// Get opens a reader for an object in the configured bucket.
func (s *Storage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.backend.Get(ctx, key)
}

// Delete removes an object from the configured bucket.
func (s *Storage) Delete(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, key)
}

// Bucket returns the configured bucket name.
func (s *Storage) Bucket() string {
	return s.backend.Bucket()
}

// ErrObjectNotFound is returned when a key does not exist in the bucket.
var ErrObjectNotFound = errors.New("object not found")

// streamPartSize bounds the memory held per in-flight part when an upload's
// length is unknown.
const streamPartSize = 16 << 20

func objectMetadata() map[string]string {
	return map[string]string{"source": "userhub"}
}

// minioPartSize picks the multipart part size. Zero lets minio derive it
// from a known length.
func minioPartSize(size int64) uint64 {
	if size < 0 {
		return streamPartSize
	}
	return 0
}

// gcsChunkSize picks the writer chunk size. Zero sends the object in one
// request, which only suits small bodies of known length.
func gcsChunkSize(size int64) int {
	if size >= 0 && size <= gcsSingleShotLimit {
		return 0
	}
	return streamPartSize
}
