package services

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/userhub/apiserver/types"
)

const (
	exportPageSize    = MaxPageSize
	exportContentType = "application/x-ndjson"
)

// UserWalker visits every user from one consistent snapshot.
type UserWalker interface {
	Walk(ctx context.Context, size int, fn func(types.User) error) error
}

// ObjectWriter is the object storage surface the exporter needs. A
// negative size means the length is not known up front.
type ObjectWriter interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Bucket() string
}

// ExportResult describes a written snapshot.
type ExportResult struct {
	Bucket string
	Key    string
	Count  int
}

// ExportService streams JSON-Lines snapshots of every user to object storage.
type ExportService struct {
	users   UserWalker
	objects ObjectWriter
	prefix  string
	now     func() time.Time
}

func NewExportService(users UserWalker, objects ObjectWriter, prefix string) *ExportService {
	return &ExportService{
		users:   users,
		objects: objects,
		prefix:  strings.Trim(prefix, "/"),
		now:     time.Now,
	}
}

// Export writes one JSON object per user, in creation order, under
// <prefix>/users-<timestamp>.jsonl. Rows are piped straight from the
// database snapshot into the upload.
func (s *ExportService) Export(ctx context.Context) (ExportResult, error) {
	if err := s.objects.EnsureBucket(ctx); err != nil {
		return ExportResult{}, fmt.Errorf("export users: ensure bucket: %w", err)
	}

	key := s.objectKey()
	pr, pw := io.Pipe()

	var (
		count     int
		pipeBroke bool
	)
	walked := make(chan error, 1)
	go func() {
		buf := bufio.NewWriter(pw)
		enc := json.NewEncoder(buf)
		err := s.users.Walk(ctx, exportPageSize, func(user types.User) error {
			if err := enc.Encode(user); err != nil {
				pipeBroke = true
				return err
			}
			count++
			return nil
		})
		if err == nil {
			if err = buf.Flush(); err != nil {
				pipeBroke = true
			}
		}
		_ = pw.CloseWithError(err)
		walked <- err
	}()

	putErr := s.objects.Put(ctx, key, pr, -1, exportContentType)
	// Unblocks the writer when the upload stopped reading early.
	_ = pr.CloseWithError(putErr)
	walkErr := <-walked

	switch {
	case walkErr != nil && !pipeBroke:
		return ExportResult{}, fmt.Errorf("export users: %w", walkErr)
	case putErr != nil:
		return ExportResult{}, fmt.Errorf("export users: upload: %w", putErr)
	case walkErr != nil:
		return ExportResult{}, fmt.Errorf("export users: %w", walkErr)
	}

	return ExportResult{Bucket: s.objects.Bucket(), Key: key, Count: count}, nil
}

func (s *ExportService) objectKey() string {
	name := fmt.Sprintf("users-%s.jsonl", s.now().UTC().Format("20060102T150405Z"))
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}
