package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/userhub/apiserver/config"
	"google.golang.org/api/option"
)

// gcsSingleShotLimit is the largest known-length object sent in a single
// request. Larger or unknown-length uploads use resumable chunks.
const gcsSingleShotLimit = 8 << 20

// GCSClient stores exports in a Google Cloud Storage bucket.
type GCSClient struct {
	client    *storage.Client
	bucket    *storage.BucketHandle
	name      string
	projectID string
}

func NewGCSClient(ctx context.Context, cfg config.GCSConfig) (*GCSClient, error) {
	name := strings.TrimSpace(cfg.Bucket)
	if name == "" {
		return nil, errors.New("gcs bucket is required")
	}

	var opts []option.ClientOption
	if file := strings.TrimSpace(cfg.CredentialsFile); file != "" {
		opts = append(opts, option.WithCredentialsFile(file))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}

	return &GCSClient{
		client:    client,
		bucket:    client.Bucket(name),
		name:      name,
		projectID: strings.TrimSpace(cfg.ProjectID),
	}, nil
}

// EnsureBucket creates the bucket when it is missing. Creation needs a
// project id.
func (g *GCSClient) EnsureBucket(ctx context.Context) error {
	_, err := g.bucket.Attrs(ctx)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, storage.ErrBucketNotExist):
		return fmt.Errorf("gcs bucket %s: %w", g.name, err)
	case g.projectID == "":
		return fmt.Errorf("gcs bucket %s does not exist and no project id is configured", g.name)
	}
	return g.bucket.Create(ctx, g.projectID, nil)
}

// Put uploads r under key. When size is known the stream must match it
// exactly; a short or long body aborts the upload instead of committing a
// truncated object.
func (g *GCSClient) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := g.bucket.Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = objectMetadata()
	w.ChunkSize = gcsChunkSize(size)

	n, err := io.Copy(w, r)
	if err == nil && size >= 0 && n != size {
		err = fmt.Errorf("gcs put %s: read %d bytes, expected %d", key, n, size)
	}
	if err != nil {
		// Cancelling the writer's context discards the partial upload.
		cancel()
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (g *GCSClient) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := g.bucket.Object(key).NewReader(ctx)
	if err != nil {
		return nil, mapGCSError(err)
	}
	return rc, nil
}

func (g *GCSClient) Delete(ctx context.Context, key string) error {
	return mapGCSError(g.bucket.Object(key).Delete(ctx))
}

func (g *GCSClient) Bucket() string {
	return g.name
}

func mapGCSError(err error) error {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return ErrObjectNotFound
	}
	return err
}
