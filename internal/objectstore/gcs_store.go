package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"

	"github.com/book-expert/ssml-tts-service/internal/core"
	"github.com/book-expert/ssml-tts-service/internal/tts/audio"
)

const gcsURLFormat = "https://storage.googleapis.com/%s/%s"

// GCSStore stores objects in a Google Cloud Storage bucket.
type GCSStore struct {
	client     *storage.Client
	bucket     string
	makePublic bool
}

// NewGCSStore creates a store for bucket. When makePublic is set every
// uploaded object is made readable by all users.
func NewGCSStore(client *storage.Client, bucket string, makePublic bool) (*GCSStore, error) {
	if bucket == "" {
		return nil, ErrMissingBucket
	}

	return &GCSStore{client: client, bucket: bucket, makePublic: makePublic}, nil
}

// Download reads an object.
func (g *GCSStore) Download(ctx context.Context, key string) ([]byte, error) {
	reader, err := g.client.Bucket(g.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: '%s' in bucket '%s'", ErrNotFound, key, g.bucket)
		}

		return nil, fmt.Errorf("failed to open object '%s' in bucket '%s': %w", key, g.bucket, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read object '%s': %w", key, err)
	}

	return data, nil
}

// Upload writes an object and, if configured, publishes it.
func (g *GCSStore) Upload(ctx context.Context, key string, data []byte) error {
	object := g.client.Bucket(g.bucket).Object(key)

	writer := object.NewWriter(ctx)
	writer.ContentType = audio.ContentTypeForKey(key)

	_, err := writer.Write(data)
	if err != nil {
		_ = writer.Close()

		return fmt.Errorf("failed to write object '%s' to bucket '%s': %w", key, g.bucket, err)
	}

	err = writer.Close()
	if err != nil {
		return fmt.Errorf("failed to finalize object '%s' in bucket '%s': %w", key, g.bucket, err)
	}

	if !g.makePublic {
		return nil
	}

	err = object.ACL().Set(ctx, storage.AllUsers, storage.RoleReader)
	if err != nil {
		return fmt.Errorf("failed to make object '%s' public: %w", key, err)
	}

	return nil
}

// URL returns the public storage.googleapis.com URL of key.
func (g *GCSStore) URL(key string) string {
	return fmt.Sprintf(gcsURLFormat, g.bucket, key)
}

// Name returns BackendGCS.
func (g *GCSStore) Name() string {
	return BackendGCS
}

// WithBucket returns a store writing to another bucket with the same client.
func (g *GCSStore) WithBucket(bucket string) core.AudioStore {
	if bucket == "" || bucket == g.bucket {
		return g
	}

	return &GCSStore{client: g.client, bucket: bucket, makePublic: g.makePublic}
}
