package objectstore_test

import (
	"context"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/book-expert/ssml-tts-service/internal/objectstore"
)

func newOfflineGCSClient(t *testing.T) *storage.Client {
	t.Helper()

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)

	t.Cleanup(func() { _ = client.Close() })

	return client
}

func TestGCSStore_URLAndBucket(t *testing.T) {
	t.Parallel()

	client := newOfflineGCSClient(t)

	_, err := objectstore.NewGCSStore(client, "", false)
	require.ErrorIs(t, err, objectstore.ErrMissingBucket)

	store, err := objectstore.NewGCSStore(client, "tts-audio", true)
	require.NoError(t, err)

	assert.Equal(t, "gcs", store.Name())
	assert.Equal(t, "https://storage.googleapis.com/tts-audio/tts-b-001.mp3", store.URL("tts-b-001.mp3"))

	assert.Same(t, store, store.WithBucket("tts-audio"))
	assert.Equal(t,
		"https://storage.googleapis.com/other/tts-b-001.mp3",
		store.WithBucket("other").URL("tts-b-001.mp3"),
	)
}
