// Package objectstore implements core.AudioStore on NATS JetStream object
// stores, S3-compatible buckets (Cloudflare R2) and Google Cloud Storage.
package objectstore

import (
	"errors"

	"github.com/book-expert/ssml-tts-service/internal/core"
	"github.com/book-expert/ssml-tts-service/internal/tts/ttsutils"
)

// Backend names reported by Name.
const (
	BackendNATS = "nats"
	BackendR2   = "r2"
	BackendGCS  = "gcs"
)

// ErrNotFound is returned by Download when the key does not exist.
var ErrNotFound = errors.New("object not found")

// Compile-time interface checks.
var (
	_ core.AudioStore   = (*NatsObjectStore)(nil)
	_ core.AudioStore   = (*S3Store)(nil)
	_ core.BucketScoped = (*S3Store)(nil)
	_ core.AudioStore   = (*GCSStore)(nil)
	_ core.BucketScoped = (*GCSStore)(nil)
)

// publicURL joins base and key, or returns fallback when no base is set.
func publicURL(base, key, fallback string) string {
	if base == "" {
		return fallback
	}

	return ttsutils.JoinURL(base, key)
}
