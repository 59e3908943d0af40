// Package core defines the core business types and collaborator interfaces for
// the SSML TTS service.
package core

import (
	"context"
	"time"
)

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}

// AudioStore is an ObjectStore whose objects can be addressed by URL.
type AudioStore interface {
	ObjectStore
	// URL returns the address under which key is served after Upload.
	URL(key string) string
	// Name identifies the backend in responses and logs ("r2", "gcs", "nats").
	Name() string
}

// BucketScoped is implemented by stores that can target another bucket for a
// single request.
type BucketScoped interface {
	WithBucket(bucket string) AudioStore
}

// VoiceConfig selects the provider voice.
type VoiceConfig struct {
	LanguageCode string `json:"languageCode,omitempty"`
	Name         string `json:"name,omitempty"`
	SSMLGender   string `json:"ssmlGender,omitempty"`
}

// AudioConfig describes the requested audio output.
type AudioConfig struct {
	AudioEncoding   string  `json:"audioEncoding,omitempty"`
	SpeakingRate    float64 `json:"speakingRate,omitempty"`
	Pitch           float64 `json:"pitch,omitempty"`
	VolumeGainDB    float64 `json:"volumeGainDb,omitempty"`
	SampleRateHertz int32   `json:"sampleRateHertz,omitempty"`
}

// SpeechRequest is a single synthesis call for one SSML document.
type SpeechRequest struct {
	SSML  string
	Voice VoiceConfig
	Audio AudioConfig
}

// Synthesizer converts one SSML document into encoded audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SpeechRequest) ([]byte, error)
	Name() string
}

// SpeechInput is the input of a long-audio request; exactly one field is set.
type SpeechInput struct {
	Text string `json:"text,omitempty"`
	SSML string `json:"ssml,omitempty"`
}

// LongAudioRequest starts an asynchronous synthesis that writes its result to
// Cloud Storage.
type LongAudioRequest struct {
	Input         SpeechInput `json:"input"`
	Voice         VoiceConfig `json:"voice"`
	Audio         AudioConfig `json:"audioConfig"`
	OutputGCSURI  string      `json:"outputGcsUri"`
	ProjectNumber string      `json:"projectNumber"`
}

// LongAudioOperation reports the state of an asynchronous synthesis.
type LongAudioOperation struct {
	Name               string     `json:"name"`
	Done               bool       `json:"done"`
	ProgressPercentage float64    `json:"progressPercentage"`
	StartTime          *time.Time `json:"startTime,omitempty"`
	LastUpdateTime     *time.Time `json:"lastUpdateTime,omitempty"`
	Error              string     `json:"error,omitempty"`
}

// LongAudioSynthesizer starts and polls asynchronous long-audio syntheses.
type LongAudioSynthesizer interface {
	Start(ctx context.Context, req LongAudioRequest) (*LongAudioOperation, error)
	Status(ctx context.Context, name string) (*LongAudioOperation, error)
}
