// Package config_test tests the configuration loading for the ssml-tts-service.
package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/book-expert/ssml-tts-service/internal/config"
	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleTOML = `
[server]
port = 9090
lenient_json = true

[chunker]
max_len = 1200
pause_ms = 400

[tts_service]
language_code = "en-US"
voice_name = "en-US-Neural2-C"
audio_encoding = "OGG_OPUS"
speaking_rate = 1.25
concurrency = 5

[storage]
backend = "nats"
key_prefix = "book"

[nats]
url = "nats://127.0.0.1:4222"
tts_stream_name = "TTS_JOBS"
tts_consumer_name = "tts-workers"
text_processed_subject = "text.processed"
audio_chunk_created_subject = "audio.chunk.created"
audio_object_store_bucket = "AUDIO_FILES"

[cache]
enabled = true
ttl_seconds = 60

[paths]
base_logs_dir = "/var/log/ssml-tts"
`

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	var cfg config.Config

	err := toml.Unmarshal([]byte(sampleTOML), &cfg)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Server.LenientJSON)
	assert.Equal(t, 1200, cfg.Chunker.MaxLen)
	assert.Equal(t, 400*time.Millisecond, cfg.Chunker.Pause())
	assert.Equal(t, "en-US", cfg.TTS.LanguageCode)
	assert.Equal(t, "en-US-Neural2-C", cfg.TTS.VoiceName)
	assert.Equal(t, "OGG_OPUS", cfg.TTS.AudioEncoding)
	assert.InEpsilon(t, 1.25, cfg.TTS.SpeakingRate, 0.001)
	assert.Equal(t, 5, cfg.TTS.Concurrency)
	assert.Equal(t, config.BackendNATS, cfg.Storage.Backend)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, "TTS_JOBS", cfg.NATS.TTStreamName)
	assert.Equal(t, "tts-workers", cfg.NATS.TTSConsumerName)
	assert.Equal(t, "text.processed", cfg.NATS.TextProcessedSubject)
	assert.Equal(t, "audio.chunk.created", cfg.NATS.AudioChunkCreatedSubject)
	assert.Equal(t, "AUDIO_FILES", cfg.NATS.AudioObjectStoreBucket)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, time.Minute, cfg.Cache.TTL())
	assert.Equal(t, "/var/log/ssml-tts", cfg.Paths.BaseLogsDir)
}

func TestApplyDefaults(t *testing.T) {
	t.Parallel()

	var cfg config.Config

	cfg.ApplyDefaults()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, int64(10<<20), cfg.Server.MaxBodyBytes)
	assert.Equal(t, 3000, cfg.Chunker.MaxLen)
	assert.Equal(t, 600*time.Millisecond, cfg.Chunker.Pause())
	assert.Equal(t, "en-GB", cfg.TTS.LanguageCode)
	assert.Equal(t, "en-GB-Wavenet-B", cfg.TTS.VoiceName)
	assert.Equal(t, "MP3", cfg.TTS.AudioEncoding)
	assert.InEpsilon(t, 1.0, cfg.TTS.SpeakingRate, 0.001)
	assert.Equal(t, 3, cfg.TTS.Concurrency)
	assert.Equal(t, time.Minute, cfg.TTS.Timeout())
	assert.Equal(t, config.BackendAuto, cfg.Storage.Backend)
	assert.Equal(t, "tts", cfg.Storage.KeyPrefix)
	assert.Equal(t, 5*time.Minute, cfg.Keepalive.Interval())
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL())
}

func TestStorageBackend_Auto(t *testing.T) {
	t.Parallel()

	r2 := config.Secrets{
		R2Endpoint:        "https://account.r2.cloudflarestorage.com",
		R2AccessKeyID:     "id",
		R2SecretAccessKey: "secret",
		R2BucketName:      "audio",
	}

	tests := []struct {
		name     string
		cfg      config.Config
		expected string
	}{
		{name: "nothing configured", cfg: config.Config{}, expected: config.BackendNone},
		{
			name:     "r2 preferred over gcs",
			cfg:      config.Config{Secrets: withGCS(r2, "bucket")},
			expected: config.BackendR2,
		},
		{
			name:     "gcs when r2 incomplete",
			cfg:      config.Config{Secrets: config.Secrets{R2Endpoint: "x", GCSBucket: "bucket"}},
			expected: config.BackendGCS,
		},
		{
			name: "nats object store",
			cfg: config.Config{NATS: config.NATSConfig{
				URL:                    "nats://localhost:4222",
				AudioObjectStoreBucket: "AUDIO",
			}},
			expected: config.BackendNATS,
		},
		{
			name: "explicit backend wins",
			cfg: config.Config{
				Storage: config.StorageConfig{Backend: config.BackendNone},
				Secrets: r2,
			},
			expected: config.BackendNone,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			cfg := testCase.cfg
			cfg.ApplyDefaults()

			assert.Equal(t, testCase.expected, cfg.StorageBackend())
		})
	}
}

func withGCS(secrets config.Secrets, bucket string) config.Secrets {
	secrets.GCSBucket = bucket

	return secrets
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		mutate      func(cfg *config.Config)
		expectedErr error
	}{
		{name: "defaults are valid", mutate: func(*config.Config) {}},
		{
			name:        "port out of range",
			mutate:      func(cfg *config.Config) { cfg.Server.Port = 70000 },
			expectedErr: config.ErrInvalidPort,
		},
		{
			name:        "negative max length",
			mutate:      func(cfg *config.Config) { cfg.Chunker.MaxLen = -1 },
			expectedErr: config.ErrNegativeMaxLen,
		},
		{
			name:        "r2 without credentials",
			mutate:      func(cfg *config.Config) { cfg.Storage.Backend = config.BackendR2 },
			expectedErr: config.ErrMissingR2Credentials,
		},
		{
			name:        "gcs without bucket",
			mutate:      func(cfg *config.Config) { cfg.Storage.Backend = config.BackendGCS },
			expectedErr: config.ErrMissingGCSBucket,
		},
		{
			name:        "nats without url",
			mutate:      func(cfg *config.Config) { cfg.Storage.Backend = config.BackendNATS },
			expectedErr: config.ErrMissingNATSURL,
		},
		{
			name:        "unknown backend",
			mutate:      func(cfg *config.Config) { cfg.Storage.Backend = "ftp" },
			expectedErr: config.ErrUnknownBackend,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			var cfg config.Config

			cfg.ApplyDefaults()
			testCase.mutate(&cfg)

			err := cfg.Validate()
			if testCase.expectedErr == nil {
				require.NoError(t, err)

				return
			}

			require.ErrorIs(t, err, testCase.expectedErr)
		})
	}
}

func TestLoadFile_EnvironmentOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleTOML), 0o600))

	t.Setenv("PORT", "7070")
	t.Setenv("RENDER_EXTERNAL_URL", "https://tts.example.com")
	t.Setenv("GCS_BUCKET", "speech-audio")
	t.Setenv("R2_BUCKET_NAME", "r2-audio")

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "https://tts.example.com", cfg.Keepalive.URL)
	assert.Equal(t, "speech-audio", cfg.Secrets.GCSBucket)
	assert.Equal(t, "r2-audio", cfg.Secrets.R2BucketOrName())
	assert.Equal(t, "AUDIO_FILES", cfg.NATS.TextObjectStoreBucket)
	assert.Equal(t, config.BackendNATS, cfg.StorageBackend())
	require.NoError(t, cfg.Validate())
}

func TestLoadFile_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := config.LoadFile(filepath.Join(t.TempDir(), "absent.toml"))
		require.Error(t, err)
	})

	t.Run("invalid toml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.toml")
		require.NoError(t, os.WriteFile(path, []byte("[server\nport = "), 0o600))

		_, err := config.LoadFile(path)
		require.Error(t, err)
	})

	t.Run("invalid port in environment", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		require.NoError(t, os.WriteFile(path, []byte(sampleTOML), 0o600))
		t.Setenv("PORT", "eighty")

		_, err := config.LoadFile(path)
		require.ErrorIs(t, err, config.ErrInvalidPort)
	})
}
