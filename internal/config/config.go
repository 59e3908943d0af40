// Package config provides the configuration structure for the ssml-tts-service.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Storage backends.
const (
	BackendAuto = "auto"
	BackendR2   = "r2"
	BackendGCS  = "gcs"
	BackendNATS = "nats"
	BackendNone = "none"
)

// Default values applied to unset fields.
const (
	defaultPort               = 8080
	defaultMaxBodyBytes       = 10 << 20
	defaultReadTimeoutSec     = 30
	defaultWriteTimeoutSec    = 300
	defaultMaxLen             = 3000
	defaultPauseMS            = 600
	defaultLanguageCode       = "en-GB"
	defaultVoiceName          = "en-GB-Wavenet-B"
	defaultAudioEncoding      = "MP3"
	defaultSpeakingRate       = 1.0
	defaultConcurrency        = 3
	defaultTTSTimeoutSec      = 60
	defaultKeyPrefix          = "tts"
	defaultCacheTTLSeconds    = 24 * 60 * 60
	defaultCacheLocalSize     = 1000
	defaultKeepaliveInterval  = 5 * 60
	maxPort                   = 65535
	errFmtInvalidPort         = "%w: %d"
	errFmtUnknownBackend      = "%w: %q"
	errFmtInvalidEnvPort      = "%w: PORT=%q"
	errFmtLoadConfigurator    = "failed to load configuration from configurator: %w"
	errFmtReadConfigFile      = "failed to read config file %s: %w"
	errFmtDecodeConfigFile    = "failed to decode config file %s: %w"
	errFmtProcessEnvironment  = "failed to process environment: %w"
	errFmtNegativeChunkMaxLen = "%w: chunker.max_len=%d"
)

var (
	// ErrInvalidPort indicates a port outside 1..65535.
	ErrInvalidPort = errors.New("invalid server port")
	// ErrUnknownBackend indicates an unsupported storage backend name.
	ErrUnknownBackend = errors.New("unknown storage backend")
	// ErrMissingR2Credentials indicates the r2 backend lacks endpoint, keys or bucket.
	ErrMissingR2Credentials = errors.New(
		"r2 storage requires R2_ENDPOINT, R2_ACCESS_KEY_ID, R2_SECRET_ACCESS_KEY and R2_BUCKET",
	)
	// ErrMissingGCSBucket indicates the gcs backend lacks a bucket.
	ErrMissingGCSBucket = errors.New("gcs storage requires GCS_BUCKET")
	// ErrMissingNATSURL indicates that NATS is required but not configured.
	ErrMissingNATSURL = errors.New("nats storage requires nats.url")
	// ErrNegativeMaxLen indicates a negative chunk budget.
	ErrNegativeMaxLen = errors.New("chunk max length cannot be negative")
)

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Port                int   `toml:"port"`
	MaxBodyBytes        int64 `toml:"max_body_bytes"`
	LenientJSON         bool  `toml:"lenient_json"`
	ReadTimeoutSeconds  int   `toml:"read_timeout_seconds"`
	WriteTimeoutSeconds int   `toml:"write_timeout_seconds"`
}

// ReadTimeout returns the HTTP read timeout.
func (c ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}

// WriteTimeout returns the HTTP write timeout.
func (c ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}

// ChunkerConfig holds the text-to-SSML chunker settings.
type ChunkerConfig struct {
	MaxLen    int  `toml:"max_len"`
	PauseMS   int  `toml:"pause_ms"`
	ASCIIOnly bool `toml:"ascii_only"`
}

// Pause returns the paragraph pause as a duration.
func (c ChunkerConfig) Pause() time.Duration {
	return time.Duration(c.PauseMS) * time.Millisecond
}

// TTSServiceConfig holds the speech provider defaults.
type TTSServiceConfig struct {
	LanguageCode   string  `toml:"language_code"`
	VoiceName      string  `toml:"voice_name"`
	AudioEncoding  string  `toml:"audio_encoding"`
	SpeakingRate   float64 `toml:"speaking_rate"`
	Concurrency    int     `toml:"concurrency"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// Timeout returns the per-call synthesis timeout.
func (c TTSServiceConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// StorageConfig selects where synthesized audio is written.
type StorageConfig struct {
	Backend       string `toml:"backend"`
	KeyPrefix     string `toml:"key_prefix"`
	PublicBaseURL string `toml:"public_base_url"`
	MakePublic    bool   `toml:"make_public"`
}

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                      string `toml:"url"`
	TTStreamName             string `toml:"tts_stream_name"`
	TTSConsumerName          string `toml:"tts_consumer_name"`
	TextProcessedSubject     string `toml:"text_processed_subject"`
	AudioChunkCreatedSubject string `toml:"audio_chunk_created_subject"`
	AudioObjectStoreBucket   string `toml:"audio_object_store_bucket"`
	TextObjectStoreBucket    string `toml:"text_object_store_bucket"`
}

// CacheConfig holds the synthesis cache settings.
type CacheConfig struct {
	Enabled    bool `toml:"enabled"`
	TTLSeconds int  `toml:"ttl_seconds"`
	LocalSize  int  `toml:"local_size"`
}

// TTL returns the cache entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// KeepaliveConfig holds the self-ping settings.
type KeepaliveConfig struct {
	Enabled         bool   `toml:"enabled"`
	URL             string `toml:"url"`
	IntervalSeconds int    `toml:"interval_seconds"`
}

// Interval returns the ping interval.
func (c KeepaliveConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Secrets holds credentials and deployment values read from the environment.
type Secrets struct {
	GoogleCredentials     string `envconfig:"GOOGLE_CREDENTIALS"`
	GoogleCredentialsFile string `envconfig:"GOOGLE_APPLICATION_CREDENTIALS"`
	ProjectNumber         string `envconfig:"PROJECT_NUMBER"`
	R2Endpoint            string `envconfig:"R2_ENDPOINT"`
	R2AccessKeyID         string `envconfig:"R2_ACCESS_KEY_ID"`
	R2SecretAccessKey     string `envconfig:"R2_SECRET_ACCESS_KEY"`
	R2Bucket              string `envconfig:"R2_BUCKET"`
	R2BucketName          string `envconfig:"R2_BUCKET_NAME"`
	R2PublicBaseURL       string `envconfig:"R2_PUBLIC_BASE_URL"`
	GCSBucket             string `envconfig:"GCS_BUCKET"`
	RedisURL              string `envconfig:"REDIS_URL"`
	Port                  string `envconfig:"PORT"`
	ExternalURL           string `envconfig:"RENDER_EXTERNAL_URL"`
}

// R2BucketOrName returns R2_BUCKET, falling back to R2_BUCKET_NAME.
func (s Secrets) R2BucketOrName() string {
	if s.R2Bucket != "" {
		return s.R2Bucket
	}

	return s.R2BucketName
}

// HasR2 reports whether every R2 setting is present.
func (s Secrets) HasR2() bool {
	return s.R2Endpoint != "" && s.R2AccessKeyID != "" && s.R2SecretAccessKey != "" &&
		s.R2BucketOrName() != ""
}

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig     `toml:"server"`
	Chunker   ChunkerConfig    `toml:"chunker"`
	TTS       TTSServiceConfig `toml:"tts_service"`
	Storage   StorageConfig    `toml:"storage"`
	NATS      NATSConfig       `toml:"nats"`
	Cache     CacheConfig      `toml:"cache"`
	Keepalive KeepaliveConfig  `toml:"keepalive"`
	Paths     PathsConfig      `toml:"paths"`
	Secrets   Secrets          `toml:"-"`
}

// Load loads the configuration for the ssml-tts-service through the central
// configurator, then overlays environment secrets and defaults.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf(errFmtLoadConfigurator, err)
	}

	return finish(&cfg)
}

// LoadFile decodes a TOML file, then overlays environment secrets and defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf(errFmtReadConfigFile, path, err)
	}

	var cfg Config

	err = toml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf(errFmtDecodeConfigFile, path, err)
	}

	return finish(&cfg)
}

// LoadSecrets reads secrets from the environment after loading an optional
// .env file from the working directory.
func LoadSecrets() (Secrets, error) {
	// A missing .env file is not an error.
	_ = godotenv.Load()

	var secrets Secrets

	err := envconfig.Process("", &secrets)
	if err != nil {
		return Secrets{}, fmt.Errorf(errFmtProcessEnvironment, err)
	}

	return secrets, nil
}

func finish(cfg *Config) (*Config, error) {
	secrets, err := LoadSecrets()
	if err != nil {
		return nil, err
	}

	cfg.Secrets = secrets

	err = cfg.applyEnvironment()
	if err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()

	return cfg, nil
}

func (c *Config) applyEnvironment() error {
	if c.Secrets.Port != "" {
		port, err := strconv.Atoi(c.Secrets.Port)
		if err != nil {
			return fmt.Errorf(errFmtInvalidEnvPort, ErrInvalidPort, c.Secrets.Port)
		}

		c.Server.Port = port
	}

	if c.Keepalive.URL == "" {
		c.Keepalive.URL = c.Secrets.ExternalURL
	}

	return nil
}

// ApplyDefaults fills every unset field with its default value.
func (c *Config) ApplyDefaults() {
	c.applyServerDefaults()
	c.applyChunkerDefaults()
	c.applyTTSDefaults()
	c.applyStorageDefaults()

	if c.NATS.TextObjectStoreBucket == "" {
		c.NATS.TextObjectStoreBucket = c.NATS.AudioObjectStoreBucket
	}

	if c.Cache.TTLSeconds <= 0 {
		c.Cache.TTLSeconds = defaultCacheTTLSeconds
	}

	if c.Cache.LocalSize <= 0 {
		c.Cache.LocalSize = defaultCacheLocalSize
	}

	if c.Keepalive.IntervalSeconds <= 0 {
		c.Keepalive.IntervalSeconds = defaultKeepaliveInterval
	}
}

func (c *Config) applyServerDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}

	if c.Server.MaxBodyBytes <= 0 {
		c.Server.MaxBodyBytes = defaultMaxBodyBytes
	}

	if c.Server.ReadTimeoutSeconds <= 0 {
		c.Server.ReadTimeoutSeconds = defaultReadTimeoutSec
	}

	if c.Server.WriteTimeoutSeconds <= 0 {
		c.Server.WriteTimeoutSeconds = defaultWriteTimeoutSec
	}
}

func (c *Config) applyChunkerDefaults() {
	if c.Chunker.MaxLen == 0 {
		c.Chunker.MaxLen = defaultMaxLen
	}

	if c.Chunker.PauseMS == 0 {
		c.Chunker.PauseMS = defaultPauseMS
	}
}

func (c *Config) applyTTSDefaults() {
	if c.TTS.LanguageCode == "" {
		c.TTS.LanguageCode = defaultLanguageCode
	}

	if c.TTS.VoiceName == "" {
		c.TTS.VoiceName = defaultVoiceName
	}

	if c.TTS.AudioEncoding == "" {
		c.TTS.AudioEncoding = defaultAudioEncoding
	}

	if c.TTS.SpeakingRate == 0 {
		c.TTS.SpeakingRate = defaultSpeakingRate
	}

	if c.TTS.Concurrency <= 0 {
		c.TTS.Concurrency = defaultConcurrency
	}

	if c.TTS.TimeoutSeconds <= 0 {
		c.TTS.TimeoutSeconds = defaultTTSTimeoutSec
	}
}

func (c *Config) applyStorageDefaults() {
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = defaultKeyPrefix
	}

	if c.Storage.PublicBaseURL == "" {
		c.Storage.PublicBaseURL = c.Secrets.R2PublicBaseURL
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendAuto
	}
}

// StorageBackend resolves the effective backend. "auto" prefers R2, then GCS,
// then the NATS object store, then no storage at all.
func (c *Config) StorageBackend() string {
	if c.Storage.Backend != BackendAuto && c.Storage.Backend != "" {
		return c.Storage.Backend
	}

	switch {
	case c.Secrets.HasR2():
		return BackendR2
	case c.Secrets.GCSBucket != "":
		return BackendGCS
	case c.NATS.URL != "" && c.NATS.AudioObjectStoreBucket != "":
		return BackendNATS
	default:
		return BackendNone
	}
}

// Validate reports the first configuration error that would prevent startup.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > maxPort {
		return fmt.Errorf(errFmtInvalidPort, ErrInvalidPort, c.Server.Port)
	}

	if c.Chunker.MaxLen < 0 {
		return fmt.Errorf(errFmtNegativeChunkMaxLen, ErrNegativeMaxLen, c.Chunker.MaxLen)
	}

	switch backend := c.StorageBackend(); backend {
	case BackendR2:
		if !c.Secrets.HasR2() {
			return ErrMissingR2Credentials
		}
	case BackendGCS:
		if c.Secrets.GCSBucket == "" {
			return ErrMissingGCSBucket
		}
	case BackendNATS:
		if c.NATS.URL == "" {
			return ErrMissingNATSURL
		}
	case BackendNone:
	default:
		return fmt.Errorf(errFmtUnknownBackend, ErrUnknownBackend, backend)
	}

	return nil
}
