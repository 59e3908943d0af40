package main

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/storage"
	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"github.com/book-expert/logger"
	"github.com/go-redis/cache/v9"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"

	"github.com/book-expert/ssml-tts-service/internal/config"
	"github.com/book-expert/ssml-tts-service/internal/core"
	"github.com/book-expert/ssml-tts-service/internal/objectstore"
	"github.com/book-expert/ssml-tts-service/internal/tts"
	"github.com/book-expert/ssml-tts-service/internal/tts/ssml"
	"github.com/book-expert/ssml-tts-service/internal/tts/text"
	"github.com/book-expert/ssml-tts-service/internal/worker"
)

const natsClientName = "ssml-tts-service"

var errNoManifestStore = errors.New("worker needs an audio store or nats.audio_object_store_bucket for manifests")

// app holds every long-lived client. close releases them in reverse order.
type app struct {
	synthesizer core.Synthesizer
	longAudio   core.LongAudioSynthesizer
	engine      *tts.Engine
	worker      *worker.NatsWorker
	nats        *nats.Conn
	closers     []func() error
	log         *logger.Logger
}

func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app, error) {
	application := &app{log: log}

	err := application.init(ctx, cfg)
	if err != nil {
		application.close()

		return nil, err
	}

	return application, nil
}

func (a *app) init(ctx context.Context, cfg *config.Config) error {
	googleOpts := googleClientOptions(cfg.Secrets)

	ttsClient, err := texttospeech.NewClient(ctx, googleOpts...)
	if err != nil {
		return fmt.Errorf("failed to create text-to-speech client: %w", err)
	}

	a.closers = append(a.closers, ttsClient.Close)
	a.synthesizer = a.withCache(cfg, tts.NewGoogleSynthesizer(ttsClient))

	longAudioClient, err := texttospeech.NewTextToSpeechLongAudioSynthesizeClient(ctx, googleOpts...)
	if err != nil {
		a.log.Warn("Long audio synthesis disabled: %v", err)
	} else {
		a.closers = append(a.closers, longAudioClient.Close)
		a.longAudio = tts.NewGoogleLongAudio(longAudioClient, cfg.Secrets.ProjectNumber)
	}

	var jetstreamContext nats.JetStreamContext

	if cfg.NATS.URL != "" {
		jetstreamContext, err = a.connectNATS(cfg.NATS.URL)
		if err != nil {
			return err
		}
	}

	store, err := a.audioStore(ctx, cfg, googleOpts, jetstreamContext)
	if err != nil {
		return err
	}

	a.engine, err = tts.NewEngine(engineConfig(cfg), a.synthesizer, store, newChunker(cfg.Chunker), a.log)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	return a.initWorker(cfg, store, jetstreamContext)
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		err := a.closers[i]()
		if err != nil {
			a.log.Warn("Failed to close client: %v", err)
		}
	}

	a.closers = nil
}

func googleClientOptions(secrets config.Secrets) []option.ClientOption {
	switch {
	case secrets.GoogleCredentials != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(secrets.GoogleCredentials))}
	case secrets.GoogleCredentialsFile != "":
		return []option.ClientOption{option.WithCredentialsFile(secrets.GoogleCredentialsFile)}
	default:
		return nil
	}
}

// withCache wraps the synthesizer in a TinyLFU cache, backed by Redis when
// REDIS_URL is set.
func (a *app) withCache(cfg *config.Config, synthesizer core.Synthesizer) core.Synthesizer {
	if !cfg.Cache.Enabled {
		return synthesizer
	}

	options := &cache.Options{
		LocalCache: cache.NewTinyLFU(cfg.Cache.LocalSize, cfg.Cache.TTL()),
	}

	if cfg.Secrets.RedisURL != "" {
		redisOptions, err := redis.ParseURL(cfg.Secrets.RedisURL)
		if err != nil {
			a.log.Warn("Ignoring invalid REDIS_URL, using local cache only: %v", err)
		} else {
			client := redis.NewClient(redisOptions)
			a.closers = append(a.closers, client.Close)
			options.Redis = client
		}
	}

	return tts.NewCachedSynthesizer(synthesizer, cache.New(options), cfg.Cache.TTL(), a.log)
}

func (a *app) connectNATS(url string) (nats.JetStreamContext, error) {
	natsConnection, err := nats.Connect(url, nats.Name(natsClientName))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	a.nats = natsConnection
	a.closers = append(a.closers, func() error {
		return natsConnection.Drain()
	})

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return jetstreamContext, nil
}

func (a *app) audioStore(
	ctx context.Context,
	cfg *config.Config,
	googleOpts []option.ClientOption,
	jetstreamContext nats.JetStreamContext,
) (core.AudioStore, error) {
	switch backend := cfg.StorageBackend(); backend {
	case config.BackendR2:
		client, err := objectstore.NewR2Client(ctx, objectstore.R2Credentials{
			Endpoint:        cfg.Secrets.R2Endpoint,
			AccessKeyID:     cfg.Secrets.R2AccessKeyID,
			SecretAccessKey: cfg.Secrets.R2SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}

		return objectstore.NewS3Store(client, cfg.Secrets.R2BucketOrName(), publicBaseURL(cfg))
	case config.BackendGCS:
		client, err := storage.NewClient(ctx, googleOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}

		a.closers = append(a.closers, client.Close)

		return objectstore.NewGCSStore(client, cfg.Secrets.GCSBucket, cfg.Storage.MakePublic)
	case config.BackendNATS:
		if jetstreamContext == nil {
			return nil, config.ErrMissingNATSURL
		}

		store, err := objectstore.New(jetstreamContext, cfg.NATS.AudioObjectStoreBucket)
		if err != nil {
			return nil, err
		}

		return store.WithPublicBaseURL(cfg.Storage.PublicBaseURL), nil
	default:
		a.log.Warn("No audio storage configured; audio is returned inline as base64.")

		return nil, nil
	}
}

func publicBaseURL(cfg *config.Config) string {
	if cfg.Secrets.R2PublicBaseURL != "" {
		return cfg.Secrets.R2PublicBaseURL
	}

	return cfg.Storage.PublicBaseURL
}

// initWorker starts the NATS worker when text events and a text bucket are
// configured. Manifests go to the audio store, or to the NATS audio bucket
// when audio is not stored.
func (a *app) initWorker(cfg *config.Config, store core.AudioStore, jetstreamContext nats.JetStreamContext) error {
	if jetstreamContext == nil || cfg.NATS.TextProcessedSubject == "" || cfg.NATS.TextObjectStoreBucket == "" {
		return nil
	}

	textStore, err := objectstore.New(jetstreamContext, cfg.NATS.TextObjectStoreBucket)
	if err != nil {
		return err
	}

	var manifestStore core.ObjectStore = store

	if store == nil {
		if cfg.NATS.AudioObjectStoreBucket == "" {
			return errNoManifestStore
		}

		manifestStore, err = objectstore.New(jetstreamContext, cfg.NATS.AudioObjectStoreBucket)
		if err != nil {
			return err
		}
	}

	a.worker, err = worker.NewNatsWorker(
		a.nats,
		cfg.NATS.TextProcessedSubject,
		textStore,
		manifestStore,
		a.engine,
		a.log,
		worker.WithPublishSubject(cfg.NATS.AudioChunkCreatedSubject),
	)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	return nil
}

func engineConfig(cfg *config.Config) tts.EngineConfig {
	return tts.EngineConfig{
		Voice: core.VoiceConfig{
			LanguageCode: cfg.TTS.LanguageCode,
			Name:         cfg.TTS.VoiceName,
		},
		Audio: core.AudioConfig{
			AudioEncoding: cfg.TTS.AudioEncoding,
			SpeakingRate:  cfg.TTS.SpeakingRate,
		},
		Concurrency:      cfg.TTS.Concurrency,
		KeyPrefix:        cfg.Storage.KeyPrefix,
		SynthesisTimeout: cfg.TTS.Timeout(),
	}
}

func newChunker(cfg config.ChunkerConfig) *ssml.Chunker {
	opts := []ssml.ChunkerOption{
		ssml.WithMaxLen(cfg.MaxLen),
		ssml.WithPause(cfg.Pause()),
	}

	if cfg.ASCIIOnly {
		opts = append(opts, ssml.WithNormalizer(text.NewNormalizer(text.WithASCIIOnly())))
	}

	return ssml.NewChunker(opts...)
}
