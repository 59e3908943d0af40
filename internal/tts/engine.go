// Package tts turns text into speech: it chunks text into SSML segments,
// synthesizes every segment through a provider, and stores the resulting
// audio.
package tts

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/book-expert/ssml-tts-service/internal/core"
	"github.com/book-expert/ssml-tts-service/internal/tts/audio"
	"github.com/book-expert/ssml-tts-service/internal/tts/ssml"
	"github.com/book-expert/ssml-tts-service/internal/tts/ttsutils"
)

// Concurrency bounds for segment fan-out.
const (
	DefaultConcurrency = 3
	MinConcurrency     = 1
	MaxConcurrency     = 10
)

// Default voice settings.
const (
	DefaultLanguageCode = "en-GB"
	DefaultVoiceName    = "en-GB-Wavenet-B"
)

const storageNone = "none"

// Static errors.
var (
	ErrTextEmpty       = errors.New("text cannot be empty")
	ErrSegmentsFailed  = errors.New("one or more segments failed")
	ErrSynthesizerNil  = errors.New("synthesizer cannot be nil")
	ErrChunkerNil      = errors.New("chunker cannot be nil")
	ErrInvalidSettings = errors.New("invalid audio settings")
)

const (
	// Log formats.
	logFmtProcessingSegments = "Processing %d segments (batch %s, concurrency %d, storage %s)"
	logFmtSegmentProcessed   = "Processed segment %d/%d (%s)"
	logFmtSegmentFailed      = "Failed to process segment %d: %v"
	logFmtBatchProcessed     = "Processed batch %s: %d segments, %s of audio in %s"
	logFmtBucketUnsupported  = "Storage %s cannot switch buckets; ignoring bucket %q"

	// Error formats.
	errFmtSegmentFailed  = "segment %d: %w"
	errFmtSegmentsFailed = "%w: %w"
	errFmtSettings       = "%w: %w"
	errFmtSynthesize     = "synthesis failed: %w"
	errFmtUpload         = "upload of %s failed: %w"
)

// EngineConfig holds the defaults applied to every request.
type EngineConfig struct {
	Voice            core.VoiceConfig
	Audio            core.AudioConfig
	Concurrency      int
	KeyPrefix        string
	SynthesisTimeout time.Duration
}

// Request is a single text-to-speech job.
type Request struct {
	Text         string
	Voice        core.VoiceConfig
	Audio        core.AudioConfig
	Concurrency  int
	ReturnBase64 bool
	Bucket       string
	KeyPrefix    string
	MaxLen       int
}

// ChunkResult describes one synthesized segment.
type ChunkResult struct {
	Index       int    `json:"index"`
	SSML        string `json:"ssml"`
	BytesApprox int    `json:"bytesApprox"`
	AudioBytes  int    `json:"audioBytes"`
	Key         string `json:"key,omitempty"`
	URL         string `json:"url,omitempty"`
	Base64      string `json:"base64,omitempty"`
}

// StorageInfo reports where audio was written.
type StorageInfo struct {
	Backend  string `json:"backend"`
	Uploaded bool   `json:"uploaded"`
}

// Result is the outcome of a job. Chunks are ordered by index.
type Result struct {
	BatchID            string        `json:"batchId"`
	Count              int           `json:"count"`
	Chunks             []ChunkResult `json:"chunks"`
	SummaryBytesApprox int           `json:"summaryBytesApprox"`
	Storage            StorageInfo   `json:"storage"`
}

// Engine chunks text into SSML segments and fans synthesis and upload out
// over a bounded number of goroutines.
type Engine struct {
	config      EngineConfig
	synthesizer core.Synthesizer
	store       core.AudioStore
	chunker     *ssml.Chunker
	logger      *logger.Logger
}

// NewEngine creates an Engine. store may be nil, in which case audio is
// always returned inline as base64.
func NewEngine(
	cfg EngineConfig,
	synthesizer core.Synthesizer,
	store core.AudioStore,
	chunker *ssml.Chunker,
	log *logger.Logger,
) (*Engine, error) {
	if synthesizer == nil {
		return nil, ErrSynthesizerNil
	}

	if chunker == nil {
		return nil, ErrChunkerNil
	}

	if cfg.Voice.LanguageCode == "" {
		cfg.Voice.LanguageCode = DefaultLanguageCode
	}

	if cfg.Voice.Name == "" {
		cfg.Voice.Name = DefaultVoiceName
	}

	cfg.Audio = audio.WithDefaults(cfg.Audio)
	cfg.Concurrency = ClampConcurrency(cfg.Concurrency)

	return &Engine{
		config:      cfg,
		synthesizer: synthesizer,
		store:       store,
		chunker:     chunker,
		logger:      log,
	}, nil
}

// ClampConcurrency maps a requested concurrency into [MinConcurrency,
// MaxConcurrency], using DefaultConcurrency for unset values.
func ClampConcurrency(concurrency int) int {
	switch {
	case concurrency <= 0:
		return DefaultConcurrency
	case concurrency > MaxConcurrency:
		return MaxConcurrency
	default:
		return max(concurrency, MinConcurrency)
	}
}

// Chunk splits text into SSML segments without synthesizing them. A
// positive maxLen overrides the engine's chunk budget.
func (e *Engine) Chunk(text string, maxLen int) []ssml.Segment {
	return e.chunker.Sized(maxLen).Chunk(text)
}

// StorageName names the configured audio store.
func (e *Engine) StorageName() string {
	if e.store == nil {
		return storageNone
	}

	return e.store.Name()
}

// Process runs a job end to end. A failing segment does not cancel its
// siblings; when any segment fails, every failure is returned joined and
// ordered by index.
func (e *Engine) Process(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrTextEmpty
	}

	speech := e.speechTemplate(req)

	err := audio.Validate(speech.Audio)
	if err != nil {
		return nil, fmt.Errorf(errFmtSettings, ErrInvalidSettings, err)
	}

	format, err := audio.FormatForEncoding(speech.Audio.AudioEncoding)
	if err != nil {
		return nil, fmt.Errorf(errFmtSettings, ErrInvalidSettings, err)
	}

	segments := e.Chunk(req.Text, req.MaxLen)
	if len(segments) == 0 {
		return nil, ErrTextEmpty
	}

	job := &batchJob{
		engine:    e,
		request:   req,
		speech:    speech,
		extension: format.Extension(),
		store:     e.storeFor(req.Bucket),
		batchID:   uuid.NewString(),
		keyPrefix: e.keyPrefix(req),
		segments:  segments,
		results:   make([]ChunkResult, len(segments)),
		failures:  make([]error, len(segments)),
		started:   time.Now(),
	}

	return job.run(ctx, e.concurrency(req))
}

func (e *Engine) speechTemplate(req Request) core.SpeechRequest {
	voice := e.config.Voice
	if req.Voice.LanguageCode != "" {
		voice.LanguageCode = req.Voice.LanguageCode
	}

	if req.Voice.Name != "" {
		voice.Name = req.Voice.Name
	}

	if req.Voice.SSMLGender != "" {
		voice.SSMLGender = req.Voice.SSMLGender
	}

	audioCfg := e.config.Audio
	if req.Audio.AudioEncoding != "" {
		audioCfg.AudioEncoding = req.Audio.AudioEncoding
	}

	if req.Audio.SpeakingRate != 0 {
		audioCfg.SpeakingRate = req.Audio.SpeakingRate
	}

	if req.Audio.Pitch != 0 {
		audioCfg.Pitch = req.Audio.Pitch
	}

	if req.Audio.VolumeGainDB != 0 {
		audioCfg.VolumeGainDB = req.Audio.VolumeGainDB
	}

	if req.Audio.SampleRateHertz != 0 {
		audioCfg.SampleRateHertz = req.Audio.SampleRateHertz
	}

	return core.SpeechRequest{Voice: voice, Audio: audio.WithDefaults(audioCfg)}
}

func (e *Engine) concurrency(req Request) int {
	if req.Concurrency != 0 {
		return ClampConcurrency(req.Concurrency)
	}

	return e.config.Concurrency
}

func (e *Engine) keyPrefix(req Request) string {
	if req.KeyPrefix != "" {
		return req.KeyPrefix
	}

	return e.config.KeyPrefix
}

func (e *Engine) storeFor(bucket string) core.AudioStore {
	if e.store == nil || bucket == "" {
		return e.store
	}

	scoped, ok := e.store.(core.BucketScoped)
	if !ok {
		e.logger.Warn(logFmtBucketUnsupported, e.store.Name(), bucket)

		return e.store
	}

	return scoped.WithBucket(bucket)
}

// batchJob is the state of one Process call. Every goroutine writes only to
// its own index of results and failures.
type batchJob struct {
	engine    *Engine
	request   Request
	speech    core.SpeechRequest
	extension string
	store     core.AudioStore
	batchID   string
	keyPrefix string
	segments  []ssml.Segment
	results   []ChunkResult
	failures  []error
	started   time.Time
}

func (j *batchJob) run(ctx context.Context, concurrency int) (*Result, error) {
	log := j.engine.logger
	storageName := j.storageName()

	log.Info(logFmtProcessingSegments, len(j.segments), j.batchID, concurrency, storageName)

	var group errgroup.Group

	group.SetLimit(concurrency)

	for _, segment := range j.segments {
		group.Go(func() error {
			result, err := j.processSegment(ctx, segment)
			if err != nil {
				j.failures[segment.Index] = fmt.Errorf(errFmtSegmentFailed, segment.Index, err)
				log.Error(logFmtSegmentFailed, segment.Index, err)

				return nil
			}

			j.results[segment.Index] = result
			log.Info(logFmtSegmentProcessed, segment.Index+1, len(j.segments),
				ttsutils.FormatFileSize(int64(result.AudioBytes)))

			return nil
		})
	}

	_ = group.Wait()

	joined := errors.Join(j.failures...)
	if joined != nil {
		return nil, fmt.Errorf(errFmtSegmentsFailed, ErrSegmentsFailed, joined)
	}

	return j.result(storageName), nil
}

func (j *batchJob) processSegment(ctx context.Context, segment ssml.Segment) (ChunkResult, error) {
	result := ChunkResult{
		Index:       segment.Index,
		SSML:        segment.SSML,
		BytesApprox: segment.ApproxBytes(),
	}

	speech := j.speech
	speech.SSML = segment.SSML

	synthesisCtx, cancel := j.synthesisContext(ctx)
	audioData, err := j.engine.synthesizer.Synthesize(synthesisCtx, speech)

	cancel()

	if err != nil {
		return result, fmt.Errorf(errFmtSynthesize, err)
	}

	result.AudioBytes = len(audioData)

	if j.uploads() {
		key := ttsutils.ChunkKey(j.keyPrefix, j.batchID, segment.Index, j.extension)

		err = j.store.Upload(ctx, key, audioData)
		if err != nil {
			return result, fmt.Errorf(errFmtUpload, key, err)
		}

		result.Key = key
		result.URL = j.store.URL(key)
	}

	if j.request.ReturnBase64 || !j.uploads() {
		result.Base64 = base64.StdEncoding.EncodeToString(audioData)
	}

	return result, nil
}

func (j *batchJob) synthesisContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if j.engine.config.SynthesisTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, j.engine.config.SynthesisTimeout)
}

// uploads reports whether audio goes to the store. Base64 requests skip the
// upload, and so does an engine without a store.
func (j *batchJob) uploads() bool {
	return j.store != nil && !j.request.ReturnBase64
}

func (j *batchJob) storageName() string {
	if j.store == nil {
		return storageNone
	}

	return j.store.Name()
}

func (j *batchJob) result(storageName string) *Result {
	summary := 0
	audioTotal := 0

	for _, chunk := range j.results {
		summary += chunk.BytesApprox
		audioTotal += chunk.AudioBytes
	}

	j.engine.logger.Info(logFmtBatchProcessed, j.batchID, len(j.results),
		ttsutils.FormatFileSize(int64(audioTotal)),
		ttsutils.FormatDuration(time.Since(j.started).Seconds()))

	return &Result{
		BatchID:            j.batchID,
		Count:              len(j.results),
		Chunks:             j.results,
		SummaryBytesApprox: summary,
		Storage: StorageInfo{
			Backend:  storageName,
			Uploaded: j.uploads(),
		},
	}
}
