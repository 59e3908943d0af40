// Package worker provides a NATS worker that turns processed page text into
// chunked speech.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/ssml-tts-service/internal/core"
	"github.com/book-expert/ssml-tts-service/internal/tts"
	"github.com/book-expert/ssml-tts-service/internal/tts/ttsutils"
)

// DefaultMessageTimeout bounds the handling of one event.
const DefaultMessageTimeout = 5 * time.Minute

var (
	// ErrTextKeyEmpty indicates an event without a text key.
	ErrTextKeyEmpty = errors.New("text key cannot be empty")
	// ErrWorkflowIDEmpty indicates an event without a workflow id.
	ErrWorkflowIDEmpty = errors.New("workflow id cannot be empty")
	// ErrEngineNil indicates a worker created without an engine.
	ErrEngineNil = errors.New("engine cannot be nil")
	// ErrStoreNil indicates a worker created without an object store.
	ErrStoreNil = errors.New("object store cannot be nil")
)

const (
	logFmtSubscribed    = "Listening for text events on %s"
	logFmtInvalidEvent  = "Failed to parse and validate event: %v"
	logFmtJobFailed     = "Failed to process TTS job for workflow %s: %v"
	logFmtReplyFailed   = "Failed to publish reply event for workflow %s: %v"
	logFmtJobDone       = "Workflow %s page %d: %d chunks, manifest %s"
	logFmtPublishFailed = "Failed to publish audio event for workflow %s: %v"
)

// Manifest lists the audio chunks produced for one workflow page.
type Manifest struct {
	WorkflowID string          `json:"workflowId"`
	TextKey    string          `json:"textKey"`
	PageNumber int             `json:"pageNumber"`
	TotalPages int             `json:"totalPages"`
	Voice      string          `json:"voice,omitempty"`
	BatchID    string          `json:"batchId"`
	Storage    tts.StorageInfo `json:"storage"`
	Chunks     []ManifestChunk `json:"chunks"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// ManifestChunk is one entry of a Manifest.
type ManifestChunk struct {
	Index       int    `json:"index"`
	Key         string `json:"key,omitempty"`
	URL         string `json:"url,omitempty"`
	BytesApprox int    `json:"bytesApprox"`
	AudioBytes  int    `json:"audioBytes"`
}

// NatsWorker listens for TTS jobs on a NATS subject and processes them.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	publishSubject string
	textStore      core.ObjectStore
	manifestStore  core.ObjectStore
	engine         *tts.Engine
	timeout        time.Duration
	log            *logger.Logger
	ready          chan struct{}
}

// Option configures a NatsWorker.
type Option func(*NatsWorker)

// WithPublishSubject also publishes every reply event on subject, for
// consumers that are not the requester.
func WithPublishSubject(subject string) Option {
	return func(w *NatsWorker) {
		w.publishSubject = subject
	}
}

// WithMessageTimeout overrides DefaultMessageTimeout.
func WithMessageTimeout(timeout time.Duration) Option {
	return func(w *NatsWorker) {
		if timeout > 0 {
			w.timeout = timeout
		}
	}
}

// NewNatsWorker creates a worker. Text is read from textStore and manifests
// are written to manifestStore.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	textStore core.ObjectStore,
	manifestStore core.ObjectStore,
	engine *tts.Engine,
	log *logger.Logger,
	opts ...Option,
) (*NatsWorker, error) {
	if engine == nil {
		return nil, ErrEngineNil
	}

	if textStore == nil || manifestStore == nil {
		return nil, ErrStoreNil
	}

	worker := &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		textStore:      textStore,
		manifestStore:  manifestStore,
		engine:         engine,
		timeout:        DefaultMessageTimeout,
		log:            log,
		ready:          make(chan struct{}),
	}

	for _, opt := range opts {
		opt(worker)
	}

	return worker, nil
}

// Run starts the worker and blocks until ctx is cancelled, then drains the
// subscription.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	w.log.Info(logFmtSubscribed, w.subject)
	close(w.ready)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

// Ready is closed once Run has subscribed.
func (w *NatsWorker) Ready() <-chan struct{} {
	return w.ready
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	event, err := w.parseAndValidateEvent(msg)
	if err != nil {
		w.log.Error(logFmtInvalidEvent, err)

		return
	}

	manifestKey, processErr := w.processTTSJob(ctx, event)
	if processErr != nil {
		w.log.Error(logFmtJobFailed, event.Header.WorkflowID, processErr)

		return
	}

	replyEvent := &events.AudioChunkCreatedEvent{
		Header:     event.Header,
		AudioKey:   manifestKey,
		PageNumber: event.PageNumber,
		TotalPages: event.TotalPages,
	}

	err = w.publishReplyEvent(msg, replyEvent)
	if err != nil {
		w.log.Error(logFmtReplyFailed, event.Header.WorkflowID, err)
	}
}

// processTTSJob downloads the page text, synthesizes it chunk by chunk and
// uploads a manifest of the resulting audio.
func (w *NatsWorker) processTTSJob(ctx context.Context, event *events.TextProcessedEvent) (string, error) {
	textData, err := w.textStore.Download(ctx, event.TextKey)
	if err != nil {
		return "", fmt.Errorf("failed to download text data for key '%s': %w", event.TextKey, err)
	}

	result, err := w.engine.Process(ctx, tts.Request{
		Text:      string(textData),
		Voice:     core.VoiceConfig{Name: event.Voice},
		KeyPrefix: event.Header.WorkflowID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to process text to speech: %w", err)
	}

	manifest := newManifest(event, result)

	manifestData, err := json.Marshal(manifest)
	if err != nil {
		return "", fmt.Errorf("failed to marshal manifest: %w", err)
	}

	manifestKey := ttsutils.ManifestKey(event.Header.WorkflowID)

	err = w.manifestStore.Upload(ctx, manifestKey, manifestData)
	if err != nil {
		return "", fmt.Errorf("failed to upload manifest for key '%s': %w", manifestKey, err)
	}

	w.log.Info(logFmtJobDone, event.Header.WorkflowID, event.PageNumber, result.Count, manifestKey)

	return manifestKey, nil
}

func newManifest(event *events.TextProcessedEvent, result *tts.Result) Manifest {
	chunks := make([]ManifestChunk, 0, len(result.Chunks))

	for _, chunk := range result.Chunks {
		chunks = append(chunks, ManifestChunk{
			Index:       chunk.Index,
			Key:         chunk.Key,
			URL:         chunk.URL,
			BytesApprox: chunk.BytesApprox,
			AudioBytes:  chunk.AudioBytes,
		})
	}

	return Manifest{
		WorkflowID: event.Header.WorkflowID,
		TextKey:    event.TextKey,
		PageNumber: event.PageNumber,
		TotalPages: event.TotalPages,
		Voice:      event.Voice,
		BatchID:    result.BatchID,
		Storage:    result.Storage,
		Chunks:     chunks,
		CreatedAt:  time.Now().UTC(),
	}
}

// publishReplyEvent marshals and responds with the AudioChunkCreatedEvent.
func (w *NatsWorker) publishReplyEvent(msg *nats.Msg, replyEvent *events.AudioChunkCreatedEvent) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	if w.publishSubject != "" {
		publishErr := w.natsConnection.Publish(w.publishSubject, replyData)
		if publishErr != nil {
			w.log.Warn(logFmtPublishFailed, replyEvent.Header.WorkflowID, publishErr)
		}
	}

	if msg.Reply == "" {
		return nil
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}

func (w *NatsWorker) parseAndValidateEvent(msg *nats.Msg) (*events.TextProcessedEvent, error) {
	var event events.TextProcessedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	if event.TextKey == "" {
		return nil, ErrTextKeyEmpty
	}

	if event.Header.WorkflowID == "" {
		return nil, ErrWorkflowIDEmpty
	}

	return &event, nil
}
