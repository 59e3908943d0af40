package tts_test

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/ssml-tts-service/internal/core"
	"github.com/book-expert/ssml-tts-service/internal/tts"
	"github.com/book-expert/ssml-tts-service/internal/tts/audio"
	"github.com/book-expert/ssml-tts-service/internal/tts/ssml"
)

const threeParagraphs = "First one.\n\nSecond one.\n\nThird one."

var errMockUpload = errors.New("mock upload error")

// memoryStore is an in-memory AudioStore that can be scoped to a bucket.
type memoryStore struct {
	mutex       *sync.Mutex
	objects     map[string][]byte
	bucket      string
	failUploads bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		mutex:   &sync.Mutex{},
		objects: make(map[string][]byte),
		bucket:  "default",
	}
}

func (m *memoryStore) Download(_ context.Context, key string) ([]byte, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	data, ok := m.objects[m.bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("missing %s", key)
	}

	return data, nil
}

func (m *memoryStore) Upload(_ context.Context, key string, data []byte) error {
	if m.failUploads {
		return errMockUpload
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.objects[m.bucket+"/"+key] = data

	return nil
}

func (m *memoryStore) URL(key string) string {
	return "https://audio.example.com/" + m.bucket + "/" + key
}

func (m *memoryStore) Name() string {
	return "memory"
}

func (m *memoryStore) WithBucket(bucket string) core.AudioStore {
	return &memoryStore{mutex: m.mutex, objects: m.objects, bucket: bucket, failUploads: m.failUploads}
}

func (m *memoryStore) count() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return len(m.objects)
}

func newTestEngine(
	t *testing.T,
	cfg tts.EngineConfig,
	synthesizer core.Synthesizer,
	store core.AudioStore,
) *tts.Engine {
	t.Helper()

	engine, err := tts.NewEngine(cfg, synthesizer, store, ssml.NewChunker(), newTestLogger(t))
	require.NoError(t, err)

	return engine
}

func TestNewEngine_RequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := tts.NewEngine(tts.EngineConfig{}, nil, nil, ssml.NewChunker(), newTestLogger(t))
	require.ErrorIs(t, err, tts.ErrSynthesizerNil)

	_, err = tts.NewEngine(tts.EngineConfig{}, &mockSynthesizer{}, nil, nil, newTestLogger(t))
	require.ErrorIs(t, err, tts.ErrChunkerNil)
}

func TestClampConcurrency(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		input    int
		expected int
	}{
		{input: -4, expected: 3},
		{input: 0, expected: 3},
		{input: 1, expected: 1},
		{input: 7, expected: 7},
		{input: 10, expected: 10},
		{input: 11, expected: 10},
		{input: 500, expected: 10},
	}

	for _, testCase := range testCases {
		assert.Equal(t, testCase.expected, tts.ClampConcurrency(testCase.input), "input %d", testCase.input)
	}
}

func TestEngine_Process_UploadsInOrder(t *testing.T) {
	t.Parallel()

	synthesizer := &mockSynthesizer{}
	store := newMemoryStore()
	engine := newTestEngine(t, tts.EngineConfig{KeyPrefix: "book"}, synthesizer, store)

	result, err := engine.Process(context.Background(), tts.Request{Text: threeParagraphs, MaxLen: 20})
	require.NoError(t, err)

	require.Equal(t, 3, result.Count)
	require.Len(t, result.Chunks, 3)
	assert.Equal(t, tts.StorageInfo{Backend: "memory", Uploaded: true}, result.Storage)
	assert.Equal(t, 3, store.count())

	keyPattern := regexp.MustCompile(`^book-[0-9a-f-]{36}-00\d\.mp3$`)
	expectedSSML := []string{
		"<speak>First one.</speak>",
		"<speak>Second one.</speak>",
		"<speak>Third one.</speak>",
	}

	summary := 0

	for i, chunk := range result.Chunks {
		assert.Equal(t, i, chunk.Index)
		assert.Equal(t, expectedSSML[i], chunk.SSML)
		assert.Regexp(t, keyPattern, chunk.Key)
		assert.Contains(t, chunk.Key, fmt.Sprintf("-%03d.mp3", i))
		assert.Equal(t, "https://audio.example.com/default/"+chunk.Key, chunk.URL)
		assert.Empty(t, chunk.Base64)
		assert.Equal(t, len("audio:"+chunk.SSML), chunk.AudioBytes)

		stored, downloadErr := store.Download(context.Background(), chunk.Key)
		require.NoError(t, downloadErr)
		assert.Equal(t, []byte("audio:"+chunk.SSML), stored)

		summary += chunk.BytesApprox
	}

	assert.Equal(t, summary, result.SummaryBytesApprox)
}

func TestEngine_Process_Base64(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		store        *memoryStore
		returnBase64 bool
		backend      string
	}{
		{name: "requested", store: newMemoryStore(), returnBase64: true, backend: "memory"},
		{name: "no store configured", store: nil, returnBase64: false, backend: "none"},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			var store core.AudioStore
			if testCase.store != nil {
				store = testCase.store
			}

			engine := newTestEngine(t, tts.EngineConfig{}, &mockSynthesizer{}, store)

			result, err := engine.Process(context.Background(), tts.Request{
				Text:         "Hello world.",
				ReturnBase64: testCase.returnBase64,
			})
			require.NoError(t, err)
			require.Len(t, result.Chunks, 1)

			decoded, err := base64.StdEncoding.DecodeString(result.Chunks[0].Base64)
			require.NoError(t, err)
			assert.Equal(t, "audio:<speak>Hello world.</speak>", string(decoded))
			assert.Empty(t, result.Chunks[0].URL)
			assert.Equal(t, tts.StorageInfo{Backend: testCase.backend, Uploaded: false}, result.Storage)

			if testCase.store != nil {
				assert.Zero(t, testCase.store.count())
			}
		})
	}
}

func TestEngine_Process_EmptyText(t *testing.T) {
	t.Parallel()

	synthesizer := &mockSynthesizer{}
	engine := newTestEngine(t, tts.EngineConfig{}, synthesizer, nil)

	for _, input := range []string{"", "   ", "\n\n", "\u200b"} {
		_, err := engine.Process(context.Background(), tts.Request{Text: input})
		require.ErrorIs(t, err, tts.ErrTextEmpty, "input %q", input)
	}

	assert.Zero(t, synthesizer.callCount())
}

func TestEngine_Process_FailuresAreJoined(t *testing.T) {
	t.Parallel()

	synthesizer := &mockSynthesizer{failOn: map[string]bool{
		"<speak>First one.</speak>": true,
		"<speak>Third one.</speak>": true,
	}}
	store := newMemoryStore()
	engine := newTestEngine(t, tts.EngineConfig{}, synthesizer, store)

	result, err := engine.Process(context.Background(), tts.Request{Text: threeParagraphs, MaxLen: 20})
	require.Error(t, err)
	assert.Nil(t, result)

	require.ErrorIs(t, err, tts.ErrSegmentsFailed)
	require.ErrorIs(t, err, errMockSynthesis)
	assert.Contains(t, err.Error(), "segment 0")
	assert.Contains(t, err.Error(), "segment 2")
	assert.NotContains(t, err.Error(), "segment 1")
	assert.Less(t, strings.Index(err.Error(), "segment 0"), strings.Index(err.Error(), "segment 2"))

	assert.Equal(t, 3, synthesizer.callCount(), "siblings keep running after a failure")
	assert.Equal(t, 1, store.count())
}

func TestEngine_Process_UploadFailure(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	store.failUploads = true
	engine := newTestEngine(t, tts.EngineConfig{}, &mockSynthesizer{}, store)

	_, err := engine.Process(context.Background(), tts.Request{Text: "Hello."})
	require.ErrorIs(t, err, tts.ErrSegmentsFailed)
	require.ErrorIs(t, err, errMockUpload)
}

func TestEngine_Process_ConcurrencyLimit(t *testing.T) {
	t.Parallel()

	synthesizer := &mockSynthesizer{delay: 20 * time.Millisecond}
	engine := newTestEngine(t, tts.EngineConfig{}, synthesizer, nil)

	text := ""
	for i := range 8 {
		text += fmt.Sprintf("Paragraph number %d.\n\n", i)
	}

	result, err := engine.Process(context.Background(), tts.Request{Text: text, MaxLen: 22, Concurrency: 2})
	require.NoError(t, err)

	assert.Equal(t, 8, result.Count)
	assert.LessOrEqual(t, synthesizer.maxFlight, 2)
	assert.GreaterOrEqual(t, synthesizer.maxFlight, 1)
}

func TestEngine_Process_VoiceAndAudioSettings(t *testing.T) {
	t.Parallel()

	synthesizer := &mockSynthesizer{}
	engine := newTestEngine(t, tts.EngineConfig{
		Audio: core.AudioConfig{SpeakingRate: 0.9},
	}, synthesizer, newMemoryStore())

	_, err := engine.Process(context.Background(), tts.Request{Text: "Defaults."})
	require.NoError(t, err)

	_, err = engine.Process(context.Background(), tts.Request{
		Text:  "Overrides.",
		Voice: core.VoiceConfig{LanguageCode: "en-US", Name: "en-US-Neural2-F", SSMLGender: "FEMALE"},
		Audio: core.AudioConfig{AudioEncoding: "OGG_OPUS", Pitch: 2},
	})
	require.NoError(t, err)

	require.Len(t, synthesizer.calls, 2)

	defaults := synthesizer.calls[0]
	assert.Equal(t, core.VoiceConfig{LanguageCode: "en-GB", Name: "en-GB-Wavenet-B"}, defaults.Voice)
	assert.Equal(t, audio.ENCODING_MP3, defaults.Audio.AudioEncoding)
	assert.InEpsilon(t, 0.9, defaults.Audio.SpeakingRate, 0.001)

	overrides := synthesizer.calls[1]
	assert.Equal(t, "en-US-Neural2-F", overrides.Voice.Name)
	assert.Equal(t, "FEMALE", overrides.Voice.SSMLGender)
	assert.Equal(t, audio.ENCODING_OGG_OPUS, overrides.Audio.AudioEncoding)
	assert.InEpsilon(t, 0.9, overrides.Audio.SpeakingRate, 0.001)
	assert.InEpsilon(t, 2.0, overrides.Audio.Pitch, 0.001)
}

func TestEngine_Process_OggKeysUseOggExtension(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, tts.EngineConfig{}, &mockSynthesizer{}, newMemoryStore())

	result, err := engine.Process(context.Background(), tts.Request{
		Text:  "Hi.",
		Audio: core.AudioConfig{AudioEncoding: "OGG_OPUS"},
	})
	require.NoError(t, err)
	assert.Regexp(t, `-000\.ogg$`, result.Chunks[0].Key)
}

func TestEngine_Process_InvalidSettings(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, tts.EngineConfig{}, &mockSynthesizer{}, nil)

	_, err := engine.Process(context.Background(), tts.Request{
		Text:  "Hello.",
		Audio: core.AudioConfig{AudioEncoding: "WMA"},
	})
	require.ErrorIs(t, err, tts.ErrInvalidSettings)
	require.ErrorIs(t, err, audio.ErrUnsupportedEncoding)

	_, err = engine.Process(context.Background(), tts.Request{
		Text:  "Hello.",
		Audio: core.AudioConfig{SpeakingRate: 9},
	})
	require.ErrorIs(t, err, audio.ErrInvalidQuality)
}

func TestEngine_Process_BucketOverride(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	engine := newTestEngine(t, tts.EngineConfig{}, &mockSynthesizer{}, store)

	result, err := engine.Process(context.Background(), tts.Request{Text: "Hello.", Bucket: "podcasts"})
	require.NoError(t, err)

	assert.Contains(t, result.Chunks[0].URL, "/podcasts/")
	assert.Equal(t, "memory", engine.StorageName())
}

func TestEngine_Chunk(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, tts.EngineConfig{}, &mockSynthesizer{}, nil)

	assert.Len(t, engine.Chunk(threeParagraphs, 20), 3)
	assert.Len(t, engine.Chunk(threeParagraphs, 0), 1)
}
