package tts_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/go-redis/cache/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/ssml-tts-service/internal/core"
	"github.com/book-expert/ssml-tts-service/internal/tts"
)

var errMockSynthesis = errors.New("mock synthesis error")

// mockSynthesizer returns "audio:" + SSML and records every call.
type mockSynthesizer struct {
	mutex     sync.Mutex
	calls     []core.SpeechRequest
	failOn    map[string]bool
	delay     time.Duration
	inFlight  int
	maxFlight int
}

func (m *mockSynthesizer) Name() string {
	return "mock"
}

func (m *mockSynthesizer) Synthesize(ctx context.Context, req core.SpeechRequest) ([]byte, error) {
	m.mutex.Lock()
	m.calls = append(m.calls, req)
	m.inFlight++
	m.maxFlight = max(m.maxFlight, m.inFlight)
	m.mutex.Unlock()

	defer func() {
		m.mutex.Lock()
		m.inFlight--
		m.mutex.Unlock()
	}()

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if m.failOn[req.SSML] {
		return nil, errMockSynthesis
	}

	return []byte("audio:" + req.SSML), nil
}

func (m *mockSynthesizer) callCount() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return len(m.calls)
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = testLogger.Close() })

	return testLogger
}

func newLocalCache() *cache.Cache {
	return cache.New(&cache.Options{
		LocalCache: cache.NewTinyLFU(100, time.Minute),
	})
}

func TestCachedSynthesizer_HitsAfterFirstCall(t *testing.T) {
	t.Parallel()

	next := &mockSynthesizer{}
	cached := tts.NewCachedSynthesizer(next, newLocalCache(), time.Minute, newTestLogger(t))

	req := core.SpeechRequest{
		SSML:  "<speak>Hello</speak>",
		Voice: core.VoiceConfig{LanguageCode: "en-GB", Name: "en-GB-Wavenet-B"},
	}

	first, err := cached.Synthesize(context.Background(), req)
	require.NoError(t, err)

	second, err := cached.Synthesize(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, next.callCount())
	assert.Equal(t, "mock-cached", cached.Name())
}

func TestCachedSynthesizer_KeyIncludesVoiceAndAudio(t *testing.T) {
	t.Parallel()

	next := &mockSynthesizer{}
	cached := tts.NewCachedSynthesizer(next, newLocalCache(), time.Minute, newTestLogger(t))

	base := core.SpeechRequest{SSML: "<speak>Hello</speak>", Voice: core.VoiceConfig{Name: "a"}}
	otherVoice := base
	otherVoice.Voice.Name = "b"
	otherRate := base
	otherRate.Audio.SpeakingRate = 1.5

	for _, req := range []core.SpeechRequest{base, otherVoice, otherRate, base} {
		_, err := cached.Synthesize(context.Background(), req)
		require.NoError(t, err)
	}

	assert.Equal(t, 3, next.callCount())
}

func TestCachedSynthesizer_ErrorsAreNotCached(t *testing.T) {
	t.Parallel()

	next := &mockSynthesizer{failOn: map[string]bool{"<speak>bad</speak>": true}}
	cached := tts.NewCachedSynthesizer(next, newLocalCache(), time.Minute, newTestLogger(t))

	for range 2 {
		_, err := cached.Synthesize(context.Background(), core.SpeechRequest{SSML: "<speak>bad</speak>"})
		require.ErrorIs(t, err, errMockSynthesis)
	}

	assert.Equal(t, 2, next.callCount())
}
