package tts

import (
	"context"
	"encoding/hex"
	"errors"
	"hash/fnv"
	"strconv"
	"time"

	"github.com/book-expert/logger"
	"github.com/go-redis/cache/v9"

	"github.com/book-expert/ssml-tts-service/internal/core"
)

const (
	cachedSuffix      = "-cached"
	cacheKeyPrefix    = "ssml-tts:"
	cacheKeySeparator = "\x00"
	logFmtCacheHit    = "Synthesis cache hit: %s"
	logFmtCacheGetErr = "Synthesis cache lookup failed for %s: %v"
	logFmtCacheSetErr = "Failed to cache synthesized audio for %s: %v"
)

// CachedSynthesizer wraps a Synthesizer and stores its audio in a two-tier
// cache (in-process TinyLFU plus optional Redis), keyed by a hash of the
// provider, voice, audio settings and SSML.
type CachedSynthesizer struct {
	next  core.Synthesizer
	cache *cache.Cache
	ttl   time.Duration
	log   *logger.Logger
}

var _ core.Synthesizer = (*CachedSynthesizer)(nil)

// NewCachedSynthesizer creates a caching decorator around next.
func NewCachedSynthesizer(
	next core.Synthesizer,
	audioCache *cache.Cache,
	ttl time.Duration,
	log *logger.Logger,
) *CachedSynthesizer {
	return &CachedSynthesizer{
		next:  next,
		cache: audioCache,
		ttl:   ttl,
		log:   log,
	}
}

// Name identifies the wrapped provider.
func (c *CachedSynthesizer) Name() string {
	return c.next.Name() + cachedSuffix
}

// Synthesize returns cached audio when present, otherwise synthesizes and
// stores the result. Cache failures never fail the request.
func (c *CachedSynthesizer) Synthesize(ctx context.Context, req core.SpeechRequest) ([]byte, error) {
	key := c.cacheKey(req)

	var audioData []byte

	err := c.cache.Get(ctx, key, &audioData)
	if err == nil && len(audioData) > 0 {
		c.log.Info(logFmtCacheHit, key)

		return audioData, nil
	}

	if err != nil && !errors.Is(err, cache.ErrCacheMiss) {
		c.log.Warn(logFmtCacheGetErr, key, err)
	}

	audioData, err = c.next.Synthesize(ctx, req)
	if err != nil {
		return nil, err
	}

	setErr := c.cache.Set(&cache.Item{
		Ctx:   ctx,
		Key:   key,
		Value: audioData,
		TTL:   c.ttl,
	})
	if setErr != nil {
		c.log.Warn(logFmtCacheSetErr, key, setErr)
	}

	return audioData, nil
}

func (c *CachedSynthesizer) cacheKey(req core.SpeechRequest) string {
	hash := fnv.New64a()

	for _, part := range []string{
		c.next.Name(),
		req.Voice.LanguageCode,
		req.Voice.Name,
		req.Voice.SSMLGender,
		req.Audio.AudioEncoding,
		strconv.FormatFloat(req.Audio.SpeakingRate, 'g', -1, 64),
		strconv.FormatFloat(req.Audio.Pitch, 'g', -1, 64),
		strconv.FormatFloat(req.Audio.VolumeGainDB, 'g', -1, 64),
		strconv.FormatInt(int64(req.Audio.SampleRateHertz), 10),
		req.SSML,
	} {
		_, _ = hash.Write([]byte(part))
		_, _ = hash.Write([]byte(cacheKeySeparator))
	}

	return cacheKeyPrefix + hex.EncodeToString(hash.Sum(nil))
}
