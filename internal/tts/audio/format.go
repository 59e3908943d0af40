// Package audio maps provider audio encodings to file formats and validates
// the audio settings of a synthesis request.
package audio

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/book-expert/ssml-tts-service/internal/core"
)

// Provider encoding names.
const (
	ENCODING_MP3       = "MP3"
	ENCODING_LINEAR16  = "LINEAR16"
	ENCODING_OGG_OPUS  = "OGG_OPUS"
	ENCODING_MULAW     = "MULAW"
	ENCODING_ALAW      = "ALAW"
	ENCODING_PCM       = "PCM"
	ENCODING_M4A       = "M4A"
	DEFAULT_ENCODING   = ENCODING_MP3
	DEFAULT_SPEAK_RATE = 1.0
)

// Constants for quality validation limits.
const (
	MIN_SPEAKING_RATE = 0.25
	MAX_SPEAKING_RATE = 4.0
	MAX_PITCH         = 20.0
	MIN_VOLUME_GAIN   = -96.0
	MAX_VOLUME_GAIN   = 16.0
	MAX_SAMPLE_RATE   = 192000
)

// Constants for error messages and formats.
const (
	ERR_FMT_ENCODING          = "%w: %q"
	ERR_FMT_SPEAKING_RATE     = "%w: speaking rate must be between %.2f and %.1f"
	ERR_FMT_PITCH_RANGE       = "%w: pitch must be between -%.1f and %.1f"
	ERR_FMT_VOLUME_GAIN_RANGE = "%w: volume gain must be between %.1f and %.1f dB"
	ERR_FMT_SAMPLE_RATE_RANGE = "%w: sample rate must be between 0 and %d Hz"
)

// Common errors for the audio package.
var (
	ErrUnsupportedEncoding = errors.New("unsupported audio encoding")
	ErrInvalidQuality      = errors.New("invalid audio settings")
)

// Format represents a stored audio file format.
type Format string

const (
	FORMAT_MP3 Format = "mp3"
	FORMAT_WAV Format = "wav"
	FORMAT_OGG Format = "ogg"
	FORMAT_M4A Format = "m4a"
	FORMAT_RAW Format = "raw"
)

var encodingFormats = map[string]Format{
	ENCODING_MP3:      FORMAT_MP3,
	ENCODING_LINEAR16: FORMAT_WAV,
	ENCODING_OGG_OPUS: FORMAT_OGG,
	ENCODING_MULAW:    FORMAT_WAV,
	ENCODING_ALAW:     FORMAT_WAV,
	ENCODING_PCM:      FORMAT_RAW,
	ENCODING_M4A:      FORMAT_M4A,
}

// CONTENT_TYPE_JSON is the content type of manifests stored next to audio.
const CONTENT_TYPE_JSON = "application/json"

var formatMIMETypes = map[Format]string{
	FORMAT_MP3: "audio/mpeg",
	FORMAT_WAV: "audio/wav",
	FORMAT_OGG: "audio/ogg",
	FORMAT_M4A: "audio/mp4",
	FORMAT_RAW: "application/octet-stream",
}

// NormalizeEncoding upper-cases an encoding name and substitutes the default
// for an empty one.
func NormalizeEncoding(encoding string) string {
	encoding = strings.ToUpper(strings.TrimSpace(encoding))
	if encoding == "" {
		return DEFAULT_ENCODING
	}

	return encoding
}

// FormatForEncoding returns the file format produced by a provider encoding.
func FormatForEncoding(encoding string) (Format, error) {
	format, ok := encodingFormats[NormalizeEncoding(encoding)]
	if !ok {
		return "", fmt.Errorf(ERR_FMT_ENCODING, ErrUnsupportedEncoding, encoding)
	}

	return format, nil
}

// Extension returns the file extension of the format, including the dot.
func (f Format) Extension() string {
	return "." + string(f)
}

// MIMEType returns the content type used when the format is uploaded.
func (f Format) MIMEType() string {
	if mimeType, ok := formatMIMETypes[f]; ok {
		return mimeType
	}

	return formatMIMETypes[FORMAT_RAW]
}

// ContentTypeForKey returns the content type of an object key from its
// extension. JSON manifests and unknown extensions are handled too.
func ContentTypeForKey(key string) string {
	extension := strings.ToLower(strings.TrimPrefix(path.Ext(key), "."))
	if extension == "json" {
		return CONTENT_TYPE_JSON
	}

	return Format(extension).MIMEType()
}

// WithDefaults returns cfg with the default encoding and speaking rate filled in.
func WithDefaults(cfg core.AudioConfig) core.AudioConfig {
	cfg.AudioEncoding = NormalizeEncoding(cfg.AudioEncoding)

	if cfg.SpeakingRate == 0 {
		cfg.SpeakingRate = DEFAULT_SPEAK_RATE
	}

	return cfg
}

// Validate checks that the audio settings are within the provider's bounds.
func Validate(cfg core.AudioConfig) error {
	_, err := FormatForEncoding(cfg.AudioEncoding)
	if err != nil {
		return err
	}

	validators := []func(core.AudioConfig) error{
		validateSpeakingRate,
		validatePitch,
		validateVolumeGain,
		validateSampleRate,
	}

	for _, validate := range validators {
		err = validate(cfg)
		if err != nil {
			return err
		}
	}

	return nil
}

//
// Validation Helpers
//

func validateSpeakingRate(cfg core.AudioConfig) error {
	if cfg.SpeakingRate == 0 {
		return nil
	}

	if cfg.SpeakingRate < MIN_SPEAKING_RATE || cfg.SpeakingRate > MAX_SPEAKING_RATE {
		return fmt.Errorf(ERR_FMT_SPEAKING_RATE, ErrInvalidQuality, MIN_SPEAKING_RATE, MAX_SPEAKING_RATE)
	}

	return nil
}

func validatePitch(cfg core.AudioConfig) error {
	if cfg.Pitch < -MAX_PITCH || cfg.Pitch > MAX_PITCH {
		return fmt.Errorf(ERR_FMT_PITCH_RANGE, ErrInvalidQuality, MAX_PITCH, MAX_PITCH)
	}

	return nil
}

func validateVolumeGain(cfg core.AudioConfig) error {
	if cfg.VolumeGainDB < MIN_VOLUME_GAIN || cfg.VolumeGainDB > MAX_VOLUME_GAIN {
		return fmt.Errorf(ERR_FMT_VOLUME_GAIN_RANGE, ErrInvalidQuality, MIN_VOLUME_GAIN, MAX_VOLUME_GAIN)
	}

	return nil
}

func validateSampleRate(cfg core.AudioConfig) error {
	if cfg.SampleRateHertz < 0 || cfg.SampleRateHertz > MAX_SAMPLE_RATE {
		return fmt.Errorf(ERR_FMT_SAMPLE_RATE_RANGE, ErrInvalidQuality, MAX_SAMPLE_RATE)
	}

	return nil
}
