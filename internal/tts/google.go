package tts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/book-expert/ssml-tts-service/internal/core"
	"github.com/book-expert/ssml-tts-service/internal/tts/audio"
)

const (
	googleSynthesizerName = "google-cloud-text-to-speech"
	errFmtOperationName   = "%w: %s"
	longAudioParentFormat = "projects/%s/locations/global"

	errFmtGoogleSynthesize  = "failed to synthesize speech: %w"
	errFmtStartLongAudio    = "failed to start long audio synthesis: %w"
	errFmtPollLongAudio     = "failed to poll long audio operation %s: %w"
	errFmtLongAudioMetadata = "failed to read long audio metadata for %s: %w"
	errFmtUnknownGender     = "%w: %q"
)

var (
	// ErrEmptyAudio indicates that the provider returned no audio content.
	ErrEmptyAudio = errors.New("provider returned empty audio")
	// ErrUnknownGender indicates an SSML voice gender the provider does not know.
	ErrUnknownGender = errors.New("unknown ssml voice gender")
	// ErrOperationNotFound indicates that a long-audio operation does not exist.
	ErrOperationNotFound = errors.New("long audio operation not found")
	// ErrLongAudioInput indicates a long-audio request without input text or SSML.
	ErrLongAudioInput = errors.New("long audio request requires input text or ssml")
	// ErrLongAudioOutput indicates a long-audio request without an output URI.
	ErrLongAudioOutput = errors.New("long audio request requires outputGcsUri")
	// ErrLongAudioProject indicates a long-audio request without a project number.
	ErrLongAudioProject = errors.New("long audio request requires a project number")
)

type synthesizeFunc func(
	ctx context.Context,
	req *texttospeechpb.SynthesizeSpeechRequest,
) (*texttospeechpb.SynthesizeSpeechResponse, error)

// GoogleSynthesizer implements core.Synthesizer with Google Cloud
// Text-to-Speech. Input is always sent as SSML.
type GoogleSynthesizer struct {
	synthesize synthesizeFunc
}

var _ core.Synthesizer = (*GoogleSynthesizer)(nil)

// NewGoogleSynthesizer creates a synthesizer on top of an existing client.
func NewGoogleSynthesizer(client *texttospeech.Client) *GoogleSynthesizer {
	return &GoogleSynthesizer{
		synthesize: func(
			ctx context.Context,
			req *texttospeechpb.SynthesizeSpeechRequest,
		) (*texttospeechpb.SynthesizeSpeechResponse, error) {
			return client.SynthesizeSpeech(ctx, req)
		},
	}
}

// Name identifies the provider.
func (g *GoogleSynthesizer) Name() string {
	return googleSynthesizerName
}

// Synthesize converts one SSML document to audio.
func (g *GoogleSynthesizer) Synthesize(ctx context.Context, req core.SpeechRequest) ([]byte, error) {
	voice, err := voiceSelection(req.Voice)
	if err != nil {
		return nil, err
	}

	resp, err := g.synthesize(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Ssml{Ssml: req.SSML},
		},
		Voice:       voice,
		AudioConfig: audioConfig(req.Audio),
	})
	if err != nil {
		return nil, fmt.Errorf(errFmtGoogleSynthesize, err)
	}

	if len(resp.GetAudioContent()) == 0 {
		return nil, ErrEmptyAudio
	}

	return resp.GetAudioContent(), nil
}

func voiceSelection(voice core.VoiceConfig) (*texttospeechpb.VoiceSelectionParams, error) {
	params := &texttospeechpb.VoiceSelectionParams{
		LanguageCode: voice.LanguageCode,
		Name:         voice.Name,
	}

	if voice.SSMLGender == "" {
		return params, nil
	}

	gender, ok := texttospeechpb.SsmlVoiceGender_value[strings.ToUpper(voice.SSMLGender)]
	if !ok {
		return nil, fmt.Errorf(errFmtUnknownGender, ErrUnknownGender, voice.SSMLGender)
	}

	params.SsmlGender = texttospeechpb.SsmlVoiceGender(gender)

	return params, nil
}

func audioConfig(cfg core.AudioConfig) *texttospeechpb.AudioConfig {
	cfg = audio.WithDefaults(cfg)

	return &texttospeechpb.AudioConfig{
		AudioEncoding:   texttospeechpb.AudioEncoding(texttospeechpb.AudioEncoding_value[cfg.AudioEncoding]),
		SpeakingRate:    cfg.SpeakingRate,
		Pitch:           cfg.Pitch,
		VolumeGainDb:    cfg.VolumeGainDB,
		SampleRateHertz: cfg.SampleRateHertz,
	}
}

// GoogleLongAudio implements core.LongAudioSynthesizer with the Google
// long-audio API, which writes its output to Cloud Storage.
type GoogleLongAudio struct {
	client               *texttospeech.TextToSpeechLongAudioSynthesizeClient
	defaultProjectNumber string
}

var _ core.LongAudioSynthesizer = (*GoogleLongAudio)(nil)

// NewGoogleLongAudio wraps a long-audio client. defaultProjectNumber is used
// when a request does not carry its own.
func NewGoogleLongAudio(
	client *texttospeech.TextToSpeechLongAudioSynthesizeClient,
	defaultProjectNumber string,
) *GoogleLongAudio {
	return &GoogleLongAudio{client: client, defaultProjectNumber: defaultProjectNumber}
}

// Start submits a long-audio synthesis and returns its operation.
func (g *GoogleLongAudio) Start(
	ctx context.Context,
	req core.LongAudioRequest,
) (*core.LongAudioOperation, error) {
	pbRequest, err := buildLongAudioRequest(req, g.defaultProjectNumber)
	if err != nil {
		return nil, err
	}

	operation, err := g.client.SynthesizeLongAudio(ctx, pbRequest)
	if err != nil {
		return nil, fmt.Errorf(errFmtStartLongAudio, err)
	}

	return &core.LongAudioOperation{Name: operation.Name(), Done: false}, nil
}

// Status polls a long-audio operation once.
func (g *GoogleLongAudio) Status(ctx context.Context, name string) (*core.LongAudioOperation, error) {
	operation := g.client.SynthesizeLongAudioOperation(name)

	_, pollErr := operation.Poll(ctx)
	if pollErr != nil && !operation.Done() {
		if status.Code(pollErr) == codes.NotFound {
			return nil, fmt.Errorf(errFmtOperationName, ErrOperationNotFound, name)
		}

		return nil, fmt.Errorf(errFmtPollLongAudio, name, pollErr)
	}

	result := &core.LongAudioOperation{Name: name, Done: operation.Done()}
	if pollErr != nil {
		result.Error = pollErr.Error()
	}

	metadata, err := operation.Metadata()
	if err != nil {
		return nil, fmt.Errorf(errFmtLongAudioMetadata, name, err)
	}

	applyLongAudioMetadata(result, metadata)

	return result, nil
}

func applyLongAudioMetadata(result *core.LongAudioOperation, metadata *texttospeechpb.SynthesizeLongAudioMetadata) {
	if metadata == nil {
		return
	}

	result.ProgressPercentage = metadata.GetProgressPercentage()

	if startTime := metadata.GetStartTime(); startTime != nil {
		value := startTime.AsTime()
		result.StartTime = &value
	}

	if updateTime := metadata.GetLastUpdateTime(); updateTime != nil {
		value := updateTime.AsTime()
		result.LastUpdateTime = &value
	}
}

func buildLongAudioRequest(
	req core.LongAudioRequest,
	defaultProjectNumber string,
) (*texttospeechpb.SynthesizeLongAudioRequest, error) {
	input := &texttospeechpb.SynthesisInput{}

	switch {
	case strings.TrimSpace(req.Input.SSML) != "":
		input.InputSource = &texttospeechpb.SynthesisInput_Ssml{Ssml: req.Input.SSML}
	case strings.TrimSpace(req.Input.Text) != "":
		input.InputSource = &texttospeechpb.SynthesisInput_Text{Text: req.Input.Text}
	default:
		return nil, ErrLongAudioInput
	}

	if req.OutputGCSURI == "" {
		return nil, ErrLongAudioOutput
	}

	projectNumber := req.ProjectNumber
	if projectNumber == "" {
		projectNumber = defaultProjectNumber
	}

	if projectNumber == "" {
		return nil, ErrLongAudioProject
	}

	voice, err := voiceSelection(req.Voice)
	if err != nil {
		return nil, err
	}

	// The long-audio API only produces LINEAR16.
	if req.Audio.AudioEncoding == "" {
		req.Audio.AudioEncoding = audio.ENCODING_LINEAR16
	}

	return &texttospeechpb.SynthesizeLongAudioRequest{
		Parent:       fmt.Sprintf(longAudioParentFormat, projectNumber),
		Input:        input,
		AudioConfig:  audioConfig(req.Audio),
		OutputGcsUri: req.OutputGCSURI,
		Voice:        voice,
	}, nil
}
