package tts

import (
	"encoding/json"
	"fmt"

	"github.com/book-expert/ssml-tts-service/internal/core"
	"github.com/book-expert/ssml-tts-service/internal/tts/ssml"
)

// ChunkedRequest is the JSON body of POST /tts/chunked.
type ChunkedRequest struct {
	Text         string           `json:"text"`
	Voice        core.VoiceConfig `json:"voice,omitzero"`
	AudioConfig  core.AudioConfig `json:"audioConfig,omitzero"`
	Concurrency  int              `json:"concurrency,omitempty"`
	ReturnBase64 bool             `json:"returnBase64,omitempty"`
	Bucket       string           `json:"bucket,omitempty"`
	Prefix       string           `json:"prefix,omitempty"`
	MaxLen       int              `json:"maxLen,omitempty"`
}

// ToRequest converts the wire body into an Engine request.
func (r ChunkedRequest) ToRequest() Request {
	return Request{
		Text:         r.Text,
		Voice:        r.Voice,
		Audio:        r.AudioConfig,
		Concurrency:  r.Concurrency,
		ReturnBase64: r.ReturnBase64,
		Bucket:       r.Bucket,
		KeyPrefix:    r.Prefix,
		MaxLen:       r.MaxLen,
	}
}

// SSMLRequest is the JSON body of POST /tts/ssml.
type SSMLRequest struct {
	Text   string `json:"text"`
	MaxLen int    `json:"maxLen,omitempty"`
}

// SSMLChunk is one segment returned by POST /tts/ssml.
type SSMLChunk struct {
	Index       int    `json:"index"`
	SSML        string `json:"ssml"`
	BytesApprox int    `json:"bytesApprox"`
}

// SSMLResponse is the body returned by POST /tts/ssml.
type SSMLResponse struct {
	Count  int         `json:"count"`
	Chunks []SSMLChunk `json:"chunks"`
}

// NewSSMLResponse describes segments without synthesizing them.
func NewSSMLResponse(segments []ssml.Segment) SSMLResponse {
	chunks := make([]SSMLChunk, 0, len(segments))

	for _, segment := range segments {
		chunks = append(chunks, SSMLChunk{
			Index:       segment.Index,
			SSML:        segment.SSML,
			BytesApprox: segment.ApproxBytes(),
		})
	}

	return SSMLResponse{Count: len(chunks), Chunks: chunks}
}

// ErrorResponse is the body of every non-2xx response. Position,
// ProblemArea and Solution are set only for JSON that could not be parsed.
type ErrorResponse struct {
	Error       string `json:"error"`
	Position    *int64 `json:"position,omitempty"`
	ProblemArea string `json:"problemArea,omitempty"`
	Solution    string `json:"solution,omitempty"`
}

// parseJSON parses JSON data into the target interface.
func parseJSON(data []byte, target any) error {
	err := json.Unmarshal(data, target)
	if err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	return nil
}
