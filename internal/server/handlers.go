package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/book-expert/ssml-tts-service/internal/core"
	"github.com/book-expert/ssml-tts-service/internal/tts"
)

// Client-facing messages.
const (
	msgProvideText          = "Provide 'text' string in body."
	msgGetChunkedWorks      = "GET endpoint is working"
	msgLongAudioRequired    = "tts and outputGcsUri are required"
	msgProjectNumberMissing = "projectNumber missing"
	msgOperationName        = "operation name is required"
	msgLongAudioDisabled    = "long audio synthesis is not configured"
	statusOK                = "ok"
)

const (
	logFmtChunkedFailed   = "Chunked synthesis failed: %v"
	logFmtLongStartFailed = "Long audio start failed: %v"
	logFmtLongStatus      = "Long audio status for %s failed: %v"
	logFmtWriteResponse   = "Failed to write response: %v"
)

// longAudioBody is the body of POST /tts/long/start.
type longAudioBody struct {
	TTS           *longAudioInput `json:"tts"`
	OutputGCSURI  string          `json:"outputGcsUri"`
	ProjectNumber string          `json:"projectNumber"`
}

type longAudioInput struct {
	Input       core.SpeechInput `json:"input"`
	Voice       core.VoiceConfig `json:"voice"`
	AudioConfig core.AudioConfig `json:"audioConfig"`
}

func (s *Server) handleHealth(writer http.ResponseWriter, _ *http.Request) {
	s.writeJSON(writer, http.StatusOK, map[string]string{"status": statusOK})
}

func (s *Server) handleChunkedProbe(writer http.ResponseWriter, _ *http.Request) {
	s.writeJSON(writer, http.StatusOK, map[string]string{"message": msgGetChunkedWorks})
}

func (s *Server) handleChunked(writer http.ResponseWriter, request *http.Request) {
	var body tts.ChunkedRequest

	if decodeErr := s.decodeJSON(writer, request, &body); decodeErr != nil {
		s.writeDecodeError(writer, decodeErr)

		return
	}

	if strings.TrimSpace(body.Text) == "" {
		s.writeError(writer, http.StatusBadRequest, msgProvideText)

		return
	}

	result, err := s.engine.Process(request.Context(), body.ToRequest())
	if err != nil {
		s.logger.Error(logFmtChunkedFailed, err)

		switch {
		case errors.Is(err, tts.ErrTextEmpty):
			s.writeError(writer, http.StatusBadRequest, msgProvideText)
		case errors.Is(err, tts.ErrInvalidSettings):
			s.writeError(writer, http.StatusBadRequest, err.Error())
		default:
			s.writeError(writer, http.StatusInternalServerError, err.Error())
		}

		return
	}

	s.writeJSON(writer, http.StatusOK, result)
}

func (s *Server) handleSSML(writer http.ResponseWriter, request *http.Request) {
	var body tts.SSMLRequest

	if decodeErr := s.decodeJSON(writer, request, &body); decodeErr != nil {
		s.writeDecodeError(writer, decodeErr)

		return
	}

	if strings.TrimSpace(body.Text) == "" {
		s.writeError(writer, http.StatusBadRequest, msgProvideText)

		return
	}

	s.writeJSON(writer, http.StatusOK, tts.NewSSMLResponse(s.engine.Chunk(body.Text, body.MaxLen)))
}

func (s *Server) handleLongStart(writer http.ResponseWriter, request *http.Request) {
	if s.longAudio == nil {
		s.writeError(writer, http.StatusServiceUnavailable, msgLongAudioDisabled)

		return
	}

	var body longAudioBody

	if decodeErr := s.decodeJSON(writer, request, &body); decodeErr != nil {
		s.writeDecodeError(writer, decodeErr)

		return
	}

	if body.TTS == nil || body.OutputGCSURI == "" {
		s.writeError(writer, http.StatusBadRequest, msgLongAudioRequired)

		return
	}

	projectNumber := body.ProjectNumber
	if projectNumber == "" {
		projectNumber = s.options.projectNumber
	}

	if projectNumber == "" {
		s.writeError(writer, http.StatusBadRequest, msgProjectNumberMissing)

		return
	}

	operation, err := s.longAudio.Start(request.Context(), core.LongAudioRequest{
		Input:         body.TTS.Input,
		Voice:         body.TTS.Voice,
		Audio:         body.TTS.AudioConfig,
		OutputGCSURI:  body.OutputGCSURI,
		ProjectNumber: projectNumber,
	})
	if err != nil {
		s.logger.Error(logFmtLongStartFailed, err)

		if errors.Is(err, tts.ErrLongAudioInput) || errors.Is(err, tts.ErrUnknownGender) {
			s.writeError(writer, http.StatusBadRequest, err.Error())

			return
		}

		s.writeError(writer, http.StatusBadGateway, err.Error())

		return
	}

	s.writeJSON(writer, http.StatusOK, operation)
}

func (s *Server) handleLongStatus(writer http.ResponseWriter, request *http.Request) {
	if s.longAudio == nil {
		s.writeError(writer, http.StatusServiceUnavailable, msgLongAudioDisabled)

		return
	}

	name := request.URL.Query().Get("name")
	if name == "" {
		s.writeError(writer, http.StatusBadRequest, msgOperationName)

		return
	}

	operation, err := s.longAudio.Status(request.Context(), name)
	if err != nil {
		s.logger.Error(logFmtLongStatus, name, err)

		if errors.Is(err, tts.ErrOperationNotFound) {
			s.writeError(writer, http.StatusNotFound, err.Error())

			return
		}

		s.writeError(writer, http.StatusBadGateway, err.Error())

		return
	}

	s.writeJSON(writer, http.StatusOK, operation)
}

func (s *Server) writeDecodeError(writer http.ResponseWriter, decodeErr *decodeError) {
	if decodeErr.tooLarge {
		s.writeError(writer, http.StatusRequestEntityTooLarge, decodeErr.Error())

		return
	}

	if !errors.Is(decodeErr, ErrInvalidJSON) {
		s.writeError(writer, http.StatusBadRequest, decodeErr.Error())

		return
	}

	position := decodeErr.position

	s.writeJSON(writer, http.StatusBadRequest, tts.ErrorResponse{
		Error:       msgInvalidJSON,
		Position:    &position,
		ProblemArea: decodeErr.problemArea,
		Solution:    msgJSONSolution,
	})
}

func (s *Server) writeError(writer http.ResponseWriter, status int, message string) {
	s.writeJSON(writer, status, tts.ErrorResponse{Error: message})
}

func (s *Server) writeJSON(writer http.ResponseWriter, status int, payload any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)

	err := json.NewEncoder(writer).Encode(payload)
	if err != nil {
		s.logger.Warn(logFmtWriteResponse, err)
	}
}
