// Package server exposes the chunked text-to-speech engine and the long-audio
// proxy over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/ssml-tts-service/internal/core"
	"github.com/book-expert/ssml-tts-service/internal/tts"
)

// Defaults applied when an option is not given.
const (
	DefaultMaxBodyBytes = 10 << 20
	DefaultReadTimeout  = 30 * time.Second
	DefaultWriteTimeout = 5 * time.Minute

	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

const (
	logFmtListening   = "HTTP server listening on %s"
	logFmtShutdown    = "HTTP server shutting down"
	logFmtRequest     = "%s %s %d %s"
	logFmtServeFailed = "HTTP server failed: %v"
)

// Option configures a Server.
type Option func(*options)

type options struct {
	maxBodyBytes  int64
	lenientJSON   bool
	projectNumber string
	readTimeout   time.Duration
	writeTimeout  time.Duration
}

// WithMaxBodyBytes limits the size of request bodies.
func WithMaxBodyBytes(limit int64) Option {
	return func(o *options) {
		if limit > 0 {
			o.maxBodyBytes = limit
		}
	}
}

// WithLenientJSON accepts bodies with smart quotes, a byte order mark or
// syntax errors that jsonrepair can fix.
func WithLenientJSON(enabled bool) Option {
	return func(o *options) {
		o.lenientJSON = enabled
	}
}

// WithProjectNumber sets the project number used by long-audio requests
// that do not name one.
func WithProjectNumber(projectNumber string) Option {
	return func(o *options) {
		o.projectNumber = projectNumber
	}
}

// WithTimeouts sets the read and write timeouts of the listening server.
func WithTimeouts(read, write time.Duration) Option {
	return func(o *options) {
		if read > 0 {
			o.readTimeout = read
		}

		if write > 0 {
			o.writeTimeout = write
		}
	}
}

// Server routes HTTP requests to the engine and the long-audio synthesizer.
type Server struct {
	engine    *tts.Engine
	longAudio core.LongAudioSynthesizer
	logger    *logger.Logger
	options   options
	mux       *http.ServeMux
}

// New creates a Server. longAudio may be nil, in which case the long-audio
// routes answer 503.
func New(
	engine *tts.Engine,
	longAudio core.LongAudioSynthesizer,
	log *logger.Logger,
	opts ...Option,
) *Server {
	server := &Server{
		engine:    engine,
		longAudio: longAudio,
		logger:    log,
		options: options{
			maxBodyBytes: DefaultMaxBodyBytes,
			readTimeout:  DefaultReadTimeout,
			writeTimeout: DefaultWriteTimeout,
		},
		mux: http.NewServeMux(),
	}

	for _, opt := range opts {
		opt(&server.options)
	}

	server.routes()

	return server
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /tts/chunked", s.handleChunkedProbe)
	s.mux.HandleFunc("POST /tts/chunked", s.handleChunked)
	s.mux.HandleFunc("POST /tts/ssml", s.handleSSML)
	s.mux.HandleFunc("POST /tts/long/start", s.handleLongStart)
	s.mux.HandleFunc("GET /tts/long/status", s.handleLongStatus)
}

// Handler returns the routed handler wrapped with request logging.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		started := time.Now()
		recorder := &statusRecorder{ResponseWriter: writer, status: http.StatusOK}

		s.mux.ServeHTTP(recorder, request)

		s.logger.Info(logFmtRequest, request.Method, request.URL.Path, recorder.status,
			time.Since(started).Round(time.Millisecond))
	})
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadTimeout:       s.options.readTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      s.options.writeTimeout,
	}

	serveErr := make(chan error, 1)

	go func() {
		s.logger.Info(logFmtListening, addr)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		s.logger.Error(logFmtServeFailed, err)

		return fmt.Errorf("failed to serve HTTP on %s: %w", addr, err)
	case <-ctx.Done():
	}

	s.logger.Info(logFmtShutdown)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := httpServer.Shutdown(shutdownCtx)
	if err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}

	return nil
}

type statusRecorder struct {
	http.ResponseWriter

	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
