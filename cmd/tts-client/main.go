package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/ssml-tts-service/internal/core"
	"github.com/book-expert/ssml-tts-service/internal/tts"
	"github.com/book-expert/ssml-tts-service/internal/tts/audio"
	"github.com/book-expert/ssml-tts-service/internal/tts/ssml"
	"github.com/book-expert/ssml-tts-service/internal/tts/ttsutils"
)

// Flag descriptions.
const (
	flagTextDesc      = "Text to convert to speech"
	flagFileDesc      = "Text file to convert to speech (.txt, .md, .ssml, .xml, .html)"
	flagServerDesc    = "Base URL of the TTS service"
	flagMaxLenDesc    = "Maximum segment length in characters (0 uses the default)"
	flagChunkOnlyDesc = "Chunk locally and print the SSML segments without calling the service"
	flagBase64Desc    = "Ask the service to return audio inline as base64"
	flagHealthDesc    = "Check TTS service health and exit"
	flagOutputDesc    = "Directory to write base64 audio chunks to"
	flagEncodingDesc  = "Audio encoding (MP3, LINEAR16, OGG_OPUS, ...)"
	flagVoiceDesc     = "Voice name (for example en-GB-Wavenet-B)"
	flagTimeoutDesc   = "Request timeout"
)

// Flag names.
const (
	flagText      = "text"
	flagFile      = "file"
	flagServer    = "server"
	flagMaxLen    = "max-len"
	flagChunkOnly = "chunk-only"
	flagBase64    = "base64"
	flagHealth    = "health"
	flagOutput    = "output"
	flagEncoding  = "encoding"
	flagVoice     = "voice"
	flagTimeout   = "timeout"
)

// Error and log messages.
const (
	errFailedToInitLogger  = "failed to initialize logger: %w"
	errHealthCheckFailed   = "Health check failed: %v"
	errServiceNotHealthy   = "TTS service is not healthy: %v\n"
	msgServiceHealthy      = "TTS service is healthy"
	errFailedToProcessText = "failed to process text: %w"
	errFailedToReadFile    = "failed to read %s: %w"
	errFailedToWriteAudio  = "failed to write audio: %w"
	logProcessingText      = "Processing %d characters with %s"
	logChunkingLocally     = "Chunking %d characters locally (max length %d)"
	logGeneratedChunks     = "Generated %d chunks (batch %s)"
	logWroteAudio          = "Wrote %s (%s)"
)

// Defaults.
const (
	defaultServerURL  = "http://localhost:8080"
	defaultTimeout    = 5 * time.Minute
	logFileName       = "tts-client.log"
	outputFilePerm    = 0o600
	audioFileNameForm = "%s-%03d%s"
)

// Static errors.
var (
	ErrEitherTextOrFile  = errors.New("either --text or --file must be provided")
	ErrCannotSpecifyBoth = errors.New("cannot specify both --text and --file")
	ErrUnsupportedFile   = errors.New("unsupported text file type")
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	text      string
	file      string
	server    string
	maxLen    int
	chunkOnly bool
	base64    bool
	health    bool
	output    string
	encoding  string
	voice     string
	timeout   time.Duration
}

func main() {
	err := run(os.Args[1:], os.Stdout)
	if err != nil {
		// A logger might not be initialized yet, so use the standard log package.
		log.Fatalf("Error: %v", err)
	}
}

// run is the application entry point, returning an error on failure.
func run(args []string, stdout io.Writer) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	clientLog, err := logger.New(os.TempDir(), logFileName)
	if err != nil {
		return fmt.Errorf(errFailedToInitLogger, err)
	}
	defer func() {
		closeErr := clientLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing logger: %v\n", closeErr)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), flags.timeout)
	defer cancel()

	client := tts.NewHTTPClient(flags.server, flags.timeout)

	if flags.health {
		return handleHealthCheck(ctx, client, clientLog, stdout)
	}

	err = validateFlags(flags)
	if err != nil {
		return err
	}

	input, err := readInput(flags)
	if err != nil {
		return err
	}

	if flags.chunkOnly {
		clientLog.Info(logChunkingLocally, len(input), flags.maxLen)

		return writeJSON(stdout, tts.NewSSMLResponse(ssml.ChunkText(input, flags.maxLen)))
	}

	return processText(ctx, client, clientLog, flags, input, stdout)
}

// parseFlags defines and parses command-line flags, returning them in a struct.
func parseFlags(args []string) (appFlags, error) {
	var flags appFlags

	flagSet := flag.NewFlagSet("tts-client", flag.ContinueOnError)
	flagSet.StringVar(&flags.text, flagText, "", flagTextDesc)
	flagSet.StringVar(&flags.file, flagFile, "", flagFileDesc)
	flagSet.StringVar(&flags.server, flagServer, defaultServerURL, flagServerDesc)
	flagSet.IntVar(&flags.maxLen, flagMaxLen, 0, flagMaxLenDesc)
	flagSet.BoolVar(&flags.chunkOnly, flagChunkOnly, false, flagChunkOnlyDesc)
	flagSet.BoolVar(&flags.base64, flagBase64, false, flagBase64Desc)
	flagSet.BoolVar(&flags.health, flagHealth, false, flagHealthDesc)
	flagSet.StringVar(&flags.output, flagOutput, "", flagOutputDesc)
	flagSet.StringVar(&flags.encoding, flagEncoding, "", flagEncodingDesc)
	flagSet.StringVar(&flags.voice, flagVoice, "", flagVoiceDesc)
	flagSet.DurationVar(&flags.timeout, flagTimeout, defaultTimeout, flagTimeoutDesc)

	err := flagSet.Parse(args)
	if err != nil {
		return flags, fmt.Errorf("failed to parse flags: %w", err)
	}

	return flags, nil
}

// validateFlags checks the input flags of a text run.
func validateFlags(flags appFlags) error {
	if flags.text == "" && flags.file == "" {
		return ErrEitherTextOrFile
	}

	if flags.text != "" && flags.file != "" {
		return ErrCannotSpecifyBoth
	}

	if flags.file != "" && !ttsutils.IsValidTextFile(flags.file) {
		return fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Ext(flags.file))
	}

	return nil
}

func readInput(flags appFlags) (string, error) {
	if flags.text != "" {
		return flags.text, nil
	}

	data, err := os.ReadFile(flags.file)
	if err != nil {
		return "", fmt.Errorf(errFailedToReadFile, flags.file, err)
	}

	return string(data), nil
}

// handleHealthCheck performs a service health check and prints the result.
func handleHealthCheck(ctx context.Context, client *tts.HTTPClient, clientLog *logger.Logger, stdout io.Writer) error {
	err := client.HealthCheck(ctx)
	if err != nil {
		clientLog.Error(errHealthCheckFailed, err)
		fmt.Fprintf(stdout, errServiceNotHealthy, err)

		return err
	}

	fmt.Fprintln(stdout, msgServiceHealthy)

	return nil
}

// processText sends text to the service, writes returned audio when an
// output directory is given and prints the result.
func processText(
	ctx context.Context,
	client *tts.HTTPClient,
	clientLog *logger.Logger,
	flags appFlags,
	input string,
	stdout io.Writer,
) error {
	clientLog.Info(logProcessingText, len(input), flags.server)

	result, err := client.Chunked(ctx, tts.ChunkedRequest{
		Text:         input,
		Voice:        core.VoiceConfig{Name: flags.voice},
		AudioConfig:  core.AudioConfig{AudioEncoding: flags.encoding},
		ReturnBase64: flags.base64 || flags.output != "",
		MaxLen:       flags.maxLen,
	})
	if err != nil {
		return fmt.Errorf(errFailedToProcessText, err)
	}

	clientLog.Info(logGeneratedChunks, result.Count, result.BatchID)

	if flags.output != "" {
		paths, writeErr := writeAudio(flags.output, flags.encoding, result)
		if writeErr != nil {
			return fmt.Errorf(errFailedToWriteAudio, writeErr)
		}

		for _, path := range paths {
			clientLog.Info(logWroteAudio, path, fileSize(path))
		}
	}

	return writeJSON(stdout, result)
}

// writeAudio decodes the base64 audio of every chunk into dir.
func writeAudio(dir, encoding string, result *tts.Result) ([]string, error) {
	format, err := audio.FormatForEncoding(encoding)
	if err != nil {
		return nil, err
	}

	err = ttsutils.EnsureDir(dir)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(result.Chunks))

	for _, chunk := range result.Chunks {
		if chunk.Base64 == "" {
			continue
		}

		data, decodeErr := base64.StdEncoding.DecodeString(chunk.Base64)
		if decodeErr != nil {
			return paths, fmt.Errorf("failed to decode chunk %d: %w", chunk.Index, decodeErr)
		}

		name := fmt.Sprintf(audioFileNameForm, ttsutils.SanitizeFilename(result.BatchID), chunk.Index, format.Extension())
		path := filepath.Join(dir, name)

		writeErr := os.WriteFile(path, data, outputFilePerm)
		if writeErr != nil {
			return paths, fmt.Errorf("failed to write %s: %w", path, writeErr)
		}

		paths = append(paths, path)
	}

	return paths, nil
}

func writeJSON(stdout io.Writer, payload any) error {
	encoder := json.NewEncoder(stdout)
	encoder.SetIndent("", "  ")

	err := encoder.Encode(payload)
	if err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	return nil
}

func fileSize(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "unknown size"
	}

	return ttsutils.FormatFileSize(info.Size())
}
