package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/ssml-tts-service/internal/tts"
)

func TestParseFlags(t *testing.T) {
	t.Parallel()

	flags, err := parseFlags([]string{
		"--text", "Hello, world!",
		"--server", "http://tts.local:9000",
		"--max-len", "120",
		"--chunk-only",
		"--base64",
		"--encoding", "OGG_OPUS",
		"--timeout", "30s",
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello, world!", flags.text)
	assert.Equal(t, "http://tts.local:9000", flags.server)
	assert.Equal(t, 120, flags.maxLen)
	assert.True(t, flags.chunkOnly)
	assert.True(t, flags.base64)
	assert.False(t, flags.health)
	assert.Equal(t, "OGG_OPUS", flags.encoding)
	assert.Equal(t, "30s", flags.timeout.String())
}

func TestParseFlags_Defaults(t *testing.T) {
	t.Parallel()

	flags, err := parseFlags(nil)
	require.NoError(t, err)

	assert.Equal(t, defaultServerURL, flags.server)
	assert.Equal(t, defaultTimeout, flags.timeout)
	assert.Zero(t, flags.maxLen)
}

func TestParseFlags_Unknown(t *testing.T) {
	t.Parallel()

	_, err := parseFlags([]string{"--chunks", "file.json"})
	require.Error(t, err)
}

func TestValidateFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		flags   appFlags
		wantErr error
	}{
		{name: "text only", flags: appFlags{text: "some text"}},
		{name: "file only", flags: appFlags{file: "chapter.txt"}},
		{name: "markdown file", flags: appFlags{file: "notes.MD"}},
		{name: "neither", flags: appFlags{}, wantErr: ErrEitherTextOrFile},
		{
			name:    "both",
			flags:   appFlags{text: "some text", file: "chapter.txt"},
			wantErr: ErrCannotSpecifyBoth,
		},
		{name: "binary file", flags: appFlags{file: "audio.mp3"}, wantErr: ErrUnsupportedFile},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			err := validateFlags(testCase.flags)
			if testCase.wantErr == nil {
				require.NoError(t, err)

				return
			}

			require.ErrorIs(t, err, testCase.wantErr)
		})
	}
}

func TestRun_ChunkOnlyFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "chapter.txt")
	require.NoError(t, os.WriteFile(path, []byte("First paragraph.\n\nSecond paragraph."), 0o600))

	var stdout bytes.Buffer

	err := run([]string{"--file", path, "--chunk-only", "--max-len", "20"}, &stdout)
	require.NoError(t, err)

	var response tts.SSMLResponse
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &response))

	require.Equal(t, 2, response.Count)
	assert.Equal(t, "<speak>First paragraph.</speak>", response.Chunks[0].SSML)
	assert.Equal(t, "<speak>Second paragraph.</speak>", response.Chunks[1].SSML)
}

func TestRun_MissingInput(t *testing.T) {
	t.Parallel()

	err := run([]string{"--chunk-only"}, &bytes.Buffer{})
	require.ErrorIs(t, err, ErrEitherTextOrFile)
}

func TestRun_Health(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		wantErr bool
		wantOut string
	}{
		{name: "healthy", status: http.StatusOK, wantOut: msgServiceHealthy},
		{name: "unhealthy", status: http.StatusServiceUnavailable, wantErr: true, wantOut: "not healthy"},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/health", r.URL.Path)
				w.WriteHeader(testCase.status)
			}))
			t.Cleanup(server.Close)

			var stdout bytes.Buffer

			err := run([]string{"--health", "--server", server.URL}, &stdout)
			if testCase.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}

			assert.Contains(t, stdout.String(), testCase.wantOut)
		})
	}
}

func TestRun_ChunkedWritesAudio(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tts/chunked", r.URL.Path)

		var body tts.ChunkedRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Hello there.", body.Text)
		assert.True(t, body.ReturnBase64)
		assert.Equal(t, "en-GB-Wavenet-B", body.Voice.Name)

		result := tts.Result{
			BatchID: "batch-1",
			Count:   2,
			Chunks: []tts.ChunkResult{
				{Index: 0, SSML: "<speak>Hello</speak>", Base64: base64.StdEncoding.EncodeToString([]byte("one"))},
				{Index: 1, SSML: "<speak>there.</speak>", Base64: base64.StdEncoding.EncodeToString([]byte("two"))},
			},
			Storage: tts.StorageInfo{Backend: "none"},
		}

		w.Header().Set("Content-Type", "application/json")
		assert.NoError(t, json.NewEncoder(w).Encode(result))
	}))
	t.Cleanup(server.Close)

	outputDir := filepath.Join(t.TempDir(), "audio")

	var stdout bytes.Buffer

	err := run([]string{
		"--text", "Hello there.",
		"--server", server.URL,
		"--voice", "en-GB-Wavenet-B",
		"--output", outputDir,
	}, &stdout)
	require.NoError(t, err)

	var result tts.Result
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &result))
	assert.Equal(t, "batch-1", result.BatchID)

	first, err := os.ReadFile(filepath.Join(outputDir, "batch-1-000.mp3"))
	require.NoError(t, err)
	assert.Equal(t, "one", string(first))

	second, err := os.ReadFile(filepath.Join(outputDir, "batch-1-001.mp3"))
	require.NoError(t, err)
	assert.Equal(t, "two", string(second))
}

func TestWriteAudio_UnsupportedEncoding(t *testing.T) {
	t.Parallel()

	_, err := writeAudio(t.TempDir(), "WMA", &tts.Result{})
	require.Error(t, err)
}
