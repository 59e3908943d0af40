package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

const (
	problemAreaRadius  = 20
	msgInvalidJSON     = "Invalid JSON format"
	msgJSONSolution    = "Check for unclosed quotes, brackets, or trailing commas"
	logFmtRepairedJSON = "Repaired malformed JSON body on %s"
)

// Static errors.
var (
	ErrInvalidJSON  = errors.New("invalid JSON body")
	ErrBodyTooLarge = errors.New("request body too large")
)

var smartQuoteReplacer = strings.NewReplacer(
	"\u2018", "'",
	"\u2019", "'",
	"\u201c", `"`,
	"\u201d", `"`,
)

// decodeError describes a request body that could not be decoded.
type decodeError struct {
	err         error
	position    int64
	problemArea string
	tooLarge    bool
}

func (e *decodeError) Error() string {
	return e.err.Error()
}

func (e *decodeError) Unwrap() error {
	return e.err
}

// decodeJSON reads a size-limited body into target. An empty body decodes to
// the zero value. In lenient mode the body is sanitized first and, if it still
// does not parse, repaired with jsonrepair before giving up.
func (s *Server) decodeJSON(writer http.ResponseWriter, request *http.Request, target any) *decodeError {
	body, err := io.ReadAll(http.MaxBytesReader(writer, request.Body, s.options.maxBodyBytes))
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return &decodeError{
				err:      fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, maxBytesErr.Limit),
				tooLarge: true,
			}
		}

		return &decodeError{err: fmt.Errorf("failed to read request body: %w", err)}
	}

	if s.options.lenientJSON {
		body = sanitizeJSON(body)
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	err = json.Unmarshal(body, target)
	if err == nil {
		return nil
	}

	if s.options.lenientJSON {
		repaired, repairErr := jsonrepair.JSONRepair(string(body))
		if repairErr == nil && json.Unmarshal([]byte(repaired), target) == nil {
			s.logger.Warn(logFmtRepairedJSON, request.URL.Path)

			return nil
		}
	}

	return newSyntaxError(body, err)
}

// sanitizeJSON strips a byte order mark and surrounding whitespace and
// replaces typographic quotes with ASCII ones.
func sanitizeJSON(body []byte) []byte {
	text := strings.Trim(string(body), " \t\r\n\u00a0\ufeff")

	return []byte(smartQuoteReplacer.Replace(text))
}

func newSyntaxError(body []byte, err error) *decodeError {
	var position int64

	var syntaxErr *json.SyntaxError

	var typeErr *json.UnmarshalTypeError

	switch {
	case errors.As(err, &syntaxErr):
		position = syntaxErr.Offset
	case errors.As(err, &typeErr):
		position = typeErr.Offset
	}

	start := max(0, int(position)-problemAreaRadius)
	end := min(len(body), int(position)+problemAreaRadius)

	return &decodeError{
		err:         fmt.Errorf("%w: %w", ErrInvalidJSON, err),
		position:    position,
		problemArea: strings.ToValidUTF8(string(body[start:end]), ""),
	}
}
