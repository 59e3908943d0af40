package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// API endpoints and paths.
const (
	apiChunked = "/tts/chunked"
	apiSSML    = "/tts/ssml"
	apiHealth  = "/health"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
)

// Error messages.
const (
	errFmtServiceError      = "TTS service error (%s): %s"
	errFmtServiceNonOK      = "TTS service returned non-OK status: %s, body: %s"
	errFmtSendRequest       = "failed to send request to TTS service at %s: %w"
	errFmtHealthStatus      = "%w: %s"
	errFmtHealthUnreachable = "health check failed for service at %s: %w"
)

// Static errors.
var (
	ErrServiceStatus = errors.New("TTS service returned an error")
	ErrUnhealthy     = errors.New("health check failed")
)

// HTTPClient is a client for the chunked TTS HTTP API served by this module.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewHTTPClient creates a client for the service at baseURL (for example
// "http://localhost:8080"). The timeout applies to every request.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Chunked chunks, synthesizes and stores text on the server.
func (c *HTTPClient) Chunked(ctx context.Context, req ChunkedRequest) (*Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrTextEmpty
	}

	var result Result

	err := c.postJSON(ctx, apiChunked, req, &result)
	if err != nil {
		return nil, err
	}

	return &result, nil
}

// ChunkSSML asks the server to chunk text into SSML without synthesizing it.
func (c *HTTPClient) ChunkSSML(ctx context.Context, text string, maxLen int) (*SSMLResponse, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrTextEmpty
	}

	var response SSMLResponse

	err := c.postJSON(ctx, apiSSML, SSMLRequest{Text: text, MaxLen: maxLen}, &response)
	if err != nil {
		return nil, err
	}

	return &response, nil
}

// HealthCheck verifies that the service is running.
func (c *HTTPClient) HealthCheck(ctx context.Context) error {
	url := c.baseURL + apiHealth

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf(errFmtHealthUnreachable, c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf(errFmtHealthStatus, ErrUnhealthy, resp.Status)
	}

	return nil
}

func (c *HTTPClient) postJSON(ctx context.Context, path string, payload, target any) error {
	requestBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+path,
		bytes.NewReader(requestBody),
	)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeJSON)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf(errFmtSendRequest, c.baseURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return parseErrorResponse(resp.Status, body)
	}

	return parseJSON(body, target)
}

// parseErrorResponse decodes a structured error from the service and falls
// back to the raw body for anything else.
func parseErrorResponse(status string, body []byte) error {
	var errorResp ErrorResponse

	err := json.Unmarshal(body, &errorResp)
	if err == nil && errorResp.Error != "" {
		return fmt.Errorf("%w: "+errFmtServiceError, ErrServiceStatus, status, errorResp.Error)
	}

	return fmt.Errorf("%w: "+errFmtServiceNonOK, ErrServiceStatus, status, string(body))
}
