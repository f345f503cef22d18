package clone

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

	"github.com/book-expert/pdf-narrator/internal/core"
)

// Model server endpoints.
const (
	apiGenerateSpeech = "/v1/generate/speech"
	apiLoadModel      = "/v1/models/load"
	apiHealth         = "/health"
)

const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
	contentTypeWAV    = "audio/wav"
)

const (
	errUnexpectedContentType   = "unexpected content type: expected audio/wav, got %q"
	errReceivedEmptyAudio      = "received empty audio data"
	errFmtServiceErrorWithCode = "model server error (%s): %s (code: %s)"
	errFmtServiceNonOKStatus   = "model server returned %s: %s"
	errFmtSendRequest          = "%w: request to model server at %s: %w"
	errFmtHealthStatus         = "%w: health check returned %s"
)

const maxErrorBodyBytes = 4096

// SpeechRequest is the JSON body of a generation request.
type SpeechRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	// SpeakerWAV is the reference voice as base64-encoded 16-bit mono WAV.
	SpeakerWAV  string  `json:"speaker_wav"`
	Temperature float64 `json:"temperature"`
}

// LoadRequest asks the model server to load weights into memory.
type LoadRequest struct {
	Model       string `json:"model"`
	WeightsPath string `json:"weights_path"`
}

// ErrorResponse is the structured error body returned by the model server.
type ErrorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// statusError keeps the HTTP status so callers can classify the failure.
type statusError struct {
	status int
	msg    string
}

func (e *statusError) Error() string { return e.msg }

// HTTPClient talks to the voice-cloning model server.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewHTTPClient returns a client for the server at baseURL
// (for example "http://localhost:8000").
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GenerateSpeech returns the WAV bytes the server produced for req.
func (c *HTTPClient) GenerateSpeech(ctx context.Context, req SpeechRequest) ([]byte, error) {
	resp, err := c.postJSON(ctx, apiGenerateSpeech, req, contentTypeWAV)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(resp)
	}

	contentType := resp.Header.Get(headerContentType)
	if !strings.HasPrefix(contentType, contentTypeWAV) {
		return nil, fmt.Errorf("%w: "+errUnexpectedContentType, core.ErrNetwork, contentType)
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read audio data: %w", core.ErrNetwork, err)
	}

	if len(audioData) == 0 {
		return nil, fmt.Errorf("%w: %s", core.ErrSynthesis, errReceivedEmptyAudio)
	}

	return audioData, nil
}

// LoadModel asks the server to load the given weights.
func (c *HTTPClient) LoadModel(ctx context.Context, req LoadRequest) error {
	resp, err := c.postJSON(ctx, apiLoadModel, req, contentTypeJSON)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parseErrorResponse(resp)
	}

	return nil
}

// HealthCheck reports whether the model server is up.
func (c *HTTPClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiHealth, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf(errFmtSendRequest, core.ErrNetwork, c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf(errFmtHealthStatus, core.ErrNetwork, resp.Status)
	}

	return nil
}

func (c *HTTPClient) postJSON(ctx context.Context, path string, body any, accept string) (*http.Response, error) {
	requestBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, accept)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, fmt.Errorf(errFmtSendRequest, core.ErrNetwork, c.baseURL, err)
	}

	return resp, nil
}

// parseErrorResponse decodes a structured error, falling back to the raw body.
func parseErrorResponse(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	var errorResp ErrorResponse

	err := json.Unmarshal(raw, &errorResp)
	if err == nil && errorResp.Detail != "" {
		return &statusError{
			status: resp.StatusCode,
			msg:    fmt.Sprintf(errFmtServiceErrorWithCode, resp.Status, errorResp.Detail, errorResp.ErrorCode),
		}
	}

	return &statusError{
		status: resp.StatusCode,
		msg:    fmt.Sprintf(errFmtServiceNonOKStatus, resp.Status, strings.TrimSpace(string(raw))),
	}
}

// classify wraps a server failure with the taxonomy sentinel for its status:
// client errors belong to the request (fallback), server errors are outages.
func classify(err error, fallback error) error {
	var statusErr *statusError
	if !errors.As(err, &statusErr) {
		return err
	}

	if statusErr.status >= http.StatusInternalServerError {
		return fmt.Errorf("%w: %w", core.ErrNetwork, err)
	}

	return fmt.Errorf("%w: %w", fallback, err)
}
