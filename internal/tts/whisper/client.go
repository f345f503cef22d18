// Package whisper transcribes speech through an OpenAI-compatible
// /v1/audio/transcriptions endpoint.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/pdf-narrator/internal/core"
)

// Defaults used when Config leaves a field empty.
const (
	DefaultBaseURL = "https://api.openai.com"
	DefaultModel   = "whisper-1"
	DefaultTimeout = 120 * time.Second
	// EnvAPIKey is consulted when Config.APIKey is empty.
	EnvAPIKey = "OPENAI_API_KEY"
)

const transcriptionsPath = "/v1/audio/transcriptions"

const (
	errFailedToOpenFile       = "failed to open audio file: %w"
	errFailedToBuildForm      = "failed to build multipart form: %w"
	errFailedToCreateRequest  = "failed to create request: %w"
	errFmtRequestFailed       = "%w: transcription request to %s: %w"
	errFmtAPIRequestFailed    = "%w: transcription service returned %s: %s"
	errFailedToDecodeResponse = "failed to decode transcription response: %w"
)

const (
	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"

	formFieldFile     = "file"
	formFieldModel    = "model"
	formFieldLanguage = "language"

	maxErrorBodyBytes = 1024
)

// ErrMissingAPIKey is returned when no API key is configured.
var ErrMissingAPIKey = errors.New("transcription API key not set")

// Config configures the transcription client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client sends audio files for transcription.
type Client struct {
	httpClient *http.Client
	apiKey     string
	endpoint   string
	model      string
}

// Response is the JSON body returned by the endpoint.
type Response struct {
	Text string `json:"text"`
}

// NewClient returns a Client. An empty APIKey falls back to OPENAI_API_KEY.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(EnvAPIKey)
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		apiKey:     cfg.APIKey,
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + transcriptionsPath,
		model:      cfg.Model,
	}
}

// TranscribeFile returns the transcript of the audio file at audioPath.
// language may be empty to let the service detect it.
func (c *Client) TranscribeFile(ctx context.Context, audioPath, language string) (string, error) {
	if c.apiKey == "" {
		return "", ErrMissingAPIKey
	}

	body, contentType, err := c.buildForm(audioPath, language)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return "", fmt.Errorf(errFailedToCreateRequest, err)
	}

	req.Header.Set(headerAuthorization, "Bearer "+c.apiKey)
	req.Header.Set(headerContentType, contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf(errFmtRequestFailed, core.ErrNetwork, c.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

		return "", fmt.Errorf(errFmtAPIRequestFailed, core.ErrNetwork, resp.Status, strings.TrimSpace(string(detail)))
	}

	var whisperResp Response

	decodeErr := json.NewDecoder(resp.Body).Decode(&whisperResp)
	if decodeErr != nil {
		return "", fmt.Errorf(errFailedToDecodeResponse, decodeErr)
	}

	return strings.TrimSpace(whisperResp.Text), nil
}

func (c *Client) buildForm(audioPath, language string) (*bytes.Buffer, string, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return nil, "", fmt.Errorf(errFailedToOpenFile, err)
	}
	defer file.Close()

	var buf bytes.Buffer

	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile(formFieldFile, filepath.Base(audioPath))
	if err != nil {
		return nil, "", fmt.Errorf(errFailedToBuildForm, err)
	}

	_, err = io.Copy(part, file)
	if err != nil {
		return nil, "", fmt.Errorf(errFailedToBuildForm, err)
	}

	err = writer.WriteField(formFieldModel, c.model)
	if err != nil {
		return nil, "", fmt.Errorf(errFailedToBuildForm, err)
	}

	if language != "" {
		err = writer.WriteField(formFieldLanguage, language)
		if err != nil {
			return nil, "", fmt.Errorf(errFailedToBuildForm, err)
		}
	}

	closeErr := writer.Close()
	if closeErr != nil {
		return nil, "", fmt.Errorf(errFailedToBuildForm, closeErr)
	}

	return &buf, writer.FormDataContentType(), nil
}
