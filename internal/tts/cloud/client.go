// Package cloud synthesizes speech through the Google Translate text-to-speech
// endpoint. Text is sent in short chunks and the MP3 replies are concatenated.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/book-expert/logger"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/book-expert/pdf-narrator/internal/core"
	"github.com/book-expert/pdf-narrator/internal/tts/text"
)

// DefaultBaseURL is the public endpoint host.
const DefaultBaseURL = "https://translate.google.com"

// MaxChunkChars is the longest text the endpoint accepts per request.
const MaxChunkChars = 100

const (
	speechPath  = "/translate_tts"
	clientParam = "tw-ob"
	normalSpeed = "1"
	slowSpeed   = "0.3"
	userAgent   = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko)"
	breakerName = "cloud-tts"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultTimeout            = 30 * time.Second
	DefaultRequestsPerSecond  = 5.0
	DefaultBreakerFailures    = 5
	DefaultBreakerOpenTimeout = 30 * time.Second
)

const (
	errEmptyText          = "text cannot be empty"
	errEmptyAudio         = "received empty audio data"
	errFmtUnsupported     = "%w: %q"
	errFmtRejected        = "%w: %q rejected by service (%s)"
	errFmtRequest         = "%w: request to %s: %w"
	errFmtStatus          = "%w: service returned %s: %s"
	errFmtChunk           = "chunk %d/%d: %w"
	errFmtBreakerOpen     = "%w: %w"
	logBreakerStateChange = "Circuit breaker %s changed from %s to %s"
	logSynthesizeStarted  = "Synthesizing %d characters in %d chunks (language %s, slow %t)"
)

const maxErrorBodyBytes = 512

// Config tunes the client. Zero values take the package defaults.
type Config struct {
	BaseURL            string
	Timeout            time.Duration
	RequestsPerSecond  float64
	BreakerFailures    uint32
	BreakerOpenTimeout time.Duration
}

// Client is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[[]byte]
	log        *logger.Logger
}

// New returns a Client. log may be nil.
func New(cfg Config, log *logger.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}

	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = DefaultBreakerFailures
	}

	if cfg.BreakerOpenTimeout <= 0 {
		cfg.BreakerOpenTimeout = DefaultBreakerOpenTimeout
	}

	client := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		log:        log,
	}

	client.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			// Only service outages count against the breaker.
			return err == nil || !errors.Is(err, core.ErrNetwork)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if client.log != nil {
				client.log.Warn(logBreakerStateChange, name, from.String(), to.String())
			}
		},
	})

	return client
}

// Synthesize converts text to MP3 audio in language. The language is checked
// against the supported table before any request is made.
func (c *Client) Synthesize(ctx context.Context, input, language string, slow bool) ([]byte, error) {
	if !IsSupported(language) {
		return nil, fmt.Errorf(errFmtUnsupported, core.ErrUnsupportedLanguage, language)
	}

	chunks := text.Split(input, MaxChunkChars)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: %s", core.ErrSynthesis, errEmptyText)
	}

	if c.log != nil {
		c.log.Info(logSynthesizeStarted, len(input), len(chunks), language, slow)
	}

	var audio []byte

	for i, chunk := range chunks {
		waitErr := c.limiter.Wait(ctx)
		if waitErr != nil {
			return nil, fmt.Errorf(errFmtChunk, i+1, len(chunks), waitErr)
		}

		data, err := c.breaker.Execute(func() ([]byte, error) {
			return c.fetchChunk(ctx, chunk, language, slow, i, len(chunks))
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				err = fmt.Errorf(errFmtBreakerOpen, core.ErrNetwork, err)
			}

			return nil, fmt.Errorf(errFmtChunk, i+1, len(chunks), err)
		}

		audio = append(audio, data...)
	}

	return audio, nil
}

func (c *Client) fetchChunk(ctx context.Context, chunk, language string, slow bool, index, total int) ([]byte, error) {
	speed := normalSpeed
	if slow {
		speed = slowSpeed
	}

	query := url.Values{}
	query.Set("ie", "UTF-8")
	query.Set("q", chunk)
	query.Set("tl", normalizeLanguage(language))
	query.Set("client", clientParam)
	query.Set("ttsspeed", speed)
	query.Set("total", strconv.Itoa(total))
	query.Set("idx", strconv.Itoa(index))
	query.Set("textlen", strconv.Itoa(len([]rune(chunk))))

	endpoint := c.baseURL + speechPath + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", c.baseURL+"/")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, fmt.Errorf(errFmtRequest, core.ErrNetwork, c.baseURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf(errFmtRejected, core.ErrUnsupportedLanguage, language, resp.Status)
	case resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

		return nil, fmt.Errorf(errFmtStatus, core.ErrNetwork, resp.Status, strings.TrimSpace(string(body)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf(errFmtRequest, core.ErrNetwork, c.baseURL, err)
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", core.ErrNetwork, errEmptyAudio)
	}

	return data, nil
}
