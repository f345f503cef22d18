// Package clone synthesizes speech in the voice of a reference sample by
// driving a voice-cloning model server over HTTP.
package clone

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/pdf-narrator/internal/audio"
	"github.com/book-expert/pdf-narrator/internal/core"
	"github.com/book-expert/pdf-narrator/internal/tts/text"
)

// Defaults applied by New for zero Config fields.
const (
	DefaultModelName     = "tts_models/multilingual/multi-dataset/your_tts"
	DefaultWeightsFile   = "your_tts.pth"
	DefaultTemperature   = 0.75
	DefaultMaxChunkChars = 250
	DefaultTimeout       = 5 * time.Minute
)

// DefaultLanguages are the languages offered for cloned narration.
var DefaultLanguages = []string{"en", "es", "fr", "de", "it", "pt"}

const (
	errEmptyText          = "text cannot be empty"
	errFmtUnsupported     = "%w: %q is not supported by the voice-cloning model"
	errFmtReference       = "%w: invalid reference sample: %w"
	errFmtChunk           = "chunk %d/%d: %w"
	errFmtDecode          = "%w: decode generated audio: %w"
	logSynthesizeStarted  = "Cloning voice for %d characters in %d chunks (language %s)"
	logSynthesizeFinished = "Cloned speech ready: %s of audio"
)

// Config configures the synthesizer and its model.
type Config struct {
	ServerURL     string
	Timeout       time.Duration
	ModelName     string
	WeightsFile   string
	WeightsURL    string
	CacheDir      string
	Temperature   float64
	MaxChunkChars int
	Languages     []string
}

// Synthesizer is safe for concurrent use; the model is shared.
type Synthesizer struct {
	client      *HTTPClient
	model       *Model
	temperature float64
	maxChunk    int
	languages   []string
	log         *logger.Logger
}

// New returns a Synthesizer whose model is not loaded yet. log may be nil.
func New(cfg Config, log *logger.Logger) *Synthesizer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.ModelName == "" {
		cfg.ModelName = DefaultModelName
	}

	if cfg.WeightsFile == "" {
		cfg.WeightsFile = DefaultWeightsFile
	}

	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}

	if cfg.MaxChunkChars <= 0 {
		cfg.MaxChunkChars = DefaultMaxChunkChars
	}

	if len(cfg.Languages) == 0 {
		cfg.Languages = DefaultLanguages
	}

	client := NewHTTPClient(cfg.ServerURL, cfg.Timeout)

	languages := make([]string, len(cfg.Languages))
	for i, language := range cfg.Languages {
		languages[i] = strings.ToLower(language)
	}

	return &Synthesizer{
		client: client,
		model: &Model{
			name:        cfg.ModelName,
			weightsFile: cfg.WeightsFile,
			weightsURL:  cfg.WeightsURL,
			cacheDir:    cfg.CacheDir,
			client:      client,
			downloader:  &http.Client{},
			log:         log,
		},
		temperature: cfg.Temperature,
		maxChunk:    cfg.MaxChunkChars,
		languages:   languages,
		log:         log,
	}
}

// Model returns the shared model handle.
func (s *Synthesizer) Model() *Model {
	return s.model
}

// Languages returns the accepted language codes.
func (s *Synthesizer) Languages() []string {
	return slices.Clone(s.languages)
}

// HealthCheck reports whether the model server is reachable.
func (s *Synthesizer) HealthCheck(ctx context.Context) error {
	return s.client.HealthCheck(ctx)
}

// Synthesize speaks input in the voice of reference. The model is loaded on
// first use. Long input is split into chunks whose audio is concatenated.
func (s *Synthesizer) Synthesize(
	ctx context.Context,
	input string,
	reference audio.Sample,
	language string,
) (audio.Sample, error) {
	chunks := text.Split(input, s.maxChunk)
	if len(chunks) == 0 {
		return audio.Sample{}, fmt.Errorf("%w: %s", core.ErrSynthesis, errEmptyText)
	}

	language = strings.ToLower(strings.TrimSpace(language))
	if !slices.Contains(s.languages, language) {
		return audio.Sample{}, fmt.Errorf(errFmtUnsupported, core.ErrUnsupportedLanguage, language)
	}

	refErr := reference.Validate()
	if refErr != nil {
		return audio.Sample{}, fmt.Errorf(errFmtReference, core.ErrSynthesis, refErr)
	}

	speaker, err := audio.EncodeWAVBytes(reference)
	if err != nil {
		return audio.Sample{}, fmt.Errorf(errFmtReference, core.ErrSynthesis, err)
	}

	loadErr := s.model.Load(ctx)
	if loadErr != nil {
		return audio.Sample{}, loadErr
	}

	if s.log != nil {
		s.log.Info(logSynthesizeStarted, len(input), len(chunks), language)
	}

	speakerWAV := base64.StdEncoding.EncodeToString(speaker)
	parts := make([]audio.Sample, 0, len(chunks))

	for i, chunk := range chunks {
		part, chunkErr := s.synthesizeChunk(ctx, chunk, language, speakerWAV)
		if chunkErr != nil {
			return audio.Sample{}, fmt.Errorf(errFmtChunk, i+1, len(chunks), chunkErr)
		}

		parts = append(parts, part)
	}

	result, err := audio.Concat(parts...)
	if err != nil {
		return audio.Sample{}, fmt.Errorf("%w: %w", core.ErrSynthesis, err)
	}

	if s.log != nil {
		s.log.Info(logSynthesizeFinished, result.Duration())
	}

	return result, nil
}

func (s *Synthesizer) synthesizeChunk(ctx context.Context, chunk, language, speakerWAV string) (audio.Sample, error) {
	data, err := s.client.GenerateSpeech(ctx, SpeechRequest{
		Text:        chunk,
		Language:    language,
		SpeakerWAV:  speakerWAV,
		Temperature: s.temperature,
	})
	if err != nil {
		return audio.Sample{}, classify(err, core.ErrSynthesis)
	}

	sample, err := audio.DecodeWAVBytes(data)
	if err != nil {
		return audio.Sample{}, fmt.Errorf(errFmtDecode, core.ErrSynthesis, err)
	}

	return sample, nil
}
