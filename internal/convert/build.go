package convert

import (
	"fmt"

	"github.com/book-expert/logger"

	"github.com/book-expert/pdf-narrator/internal/config"
	"github.com/book-expert/pdf-narrator/internal/document"
	"github.com/book-expert/pdf-narrator/internal/metrics"
	"github.com/book-expert/pdf-narrator/internal/tts/clone"
	"github.com/book-expert/pdf-narrator/internal/tts/cloud"
	"github.com/book-expert/pdf-narrator/internal/tts/whisper"
)

const errFmtBuildExtractor = "failed to create PDF extractor: %w"

// NewFromConfig wires every collaborator named by cfg. m may be nil.
func NewFromConfig(cfg *config.Config, m *metrics.Metrics, log *logger.Logger) (*Service, error) {
	extractor, err := document.NewExtractor(cfg.PDF.Engine)
	if err != nil {
		return nil, fmt.Errorf(errFmtBuildExtractor, err)
	}

	return New(Dependencies{
		Extractor:   extractor,
		Cloud:       cloud.New(cfg.CloudClientConfig(), log),
		Clone:       clone.New(cfg.CloneConfig(), log),
		Transcriber: whisper.NewClient(cfg.WhisperClientConfig()),
		Metrics:     m,
		Log:         log,
	})
}
