package convert

import (
	"context"
	"fmt"

	"github.com/book-expert/pdf-narrator/internal/core"
	"github.com/book-expert/pdf-narrator/internal/document"
	"github.com/book-expert/pdf-narrator/internal/enhance"
)

// Job is a mode-tagged conversion, used by the CLI and the worker where
// the mode is only known at run time.
type Job struct {
	Mode       core.Mode
	PDFPath    string
	VoicePath  string
	InputPath  string
	OutputPath string
	Language   string
	Slow       bool
	Pages      *document.PageRange
	Enhance    enhance.Config
}

// Run dispatches job to the conversion named by its mode.
func (s *Service) Run(ctx context.Context, job Job) (Result, error) {
	switch job.Mode {
	case core.ModeCloud:
		return s.ConvertCloud(ctx, CloudRequest{
			PDFPath:    job.PDFPath,
			OutputPath: job.OutputPath,
			Language:   job.Language,
			Slow:       job.Slow,
			Pages:      job.Pages,
		})
	case core.ModeClone:
		return s.ConvertClone(ctx, CloneRequest{
			PDFPath:    job.PDFPath,
			VoicePath:  job.VoicePath,
			OutputPath: job.OutputPath,
			Language:   job.Language,
			Pages:      job.Pages,
			Enhance:    job.Enhance,
		})
	case core.ModeClean:
		return s.CleanVoice(ctx, CleanRequest{
			VoicePath:  job.VoicePath,
			OutputPath: job.OutputPath,
			Enhance:    job.Enhance,
		})
	case core.ModeSpeech:
		return s.ConvertSpeech(ctx, SpeechRequest{
			InputPath:  job.InputPath,
			VoicePath:  job.VoicePath,
			OutputPath: job.OutputPath,
			Language:   job.Language,
			Enhance:    job.Enhance,
		})
	default:
		return Result{}, fmt.Errorf(errFmtUnknownMode, ErrUnknownMode, job.Mode)
	}
}
