// Package convert wires extraction, preprocessing, enhancement and
// synthesis into the conversions offered by the presentation layers.
package convert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/pdf-narrator/internal/audio"
	"github.com/book-expert/pdf-narrator/internal/core"
	"github.com/book-expert/pdf-narrator/internal/document"
	"github.com/book-expert/pdf-narrator/internal/enhance"
	"github.com/book-expert/pdf-narrator/internal/metrics"
	"github.com/book-expert/pdf-narrator/internal/tts/text"
	"github.com/book-expert/pdf-narrator/internal/tts/ttsutils"
)

// DefaultLanguage is used when a request leaves the language empty.
const DefaultLanguage = "en"

const outputFilePermissions = 0o644

const (
	errNoTextInPDF      = "no text found in PDF"
	errNoSpeech         = "no speech found in input audio"
	errFmtStage         = "%s: %w"
	errFmtUnavailable   = "%w: %s"
	errFmtUnknownMode   = "%w: %q"
	logConversionStart  = "Starting %s conversion of %s (language %s)"
	logConversionDone   = "Finished %s conversion in %s: %s (%s)"
	logConversionFailed = "%s conversion of %s failed after %s: %v"
	logQuality          = "Voice sample SNR %.1f dB -> %.1f dB (%+.1f dB), duration %s -> %s"
	logNotImproved      = "Enhancement did not raise the estimated SNR of the voice sample"
	logEnhanceStages    = "Enhancing voice sample with stages: %s"
	logPagesExtracted   = "Extracted %d non-empty pages (%d characters) from %s"
)

// Stage names used to wrap errors.
const (
	stageExtract    = "extract"
	stageSynthesize = "synthesize"
	stageReference  = "reference voice"
	stageTranscribe = "transcribe"
	stageWrite      = "write output"
)

var (
	// ErrMissingDependency is returned by New when a required collaborator is nil.
	ErrMissingDependency = errors.New("missing dependency")
	// ErrModeUnavailable is returned when the engine behind a mode is not configured.
	ErrModeUnavailable = errors.New("conversion mode not configured")
	// ErrUnknownMode is returned by Run for an unrecognized mode.
	ErrUnknownMode = errors.New("unknown conversion mode")
	// ErrMissingInput is returned when a request names no input file.
	ErrMissingInput = errors.New("input file not specified")
)

// Extractor reads page text and metadata from a PDF.
type Extractor interface {
	Extract(ctx context.Context, path string, pages *document.PageRange) ([]document.Page, error)
	Info(ctx context.Context, path string) (document.Info, error)
}

// CloudSynthesizer turns text into MP3 bytes through a hosted service.
type CloudSynthesizer interface {
	Synthesize(ctx context.Context, input, language string, slow bool) ([]byte, error)
}

// CloneSynthesizer speaks text in the voice of a reference sample.
type CloneSynthesizer interface {
	Synthesize(ctx context.Context, input string, reference audio.Sample, language string) (audio.Sample, error)
	Languages() []string
}

// Transcriber turns recorded speech into text.
type Transcriber interface {
	TranscribeFile(ctx context.Context, audioPath, language string) (string, error)
}

// Dependencies are the collaborators of a Service. Extractor and Log are
// required; a nil synthesizer or transcriber disables the modes using it.
type Dependencies struct {
	Extractor   Extractor
	Cloud       CloudSynthesizer
	Clone       CloneSynthesizer
	Transcriber Transcriber
	Metrics     *metrics.Metrics
	Log         *logger.Logger
}

// Service runs conversions. Each call is synchronous on the caller's
// goroutine; the Service itself holds no per-conversion state.
type Service struct {
	extractor   Extractor
	cloud       CloudSynthesizer
	clone       CloneSynthesizer
	transcriber Transcriber
	metrics     *metrics.Metrics
	log         *logger.Logger
}

// New returns a Service over deps.
func New(deps Dependencies) (*Service, error) {
	if deps.Extractor == nil {
		return nil, fmt.Errorf("%w: extractor", ErrMissingDependency)
	}

	if deps.Log == nil {
		return nil, fmt.Errorf("%w: logger", ErrMissingDependency)
	}

	return &Service{
		extractor:   deps.Extractor,
		cloud:       deps.Cloud,
		clone:       deps.Clone,
		transcriber: deps.Transcriber,
		metrics:     deps.Metrics,
		log:         deps.Log,
	}, nil
}

// CloudRequest converts a PDF with the cloud synthesizer.
type CloudRequest struct {
	PDFPath string
	// OutputPath defaults to "<pdf stem>.mp3" beside the PDF.
	OutputPath string
	Language   string
	Slow       bool
	Pages      *document.PageRange
}

// CloneRequest converts a PDF in the voice of VoicePath.
type CloneRequest struct {
	PDFPath   string
	VoicePath string
	// OutputPath defaults to "<pdf stem>.wav" beside the PDF.
	OutputPath string
	Language   string
	Pages      *document.PageRange
	Enhance    enhance.Config
}

// CleanRequest enhances a voice sample on its own.
type CleanRequest struct {
	VoicePath string
	// OutputPath defaults to "<voice stem>_cleaned.wav" beside the input.
	OutputPath string
	Enhance    enhance.Config
}

// SpeechRequest re-speaks recorded speech in the voice of VoicePath.
type SpeechRequest struct {
	InputPath string
	VoicePath string
	// OutputPath defaults to "<input stem>_cloned.wav" beside the input.
	OutputPath string
	Language   string
	Enhance    enhance.Config
}

// Result describes a finished conversion.
type Result struct {
	Mode       core.Mode
	OutputPath string
	Format     audio.Format
	Bytes      int64
	Pages      int
	Characters int
	// Duration is the length of produced audio when it is known.
	Duration time.Duration
	// Quality is set when a voice sample went through enhancement.
	Quality *enhance.QualityReport
}

// Info returns the page count and metadata of a PDF.
func (s *Service) Info(ctx context.Context, pdfPath string) (document.Info, error) {
	info, err := s.extractor.Info(ctx, pdfPath)
	if err != nil {
		return document.Info{}, fmt.Errorf(errFmtStage, stageExtract, err)
	}

	return info, nil
}

// ConvertCloud extracts text, prepares it for speech and writes MP3 audio
// from the cloud synthesizer.
func (s *Service) ConvertCloud(ctx context.Context, req CloudRequest) (result Result, err error) {
	language := languageOrDefault(req.Language)
	done := s.begin(core.ModeCloud, req.PDFPath, language)

	defer func() { done(result, err) }()

	if s.cloud == nil {
		return Result{}, fmt.Errorf(errFmtUnavailable, ErrModeUnavailable, core.ModeCloud)
	}

	prepared, pages, err := s.prepareText(ctx, req.PDFPath, req.Pages, language)
	if err != nil {
		return Result{}, err
	}

	mp3, err := s.cloud.Synthesize(ctx, prepared, language, req.Slow)
	if err != nil {
		return Result{}, fmt.Errorf(errFmtStage, stageSynthesize, err)
	}

	outputPath := req.OutputPath
	if outputPath == "" {
		outputPath = siblingPath(req.PDFPath, audio.FormatMP3.Extension())
	}

	writeErr := writeOutput(outputPath, mp3)
	if writeErr != nil {
		return Result{}, writeErr
	}

	return Result{
		Mode:       core.ModeCloud,
		OutputPath: outputPath,
		Format:     audio.FormatMP3,
		Bytes:      int64(len(mp3)),
		Pages:      pages,
		Characters: len(prepared),
	}, nil
}

// ConvertClone extracts text and speaks it in the voice of the reference
// sample, enhancing the sample first when req.Enhance is enabled.
func (s *Service) ConvertClone(ctx context.Context, req CloneRequest) (result Result, err error) {
	language := languageOrDefault(req.Language)
	done := s.begin(core.ModeClone, req.PDFPath, language)

	defer func() { done(result, err) }()

	if s.clone == nil {
		return Result{}, fmt.Errorf(errFmtUnavailable, ErrModeUnavailable, core.ModeClone)
	}

	prepared, pages, err := s.prepareText(ctx, req.PDFPath, req.Pages, language)
	if err != nil {
		return Result{}, err
	}

	defaultOutput := siblingPath(req.PDFPath, audio.FormatWAV.Extension())

	result, err = s.speak(ctx, prepared, req.VoicePath, req.OutputPath, defaultOutput, language, req.Enhance)
	if err != nil {
		return Result{}, err
	}

	result.Mode = core.ModeClone
	result.Pages = pages

	return result, nil
}

// CleanVoice runs the enhancement pipeline over a voice sample and writes WAV.
func (s *Service) CleanVoice(_ context.Context, req CleanRequest) (result Result, err error) {
	done := s.begin(core.ModeClean, req.VoicePath, "")

	defer func() { done(result, err) }()

	if req.VoicePath == "" {
		return Result{}, core.NewAudioProcessingError("load", ErrMissingInput)
	}

	outputPath, enhanced, err := enhance.EnhanceFile(req.VoicePath, req.OutputPath, req.Enhance)
	if err != nil {
		return Result{}, err
	}

	report := enhanced.Report()
	s.logQuality(report)

	return Result{
		Mode:       core.ModeClean,
		OutputPath: outputPath,
		Format:     audio.FormatWAV,
		Bytes:      fileSize(outputPath),
		Duration:   enhanced.After.Duration(),
		Quality:    &report,
	}, nil
}

// ConvertSpeech transcribes recorded speech and speaks the transcript in
// the voice of the reference sample.
func (s *Service) ConvertSpeech(ctx context.Context, req SpeechRequest) (result Result, err error) {
	language := languageOrDefault(req.Language)
	done := s.begin(core.ModeSpeech, req.InputPath, language)

	defer func() { done(result, err) }()

	if s.transcriber == nil || s.clone == nil {
		return Result{}, fmt.Errorf(errFmtUnavailable, ErrModeUnavailable, core.ModeSpeech)
	}

	if req.InputPath == "" {
		return Result{}, fmt.Errorf(errFmtStage, stageTranscribe, ErrMissingInput)
	}

	transcript, err := s.transcriber.TranscribeFile(ctx, req.InputPath, language)
	if err != nil {
		return Result{}, fmt.Errorf(errFmtStage, stageTranscribe, err)
	}

	prepared := text.NewPreprocessor(language).PreprocessText(transcript)
	if prepared == "" {
		return Result{}, fmt.Errorf("%s: %w: %s", stageTranscribe, core.ErrSynthesis, errNoSpeech)
	}

	result, err = s.speak(ctx, prepared, req.VoicePath, req.OutputPath, clonedPath(req.InputPath), language, req.Enhance)
	if err != nil {
		return Result{}, err
	}

	result.Mode = core.ModeSpeech

	return result, nil
}

// speak loads and optionally enhances the reference voice, clones it over
// prepared and writes the WAV result.
func (s *Service) speak(
	ctx context.Context,
	prepared, voicePath, outputPath, defaultOutput, language string,
	cfg enhance.Config,
) (Result, error) {
	reference, quality, err := s.loadReference(voicePath, cfg)
	if err != nil {
		return Result{}, fmt.Errorf(errFmtStage, stageReference, err)
	}

	speech, err := s.clone.Synthesize(ctx, prepared, reference, language)
	if err != nil {
		return Result{}, fmt.Errorf(errFmtStage, stageSynthesize, err)
	}

	if outputPath == "" {
		outputPath = defaultOutput
	}

	wav, err := audio.EncodeWAVBytes(speech)
	if err != nil {
		return Result{}, fmt.Errorf(errFmtStage, stageWrite, core.NewAudioProcessingError("encode", err))
	}

	writeErr := writeOutput(outputPath, wav)
	if writeErr != nil {
		return Result{}, writeErr
	}

	return Result{
		OutputPath: outputPath,
		Format:     audio.FormatWAV,
		Bytes:      int64(len(wav)),
		Characters: len(prepared),
		Duration:   speech.Duration(),
		Quality:    quality,
	}, nil
}

func (s *Service) loadReference(voicePath string, cfg enhance.Config) (audio.Sample, *enhance.QualityReport, error) {
	if voicePath == "" {
		return audio.Sample{}, nil, core.NewAudioProcessingError("load", ErrMissingInput)
	}

	reference, err := audio.Load(voicePath)
	if err != nil {
		return audio.Sample{}, nil, core.NewAudioProcessingError("load", err)
	}

	if !cfg.Enabled {
		return reference, nil, nil
	}

	s.log.Info(logEnhanceStages, strings.Join(enhance.StageNames(cfg), ", "))

	enhanced, err := enhance.Enhance(reference, cfg)
	if err != nil {
		return audio.Sample{}, nil, err
	}

	report := enhance.Analyze(reference, enhanced)
	s.logQuality(report)

	return enhanced, &report, nil
}

// prepareText extracts the selected pages and turns them into speakable text.
func (s *Service) prepareText(
	ctx context.Context,
	pdfPath string,
	pages *document.PageRange,
	language string,
) (string, int, error) {
	if pdfPath == "" {
		return "", 0, fmt.Errorf("%s: %w: %w", stageExtract, core.ErrDocument, ErrMissingInput)
	}

	extracted, err := s.extractor.Extract(ctx, pdfPath, pages)
	if err != nil {
		return "", 0, fmt.Errorf(errFmtStage, stageExtract, err)
	}

	joined := document.JoinText(extracted)
	if strings.TrimSpace(joined) == "" {
		return "", 0, fmt.Errorf("%s: %w: %s", stageExtract, core.ErrDocument, errNoTextInPDF)
	}

	s.log.Info(logPagesExtracted, len(extracted), len(joined), pdfPath)

	if s.metrics != nil {
		s.metrics.AddPages(len(extracted))
	}

	return text.NewPreprocessor(language).PreprocessText(joined), len(extracted), nil
}

// begin logs and counts a conversion start and returns the matching finish.
func (s *Service) begin(mode core.Mode, input, language string) func(Result, error) {
	start := time.Now()

	s.log.Info(logConversionStart, mode, input, language)

	if s.metrics != nil {
		s.metrics.StartConversion()
	}

	return func(result Result, err error) {
		elapsed := time.Since(start)
		status := ""

		if err != nil {
			status = core.Kind(err)
			s.log.Error(logConversionFailed, mode, input, ttsutils.FormatDuration(elapsed), err)
		} else {
			s.log.Info(logConversionDone, mode, ttsutils.FormatDuration(elapsed),
				result.OutputPath, ttsutils.FormatFileSize(result.Bytes))
		}

		if s.metrics != nil {
			s.metrics.FinishConversion(string(mode), status, elapsed)
			s.metrics.ObserveAudio(string(mode), result.Duration)
		}
	}
}

func (s *Service) logQuality(report enhance.QualityReport) {
	s.log.Info(logQuality,
		report.SNRBeforeDB, report.SNRAfterDB, report.Improvement(),
		ttsutils.FormatDuration(report.DurationBefore), ttsutils.FormatDuration(report.DurationAfter))

	if !report.Improved() {
		s.log.Warn(logNotImproved)
	}
}

// CloneLanguages returns the language codes the clone synthesizer accepts,
// or nil when clone mode is not configured.
func (s *Service) CloneLanguages() []string {
	if s.clone == nil {
		return nil
	}

	return s.clone.Languages()
}

func writeOutput(path string, data []byte) error {
	err := ttsutils.EnsureDir(filepath.Dir(path))
	if err != nil {
		return fmt.Errorf(errFmtStage, stageWrite, err)
	}

	err = os.WriteFile(path, data, outputFilePermissions)
	if err != nil {
		return fmt.Errorf(errFmtStage, stageWrite, err)
	}

	return nil
}

func siblingPath(inputPath, extension string) string {
	return filepath.Join(filepath.Dir(inputPath), ttsutils.OutputName(inputPath, extension))
}

func clonedPath(inputPath string) string {
	return siblingPath(inputPath, "_cloned"+audio.FormatWAV.Extension())
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}

	return info.Size()
}

func languageOrDefault(language string) string {
	language = strings.TrimSpace(language)
	if language == "" {
		return DefaultLanguage
	}

	return language
}
