package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/book-expert/logger"

	"github.com/book-expert/pdf-narrator/internal/config"
	"github.com/book-expert/pdf-narrator/internal/convert"
	"github.com/book-expert/pdf-narrator/internal/core"
	"github.com/book-expert/pdf-narrator/internal/document"
	"github.com/book-expert/pdf-narrator/internal/enhance"
	"github.com/book-expert/pdf-narrator/internal/tts/ttsutils"
)

// Flag descriptions and messages.
const (
	flagPDFDesc           = "PDF file to narrate"
	flagVoiceDesc         = "Reference voice sample (wav, mp3, flac)"
	flagInputDesc         = "Recorded speech to re-speak in the reference voice (speech mode)"
	flagOutputDesc        = "Output file path (defaults to a file beside the input)"
	flagModeDesc          = "Conversion mode: cloud, clone, clean, info or speech"
	flagLangDesc          = "Language code (defaults to the configured default language)"
	flagSlowDesc          = "Use the slow cloud voice"
	flagStartDesc         = "First page to narrate, 1-based (0 starts at the first page)"
	flagEndDesc           = "Last page to narrate, 1-based (0 runs to the last page)"
	flagCleanDesc         = "Enhance the voice sample before cloning"
	flagNoReduceNoiseDesc = "Skip noise reduction"
	flagNoNormalizeDesc   = "Skip normalization"
	flagNoFiltersDesc     = "Skip frequency filtering"
	flagNoTrimDesc        = "Skip silence trimming"
	flagConfigDesc        = "Path to a TOML configuration file"
	flagVerboseDesc       = "Print conversion details"
)

// Flag names.
const (
	flagPDF           = "pdf"
	flagVoice         = "voice"
	flagInput         = "input"
	flagOutput        = "output"
	flagMode          = "mode"
	flagLang          = "lang"
	flagSlow          = "slow"
	flagStart         = "start"
	flagEnd           = "end"
	flagClean         = "clean"
	flagNoReduceNoise = "no-reduce-noise"
	flagNoNormalize   = "no-normalize"
	flagNoFilters     = "no-filters"
	flagNoTrim        = "no-trim"
	flagConfig        = "config"
	flagVerbose       = "verbose"
)

// Error and log messages.
const (
	errFailedToLoadConfig = "failed to load configuration: %w"
	errFailedToInitLogger = "failed to initialize logger: %w"
	errUnknownMode        = "unknown mode %q"
	errRequiresFlag       = "%s mode requires -%s"
	errNotPDF             = "%q is not a PDF file"
	errNotAudio           = "%q is not a supported audio file"
	errNegativePage       = "page numbers start at 1"
	errInvertedRange      = "-start %d is after -end %d"
	errConversionFailed   = "conversion failed [%s]: %w"
	logCLIStarted         = "pdf-narrator %s started"
	logFileName           = "pdf-narrator.log"
	modeInfo              = "info"
)

// Output lines.
const (
	outWrote      = "Wrote %s (%s, %s of audio)\n"
	outPages      = "Pages narrated: %d, characters: %d\n"
	outQuality    = "Voice quality: SNR %.1f dB -> %.1f dB (%+.1f dB), %s -> %s\n"
	outStages     = "Enhancement stages: %s\n"
	outNoGain     = "Warning: enhancement did not raise the estimated SNR\n"
	outInfoPages  = "Pages:   %d\n"
	outInfoField  = "%-8s %s\n"
	outInfoTitle  = "Title:"
	outInfoAuthor = "Author:"
	outInfoSubj   = "Subject:"
	outInfoMaker  = "Creator:"
)

var errUsage = errors.New("invalid arguments")

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	pdf           string
	voice         string
	input         string
	output        string
	mode          string
	lang          string
	config        string
	start         int
	end           int
	slow          bool
	clean         bool
	noReduceNoise bool
	noNormalize   bool
	noFilters     bool
	noTrim        bool
	verbose       bool
}

func main() {
	err := run(os.Args[1:], os.Stdout)
	if errors.Is(err, flag.ErrHelp) {
		return
	}

	if err != nil {
		// A logger might not be initialized yet, so use the standard log package.
		log.Fatalf("Error: %v", err)
	}
}

// run is the main application entry point, returning an error on failure.
func run(args []string, stdout io.Writer) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := config.LoadFile(flags.config)
	if err != nil {
		return fmt.Errorf(errFailedToLoadConfig, err)
	}

	err = ttsutils.EnsureDir(cfg.Paths.BaseLogsDir)
	if err != nil {
		return fmt.Errorf(errFailedToInitLogger, err)
	}

	cliLog, err := logger.New(cfg.Paths.BaseLogsDir, logFileName)
	if err != nil {
		return fmt.Errorf(errFailedToInitLogger, err)
	}
	defer func() { _ = cliLog.Close() }()

	cliLog.Info(logCLIStarted, flags.mode)

	service, err := convert.NewFromConfig(cfg, nil, cliLog)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return execute(ctx, service, cfg, flags, stdout)
}

// parseFlags defines and parses command-line flags, returning them in a struct.
func parseFlags(args []string) (appFlags, error) {
	var flags appFlags

	flagSet := flag.NewFlagSet("pdf-narrator", flag.ContinueOnError)
	flagSet.StringVar(&flags.pdf, flagPDF, "", flagPDFDesc)
	flagSet.StringVar(&flags.voice, flagVoice, "", flagVoiceDesc)
	flagSet.StringVar(&flags.input, flagInput, "", flagInputDesc)
	flagSet.StringVar(&flags.output, flagOutput, "", flagOutputDesc)
	flagSet.StringVar(&flags.mode, flagMode, string(core.ModeCloud), flagModeDesc)
	flagSet.StringVar(&flags.lang, flagLang, "", flagLangDesc)
	flagSet.BoolVar(&flags.slow, flagSlow, false, flagSlowDesc)
	flagSet.IntVar(&flags.start, flagStart, 0, flagStartDesc)
	flagSet.IntVar(&flags.end, flagEnd, 0, flagEndDesc)
	flagSet.BoolVar(&flags.clean, flagClean, true, flagCleanDesc)
	flagSet.BoolVar(&flags.noReduceNoise, flagNoReduceNoise, false, flagNoReduceNoiseDesc)
	flagSet.BoolVar(&flags.noNormalize, flagNoNormalize, false, flagNoNormalizeDesc)
	flagSet.BoolVar(&flags.noFilters, flagNoFilters, false, flagNoFiltersDesc)
	flagSet.BoolVar(&flags.noTrim, flagNoTrim, false, flagNoTrimDesc)
	flagSet.StringVar(&flags.config, flagConfig, "", flagConfigDesc)
	flagSet.BoolVar(&flags.verbose, flagVerbose, false, flagVerboseDesc)

	err := flagSet.Parse(args)
	if err != nil {
		return appFlags{}, fmt.Errorf("%w: %w", errUsage, err)
	}

	return flags, nil
}

// buildJob validates flags for the chosen mode and turns them into a Job.
func buildJob(flags appFlags, cfg *config.Config) (convert.Job, error) {
	mode := core.Mode(flags.mode)
	if !mode.Valid() {
		return convert.Job{}, fmt.Errorf("%w: "+errUnknownMode, errUsage, flags.mode)
	}

	err := validateInputs(mode, flags)
	if err != nil {
		return convert.Job{}, err
	}

	pages, err := pageRange(flags.start, flags.end)
	if err != nil {
		return convert.Job{}, err
	}

	language := flags.lang
	if language == "" {
		language = cfg.CloudTTS.DefaultLanguage
	}

	enhanceCfg := cfg.Enhancement.EnhanceConfig()
	enhanceCfg.Enabled = enhanceCfg.Enabled && flags.clean
	enhanceCfg.ReduceNoise = enhanceCfg.ReduceNoise && !flags.noReduceNoise
	enhanceCfg.Normalize = enhanceCfg.Normalize && !flags.noNormalize
	enhanceCfg.ApplyFilters = enhanceCfg.ApplyFilters && !flags.noFilters
	enhanceCfg.TrimSilence = enhanceCfg.TrimSilence && !flags.noTrim

	if mode == core.ModeClean {
		enhanceCfg.Enabled = true
	}

	return convert.Job{
		Mode:       mode,
		PDFPath:    flags.pdf,
		VoicePath:  flags.voice,
		InputPath:  flags.input,
		OutputPath: flags.output,
		Language:   language,
		Slow:       flags.slow || cfg.CloudTTS.Slow,
		Pages:      pages,
		Enhance:    enhanceCfg,
	}, nil
}

func validateInputs(mode core.Mode, flags appFlags) error {
	if mode == core.ModeCloud || mode == core.ModeClone {
		if flags.pdf == "" {
			return fmt.Errorf("%w: "+errRequiresFlag, errUsage, mode, flagPDF)
		}

		if !ttsutils.IsPDFFile(flags.pdf) {
			return fmt.Errorf("%w: "+errNotPDF, errUsage, flags.pdf)
		}
	}

	if mode == core.ModeCloud {
		return nil
	}

	if flags.voice == "" {
		return fmt.Errorf("%w: "+errRequiresFlag, errUsage, mode, flagVoice)
	}

	if !ttsutils.IsValidAudioFile(flags.voice) {
		return fmt.Errorf("%w: "+errNotAudio, errUsage, flags.voice)
	}

	if mode == core.ModeSpeech {
		if flags.input == "" {
			return fmt.Errorf("%w: "+errRequiresFlag, errUsage, mode, flagInput)
		}

		if !ttsutils.IsValidAudioFile(flags.input) {
			return fmt.Errorf("%w: "+errNotAudio, errUsage, flags.input)
		}
	}

	return nil
}

// pageRange converts 1-based flag values into a 0-based range. Zero on
// both ends selects the whole document.
func pageRange(start, end int) (*document.PageRange, error) {
	if start < 0 || end < 0 {
		return nil, fmt.Errorf("%w: %s", errUsage, errNegativePage)
	}

	if start == 0 && end == 0 {
		return nil, nil
	}

	if start == 0 {
		start = 1
	}

	if end == 0 {
		end = math.MaxInt32
	}

	if start > end {
		return nil, fmt.Errorf("%w: "+errInvertedRange, errUsage, start, end)
	}

	return &document.PageRange{Start: start - 1, End: end - 1}, nil
}

// runner is the part of convert.Service the CLI drives.
type runner interface {
	Run(ctx context.Context, job convert.Job) (convert.Result, error)
	Info(ctx context.Context, pdfPath string) (document.Info, error)
}

// execute dispatches to info or a conversion and prints the outcome.
func execute(ctx context.Context, service runner, cfg *config.Config, flags appFlags, stdout io.Writer) error {
	if flags.mode == modeInfo {
		if flags.pdf == "" {
			return fmt.Errorf("%w: "+errRequiresFlag, errUsage, modeInfo, flagPDF)
		}

		info, err := service.Info(ctx, flags.pdf)
		if err != nil {
			return fmt.Errorf(errConversionFailed, core.Kind(err), err)
		}

		printInfo(stdout, info)

		return nil
	}

	job, err := buildJob(flags, cfg)
	if err != nil {
		return err
	}

	result, err := service.Run(ctx, job)
	if err != nil {
		return fmt.Errorf(errConversionFailed, core.Kind(err), err)
	}

	printResult(stdout, result, job.Enhance, flags.verbose)

	return nil
}

func printInfo(stdout io.Writer, info document.Info) {
	_, _ = fmt.Fprintf(stdout, outInfoPages, info.PageCount)

	for _, field := range [][2]string{
		{outInfoTitle, info.Title},
		{outInfoAuthor, info.Author},
		{outInfoSubj, info.Subject},
		{outInfoMaker, info.Creator},
	} {
		if field[1] != "" {
			_, _ = fmt.Fprintf(stdout, outInfoField, field[0], field[1])
		}
	}
}

func printResult(stdout io.Writer, result convert.Result, enhanceCfg enhance.Config, verbose bool) {
	_, _ = fmt.Fprintf(stdout, outWrote,
		result.OutputPath, ttsutils.FormatFileSize(result.Bytes), ttsutils.FormatDuration(result.Duration))

	if !verbose {
		return
	}

	if result.Pages > 0 {
		_, _ = fmt.Fprintf(stdout, outPages, result.Pages, result.Characters)
	}

	if result.Quality != nil {
		report := result.Quality
		_, _ = fmt.Fprintf(stdout, outStages, strings.Join(enhance.StageNames(enhanceCfg), ", "))
		_, _ = fmt.Fprintf(stdout, outQuality,
			report.SNRBeforeDB, report.SNRAfterDB, report.Improvement(),
			ttsutils.FormatDuration(report.DurationBefore), ttsutils.FormatDuration(report.DurationAfter))

		if !report.Improved() {
			_, _ = fmt.Fprint(stdout, outNoGain)
		}
	}
}
