package main

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/pdf-narrator/internal/config"
	"github.com/book-expert/pdf-narrator/internal/convert"
	"github.com/book-expert/pdf-narrator/internal/core"
	"github.com/book-expert/pdf-narrator/internal/document"
	"github.com/book-expert/pdf-narrator/internal/document/pdftest"
	"github.com/book-expert/pdf-narrator/internal/enhance"
)

type fakeRunner struct {
	job    convert.Job
	result convert.Result
	info   document.Info
	err    error
}

func (f *fakeRunner) Run(_ context.Context, job convert.Job) (convert.Result, error) {
	f.job = job

	return f.result, f.err
}

func (f *fakeRunner) Info(_ context.Context, _ string) (document.Info, error) {
	return f.info, f.err
}

func mustParse(t *testing.T, args ...string) appFlags {
	t.Helper()

	flags, err := parseFlags(args)
	require.NoError(t, err)

	return flags
}

func TestParseFlags_Defaults(t *testing.T) {
	t.Parallel()

	flags := mustParse(t)

	assert.Equal(t, string(core.ModeCloud), flags.mode)
	assert.True(t, flags.clean)
	assert.False(t, flags.slow)
	assert.Zero(t, flags.start)
	assert.Zero(t, flags.end)
}

func TestParseFlags_All(t *testing.T) {
	t.Parallel()

	flags := mustParse(t,
		"-pdf", "book.pdf", "-voice", "me.wav", "-output", "out.wav", "-mode", "clone",
		"-lang", "fr", "-slow", "-start", "2", "-end", "5", "-clean=false",
		"-no-reduce-noise", "-no-normalize", "-no-filters", "-no-trim",
		"-config", "narrator.toml", "-verbose",
	)

	assert.Equal(t, appFlags{
		pdf: "book.pdf", voice: "me.wav", output: "out.wav", mode: "clone", lang: "fr",
		config: "narrator.toml", start: 2, end: 5, slow: true, clean: false,
		noReduceNoise: true, noNormalize: true, noFilters: true, noTrim: true, verbose: true,
	}, flags)
}

func TestParseFlags_Unknown(t *testing.T) {
	t.Parallel()

	_, err := parseFlags([]string{"-chunks", "file.json"})
	require.ErrorIs(t, err, errUsage)
}

func TestBuildJob_Valid(t *testing.T) {
	t.Parallel()

	cfg := config.Default()

	tests := []struct {
		name string
		args []string
		mode core.Mode
	}{
		{name: "cloud", args: []string{"-pdf", "a.pdf"}, mode: core.ModeCloud},
		{name: "clone", args: []string{"-mode", "clone", "-pdf", "a.PDF", "-voice", "v.mp3"}, mode: core.ModeClone},
		{name: "clean", args: []string{"-mode", "clean", "-voice", "v.flac"}, mode: core.ModeClean},
		{name: "speech", args: []string{"-mode", "speech", "-voice", "v.wav", "-input", "talk.wav"}, mode: core.ModeSpeech},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			job, err := buildJob(mustParse(t, testCase.args...), cfg)
			require.NoError(t, err)
			assert.Equal(t, testCase.mode, job.Mode)
			assert.Equal(t, config.DefaultLanguage, job.Language)
			assert.Nil(t, job.Pages)
			assert.Equal(t, enhance.DefaultConfig(), job.Enhance)
		})
	}
}

func TestBuildJob_Invalid(t *testing.T) {
	t.Parallel()

	cfg := config.Default()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "unknown mode", args: []string{"-mode", "radio"}, want: "unknown mode"},
		{name: "cloud without pdf", args: []string{}, want: "requires -pdf"},
		{name: "not a pdf", args: []string{"-pdf", "book.txt"}, want: "not a PDF"},
		{name: "clone without voice", args: []string{"-mode", "clone", "-pdf", "a.pdf"}, want: "requires -voice"},
		{name: "voice not audio", args: []string{"-mode", "clean", "-voice", "v.ogg"}, want: "not a supported audio"},
		{name: "speech without input", args: []string{"-mode", "speech", "-voice", "v.wav"}, want: "requires -input"},
		{name: "negative page", args: []string{"-pdf", "a.pdf", "-start", "-1"}, want: "start at 1"},
		{name: "inverted range", args: []string{"-pdf", "a.pdf", "-start", "5", "-end", "2"}, want: "after -end"},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			_, err := buildJob(mustParse(t, testCase.args...), cfg)
			require.ErrorIs(t, err, errUsage)
			assert.Contains(t, err.Error(), testCase.want)
		})
	}
}

func TestBuildJob_PagesAndEnhancement(t *testing.T) {
	t.Parallel()

	job, err := buildJob(mustParse(t,
		"-mode", "clone", "-pdf", "a.pdf", "-voice", "v.wav", "-lang", "es",
		"-start", "3", "-no-filters", "-no-trim",
	), config.Default())
	require.NoError(t, err)

	require.NotNil(t, job.Pages)
	assert.Equal(t, document.PageRange{Start: 2, End: math.MaxInt32 - 1}, *job.Pages)
	assert.Equal(t, "es", job.Language)
	assert.Equal(t, enhance.Config{Enabled: true, ReduceNoise: true, Normalize: true}, job.Enhance)

	job, err = buildJob(mustParse(t, "-mode", "clean", "-voice", "v.wav", "-clean=false"), config.Default())
	require.NoError(t, err)
	assert.True(t, job.Enhance.Enabled, "clean mode always enhances")
}

func TestBuildJob_ConfigDisablesEnhancement(t *testing.T) {
	t.Parallel()

	disabled := false
	cfg := config.Default()
	cfg.Enhancement.ReduceNoise = &disabled
	cfg.CloudTTS.Slow = true

	job, err := buildJob(mustParse(t, "-mode", "clone", "-pdf", "a.pdf", "-voice", "v.wav"), cfg)
	require.NoError(t, err)
	assert.False(t, job.Enhance.ReduceNoise)
	assert.True(t, job.Enhance.Normalize)
	assert.True(t, job.Slow)
}

func TestExecute_PrintsResult(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{result: convert.Result{
		OutputPath: "book.wav",
		Bytes:      2048,
		Pages:      4,
		Characters: 900,
		Duration:   42 * time.Second,
		Quality: &enhance.QualityReport{
			SNRBeforeDB:    10,
			SNRAfterDB:     16.5,
			DurationBefore: 20 * time.Second,
			DurationAfter:  18 * time.Second,
		},
	}}

	var out bytes.Buffer

	flags := mustParse(t, "-mode", "clone", "-pdf", "book.pdf", "-voice", "me.wav", "-verbose")
	require.NoError(t, execute(context.Background(), runner, config.Default(), flags, &out))

	assert.Equal(t, "book.pdf", runner.job.PDFPath)
	assert.Contains(t, out.String(), "Wrote book.wav (2.0 KB, 42.0s of audio)")
	assert.Contains(t, out.String(), "Pages narrated: 4, characters: 900")
	assert.Contains(t, out.String(),
		"Enhancement stages: noise_reduction, normalization, frequency_filtering, silence_trimming")
	assert.Contains(t, out.String(), "+6.5 dB")
	assert.NotContains(t, out.String(), "Warning")

	out.Reset()
	flags.verbose = false
	require.NoError(t, execute(context.Background(), runner, config.Default(), flags, &out))
	assert.Equal(t, 1, strings.Count(out.String(), "\n"))
}

func TestExecute_WarnsWhenEnhancementDidNotHelp(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{result: convert.Result{
		OutputPath: "voice_cleaned.wav",
		Bytes:      512,
		Quality: &enhance.QualityReport{
			SNRBeforeDB: 12,
			SNRAfterDB:  11,
		},
	}}

	var out bytes.Buffer

	flags := mustParse(t, "-mode", "clean", "-voice", "me.wav", "-no-filters", "-verbose")
	require.NoError(t, execute(context.Background(), runner, config.Default(), flags, &out))

	assert.Contains(t, out.String(), "Wrote voice_cleaned.wav (512 B")
	assert.Contains(t, out.String(), "Enhancement stages: noise_reduction, normalization, silence_trimming\n")
	assert.Contains(t, out.String(), "Warning: enhancement did not raise the estimated SNR")
}

func TestExecute_ReportsErrorKind(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{err: fmt.Errorf("extract: %w: no text found in PDF", core.ErrDocument)}

	var out bytes.Buffer

	err := execute(context.Background(), runner, config.Default(), mustParse(t, "-pdf", "scan.pdf"), &out)
	require.ErrorIs(t, err, core.ErrDocument)
	assert.Contains(t, err.Error(), "[document]")
	assert.Empty(t, out.String())
}

func TestExecute_Info(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{info: document.Info{PageCount: 12, Title: "Moby Dick", Author: "Herman Melville"}}

	var out bytes.Buffer

	require.NoError(t, execute(context.Background(), runner, config.Default(), mustParse(t, "-mode", "info", "-pdf", "m.pdf"), &out))
	assert.Contains(t, out.String(), "Pages:   12")
	assert.Contains(t, out.String(), "Moby Dick")
	assert.Contains(t, out.String(), "Herman Melville")
	assert.NotContains(t, out.String(), "Subject:")

	err := execute(context.Background(), runner, config.Default(), mustParse(t, "-mode", "info"), &out)
	require.ErrorIs(t, err, errUsage)
}

func TestRun_InfoEndToEnd(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	pdfPath, err := pdftest.WriteFile(dir, "guide.pdf", []string{"Chapter one.", "Chapter two."}, pdftest.Metadata{Title: "Field Guide"})
	require.NoError(t, err)

	configPath := filepath.Join(dir, "narrator.toml")
	configBody := fmt.Sprintf("[paths]\nbase_logs_dir = %q\ncache_dir = %q\n", filepath.Join(dir, "logs"), dir)
	require.NoError(t, os.WriteFile(configPath, []byte(configBody), 0o600))

	var out bytes.Buffer

	require.NoError(t, run([]string{"-mode", "info", "-pdf", pdfPath, "-config", configPath}, &out))
	assert.Contains(t, out.String(), "Pages:   2")
	assert.Contains(t, out.String(), "Field Guide")
	assert.FileExists(t, filepath.Join(dir, "logs", logFileName))
}
