// Package enhance cleans reference voice samples before playback or cloning.
//
// The pipeline is a fixed, ordered list of independent transforms, each
// gated by its own flag and folded over the sample:
//
//	noise reduction -> normalization -> frequency filtering -> silence trimming
//
// Every stage consumes the sample produced by the previous one and returns a
// new value; the input is never mutated. The sample rate is preserved.
package enhance

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/book-expert/pdf-narrator/internal/audio"
	"github.com/book-expert/pdf-narrator/internal/core"
)

// Stage names, reported in AudioProcessingError.
const (
	StageNoiseReduction = "noise_reduction"
	StageNormalization  = "normalization"
	StageFiltering      = "frequency_filtering"
	StageTrimSilence    = "silence_trimming"
)

const cleanedSuffix = "_cleaned"

// Config selects which stages run. The zero value disables everything;
// use DefaultConfig for the documented all-on defaults.
type Config struct {
	// Enabled is the master switch. When false the sample passes through unchanged.
	Enabled      bool
	ReduceNoise  bool
	Normalize    bool
	ApplyFilters bool
	TrimSilence  bool
}

// DefaultConfig returns a configuration with every stage enabled.
func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		ReduceNoise:  true,
		Normalize:    true,
		ApplyFilters: true,
		TrimSilence:  true,
	}
}

// Transform is one pure step of the pipeline.
type Transform func(audio.Sample) (audio.Sample, error)

// Stage binds a transform to the flag that enables it.
type Stage struct {
	Name    string
	Enabled func(Config) bool
	Apply   Transform
}

var stages = []Stage{
	{
		Name:    StageNoiseReduction,
		Enabled: func(c Config) bool { return c.ReduceNoise },
		Apply:   ReduceNoise,
	},
	{
		Name:    StageNormalization,
		Enabled: func(c Config) bool { return c.Normalize },
		Apply:   Normalize,
	},
	{
		Name:    StageFiltering,
		Enabled: func(c Config) bool { return c.ApplyFilters },
		Apply:   Filter,
	},
	{
		Name:    StageTrimSilence,
		Enabled: func(c Config) bool { return c.TrimSilence },
		Apply:   TrimSilence,
	},
}

// Pipeline returns the stages that cfg enables, in execution order.
func Pipeline(cfg Config) []Stage {
	if !cfg.Enabled {
		return nil
	}

	var active []Stage

	for _, stage := range stages {
		if stage.Enabled(cfg) {
			active = append(active, stage)
		}
	}

	return active
}

// StageNames lists the names of the stages cfg enables.
func StageNames(cfg Config) []string {
	active := Pipeline(cfg)
	names := make([]string, len(active))

	for i, stage := range active {
		names[i] = stage.Name
	}

	return names
}

// Enhance runs the enabled stages over sample and returns the result.
// With no stage enabled the result is a bit-identical copy of the input.
func Enhance(sample audio.Sample, cfg Config) (audio.Sample, error) {
	current := sample.Clone()

	for _, stage := range Pipeline(cfg) {
		next, err := stage.Apply(current)
		if err != nil {
			return audio.Sample{}, core.NewAudioProcessingError(stage.Name, err)
		}

		current = next
	}

	return current, nil
}

// EnhanceFile loads inputPath, enhances it and writes WAV to outputPath.
// An empty outputPath becomes "<stem>_cleaned.wav" beside the input.
// It returns the path written along with both samples for diagnostics.
func EnhanceFile(inputPath, outputPath string, cfg Config) (string, Result, error) {
	original, err := audio.Load(inputPath)
	if err != nil {
		return "", Result{}, core.NewAudioProcessingError("load", err)
	}

	enhanced, err := Enhance(original, cfg)
	if err != nil {
		return "", Result{}, err
	}

	if outputPath == "" {
		outputPath = CleanedPath(inputPath)
	}

	saveErr := audio.Save(outputPath, enhanced)
	if saveErr != nil {
		return "", Result{}, core.NewAudioProcessingError("save", saveErr)
	}

	return outputPath, Result{Before: original, After: enhanced}, nil
}

// CleanedPath derives the default output path for an enhanced sample.
func CleanedPath(inputPath string) string {
	base := filepath.Base(inputPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	return filepath.Join(filepath.Dir(inputPath), fmt.Sprintf("%s%s%s", stem, cleanedSuffix, audio.FormatWAV.Extension()))
}

// Result pairs the samples before and after enhancement.
type Result struct {
	Before audio.Sample
	After  audio.Sample
}

// Report computes the diagnostic quality comparison for the result.
func (r Result) Report() QualityReport {
	return Analyze(r.Before, r.After)
}
