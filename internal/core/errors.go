package core

import (
	"errors"
	"fmt"
)

// Error taxonomy. Every failure surfaced to a caller wraps exactly one of these.
var (
	// ErrDocument indicates the input document could not be opened or parsed.
	ErrDocument = errors.New("document error")
	// ErrAudioProcessing indicates a named enhancement stage failed.
	ErrAudioProcessing = errors.New("audio processing error")
	// ErrNetwork indicates a remote service was unreachable or returned a failure.
	ErrNetwork = errors.New("network error")
	// ErrUnsupportedLanguage indicates the language code is not recognized.
	ErrUnsupportedLanguage = errors.New("unsupported language")
	// ErrModelLoad indicates the voice-cloning model weights are unavailable.
	ErrModelLoad = errors.New("model load error")
	// ErrSynthesis indicates empty or invalid text was passed to synthesis.
	ErrSynthesis = errors.New("synthesis error")
)

// Kind names used by the presentation layers.
const (
	KindDocument            = "document"
	KindAudioProcessing     = "audio_processing"
	KindNetwork             = "network"
	KindUnsupportedLanguage = "unsupported_language"
	KindModelLoad           = "model_load"
	KindSynthesis           = "synthesis"
	KindInternal            = "internal"
)

var kinds = []struct {
	sentinel error
	name     string
}{
	{ErrUnsupportedLanguage, KindUnsupportedLanguage},
	{ErrAudioProcessing, KindAudioProcessing},
	{ErrModelLoad, KindModelLoad},
	{ErrSynthesis, KindSynthesis},
	{ErrDocument, KindDocument},
	{ErrNetwork, KindNetwork},
}

// Kind maps err onto its taxonomy name, or KindInternal when it matches none.
func Kind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k.name
		}
	}

	return KindInternal
}

// AudioProcessingError reports which enhancement stage failed.
type AudioProcessingError struct {
	Stage string
	Err   error
}

// NewAudioProcessingError wraps err with the failing stage name.
func NewAudioProcessingError(stage string, err error) *AudioProcessingError {
	return &AudioProcessingError{Stage: stage, Err: err}
}

func (e *AudioProcessingError) Error() string {
	return fmt.Sprintf("%s: stage %q failed: %v", ErrAudioProcessing, e.Stage, e.Err)
}

func (e *AudioProcessingError) Unwrap() error {
	return e.Err
}

// Is makes every AudioProcessingError match ErrAudioProcessing.
func (e *AudioProcessingError) Is(target error) bool {
	return target == ErrAudioProcessing
}
