package worker

import (
	"github.com/book-expert/events"

	"github.com/book-expert/pdf-narrator/internal/core"
	"github.com/book-expert/pdf-narrator/internal/enhance"
)

// ConversionRequestedEvent asks a worker to convert objects already in the
// store. Keys must carry the file extension of their content.
type ConversionRequestedEvent struct {
	Header   events.EventHeader `json:"header"`
	Mode     core.Mode          `json:"mode"`
	PDFKey   string             `json:"pdf_key,omitempty"`
	VoiceKey string             `json:"voice_key,omitempty"`
	// InputKey is the recorded speech for the speech mode.
	InputKey string `json:"input_key,omitempty"`
	Language string `json:"language,omitempty"`
	Slow     bool   `json:"slow,omitempty"`
	// PageStart and PageEnd are 1-based; zero leaves that end open.
	PageStart int            `json:"page_start,omitempty"`
	PageEnd   int            `json:"page_end,omitempty"`
	Enhance   EnhanceOptions `json:"enhance"`
}

// EnhanceOptions overrides the worker's default enhancement flags.
type EnhanceOptions struct {
	Enabled      *bool `json:"enabled,omitempty"`
	ReduceNoise  *bool `json:"reduce_noise,omitempty"`
	Normalize    *bool `json:"normalize,omitempty"`
	ApplyFilters *bool `json:"apply_filters,omitempty"`
	TrimSilence  *bool `json:"trim_silence,omitempty"`
}

// Resolve applies the overrides on top of defaults.
func (o EnhanceOptions) Resolve(defaults enhance.Config) enhance.Config {
	pick := func(override *bool, fallback bool) bool {
		if override == nil {
			return fallback
		}

		return *override
	}

	return enhance.Config{
		Enabled:      pick(o.Enabled, defaults.Enabled),
		ReduceNoise:  pick(o.ReduceNoise, defaults.ReduceNoise),
		Normalize:    pick(o.Normalize, defaults.Normalize),
		ApplyFilters: pick(o.ApplyFilters, defaults.ApplyFilters),
		TrimSilence:  pick(o.TrimSilence, defaults.TrimSilence),
	}
}

// AudioCreatedEvent is the reply to a ConversionRequestedEvent. Error and
// ErrorKind are set instead of AudioKey when the conversion failed.
type AudioCreatedEvent struct {
	Header          events.EventHeader `json:"header"`
	Mode            core.Mode          `json:"mode"`
	AudioKey        string             `json:"audio_key,omitempty"`
	ContentType     string             `json:"content_type,omitempty"`
	Bytes           int64              `json:"bytes,omitempty"`
	Pages           int                `json:"pages,omitempty"`
	DurationSeconds float64            `json:"duration_seconds,omitempty"`
	Error           string             `json:"error,omitempty"`
	ErrorKind       string             `json:"error_kind,omitempty"`
}
