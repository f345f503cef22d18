// Package core defines the shared interfaces and error taxonomy for the narrator.
package core

import "context"

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// Mode names a conversion entry point.
type Mode string

// Supported conversion modes.
const (
	ModeCloud  Mode = "cloud"
	ModeClone  Mode = "clone"
	ModeClean  Mode = "clean"
	ModeSpeech Mode = "speech"
)

// Valid reports whether m is one of the known conversion modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeCloud, ModeClone, ModeClean, ModeSpeech:
		return true
	default:
		return false
	}
}
