package audio

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Format represents a supported audio container.
type Format string

// Supported containers. WAV is read and written; MP3 and FLAC are read only.
const (
	FormatWAV  Format = "wav"
	FormatMP3  Format = "mp3"
	FormatFLAC Format = "flac"
)

// ErrUnsupportedFormat is returned for containers the codecs cannot handle.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// ContentType returns the MIME type used when serving the format.
func (f Format) ContentType() string {
	switch f {
	case FormatMP3:
		return "audio/mpeg"
	case FormatFLAC:
		return "audio/flac"
	case FormatWAV:
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}

// Extension returns the file extension, including the leading dot.
func (f Format) Extension() string {
	return "." + string(f)
}

// FormatFromPath infers the container from a file extension.
func FormatFromPath(path string) (Format, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))

	switch Format(ext) {
	case FormatWAV, FormatMP3, FormatFLAC:
		return Format(ext), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}
