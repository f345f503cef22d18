// Package ttsutils holds the path, naming and formatting helpers shared by
// the synthesizers and the presentation layers.
package ttsutils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/book-expert/pdf-narrator/internal/audio"
)

const envCacheDir = "CACHE_DIR"

const (
	appName                = "pdf-narrator"
	modelsDirName          = "models"
	dotCache               = ".cache"
	defaultDirPermissions  = 0o750
	invalidCharReplacement = "_"
)

const (
	kilobyte = 1024
	megabyte = kilobyte * 1024
	gigabyte = megabyte * 1024
)

const (
	formatSeconds = "%.1fs"
	formatMinutes = "%dm %.1fs"
	formatHours   = "%dh %dm"
	formatGB      = "%.1f GB"
	formatMB      = "%.1f MB"
	formatKB      = "%.1f KB"
	formatBytes   = "%d B"
)

const (
	errFmtFailedToCreateDir      = "failed to create directory %s: %w"
	errFmtCouldNotResolvePath    = "could not resolve absolute path for %q: %w"
	errFmtErrorCheckingModelPath = "error checking model path %q: %w"
	errFmtModelNotFound          = "%w: %s"
)

// ErrModelNotFound is returned when a weights file cannot be located.
var ErrModelNotFound = errors.New("model not found")

// GetCacheDir returns the cache directory. CACHE_DIR wins, then
// ~/.cache/pdf-narrator, then a directory under the system temp dir.
func GetCacheDir() string {
	if cacheDir := os.Getenv(envCacheDir); cacheDir != "" {
		return cacheDir
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), appName, "cache")
	}

	return filepath.Join(homeDir, dotCache, appName)
}

// ModelsDir returns the directory downloaded weights are stored in.
// An empty cacheDir means GetCacheDir.
func ModelsDir(cacheDir string) string {
	if cacheDir == "" {
		cacheDir = GetCacheDir()
	}

	return filepath.Join(cacheDir, modelsDirName)
}

// EnsureDir creates path and its parents when missing.
func EnsureDir(path string) error {
	mkdirErr := os.MkdirAll(path, defaultDirPermissions)
	if mkdirErr != nil {
		return fmt.Errorf(errFmtFailedToCreateDir, path, mkdirErr)
	}

	return nil
}

// GetModelPath resolves modelName to an absolute path, trying it as given,
// then under ./models, then under ModelsDir(cacheDir).
func GetModelPath(modelName, cacheDir string) (string, error) {
	candidates := []string{
		modelName,
		filepath.Join(modelsDirName, modelName),
		filepath.Join(ModelsDir(cacheDir), modelName),
	}

	for _, candidate := range candidates {
		resolved, found, err := resolveSinglePath(candidate)
		if err != nil {
			return "", err
		}

		if found {
			return resolved, nil
		}
	}

	return "", fmt.Errorf(errFmtModelNotFound, ErrModelNotFound, modelName)
}

// resolveSinglePath reports found=false without error when path does not exist.
func resolveSinglePath(path string) (string, bool, error) {
	_, statErr := os.Stat(path)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return "", false, nil
		}

		return "", false, fmt.Errorf(errFmtErrorCheckingModelPath, path, statErr)
	}

	absPath, absErr := filepath.Abs(path)
	if absErr != nil {
		return "", false, fmt.Errorf(errFmtCouldNotResolvePath, path, absErr)
	}

	return absPath, true, nil
}

// FormatDuration renders d as "45.2s", "5m 30.5s" or "1h 15m".
func FormatDuration(d time.Duration) string {
	seconds := d.Seconds()

	switch {
	case d < time.Minute:
		return fmt.Sprintf(formatSeconds, seconds)
	case d < time.Hour:
		minutes := int(d / time.Minute)

		return fmt.Sprintf(formatMinutes, minutes, seconds-float64(minutes*60))
	default:
		hours := int(d / time.Hour)

		return fmt.Sprintf(formatHours, hours, int((d%time.Hour)/time.Minute))
	}
}

// FormatFileSize renders a byte count with a binary unit.
func FormatFileSize(bytes int64) string {
	switch {
	case bytes >= gigabyte:
		return fmt.Sprintf(formatGB, float64(bytes)/gigabyte)
	case bytes >= megabyte:
		return fmt.Sprintf(formatMB, float64(bytes)/megabyte)
	case bytes >= kilobyte:
		return fmt.Sprintf(formatKB, float64(bytes)/kilobyte)
	default:
		return fmt.Sprintf(formatBytes, bytes)
	}
}

// IsValidAudioFile reports whether filename has an extension the audio
// codecs can read.
func IsValidAudioFile(filename string) bool {
	_, err := audio.FormatFromPath(filename)

	return err == nil
}

// IsPDFFile reports whether filename has a .pdf extension.
func IsPDFFile(filename string) bool {
	return strings.EqualFold(filepath.Ext(filename), ".pdf")
}

// SanitizeFilename replaces characters that are invalid in common filesystems.
func SanitizeFilename(filename string) string {
	replacer := strings.NewReplacer(
		"<", invalidCharReplacement,
		">", invalidCharReplacement,
		":", invalidCharReplacement,
		"\"", invalidCharReplacement,
		"/", invalidCharReplacement,
		"\\", invalidCharReplacement,
		"|", invalidCharReplacement,
		"?", invalidCharReplacement,
		"*", invalidCharReplacement,
	)

	return replacer.Replace(filename)
}

// OutputName derives an output file name from an input name and extension,
// for example ("Book 1.pdf", ".mp3") gives "Book 1.mp3".
func OutputName(inputName, extension string) string {
	base := filepath.Base(inputName)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	if stem == "" || stem == "." || stem == string(filepath.Separator) {
		stem = appName
	}

	return SanitizeFilename(stem) + extension
}
