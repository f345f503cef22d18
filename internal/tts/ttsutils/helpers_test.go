package ttsutils_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/pdf-narrator/internal/tts/ttsutils"
)

// setupModelFile creates dir and an empty weights file inside it.
func setupModelFile(t *testing.T, dir, modelName string) string {
	t.Helper()

	require.NoError(t, os.MkdirAll(dir, 0o750))

	path := filepath.Join(dir, modelName)
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	return path
}

// Tests that touch the environment or working directory cannot run in parallel.

func TestGetCacheDir_WithOverride(t *testing.T) {
	t.Setenv("CACHE_DIR", "/custom/cache/dir")

	assert.Equal(t, "/custom/cache/dir", ttsutils.GetCacheDir())
	assert.Equal(t, filepath.Join("/custom/cache/dir", "models"), ttsutils.ModelsDir(""))
}

func TestGetCacheDir_OSDefault(t *testing.T) {
	t.Setenv("CACHE_DIR", "")

	homeDir, err := os.UserHomeDir()
	if err != nil {
		t.Skip("could not determine user home directory")
	}

	assert.Equal(t, filepath.Join(homeDir, ".cache", "pdf-narrator"), ttsutils.GetCacheDir())
}

func TestEnsureDir(t *testing.T) {
	t.Parallel()

	testPath := filepath.Join(t.TempDir(), "new", "dir")

	require.NoError(t, ttsutils.EnsureDir(testPath))
	assert.DirExists(t, testPath)
	require.NoError(t, ttsutils.EnsureDir(testPath))
}

func TestGetModelPath_InCurrentDir(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	setupModelFile(t, dir, "voice.pth")

	path, err := ttsutils.GetModelPath("voice.pth", t.TempDir())
	require.NoError(t, err)

	expected, err := filepath.Abs("voice.pth")
	require.NoError(t, err)
	assert.Equal(t, expected, path)
}

func TestGetModelPath_InCacheDir(t *testing.T) {
	t.Parallel()

	cacheDir := t.TempDir()
	expected := setupModelFile(t, filepath.Join(cacheDir, "models"), "cached-voice.pth")

	path, err := ttsutils.GetModelPath("cached-voice.pth", cacheDir)
	require.NoError(t, err)
	assert.Equal(t, expected, path)
}

func TestGetModelPath_NotFound(t *testing.T) {
	t.Parallel()

	_, err := ttsutils.GetModelPath("non_existent_model.bin", t.TempDir())
	require.ErrorIs(t, err, ttsutils.ErrModelNotFound)
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    time.Duration
		expected string
	}{
		{input: 45200 * time.Millisecond, expected: "45.2s"},
		{input: 5*time.Minute + 30500*time.Millisecond, expected: "5m 30.5s"},
		{input: time.Hour + 15*time.Minute + 10*time.Second, expected: "1h 15m"},
		{input: 0, expected: "0.0s"},
	}

	for _, testCase := range tests {
		assert.Equal(t, testCase.expected, ttsutils.FormatDuration(testCase.input))
	}
}

func TestFormatFileSize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "512 B", ttsutils.FormatFileSize(512))
	assert.Equal(t, "1.5 KB", ttsutils.FormatFileSize(1536))
	assert.Equal(t, "2.0 MB", ttsutils.FormatFileSize(2*1024*1024))
	assert.Equal(t, "1.0 GB", ttsutils.FormatFileSize(1024*1024*1024))
}

func TestFileKinds(t *testing.T) {
	t.Parallel()

	assert.True(t, ttsutils.IsValidAudioFile("voice.WAV"))
	assert.True(t, ttsutils.IsValidAudioFile("voice.flac"))
	assert.True(t, ttsutils.IsValidAudioFile("voice.mp3"))
	assert.False(t, ttsutils.IsValidAudioFile("voice.ogg"))
	assert.False(t, ttsutils.IsValidAudioFile("voice"))

	assert.True(t, ttsutils.IsPDFFile("Book.PDF"))
	assert.False(t, ttsutils.IsPDFFile("book.txt"))
}

func TestSanitizeAndOutputName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "a_b_c_d", ttsutils.SanitizeFilename("a<b>c:d"))
	assert.Equal(t, "Book 1.mp3", ttsutils.OutputName("/tmp/uploads/Book 1.pdf", ".mp3"))
	assert.Equal(t, "what_.wav", ttsutils.OutputName("what?.pdf", ".wav"))
	assert.Equal(t, "pdf-narrator.wav", ttsutils.OutputName("", ".wav"))
}
