package whisper_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/pdf-narrator/internal/core"
	"github.com/book-expert/pdf-narrator/internal/tts/whisper"
)

func writeAudio(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "speech.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF-fake-audio"), 0o600))

	return path
}

func TestTranscribeFile_Success(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "de", r.FormValue("language"))

		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}

		defer file.Close()

		data, _ := io.ReadAll(file)
		assert.Equal(t, "speech.wav", header.Filename)
		assert.Equal(t, "RIFF-fake-audio", string(data))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(whisper.Response{Text: "  Guten Tag.  "})
	}))
	defer server.Close()

	client := whisper.NewClient(whisper.Config{BaseURL: server.URL, APIKey: "secret"})

	transcript, err := client.TranscribeFile(context.Background(), writeAudio(t), "de")
	require.NoError(t, err)
	assert.Equal(t, "Guten Tag.", transcript)
}

func TestTranscribeFile_ServiceError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := whisper.NewClient(whisper.Config{BaseURL: server.URL, APIKey: "secret"})

	_, err := client.TranscribeFile(context.Background(), writeAudio(t), "")
	require.ErrorIs(t, err, core.ErrNetwork)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestTranscribeFile_MissingFile(t *testing.T) {
	t.Parallel()

	client := whisper.NewClient(whisper.Config{BaseURL: "http://127.0.0.1:1", APIKey: "secret"})

	_, err := client.TranscribeFile(context.Background(), filepath.Join(t.TempDir(), "absent.wav"), "")
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestTranscribeFile_MissingAPIKey(t *testing.T) {
	t.Setenv(whisper.EnvAPIKey, "")

	client := whisper.NewClient(whisper.Config{BaseURL: "http://127.0.0.1:1"})

	_, err := client.TranscribeFile(context.Background(), "speech.wav", "")
	require.ErrorIs(t, err, whisper.ErrMissingAPIKey)
}
