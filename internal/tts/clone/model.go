package clone

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/book-expert/logger"

	"github.com/book-expert/pdf-narrator/internal/core"
	"github.com/book-expert/pdf-narrator/internal/tts/ttsutils"
)

const (
	errFmtLoad            = "%w: %s: %w"
	errFmtWeightsMissing  = "%w: weights %q not found and no weights_url configured: %w"
	errFmtDownloadStatus  = "download of %s returned %s"
	logModelLoading       = "Loading voice-cloning model %s from %s"
	logModelLoaded        = "Voice-cloning model %s loaded"
	logWeightsDownloading = "Downloading model weights from %s to %s"
)

const weightsFilePermissions = 0o640

// Model is the voice-cloning model held by the model server. It is loaded
// at most once per process; a failed load leaves it unloaded so the next
// call retries.
type Model struct {
	mu     sync.Mutex
	loaded bool

	name        string
	weightsFile string
	weightsURL  string
	cacheDir    string

	client     *HTTPClient
	downloader *http.Client
	log        *logger.Logger
}

// Loaded reports whether Load has succeeded.
func (m *Model) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.loaded
}

// Load resolves the weights file, downloading it into the cache when it is
// missing, then asks the model server to load it. Concurrent callers block
// until the first load finishes.
func (m *Model) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loaded {
		return nil
	}

	weightsPath, err := m.resolveWeights(ctx)
	if err != nil {
		return err
	}

	m.logInfo(logModelLoading, m.name, weightsPath)

	loadErr := m.client.LoadModel(ctx, LoadRequest{Model: m.name, WeightsPath: weightsPath})
	if loadErr != nil {
		return fmt.Errorf(errFmtLoad, core.ErrModelLoad, m.name, loadErr)
	}

	m.loaded = true
	m.logInfo(logModelLoaded, m.name)

	return nil
}

func (m *Model) resolveWeights(ctx context.Context) (string, error) {
	path, err := ttsutils.GetModelPath(m.weightsFile, m.cacheDir)
	if err == nil {
		return path, nil
	}

	if !errors.Is(err, ttsutils.ErrModelNotFound) {
		return "", fmt.Errorf(errFmtLoad, core.ErrModelLoad, m.weightsFile, err)
	}

	if m.weightsURL == "" {
		return "", fmt.Errorf(errFmtWeightsMissing, core.ErrModelLoad, m.weightsFile, err)
	}

	target := filepath.Join(ttsutils.ModelsDir(m.cacheDir), filepath.Base(m.weightsFile))

	downloadErr := m.download(ctx, target)
	if downloadErr != nil {
		return "", fmt.Errorf(errFmtLoad, core.ErrModelLoad, m.weightsURL, downloadErr)
	}

	return target, nil
}

// download writes weightsURL to target through a temporary file so a
// partial download never looks like a complete one.
func (m *Model) download(ctx context.Context, target string) error {
	m.logInfo(logWeightsDownloading, m.weightsURL, target)

	err := ttsutils.EnsureDir(filepath.Dir(target))
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.weightsURL, http.NoBody)
	if err != nil {
		return err
	}

	resp, err := m.downloader.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf(errFmtDownloadStatus, m.weightsURL, resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".part-*")
	if err != nil {
		return err
	}

	tmpName := tmp.Name()

	_, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()

	if err = errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(tmpName)

		return err
	}

	err = os.Chmod(tmpName, weightsFilePermissions)
	if err != nil {
		_ = os.Remove(tmpName)

		return err
	}

	return os.Rename(tmpName, target)
}

func (m *Model) logInfo(format string, args ...any) {
	if m.log != nil {
		m.log.Info(format, args...)
	}
}
