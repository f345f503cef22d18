// Package config provides the configuration structure for pdf-narrator.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/pelletier/go-toml/v2"

	"github.com/book-expert/pdf-narrator/internal/document"
	"github.com/book-expert/pdf-narrator/internal/enhance"
	"github.com/book-expert/pdf-narrator/internal/tts/clone"
	"github.com/book-expert/pdf-narrator/internal/tts/cloud"
	"github.com/book-expert/pdf-narrator/internal/tts/ttsutils"
	"github.com/book-expert/pdf-narrator/internal/tts/whisper"
)

// Defaults filled in by ApplyDefaults.
const (
	DefaultLogsDir                 = "logs"
	DefaultOutputDir               = "output"
	DefaultLanguage                = "en"
	DefaultServerAddress           = ":8080"
	DefaultReadTimeoutSeconds      = 60
	DefaultWriteTimeoutSeconds     = 1800
	DefaultRequestTimeoutSeconds   = 1800
	DefaultMaxUploadMB             = 100
	DefaultCloneServerURL          = "http://localhost:8000"
	DefaultConversionSubject       = "pdf.conversion.requested"
	DefaultObjectStoreBucket       = "PDF_NARRATOR_FILES"
	DefaultHandleTimeoutSeconds    = 1800
	DefaultCloudTimeoutSeconds     = 30
	DefaultCloudRequestsPerSecond  = 5.0
	DefaultCloudBreakerFailures    = 5
	DefaultCloudBreakerOpenSeconds = 30
	DefaultCloneTimeoutSeconds     = 300
	DefaultWhisperTimeoutSeconds   = 120
)

const bytesPerMegabyte = 1 << 20

const (
	errFmtReadConfigFile       = "failed to read config file %s: %w"
	errFmtParseConfigFile      = "failed to parse config file %s: %w"
	errFmtLoadFromConfigurator = "failed to load configuration from configurator: %w"
)

// PathsConfig holds file system locations.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
	// CacheDir holds downloaded model weights. Empty selects ttsutils.GetCacheDir.
	CacheDir  string `toml:"cache_dir"`
	OutputDir string `toml:"output_dir"`
}

// PDFConfig selects the text extraction engine.
type PDFConfig struct {
	Engine string `toml:"engine"`
}

// CloudTTSConfig configures the hosted speech service.
type CloudTTSConfig struct {
	BaseURL            string  `toml:"base_url"`
	DefaultLanguage    string  `toml:"default_language"`
	Slow               bool    `toml:"slow"`
	TimeoutSeconds     int     `toml:"timeout_seconds"`
	RequestsPerSecond  float64 `toml:"requests_per_second"`
	BreakerFailures    uint32  `toml:"breaker_failures"`
	BreakerOpenSeconds int     `toml:"breaker_open_seconds"`
}

// VoiceCloneConfig configures the voice-cloning model server.
type VoiceCloneConfig struct {
	ServerURL      string   `toml:"server_url"`
	ModelName      string   `toml:"model_name"`
	WeightsFile    string   `toml:"weights_file"`
	WeightsURL     string   `toml:"weights_url"`
	Temperature    float64  `toml:"temperature"`
	MaxChunkChars  int      `toml:"max_chunk_chars"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
	Languages      []string `toml:"languages"`
}

// EnhancementConfig holds the voice sample enhancement flags. Unset flags
// default to true.
type EnhancementConfig struct {
	Enabled      *bool `toml:"enabled"`
	ReduceNoise  *bool `toml:"reduce_noise"`
	Normalize    *bool `toml:"normalize"`
	ApplyFilters *bool `toml:"apply_filters"`
	TrimSilence  *bool `toml:"trim_silence"`
}

// WhisperConfig configures the transcription service.
type WhisperConfig struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Address               string `toml:"address"`
	ReadTimeoutSeconds    int    `toml:"read_timeout_seconds"`
	WriteTimeoutSeconds   int    `toml:"write_timeout_seconds"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	MaxUploadMB           int64  `toml:"max_upload_mb"`
}

// NATSConfig holds the configuration for NATS. An empty URL disables the worker.
type NATSConfig struct {
	URL                  string `toml:"url"`
	ConversionSubject    string `toml:"conversion_subject"`
	ObjectStoreBucket    string `toml:"object_store_bucket"`
	HandleTimeoutSeconds int    `toml:"handle_timeout_seconds"`
}

// Config is the root configuration structure.
type Config struct {
	Paths       PathsConfig       `toml:"paths"`
	PDF         PDFConfig         `toml:"pdf"`
	CloudTTS    CloudTTSConfig    `toml:"cloud_tts"`
	VoiceClone  VoiceCloneConfig  `toml:"voice_clone"`
	Enhancement EnhancementConfig `toml:"enhancement"`
	Whisper     WhisperConfig     `toml:"whisper"`
	Server      ServerConfig      `toml:"server"`
	NATS        NATSConfig        `toml:"nats"`
}

// Load loads the service configuration through the configurator.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf(errFmtLoadFromConfigurator, err)
	}

	cfg.ApplyDefaults()

	return &cfg, nil
}

// LoadFile reads a TOML file. An empty path yields the defaults.
func LoadFile(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf(errFmtReadConfigFile, path, err)
		}

		err = toml.Unmarshal(data, &cfg)
		if err != nil {
			return nil, fmt.Errorf(errFmtParseConfigFile, path, err)
		}
	}

	cfg.ApplyDefaults()

	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config

	cfg.ApplyDefaults()

	return &cfg
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	setString(&c.Paths.BaseLogsDir, DefaultLogsDir)
	setString(&c.Paths.CacheDir, ttsutils.GetCacheDir())
	setString(&c.Paths.OutputDir, DefaultOutputDir)

	setString(&c.PDF.Engine, document.EnginePDFCPU)

	setString(&c.CloudTTS.BaseURL, cloud.DefaultBaseURL)
	setString(&c.CloudTTS.DefaultLanguage, DefaultLanguage)
	setInt(&c.CloudTTS.TimeoutSeconds, DefaultCloudTimeoutSeconds)
	setInt(&c.CloudTTS.BreakerOpenSeconds, DefaultCloudBreakerOpenSeconds)

	if c.CloudTTS.RequestsPerSecond <= 0 {
		c.CloudTTS.RequestsPerSecond = DefaultCloudRequestsPerSecond
	}

	if c.CloudTTS.BreakerFailures == 0 {
		c.CloudTTS.BreakerFailures = DefaultCloudBreakerFailures
	}

	setString(&c.VoiceClone.ServerURL, DefaultCloneServerURL)
	setString(&c.VoiceClone.ModelName, clone.DefaultModelName)
	setString(&c.VoiceClone.WeightsFile, clone.DefaultWeightsFile)
	setInt(&c.VoiceClone.MaxChunkChars, clone.DefaultMaxChunkChars)
	setInt(&c.VoiceClone.TimeoutSeconds, DefaultCloneTimeoutSeconds)

	if c.VoiceClone.Temperature <= 0 {
		c.VoiceClone.Temperature = clone.DefaultTemperature
	}

	if len(c.VoiceClone.Languages) == 0 {
		c.VoiceClone.Languages = append([]string(nil), clone.DefaultLanguages...)
	}

	setString(&c.Whisper.BaseURL, whisper.DefaultBaseURL)
	setString(&c.Whisper.Model, whisper.DefaultModel)
	setInt(&c.Whisper.TimeoutSeconds, DefaultWhisperTimeoutSeconds)

	setString(&c.Server.Address, DefaultServerAddress)
	setInt(&c.Server.ReadTimeoutSeconds, DefaultReadTimeoutSeconds)
	setInt(&c.Server.WriteTimeoutSeconds, DefaultWriteTimeoutSeconds)
	setInt(&c.Server.RequestTimeoutSeconds, DefaultRequestTimeoutSeconds)

	if c.Server.MaxUploadMB <= 0 {
		c.Server.MaxUploadMB = DefaultMaxUploadMB
	}

	setString(&c.NATS.ConversionSubject, DefaultConversionSubject)
	setString(&c.NATS.ObjectStoreBucket, DefaultObjectStoreBucket)
	setInt(&c.NATS.HandleTimeoutSeconds, DefaultHandleTimeoutSeconds)
}

// CloudClientConfig maps the [cloud_tts] section onto the client.
func (c *Config) CloudClientConfig() cloud.Config {
	return cloud.Config{
		BaseURL:            c.CloudTTS.BaseURL,
		Timeout:            seconds(c.CloudTTS.TimeoutSeconds),
		RequestsPerSecond:  c.CloudTTS.RequestsPerSecond,
		BreakerFailures:    c.CloudTTS.BreakerFailures,
		BreakerOpenTimeout: seconds(c.CloudTTS.BreakerOpenSeconds),
	}
}

// CloneConfig maps the [voice_clone] section onto the synthesizer.
func (c *Config) CloneConfig() clone.Config {
	return clone.Config{
		ServerURL:     c.VoiceClone.ServerURL,
		Timeout:       seconds(c.VoiceClone.TimeoutSeconds),
		ModelName:     c.VoiceClone.ModelName,
		WeightsFile:   c.VoiceClone.WeightsFile,
		WeightsURL:    c.VoiceClone.WeightsURL,
		CacheDir:      c.Paths.CacheDir,
		Temperature:   c.VoiceClone.Temperature,
		MaxChunkChars: c.VoiceClone.MaxChunkChars,
		Languages:     c.VoiceClone.Languages,
	}
}

// WhisperClientConfig maps the [whisper] section onto the client.
func (c *Config) WhisperClientConfig() whisper.Config {
	return whisper.Config{
		BaseURL: c.Whisper.BaseURL,
		APIKey:  c.Whisper.APIKey,
		Model:   c.Whisper.Model,
		Timeout: seconds(c.Whisper.TimeoutSeconds),
	}
}

// EnhanceConfig resolves the [enhancement] flags, defaulting each to true.
func (e EnhancementConfig) EnhanceConfig() enhance.Config {
	return enhance.Config{
		Enabled:      boolOr(e.Enabled, true),
		ReduceNoise:  boolOr(e.ReduceNoise, true),
		Normalize:    boolOr(e.Normalize, true),
		ApplyFilters: boolOr(e.ApplyFilters, true),
		TrimSilence:  boolOr(e.TrimSilence, true),
	}
}

// MaxUploadBytes is the request body limit for uploads.
func (s ServerConfig) MaxUploadBytes() int64 {
	return s.MaxUploadMB * bytesPerMegabyte
}

// ReadTimeout is the HTTP server read timeout.
func (s ServerConfig) ReadTimeout() time.Duration { return seconds(s.ReadTimeoutSeconds) }

// WriteTimeout is the HTTP server write timeout.
func (s ServerConfig) WriteTimeout() time.Duration { return seconds(s.WriteTimeoutSeconds) }

// RequestTimeout bounds a single conversion request.
func (s ServerConfig) RequestTimeout() time.Duration { return seconds(s.RequestTimeoutSeconds) }

// HandleTimeout bounds a single worker job.
func (n NATSConfig) HandleTimeout() time.Duration { return seconds(n.HandleTimeoutSeconds) }

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func setString(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

func setInt(field *int, value int) {
	if *field <= 0 {
		*field = value
	}
}

func boolOr(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}

	return *value
}
