// Package server exposes conversions over an HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/book-expert/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/book-expert/pdf-narrator/internal/convert"
	"github.com/book-expert/pdf-narrator/internal/core"
	"github.com/book-expert/pdf-narrator/internal/document"
	"github.com/book-expert/pdf-narrator/internal/enhance"
	"github.com/book-expert/pdf-narrator/internal/metrics"
)

// Routes served by Handler.
const (
	RouteHealth       = "/health"
	RouteMetrics      = "/metrics"
	RouteLanguages    = "/v1/languages"
	RoutePDFInfo      = "/v1/pdf/info"
	RouteConvertCloud = "/v1/convert/cloud"
	RouteConvertClone = "/v1/convert/clone"
	RouteVoiceClean   = "/v1/voice/clean"
)

// Kinds reported for failures that are not part of the conversion taxonomy.
const (
	KindBadRequest  = "bad_request"
	KindTooLarge    = "too_large"
	KindUnavailable = "unavailable"
	KindTimeout     = "timeout"
)

const (
	multipartMemory   = 32 << 20
	defaultMaxUpload  = 100 << 20
	defaultReqTimeout = 30 * time.Minute
)

const (
	contentTypeJSON    = "application/json"
	headerContentType  = "Content-Type"
	tempDirPattern     = "pdf-narrator-*"
	logRequestFailed   = "%s %s failed (%s): %v"
	logTempCleanupFail = "Failed to remove temporary directory %s: %v"
)

// Converter is the orchestration surface the API drives.
type Converter interface {
	Info(ctx context.Context, pdfPath string) (document.Info, error)
	ConvertCloud(ctx context.Context, req convert.CloudRequest) (convert.Result, error)
	ConvertClone(ctx context.Context, req convert.CloneRequest) (convert.Result, error)
	CleanVoice(ctx context.Context, req convert.CleanRequest) (convert.Result, error)
}

// Options tune request handling. Zero values select defaults.
type Options struct {
	MaxUploadBytes  int64
	RequestTimeout  time.Duration
	DefaultLanguage string
	DefaultEnhance  enhance.Config
	CloudLanguages  []string
	CloneLanguages  []string
}

// Server handles the HTTP API.
type Server struct {
	converter Converter
	metrics   *metrics.Metrics
	log       *logger.Logger
	opts      Options
}

// New returns a Server. metrics may be nil, in which case /metrics is not served.
func New(converter Converter, m *metrics.Metrics, log *logger.Logger, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUpload
	}

	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultReqTimeout
	}

	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = convert.DefaultLanguage
	}

	return &Server{converter: converter, metrics: m, log: log, opts: opts}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	if s.metrics != nil {
		router.Use(s.metrics.Middleware)
		router.Method(http.MethodGet, RouteMetrics, s.metrics.Handler())
	}

	router.Get(RouteHealth, s.handleHealth)
	router.Get(RouteLanguages, s.handleLanguages)
	router.Post(RoutePDFInfo, s.handlePDFInfo)
	router.Post(RouteConvertCloud, s.handleConvertCloud)
	router.Post(RouteConvertClone, s.handleConvertClone)
	router.Post(RouteVoiceClean, s.handleVoiceClean)

	return router
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// LanguagesResponse lists the language codes accepted by each mode.
type LanguagesResponse struct {
	Cloud []string `json:"cloud"`
	Clone []string `json:"clone"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, LanguagesResponse{Cloud: s.opts.CloudLanguages, Clone: s.opts.CloneLanguages})
}

// withUploads runs fn with a parsed multipart form and a private temporary
// directory, both released when fn returns.
func (s *Server) withUploads(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, dir string) error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	parseErr := r.ParseMultipartForm(multipartMemory)
	if parseErr != nil {
		s.fail(w, r, badRequest("parse multipart form: %w", parseErr))

		return
	}

	defer func() { _ = r.MultipartForm.RemoveAll() }()

	dir, err := os.MkdirTemp("", tempDirPattern)
	if err != nil {
		s.fail(w, r, err)

		return
	}

	defer func() {
		removeErr := os.RemoveAll(dir)
		if removeErr != nil {
			s.log.Warn(logTempCleanupFail, dir, removeErr)
		}
	}()

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
	defer cancel()

	fnErr := fn(ctx, dir)
	if fnErr != nil {
		s.fail(w, r, fnErr)
	}
}

// fail writes err as JSON with a status derived from its kind.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := classify(err)

	s.log.Error(logRequestFailed, r.Method, r.URL.Path, kind, err)
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Kind: kind})
}

// requestError marks failures caused by the request itself.
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }

func (e *requestError) Unwrap() error { return e.err }

func badRequest(format string, args ...any) error {
	return &requestError{err: fmt.Errorf(format, args...)}
}

func classify(err error) (int, string) {
	var (
		reqErr   *requestError
		tooLarge *http.MaxBytesError
	)

	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, KindTooLarge
	case errors.As(err, &reqErr):
		return http.StatusBadRequest, KindBadRequest
	case errors.Is(err, convert.ErrModeUnavailable):
		return http.StatusServiceUnavailable, KindUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, KindTimeout
	}

	kind := core.Kind(err)

	switch kind {
	case core.KindUnsupportedLanguage:
		return http.StatusBadRequest, kind
	case core.KindDocument, core.KindSynthesis, core.KindAudioProcessing:
		return http.StatusUnprocessableEntity, kind
	case core.KindNetwork:
		return http.StatusBadGateway, kind
	case core.KindModelLoad:
		return http.StatusServiceUnavailable, kind
	default:
		return http.StatusInternalServerError, kind
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set(headerContentType, contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
