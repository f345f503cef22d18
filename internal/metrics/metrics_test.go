package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/pdf-narrator/internal/metrics"
)

func TestFinishConversion(t *testing.T) {
	t.Parallel()

	m := metrics.New()

	m.StartConversion()
	m.FinishConversion("cloud", "", 2*time.Second)
	m.StartConversion()
	m.FinishConversion("clone", "model_load", time.Second)
	m.ObserveAudio("cloud", 30*time.Second)
	m.ObserveAudio("cloud", 0)
	m.AddPages(4)
	m.AddPages(-1)

	expected := `
# HELP pdf_narrator_conversion_total Conversions by mode and outcome (success or error kind).
# TYPE pdf_narrator_conversion_total counter
pdf_narrator_conversion_total{mode="clone",status="model_load"} 1
pdf_narrator_conversion_total{mode="cloud",status="success"} 1
# HELP pdf_narrator_conversion_in_flight Conversions currently running.
# TYPE pdf_narrator_conversion_in_flight gauge
pdf_narrator_conversion_in_flight 0
# HELP pdf_narrator_document_pages_extracted_total Non-empty pages extracted from PDFs.
# TYPE pdf_narrator_document_pages_extracted_total counter
pdf_narrator_document_pages_extracted_total 4
`

	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"pdf_narrator_conversion_total",
		"pdf_narrator_conversion_in_flight",
		"pdf_narrator_document_pages_extracted_total",
	))

	count, err := testutil.GatherAndCount(m.Registry(), "pdf_narrator_conversion_audio_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMiddleware_LabelsByRoutePattern(t *testing.T) {
	t.Parallel()

	m := metrics.New()

	router := chi.NewRouter()
	router.Use(m.Middleware)
	router.Get("/v1/jobs/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	router.Handle("/metrics", m.Handler())

	for _, path := range []string{"/v1/jobs/1", "/v1/jobs/2"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, http.NoBody))
		assert.Equal(t, http.StatusAccepted, rec.Code)
	}

	server := httptest.NewServer(router)
	defer server.Close()

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body),
		`pdf_narrator_http_requests_total{method="GET",route="/v1/jobs/{id}",status="202"} 2`)
}
