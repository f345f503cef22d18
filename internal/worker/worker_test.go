// Package worker_test tests the NATS conversion worker.
package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/pdf-narrator/internal/audio"
	"github.com/book-expert/pdf-narrator/internal/convert"
	"github.com/book-expert/pdf-narrator/internal/core"
	"github.com/book-expert/pdf-narrator/internal/enhance"
	"github.com/book-expert/pdf-narrator/internal/objectstore"
	"github.com/book-expert/pdf-narrator/internal/worker"
)

const testSubject = "pdf.conversion.test"

// fakeConverter records the job and writes the concatenated inputs as output.
type fakeConverter struct {
	mu     sync.Mutex
	jobs   []convert.Job
	inputs map[string]string
	err    error
}

func (f *fakeConverter) Run(_ context.Context, job convert.Job) (convert.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.jobs = append(f.jobs, job)

	if f.err != nil {
		return convert.Result{}, f.err
	}

	f.inputs = map[string]string{}

	var output []byte

	for label, path := range map[string]string{"pdf": job.PDFPath, "voice": job.VoicePath, "input": job.InputPath} {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return convert.Result{}, err
		}

		f.inputs[label] = string(data)
		output = append(output, data...)
	}

	err := os.MkdirAll(filepath.Dir(job.OutputPath), 0o750)
	if err != nil {
		return convert.Result{}, err
	}

	err = os.WriteFile(job.OutputPath, output, 0o600)
	if err != nil {
		return convert.Result{}, err
	}

	format := audio.FormatWAV
	if job.Mode == core.ModeCloud {
		format = audio.FormatMP3
	}

	return convert.Result{
		Mode:       job.Mode,
		OutputPath: job.OutputPath,
		Format:     format,
		Bytes:      int64(len(output)),
		Pages:      3,
		Duration:   1500 * time.Millisecond,
	}, nil
}

func (f *fakeConverter) jobCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.jobs)
}

func (f *fakeConverter) lastJob() convert.Job {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.jobs[len(f.jobs)-1]
}

type harness struct {
	conn      *nats.Conn
	store     *objectstore.NatsObjectStore
	converter *fakeConverter
}

func startWorker(t *testing.T, converter *fakeConverter) *harness {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	natsServer := test.RunServer(&opts)
	t.Cleanup(natsServer.Shutdown)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	require.NoError(t, err)
	t.Cleanup(natsConnection.Close)

	js, err := jetstream.New(natsConnection)
	require.NoError(t, err)

	store, err := objectstore.New(context.Background(), js, "worker-test")
	require.NoError(t, err)

	log, err := logger.New(t.TempDir(), "worker-test.log")
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	defaults := enhance.DefaultConfig()
	defaults.Enabled = false

	natsWorker, err := worker.NewNatsWorker(natsConnection, testSubject, store, converter, log, worker.Options{
		Queue:          "narrators",
		HandleTimeout:  10 * time.Second,
		DefaultEnhance: defaults,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- natsWorker.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done, "Run should return cleanly after cancel")
	})

	return &harness{conn: natsConnection, store: store, converter: converter}
}

// request retries until the worker's subscription is in place.
func (h *harness) request(t *testing.T, payload []byte) worker.AudioCreatedEvent {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)

	for {
		msg, err := h.conn.Request(testSubject, payload, 5*time.Second)
		if errors.Is(err, nats.ErrNoResponders) && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)

			continue
		}

		require.NoError(t, err)

		var reply worker.AudioCreatedEvent
		require.NoError(t, json.Unmarshal(msg.Data, &reply))

		return reply
	}
}

func (h *harness) send(t *testing.T, event worker.ConversionRequestedEvent) worker.AudioCreatedEvent {
	t.Helper()

	payload, err := json.Marshal(event)
	require.NoError(t, err)

	return h.request(t, payload)
}

func newHeader() events.EventHeader {
	return events.EventHeader{
		Timestamp:  time.Now(),
		WorkflowID: uuid.NewString(),
		EventID:    uuid.NewString(),
		UserID:     "reader",
		TenantID:   "library",
	}
}

func TestWorker_CloudConversionRoundTrip(t *testing.T) {
	t.Parallel()

	h := startWorker(t, &fakeConverter{})
	ctx := context.Background()

	require.NoError(t, h.store.Upload(ctx, "books/novel.pdf", []byte("%PDF novel")))

	header := newHeader()
	reply := h.send(t, worker.ConversionRequestedEvent{
		Header:    header,
		Mode:      core.ModeCloud,
		PDFKey:    "books/novel.pdf",
		Language:  "en",
		Slow:      true,
		PageStart: 2,
		PageEnd:   4,
	})

	require.Empty(t, reply.Error)
	assert.Equal(t, core.ModeCloud, reply.Mode)
	assert.Equal(t, header.WorkflowID, reply.Header.WorkflowID)
	assert.Equal(t, header.TenantID, reply.Header.TenantID)
	assert.NotEqual(t, header.EventID, reply.Header.EventID)
	assert.Equal(t, ".mp3", filepath.Ext(reply.AudioKey))
	assert.Equal(t, "audio/mpeg", reply.ContentType)
	assert.Equal(t, int64(len("%PDF novel")), reply.Bytes)
	assert.Equal(t, 3, reply.Pages)
	assert.InDelta(t, 1.5, reply.DurationSeconds, 1e-9)

	stored, err := h.store.Download(ctx, reply.AudioKey)
	require.NoError(t, err)
	assert.Equal(t, "%PDF novel", string(stored))

	job := h.converter.lastJob()
	assert.True(t, job.Slow)
	assert.Equal(t, "en", job.Language)
	require.NotNil(t, job.Pages)
	assert.Equal(t, 1, job.Pages.Start)
	assert.Equal(t, 3, job.Pages.End)
	assert.NoFileExists(t, job.PDFPath, "temporary inputs must be removed")
}

func TestWorker_SpeechModeDownloadsAllInputs(t *testing.T) {
	t.Parallel()

	h := startWorker(t, &fakeConverter{})
	ctx := context.Background()

	require.NoError(t, h.store.Upload(ctx, "voices/me.wav", []byte("voice")))
	require.NoError(t, h.store.Upload(ctx, "recordings/talk.mp3", []byte("talk")))

	enabled := true
	reply := h.send(t, worker.ConversionRequestedEvent{
		Header:   newHeader(),
		Mode:     core.ModeSpeech,
		VoiceKey: "voices/me.wav",
		InputKey: "recordings/talk.mp3",
		Enhance:  worker.EnhanceOptions{Enabled: &enabled},
	})

	require.Empty(t, reply.Error)
	assert.Equal(t, ".wav", filepath.Ext(reply.AudioKey))

	job := h.converter.lastJob()
	assert.Nil(t, job.Pages)
	assert.True(t, job.Enhance.Enabled)
	assert.True(t, job.Enhance.ReduceNoise)
	assert.Equal(t, ".wav", filepath.Ext(job.VoicePath))
	assert.Equal(t, ".mp3", filepath.Ext(job.InputPath))

	h.converter.mu.Lock()
	defer h.converter.mu.Unlock()
	assert.Equal(t, "voice", h.converter.inputs["voice"])
	assert.Equal(t, "talk", h.converter.inputs["input"])
}

func TestWorker_MissingObject(t *testing.T) {
	t.Parallel()

	converter := &fakeConverter{}
	h := startWorker(t, converter)

	reply := h.send(t, worker.ConversionRequestedEvent{
		Header: newHeader(),
		Mode:   core.ModeCloud,
		PDFKey: "books/absent.pdf",
	})

	assert.Contains(t, reply.Error, "books/absent.pdf")
	assert.Equal(t, core.KindInternal, reply.ErrorKind)
	assert.Empty(t, reply.AudioKey)
	assert.Zero(t, converter.jobCount())
}

func TestWorker_ConversionFailureKind(t *testing.T) {
	t.Parallel()

	h := startWorker(t, &fakeConverter{err: fmt.Errorf("extract: %w: no text found in PDF", core.ErrDocument)})

	require.NoError(t, h.store.Upload(context.Background(), "scan.pdf", []byte("%PDF scan")))

	reply := h.send(t, worker.ConversionRequestedEvent{
		Header: newHeader(),
		Mode:   core.ModeCloud,
		PDFKey: "scan.pdf",
	})

	assert.Equal(t, core.KindDocument, reply.ErrorKind)
	assert.Contains(t, reply.Error, "no text found")
	assert.Equal(t, core.ModeCloud, reply.Mode)
}

func TestWorker_RejectsInvalidEvents(t *testing.T) {
	t.Parallel()

	converter := &fakeConverter{}
	h := startWorker(t, converter)

	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{name: "not json", payload: "{", want: "unmarshal"},
		{name: "unknown mode", payload: `{"mode":"radio","pdf_key":"a.pdf"}`, want: "unknown mode"},
		{name: "cloud without pdf", payload: `{"mode":"cloud"}`, want: "pdf_key"},
		{name: "clone without voice", payload: `{"mode":"clone","pdf_key":"a.pdf"}`, want: "voice_key"},
		{name: "voice not audio", payload: `{"mode":"clean","voice_key":"notes.txt"}`, want: "audio extension"},
		{name: "speech without input", payload: `{"mode":"speech","voice_key":"v.wav"}`, want: "input_key"},
		{name: "negative page", payload: `{"mode":"cloud","pdf_key":"a.pdf","page_start":-1}`, want: "start at 1"},
	}

	for _, testCase := range tests {
		reply := h.request(t, []byte(testCase.payload))

		assert.Equal(t, worker.KindBadRequest, reply.ErrorKind, testCase.name)
		assert.Contains(t, reply.Error, testCase.want, testCase.name)
	}

	assert.Zero(t, converter.jobCount())
}

func TestEnhanceOptions_Resolve(t *testing.T) {
	t.Parallel()

	off := false
	on := true

	resolved := worker.EnhanceOptions{Enabled: &on, TrimSilence: &off}.Resolve(enhance.DefaultConfig())

	assert.Equal(t, enhance.Config{
		Enabled:      true,
		ReduceNoise:  true,
		Normalize:    true,
		ApplyFilters: true,
		TrimSilence:  false,
	}, resolved)

	assert.Equal(t, enhance.DefaultConfig(), worker.EnhanceOptions{}.Resolve(enhance.DefaultConfig()))
}

func TestNewNatsWorker_NilDependencies(t *testing.T) {
	t.Parallel()

	_, err := worker.NewNatsWorker(nil, testSubject, nil, nil, nil, worker.Options{})
	require.ErrorIs(t, err, worker.ErrNilDependency)
}
