// Package worker provides a NATS worker that runs conversion jobs.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/pdf-narrator/internal/convert"
	"github.com/book-expert/pdf-narrator/internal/core"
	"github.com/book-expert/pdf-narrator/internal/document"
	"github.com/book-expert/pdf-narrator/internal/enhance"
	"github.com/book-expert/pdf-narrator/internal/tts/ttsutils"
)

const defaultHandleTimeout = 30 * time.Minute

// KindBadRequest is reported for events the worker cannot act on.
const KindBadRequest = "bad_request"

const (
	tempDirPattern      = "pdf-narrator-job-*"
	logJobReceived      = "Received %s job %s"
	logJobFinished      = "Job %s finished: %s (%d bytes)"
	logJobFailed        = "Job %s failed (%s): %v"
	logReplyFailed      = "Failed to publish reply for job %s: %v"
	logTempCleanupFail  = "Failed to remove temporary directory %s: %v"
	errFmtSubscribe     = "failed to subscribe to subject %s: %w"
	errFmtDrain         = "failed to drain subscription: %w"
	errFmtDownload      = "failed to download %s '%s': %w"
	errFmtUpload        = "failed to upload audio for key '%s': %w"
	errFmtReadOutput    = "failed to read conversion output: %w"
	errFmtUnmarshal     = "failed to unmarshal event: %w"
	errFmtMissingKey    = "%w: %s mode requires %s"
	errFmtUnsupportedIn = "%w: %q has no supported audio extension"
)

var (
	// ErrNilDependency is returned by NewNatsWorker when a collaborator is nil.
	ErrNilDependency = errors.New("worker dependency cannot be nil")
	// ErrInvalidEvent marks events that are malformed or incomplete.
	ErrInvalidEvent = errors.New("invalid conversion event")
)

// Converter runs a conversion job.
type Converter interface {
	Run(ctx context.Context, job convert.Job) (convert.Result, error)
}

// Options tune the worker. Zero values select defaults.
type Options struct {
	// Queue is the NATS queue group; workers sharing it split the load.
	Queue          string
	HandleTimeout  time.Duration
	DefaultEnhance enhance.Config
}

// NatsWorker listens for conversion requests on a NATS subject.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	store          core.ObjectStore
	converter      Converter
	log            *logger.Logger
	opts           Options
}

// NewNatsWorker creates a new instance of a NATS worker.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	store core.ObjectStore,
	converter Converter,
	log *logger.Logger,
	opts Options,
) (*NatsWorker, error) {
	if natsConnection == nil || store == nil || converter == nil || log == nil {
		return nil, ErrNilDependency
	}

	if opts.HandleTimeout <= 0 {
		opts.HandleTimeout = defaultHandleTimeout
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		store:          store,
		converter:      converter,
		log:            log,
		opts:           opts,
	}, nil
}

// Run subscribes and handles messages until ctx is canceled, then drains.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.QueueSubscribe(w.subject, w.opts.Queue, w.handleMessage)
	if err != nil {
		return fmt.Errorf(errFmtSubscribe, w.subject, err)
	}

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf(errFmtDrain, drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), w.opts.HandleTimeout)
	defer cancel()

	event, err := parseEvent(msg.Data)
	if err != nil {
		w.log.Error(logJobFailed, "?", KindBadRequest, err)
		w.reply(msg, failure(events.EventHeader{}, "", err))

		return
	}

	w.log.Info(logJobReceived, event.Mode, event.Header.WorkflowID)

	reply, err := w.process(ctx, event)
	if err != nil {
		reply = failure(event.Header, event.Mode, err)
		w.log.Error(logJobFailed, event.Header.WorkflowID, reply.ErrorKind, err)
	} else {
		w.log.Info(logJobFinished, event.Header.WorkflowID, reply.AudioKey, reply.Bytes)
	}

	w.reply(msg, reply)
}

// process downloads the inputs, converts them and uploads the output.
func (w *NatsWorker) process(ctx context.Context, event *ConversionRequestedEvent) (*AudioCreatedEvent, error) {
	dir, err := os.MkdirTemp("", tempDirPattern)
	if err != nil {
		return nil, err
	}

	defer func() {
		removeErr := os.RemoveAll(dir)
		if removeErr != nil {
			w.log.Warn(logTempCleanupFail, dir, removeErr)
		}
	}()

	job := convert.Job{
		Mode:     event.Mode,
		Language: event.Language,
		Slow:     event.Slow,
		Pages:    pageRange(event.PageStart, event.PageEnd),
		Enhance:  event.Enhance.Resolve(w.opts.DefaultEnhance),
	}

	inputs := []struct {
		key, label string
		target     *string
	}{
		{event.PDFKey, "pdf", &job.PDFPath},
		{event.VoiceKey, "voice", &job.VoicePath},
		{event.InputKey, "input", &job.InputPath},
	}

	for _, input := range inputs {
		if input.key == "" {
			continue
		}

		path, downloadErr := w.download(ctx, dir, input.label, input.key)
		if downloadErr != nil {
			return nil, downloadErr
		}

		*input.target = path
	}

	job.OutputPath = filepath.Join(dir, "output", outputName(event.Mode))

	result, err := w.converter.Run(ctx, job)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(result.OutputPath)
	if err != nil {
		return nil, fmt.Errorf(errFmtReadOutput, err)
	}

	audioKey := uuid.NewString() + result.Format.Extension()

	err = w.store.Upload(ctx, audioKey, data)
	if err != nil {
		return nil, fmt.Errorf(errFmtUpload, audioKey, err)
	}

	return &AudioCreatedEvent{
		Header:          replyHeader(event.Header),
		Mode:            event.Mode,
		AudioKey:        audioKey,
		ContentType:     result.Format.ContentType(),
		Bytes:           int64(len(data)),
		Pages:           result.Pages,
		DurationSeconds: result.Duration.Seconds(),
	}, nil
}

func (w *NatsWorker) download(ctx context.Context, dir, label, key string) (string, error) {
	data, err := w.store.Download(ctx, key)
	if err != nil {
		return "", fmt.Errorf(errFmtDownload, label, key, err)
	}

	path := filepath.Join(dir, label+"-"+ttsutils.SanitizeFilename(filepath.Base(key)))

	err = os.WriteFile(path, data, 0o600)
	if err != nil {
		return "", fmt.Errorf(errFmtDownload, label, key, err)
	}

	return path, nil
}

// reply marshals and responds to msg when the sender expects an answer.
func (w *NatsWorker) reply(msg *nats.Msg, replyEvent *AudioCreatedEvent) {
	if msg.Reply == "" {
		return
	}

	replyData, err := json.Marshal(replyEvent)
	if err == nil {
		err = msg.Respond(replyData)
	}

	if err != nil {
		w.log.Error(logReplyFailed, replyEvent.Header.WorkflowID, err)
	}
}

func parseEvent(data []byte) (*ConversionRequestedEvent, error) {
	var event ConversionRequestedEvent

	err := json.Unmarshal(data, &event)
	if err != nil {
		return nil, fmt.Errorf(errFmtUnmarshal, errors.Join(ErrInvalidEvent, err))
	}

	err = validateEvent(&event)
	if err != nil {
		return nil, err
	}

	return &event, nil
}

// validateEvent checks that the mode is known and its inputs are named.
func validateEvent(event *ConversionRequestedEvent) error {
	if !event.Mode.Valid() {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidEvent, event.Mode)
	}

	needsPDF := event.Mode == core.ModeCloud || event.Mode == core.ModeClone
	if needsPDF && event.PDFKey == "" {
		return fmt.Errorf(errFmtMissingKey, ErrInvalidEvent, event.Mode, "pdf_key")
	}

	needsVoice := event.Mode != core.ModeCloud
	if needsVoice {
		if event.VoiceKey == "" {
			return fmt.Errorf(errFmtMissingKey, ErrInvalidEvent, event.Mode, "voice_key")
		}

		if !ttsutils.IsValidAudioFile(event.VoiceKey) {
			return fmt.Errorf(errFmtUnsupportedIn, ErrInvalidEvent, event.VoiceKey)
		}
	}

	if event.Mode == core.ModeSpeech && event.InputKey == "" {
		return fmt.Errorf(errFmtMissingKey, ErrInvalidEvent, event.Mode, "input_key")
	}

	if event.PageStart < 0 || event.PageEnd < 0 {
		return fmt.Errorf("%w: page numbers start at 1", ErrInvalidEvent)
	}

	return nil
}

func pageRange(start, end int) *document.PageRange {
	if start == 0 && end == 0 {
		return nil
	}

	if start == 0 {
		start = 1
	}

	if end == 0 {
		end = math.MaxInt32
	}

	return &document.PageRange{Start: start - 1, End: end - 1}
}

func outputName(mode core.Mode) string {
	if mode == core.ModeCloud {
		return "narration.mp3"
	}

	return "narration.wav"
}

func replyHeader(request events.EventHeader) events.EventHeader {
	header := request
	header.EventID = uuid.NewString()
	header.Timestamp = time.Now()

	return header
}

func failure(request events.EventHeader, mode core.Mode, err error) *AudioCreatedEvent {
	kind := core.Kind(err)
	if errors.Is(err, ErrInvalidEvent) {
		kind = KindBadRequest
	}

	return &AudioCreatedEvent{
		Header:    replyHeader(request),
		Mode:      mode,
		Error:     err.Error(),
		ErrorKind: kind,
	}
}
