// main package for the pdf-narrator-service
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/book-expert/pdf-narrator/internal/config"
	"github.com/book-expert/pdf-narrator/internal/convert"
	"github.com/book-expert/pdf-narrator/internal/metrics"
	"github.com/book-expert/pdf-narrator/internal/objectstore"
	"github.com/book-expert/pdf-narrator/internal/server"
	"github.com/book-expert/pdf-narrator/internal/tts/cloud"
	"github.com/book-expert/pdf-narrator/internal/tts/ttsutils"
	"github.com/book-expert/pdf-narrator/internal/worker"
)

const shutdownTimeout = 30 * time.Second

const (
	bootstrapLogFile = "pdf-narrator-service-bootstrap.log"
	serviceLogFile   = "pdf-narrator-service.log"
	workerQueue      = "pdf-narrator"
	logListening     = "pdf-narrator-service listening on %s"
	logWorkerStarted = "Listening for conversion jobs on subject: %s (bucket %s)"
	logShuttingDown  = "Shutting down"
	logWorkerStopped = "NATS worker stopped: %v"
)

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	err := ttsutils.EnsureDir(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir(), bootstrapLogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	defer func() { _ = bootstrapLog.Close() }()

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, serviceLogFile)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serviceMetrics := metrics.New()

	converter, err := convert.NewFromConfig(cfg, serviceMetrics, finalLog)
	if err != nil {
		return err
	}

	workerErrs := make(chan error, 1)

	if cfg.NATS.URL != "" {
		natsConnection, natsErr := startWorker(ctx, cfg, converter, finalLog, workerErrs)
		if natsErr != nil {
			return natsErr
		}
		defer natsConnection.Close()
	}

	api := server.New(converter, serviceMetrics, finalLog, server.Options{
		MaxUploadBytes:  cfg.Server.MaxUploadBytes(),
		RequestTimeout:  cfg.Server.RequestTimeout(),
		DefaultLanguage: cfg.CloudTTS.DefaultLanguage,
		DefaultEnhance:  cfg.Enhancement.EnhanceConfig(),
		CloudLanguages:  cloud.Languages(),
		CloneLanguages:  converter.CloneLanguages(),
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           api.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout(),
		ReadHeaderTimeout: cfg.Server.ReadTimeout(),
		WriteTimeout:      cfg.Server.WriteTimeout(),
	}

	serveErrs := make(chan error, 1)

	go func() {
		finalLog.System(logListening, cfg.Server.Address)
		serveErrs <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case serveErr := <-serveErrs:
		if !errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", serveErr)
		}
	case workerErr := <-workerErrs:
		finalLog.Error(logWorkerStopped, workerErr)
	}

	finalLog.System(logShuttingDown)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return httpServer.Shutdown(shutdownCtx)
}

// startWorker connects to NATS and runs the conversion worker until ctx ends.
func startWorker(
	ctx context.Context,
	cfg *config.Config,
	converter *convert.Service,
	log *logger.Logger,
	errs chan<- error,
) (*nats.Conn, error) {
	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}

	js, err := jetstream.New(natsConnection)
	if err != nil {
		natsConnection.Close()

		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	store, err := objectstore.New(ctx, js, cfg.NATS.ObjectStoreBucket)
	if err != nil {
		natsConnection.Close()

		return nil, err
	}

	natsWorker, err := worker.NewNatsWorker(natsConnection, cfg.NATS.ConversionSubject, store, converter, log, worker.Options{
		Queue:          workerQueue,
		HandleTimeout:  cfg.NATS.HandleTimeout(),
		DefaultEnhance: cfg.Enhancement.EnhanceConfig(),
	})
	if err != nil {
		natsConnection.Close()

		return nil, err
	}

	log.System(logWorkerStarted, cfg.NATS.ConversionSubject, cfg.NATS.ObjectStoreBucket)

	go func() {
		runErr := natsWorker.Run(ctx)
		if runErr != nil {
			errs <- runErr
		}
	}()

	return natsConnection, nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
