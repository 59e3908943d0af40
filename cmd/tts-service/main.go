// main package for the ssml-tts-service
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/book-expert/logger"
	"golang.org/x/sync/errgroup"

	"github.com/book-expert/ssml-tts-service/internal/config"
	"github.com/book-expert/ssml-tts-service/internal/keepalive"
	"github.com/book-expert/ssml-tts-service/internal/server"
)

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	bootstrapLog, err := setupLogger(os.TempDir(), "ssml-tts-service-bootstrap.log")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	bootstrapLog.Info("Bootstrap logger created.")

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	err = cfg.Validate()
	if err != nil {
		bootstrapLog.Error("Invalid configuration: %v", err)

		return fmt.Errorf("invalid configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, "ssml-tts-service.log")
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

	app, err := newApp(ctx, cfg, finalLog)
	if err != nil {
		finalLog.Error("Failed to initialize service: %v", err)

		return err
	}
	defer app.close()

	finalLog.System("SSML-TTS-Service initialized: synthesizer %s, storage %s, port %d",
		app.synthesizer.Name(), app.engine.StorageName(), cfg.Server.Port)

	return serve(ctx, cfg, app, finalLog)
}

func serve(ctx context.Context, cfg *config.Config, app *app, log *logger.Logger) error {
	group, groupCtx := errgroup.WithContext(ctx)

	httpServer := server.New(app.engine, app.longAudio, log,
		server.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		server.WithLenientJSON(cfg.Server.LenientJSON),
		server.WithProjectNumber(cfg.Secrets.ProjectNumber),
		server.WithTimeouts(cfg.Server.ReadTimeout(), cfg.Server.WriteTimeout()),
	)

	group.Go(func() error {
		return httpServer.Run(groupCtx, ":"+strconv.Itoa(cfg.Server.Port))
	})

	if app.worker != nil {
		group.Go(func() error {
			return app.worker.Run(groupCtx)
		})
	}

	if cfg.Keepalive.Enabled && cfg.Keepalive.URL != "" {
		pinger := keepalive.New(cfg.Keepalive.URL, cfg.Keepalive.Interval(), log)

		group.Go(func() error {
			pinger.Run(groupCtx)

			return nil
		})
	}

	err := group.Wait()
	if err != nil {
		return fmt.Errorf("service stopped: %w", err)
	}

	log.System("SSML-TTS-Service stopped.")

	return nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
