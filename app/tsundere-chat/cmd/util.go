package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/cchalm/tsundere-chat/internal/chat"
	"github.com/cchalm/tsundere-chat/internal/telemetry"
	"github.com/cchalm/tsundere-chat/internal/transport"
	"github.com/cchalm/tsundere-chat/internal/upstream"
)

func setupContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	// Setup graceful shutdown
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-interrupt
		log.Info().Msg("Interrupt signal detected, shutting down gracefully...")
		cancel()
		<-interrupt
		log.Fatal().Msg("Forcing shutdown")
	}()

	return ctx
}

// setupLogger configures the global logger to write to stderr and, if file is set, to a rotated JSON log file. The
// returned function closes the file.
func setupLogger(level string, file string) (func(), error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level '%s': %w", level, err)
	}

	writers := []io.Writer{zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}}
	closeFn := func() {}
	if file != "" {
		rotator := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		writers = append(writers, rotator)
		closeFn = func() { _ = rotator.Close() }
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(lvl).With().Timestamp().Logger()
	return closeFn, nil
}

// requireServerConfig halts the process when the server cannot start, most commonly because the API key is missing
func requireServerConfig() {
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	for _, warning := range cfg.Warnings() {
		log.Warn().Msg(warning)
	}
}

func createTelemetryProvider(ctx context.Context) (*telemetry.Provider, error) {
	telemetryConfig := telemetry.TelemetryConfig{
		Enabled:        cfg.TelemetryEnabled,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		ServiceVersion: versionInfo.Version,
	}
	return telemetry.NewProvider(ctx, telemetryConfig)
}

func shutdownTelemetry(tp *telemetry.Provider) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tp.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to flush telemetry")
	}
}

func createChatService(ctx context.Context, tp *telemetry.Provider) (*chat.Service, error) {
	tracedHTTPClient := &http.Client{
		Transport: transport.WithTracing(nil, tp.Tracer(), log.Logger.With().Str("component", "upstream").Logger()),
	}
	generator, err := upstream.New(ctx, upstream.Config{
		Provider:   cfg.Provider,
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		BaseURL:    cfg.UpstreamBaseURL,
		HTTPClient: tracedHTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream generator: %w", err)
	}

	persona, err := cfg.Persona()
	if err != nil {
		return nil, err
	}

	return chat.NewService(generator, persona, cfg.MaxHistoryTurns, tp.Tracer()), nil
}
