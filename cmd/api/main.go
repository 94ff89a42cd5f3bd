package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"archRenew/internal/config"
	"archRenew/internal/events"
	"archRenew/internal/logging"
	"archRenew/internal/media"
	"archRenew/internal/metrics"
	"archRenew/internal/restoration"
	"archRenew/internal/server"
	"archRenew/internal/storage"
	"archRenew/internal/vision"
)

func main() {
	cfg := config.FromEnv()
	logger := logging.New(cfg.AppEnv, cfg.LogLevel)

	ctx := context.Background()
	store, err := storage.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init store")
	}
	defer store.Close()

	uploader, err := newUploader(ctx, cfg.Media)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init media uploader")
	}

	logBanner(logger, cfg, uploader)

	m := metrics.New()
	broker := events.NewBroker()
	chat, backend := vision.NewProvider(cfg.AI)

	orchestrator := restoration.NewOrchestrator(restoration.Options{
		Analyzer: vision.NewAnalyzer(vision.AnalyzerOptions{
			Client:            chat,
			Cache:             vision.NewMemoryCache(cfg.Pipeline.AnalysisCacheSize),
			FingerprintPrefix: cfg.Pipeline.FingerprintPrefix,
			Timeout:           cfg.Pipeline.VisionTimeout,
			Logger:            &logger,
			Metrics:           m,
		}),
		Planner: vision.NewPlanner(vision.PlannerOptions{
			Client:  chat,
			Timeout: cfg.Pipeline.PlanTimeout,
			Logger:  &logger,
			Metrics: m,
		}),
		Editor: vision.NewEditor(vision.EditorOptions{
			Backend:    backend,
			RetryDelay: cfg.Pipeline.EditRetryDelay,
			Timeout:    cfg.Pipeline.EditTimeout,
			Logger:     &logger,
			Metrics:    m,
		}),
		Store:       store,
		Credentials: cfg.AI,
		Uploader:    uploader,
		Notifier:    broker,
		Logger:      &logger,
		Metrics:     m,
	})

	srv := server.New(cfg.Port, cfg.HTTP, server.Deps{
		Restorations: restoration.Handler{Runner: orchestrator, Store: store, Logger: &logger},
		Events:       broker,
		Metrics:      m,
		Client: server.ClientConfig{
			GeoapifyAPIKey: cfg.Client.GeoapifyAPIKey,
			MapillaryToken: cfg.Client.MapillaryToken,
			Provider:       cfg.AI.Provider,
			AIAvailable:    len(cfg.AI.MissingCredentials()) == 0,
		},
		StaticDir: cfg.StaticDir,
		Logger:    &logger,
	})

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-shutdownChan
		logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown error")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Msg("server ready")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server failed")
	}
}

func newUploader(ctx context.Context, cfg config.MediaConfig) (media.Uploader, error) {
	if cfg.Bucket != "" && cfg.Region != "" {
		return media.NewUploader(ctx, media.Config{
			Bucket:          cfg.Bucket,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			PublicURL:       cfg.PublicURL,
			KeyPrefix:       cfg.KeyPrefix,
			ForcePathStyle:  cfg.ForcePathStyle,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
		})
	}
	if cfg.LocalDir != "" {
		return media.NewLocalUploader(cfg.LocalDir)
	}
	return media.Disabled(), nil
}

func logBanner(logger zerolog.Logger, cfg config.Config, uploader media.Uploader) {
	missing := cfg.AI.MissingCredentials()
	event := logger.Info().
		Str("provider", cfg.AI.Provider).
		Bool("ai_available", len(missing) == 0).
		Bool("database", cfg.DatabaseURL != "").
		Bool("media_archive", !media.IsDisabled(uploader))

	switch cfg.AI.Provider {
	case config.ProviderGoogle:
		event = event.
			Str("gemini_model", cfg.AI.Google.GeminiModel).
			Str("imagen_model", cfg.AI.Google.ImagenModel).
			Str("gemini_api_key", config.Mask(cfg.AI.Google.GeminiAPIKey))
	default:
		event = event.
			Str("azure_endpoint", cfg.AI.Azure.Endpoint).
			Str("chat_deployment", cfg.AI.Azure.ChatDeployment).
			Str("image_deployment", cfg.AI.Azure.ImageDeployment).
			Bool("entra_id", cfg.AI.Azure.UsesEntraID()).
			Str("azure_api_key", config.Mask(cfg.AI.Azure.APIKey))
	}
	event.
		Str("geoapify_api_key", config.Mask(cfg.Client.GeoapifyAPIKey)).
		Str("mapillary_token", config.Mask(cfg.Client.MapillaryToken)).
		Msg("archrenew starting")

	if len(missing) > 0 {
		logger.Warn().Strs("missing", missing).Msg("AI provider credentials missing, restorations will be refused")
	}
}
