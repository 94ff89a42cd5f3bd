package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"archRenew/internal/config"
	"archRenew/internal/logging"
	"archRenew/internal/restoration"
	"archRenew/internal/storage"
	"archRenew/internal/vision"
)

func main() {
	var (
		imagePath   = flag.String("image", "", "Path to the building photo to restore")
		outDir      = flag.String("out", ".", "Directory for the restored image and plan")
		style       = flag.String("style", restoration.DefaultStyle, "Restoration style")
		heritage    = flag.Bool("preserve-heritage", false, "Preserve historical and heritage elements")
		landscaping = flag.Bool("landscaping", false, "Add landscaping and greenery")
		lighting    = flag.Bool("lighting", false, "Add architectural lighting")
		expand      = flag.Bool("expand", false, "Consider a tasteful expansion")
		address     = flag.String("address", "", "Optional street address to record")
	)
	flag.Parse()

	cfg := config.FromEnv()
	logger := logging.New(cfg.AppEnv, cfg.LogLevel)

	if strings.TrimSpace(*imagePath) == "" {
		logger.Fatal().Msg("-image is required")
	}
	image, err := os.ReadFile(*imagePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("read image")
	}

	chat, backend := vision.NewProvider(cfg.AI)
	orchestrator := restoration.NewOrchestrator(restoration.Options{
		Analyzer: vision.NewAnalyzer(vision.AnalyzerOptions{
			Client:            chat,
			FingerprintPrefix: cfg.Pipeline.FingerprintPrefix,
			Timeout:           cfg.Pipeline.VisionTimeout,
			Logger:            &logger,
		}),
		Planner: vision.NewPlanner(vision.PlannerOptions{Client: chat, Timeout: cfg.Pipeline.PlanTimeout, Logger: &logger}),
		Editor: vision.NewEditor(vision.EditorOptions{
			Backend:    backend,
			RetryDelay: cfg.Pipeline.EditRetryDelay,
			Timeout:    cfg.Pipeline.EditTimeout,
			Logger:     &logger,
		}),
		Store:       storage.NewInMemoryStore(),
		Credentials: cfg.AI,
		Logger:      &logger,
	})

	rec, err := orchestrator.Run(context.Background(), restoration.Request{
		Image: image,
		Options: storage.Options{
			Style:            *style,
			PreserveHeritage: *heritage,
			Landscaping:      *landscaping,
			Lighting:         *lighting,
			ExpandBuilding:   *expand,
		},
		Address: *address,
	})
	if err != nil {
		var cfgErr *restoration.ConfigurationError
		if errors.As(err, &cfgErr) {
			logger.Fatal().Strs("missing", cfgErr.Missing).Msg(cfgErr.Help)
		}
		logger.Fatal().Err(err).Msg("restoration failed")
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		logger.Fatal().Err(err).Msg("create output dir")
	}
	imageOut := filepath.Join(*outDir, fmt.Sprintf("restored_%s.png", rec.ID))
	planOut := filepath.Join(*outDir, fmt.Sprintf("plan_%s.md", rec.ID))
	if err := os.WriteFile(imageOut, rec.RestoredImage, 0o644); err != nil {
		logger.Fatal().Err(err).Msg("write restored image")
	}
	if err := os.WriteFile(planOut, []byte(rec.Plan+"\n"), 0o644); err != nil {
		logger.Fatal().Err(err).Msg("write plan")
	}

	logger.Info().
		Str("id", rec.ID).
		Bool("restoration_success", rec.Success).
		Str("image", imageOut).
		Str("plan", planOut).
		Msg("restoration written")
}
