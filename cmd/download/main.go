package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	bannercolor "github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/geoguardian/landcover-monitor-poc/internal/acquisition"
	"github.com/geoguardian/landcover-monitor-poc/internal/cache"
	"github.com/geoguardian/landcover-monitor-poc/internal/config"
	"github.com/geoguardian/landcover-monitor-poc/internal/imagery"
	"github.com/geoguardian/landcover-monitor-poc/internal/notification"
	"github.com/geoguardian/landcover-monitor-poc/internal/raster"
	"github.com/geoguardian/landcover-monitor-poc/internal/report"
	"github.com/geoguardian/landcover-monitor-poc/internal/retry"
)

func printBanner() {
	figure1 := figure.NewFigure("GeoGuardian", "isometric1", true)
	bannercolor.Cyan(figure1.String())
	fmt.Println()
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func main() {
	printBanner()
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	notifier := notification.NewNotifier(cfg.Notification)
	if err := run(cfg, logger); err != nil {
		logger.Error("acquisition run failed", "error", err)
		if notifyErr := notifier.SendError(err.Error()); notifyErr != nil {
			logger.Warn("failed to send error notification", "error", notifyErr)
		}
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.AOIPath == "" {
		return fmt.Errorf("AOI_PATH is required")
	}
	aoi, err := imagery.LoadAOI(cfg.AOIPath)
	if err != nil {
		return err
	}
	defer aoi.Close()

	guard := retry.NewGuard(logger)
	engine := raster.NewGodalEngine(cfg.Storage.TempDir)
	badScenes, err := cache.NewSceneRegistry(filepath.Join(cfg.Storage.TempDir, "bad_scenes.json"))
	if err != nil {
		return err
	}

	provider, err := imagery.NewProvider(cfg.Provider, imagery.Deps{
		Config:    cfg,
		Engine:    engine,
		Guard:     guard,
		Logger:    logger,
		BadScenes: badScenes,
	})
	if err != nil {
		return err
	}

	pipeline := raster.NewPipeline(engine, logger, cfg.Storage.DeleteTempFiles)
	orchestrator := acquisition.NewOrchestrator(cfg, provider, pipeline, logger)

	result, err := orchestrator.GetHistoricAndCurrentImages(ctx, aoi)
	if err != nil {
		return err
	}

	reportPath := filepath.Join(cfg.Storage.OutputDir, "acquisition_report.csv")
	if err := report.Write(reportPath, result.Rows); err != nil {
		return err
	}

	for _, artifact := range []acquisition.Artifact{result.Current, result.Historic} {
		preview := strings.TrimSuffix(artifact.Path, filepath.Ext(artifact.Path)) + ".png"
		if err := raster.Quicklook(artifact.Path, preview); err != nil {
			logger.Warn("failed to render quicklook", "raster", artifact.Path, "error", err)
		}
	}

	logger.Info("acquisition finished",
		"current", result.Current.Path,
		"current_date", result.Current.DateCreated.Format("2006-01-02"),
		"historic", result.Historic.Path,
		"historic_date", result.Historic.DateCreated.Format("2006-01-02"),
		"report", reportPath)

	notifier := notification.NewNotifier(cfg.Notification)
	message := fmt.Sprintf("Current: %s (%s)\nHistoric: %s (%s)",
		result.Current.Name, result.Current.DateCreated.Format("2006-01-02"),
		result.Historic.Name, result.Historic.DateCreated.Format("2006-01-02"))
	if err := notifier.SendSuccess(message); err != nil {
		logger.Warn("failed to send success notification", "error", err)
	}
	return nil
}
