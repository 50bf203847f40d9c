package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	bannercolor "github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/geoguardian/landcover-monitor-poc/internal/classifier"
	"github.com/geoguardian/landcover-monitor-poc/internal/config"
)

func printBanner() {
	figure1 := figure.NewFigure("Classify", "isometric1", true)
	bannercolor.Cyan(figure1.String())
	fmt.Println()
}

func main() {
	printBanner()
	godotenv.Load()
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	rasters := flag.Args()
	if len(rasters) == 0 {
		fmt.Fprintln(os.Stderr, "usage: classify <current.tif> [historic.tif ...]")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := classifier.NewExecClassifier(cfg.Classifier)
	for _, raster := range rasters {
		output, err := c.Classify(ctx, raster)
		if err != nil {
			logger.Error("classification failed", "raster", raster, "error", err)
			os.Exit(1)
		}
		logger.Info("classification finished", "raster", raster, "classified", output)
	}
}
