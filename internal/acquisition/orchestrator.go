// Package acquisition drives a full run: resolve tiles, acquire the
// current window, then chain the historic window off the current
// product's acquisition date so change detection compares imagery that
// is actually daysPeriod apart.
package acquisition

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/geoguardian/landcover-monitor-poc/internal/config"
	"github.com/geoguardian/landcover-monitor-poc/internal/imagery"
	"github.com/geoguardian/landcover-monitor-poc/internal/raster"
	"github.com/geoguardian/landcover-monitor-poc/internal/report"
	"github.com/geoguardian/landcover-monitor-poc/internal/utils"
)

// Artifact is one composed window product.
type Artifact struct {
	// Path is the final stretched raster on disk.
	Path string
	Name string
	// DateCreated is the acquisition date of the newest scene in the
	// product. For a product found already on disk it falls back to the
	// window's max date, the closest known bound.
	DateCreated   time.Time
	DateProcessed time.Time
}

// Result pairs the two window products with the per-scene manifest rows.
type Result struct {
	Current  Artifact
	Historic Artifact
	Rows     []report.SceneRow
}

// Composer reduces downloaded scenes to a single masked, stretched
// raster; satisfied by raster.Pipeline.
type Composer interface {
	Compose(inputs []string, dir, label, cutline string) (string, error)
}

type Orchestrator struct {
	cfg      *config.Config
	provider imagery.Provider
	composer Composer
	logger   *slog.Logger

	now func() time.Time
	// newBar is replaced in tests to silence terminal output.
	newBar func(total int64, description string) *progressbar.ProgressBar
}

func NewOrchestrator(cfg *config.Config, provider imagery.Provider, composer Composer, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		provider: provider,
		composer: composer,
		logger:   logger,
		now:      time.Now,
		newBar: func(total int64, description string) *progressbar.ProgressBar {
			return progressbar.Default(total, description)
		},
	}
}

// GetHistoricAndCurrentImages acquires and composes both windows. The
// historic window ends daysPeriod before the current product's newest
// scene, not before the requested max date, so a stale current product
// still yields a meaningful comparison span.
func (o *Orchestrator) GetHistoricAndCurrentImages(ctx context.Context, aoi *imagery.AOI) (Result, error) {
	maxDate := o.cfg.ResolvedMaxDate(o.now())
	daysPeriod := o.cfg.DaysPeriod
	if daysPeriod == 0 {
		daysPeriod = o.provider.DefaultDaysPeriod()
	}

	tiles, err := o.provider.ResolveIntersectingTiles(aoi)
	if err != nil {
		return Result{}, err
	}
	if len(tiles) == 0 {
		return Result{}, fmt.Errorf("area of interest %s intersects no %s tiles", aoi.Path(), o.provider.Name())
	}
	o.logger.Info("resolved intersecting tiles", "provider", o.provider.Name(), "tiles", tiles)

	bar := o.newBar(int64(len(tiles)*2), "acquiring scenes")
	runStamp := o.now().Format("20060102")

	currentWindow := imagery.Window{MaxDate: maxDate, DaysPeriod: daysPeriod}
	current, currentRows, err := o.acquireWindow(ctx, aoi, tiles, currentWindow, "Current_Image_"+runStamp, bar)
	if err != nil {
		return Result{}, fmt.Errorf("current window acquisition failed: %w", err)
	}

	historicWindow := imagery.Window{
		MaxDate:    current.DateCreated.AddDate(0, 0, -daysPeriod),
		DaysPeriod: daysPeriod,
	}
	historic, historicRows, err := o.acquireWindow(ctx, aoi, tiles, historicWindow, "Historic_Image_"+runStamp, bar)
	if err != nil {
		return Result{}, fmt.Errorf("historic window acquisition failed: %w", err)
	}

	return Result{
		Current:  current,
		Historic: historic,
		Rows:     append(currentRows, historicRows...),
	}, nil
}

func (o *Orchestrator) acquireWindow(ctx context.Context, aoi *imagery.AOI, tiles []string, window imagery.Window, label string, bar *progressbar.ProgressBar) (Artifact, []report.SceneRow, error) {
	finalName := raster.FinalName(label)
	finalPath := filepath.Join(o.cfg.Storage.OutputDir, finalName)
	if _, err := os.Stat(finalPath); err == nil {
		o.logger.Info("window product already composed, skipping acquisition",
			"label", label, "path", finalPath)
		bar.Add(len(tiles))
		return Artifact{
			Path:          finalPath,
			Name:          finalName,
			DateCreated:   window.MaxDate,
			DateProcessed: o.now(),
		}, nil, nil
	}

	if err := os.MkdirAll(o.cfg.Storage.OutputDir, 0755); err != nil {
		return Artifact{}, nil, err
	}

	if _, err := o.provider.QueryAvailableScenes(ctx, aoi, window); err != nil {
		return Artifact{}, nil, err
	}

	var inputs []string
	var rows []report.SceneRow
	byDate := map[time.Time]struct{}{}
	for _, tile := range tiles {
		scenes, err := o.provider.SelectAndDownloadBestScenes(ctx, tile, window)
		if err != nil {
			return Artifact{}, nil, err
		}
		if len(scenes) == 0 {
			o.logger.Warn("no usable imagery for tile in window, excluding it",
				"tile", tile, "window", window.String())
			bar.Add(1)
			continue
		}
		for _, scene := range scenes {
			inputs = append(inputs, scene.Path)
			byDate[scene.Acquired] = struct{}{}
			rows = append(rows, report.NewSceneRow(
				window.String(), scene.Tile, scene.SceneID,
				scene.Acquired, o.now(), scene.CloudPct, scene.CoveragePct, scene.Path))
		}
		bar.Add(1)
	}

	if len(inputs) == 0 {
		return Artifact{}, nil, &imagery.NoImageryInPeriodError{Tiles: tiles, Window: window}
	}

	path, err := o.composer.Compose(inputs, o.cfg.Storage.OutputDir, label, aoi.Path())
	if err != nil {
		return Artifact{}, nil, err
	}

	newest := utils.GetSortedKeys(byDate, false)[0]
	artifact := Artifact{
		Path:          path,
		Name:          filepath.Base(path),
		DateCreated:   newest,
		DateProcessed: o.now(),
	}
	o.logger.Info("window product composed",
		"label", label, "path", path, "scenes", len(inputs),
		"newest_scene", newest.Format("2006-01-02"))
	return artifact, rows, nil
}
