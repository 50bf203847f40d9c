// Package report writes the acquisition manifest: one CSV row per scene
// that made it into a composed window product.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
)

const writeAttempts = 3

// SceneRow is one downloaded scene in the acquisition manifest.
type SceneRow struct {
	Window      string  `csv:"window"`
	Tile        string  `csv:"tile"`
	SceneID     string  `csv:"scene_id"`
	Acquired    string  `csv:"acquired"`
	Processed   string  `csv:"processed"`
	CloudPct    float64 `csv:"cloud_pct"`
	CoveragePct float64 `csv:"coverage_pct"`
	Path        string  `csv:"path"`
}

// NewSceneRow formats the timestamps up front so the CSV stays stable
// regardless of the local zone.
func NewSceneRow(window, tile, sceneID string, acquired, processed time.Time, cloudPct, coveragePct float64, path string) SceneRow {
	return SceneRow{
		Window:      window,
		Tile:        tile,
		SceneID:     sceneID,
		Acquired:    acquired.UTC().Format("2006-01-02 15:04:05"),
		Processed:   processed.UTC().Format("2006-01-02 15:04:05"),
		CloudPct:    cloudPct,
		CoveragePct: coveragePct,
		Path:        path,
	}
}

// Write saves the manifest, retrying a few times before giving up:
// network shares hosting the output directory drop writes now and then.
func Write(path string, rows []SceneRow) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %v", err)
	}

	var lastErr error
	for attempt := 1; attempt <= writeAttempts; attempt++ {
		lastErr = writeOnce(path, rows)
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("failed to write report after %d attempts: %v", writeAttempts, lastErr)
}

func writeOnce(path string, rows []SceneRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gocsv.MarshalFile(&rows, f)
}
