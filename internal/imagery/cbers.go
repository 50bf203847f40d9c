package imagery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/paulmach/orb/geojson"

	"github.com/geoguardian/landcover-monitor-poc/internal/cache"
	"github.com/geoguardian/landcover-monitor-poc/internal/config"
	"github.com/geoguardian/landcover-monitor-poc/internal/raster"
	"github.com/geoguardian/landcover-monitor-poc/internal/retry"
)

const (
	cbersDefaultDaysPeriod = 60
	cbersTileNameField     = "PATH_ROW"
	cbersQueryLimit        = 10000
	cbersProvider          = "INPE-CDSR"
	cbersDownloadWorkers   = 5
)

var cbersCollections = []string{"CBERS4A_WPM_L4_DN", "CBERS4A_WPM_L2_DN"}

// cbersBands maps the WPM asset keys to their role; pan feeds the
// sharpening step, the rest are composited as nir, red, green, blue.
var cbersBands = []string{"pan", "nir", "red", "green", "blue"}

// Cbers queries INPE's stac-compose endpoint for CBERS-4A WPM scenes.
// Every scene is a full-tile acquisition, so selection is strictly
// most-recent-in-window rather than coverage combination.
type Cbers struct {
	cfg       *config.Config
	engine    raster.Engine
	guard     *retry.Guard
	logger    *slog.Logger
	badScenes *cache.SceneRegistry

	client *http.Client

	tiles  []string
	scenes map[string][]Candidate
}

func NewCbers(deps Deps) *Cbers {
	return &Cbers{
		cfg:       deps.Config,
		engine:    deps.Engine,
		guard:     deps.Guard,
		logger:    deps.Logger,
		badScenes: deps.BadScenes,
		client:    &http.Client{Timeout: 10 * time.Minute},
	}
}

func (c *Cbers) Name() string           { return "CBERS" }
func (c *Cbers) DefaultDaysPeriod() int { return cbersDefaultDaysPeriod }

// Authenticate only checks configuration: INPE authorizes downloads by
// the registered e-mail appended to each asset URL.
func (c *Cbers) Authenticate() error {
	if c.cfg.Cbers.URL == "" || c.cfg.Cbers.User == "" {
		return &MissingCredentialsError{Provider: c.Name()}
	}
	return nil
}

func (c *Cbers) ResolveIntersectingTiles(aoi *AOI) ([]string, error) {
	if c.tiles != nil {
		return c.tiles, nil
	}
	grid := tileGrid{
		path:      filepath.Join(c.cfg.Storage.GridDir, c.cfg.Cbers.GridLayer),
		nameField: cbersTileNameField,
	}
	tiles, err := grid.intersecting(aoi)
	if err != nil {
		return nil, err
	}
	c.tiles = tiles
	return tiles, nil
}

type cbersFeature struct {
	ID         string          `json:"id"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties struct {
		Datetime   string  `json:"datetime"`
		CloudCover float64 `json:"cloud_cover"`
		Path       int     `json:"path"`
		Row        int     `json:"row"`
	} `json:"properties"`
	Assets map[string]struct {
		Href string `json:"href"`
	} `json:"assets"`
}

type cbersFeatureCollection struct {
	Features []cbersFeature `json:"features"`
}

// QueryAvailableScenes posts one stac-compose search covering both WPM
// collections and groups the features by path_row tile.
func (c *Cbers) QueryAvailableScenes(ctx context.Context, aoi *AOI, window Window) (map[string][]Candidate, error) {
	bbox := aoi.BBox()
	payload, err := json.Marshal(map[string]interface{}{
		"providers": []map[string]interface{}{
			{
				"name":        cbersProvider,
				"collections": collectionNames(),
				"method":      "POST",
				"query": map[string]interface{}{
					"cloud_cover": map[string]interface{}{"lte": c.cfg.MaxCloudCoverage},
				},
			},
		},
		"bbox": []float64{bbox[0], bbox[1], bbox[2], bbox[3]},
		"datetime": fmt.Sprintf("%s/%s",
			window.Begin().Format("2006-01-02T15:04:05"),
			window.QueryEnd().Format("2006-01-02T15:04:05")),
		"limit": cbersQueryLimit,
	})
	if err != nil {
		return nil, err
	}

	body, err := guardedPostJSON(ctx, c.guard, c.client, "cbers stac search", c.cfg.Cbers.URL, payload)
	if err != nil {
		return nil, err
	}

	// stac-compose nests results by provider and collection.
	var result map[string]map[string]cbersFeatureCollection
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode stac-compose response: %w", err)
	}

	scenes := map[string][]Candidate{}
	count := 0
	for _, collection := range cbersCollections {
		fc, ok := result[cbersProvider][collection]
		if !ok {
			continue
		}
		for _, feat := range fc.Features {
			scene, err := c.buildScene(feat)
			if err != nil {
				return nil, err
			}
			scenes[scene.TileID] = append(scenes[scene.TileID], scene)
			count++
		}
	}
	c.scenes = scenes

	c.logger.Info("catalogue query finished",
		"provider", c.Name(), "window", window.String(),
		"products", count, "tiles", len(scenes))
	return scenes, nil
}

func collectionNames() []map[string]string {
	out := make([]map[string]string, 0, len(cbersCollections))
	for _, name := range cbersCollections {
		out = append(out, map[string]string{"name": name})
	}
	return out
}

func (c *Cbers) buildScene(feat cbersFeature) (*CbersScene, error) {
	acquired, err := time.Parse(time.RFC3339, feat.Properties.Datetime)
	if err != nil {
		acquired, err = time.Parse("2006-01-02T15:04:05", feat.Properties.Datetime)
	}
	if err != nil {
		return nil, fmt.Errorf("malformed datetime %q on scene %s: %w", feat.Properties.Datetime, feat.ID, err)
	}

	scene := &CbersScene{
		SceneID:  feat.ID,
		TileID:   fmt.Sprintf("%03d_%03d", feat.Properties.Path, feat.Properties.Row),
		Acquired: acquired,
		CloudPct: feat.Properties.CloudCover,
		BandURLs: map[string]string{},
	}
	if len(feat.Geometry) > 0 {
		if geom, err := geojson.UnmarshalGeometry(feat.Geometry); err == nil {
			scene.Footprint = geom.Geometry()
		}
	}
	for _, band := range cbersBands {
		asset, ok := feat.Assets[band]
		if !ok || asset.Href == "" {
			return nil, fmt.Errorf("scene %s is missing the %s asset", feat.ID, band)
		}
		scene.BandURLs[band] = asset.Href + "?email=" + c.cfg.Cbers.User
	}
	return scene, nil
}

// SelectAndDownloadBestScenes downloads the most recent in-window scene
// of one tile. A failed download or pansharpening moves on to the next
// most recent scene until one succeeds or the window is exhausted.
func (c *Cbers) SelectAndDownloadBestScenes(ctx context.Context, tile string, window Window) ([]DownloadedScene, error) {
	for _, candidate := range sortByDateDesc(c.scenes[tile]) {
		if !window.Contains(candidate.DateTime()) {
			continue
		}
		if c.badScenes != nil && c.badScenes.Contains(candidate.ID()) {
			c.logger.Info("skipping scene with a failed composition on record", "scene", candidate.ID())
			continue
		}

		scene, err := c.downloadScene(ctx, candidate.(*CbersScene))
		if err != nil {
			c.logger.Warn("scene failed, trying next candidate", "scene", candidate.ID(), "error", err)
			if c.badScenes != nil {
				if regErr := c.badScenes.Add(candidate.ID()); regErr != nil {
					c.logger.Warn("failed to record bad scene", "scene", candidate.ID(), "error", regErr)
				}
			}
			continue
		}
		return []DownloadedScene{scene}, nil
	}
	return nil, nil
}

// downloadScene fetches the five WPM bands in parallel, stacks the four
// multispectral ones and sharpens the stack with the 2m panchromatic
// band into Cb4_<tile>_<date>.tif.
func (c *Cbers) downloadScene(ctx context.Context, scene *CbersScene) (DownloadedScene, error) {
	name := fmt.Sprintf("Cb4_%s_%s", scene.TileID, scene.Acquired.Format("20060102"))
	composed := filepath.Join(c.cfg.Storage.TempDir, name+".tif")
	if _, err := os.Stat(composed); err == nil {
		c.logger.Info("scene already composed, skipping download", "path", composed)
		return c.downloadedRecord(scene, composed), nil
	}

	if err := os.MkdirAll(c.cfg.Storage.DownloadDir, 0755); err != nil {
		return DownloadedScene{}, err
	}
	if err := os.MkdirAll(c.cfg.Storage.TempDir, 0755); err != nil {
		return DownloadedScene{}, err
	}

	bandPaths := map[string]string{}
	wp := workerpool.New(cbersDownloadWorkers)
	var mu sync.Mutex
	var firstErr error
	for _, band := range cbersBands {
		path := filepath.Join(c.cfg.Storage.DownloadDir, fmt.Sprintf("%s_%s.tif", name, band))
		bandPaths[band] = path
		bandURL := scene.BandURLs[band]
		wp.Submit(func() {
			if err := downloadTo(ctx, c.guard, c.client, "cbers band download", bandURL, path); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		})
	}
	wp.StopWait()
	if firstErr != nil {
		return DownloadedScene{}, &CompositionError{SceneID: scene.ID(), Stage: "band download", Err: firstErr}
	}

	multispectral := filepath.Join(c.cfg.Storage.TempDir, name+"_ms.tif")
	stack := []string{bandPaths["nir"], bandPaths["red"], bandPaths["green"], bandPaths["blue"]}
	if err := c.engine.CompositeBands(stack, multispectral); err != nil {
		return DownloadedScene{}, &CompositionError{SceneID: scene.ID(), Stage: "band composition", Err: err}
	}

	if err := c.engine.Pansharpen(multispectral, bandPaths["pan"], composed); err != nil {
		os.Remove(multispectral)
		return DownloadedScene{}, &CompositionError{SceneID: scene.ID(), Stage: "pansharpen", Err: err}
	}

	if c.cfg.Storage.DeleteTempFiles {
		os.Remove(multispectral)
		for _, path := range bandPaths {
			os.Remove(path)
		}
	}
	return c.downloadedRecord(scene, composed), nil
}

func (c *Cbers) downloadedRecord(scene *CbersScene, path string) DownloadedScene {
	coverage, _ := scene.Coverage()
	return DownloadedScene{
		SceneID:     scene.ID(),
		Tile:        scene.TileID,
		Acquired:    scene.Acquired,
		CloudPct:    scene.CloudPct,
		CoveragePct: coverage,
		Path:        path,
	}
}
