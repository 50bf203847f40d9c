package imagery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoguardian/landcover-monitor-poc/internal/config"
)

func cbersTestConfig(t *testing.T, url string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Provider:         "CBERS",
		MaxCloudCoverage: 20,
		Storage: config.StorageConfig{
			OutputDir:   filepath.Join(dir, "composed"),
			DownloadDir: filepath.Join(dir, "downloads"),
			TempDir:     filepath.Join(dir, "tmp"),
			GridDir:     filepath.Join(dir, "grids"),
		},
		Cbers: config.CbersConfig{
			URL:  url,
			User: "observer@example.com",
		},
	}
}

func cbersFeatureJSON(id, datetime string, path, row int, assetBase string) string {
	assets := map[string]map[string]string{}
	for _, band := range []string{"pan", "nir", "red", "green", "blue"} {
		assets[band] = map[string]string{"href": assetBase + "/" + id + "_" + band + ".tif"}
	}
	assetJSON, _ := json.Marshal(assets)
	return fmt.Sprintf(`{
		"id": %q,
		"properties": {"datetime": %q, "cloud_cover": 5.0, "path": %d, "row": %d},
		"assets": %s
	}`, id, datetime, path, row, assetJSON)
}

func TestCbersAuthenticateRequiresUser(t *testing.T) {
	cfg := cbersTestConfig(t, "http://unused")
	cfg.Cbers.User = ""

	c := NewCbers(testDeps(t, cfg, &fakeRasterEngine{}))
	err := c.Authenticate()

	var missing *MissingCredentialsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "CBERS", missing.Provider)
}

func TestCbersQueryGroupsByPathRow(t *testing.T) {
	var payload map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		fmt.Fprintf(w, `{"INPE-CDSR":{
			"CBERS4A_WPM_L4_DN":{"features":[%s]},
			"CBERS4A_WPM_L2_DN":{"features":[%s]}
		}}`,
			cbersFeatureJSON("CBERS_4A_WPM_20240601_216_110", "2024-06-01T13:30:00", 216, 110, "http://assets"),
			cbersFeatureJSON("CBERS_4A_WPM_20240525_217_110", "2024-05-25T13:30:00Z", 217, 110, "http://assets"))
	}))
	defer server.Close()

	cfg := cbersTestConfig(t, server.URL)
	c := NewCbers(testDeps(t, cfg, &fakeRasterEngine{}))
	require.NoError(t, c.Authenticate())

	window := Window{MaxDate: time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), DaysPeriod: 60}
	scenes, err := c.QueryAvailableScenes(context.Background(), &AOI{geom: orb.Point{-51.2, -20.4}}, window)
	require.NoError(t, err)

	require.Len(t, scenes, 2)
	require.Len(t, scenes["216_110"], 1)
	require.Len(t, scenes["217_110"], 1)

	scene := scenes["216_110"][0].(*CbersScene)
	assert.Equal(t, time.Date(2024, 6, 1, 13, 30, 0, 0, time.UTC), scene.Acquired)
	assert.Equal(t, "http://assets/CBERS_4A_WPM_20240601_216_110_pan.tif?email=observer@example.com", scene.BandURLs["pan"])

	providers := payload["providers"].([]interface{})
	provider := providers[0].(map[string]interface{})
	assert.Equal(t, "INPE-CDSR", provider["name"])
	assert.Equal(t, float64(10000), payload["limit"])
}

func TestCbersQueryRejectsMalformedDatetime(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"INPE-CDSR":{"CBERS4A_WPM_L4_DN":{"features":[%s]}}}`,
			cbersFeatureJSON("bad-scene", "yesterday-ish", 216, 110, "http://assets"))
	}))
	defer server.Close()

	cfg := cbersTestConfig(t, server.URL)
	c := NewCbers(testDeps(t, cfg, &fakeRasterEngine{}))

	window := Window{MaxDate: time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), DaysPeriod: 60}
	_, err := c.QueryAvailableScenes(context.Background(), &AOI{geom: orb.Point{-51.2, -20.4}}, window)
	assert.ErrorContains(t, err, "malformed datetime")
}

func TestCbersSelectAndDownloadMostRecentWithPansharpenFallback(t *testing.T) {
	assetServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "tif-bytes")
	}))
	defer assetServer.Close()

	engine := &fakeRasterEngine{}
	pansharpenAttempts := 0
	engineWithFailure := &failingPansharpenEngine{
		fakeRasterEngine: engine,
		fail: func(output string) bool {
			pansharpenAttempts++
			return strings.Contains(output, "20240610")
		},
	}

	cfg := cbersTestConfig(t, "http://unused")
	deps := testDeps(t, cfg, engine)
	deps.Engine = engineWithFailure
	c := NewCbers(deps)

	newest := cbersSceneForTest("scene-newest", time.Date(2024, 6, 10, 13, 30, 0, 0, time.UTC), assetServer.URL)
	older := cbersSceneForTest("scene-older", time.Date(2024, 6, 1, 13, 30, 0, 0, time.UTC), assetServer.URL)
	c.scenes = map[string][]Candidate{"216_110": {older, newest}}

	window := Window{MaxDate: time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), DaysPeriod: 60}
	downloaded, err := c.SelectAndDownloadBestScenes(context.Background(), "216_110", window)
	require.NoError(t, err)

	// The most recent scene fails to pansharpen; the next one succeeds.
	require.Len(t, downloaded, 1)
	assert.Equal(t, "scene-older", downloaded[0].SceneID)
	assert.Equal(t, 100.0, downloaded[0].CoveragePct)
	assert.Equal(t, 2, pansharpenAttempts)
	assert.True(t, deps.BadScenes.Contains("scene-newest"))
}

func TestCbersSelectAndDownloadEmptyWindow(t *testing.T) {
	cfg := cbersTestConfig(t, "http://unused")
	c := NewCbers(testDeps(t, cfg, &fakeRasterEngine{}))

	old := cbersSceneForTest("ancient", time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), "http://unused")
	c.scenes = map[string][]Candidate{"216_110": {old}}

	window := Window{MaxDate: time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), DaysPeriod: 60}
	downloaded, err := c.SelectAndDownloadBestScenes(context.Background(), "216_110", window)
	require.NoError(t, err)
	assert.Empty(t, downloaded)
}

type failingPansharpenEngine struct {
	*fakeRasterEngine
	fail func(output string) bool
}

func (f *failingPansharpenEngine) Pansharpen(multispectral, pan, output string) error {
	if f.fail(output) {
		return errors.New("pansharpening produced no output")
	}
	return f.fakeRasterEngine.Pansharpen(multispectral, pan, output)
}

func cbersSceneForTest(id string, acquired time.Time, assetBase string) *CbersScene {
	urls := map[string]string{}
	for _, band := range cbersBands {
		urls[band] = assetBase + "/" + id + "_" + band + ".tif"
	}
	return &CbersScene{
		SceneID:  id,
		TileID:   "216_110",
		Acquired: acquired,
		CloudPct: 5,
		BandURLs: urls,
	}
}
