package imagery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/errgroup"

	"github.com/geoguardian/landcover-monitor-poc/internal/cache"
	"github.com/geoguardian/landcover-monitor-poc/internal/config"
	"github.com/geoguardian/landcover-monitor-poc/internal/raster"
	"github.com/geoguardian/landcover-monitor-poc/internal/retry"
)

const (
	sentinelDefaultDaysPeriod = 30
	sentinelTileNameField     = "NAME"
	sentinelODataURL          = "https://zipper.dataspace.copernicus.eu/odata/v1"
	sentinelPageSize          = 1000
)

// sentinelBands are the 10m resolution bands composed into one scene
// raster, in output band order (nir, red, green, blue).
var sentinelBands = []string{"B08", "B04", "B03", "B02"}

var nodataPctPattern = regexp.MustCompile(`<NODATA_PIXEL_PERCENTAGE>([0-9.]+)</NODATA_PIXEL_PERCENTAGE>`)

// Sentinel2 queries the Copernicus Data Space catalogue and downloads
// L2A products band by band. One OAuth session is opened per configured
// credential pair; query results from all sessions are merged.
type Sentinel2 struct {
	cfg       *config.Config
	engine    raster.Engine
	guard     *retry.Guard
	logger    *slog.Logger
	badScenes *cache.SceneRegistry

	sessions []*http.Client
	// newClient builds a session from one credential pair; replaced in
	// tests to avoid the token round trip.
	newClient func(config.Credential) *http.Client

	tiles  []string
	scenes map[string][]Candidate
}

func NewSentinel2(deps Deps) *Sentinel2 {
	return &Sentinel2{
		cfg:       deps.Config,
		engine:    deps.Engine,
		guard:     deps.Guard,
		logger:    deps.Logger,
		badScenes: deps.BadScenes,
		newClient: func(cred config.Credential) *http.Client {
			oauthCfg := &clientcredentials.Config{
				ClientID:     cred.ClientID,
				ClientSecret: cred.ClientSecret,
				TokenURL:     deps.Config.Sentinel.TokenURL,
			}
			return oauthCfg.Client(context.Background())
		},
	}
}

func (s *Sentinel2) Name() string           { return "SENTINEL2" }
func (s *Sentinel2) DefaultDaysPeriod() int { return sentinelDefaultDaysPeriod }

func (s *Sentinel2) Authenticate() error {
	creds, err := s.cfg.SentinelCredentials()
	if err != nil {
		return err
	}
	if len(creds) == 0 {
		return &MissingCredentialsError{Provider: s.Name()}
	}
	s.sessions = s.sessions[:0]
	for _, cred := range creds {
		s.sessions = append(s.sessions, s.newClient(cred))
	}
	return nil
}

func (s *Sentinel2) ResolveIntersectingTiles(aoi *AOI) ([]string, error) {
	if s.tiles != nil {
		return s.tiles, nil
	}
	grid := tileGrid{
		path:      filepath.Join(s.cfg.Storage.GridDir, s.cfg.Sentinel.GridLayer),
		nameField: sentinelTileNameField,
	}
	tiles, err := grid.intersecting(aoi)
	if err != nil {
		return nil, err
	}
	s.tiles = tiles
	return tiles, nil
}

type sentinelFeature struct {
	ID         string `json:"id"`
	Properties struct {
		Title      string  `json:"title"`
		CloudCover float64 `json:"cloudCover"`
	} `json:"properties"`
	Geometry json.RawMessage `json:"geometry"`
}

type sentinelSearchResponse struct {
	Features []sentinelFeature `json:"features"`
}

// QueryAvailableScenes searches the catalogue once per session, merges
// the results and groups them by tile. A product found by more than one
// session counts once.
func (s *Sentinel2) QueryAvailableScenes(ctx context.Context, aoi *AOI, window Window) (map[string][]Candidate, error) {
	byTitle := map[string]*SentinelScene{}
	var order []string
	for i, session := range s.sessions {
		features, err := s.search(ctx, session, aoi, window)
		if err != nil {
			return nil, fmt.Errorf("catalogue search failed for session %d: %w", i+1, err)
		}
		for _, feat := range features {
			if _, ok := byTitle[feat.Properties.Title]; ok {
				continue
			}
			scene, err := s.buildScene(ctx, session, feat)
			if err != nil {
				return nil, err
			}
			byTitle[feat.Properties.Title] = scene
			order = append(order, feat.Properties.Title)
		}
	}

	scenes := map[string][]Candidate{}
	for _, title := range order {
		scene := byTitle[title]
		scenes[scene.TileID] = append(scenes[scene.TileID], scene)
	}
	s.scenes = scenes

	s.logger.Info("catalogue query finished",
		"provider", s.Name(), "window", window.String(),
		"products", len(order), "tiles", len(scenes))
	return scenes, nil
}

func (s *Sentinel2) search(ctx context.Context, session *http.Client, aoi *AOI, window Window) ([]sentinelFeature, error) {
	var all []sentinelFeature
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("productType", "S2MSI2A")
		q.Set("startDate", window.Begin().Format(time.RFC3339))
		q.Set("completionDate", window.QueryEnd().Format(time.RFC3339))
		q.Set("cloudCover", fmt.Sprintf("[0,%d]", s.cfg.MaxCloudCoverage))
		q.Set("geometry", aoi.WKT())
		q.Set("maxRecords", strconv.Itoa(sentinelPageSize))
		q.Set("page", strconv.Itoa(page))

		searchURL := s.cfg.Sentinel.APIURL + "/resto/api/collections/Sentinel2/search.json?" + q.Encode()
		body, err := guardedGet(ctx, s.guard, session, "sentinel catalogue search", searchURL)
		if err != nil {
			return nil, err
		}

		var result sentinelSearchResponse
		if err := json.Unmarshal(body, &result); err != nil {
			return nil, fmt.Errorf("failed to decode catalogue response: %w", err)
		}
		all = append(all, result.Features...)
		if len(result.Features) < sentinelPageSize {
			return all, nil
		}
	}
}

func (s *Sentinel2) buildScene(ctx context.Context, session *http.Client, feat sentinelFeature) (*SentinelScene, error) {
	tileID, acquired, err := parseSentinelTitle(feat.Properties.Title)
	if err != nil {
		return nil, err
	}

	scene := &SentinelScene{
		Title:    feat.Properties.Title,
		UUID:     feat.ID,
		TileID:   tileID,
		Acquired: acquired,
		CloudPct: feat.Properties.CloudCover,
	}
	if len(feat.Geometry) > 0 {
		if geom, err := geojson.UnmarshalGeometry(feat.Geometry); err == nil {
			scene.Footprint = geom.Geometry()
		}
	}
	scene.nodataFetch = func() (float64, error) {
		return s.fetchNodataPct(ctx, session, scene)
	}
	return scene, nil
}

// fetchNodataPct pulls MTD_MSIL2A.xml through the product node tree. The
// service sometimes returns a 504 page with status 200; that body is
// treated as transient so the guard retries it.
func (s *Sentinel2) fetchNodataPct(ctx context.Context, session *http.Client, scene *SentinelScene) (float64, error) {
	metadataURL := fmt.Sprintf("%s/Products(%s)/Nodes(%s.SAFE)/Nodes(MTD_MSIL2A.xml)/$value",
		sentinelODataURL, scene.UUID, scene.Title)

	pct, err := retry.DoValue(s.guard, "sentinel product metadata", func() (float64, error) {
		body, err := s.rawGet(ctx, session, metadataURL)
		if err != nil {
			return 0, err
		}
		if strings.Contains(string(body), "504 Gateway Time-out") {
			return 0, retry.Transientf("metadata fetch for %s hit a gateway timeout", scene.Title)
		}
		// An empty or unreadable metadata document means the scene cannot
		// prove any usable coverage; treat it as fully no-data.
		m := nodataPctPattern.FindSubmatch(body)
		if m == nil {
			return 100, nil
		}
		v, err := strconv.ParseFloat(string(m[1]), 64)
		if err != nil {
			return 100, nil
		}
		return v, nil
	})
	if err != nil {
		return 0, err
	}
	return pct, nil
}

// rawGet is guardedGet without the guard: callers wrap it themselves when
// they need to inspect a 200 body before deciding to retry.
func (s *Sentinel2) rawGet(ctx context.Context, session *http.Client, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := session.Do(req)
	if err != nil {
		return nil, retry.Transient(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.Transient(err)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, retry.Transientf("GET %s returned %d", rawURL, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s returned %d: %s", rawURL, resp.StatusCode, truncate(body))
	}
	return body, nil
}

type odataNode struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
}

type odataNodeList struct {
	Result []odataNode `json:"result"`
}

func (s *Sentinel2) listNodes(ctx context.Context, session *http.Client, nodeURL string) ([]odataNode, error) {
	body, err := guardedGet(ctx, s.guard, session, "sentinel node listing", nodeURL)
	if err != nil {
		return nil, err
	}
	var list odataNodeList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("failed to decode node listing: %w", err)
	}
	return list.Result, nil
}

// resolveBandURLs walks the SAFE node tree down to the 10m imagery
// folder and maps band names to their jp2 download URLs.
func (s *Sentinel2) resolveBandURLs(ctx context.Context, session *http.Client, scene *SentinelScene) error {
	nodeURL := fmt.Sprintf("%s/Products(%s)/Nodes(%s.SAFE)/Nodes(GRANULE)/Nodes", sentinelODataURL, scene.UUID, scene.Title)
	granules, err := s.listNodes(ctx, session, nodeURL)
	if err != nil {
		return err
	}
	if len(granules) == 0 {
		return fmt.Errorf("product %s has no granule node", scene.Title)
	}

	imgURL := fmt.Sprintf("%s/Products(%s)/Nodes(%s.SAFE)/Nodes(GRANULE)/Nodes(%s)/Nodes(IMG_DATA)/Nodes(R10m)/Nodes",
		sentinelODataURL, scene.UUID, scene.Title, granules[0].Name)
	files, err := s.listNodes(ctx, session, imgURL)
	if err != nil {
		return err
	}

	scene.BandURLs = map[string]string{}
	for _, band := range sentinelBands {
		suffix := "_" + band + "_10m.jp2"
		for _, file := range files {
			if strings.HasSuffix(file.Name, suffix) {
				scene.BandURLs[band] = strings.TrimSuffix(imgURL, "/Nodes") + fmt.Sprintf("/Nodes(%s)/$value", file.Name)
				break
			}
		}
		if _, ok := scene.BandURLs[band]; !ok {
			return fmt.Errorf("product %s is missing band %s", scene.Title, band)
		}
	}
	return nil
}

// SelectAndDownloadBestScenes applies the coverage-combination policy to
// one tile and downloads every pick. A scene whose download or band
// composition fails is registered as bad and skipped; if every pick
// fails, the remaining candidates are tried singly, most recent first.
func (s *Sentinel2) SelectAndDownloadBestScenes(ctx context.Context, tile string, window Window) ([]DownloadedScene, error) {
	candidates := s.candidatesFor(tile, window)
	if len(candidates) == 0 {
		return nil, nil
	}

	picked, err := SelectByCoverage(candidates)
	if err != nil {
		return nil, err
	}

	var downloaded []DownloadedScene
	failed := map[string]bool{}
	for _, candidate := range picked {
		scene, err := s.downloadScene(ctx, candidate.(*SentinelScene))
		if err != nil {
			s.skipBadScene(candidate, err)
			failed[candidate.ID()] = true
			continue
		}
		downloaded = append(downloaded, scene)
	}
	if len(downloaded) > 0 {
		return downloaded, nil
	}

	// Every pick failed: fall back through the rest, one at a time.
	for _, candidate := range sortByDateDesc(candidates) {
		if failed[candidate.ID()] {
			continue
		}
		scene, err := s.downloadScene(ctx, candidate.(*SentinelScene))
		if err != nil {
			s.skipBadScene(candidate, err)
			continue
		}
		return []DownloadedScene{scene}, nil
	}
	return nil, nil
}

func (s *Sentinel2) candidatesFor(tile string, window Window) []Candidate {
	var out []Candidate
	for _, candidate := range s.scenes[tile] {
		// Accumulation considers the full queried range, including the
		// max-date day the catalogue search reaches into.
		if candidate.DateTime().Before(window.Begin()) || !candidate.DateTime().Before(window.QueryEnd()) {
			continue
		}
		if s.badScenes != nil && s.badScenes.Contains(candidate.ID()) {
			s.logger.Info("skipping scene with a failed composition on record", "scene", candidate.ID())
			continue
		}
		out = append(out, candidate)
	}
	return out
}

func (s *Sentinel2) skipBadScene(candidate Candidate, err error) {
	s.logger.Warn("scene failed, trying next candidate", "scene", candidate.ID(), "error", err)
	if s.badScenes != nil {
		if regErr := s.badScenes.Add(candidate.ID()); regErr != nil {
			s.logger.Warn("failed to record bad scene", "scene", candidate.ID(), "error", regErr)
		}
	}
}

// downloadScene fetches the four 10m bands concurrently and stacks them
// into Se2_<tile>_<datetime>.tif.
func (s *Sentinel2) downloadScene(ctx context.Context, scene *SentinelScene) (DownloadedScene, error) {
	name := fmt.Sprintf("Se2_%s_%s", scene.TileID, scene.Acquired.Format("20060102T150405"))
	composed := filepath.Join(s.cfg.Storage.TempDir, name+".tif")
	if _, err := os.Stat(composed); err == nil {
		s.logger.Info("scene already composed, skipping download", "path", composed)
		return s.downloadedRecord(scene, composed)
	}

	session := s.sessions[0]
	if scene.BandURLs == nil {
		if err := s.resolveBandURLs(ctx, session, scene); err != nil {
			return DownloadedScene{}, &CompositionError{SceneID: scene.ID(), Stage: "band resolution", Err: err}
		}
	}

	if err := os.MkdirAll(s.cfg.Storage.DownloadDir, 0755); err != nil {
		return DownloadedScene{}, err
	}
	if err := os.MkdirAll(s.cfg.Storage.TempDir, 0755); err != nil {
		return DownloadedScene{}, err
	}

	bandPaths := make([]string, len(sentinelBands))
	g, gctx := errgroup.WithContext(ctx)
	for i, band := range sentinelBands {
		path := filepath.Join(s.cfg.Storage.DownloadDir, fmt.Sprintf("%s_%s.jp2", name, band))
		bandPaths[i] = path
		bandURL := scene.BandURLs[band]
		g.Go(func() error {
			return downloadTo(gctx, s.guard, session, "sentinel band download", bandURL, path)
		})
	}
	if err := g.Wait(); err != nil {
		return DownloadedScene{}, &CompositionError{SceneID: scene.ID(), Stage: "band download", Err: err}
	}

	if err := s.engine.CompositeBands(bandPaths, composed); err != nil {
		return DownloadedScene{}, &CompositionError{SceneID: scene.ID(), Stage: "band composition", Err: err}
	}
	if s.cfg.Storage.DeleteTempFiles {
		for _, path := range bandPaths {
			os.Remove(path)
		}
	}
	return s.downloadedRecord(scene, composed)
}

func (s *Sentinel2) downloadedRecord(scene *SentinelScene, path string) (DownloadedScene, error) {
	coverage, err := scene.Coverage()
	if err != nil {
		return DownloadedScene{}, err
	}
	return DownloadedScene{
		SceneID:     scene.ID(),
		Tile:        scene.TileID,
		Acquired:    scene.Acquired,
		CloudPct:    scene.CloudPct,
		CoveragePct: coverage,
		Path:        path,
	}, nil
}
