package imagery

import (
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb"
)

// SentinelScene is one discoverable Sentinel-2 acquisition, built from a
// catalogue query feature. Immutable after construction except for the
// fill-once no-data cache.
type SentinelScene struct {
	Title     string
	UUID      string
	TileID    string
	Acquired  time.Time
	CloudPct  float64
	Footprint orb.Geometry
	// BandURLs maps band name (B02..B08) to its download URL, resolved
	// lazily from the product node tree before download.
	BandURLs map[string]string

	// nodataFetch performs the guarded MTD_MSIL2A.xml round trip; set by
	// the adapter that owns the API session.
	nodataFetch func() (float64, error)
	nodataPct   *float64
}

func (s *SentinelScene) ID() string          { return s.UUID }
func (s *SentinelScene) DateTime() time.Time { return s.Acquired }

// Coverage returns 100 minus the scene's no-data pixel percentage,
// fetching and memoizing it on first use.
func (s *SentinelScene) Coverage() (float64, error) {
	if s.nodataPct == nil {
		if s.nodataFetch == nil {
			return 0, fmt.Errorf("scene %s has no metadata session", s.Title)
		}
		pct, err := s.nodataFetch()
		if err != nil {
			return 0, err
		}
		s.nodataPct = &pct
	}
	return 100 - *s.nodataPct, nil
}

// parseSentinelTitle extracts the tile identifier and acquisition
// timestamp from a SAFE product title such as
// S2B_MSIL2A_20240612T133849_N0510_R124_T22JCM_20240612T152055.
// A malformed title is a hard failure, never a silent default.
func parseSentinelTitle(title string) (tileID string, acquired time.Time, err error) {
	parts := strings.Split(title, "_")
	if len(parts) < 7 || len(parts[5]) < 2 || !strings.HasPrefix(parts[5], "T") {
		return "", time.Time{}, fmt.Errorf("malformed Sentinel product title %q", title)
	}
	tileID = parts[5][1:]
	acquired, err = time.Parse("20060102T150405", parts[6])
	if err != nil {
		return "", time.Time{}, fmt.Errorf("malformed timestamp in Sentinel product title %q: %w", title, err)
	}
	return tileID, acquired, nil
}

// CbersScene is one CBERS-4A STAC feature translated 1:1 into a scene
// record. Bands arrive as separate assets (pan + four multispectral).
type CbersScene struct {
	SceneID   string
	TileID    string
	Acquired  time.Time
	CloudPct  float64
	Footprint orb.Geometry
	// BandURLs maps pan/red/green/blue/nir to asset download URLs.
	BandURLs map[string]string
}

func (s *CbersScene) ID() string          { return s.SceneID }
func (s *CbersScene) DateTime() time.Time { return s.Acquired }

// Coverage is constant for CBERS: WPM scenes are full-tile acquisitions,
// which is why the strict most-recent policy applies instead of
// coverage accumulation.
func (s *CbersScene) Coverage() (float64, error) {
	return 100, nil
}

// DownloadedScene is a successfully downloaded and composed scene as
// handed back to the orchestrator.
type DownloadedScene struct {
	SceneID     string
	Tile        string
	Acquired    time.Time
	CloudPct    float64
	CoveragePct float64
	// Path is the composed single-raster output for this scene.
	Path string
}
