// Package imagery holds the satellite-imagery acquisition core: the
// provider adapters (Sentinel-2, CBERS), the tiling-grid selector and the
// scene-selection policies.
package imagery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/geoguardian/landcover-monitor-poc/internal/cache"
	"github.com/geoguardian/landcover-monitor-poc/internal/config"
	"github.com/geoguardian/landcover-monitor-poc/internal/raster"
	"github.com/geoguardian/landcover-monitor-poc/internal/retry"
)

// Provider is one satellite-data source behind the acquisition pipeline.
// A single instance serves one acquisition run: tile resolution is
// memoized, and each QueryAvailableScenes call fully replaces the cached
// scene mapping (callers must not assume accumulation).
type Provider interface {
	Name() string
	// DefaultDaysPeriod is the provider's rolling-window length when the
	// caller does not set one.
	DefaultDaysPeriod() int
	// Authenticate configures the provider's auth state, failing fast
	// with MissingCredentialsError when required fields are absent.
	Authenticate() error
	// ResolveIntersectingTiles intersects the AOI with the provider's
	// fixed grid, returning tile identifiers in deterministic layer
	// order. Computed once per adapter instance.
	ResolveIntersectingTiles(aoi *AOI) ([]string, error)
	// QueryAvailableScenes replaces the adapter's cached mapping of
	// tile id to discoverable scenes for the window.
	QueryAvailableScenes(ctx context.Context, aoi *AOI, window Window) (map[string][]Candidate, error)
	// SelectAndDownloadBestScenes applies the provider's selection policy
	// to one tile and downloads the picks, returning only scenes whose
	// composition succeeded. An empty result means no imagery for the
	// tile in this window; the caller decides whether that is fatal.
	SelectAndDownloadBestScenes(ctx context.Context, tile string, window Window) ([]DownloadedScene, error)
}

// Deps bundles the collaborators every adapter needs.
type Deps struct {
	Config    *config.Config
	Engine    raster.Engine
	Guard     *retry.Guard
	Logger    *slog.Logger
	BadScenes *cache.SceneRegistry
}

// NewProvider maps a provider name to a constructed, authenticated
// adapter.
func NewProvider(name string, deps Deps) (Provider, error) {
	var p Provider
	switch strings.ToUpper(name) {
	case "SENTINEL2":
		p = NewSentinel2(deps)
	case "CBERS":
		p = NewCbers(deps)
	default:
		return nil, fmt.Errorf("unknown imagery provider %q", name)
	}
	if err := p.Authenticate(); err != nil {
		return nil, err
	}
	return p, nil
}
