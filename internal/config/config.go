// Package config holds the run configuration for the acquisition and
// classification tools. It is loaded once per run from environment
// variables (optionally seeded from a .env file) and read-only afterwards.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

type Config struct {
	// Provider selects the imagery service: SENTINEL2 or CBERS.
	Provider string `env:"PROVIDER" envDefault:"SENTINEL2"`
	// AOIPath points to the GeoJSON file with the area of interest.
	AOIPath string `env:"AOI_PATH"`
	// MaxCloudCoverage is the query ceiling in percent.
	MaxCloudCoverage int `env:"MAX_CLOUD_COVERAGE" envDefault:"20"`
	// MaxDate bounds the current acquisition window (YYYY-MM-DD).
	// Empty means today.
	MaxDate string `env:"MAX_DATE"`
	// DaysPeriod is the window length in days. Zero means the provider
	// default (30 for Sentinel-2, 60 for CBERS).
	DaysPeriod int `env:"DAYS_PERIOD" envDefault:"0"`

	Storage      StorageConfig      `envPrefix:"STORAGE_"`
	Sentinel     SentinelConfig     `envPrefix:"SENTINEL_"`
	Cbers        CbersConfig        `envPrefix:"CBERS_"`
	Classifier   ClassifierConfig   `envPrefix:"CLASSIFIER_"`
	Notification NotificationConfig `envPrefix:"DISCORD_"`
	Logging      LoggingConfig      `envPrefix:"LOG_"`
}

type StorageConfig struct {
	// OutputDir receives the final composed rasters.
	OutputDir string `env:"OUTPUT_DIR" envDefault:"data/composed"`
	// DownloadDir receives raw band downloads.
	DownloadDir string `env:"DOWNLOAD_DIR" envDefault:"data/downloads"`
	// TempDir receives intermediate rasters.
	TempDir string `env:"TEMP_DIR" envDefault:"data/tmp"`
	// GridDir holds the providers' fixed tiling-grid layers.
	GridDir string `env:"GRID_DIR" envDefault:"data/grids"`
	// DeleteTempFiles removes intermediate rasters as the pipeline advances.
	DeleteTempFiles bool `env:"DELETE_TEMP_FILES" envDefault:"false"`
}

type SentinelConfig struct {
	APIURL   string `env:"API_URL" envDefault:"https://catalogue.dataspace.copernicus.eu"`
	TokenURL string `env:"TOKEN_URL" envDefault:"https://identity.dataspace.copernicus.eu/auth/realms/CDSE/protocol/openid-connect/token"`
	// ClientIDs and ClientSecrets are parallel comma-separated lists; each
	// pair opens one API session, queried in sequence and merged.
	ClientIDs     string `env:"CLIENT_IDS"`
	ClientSecrets string `env:"CLIENT_SECRETS"`
	GridLayer     string `env:"GRID_LAYER" envDefault:"grade_sentinel_brasil.geojson"`
}

type CbersConfig struct {
	// URL is the stac-compose search endpoint.
	URL string `env:"URL" envDefault:"http://www2.dgi.inpe.br/stac-compose/stac/search/"`
	// User is the registered e-mail appended to asset downloads.
	User      string `env:"USER"`
	GridLayer string `env:"GRID_LAYER" envDefault:"grade_cbers_brasil.geojson"`
}

type ClassifierConfig struct {
	// Runner is the external model-runner executable.
	Runner    string `env:"RUNNER" envDefault:"classify-pixels"`
	ModelPath string `env:"MODEL_PATH"`
	Arguments string `env:"ARGUMENTS" envDefault:"padding 70;batch_size 2;predict_background True;tile_size 256"`
	// ProcessorType is CPU or GPU.
	ProcessorType string `env:"PROCESSOR_TYPE" envDefault:"CPU"`
	Cores         int    `env:"CORES" envDefault:"1"`
}

type NotificationConfig struct {
	ErrorWebhookURL   string `env:"ERROR_NOTIFICATION_URL"`
	SuccessWebhookURL string `env:"SUCCESS_NOTIFICATION_URL"`
}

type LoggingConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"text"`
}

// Credential is one Sentinel client-credentials pair.
type Credential struct {
	ClientID     string
	ClientSecret string
}

// Load parses the configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch strings.ToUpper(c.Provider) {
	case "SENTINEL2", "CBERS":
	default:
		return fmt.Errorf("provider must be SENTINEL2 or CBERS, got %q", c.Provider)
	}

	if c.MaxCloudCoverage < 0 || c.MaxCloudCoverage > 100 {
		return fmt.Errorf("max cloud coverage must be between 0 and 100, got %d", c.MaxCloudCoverage)
	}

	if c.DaysPeriod < 0 {
		return fmt.Errorf("days period must not be negative, got %d", c.DaysPeriod)
	}

	if c.MaxDate != "" {
		if _, err := time.Parse("2006-01-02", c.MaxDate); err != nil {
			return fmt.Errorf("max date must be YYYY-MM-DD, got %q", c.MaxDate)
		}
	}

	if c.Classifier.ProcessorType != "CPU" && c.Classifier.ProcessorType != "GPU" {
		return fmt.Errorf("classifier processor type must be CPU or GPU, got %q", c.Classifier.ProcessorType)
	}

	if c.Classifier.Cores < 1 {
		return fmt.Errorf("classifier core count must be at least 1, got %d", c.Classifier.Cores)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Logging.Level)
	}

	return nil
}

// ResolvedMaxDate returns the parsed MaxDate, or now when unset.
func (c *Config) ResolvedMaxDate(now time.Time) time.Time {
	if c.MaxDate == "" {
		return now
	}
	d, _ := time.Parse("2006-01-02", c.MaxDate)
	return d
}

// SentinelCredentials pairs up the comma-separated ID and secret lists.
func (c *Config) SentinelCredentials() ([]Credential, error) {
	if c.Sentinel.ClientIDs == "" || c.Sentinel.ClientSecrets == "" {
		return nil, nil
	}
	ids := strings.Split(c.Sentinel.ClientIDs, ",")
	secrets := strings.Split(c.Sentinel.ClientSecrets, ",")
	if len(ids) != len(secrets) {
		return nil, fmt.Errorf("mismatched number of client IDs (%d) and secrets (%d)", len(ids), len(secrets))
	}
	creds := make([]Credential, 0, len(ids))
	for i := range ids {
		creds = append(creds, Credential{
			ClientID:     strings.TrimSpace(ids[i]),
			ClientSecret: strings.TrimSpace(secrets[i]),
		})
	}
	return creds, nil
}
