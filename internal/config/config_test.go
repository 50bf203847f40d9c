package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "SENTINEL2", cfg.Provider)
	assert.Equal(t, 20, cfg.MaxCloudCoverage)
	assert.Equal(t, 0, cfg.DaysPeriod)
	assert.Equal(t, "CPU", cfg.Classifier.ProcessorType)
	assert.False(t, cfg.Storage.DeleteTempFiles)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PROVIDER", "CBERS")
	t.Setenv("MAX_CLOUD_COVERAGE", "50")
	t.Setenv("MAX_DATE", "2024-06-15")
	t.Setenv("STORAGE_DELETE_TEMP_FILES", "true")
	t.Setenv("SENTINEL_CLIENT_IDS", "a,b")
	t.Setenv("SENTINEL_CLIENT_SECRETS", "s1,s2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "CBERS", cfg.Provider)
	assert.Equal(t, 50, cfg.MaxCloudCoverage)
	assert.True(t, cfg.Storage.DeleteTempFiles)

	maxDate := cfg.ResolvedMaxDate(time.Now())
	assert.Equal(t, time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), maxDate)

	creds, err := cfg.SentinelCredentials()
	require.NoError(t, err)
	require.Len(t, creds, 2)
	assert.Equal(t, Credential{ClientID: "a", ClientSecret: "s1"}, creds[0])
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown provider", "PROVIDER", "LANDSAT"},
		{"cloud coverage out of range", "MAX_CLOUD_COVERAGE", "120"},
		{"bad max date", "MAX_DATE", "15/06/2024"},
		{"bad processor type", "CLASSIFIER_PROCESSOR_TYPE", "TPU"},
		{"bad log level", "LOG_LEVEL", "verbose"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestSentinelCredentialsMismatch(t *testing.T) {
	t.Setenv("SENTINEL_CLIENT_IDS", "a,b,c")
	t.Setenv("SENTINEL_CLIENT_SECRETS", "s1")

	cfg, err := Load()
	require.NoError(t, err)

	_, err = cfg.SentinelCredentials()
	assert.ErrorContains(t, err, "mismatched")
}
