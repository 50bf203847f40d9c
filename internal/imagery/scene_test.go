package imagery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSentinelTitle(t *testing.T) {
	tile, acquired, err := parseSentinelTitle("S2B_MSIL2A_20240612T133849_N0510_R124_T22JCM_20240612T152055")
	require.NoError(t, err)
	assert.Equal(t, "22JCM", tile)
	assert.Equal(t, time.Date(2024, 6, 12, 15, 20, 55, 0, time.UTC), acquired)
}

func TestParseSentinelTitleMalformed(t *testing.T) {
	for _, title := range []string{
		"",
		"S2B_MSIL2A",
		"S2B_MSIL2A_20240612T133849_N0510_R124_22JCM_20240612T152055",
		"S2B_MSIL2A_20240612T133849_N0510_R124_T22JCM_notadate",
	} {
		_, _, err := parseSentinelTitle(title)
		assert.Error(t, err, "title %q should not parse", title)
	}
}

func TestSentinelSceneCoverageMemoizesFetch(t *testing.T) {
	calls := 0
	scene := &SentinelScene{
		Title: "S2A_MSIL2A_20240610T132241_N0510_R038_T22KGA_20240610T152211",
		nodataFetch: func() (float64, error) {
			calls++
			return 12.5, nil
		},
	}

	for i := 0; i < 3; i++ {
		coverage, err := scene.Coverage()
		require.NoError(t, err)
		assert.Equal(t, 87.5, coverage)
	}
	assert.Equal(t, 1, calls)
}

func TestSentinelSceneCoverageFetchError(t *testing.T) {
	scene := &SentinelScene{nodataFetch: func() (float64, error) {
		return 0, assert.AnError
	}}
	_, err := scene.Coverage()
	assert.Error(t, err)
}

func TestCbersSceneCoverageIsConstant(t *testing.T) {
	scene := &CbersScene{SceneID: "CBERS_4A_WPM_20240601_216_110"}
	coverage, err := scene.Coverage()
	require.NoError(t, err)
	assert.Equal(t, 100.0, coverage)
}

func TestWindowBounds(t *testing.T) {
	w := Window{MaxDate: time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), DaysPeriod: 30}

	assert.Equal(t, time.Date(2024, 5, 16, 0, 0, 0, 0, time.UTC), w.Begin())
	assert.Equal(t, time.Date(2024, 6, 16, 0, 0, 0, 0, time.UTC), w.QueryEnd())
	assert.True(t, w.Contains(time.Date(2024, 5, 16, 0, 0, 0, 0, time.UTC)))
	assert.True(t, w.Contains(time.Date(2024, 6, 14, 23, 59, 59, 0, time.UTC)))
	assert.False(t, w.Contains(w.MaxDate))
	assert.False(t, w.Contains(time.Date(2024, 5, 15, 23, 0, 0, 0, time.UTC)))
}
