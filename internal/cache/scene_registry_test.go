package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSceneRegistryPersistsAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad_scenes.json")

	first, err := NewSceneRegistry(path)
	require.NoError(t, err)
	assert.False(t, first.Contains("S2A_MSIL2A_20240610T132241"))

	require.NoError(t, first.Add("S2A_MSIL2A_20240610T132241"))
	require.NoError(t, first.Add("CBERS_4A_WPM_20240601_216_110"))
	assert.True(t, first.Contains("S2A_MSIL2A_20240610T132241"))

	second, err := NewSceneRegistry(path)
	require.NoError(t, err)
	assert.True(t, second.Contains("S2A_MSIL2A_20240610T132241"))
	assert.True(t, second.Contains("CBERS_4A_WPM_20240601_216_110"))
	assert.False(t, second.Contains("other"))
}

func TestSceneRegistryAddIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad_scenes.json")
	r, err := NewSceneRegistry(path)
	require.NoError(t, err)

	require.NoError(t, r.Add("scene"))
	require.NoError(t, r.Add("scene"))

	reloaded, err := NewSceneRegistry(path)
	require.NoError(t, err)
	assert.True(t, reloaded.Contains("scene"))
}

func TestSceneRegistryIgnoresCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad_scenes.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	r, err := NewSceneRegistry(path)
	require.NoError(t, err)
	assert.False(t, r.Contains("scene"))
	require.NoError(t, r.Add("scene"))
}
