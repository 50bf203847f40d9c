package raster

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	mosaicCalls  [][]string
	maskCalls    []string
	stretchCalls []string
}

func (f *fakeEngine) touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("raster"), 0644))
}

func (f *fakeEngine) Mosaic(inputs []string, output string) error {
	f.mosaicCalls = append(f.mosaicCalls, inputs)
	return os.WriteFile(output, []byte("raster"), 0644)
}

func (f *fakeEngine) Mask(input, cutline, output string) error {
	f.maskCalls = append(f.maskCalls, input)
	return os.WriteFile(output, []byte("raster"), 0644)
}

func (f *fakeEngine) Stretch(input, output string) error {
	f.stretchCalls = append(f.stretchCalls, input)
	return os.WriteFile(output, []byte("raster"), 0644)
}

func (f *fakeEngine) CompositeBands(bands []string, output string) error {
	return os.WriteFile(output, []byte("raster"), 0644)
}

func (f *fakeEngine) Pansharpen(multispectral, pan, output string) error {
	return os.WriteFile(output, []byte("raster"), 0644)
}

func writeScene(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("scene"), 0644))
	return path
}

func TestComposeChainsMosaicMaskStretch(t *testing.T) {
	dir := t.TempDir()
	engine := &fakeEngine{}
	p := NewPipeline(engine, slog.Default(), false)

	a := writeScene(t, dir, "Se2_T22KGA_20240610T132241.tif")
	b := writeScene(t, dir, "Se2_T22KGB_20240610T132241.tif")

	out, err := p.Compose([]string{a, b}, dir, "Current_Image_20240615", "aoi.geojson")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "Stch_Msk_Mos_Current_Image_20240615.tif"), out)
	require.Len(t, engine.mosaicCalls, 1)
	assert.Equal(t, []string{a, b}, engine.mosaicCalls[0])
	assert.Equal(t, []string{filepath.Join(dir, "Mos_Current_Image_20240615.tif")}, engine.maskCalls)
	assert.Equal(t, []string{filepath.Join(dir, "Msk_Mos_Current_Image_20240615.tif")}, engine.stretchCalls)
}

func TestComposeSingleInputSkipsMosaic(t *testing.T) {
	dir := t.TempDir()
	engine := &fakeEngine{}
	p := NewPipeline(engine, slog.Default(), true)

	scene := writeScene(t, dir, "Cb4_216_110_20240601.tif")

	out, err := p.Compose([]string{scene}, dir, "Historic_Image_20240615", "aoi.geojson")
	require.NoError(t, err)

	assert.Empty(t, engine.mosaicCalls)
	assert.Equal(t, []string{scene}, engine.maskCalls)
	assert.Equal(t, filepath.Join(dir, "Stch_Msk_Mos_Historic_Image_20240615.tif"), out)

	// The lone scene is not an intermediate and must survive cleanup.
	_, err = os.Stat(scene)
	assert.NoError(t, err)
}

func TestComposeSkipsExistingOutputs(t *testing.T) {
	dir := t.TempDir()
	engine := &fakeEngine{}
	p := NewPipeline(engine, slog.Default(), false)

	a := writeScene(t, dir, "Se2_T22KGA_20240610T132241.tif")
	b := writeScene(t, dir, "Se2_T22KGB_20240610T132241.tif")
	engine.touch(t, filepath.Join(dir, "Mos_Current_Image_20240615.tif"))

	_, err := p.Compose([]string{a, b}, dir, "Current_Image_20240615", "aoi.geojson")
	require.NoError(t, err)

	assert.Empty(t, engine.mosaicCalls)
	assert.Len(t, engine.maskCalls, 1)
}

func TestComposeDeletesIntermediates(t *testing.T) {
	dir := t.TempDir()
	engine := &fakeEngine{}
	p := NewPipeline(engine, slog.Default(), true)

	a := writeScene(t, dir, "Se2_T22KGA_20240610T132241.tif")
	b := writeScene(t, dir, "Se2_T22KGB_20240610T132241.tif")

	_, err := p.Compose([]string{a, b}, dir, "Current_Image_20240615", "aoi.geojson")
	require.NoError(t, err)

	for _, gone := range []string{
		a, b,
		filepath.Join(dir, "Mos_Current_Image_20240615.tif"),
		filepath.Join(dir, "Msk_Mos_Current_Image_20240615.tif"),
	} {
		_, err := os.Stat(gone)
		assert.True(t, os.IsNotExist(err), "expected %s to be removed", gone)
	}
	_, err = os.Stat(filepath.Join(dir, "Stch_Msk_Mos_Current_Image_20240615.tif"))
	assert.NoError(t, err)
}

func TestComposeNoInputs(t *testing.T) {
	p := NewPipeline(&fakeEngine{}, slog.Default(), false)
	_, err := p.Compose(nil, t.TempDir(), "Current_Image_20240615", "aoi.geojson")
	assert.Error(t, err)
}

func TestFinalName(t *testing.T) {
	assert.Equal(t, "Stch_Msk_Mos_Current_Image_20240615.tif", FinalName("Current_Image_20240615"))
}
