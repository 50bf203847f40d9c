package raster

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/airbusgeo/godal"
)

var registerDrivers sync.Once

// GodalEngine implements Engine on top of GDAL via godal.
type GodalEngine struct {
	// TempDir receives warp intermediates during mosaicking.
	TempDir string
}

func NewGodalEngine(tempDir string) *GodalEngine {
	registerDrivers.Do(godal.RegisterInternalDrivers)
	return &GodalEngine{TempDir: tempDir}
}

type gridExtent struct {
	minX, minY, maxX, maxY float64
	res                    float64
}

func (e *GodalEngine) Mosaic(inputs []string, output string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("no inputs to mosaic")
	}

	// Union extent over all inputs; inputs share the provider grid's
	// resolution and spatial reference.
	var ext gridExtent
	nBands := 0
	var srcRef *godal.SpatialRef
	for i, input := range inputs {
		ds, err := godal.Open(input)
		if err != nil {
			return fmt.Errorf("failed to open mosaic input %s: %w", input, err)
		}
		gt, err := ds.GeoTransform()
		if err != nil {
			ds.Close()
			return fmt.Errorf("failed to read geotransform of %s: %w", input, err)
		}
		st := ds.Structure()
		minX := gt[0]
		maxY := gt[3]
		maxX := minX + gt[1]*float64(st.SizeX)
		minY := maxY + gt[5]*float64(st.SizeY)
		if i == 0 {
			ext = gridExtent{minX: minX, minY: minY, maxX: maxX, maxY: maxY, res: gt[1]}
			nBands = st.NBands
			srcRef = ds.SpatialRef()
		} else {
			ext.minX = math.Min(ext.minX, minX)
			ext.minY = math.Min(ext.minY, minY)
			ext.maxX = math.Max(ext.maxX, maxX)
			ext.maxY = math.Max(ext.maxY, maxY)
		}
		if i != 0 {
			ds.Close()
		} else {
			defer ds.Close()
		}
	}

	width := int(math.Ceil((ext.maxX - ext.minX) / ext.res))
	height := int(math.Ceil((ext.maxY - ext.minY) / ext.res))

	out, err := godal.Create(godal.GTiff, output, nBands, godal.UInt16, width, height)
	if err != nil {
		return fmt.Errorf("failed to create mosaic %s: %w", output, err)
	}
	defer out.Close()
	if err := out.SetGeoTransform([6]float64{ext.minX, ext.res, 0, ext.maxY, 0, -ext.res}); err != nil {
		return fmt.Errorf("failed to set mosaic geotransform: %w", err)
	}
	if srcRef != nil {
		if err := out.SetSpatialRef(srcRef); err != nil {
			return fmt.Errorf("failed to set mosaic spatial reference: %w", err)
		}
	}

	// Maximum-value compositing: align each input onto the union grid and
	// fold it in row by row.
	for _, input := range inputs {
		if err := e.foldMax(input, out, ext, width, height, nBands); err != nil {
			return err
		}
	}
	return nil
}

func (e *GodalEngine) foldMax(input string, out *godal.Dataset, ext gridExtent, width, height, nBands int) error {
	src, err := godal.Open(input)
	if err != nil {
		return fmt.Errorf("failed to open mosaic input %s: %w", input, err)
	}
	defer src.Close()

	aligned := filepath.Join(e.TempDir, "align_"+filepath.Base(input))
	warped, err := src.Warp(aligned, []string{
		"-of", "GTiff",
		"-te", fmtFloat(ext.minX), fmtFloat(ext.minY), fmtFloat(ext.maxX), fmtFloat(ext.maxY),
		"-ts", strconv.Itoa(width), strconv.Itoa(height),
		"-dstnodata", "0",
	})
	if err != nil {
		return fmt.Errorf("failed to align %s onto mosaic grid: %w", input, err)
	}
	defer func() {
		warped.Close()
		os.Remove(aligned)
	}()

	srcRow := make([]float64, width)
	dstRow := make([]float64, width)
	for b := 0; b < nBands; b++ {
		warpedBand := warped.Bands()[b]
		outBand := out.Bands()[b]
		for y := 0; y < height; y++ {
			if err := warpedBand.Read(0, y, srcRow, width, 1); err != nil {
				return fmt.Errorf("failed to read %s row %d: %w", input, y, err)
			}
			if err := outBand.Read(0, y, dstRow, width, 1); err != nil {
				return fmt.Errorf("failed to read mosaic row %d: %w", y, err)
			}
			for x := 0; x < width; x++ {
				if srcRow[x] > dstRow[x] {
					dstRow[x] = srcRow[x]
				}
			}
			if err := outBand.Write(0, y, dstRow, width, 1); err != nil {
				return fmt.Errorf("failed to write mosaic row %d: %w", y, err)
			}
		}
	}
	return nil
}

func (e *GodalEngine) Mask(input, cutline, output string) error {
	ds, err := godal.Open(input)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", input, err)
	}
	defer ds.Close()

	masked, err := ds.Warp(output, []string{
		"-of", "GTiff",
		"-cutline", cutline,
		"-crop_to_cutline",
		"-dstnodata", "0",
	})
	if err != nil {
		return fmt.Errorf("failed to mask %s with %s: %w", input, cutline, err)
	}
	return masked.Close()
}

// Percent-clip bounds of the standard-deviation stretch; fixed by the
// field tool this replaces.
const (
	stretchMinPercent = 0.25
	stretchMaxPercent = 0.75
	stretchBuckets    = 65536
)

func (e *GodalEngine) Stretch(input, output string) error {
	ds, err := godal.Open(input)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", input, err)
	}
	defer ds.Close()

	st := ds.Structure()
	out, err := godal.Create(godal.GTiff, output, st.NBands, godal.Byte, st.SizeX, st.SizeY)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", output, err)
	}
	defer out.Close()

	if gt, err := ds.GeoTransform(); err == nil {
		if err := out.SetGeoTransform(gt); err != nil {
			return fmt.Errorf("failed to set geotransform on %s: %w", output, err)
		}
	}
	if sr := ds.SpatialRef(); sr != nil {
		if err := out.SetSpatialRef(sr); err != nil {
			return fmt.Errorf("failed to set spatial reference on %s: %w", output, err)
		}
	}

	for b := 0; b < st.NBands; b++ {
		if err := stretchBand(ds.Bands()[b], out.Bands()[b], st.SizeX, st.SizeY); err != nil {
			return fmt.Errorf("failed to stretch band %d of %s: %w", b+1, input, err)
		}
	}
	return nil
}

func stretchBand(src, dst godal.Band, width, height int) error {
	row := make([]float64, width)

	// First pass: value range, ignoring nodata zeros.
	minV, maxV := math.Inf(1), math.Inf(-1)
	for y := 0; y < height; y++ {
		if err := src.Read(0, y, row, width, 1); err != nil {
			return err
		}
		for _, v := range row {
			if v == 0 {
				continue
			}
			minV = math.Min(minV, v)
			maxV = math.Max(maxV, v)
		}
	}
	if minV >= maxV {
		// Constant or empty band: pass zeros through.
		minV, maxV = 0, 1
	}

	// Second pass: histogram for the percent clip.
	counts := make([]int64, stretchBuckets)
	var total int64
	scale := float64(stretchBuckets-1) / (maxV - minV)
	for y := 0; y < height; y++ {
		if err := src.Read(0, y, row, width, 1); err != nil {
			return err
		}
		for _, v := range row {
			if v == 0 {
				continue
			}
			counts[int((v-minV)*scale)]++
			total++
		}
	}

	low, high := clipBounds(counts, total, minV, maxV)

	// Third pass: linear map to 0..255.
	span := high - low
	if span <= 0 {
		span = 1
	}
	for y := 0; y < height; y++ {
		if err := src.Read(0, y, row, width, 1); err != nil {
			return err
		}
		for x, v := range row {
			if v == 0 {
				row[x] = 0
				continue
			}
			scaled := (v - low) / span * 255
			row[x] = math.Round(math.Max(0, math.Min(255, scaled)))
		}
		if err := dst.Write(0, y, row, width, 1); err != nil {
			return err
		}
	}
	return nil
}

func clipBounds(counts []int64, total int64, minV, maxV float64) (low, high float64) {
	if total == 0 {
		return minV, maxV
	}
	lowTarget := int64(float64(total) * stretchMinPercent / 100)
	highTarget := int64(float64(total) * stretchMaxPercent / 100)
	bucketWidth := (maxV - minV) / float64(len(counts)-1)

	var acc int64
	low, high = minV, maxV
	for i, c := range counts {
		acc += c
		if acc > lowTarget {
			low = minV + float64(i)*bucketWidth
			break
		}
	}
	acc = 0
	for i := len(counts) - 1; i >= 0; i-- {
		acc += counts[i]
		if acc > highTarget {
			high = minV + float64(i)*bucketWidth
			break
		}
	}
	if high <= low {
		high = low + 1
	}
	return low, high
}

func (e *GodalEngine) CompositeBands(bands []string, output string) error {
	if len(bands) == 0 {
		return fmt.Errorf("no bands to composite")
	}
	vrtPath := output + ".vrt"
	vrt, err := godal.BuildVRT(vrtPath, bands, []string{"-separate"})
	if err != nil {
		return fmt.Errorf("failed to build band stack for %s: %w", output, err)
	}
	defer func() {
		vrt.Close()
		os.Remove(vrtPath)
	}()

	tif, err := vrt.Translate(output, []string{"-of", "GTiff"})
	if err != nil {
		return fmt.Errorf("failed to composite bands into %s: %w", output, err)
	}
	return tif.Close()
}

func (e *GodalEngine) Pansharpen(multispectral, pan, output string) error {
	ms, err := godal.Open(multispectral)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", multispectral, err)
	}
	nBands := ms.Structure().NBands
	ms.Close()

	vrtPath := output + ".vrt"
	if err := os.WriteFile(vrtPath, []byte(pansharpenVRT(multispectral, pan, nBands)), 0644); err != nil {
		return fmt.Errorf("failed to write pansharpen VRT: %w", err)
	}
	defer os.Remove(vrtPath)

	vrt, err := godal.Open(vrtPath)
	if err != nil {
		return fmt.Errorf("failed to open pansharpen VRT for %s: %w", output, err)
	}
	defer vrt.Close()

	tif, err := vrt.Translate(output, []string{"-of", "GTiff"})
	if err != nil {
		return fmt.Errorf("failed to pansharpen %s: %w", multispectral, err)
	}
	return tif.Close()
}

func pansharpenVRT(multispectral, pan string, nBands int) string {
	doc := `<VRTDataset subClass="VRTPansharpenedDataset">
  <PansharpeningOptions>
    <Algorithm>WeightedBrovey</Algorithm>
    <PanchroBand>
      <SourceFilename relativeToVRT="0">` + pan + `</SourceFilename>
      <SourceBand>1</SourceBand>
    </PanchroBand>
`
	for b := 1; b <= nBands; b++ {
		n := strconv.Itoa(b)
		doc += `    <SpectralBand dstBand="` + n + `">
      <SourceFilename relativeToVRT="0">` + multispectral + `</SourceFilename>
      <SourceBand>` + n + `</SourceBand>
    </SpectralBand>
`
	}
	doc += `  </PansharpeningOptions>
</VRTDataset>
`
	return doc
}

func fmtFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
