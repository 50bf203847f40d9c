package raster

import (
	"fmt"

	"github.com/airbusgeo/godal"
	"github.com/fogleman/gg"
)

// Quicklook renders the first three bands of a stretched product as an
// RGB preview PNG for inspection without GIS tooling.
func Quicklook(tiffPath, pngPath string) error {
	dataset, err := godal.Open(tiffPath)
	if err != nil {
		return fmt.Errorf("failed to open TIFF file: %v", err)
	}
	defer dataset.Close()

	st := dataset.Structure()
	width := st.SizeX
	height := st.SizeY
	if st.NBands < 3 {
		return fmt.Errorf("quicklook needs at least 3 bands, got %d", st.NBands)
	}

	channels := make([][]float64, 3)
	for b := 0; b < 3; b++ {
		data := make([]float64, width*height)
		if err := dataset.Bands()[b].Read(0, 0, data, width, height); err != nil {
			return fmt.Errorf("failed to read raster data: %v", err)
		}
		channels[b] = data
	}

	dc := gg.NewContext(width, height)
	for i := 0; i < height; i++ {
		for j := 0; j < width; j++ {
			idx := i*width + j
			dc.SetRGB(channels[0][idx]/255, channels[1][idx]/255, channels[2][idx]/255)
			dc.SetPixel(j, i)
		}
	}

	if err := dc.SavePNG(pngPath); err != nil {
		return fmt.Errorf("failed to save image: %v", err)
	}
	return nil
}
