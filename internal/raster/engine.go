// Package raster wraps the GIS-runtime raster operations the acquisition
// pipeline needs, plus the idempotent composite-image pipeline built on
// top of them.
package raster

// Engine is the contract the pipeline requires from the raster runtime.
// The production implementation is GDAL-backed (godal); tests substitute
// a fake.
type Engine interface {
	// Mosaic merges the inputs into one raster at output using
	// maximum-value compositing on a shared grid.
	Mosaic(inputs []string, output string) error
	// Mask clips input to the cutline vector file.
	Mask(input, cutline, output string) error
	// Stretch contrast-stretches input to an 8-bit raster using the
	// standard-deviation method with the fixed 0.25/0.75 percent clip.
	Stretch(input, output string) error
	// CompositeBands stacks single-band files into one multiband raster.
	CompositeBands(bands []string, output string) error
	// Pansharpen fuses a multispectral raster with its panchromatic band.
	Pansharpen(multispectral, pan, output string) error
}
