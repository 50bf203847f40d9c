package imagery

import (
	"fmt"

	"github.com/airbusgeo/godal"
)

// tileGrid locates a provider's fixed tiling-grid layer and intersects it
// with an area of interest.
type tileGrid struct {
	path string
	// nameField holds the tile identifier: NAME for Sentinel-2,
	// PATH_ROW for CBERS.
	nameField string
}

// intersecting returns the unique tile identifiers whose grid cells
// intersect the AOI, in layer order.
func (g tileGrid) intersecting(aoi *AOI) ([]string, error) {
	ds, err := godal.Open(g.path)
	if err != nil {
		return nil, &MissingGridError{Path: g.path}
	}
	defer ds.Close()

	layers := ds.Layers()
	if len(layers) == 0 {
		return nil, &MissingGridError{Path: g.path}
	}
	layer := layers[0]
	layer.ResetReading()

	seen := make(map[string]bool)
	var names []string
	for {
		feat := layer.NextFeature()
		if feat == nil {
			break
		}

		field, ok := feat.Fields()[g.nameField]
		if !ok {
			feat.Close()
			return nil, fmt.Errorf("tiling-grid layer %s has no %s field", g.path, g.nameField)
		}
		name := field.String()

		hit, err := feat.Geometry().Intersects(aoi.Geometry())
		if err != nil {
			feat.Close()
			return nil, fmt.Errorf("failed to intersect tile %s with AOI: %w", name, err)
		}
		if hit && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		feat.Close()
	}
	return names, nil
}
