package imagery

import (
	"fmt"
	"os"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
	orbwkb "github.com/paulmach/orb/encoding/wkb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
)

// AOI is the area of interest for one acquisition run, loaded from a
// GeoJSON file. It is read-only to the pipeline; the file path doubles as
// the cutline source for masking.
type AOI struct {
	path     string
	geom     orb.Geometry
	gdalGeom *godal.Geometry
}

// LoadAOI reads a GeoJSON feature collection (or single feature) and keeps
// both an orb geometry for bbox/WKT payloads and a godal geometry for
// precise grid intersection.
func LoadAOI(path string) (*AOI, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read AOI file %s: %w", path, err)
	}

	var geoms []orb.Geometry
	if fc, err := geojson.UnmarshalFeatureCollection(data); err == nil {
		for _, f := range fc.Features {
			if f.Geometry != nil {
				geoms = append(geoms, f.Geometry)
			}
		}
	} else if f, err := geojson.UnmarshalFeature(data); err == nil && f.Geometry != nil {
		geoms = append(geoms, f.Geometry)
	}
	if len(geoms) == 0 {
		return nil, fmt.Errorf("no geometries found in AOI file %s", path)
	}

	var geom orb.Geometry
	if len(geoms) == 1 {
		geom = geoms[0]
	} else {
		geom = orb.Collection(geoms)
	}

	wkbBytes, err := orbwkb.Marshal(geom)
	if err != nil {
		return nil, fmt.Errorf("failed to encode AOI geometry: %w", err)
	}

	sr, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		return nil, fmt.Errorf("failed to create spatial reference: %w", err)
	}
	defer sr.Close()

	gdalGeom, err := godal.NewGeometryFromWKB(wkbBytes, sr)
	if err != nil {
		return nil, fmt.Errorf("failed to build AOI geometry: %w", err)
	}

	return &AOI{path: path, geom: geom, gdalGeom: gdalGeom}, nil
}

// Path returns the source GeoJSON file, used as the mask cutline.
func (a *AOI) Path() string {
	return a.path
}

// BBox returns [minLon, minLat, maxLon, maxLat].
func (a *AOI) BBox() [4]float64 {
	b := a.geom.Bound()
	return [4]float64{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
}

// WKT returns the footprint as well-known text for catalogue queries.
func (a *AOI) WKT() string {
	return wkt.MarshalString(a.geom)
}

// Geometry exposes the godal geometry for intersection tests.
func (a *AOI) Geometry() *godal.Geometry {
	return a.gdalGeom
}

// Close releases the underlying GDAL geometry.
func (a *AOI) Close() {
	if a.gdalGeom != nil {
		a.gdalGeom.Close()
		a.gdalGeom = nil
	}
}
