// Package proj reprojects WGS84 coordinates into the importer's target
// spatial reference system. Grounded on the teacher's own
// internal/proj/transform.go (kept largely as-is: the SRID pair, the
// clamp-then-formula shape, ParseSRID), with the exact Mercator
// constant and clamp latitude corrected to match
// original_source/reprojection.cpp's PROJ_SPHERE_MERC.
package proj

import (
	"fmt"
	"math"
)

// SRID constants for the two supported projections.
const (
	SRID4326 = 4326 // WGS84 (lat/lon)
	SRID3857 = 3857 // spherical Web Mercator
)

// sphereMercCircumference is osm2pgsql's PROJ_SPHERE_MERC circumference
// constant (in meters), distinct from the true WGS84 circumference.
const sphereMercCircumference = 40075016.68

// maxMercLat is the latitude beyond which the Mercator transform is
// clamped, matching reprojection.cpp rather than the teacher's 85.06.
const maxMercLat = 85.07

// Transformer converts WGS84 coordinates from source to target SRID.
type Transformer struct {
	SourceSRID int
	TargetSRID int
}

// NewTransformer creates a transformer from source to target SRID.
func NewTransformer(sourceSRID, targetSRID int) (*Transformer, error) {
	if sourceSRID != SRID4326 {
		return nil, fmt.Errorf("unsupported source SRID: %d (only 4326 supported)", sourceSRID)
	}
	if targetSRID != SRID4326 && targetSRID != SRID3857 {
		return nil, fmt.Errorf("unsupported target SRID: %d (only 4326 and 3857 supported)", targetSRID)
	}
	return &Transformer{SourceSRID: sourceSRID, TargetSRID: targetSRID}, nil
}

// Transform converts a coordinate from source to target projection.
// Input: lon, lat in source projection. Output: x, y in target projection.
func (t *Transformer) Transform(lon, lat float64) (x, y float64) {
	if t.SourceSRID == t.TargetSRID {
		return lon, lat
	}
	if t.SourceSRID == SRID4326 && t.TargetSRID == SRID3857 {
		return lonLatToSphereMerc(lon, lat)
	}
	return lon, lat
}

// TransformCoords transforms a flat coordinate array in place.
// coords format: [lon1, lat1, lon2, lat2, ...]
func (t *Transformer) TransformCoords(coords []float64) {
	if t.SourceSRID == t.TargetSRID {
		return
	}
	for i := 0; i < len(coords); i += 2 {
		coords[i], coords[i+1] = t.Transform(coords[i], coords[i+1])
	}
}

// NeedsTransform returns true if transformation is required.
func (t *Transformer) NeedsTransform() bool {
	return t.SourceSRID != t.TargetSRID
}

// lonLatToSphereMerc implements osm2pgsql's PROJ_SPHERE_MERC formula:
//
//	y = log(tan(pi/4 + lat*pi/360)) * C / (2*pi)
//	x = lon * C / 360
//
// with C = sphereMercCircumference, latitude clamped to ±maxMercLat.
func lonLatToSphereMerc(lon, lat float64) (x, y float64) {
	if lat > maxMercLat {
		lat = maxMercLat
	} else if lat < -maxMercLat {
		lat = -maxMercLat
	}
	x = lon * sphereMercCircumference / 360.0
	y = math.Log(math.Tan(math.Pi/4.0+lat*math.Pi/360.0)) * sphereMercCircumference / (2 * math.Pi)
	return x, y
}

// ParseSRID parses a projection string to SRID.
// Accepts: "4326", "3857", "EPSG:4326", "EPSG:3857"
func ParseSRID(s string) (int, error) {
	switch s {
	case "4326", "EPSG:4326":
		return SRID4326, nil
	case "3857", "EPSG:3857":
		return SRID3857, nil
	default:
		return 0, fmt.Errorf("unsupported projection: %s (supported: 4326, 3857)", s)
	}
}
