// Package geometry is the Geometry adapter: a thin uniform interface
// over github.com/go-spatial/geom providing bounds, contains,
// intersects, reprojection, and validity checks for the polygon/point
// geometries the connector deals in. Contains and intersects both use
// closed-set (boundary-inclusive) semantics.
package geometry

import (
	"math"

	"github.com/go-spatial/geom"

	"github.com/go-spatial/geographer/geoerrors"
)

// CRS identifies a coordinate reference system by its EPSG code.
type CRS uint64

// The two CRSs this adapter knows how to reproject between. Any other
// EPSG code round-trips only as an identity (same CRS in and out);
// reprojecting between a third CRS and one of these returns an error,
// since the pack carries no general-purpose projection library.
const (
	WGS84       CRS = 4326
	WebMercator CRS = 3857
)

// Bounds computes the axis-aligned bounding box of g in its own
// coordinate space. It returns (minx, miny, maxx, maxy).
func Bounds(g geom.Geometry) (minx, miny, maxx, maxy float64, err error) {
	pts, err := points(g)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	if len(pts) == 0 {
		return 0, 0, 0, 0, geoerrors.NewGeometryError("", "empty geometry has no bounds", nil)
	}
	minx, miny = pts[0][0], pts[0][1]
	maxx, maxy = pts[0][0], pts[0][1]
	for _, p := range pts[1:] {
		minx = math.Min(minx, p[0])
		miny = math.Min(miny, p[1])
		maxx = math.Max(maxx, p[0])
		maxy = math.Max(maxy, p[1])
	}
	return minx, miny, maxx, maxy, nil
}

// Extent is a convenience wrapper around Bounds returning a *geom.Extent.
func Extent(g geom.Geometry) (*geom.Extent, error) {
	minx, miny, maxx, maxy, err := Bounds(g)
	if err != nil {
		return nil, err
	}
	ext := geom.NewExtent([2]float64{minx, miny}, [2]float64{maxx, maxy})
	return ext, nil
}

// Area returns the unsigned area of g. Points and lines have zero area.
func Area(g geom.Geometry) (float64, error) {
	switch t := g.(type) {
	case geom.Point, *geom.Point, geom.MultiPoint, geom.LineString:
		return 0, nil
	case geom.Polygon:
		return polygonArea(t), nil
	case *geom.Polygon:
		return polygonArea(*t), nil
	case geom.MultiPolygon:
		var sum float64
		for _, p := range t {
			sum += polygonArea(p)
		}
		return sum, nil
	case *geom.MultiPolygon:
		var sum float64
		for _, p := range *t {
			sum += polygonArea(p)
		}
		return sum, nil
	default:
		return 0, geoerrors.NewGeometryError("", "area: unsupported geometry type", nil)
	}
}

// ringArea is twice the signed area of a single ring via the shoelace formula.
func ringArea(ring [][2]float64) float64 {
	if len(ring) < 3 {
		return 0
	}
	var sum float64
	n := len(ring)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += ring[i][0]*ring[j][1] - ring[j][0]*ring[i][1]
	}
	return sum / 2
}

func polygonArea(p geom.Polygon) float64 {
	if len(p) == 0 {
		return 0
	}
	area := math.Abs(ringArea(p[0]))
	for _, hole := range p[1:] {
		area -= math.Abs(ringArea(hole))
	}
	if area < 0 {
		return 0
	}
	return area
}

// IsValid rejects degenerate geometries: empty geometry, a polygon ring
// with fewer than 3 distinct vertices, or a zero-area polygon.
func IsValid(g geom.Geometry) error {
	switch t := g.(type) {
	case geom.Point:
		return nil
	case *geom.Point:
		return nil
	case geom.Polygon:
		return validatePolygon(t)
	case *geom.Polygon:
		return validatePolygon(*t)
	case geom.MultiPolygon:
		if len(t) == 0 {
			return geoerrors.NewGeometryError("", "empty multipolygon", nil)
		}
		for _, p := range t {
			if err := validatePolygon(p); err != nil {
				return err
			}
		}
		return nil
	case *geom.MultiPolygon:
		return IsValid(*t)
	case geom.Collection:
		return geoerrors.NewGeometryError("", "empty or unsupported geometry collection", nil)
	default:
		return geoerrors.NewGeometryError("", "unsupported or invalid geometry", nil)
	}
}

func validatePolygon(p geom.Polygon) error {
	if len(p) == 0 {
		return geoerrors.NewGeometryError("", "polygon has no rings", nil)
	}
	ring := dedupClosingPoint(p[0])
	if len(ring) < 3 {
		return geoerrors.NewGeometryError("", "polygon exterior ring degenerate (fewer than 3 vertices)", nil)
	}
	if math.Abs(ringArea(p[0])) == 0 {
		return geoerrors.NewGeometryError("", "polygon has zero area", nil)
	}
	return nil
}

// dedupClosingPoint drops a ring's final point when it duplicates the
// first (the conventional closed-ring representation).
func dedupClosingPoint(ring [][2]float64) [][2]float64 {
	if len(ring) >= 2 && ring[0] == ring[len(ring)-1] {
		return ring[:len(ring)-1]
	}
	return ring
}

// points flattens g into its constituent vertices.
func points(g geom.Geometry) ([][2]float64, error) {
	switch t := g.(type) {
	case geom.Point:
		return [][2]float64{t}, nil
	case *geom.Point:
		return [][2]float64{*t}, nil
	case geom.MultiPoint:
		return [][2]float64(t), nil
	case geom.LineString:
		return [][2]float64(t), nil
	case geom.Polygon:
		var out [][2]float64
		for _, ring := range t {
			out = append(out, ring...)
		}
		return out, nil
	case *geom.Polygon:
		return points(*t)
	case geom.MultiPolygon:
		var out [][2]float64
		for _, p := range t {
			for _, ring := range p {
				out = append(out, ring...)
			}
		}
		return out, nil
	case *geom.MultiPolygon:
		return points(*t)
	default:
		return nil, geoerrors.NewGeometryError("", "unsupported geometry type for bounds", nil)
	}
}

// PolygonsOf normalizes g (Polygon or MultiPolygon) into a slice of
// polygons, exported for callers outside this package that need to walk
// rings directly (debugsvg's renderer).
func PolygonsOf(g geom.Geometry) ([]geom.Polygon, error) {
	return polygonsOf(g)
}

// polygonsOf normalizes g (Polygon or MultiPolygon) into a slice of
// polygons so contains/intersects can treat both uniformly.
func polygonsOf(g geom.Geometry) ([]geom.Polygon, error) {
	switch t := g.(type) {
	case geom.Polygon:
		return []geom.Polygon{t}, nil
	case *geom.Polygon:
		return []geom.Polygon{*t}, nil
	case geom.MultiPolygon:
		polys := make([]geom.Polygon, len(t))
		for i, p := range t {
			polys[i] = geom.Polygon(p)
		}
		return polys, nil
	case *geom.MultiPolygon:
		polys := make([]geom.Polygon, len(*t))
		for i, p := range *t {
			polys[i] = geom.Polygon(p)
		}
		return polys, nil
	default:
		return nil, nil
	}
}
