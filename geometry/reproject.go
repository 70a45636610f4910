package geometry

import (
	"math"

	"github.com/go-spatial/geom"

	"github.com/go-spatial/geographer/geoerrors"
)

const earthRadius = 6378137.0 // WGS84 semi-major axis, meters

// Reproject converts g from one CRS to another. Reprojection between
// identical CRSs is an identity no-op (copies the geometry so the
// caller never aliases the input). The only non-identity pair this
// adapter supports is WGS84 (EPSG:4326) <-> WebMercator (EPSG:3857);
// the pack carries no general-purpose projection library, so any other
// pair is a geometry error.
func Reproject(g geom.Geometry, from, to CRS) (geom.Geometry, error) {
	if from == to {
		return cloneGeometry(g), nil
	}
	var fwd func(geom.Point) geom.Point
	switch {
	case from == WGS84 && to == WebMercator:
		fwd = lonLatToWebMercator
	case from == WebMercator && to == WGS84:
		fwd = webMercatorToLonLat
	default:
		return nil, geoerrors.NewGeometryError("", "reproject: unsupported CRS pair (only EPSG:4326<->EPSG:3857 supported)", nil)
	}
	return mapPoints(g, fwd)
}

func lonLatToWebMercator(p geom.Point) geom.Point {
	x := p[0] * math.Pi / 180 * earthRadius
	y := math.Log(math.Tan(math.Pi/4+(p[1]*math.Pi/180)/2)) * earthRadius
	return geom.Point{x, y}
}

func webMercatorToLonLat(p geom.Point) geom.Point {
	lon := (p[0] / earthRadius) * 180 / math.Pi
	lat := (2*math.Atan(math.Exp(p[1]/earthRadius)) - math.Pi/2) * 180 / math.Pi
	return geom.Point{lon, lat}
}

func mapPoints(g geom.Geometry, fn func(geom.Point) geom.Point) (geom.Geometry, error) {
	switch t := g.(type) {
	case geom.Point:
		return fn(t), nil
	case *geom.Point:
		r := fn(*t)
		return &r, nil
	case geom.MultiPoint:
		out := make(geom.MultiPoint, len(t))
		for i, p := range t {
			out[i] = fn(p)
		}
		return out, nil
	case geom.LineString:
		out := make(geom.LineString, len(t))
		for i, p := range t {
			out[i] = fn(p)
		}
		return out, nil
	case geom.Polygon:
		return mapPolygon(t, fn), nil
	case *geom.Polygon:
		r := mapPolygon(*t, fn)
		return &r, nil
	case geom.MultiPolygon:
		out := make(geom.MultiPolygon, len(t))
		for i, p := range t {
			out[i] = mapPolygon(p, fn)
		}
		return out, nil
	case *geom.MultiPolygon:
		r := make(geom.MultiPolygon, len(*t))
		for i, p := range *t {
			r[i] = mapPolygon(p, fn)
		}
		return &r, nil
	default:
		return nil, geoerrors.NewGeometryError("", "reproject: unsupported geometry type", nil)
	}
}

func mapPolygon(p geom.Polygon, fn func(geom.Point) geom.Point) geom.Polygon {
	out := make(geom.Polygon, len(p))
	for i, ring := range p {
		r := make([][2]float64, len(ring))
		for j, pt := range ring {
			r[j] = fn(pt)
		}
		out[i] = r
	}
	return out
}

// cloneGeometry deep-copies g so identity reprojection never aliases
// the caller's backing arrays: re-adding a row whose geometry is
// already canonical must not mutate the stored copy through a shared
// slice.
func cloneGeometry(g geom.Geometry) geom.Geometry {
	identity := func(p geom.Point) geom.Point { return p }
	out, err := mapPoints(g, identity)
	if err != nil {
		return g
	}
	return out
}
