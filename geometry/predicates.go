package geometry

import (
	"math"

	"github.com/go-spatial/geom"

	"github.com/go-spatial/geographer/geoerrors"
)

const epsilon = 1e-9

// Contains reports whether a contains b using closed-set (boundary
// touching counts as contained) semantics. a is expected to be a
// raster footprint (Polygon/MultiPolygon); b may be a Point, Polygon,
// or MultiPolygon.
func Contains(a, b geom.Geometry) (bool, error) {
	aPolys, err := polygonsOf(a)
	if err != nil {
		return false, err
	}
	if len(aPolys) == 0 {
		return false, geoerrors.NewGeometryError("", "contains: left side must be a polygon or multipolygon", nil)
	}

	bPts, err := points(b)
	if err != nil {
		return false, err
	}
	if len(bPts) == 0 {
		return false, geoerrors.NewGeometryError("", "contains: empty right-hand geometry", nil)
	}

	for _, p := range bPts {
		if !pointInPolygons(p, aPolys) {
			return false, nil
		}
	}

	// For area geometries, vertex containment alone misses the case
	// where an edge of b bulges outside a between its endpoints. Sample
	// edge midpoints too.
	bPolys, _ := polygonsOf(b)
	for _, bp := range bPolys {
		for _, ring := range bp {
			n := len(ring)
			for i := 0; i < n; i++ {
				j := (i + 1) % n
				mid := geom.Point{(ring[i][0] + ring[j][0]) / 2, (ring[i][1] + ring[j][1]) / 2}
				if !pointInPolygons(mid, aPolys) {
					return false, nil
				}
			}
		}
	}

	return true, nil
}

// Intersects reports whether a and b share any point, inclusive of
// boundary touches.
func Intersects(a, b geom.Geometry) (bool, error) {
	aMinX, aMinY, aMaxX, aMaxY, err := Bounds(a)
	if err != nil {
		return false, err
	}
	bMinX, bMinY, bMaxX, bMaxY, err := Bounds(b)
	if err != nil {
		return false, err
	}
	if aMaxX < bMinX-epsilon || bMaxX < aMinX-epsilon || aMaxY < bMinY-epsilon || bMaxY < aMinY-epsilon {
		return false, nil
	}

	aPolys, _ := polygonsOf(a)
	bPolys, _ := polygonsOf(b)

	// point vs polygon(s)
	aPts, _ := points(a)
	bPts, _ := points(b)

	if len(aPolys) > 0 && len(bPolys) == 0 {
		for _, p := range bPts {
			if pointInPolygons(p, aPolys) {
				return true, nil
			}
		}
		return false, nil
	}
	if len(bPolys) > 0 && len(aPolys) == 0 {
		for _, p := range aPts {
			if pointInPolygons(p, bPolys) {
				return true, nil
			}
		}
		return false, nil
	}
	if len(aPolys) == 0 && len(bPolys) == 0 {
		// point/line vs point/line: only exact coincidence counts.
		for _, p := range aPts {
			for _, q := range bPts {
				if p == q {
					return true, nil
				}
			}
		}
		return false, nil
	}

	// polygon vs polygon: any vertex of one inside the other, or any
	// pair of boundary edges cross/touch.
	for _, p := range aPts {
		if pointInPolygons(p, bPolys) {
			return true, nil
		}
	}
	for _, p := range bPts {
		if pointInPolygons(p, aPolys) {
			return true, nil
		}
	}
	for _, ap := range aPolys {
		for _, aring := range ap {
			for _, bp := range bPolys {
				for _, bring := range bp {
					if ringsIntersect(aring, bring) {
						return true, nil
					}
				}
			}
		}
	}
	return false, nil
}

func pointInPolygons(p geom.Point, polys []geom.Polygon) bool {
	for _, poly := range polys {
		if pointInPolygon(p, poly) {
			return true
		}
	}
	return false
}

// pointInPolygon uses a ray-casting test over the exterior ring and
// subtracts any hole containment, with an explicit boundary check so
// boundary-touching points count as contained (closed-set semantics).
func pointInPolygon(p geom.Point, poly geom.Polygon) bool {
	if len(poly) == 0 {
		return false
	}
	if onRing(p, poly[0]) {
		return true
	}
	if !rayCast(p, poly[0]) {
		return false
	}
	for _, hole := range poly[1:] {
		if onRing(p, hole) {
			return true
		}
		if rayCast(p, hole) {
			return false
		}
	}
	return true
}

// rayCast is the standard even-odd point-in-polygon test over a ring.
func rayCast(p geom.Point, ring [][2]float64) bool {
	inside := false
	n := len(ring)
	if n < 3 {
		return false
	}
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i][0], ring[i][1]
		xj, yj := ring[j][0], ring[j][1]
		intersect := ((yi > p[1]) != (yj > p[1])) &&
			(p[0] < (xj-xi)*(p[1]-yi)/(yj-yi)+xi)
		if intersect {
			inside = !inside
		}
	}
	return inside
}

// onRing reports whether p lies on any edge of ring (boundary-closed check).
func onRing(p geom.Point, ring [][2]float64) bool {
	n := len(ring)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		if onSegment(p, ring[i], ring[j]) {
			return true
		}
	}
	return false
}

func onSegment(p, a, b geom.Point) bool {
	cross := (b[0]-a[0])*(p[1]-a[1]) - (b[1]-a[1])*(p[0]-a[0])
	if math.Abs(cross) > epsilon {
		return false
	}
	if p[0] < math.Min(a[0], b[0])-epsilon || p[0] > math.Max(a[0], b[0])+epsilon {
		return false
	}
	if p[1] < math.Min(a[1], b[1])-epsilon || p[1] > math.Max(a[1], b[1])+epsilon {
		return false
	}
	return true
}

func ringsIntersect(a, b [][2]float64) bool {
	na, nb := len(a), len(b)
	for i := 0; i < na; i++ {
		a1, a2 := a[i], a[(i+1)%na]
		for j := 0; j < nb; j++ {
			b1, b2 := b[j], b[(j+1)%nb]
			if segmentsIntersect(a1, a2, b1, b2) {
				return true
			}
		}
	}
	return false
}

func segmentsIntersect(p1, p2, p3, p4 geom.Point) bool {
	d1 := direction(p3, p4, p1)
	d2 := direction(p3, p4, p2)
	d3 := direction(p1, p2, p3)
	d4 := direction(p1, p2, p4)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	if math.Abs(d1) < epsilon && onSegment(p1, p3, p4) {
		return true
	}
	if math.Abs(d2) < epsilon && onSegment(p2, p3, p4) {
		return true
	}
	if math.Abs(d3) < epsilon && onSegment(p3, p1, p2) {
		return true
	}
	if math.Abs(d4) < epsilon && onSegment(p4, p1, p2) {
		return true
	}
	return false
}

func direction(a, b, c geom.Point) float64 {
	return (c[0]-a[0])*(b[1]-a[1]) - (b[0]-a[0])*(c[1]-a[1])
}
