package geometry_test

import (
	"testing"

	"github.com/go-spatial/geom"

	"github.com/go-spatial/geographer/geometry"
)

func square(x0, y0, x1, y1 float64) geom.Polygon {
	return geom.Polygon{{
		{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0},
	}}
}

func TestContainsBoundaryClosed(t *testing.T) {
	raster := square(0, 0, 10, 10)
	feature := square(2, 2, 3, 3) // fully inside

	ok, err := geometry.Contains(raster, feature)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected raster to contain feature")
	}

	onBoundary := geom.Point{10, 5} // touching x=10 edge
	ok, err = geometry.Contains(raster, onBoundary)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected boundary-touching point to be contained (closed-set semantics)")
	}
}

func TestIntersectsNotContained(t *testing.T) {
	raster := square(0, 0, 10, 10)
	feature := square(8, 3, 14, 7) // overlaps but extends outside

	contains, err := geometry.Contains(raster, feature)
	if err != nil {
		t.Fatal(err)
	}
	if contains {
		t.Fatal("feature extends outside raster, should not be contained")
	}

	intersects, err := geometry.Intersects(raster, feature)
	if err != nil {
		t.Fatal(err)
	}
	if !intersects {
		t.Fatal("expected overlap to be detected as intersects")
	}
}

func TestNoOverlapNoEdge(t *testing.T) {
	raster := square(0, 0, 10, 10)
	feature := square(20, 20, 21, 21)

	intersects, err := geometry.Intersects(raster, feature)
	if err != nil {
		t.Fatal(err)
	}
	if intersects {
		t.Fatal("disjoint geometries must not intersect")
	}
}

func TestIsValidRejectsDegenerate(t *testing.T) {
	zeroArea := geom.Polygon{{{0, 0}, {1, 0}, {2, 0}, {0, 0}}}
	if err := geometry.IsValid(zeroArea); err == nil {
		t.Fatal("expected zero-area polygon to be invalid")
	}

	tooFew := geom.Polygon{{{0, 0}, {1, 1}}}
	if err := geometry.IsValid(tooFew); err == nil {
		t.Fatal("expected degenerate ring to be invalid")
	}

	valid := square(0, 0, 1, 1)
	if err := geometry.IsValid(valid); err != nil {
		t.Fatalf("expected valid square, got %v", err)
	}
}

func TestReprojectIdentityIsNoOp(t *testing.T) {
	p := geom.Point{12.34, 56.78}
	out, err := geometry.Reproject(p, geometry.WGS84, geometry.WGS84)
	if err != nil {
		t.Fatal(err)
	}
	got := out.(geom.Point)
	if got != p {
		t.Fatalf("identity reprojection changed geometry: %v != %v", got, p)
	}
}

func TestReprojectRoundTrip(t *testing.T) {
	p := geom.Point{5.0, 52.0}
	merc, err := geometry.Reproject(p, geometry.WGS84, geometry.WebMercator)
	if err != nil {
		t.Fatal(err)
	}
	back, err := geometry.Reproject(merc, geometry.WebMercator, geometry.WGS84)
	if err != nil {
		t.Fatal(err)
	}
	got := back.(geom.Point)
	if abs(got[0]-p[0]) > 1e-6 || abs(got[1]-p[1]) > 1e-6 {
		t.Fatalf("round trip drifted: %v != %v", got, p)
	}
}

func TestReprojectUnsupportedPair(t *testing.T) {
	p := geom.Point{0, 0}
	_, err := geometry.Reproject(p, geometry.CRS(2163), geometry.WGS84)
	if err == nil {
		t.Fatal("expected unsupported CRS pair to error")
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
