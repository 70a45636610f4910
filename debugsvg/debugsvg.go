// Package debugsvg renders a read-only snapshot of a Connector's tabular
// store and graph to SVG for visual inspection while building a dataset
// interactively: raster footprints, feature geometries, and edges
// colored by label. It operates only on read-only table and graph
// snapshots and has no part in the persisted state. Drawing is done
// with github.com/ajstarks/svgo; the label palette is parsed with
// gopkg.in/go-playground/colors.v1.
package debugsvg

import (
	"io"

	"github.com/ajstarks/svgo"
	colors "gopkg.in/go-playground/colors.v1"

	"github.com/go-spatial/geom"

	"github.com/go-spatial/geographer/geoerrors"
	"github.com/go-spatial/geographer/geometry"
	"github.com/go-spatial/geographer/graph"
	"github.com/go-spatial/geographer/store"
)

// Options controls the rendered canvas.
type Options struct {
	Width, Height int // pixels
	RasterFill    string
	FeatureFill   string
	ContainsEdge  string
	IntersectEdge string
}

// DefaultOptions is a reasonable starting palette.
func DefaultOptions() Options {
	return Options{
		Width:         1024,
		Height:        1024,
		RasterFill:    "#cfe8ff",
		FeatureFill:   "#ffd9a0",
		ContainsEdge:  "#2e7d32",
		IntersectEdge: "#c62828",
	}
}

// Render draws rasters, vectors and the edges connecting them to w,
// scaling every geometry's coordinates into the opts canvas by the
// combined bounds of both tables. rasters and vectors are read-only
// snapshots, e.g. from Connector.Rasters/Connector.Vectors; edges from
// Connector's own Graph view.
func Render(w io.Writer, opts Options, rasters, vectors []store.RowEntry, edges []graph.EdgeView) error {
	minx, miny, maxx, maxy, ok := combinedBounds(rasters, vectors)
	if !ok {
		minx, miny, maxx, maxy = 0, 0, 1, 1
	}

	containsColor, err := styleColor(opts.ContainsEdge)
	if err != nil {
		return geoerrors.NewGeometryError("", "parsing contains edge color", err)
	}
	intersectColor, err := styleColor(opts.IntersectEdge)
	if err != nil {
		return geoerrors.NewGeometryError("", "parsing intersects edge color", err)
	}

	canvas := svg.New(w)
	canvas.Start(opts.Width, opts.Height)
	defer canvas.End()

	proj := projector{minx: minx, miny: miny, maxx: maxx, maxy: maxy, width: opts.Width, height: opts.Height}

	rasterByID := make(map[string]store.RowEntry, len(rasters))
	for _, r := range rasters {
		rasterByID[r.ID] = r
		drawGeometry(canvas, proj, r.Attrs["geom"], opts.RasterFill)
	}
	featureByID := make(map[string]store.RowEntry, len(vectors))
	for _, f := range vectors {
		featureByID[f.ID] = f
		drawGeometry(canvas, proj, f.Attrs["geom"], opts.FeatureFill)
	}

	for _, e := range edges {
		raster, ok := rasterByID[e.Raster]
		if !ok {
			continue
		}
		feature, ok := featureByID[e.Feature]
		if !ok {
			continue
		}
		color := intersectColor
		if e.Label == graph.Contains {
			color = containsColor
		}
		drawEdge(canvas, proj, raster.Attrs["geom"], feature.Attrs["geom"], color)
	}
	return nil
}

// styleColor converts a hex color into an SVG stroke/fill style string.
func styleColor(hex string) (string, error) {
	c, err := colors.ParseHEX(hex)
	if err != nil {
		return "", err
	}
	rgb := c.ToRGB()
	return rgb.String(), nil
}

type projector struct {
	minx, miny, maxx, maxy float64
	width, height          int
}

func (p projector) point(x, y float64) (int, int) {
	w := p.maxx - p.minx
	h := p.maxy - p.miny
	if w == 0 {
		w = 1
	}
	if h == 0 {
		h = 1
	}
	px := int((x - p.minx) / w * float64(p.width))
	py := p.height - int((y-p.miny)/h*float64(p.height))
	return px, py
}

func drawGeometry(canvas *svg.SVG, proj projector, g interface{}, fill string) {
	polys := asPolygons(g)
	for _, poly := range polys {
		for _, ring := range poly {
			xs := make([]int, len(ring))
			ys := make([]int, len(ring))
			for i, pt := range ring {
				xs[i], ys[i] = proj.point(pt[0], pt[1])
			}
			canvas.Polygon(xs, ys, "fill:"+fill+";stroke:black;stroke-width:1;fill-opacity:0.5")
		}
	}
}

func drawEdge(canvas *svg.SVG, proj projector, rasterGeom, featureGeom interface{}, color string) {
	rx, ry, ok := centroid(rasterGeom)
	if !ok {
		return
	}
	fx, fy, ok := centroid(featureGeom)
	if !ok {
		return
	}
	x1, y1 := proj.point(rx, ry)
	x2, y2 := proj.point(fx, fy)
	canvas.Line(x1, y1, x2, y2, "stroke:"+color+";stroke-width:1")
}

func asPolygons(g interface{}) []geom.Polygon {
	gg, ok := g.(geom.Geometry)
	if !ok {
		return nil
	}
	polys, err := geometry.PolygonsOf(gg)
	if err != nil {
		return nil
	}
	return polys
}

func centroid(g interface{}) (float64, float64, bool) {
	gg, ok := g.(geom.Geometry)
	if !ok {
		return 0, 0, false
	}
	minx, miny, maxx, maxy, err := geometry.Bounds(gg)
	if err != nil {
		return 0, 0, false
	}
	return (minx + maxx) / 2, (miny + maxy) / 2, true
}

func combinedBounds(rasters, vectors []store.RowEntry) (minx, miny, maxx, maxy float64, ok bool) {
	first := true
	consider := func(rows []store.RowEntry) {
		for _, r := range rows {
			gg, isGeom := r.Attrs["geom"].(geom.Geometry)
			if !isGeom {
				continue
			}
			bx0, by0, bx1, by1, err := geometry.Bounds(gg)
			if err != nil {
				continue
			}
			if first {
				minx, miny, maxx, maxy = bx0, by0, bx1, by1
				first = false
				continue
			}
			if bx0 < minx {
				minx = bx0
			}
			if by0 < miny {
				miny = by0
			}
			if bx1 > maxx {
				maxx = bx1
			}
			if by1 > maxy {
				maxy = by1
			}
		}
	}
	consider(rasters)
	consider(vectors)
	return minx, miny, maxx, maxy, !first
}
