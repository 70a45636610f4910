// Package persist implements the on-disk wire formats and the
// directory/atomic-write protocol: vectors.geojson, rasters.geojson,
// graph.json, and attrs.json, written to sibling .tmp files and
// renamed into place only after every write has succeeded.
package persist

import (
	"encoding/json"
	"sort"

	"github.com/go-spatial/geom"

	"github.com/go-spatial/geographer/geoerrors"
	"github.com/go-spatial/geographer/store"
)

// geoJSONDoc is the wire shape of a table file. Empty is an explicit
// sentinel so an empty table round-trips even through geospatial
// libraries that choke on a feature collection with zero features.
type geoJSONDoc struct {
	Type     string              `json:"type"`
	Empty    bool                `json:"empty,omitempty"`
	Features []geoJSONFeatureDoc `json:"features"`
}

type geoJSONFeatureDoc struct {
	Type       string                 `json:"type"`
	ID         string                 `json:"id"`
	Properties map[string]interface{} `json:"properties"`
	Geometry   map[string]interface{} `json:"geometry"`
}

// EncodeTable serializes a table (geometry stored under geomColumn) to
// the GeoJSON-like wire format, in deterministic id order.
func EncodeTable(rows []store.RowEntry, geomColumn string) ([]byte, error) {
	sorted := append([]store.RowEntry{}, rows...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	doc := geoJSONDoc{Type: "FeatureCollection"}
	if len(sorted) == 0 {
		doc.Empty = true
		doc.Features = []geoJSONFeatureDoc{}
		return json.MarshalIndent(doc, "", "  ")
	}

	for _, r := range sorted {
		g, ok := r.Attrs[geomColumn].(geom.Geometry)
		if !ok {
			return nil, geoerrors.NewGeometryError(r.ID, "row has no valid geometry to encode", nil)
		}
		geomDoc, err := encodeGeometry(g)
		if err != nil {
			return nil, geoerrors.NewGeometryError(r.ID, "failed to encode geometry", err)
		}
		props := make(map[string]interface{}, len(r.Attrs))
		for k, v := range r.Attrs {
			if k == geomColumn {
				continue
			}
			props[k] = v
		}
		doc.Features = append(doc.Features, geoJSONFeatureDoc{
			Type:       "Feature",
			ID:         r.ID,
			Properties: props,
			Geometry:   geomDoc,
		})
	}
	return json.MarshalIndent(doc, "", "  ")
}

// DecodeTable parses the wire format back into (id -> attrs) rows, with
// geometry placed back under geomColumn.
func DecodeTable(data []byte, geomColumn string) (map[string]store.Row, error) {
	var doc geoJSONDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, geoerrors.NewPersistenceError("", "corrupt GeoJSON table", err)
	}
	out := make(map[string]store.Row, len(doc.Features))
	if doc.Empty {
		return out, nil
	}
	for _, f := range doc.Features {
		g, err := decodeGeometry(f.Geometry)
		if err != nil {
			return nil, geoerrors.NewGeometryError(f.ID, "failed to decode stored geometry", err)
		}
		row := store.Row{}
		for k, v := range f.Properties {
			row[k] = v
		}
		row[geomColumn] = g
		out[f.ID] = row
	}
	return out, nil
}

func encodeGeometry(g geom.Geometry) (map[string]interface{}, error) {
	switch t := g.(type) {
	case geom.Point:
		return map[string]interface{}{"type": "Point", "coordinates": []float64{t[0], t[1]}}, nil
	case *geom.Point:
		return encodeGeometry(*t)
	case geom.Polygon:
		return map[string]interface{}{"type": "Polygon", "coordinates": ringsToCoords(t)}, nil
	case *geom.Polygon:
		return encodeGeometry(*t)
	case geom.MultiPolygon:
		coords := make([][][][2]float64, len(t))
		for i, p := range t {
			coords[i] = ringsToCoords(p)
		}
		return map[string]interface{}{"type": "MultiPolygon", "coordinates": coords}, nil
	case *geom.MultiPolygon:
		return encodeGeometry(*t)
	default:
		return nil, geoerrors.NewGeometryError("", "unsupported geometry type for GeoJSON encoding", nil)
	}
}

func ringsToCoords(p geom.Polygon) [][][2]float64 {
	out := make([][][2]float64, len(p))
	for i, ring := range p {
		r := make([][2]float64, len(ring))
		for j, pt := range ring {
			r[j] = [2]float64{pt[0], pt[1]}
		}
		out[i] = r
	}
	return out
}

func decodeGeometry(doc map[string]interface{}) (geom.Geometry, error) {
	typ, _ := doc["type"].(string)
	switch typ {
	case "Point":
		coords, ok := doc["coordinates"].([]interface{})
		if !ok || len(coords) != 2 {
			return nil, geoerrors.NewGeometryError("", "malformed Point coordinates", nil)
		}
		x, _ := coords[0].(float64)
		y, _ := coords[1].(float64)
		return geom.Point{x, y}, nil
	case "Polygon":
		rings, err := decodeRings(doc["coordinates"])
		if err != nil {
			return nil, err
		}
		return geom.Polygon(rings), nil
	case "MultiPolygon":
		raw, ok := doc["coordinates"].([]interface{})
		if !ok {
			return nil, geoerrors.NewGeometryError("", "malformed MultiPolygon coordinates", nil)
		}
		out := make(geom.MultiPolygon, len(raw))
		for i, polyRaw := range raw {
			rings, err := decodeRings(polyRaw)
			if err != nil {
				return nil, err
			}
			out[i] = geom.Polygon(rings)
		}
		return out, nil
	default:
		return nil, geoerrors.NewGeometryError("", "unsupported or missing geometry type in wire format: "+typ, nil)
	}
}

func decodeRings(raw interface{}) ([][][2]float64, error) {
	ringsRaw, ok := raw.([]interface{})
	if !ok {
		return nil, geoerrors.NewGeometryError("", "malformed ring coordinates", nil)
	}
	rings := make([][][2]float64, len(ringsRaw))
	for i, ringRaw := range ringsRaw {
		ptsRaw, ok := ringRaw.([]interface{})
		if !ok {
			return nil, geoerrors.NewGeometryError("", "malformed ring", nil)
		}
		ring := make([][2]float64, len(ptsRaw))
		for j, ptRaw := range ptsRaw {
			pt, ok := ptRaw.([]interface{})
			if !ok || len(pt) != 2 {
				return nil, geoerrors.NewGeometryError("", "malformed coordinate pair", nil)
			}
			x, _ := pt[0].(float64)
			y, _ := pt[1].(float64)
			ring[j] = [2]float64{x, y}
		}
		rings[i] = ring
	}
	return rings, nil
}
