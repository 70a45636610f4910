package persist

import (
	"encoding/json"
	"sort"

	"github.com/go-spatial/geographer/dict"
	"github.com/go-spatial/geographer/geoerrors"
	"github.com/go-spatial/geographer/graph"
)

// graphVertexDoc and graphEdgeDoc are the wire shapes of graph.json: a
// JSON object with vertices [{id, kind}] and edges [{raster, feature,
// label, attrs}]. Unknown top-level fields are preserved on round-trip.
type graphVertexDoc struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

type graphEdgeDoc struct {
	Raster  string    `json:"raster"`
	Feature string    `json:"feature"`
	Label   string    `json:"label"`
	Attrs   dict.Dict `json:"attrs"`
}

// EncodeGraph serializes g. extra carries any top-level fields the
// loader didn't recognize, so they survive an unmodified save/load
// cycle even though this package doesn't understand them.
func EncodeGraph(g *graph.Graph, extra map[string]json.RawMessage) ([]byte, error) {
	vertices := g.Vertices()
	ids := make([]string, 0, len(vertices))
	for id := range vertices {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	vdocs := make([]graphVertexDoc, 0, len(ids))
	for _, id := range ids {
		vdocs = append(vdocs, graphVertexDoc{ID: id, Kind: vertices[id].String()})
	}

	edges := g.Edges()
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Raster != edges[j].Raster {
			return edges[i].Raster < edges[j].Raster
		}
		return edges[i].Feature < edges[j].Feature
	})
	edocs := make([]graphEdgeDoc, 0, len(edges))
	for _, e := range edges {
		edocs = append(edocs, graphEdgeDoc{Raster: e.Raster, Feature: e.Feature, Label: e.Label.String(), Attrs: e.Attrs})
	}

	raw := map[string]interface{}{
		"vertices": vdocs,
		"edges":    edocs,
	}
	for k, v := range extra {
		if k == "vertices" || k == "edges" {
			continue
		}
		var decoded interface{}
		if err := json.Unmarshal(v, &decoded); err == nil {
			raw[k] = decoded
		}
	}
	return json.MarshalIndent(raw, "", "  ")
}

// DecodedGraph is the result of DecodeGraph: the rebuilt graph plus any
// unrecognized top-level fields, to be handed back to EncodeGraph
// verbatim on the next save.
type DecodedGraph struct {
	Graph *graph.Graph
	Extra map[string]json.RawMessage
}

// DecodeGraph parses the wire format into a *graph.Graph.
func DecodeGraph(data []byte) (*DecodedGraph, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, geoerrors.NewPersistenceError("graph.json", "corrupt graph wire format", err)
	}

	var vdocs []graphVertexDoc
	if v, ok := raw["vertices"]; ok {
		if err := json.Unmarshal(v, &vdocs); err != nil {
			return nil, geoerrors.NewPersistenceError("graph.json", "corrupt vertices array", err)
		}
	}
	var edocs []graphEdgeDoc
	if e, ok := raw["edges"]; ok {
		if err := json.Unmarshal(e, &edocs); err != nil {
			return nil, geoerrors.NewPersistenceError("graph.json", "corrupt edges array", err)
		}
	}

	g := graph.New()
	for _, v := range vdocs {
		kind := graph.Feature
		if v.Kind == "raster" {
			kind = graph.Raster
		}
		if err := g.AddVertex(v.ID, kind); err != nil {
			return nil, geoerrors.NewPersistenceError("graph.json", "duplicate vertex id in wire format", err)
		}
	}
	for _, e := range edocs {
		label := graph.Contains
		if e.Label == "intersects" {
			label = graph.Intersects
		}
		if err := g.AddEdge(e.Raster, e.Feature, label, e.Attrs); err != nil {
			return nil, geoerrors.NewPersistenceError("graph.json", "invalid edge in wire format", err)
		}
	}

	extra := map[string]json.RawMessage{}
	for k, v := range raw {
		if k == "vertices" || k == "edges" {
			continue
		}
		extra[k] = v
	}
	return &DecodedGraph{Graph: g, Extra: extra}, nil
}
