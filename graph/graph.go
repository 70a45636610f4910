// Package graph implements the bipartite relation graph: a labeled
// graph with two vertex colors (feature, raster) and directed labeled
// edges (contains, intersects). Only this component enforces edge
// uniqueness between a given (raster, feature) pair; the tabular store
// and spatial index are both relation-agnostic.
package graph

import (
	"github.com/go-spatial/geographer/dict"
	"github.com/go-spatial/geographer/geoerrors"
)

// Kind is a vertex color.
type Kind uint8

const (
	Feature Kind = iota
	Raster
)

func (k Kind) String() string {
	if k == Raster {
		return "raster"
	}
	return "feature"
}

// Label is the edge relation. Contains implies Intersects but an edge
// never carries both: Contains is the label used whenever the stronger
// relation holds.
type Label uint8

const (
	Contains Label = iota
	Intersects
)

func (l Label) String() string {
	if l == Contains {
		return "contains"
	}
	return "intersects"
}

type edge struct {
	raster, feature string
	label           Label
	attrs           dict.Dict
}

type vertex struct {
	kind Kind
	// order holds the ids of adjacent vertices in insertion order,
	// keyed by the edge's "other side", used for deterministic
	// Neighbors() ordering independent of Go's randomized map iteration.
	order []string
}

// Graph is a bipartite relation graph keyed by string vertex id.
type Graph struct {
	vertices map[string]*vertex
	// edges is keyed by raster id then feature id.
	edges map[string]map[string]*edge
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		vertices: map[string]*vertex{},
		edges:    map[string]map[string]*edge{},
	}
}

// AddVertex registers id with the given color. It fails if id already exists.
func (g *Graph) AddVertex(id string, kind Kind) error {
	if _, ok := g.vertices[id]; ok {
		return geoerrors.NewDuplicateID("graph", id)
	}
	g.vertices[id] = &vertex{kind: kind}
	return nil
}

// HasVertex reports whether id is registered.
func (g *Graph) HasVertex(id string) bool {
	_, ok := g.vertices[id]
	return ok
}

// Kind returns the color of id.
func (g *Graph) Kind(id string) (Kind, bool) {
	v, ok := g.vertices[id]
	if !ok {
		return 0, false
	}
	return v.kind, true
}

// RemoveVertex removes id and every edge incident to it, atomically
// from the caller's point of view (no partial removal is observable).
func (g *Graph) RemoveVertex(id string) error {
	v, ok := g.vertices[id]
	if !ok {
		return geoerrors.NewUnknownID("graph", id)
	}
	switch v.kind {
	case Raster:
		for feature := range g.edges[id] {
			g.unlinkNeighbor(feature, id)
		}
		delete(g.edges, id)
	case Feature:
		for raster, byFeature := range g.edges {
			if _, ok := byFeature[id]; ok {
				delete(byFeature, id)
				g.unlinkNeighbor(raster, id)
			}
		}
	}
	delete(g.vertices, id)
	return nil
}

func (g *Graph) unlinkNeighbor(ownerID, removedID string) {
	v, ok := g.vertices[ownerID]
	if !ok {
		return
	}
	out := v.order[:0:0]
	for _, n := range v.order {
		if n != removedID {
			out = append(out, n)
		}
	}
	v.order = out
}

// AddEdge creates a (raster, feature) edge with label and attrs. It
// fails if an edge already exists between the two endpoints regardless
// of label, and if either endpoint is not a registered vertex of the
// expected color.
func (g *Graph) AddEdge(rasterID, featureID string, label Label, attrs dict.Dict) error {
	rv, ok := g.vertices[rasterID]
	if !ok || rv.kind != Raster {
		return geoerrors.NewUnknownID("graph", rasterID)
	}
	fv, ok := g.vertices[featureID]
	if !ok || fv.kind != Feature {
		return geoerrors.NewUnknownID("graph", featureID)
	}
	if byFeature, ok := g.edges[rasterID]; ok {
		if _, exists := byFeature[featureID]; exists {
			return &geoerrors.IdentifierError{ID: featureID, Table: "graph", Reason: "edge already exists for this (raster, feature) pair"}
		}
	} else {
		g.edges[rasterID] = map[string]*edge{}
	}
	if attrs == nil {
		attrs = dict.New()
	}
	g.edges[rasterID][featureID] = &edge{raster: rasterID, feature: featureID, label: label, attrs: attrs}
	rv.order = append(rv.order, featureID)
	fv.order = append(fv.order, rasterID)
	return nil
}

// RemoveEdge deletes the edge between rasterID and featureID. If
// missingOK is false, a missing edge is an error; if true, removing an
// absent edge is a no-op.
func (g *Graph) RemoveEdge(rasterID, featureID string, missingOK bool) error {
	byFeature, ok := g.edges[rasterID]
	if !ok {
		if missingOK {
			return nil
		}
		return &geoerrors.IdentifierError{ID: featureID, Table: "graph", Reason: "no edge from this raster"}
	}
	if _, ok := byFeature[featureID]; !ok {
		if missingOK {
			return nil
		}
		return &geoerrors.IdentifierError{ID: featureID, Table: "graph", Reason: "edge not found"}
	}
	delete(byFeature, featureID)
	if len(byFeature) == 0 {
		delete(g.edges, rasterID)
	}
	g.unlinkNeighbor(rasterID, featureID)
	g.unlinkNeighbor(featureID, rasterID)
	return nil
}

// Edge returns the label and attrs of the edge between rasterID and
// featureID, or ok=false if no such edge exists.
func (g *Graph) Edge(rasterID, featureID string) (Label, dict.Dict, bool) {
	byFeature, ok := g.edges[rasterID]
	if !ok {
		return 0, nil, false
	}
	e, ok := byFeature[featureID]
	if !ok {
		return 0, nil, false
	}
	return e.label, e.attrs, true
}

// Neighbors returns the ids adjacent to id, in insertion order, optionally
// filtered to edges carrying exactly *filter (pass nil for both labels).
func (g *Graph) Neighbors(id string, filter *Label) []string {
	v, ok := g.vertices[id]
	if !ok {
		return nil
	}
	if filter == nil {
		out := make([]string, len(v.order))
		copy(out, v.order)
		return out
	}
	var out []string
	for _, n := range v.order {
		var label Label
		var found bool
		if v.kind == Raster {
			label, _, found = g.Edge(id, n)
		} else {
			label, _, found = g.Edge(n, id)
		}
		if found && label == *filter {
			out = append(out, n)
		}
	}
	return out
}

// Degree returns the number of edges touching id, irrespective of label.
func (g *Graph) Degree(id string) int {
	v, ok := g.vertices[id]
	if !ok {
		return 0
	}
	return len(v.order)
}

// CountIncoming returns the number of edges touching featureID labeled
// label, where featureID is a Feature vertex. Used directly by the
// connector to recompute raster_count (incoming Contains edges).
func (g *Graph) CountIncoming(featureID string, label Label) int {
	return len(g.Neighbors(featureID, &label))
}

// Vertices returns every registered vertex id and its kind. Order is
// unspecified; callers that need determinism should sort.
func (g *Graph) Vertices() map[string]Kind {
	out := make(map[string]Kind, len(g.vertices))
	for id, v := range g.vertices {
		out[id] = v.kind
	}
	return out
}

// Edges returns every edge as (raster, feature, label, attrs) tuples.
// Order is unspecified; callers that need determinism should sort.
type EdgeView struct {
	Raster, Feature string
	Label           Label
	Attrs           dict.Dict
}

func (g *Graph) Edges() []EdgeView {
	var out []EdgeView
	for raster, byFeature := range g.edges {
		for feature, e := range byFeature {
			out = append(out, EdgeView{Raster: raster, Feature: feature, Label: e.label, Attrs: e.attrs})
		}
	}
	return out
}

// Clone deep-copies the graph, used by the connector to snapshot state
// before a multi-step mutation so it can roll back on failure.
func (g *Graph) Clone() *Graph {
	out := &Graph{
		vertices: make(map[string]*vertex, len(g.vertices)),
		edges:    make(map[string]map[string]*edge, len(g.edges)),
	}
	for id, v := range g.vertices {
		out.vertices[id] = &vertex{kind: v.kind, order: append([]string{}, v.order...)}
	}
	for raster, byFeature := range g.edges {
		cp := make(map[string]*edge, len(byFeature))
		for feature, e := range byFeature {
			cp[feature] = &edge{raster: e.raster, feature: e.feature, label: e.label, attrs: e.attrs.Clone()}
		}
		out.edges[raster] = cp
	}
	return out
}
