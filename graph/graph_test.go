package graph_test

import (
	"reflect"
	"testing"

	"github.com/go-spatial/geographer/dict"
	"github.com/go-spatial/geographer/graph"
)

func TestAddVertexDuplicate(t *testing.T) {
	g := graph.New()
	if err := g.AddVertex("f1", graph.Feature); err != nil {
		t.Fatal(err)
	}
	if err := g.AddVertex("f1", graph.Raster); err == nil {
		t.Fatal("expected duplicate vertex error")
	}
}

func TestAddEdgeUniqueness(t *testing.T) {
	g := graph.New()
	mustAddVertex(t, g, "r1", graph.Raster)
	mustAddVertex(t, g, "f1", graph.Feature)

	if err := g.AddEdge("r1", "f1", graph.Contains, nil); err != nil {
		t.Fatal(err)
	}
	if err := g.AddEdge("r1", "f1", graph.Intersects, nil); err == nil {
		t.Fatal("expected duplicate edge error regardless of label")
	}
}

func TestNeighborsDeterministicOrder(t *testing.T) {
	g := graph.New()
	mustAddVertex(t, g, "f1", graph.Feature)
	mustAddVertex(t, g, "r1", graph.Raster)
	mustAddVertex(t, g, "r2", graph.Raster)
	mustAddVertex(t, g, "r3", graph.Raster)

	must(t, g.AddEdge("r2", "f1", graph.Contains, nil))
	must(t, g.AddEdge("r1", "f1", graph.Intersects, nil))
	must(t, g.AddEdge("r3", "f1", graph.Contains, nil))

	got := g.Neighbors("f1", nil)
	want := []string{"r2", "r1", "r3"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v (insertion order)", got, want)
	}

	containsLabel := graph.Contains
	gotContains := g.Neighbors("f1", &containsLabel)
	wantContains := []string{"r2", "r3"}
	if !reflect.DeepEqual(gotContains, wantContains) {
		t.Fatalf("got %v, want %v", gotContains, wantContains)
	}
}

func TestRemoveVertexRemovesIncidentEdges(t *testing.T) {
	g := graph.New()
	mustAddVertex(t, g, "f1", graph.Feature)
	mustAddVertex(t, g, "r1", graph.Raster)
	must(t, g.AddEdge("r1", "f1", graph.Contains, nil))

	if err := g.RemoveVertex("r1"); err != nil {
		t.Fatal(err)
	}
	if g.HasVertex("r1") {
		t.Fatal("r1 should be removed")
	}
	if len(g.Neighbors("f1", nil)) != 0 {
		t.Fatal("f1 should have no neighbors after raster removal")
	}
	if _, _, ok := g.Edge("r1", "f1"); ok {
		t.Fatal("edge should no longer exist")
	}
}

func TestRemoveEdgeMissingOK(t *testing.T) {
	g := graph.New()
	mustAddVertex(t, g, "f1", graph.Feature)
	mustAddVertex(t, g, "r1", graph.Raster)

	if err := g.RemoveEdge("r1", "f1", false); err == nil {
		t.Fatal("expected missing-edge error")
	}
	if err := g.RemoveEdge("r1", "f1", true); err != nil {
		t.Fatal("missing edge with missingOK=true should be a no-op")
	}
}

func TestEdgeAttrsSurvive(t *testing.T) {
	g := graph.New()
	mustAddVertex(t, g, "f1", graph.Feature)
	mustAddVertex(t, g, "r1", graph.Raster)
	attrs := dict.Dict{"downloads": []string{"scene-001.tif"}}
	must(t, g.AddEdge("r1", "f1", graph.Contains, attrs))

	label, got, ok := g.Edge("r1", "f1")
	if !ok || label != graph.Contains {
		t.Fatal("expected contains edge")
	}
	if !reflect.DeepEqual(got["downloads"], []string{"scene-001.tif"}) {
		t.Fatalf("attrs did not survive: %v", got)
	}
}

func mustAddVertex(t *testing.T, g *graph.Graph, id string, k graph.Kind) {
	t.Helper()
	if err := g.AddVertex(id, k); err != nil {
		t.Fatal(err)
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
