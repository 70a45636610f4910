package persist_test

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-spatial/geom"

	"github.com/go-spatial/geographer/graph"
	"github.com/go-spatial/geographer/persist"
	"github.com/go-spatial/geographer/store"
)

func square() geom.Polygon {
	return geom.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}}
}

func TestEncodeDecodeTableRoundTrip(t *testing.T) {
	tbl := store.NewTable("vectors", "geom")
	must(t, tbl.InsertRows(map[string]store.Row{
		"f1": {"geom": square(), "type": "building"},
	}))

	data, err := persist.EncodeTable(tbl.IterRows(), "geom")
	if err != nil {
		t.Fatal(err)
	}
	rows, err := persist.DecodeTable(data, "geom")
	if err != nil {
		t.Fatal(err)
	}
	if rows["f1"]["type"] != "building" {
		t.Fatalf("expected type to survive round trip, got %v", rows["f1"]["type"])
	}
	if _, ok := rows["f1"]["geom"].(geom.Geometry); !ok {
		t.Fatal("expected geometry to survive round trip")
	}
}

func TestEncodeEmptyTableUsesSentinel(t *testing.T) {
	tbl := store.NewTable("vectors", "geom")
	data, err := persist.EncodeTable(tbl.IterRows(), "geom")
	if err != nil {
		t.Fatal(err)
	}
	rows, err := persist.DecodeTable(data, "geom")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected empty table to decode to zero rows, got %d", len(rows))
	}
}

func TestEncodeDecodeGraphRoundTrip(t *testing.T) {
	g := graph.New()
	must(t, g.AddVertex("r1", graph.Raster))
	must(t, g.AddVertex("f1", graph.Feature))
	must(t, g.AddEdge("r1", "f1", graph.Contains, nil))

	data, err := persist.EncodeGraph(g, nil)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := persist.DecodeGraph(data)
	if err != nil {
		t.Fatal(err)
	}
	if !decoded.Graph.HasVertex("r1") || !decoded.Graph.HasVertex("f1") {
		t.Fatal("expected vertices to survive round trip")
	}
	label, _, ok := decoded.Graph.Edge("r1", "f1")
	if !ok || label != graph.Contains {
		t.Fatal("expected edge to survive round trip")
	}
}

func TestGraphUnknownFieldsSurviveRoundTrip(t *testing.T) {
	g := graph.New()
	must(t, g.AddVertex("r1", graph.Raster))

	data, err := persist.EncodeGraph(g, nil)
	if err != nil {
		t.Fatal(err)
	}

	// Splice in a field this version has never heard of, the way a newer
	// writer would.
	var doc map[string]json.RawMessage
	must(t, json.Unmarshal(data, &doc))
	doc["generator"] = json.RawMessage(`"geographer-ci"`)
	spliced, err := json.Marshal(doc)
	must(t, err)

	decoded, err := persist.DecodeGraph(spliced)
	if err != nil {
		t.Fatal(err)
	}
	out, err := persist.EncodeGraph(decoded.Graph, decoded.Extra)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "geographer-ci") {
		t.Fatalf("expected unknown field to survive the round trip, got: %s", out)
	}
}

func TestSaveLoadDirRoundTrip(t *testing.T) {
	dir, err := ioutil.TempDir("", "geographer-persist-test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	vectors := store.NewTable("vectors", "geom")
	must(t, vectors.InsertRows(map[string]store.Row{"f1": {"geom": square()}}))
	rasters := store.NewTable("rasters", "geom")
	must(t, rasters.InsertRows(map[string]store.Row{"r1": {"geom": square()}}))
	g := graph.New()
	must(t, g.AddVertex("r1", graph.Raster))
	must(t, g.AddVertex("f1", graph.Feature))
	must(t, g.AddEdge("r1", "f1", graph.Contains, nil))

	snap := persist.Snapshot{
		Vectors: vectors,
		Rasters: rasters,
		Graph:   g,
		Attrs:   persist.AttrsDoc{CRSEPSG: 4326},
	}
	if err := persist.SaveDir(dir, snap); err != nil {
		t.Fatal(err)
	}

	for _, name := range []string{"vectors.geojson", "rasters.geojson", "graph.json", "attrs.json"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected %s to exist: %v", name, err)
		}
	}

	loaded, err := persist.LoadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Vectors.Len() != 1 || loaded.Rasters.Len() != 1 {
		t.Fatal("expected both tables to round trip with one row each")
	}
	if loaded.Attrs.CRSEPSG != 4326 {
		t.Fatalf("expected crs_epsg to round trip, got %d", loaded.Attrs.CRSEPSG)
	}
}

func TestLoadEmptyDirIsValid(t *testing.T) {
	dir, err := ioutil.TempDir("", "geographer-persist-empty")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	snap, err := persist.LoadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Vectors.Len() != 0 || snap.Rasters.Len() != 0 {
		t.Fatal("expected empty directory to load as an empty connector state")
	}
}

func TestLoadPartialDirIsInconsistent(t *testing.T) {
	dir, err := ioutil.TempDir("", "geographer-persist-partial")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	if err := ioutil.WriteFile(filepath.Join(dir, "attrs.json"), []byte(`{"crs_epsg":4326}`), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := persist.LoadDir(dir); err == nil {
		t.Fatal("expected partial directory contents to be rejected")
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
