package connector_test

import (
	"io/ioutil"
	"os"
	"sort"
	"testing"
	"time"

	"github.com/go-spatial/geom"
	"github.com/go-test/deep"

	"github.com/go-spatial/geographer/connector"
	"github.com/go-spatial/geographer/geoerrors"
	"github.com/go-spatial/geographer/geometry"
	"github.com/go-spatial/geographer/store"
)

func square(minx, miny, maxx, maxy float64) geom.Polygon {
	return geom.Polygon{{{minx, miny}, {maxx, miny}, {maxx, maxy}, {minx, maxy}, {minx, miny}}}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func TestContainsThenIntersectsThenDrop(t *testing.T) {
	c := connector.FromScratch(t.TempDir(), 4326, nil, "")

	must(t, c.AddRasters([]store.RowEntry{
		{ID: "r1", Attrs: store.Row{"geom": square(0, 0, 10, 10)}},
	}, geometry.WGS84))

	must(t, c.AddVectors([]store.RowEntry{
		{ID: "f1", Attrs: store.Row{"geom": square(4, 4, 6, 6)}},
	}, geometry.WGS84))

	if got := c.RastersContaining("f1"); len(got) != 1 || got[0] != "r1" {
		t.Fatalf("expected f1 contained by r1, got %v", got)
	}
	row := findRow(c.Vectors(), "f1")
	if row["raster_count"] != 1 {
		t.Fatalf("expected raster_count 1, got %v", row["raster_count"])
	}

	must(t, c.AddVectors([]store.RowEntry{
		{ID: "f2", Attrs: store.Row{"geom": square(9, 3, 13, 7)}},
	}, geometry.WGS84))

	if got := c.RastersContaining("f2"); len(got) != 0 {
		t.Fatalf("expected f2 not contained, got %v", got)
	}
	if got := c.RastersIntersecting("f2"); len(got) != 1 || got[0] != "r1" {
		t.Fatalf("expected f2 intersects r1, got %v", got)
	}
	row2 := findRow(c.Vectors(), "f2")
	if row2["raster_count"] != 0 {
		t.Fatalf("expected raster_count 0 for f2, got %v", row2["raster_count"])
	}

	must(t, c.DropRasters([]string{"r1"}))
	row = findRow(c.Vectors(), "f1")
	row2 = findRow(c.Vectors(), "f2")
	if row["raster_count"] != 0 || row2["raster_count"] != 0 {
		t.Fatal("expected raster_count reset to 0 on every feature after dropping the raster")
	}
	if len(c.RastersContaining("f1")) != 0 || len(c.RastersIntersecting("f2")) != 0 {
		t.Fatal("expected no edges to remain after dropping r1")
	}
}

func TestReprojectionOnAdd(t *testing.T) {
	c := connector.FromScratch(t.TempDir(), 4326, nil, "")
	must(t, c.AddRasters([]store.RowEntry{
		{ID: "r1", Attrs: store.Row{"geom": square(-1, -1, 1, 1)}},
	}, geometry.WGS84))

	webMercatorPoly, err := geometry.Reproject(square(-0.1, -0.1, 0.1, 0.1), geometry.WGS84, geometry.WebMercator)
	must(t, err)

	must(t, c.AddVectors([]store.RowEntry{
		{ID: "f1", Attrs: store.Row{"geom": webMercatorPoly}},
	}, geometry.WebMercator))

	if got := c.RastersContaining("f1"); len(got) != 1 {
		t.Fatalf("expected f1 to be contained by r1 after reprojection, got %v", got)
	}
	row := findRow(c.Vectors(), "f1")
	if _, ok := row["geom"].(geom.Polygon); !ok {
		t.Fatal("expected stored geometry to be a Polygon in canonical CRS")
	}
}

func TestDuplicateIDRejectsWholeBatch(t *testing.T) {
	c := connector.FromScratch(t.TempDir(), 4326, nil, "")
	must(t, c.AddRasters([]store.RowEntry{
		{ID: "r1", Attrs: store.Row{"geom": square(0, 0, 1, 1)}},
	}, geometry.WGS84))

	err := c.AddRasters([]store.RowEntry{
		{ID: "r1", Attrs: store.Row{"geom": square(2, 2, 3, 3)}},
	}, geometry.WGS84)
	if err == nil {
		t.Fatal("expected duplicate id error")
	}
	if len(c.Rasters()) != 1 {
		t.Fatalf("expected no rows added on batch failure, got %d", len(c.Rasters()))
	}
}

func TestIntraBatchDuplicateIDRejectsWholeBatch(t *testing.T) {
	c := connector.FromScratch(t.TempDir(), 4326, nil, "")

	err := c.AddRasters([]store.RowEntry{
		{ID: "r1", Attrs: store.Row{"geom": square(0, 0, 1, 1)}},
		{ID: "r1", Attrs: store.Row{"geom": square(2, 2, 3, 3)}},
	}, geometry.WGS84)
	if err == nil {
		t.Fatal("expected identifier error for a duplicate id within one batch")
	}
	if _, ok := err.(*geoerrors.IdentifierError); !ok {
		t.Fatalf("expected *geoerrors.IdentifierError, got %T", err)
	}
	if len(c.Rasters()) != 0 {
		t.Fatalf("expected no rows added, got %d", len(c.Rasters()))
	}
	if len(c.Edges()) != 0 {
		t.Fatal("expected no edges created")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir, err := ioutil.TempDir("", "geographer-connector-test")
	must(t, err)
	defer os.RemoveAll(dir)

	c := connector.FromScratch(dir, 4326, []string{"building"}, "background")
	must(t, c.AddRasters([]store.RowEntry{
		{ID: "r1", Attrs: store.Row{"geom": square(0, 0, 10, 10)}},
		{ID: "r2", Attrs: store.Row{"geom": square(5, 5, 15, 15)}},
	}, geometry.WGS84))
	must(t, c.AddVectors([]store.RowEntry{
		{ID: "f1", Attrs: store.Row{"geom": square(1, 1, 2, 2)}},
		{ID: "f2", Attrs: store.Row{"geom": square(8, 8, 12, 12)}},
	}, geometry.WGS84))

	must(t, c.Save())

	reloaded, err := connector.FromDataDir(dir)
	must(t, err)

	if diff := deep.Equal(sortedIDs(c.Vectors()), sortedIDs(reloaded.Vectors())); diff != nil {
		t.Fatalf("vectors differ after reload: %v", diff)
	}
	if diff := deep.Equal(sortedIDs(c.Rasters()), sortedIDs(reloaded.Rasters())); diff != nil {
		t.Fatalf("rasters differ after reload: %v", diff)
	}
	if got := reloaded.RastersContaining("f2"); len(got) != 1 || got[0] != "r2" {
		t.Fatalf("expected edge set to survive reload, got %v", got)
	}
	must(t, reloaded.CheckInvariants())
}

func TestDropInversesAdd(t *testing.T) {
	c := connector.FromScratch(t.TempDir(), 4326, nil, "")
	before := len(c.Vectors())

	must(t, c.AddVectors([]store.RowEntry{
		{ID: "f1", Attrs: store.Row{"geom": square(0, 0, 1, 1)}},
	}, geometry.WGS84))
	must(t, c.DropVectors([]string{"f1"}))

	if len(c.Vectors()) != before {
		t.Fatalf("expected connector to return to its prior state, got %d vectors", len(c.Vectors()))
	}
	must(t, c.CheckInvariants())
}

// TestQueryCacheDisabledIsPassthrough covers the redis-backed candidate
// cache wiring with no live redis server: a nil client must leave
// queries answered directly by the tree.
func TestQueryCacheDisabledIsPassthrough(t *testing.T) {
	c := connector.FromScratch(t.TempDir(), 4326, nil, "")
	c.WithQueryCache(nil, "geographer-test", time.Minute)

	must(t, c.AddRasters([]store.RowEntry{
		{ID: "r1", Attrs: store.Row{"geom": square(0, 0, 10, 10)}},
	}, geometry.WGS84))
	must(t, c.AddVectors([]store.RowEntry{
		{ID: "f1", Attrs: store.Row{"geom": square(4, 4, 6, 6)}},
	}, geometry.WGS84))

	if got := c.RastersContaining("f1"); len(got) != 1 || got[0] != "r1" {
		t.Fatalf("expected f1 contained by r1 with cache wired, got %v", got)
	}
}

// TestBackendsReceiveWriteThrough exercises the store.Backend seam with
// in-memory tables standing in for the postgres-backed implementation.
func TestBackendsReceiveWriteThrough(t *testing.T) {
	c := connector.FromScratch(t.TempDir(), 4326, nil, "")
	var vectorsMirror store.Backend = store.NewTable("vectors_mirror", "geom")
	var rastersMirror store.Backend = store.NewTable("rasters_mirror", "geom")
	c.WithBackends(vectorsMirror, rastersMirror)

	must(t, c.AddRasters([]store.RowEntry{
		{ID: "r1", Attrs: store.Row{"geom": square(0, 0, 10, 10)}},
	}, geometry.WGS84))
	must(t, c.AddVectors([]store.RowEntry{
		{ID: "f1", Attrs: store.Row{"geom": square(4, 4, 6, 6)}},
	}, geometry.WGS84))

	if !rastersMirror.HasRow("r1") || !vectorsMirror.HasRow("f1") {
		t.Fatal("expected both rows replayed onto the attached backends")
	}
	row, _ := vectorsMirror.GetRow("f1")
	if row["raster_count"] != 1 {
		t.Fatalf("expected raster_count replayed as 1, got %v", row["raster_count"])
	}

	must(t, c.DropRasters([]string{"r1"}))
	if rastersMirror.HasRow("r1") {
		t.Fatal("expected drop replayed onto the rasters backend")
	}
	row, _ = vectorsMirror.GetRow("f1")
	if row["raster_count"] != 0 {
		t.Fatalf("expected raster_count refreshed to 0 on the backend, got %v", row["raster_count"])
	}
}

func sortedIDs(rows []store.RowEntry) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	sort.Strings(out)
	return out
}

func findRow(rows []store.RowEntry, id string) store.Row {
	for _, r := range rows {
		if r.ID == id {
			return r.Attrs
		}
	}
	return nil
}
