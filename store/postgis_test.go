package store_test

import (
	"os"
	"testing"

	"github.com/go-spatial/geographer/store"
)

// Exercised only against a live database, gated by environment
// variables so the suite stays runnable without one:
//
//	GEOGRAPHER_TEST_POSTGIS_HOST=localhost \
//	GEOGRAPHER_TEST_POSTGIS_DB=geographer_test \
//	GEOGRAPHER_TEST_POSTGIS_USER=postgres \
//	GEOGRAPHER_TEST_POSTGIS_PASSWORD=postgres go test ./store/
func postgisTestConfig(t *testing.T) store.PostgisConfig {
	t.Helper()
	host := os.Getenv("GEOGRAPHER_TEST_POSTGIS_HOST")
	if host == "" {
		t.Skip("GEOGRAPHER_TEST_POSTGIS_HOST not set")
	}
	cfg := store.DefaultPostgisConfig()
	cfg.Host = host
	cfg.Database = os.Getenv("GEOGRAPHER_TEST_POSTGIS_DB")
	cfg.User = os.Getenv("GEOGRAPHER_TEST_POSTGIS_USER")
	cfg.Password = os.Getenv("GEOGRAPHER_TEST_POSTGIS_PASSWORD")
	cfg.Table = "geographer_test_rows"
	return cfg
}

func TestPostgisBackendRoundTrip(t *testing.T) {
	cfg := postgisTestConfig(t)
	pt, err := store.NewPostgisTable(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer pt.Close()

	// Drive it through the Backend seam the connector uses.
	var backend store.Backend = pt

	must(t, backend.InsertRows(map[string]store.Row{
		"r1": {"geom": square(), "provider": "sentinel-2"},
	}))
	defer backend.DropRows([]string{"r1"})

	if !backend.HasRow("r1") {
		t.Fatal("expected r1 present after insert")
	}
	if backend.Len() != 1 {
		t.Fatalf("expected 1 row, got %d", backend.Len())
	}
	row, ok := backend.GetRow("r1")
	if !ok {
		t.Fatal("expected to read r1 back")
	}
	if row["provider"] != "sentinel-2" {
		t.Fatalf("expected attrs to round trip, got %v", row["provider"])
	}
	if _, ok := row["geom"]; !ok {
		t.Fatal("expected geometry to round trip through WKB")
	}

	must(t, backend.SetCell("r1", "raster_count", 3))
	row, _ = backend.GetRow("r1")
	if row["raster_count"] != float64(3) && row["raster_count"] != 3 {
		t.Fatalf("expected raster_count to round trip, got %v", row["raster_count"])
	}

	rows := backend.IterRows()
	if len(rows) != 1 || rows[0].ID != "r1" {
		t.Fatalf("unexpected iter result: %v", rows)
	}
}
