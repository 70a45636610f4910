package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pborman/uuid"

	"github.com/go-spatial/geographer/geoerrors"
)

// FailureRecord is one row of the raster_failures side table: a
// raster-less record of an attempted-but-failed download, carrying the
// raster id the downloader would have produced. Each row is keyed by
// its own synthetic uuid, so one raster id may appear on several
// records. Rows here never
// participate in the spatial index; a failed attempt has no geometry
// to index.
type FailureRecord struct {
	RasterID    string
	FeatureID   string
	AttemptedAt time.Time
	Reason      string
	Cause       string
}

// FailureTable is a small SQLite-backed side table for FailureRecords.
type FailureTable struct {
	db *sql.DB
}

// OpenFailureTable opens (creating if needed) a SQLite database at path
// holding the raster_failures table. path may be ":memory:".
func OpenFailureTable(path string) (*FailureTable, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, geoerrors.NewPersistenceError(path, "raster_failures: failed to open sqlite database", err)
	}
	const schema = `
		CREATE TABLE IF NOT EXISTS raster_failures (
			id text PRIMARY KEY,
			raster_id text,
			feature_id text NOT NULL,
			attempted_at text NOT NULL,
			reason text NOT NULL,
			cause text NOT NULL
		)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, geoerrors.NewPersistenceError(path, "raster_failures: failed to create table", err)
	}
	return &FailureTable{db: db}, nil
}

// Close releases the underlying database handle.
func (f *FailureTable) Close() error { return f.db.Close() }

// Record inserts a failure row. If rec.RasterID is empty (the
// downloader never even produced a raster id), a synthetic one is
// generated so the row can still be referenced in logs/UIs.
func (f *FailureTable) Record(rec FailureRecord) error {
	if rec.RasterID == "" {
		rec.RasterID = "failed-" + uuid.New()
	}
	id := uuid.New()
	_, err := f.db.Exec(
		`INSERT INTO raster_failures (id, raster_id, feature_id, attempted_at, reason, cause) VALUES (?, ?, ?, ?, ?, ?)`,
		// Fixed-width timestamps so ForFeature's text ORDER BY is chronological.
		id, rec.RasterID, rec.FeatureID, rec.AttemptedAt.UTC().Format("2006-01-02T15:04:05.000000000Z07:00"), rec.Reason, rec.Cause,
	)
	if err != nil {
		return geoerrors.NewPersistenceError("raster_failures", "failed to record failure", err)
	}
	return nil
}

// ForFeature returns every recorded failure for featureID, most recent first.
func (f *FailureTable) ForFeature(featureID string) ([]FailureRecord, error) {
	rows, err := f.db.Query(
		`SELECT raster_id, feature_id, attempted_at, reason, cause FROM raster_failures WHERE feature_id = ? ORDER BY attempted_at DESC`,
		featureID,
	)
	if err != nil {
		return nil, geoerrors.NewPersistenceError("raster_failures", "query failed", err)
	}
	defer rows.Close()

	var out []FailureRecord
	for rows.Next() {
		var rec FailureRecord
		var attemptedAt string
		if err := rows.Scan(&rec.RasterID, &rec.FeatureID, &attemptedAt, &rec.Reason, &rec.Cause); err != nil {
			return nil, geoerrors.NewPersistenceError("raster_failures", "scan failed", err)
		}
		rec.AttemptedAt, _ = time.Parse(time.RFC3339Nano, attemptedAt)
		out = append(out, rec)
	}
	return out, nil
}

// Count returns the total number of recorded failures, for diagnostics.
func (f *FailureTable) Count() (int, error) {
	var n int
	err := f.db.QueryRow(`SELECT count(*) FROM raster_failures`).Scan(&n)
	if err != nil {
		return 0, geoerrors.NewPersistenceError("raster_failures", fmt.Sprintf("count failed: %v", err), err)
	}
	return n, nil
}
