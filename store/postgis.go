package store

import (
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/wkb"

	"github.com/go-spatial/geographer/geoerrors"
	"github.com/go-spatial/geographer/geometry"
	"github.com/go-spatial/geographer/internal/log"
)

// PostgisBackendName identifies this backend in configuration.
const PostgisBackendName = "postgis"

// PostgisConfig configures a *PostgisTable.
type PostgisConfig struct {
	Host     string
	Port     uint16
	Database string
	User     string
	Password string
	SSLMode  string
	MaxConn  int

	// Table is the backing table name; created if it does not exist.
	Table string
}

// DefaultPostgisConfig fills in the usual connection defaults.
func DefaultPostgisConfig() PostgisConfig {
	return PostgisConfig{
		Port:    5432,
		SSLMode: "disable",
		MaxConn: 100,
	}
}

// PostgisTable is a store.Backend for datasets too large to hold
// comfortably in process memory: rows live in Postgres, with geometry
// round-tripped through WKB.
type PostgisTable struct {
	cfg  PostgisConfig
	pool *pgx.ConnPool
}

// NewPostgisTable connects to Postgres and ensures the backing table exists.
func NewPostgisTable(cfg PostgisConfig) (*PostgisTable, error) {
	if cfg.Table == "" {
		return nil, geoerrors.NewPersistenceError("", "postgis: Table name is required", nil)
	}
	poolConfig := pgx.ConnPoolConfig{
		ConnConfig: pgx.ConnConfig{
			Host:     cfg.Host,
			Port:     cfg.Port,
			Database: cfg.Database,
			User:     cfg.User,
			Password: cfg.Password,
		},
		MaxConnections: cfg.MaxConn,
	}
	pool, err := pgx.NewConnPool(poolConfig)
	if err != nil {
		return nil, geoerrors.NewPersistenceError(cfg.Table, "postgis: failed to open connection pool", err)
	}

	t := &PostgisTable{cfg: cfg, pool: pool}
	if err := t.ensureTable(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *PostgisTable) ensureTable() error {
	stmt := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %q (
			id text PRIMARY KEY,
			attrs jsonb NOT NULL DEFAULT '{}'::jsonb,
			geom bytea NOT NULL
		)`, t.cfg.Table)
	if _, err := t.pool.Exec(stmt); err != nil {
		return geoerrors.NewPersistenceError(t.cfg.Table, "postgis: failed to create table", err)
	}
	return nil
}

// InsertRows validates (duplicate id, geometry validity) and writes
// each row in turn inside one transaction, which is rolled back on the
// first failure, giving the same all-or-nothing guarantee as the
// in-memory Table. Rows must carry their geometry under the "geom" key.
func (t *PostgisTable) InsertRows(rows map[string]Row) error {
	tx, err := t.pool.Begin()
	if err != nil {
		return geoerrors.NewPersistenceError(t.cfg.Table, "postgis: failed to begin transaction", err)
	}
	defer tx.Rollback()

	for id, attrs := range rows {
		var exists bool
		err := tx.QueryRow(fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %q WHERE id = $1)`, t.cfg.Table), id).Scan(&exists)
		if err != nil {
			return geoerrors.NewPersistenceError(t.cfg.Table, "postgis: existence check failed", err)
		}
		if exists {
			return geoerrors.NewDuplicateID(t.cfg.Table, id)
		}
		g, ok := attrs["geom"].(geom.Geometry)
		if !ok {
			return &geoerrors.SchemaError{Table: t.cfg.Table, Column: "geom", Reason: "required geometry attribute missing"}
		}
		if err := geometry.IsValid(g); err != nil {
			return geoerrors.NewGeometryError(id, "invalid geometry on insert", err)
		}
		wkbBytes, err := wkb.EncodeBytes(g)
		if err != nil {
			return geoerrors.NewGeometryError(id, "failed to encode geometry as WKB", err)
		}
		rest := attrs.Clone()
		delete(rest, "geom")
		payload, err := json.Marshal(rest)
		if err != nil {
			return geoerrors.NewPersistenceError(t.cfg.Table, "postgis: failed to marshal attrs", err)
		}
		if _, err := tx.Exec(fmt.Sprintf(`INSERT INTO %q (id, attrs, geom) VALUES ($1, $2, $3)`, t.cfg.Table),
			id, payload, wkbBytes); err != nil {
			return geoerrors.NewPersistenceError(t.cfg.Table, "postgis: insert failed", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return geoerrors.NewPersistenceError(t.cfg.Table, "postgis: commit failed", err)
	}
	return nil
}

// DropRows removes ids inside one transaction; missing ids abort the
// whole batch without deleting anything.
func (t *PostgisTable) DropRows(ids []string) error {
	tx, err := t.pool.Begin()
	if err != nil {
		return geoerrors.NewPersistenceError(t.cfg.Table, "postgis: failed to begin transaction", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		var exists bool
		if err := tx.QueryRow(fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %q WHERE id = $1)`, t.cfg.Table), id).Scan(&exists); err != nil {
			return geoerrors.NewPersistenceError(t.cfg.Table, "postgis: existence check failed", err)
		}
		if !exists {
			return geoerrors.NewUnknownID(t.cfg.Table, id)
		}
	}
	for _, id := range ids {
		if _, err := tx.Exec(fmt.Sprintf(`DELETE FROM %q WHERE id = $1`, t.cfg.Table), id); err != nil {
			return geoerrors.NewPersistenceError(t.cfg.Table, "postgis: delete failed", err)
		}
	}
	return tx.Commit()
}

func (t *PostgisTable) GetRow(id string) (Row, bool) {
	var payload []byte
	var wkbBytes []byte
	err := t.pool.QueryRow(fmt.Sprintf(`SELECT attrs, geom FROM %q WHERE id = $1`, t.cfg.Table), id).Scan(&payload, &wkbBytes)
	if err != nil {
		return nil, false
	}
	row, err := t.decodeRow(payload, wkbBytes)
	if err != nil {
		log.Errorf("postgis: failed to decode row %q: %v", id, err)
		return nil, false
	}
	return row, true
}

func (t *PostgisTable) decodeRow(payload, wkbBytes []byte) (Row, error) {
	row := Row{}
	if err := json.Unmarshal(payload, &row); err != nil {
		return nil, err
	}
	g, err := wkb.DecodeBytes(wkbBytes)
	if err != nil {
		return nil, err
	}
	row["geom"] = g
	return row, nil
}

func (t *PostgisTable) SetCell(id, column string, value interface{}) error {
	row, ok := t.GetRow(id)
	if !ok {
		return geoerrors.NewUnknownID(t.cfg.Table, id)
	}
	row[column] = value
	g, ok := row["geom"].(geom.Geometry)
	if !ok {
		return &geoerrors.SchemaError{Table: t.cfg.Table, Column: "geom", Reason: "row lost its geometry"}
	}
	wkbBytes, err := wkb.EncodeBytes(g)
	if err != nil {
		return geoerrors.NewGeometryError(id, "failed to encode geometry as WKB", err)
	}
	rest := row.Clone()
	delete(rest, "geom")
	payload, err := json.Marshal(rest)
	if err != nil {
		return geoerrors.NewPersistenceError(t.cfg.Table, "postgis: failed to marshal attrs", err)
	}
	_, err = t.pool.Exec(fmt.Sprintf(`UPDATE %q SET attrs = $2, geom = $3 WHERE id = $1`, t.cfg.Table), id, payload, wkbBytes)
	if err != nil {
		return geoerrors.NewPersistenceError(t.cfg.Table, "postgis: update failed", err)
	}
	return nil
}

func (t *PostgisTable) HasRow(id string) bool {
	_, ok := t.GetRow(id)
	return ok
}

func (t *PostgisTable) Len() int {
	var n int
	if err := t.pool.QueryRow(fmt.Sprintf(`SELECT count(*) FROM %q`, t.cfg.Table)).Scan(&n); err != nil {
		return 0
	}
	return n
}

func (t *PostgisTable) IterRows() []RowEntry {
	rows, err := t.pool.Query(fmt.Sprintf(`SELECT id, attrs, geom FROM %q ORDER BY id`, t.cfg.Table))
	if err != nil {
		log.Errorf("postgis: iter rows failed: %v", err)
		return nil
	}
	defer rows.Close()

	var out []RowEntry
	for rows.Next() {
		var id string
		var payload, wkbBytes []byte
		if err := rows.Scan(&id, &payload, &wkbBytes); err != nil {
			log.Errorf("postgis: scan failed: %v", err)
			continue
		}
		row, err := t.decodeRow(payload, wkbBytes)
		if err != nil {
			log.Errorf("postgis: decode failed for %q: %v", id, err)
			continue
		}
		out = append(out, RowEntry{ID: id, Attrs: row})
	}
	return out
}

// Close releases the connection pool.
func (t *PostgisTable) Close() {
	t.pool.Close()
}

var _ Backend = (*PostgisTable)(nil)
