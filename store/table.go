// Package store is the Tabular store: two row-keyed tables (vectors
// and rasters in the connector, but the type itself is table-agnostic)
// each holding attribute columns plus a designated geometry column.
// Mutations are validated as a whole batch before anything is written,
// giving InsertRows/DropRows their all-or-nothing semantics.
package store

import (
	"github.com/go-spatial/geom"

	"github.com/go-spatial/geographer/dict"
	"github.com/go-spatial/geographer/geoerrors"
	"github.com/go-spatial/geographer/geometry"
)

// Row is an open attribute map, reusing dict.Dict so row attributes,
// edge attributes, and capability params all share one shape.
type Row = dict.Dict

// Table is a row-keyed dictionary of attribute columns plus a geometry
// column.
type Table struct {
	Name       string
	GeomColumn string

	columns  map[string]bool
	colOrder []string
	rows     map[string]Row
	order    []string
}

// NewTable creates an empty table. geomColumn names the column that
// must hold a valid, non-nil geom.Geometry on every row.
func NewTable(name, geomColumn string) *Table {
	return &Table{
		Name:       name,
		GeomColumn: geomColumn,
		columns:    map[string]bool{geomColumn: true},
		colOrder:   []string{geomColumn},
		rows:       map[string]Row{},
	}
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.order) }

// HasRow reports whether id exists.
func (t *Table) HasRow(id string) bool {
	_, ok := t.rows[id]
	return ok
}

// Columns returns the table's column names in the order they were introduced.
func (t *Table) Columns() []string {
	out := make([]string, len(t.colOrder))
	copy(out, t.colOrder)
	return out
}

// HasColumn reports whether name is a known column.
func (t *Table) HasColumn(name string) bool { return t.columns[name] }

// GetRow returns a copy of id's attributes.
func (t *Table) GetRow(id string) (Row, bool) {
	r, ok := t.rows[id]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

// RowEntry is one (id, attrs) pair from IterRows.
type RowEntry struct {
	ID    string
	Attrs Row
}

// IterRows returns every row in insertion order. Attribute maps are
// copies; mutating them does not write through to the table.
func (t *Table) IterRows() []RowEntry {
	out := make([]RowEntry, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, RowEntry{ID: id, Attrs: t.rows[id].Clone()})
	}
	return out
}

// InsertRows adds rows to the table. It fails, leaving the table
// unchanged, if any id already exists in this table or any row's
// geometry is missing or invalid. New columns not yet known widen the
// schema; rows missing an existing column simply omit that key (the
// schema is open; readers probe for columns rather than assume them).
func (t *Table) InsertRows(rows map[string]Row) error {
	if len(rows) == 0 {
		return nil
	}
	for id, attrs := range rows {
		if t.HasRow(id) {
			return geoerrors.NewDuplicateID(t.Name, id)
		}
		g, ok := attrs[t.GeomColumn]
		if !ok || g == nil {
			return &geoerrors.SchemaError{Table: t.Name, Column: t.GeomColumn, Reason: "required geometry column missing"}
		}
		geo, ok := g.(geom.Geometry)
		if !ok {
			return &geoerrors.SchemaError{Table: t.Name, Column: t.GeomColumn, Reason: "geometry column is not a geom.Geometry"}
		}
		if err := geometry.IsValid(geo); err != nil {
			return geoerrors.NewGeometryError(id, "invalid geometry on insert", err)
		}
	}

	// Validation passed for every row; commit.
	for id, attrs := range rows {
		cp := attrs.Clone()
		t.rows[id] = cp
		t.order = append(t.order, id)
		for col := range cp {
			if !t.columns[col] {
				t.columns[col] = true
				t.colOrder = append(t.colOrder, col)
			}
		}
	}
	return nil
}

// DropRows removes ids from the table. It fails, leaving the table
// unchanged, if any id is missing.
func (t *Table) DropRows(ids []string) error {
	for _, id := range ids {
		if !t.HasRow(id) {
			return geoerrors.NewUnknownID(t.Name, id)
		}
	}
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
		delete(t.rows, id)
	}
	newOrder := t.order[:0:0]
	for _, id := range t.order {
		if !drop[id] {
			newOrder = append(newOrder, id)
		}
	}
	t.order = newOrder
	return nil
}

// SetCell updates a single column of an existing row in place.
func (t *Table) SetCell(id, column string, value interface{}) error {
	row, ok := t.rows[id]
	if !ok {
		return geoerrors.NewUnknownID(t.Name, id)
	}
	if column == t.GeomColumn {
		geo, ok := value.(geom.Geometry)
		if !ok {
			return &geoerrors.SchemaError{Table: t.Name, Column: column, Reason: "geometry column requires a geom.Geometry"}
		}
		if err := geometry.IsValid(geo); err != nil {
			return geoerrors.NewGeometryError(id, "invalid geometry on set_cell", err)
		}
	}
	row[column] = value
	if !t.columns[column] {
		t.columns[column] = true
		t.colOrder = append(t.colOrder, column)
	}
	return nil
}

// AddColumn widens the schema with a new column; existing rows get def
// (which may be nil, meaning "probe for presence").
func (t *Table) AddColumn(name string, def interface{}) error {
	if t.columns[name] {
		return &geoerrors.SchemaError{Table: t.Name, Column: name, Reason: "column already exists"}
	}
	t.columns[name] = true
	t.colOrder = append(t.colOrder, name)
	if def != nil {
		for _, id := range t.order {
			t.rows[id][name] = def
		}
	}
	return nil
}

// DropColumn removes a column from the schema and every row. The
// geometry column cannot be dropped.
func (t *Table) DropColumn(name string) error {
	if name == t.GeomColumn {
		return &geoerrors.SchemaError{Table: t.Name, Column: name, Reason: "cannot drop the geometry column"}
	}
	if !t.columns[name] {
		return &geoerrors.SchemaError{Table: t.Name, Column: name, Reason: "unknown column"}
	}
	delete(t.columns, name)
	out := t.colOrder[:0:0]
	for _, c := range t.colOrder {
		if c != name {
			out = append(out, c)
		}
	}
	t.colOrder = out
	for _, id := range t.order {
		delete(t.rows[id], name)
	}
	return nil
}

// RenameColumn renames a column across the schema and every row.
func (t *Table) RenameColumn(oldName, newName string) error {
	if oldName == t.GeomColumn {
		return &geoerrors.SchemaError{Table: t.Name, Column: oldName, Reason: "cannot rename the geometry column"}
	}
	if !t.columns[oldName] {
		return &geoerrors.SchemaError{Table: t.Name, Column: oldName, Reason: "unknown column"}
	}
	if t.columns[newName] {
		return &geoerrors.SchemaError{Table: t.Name, Column: newName, Reason: "column already exists"}
	}
	delete(t.columns, oldName)
	t.columns[newName] = true
	for i, c := range t.colOrder {
		if c == oldName {
			t.colOrder[i] = newName
			break
		}
	}
	for _, id := range t.order {
		if v, ok := t.rows[id][oldName]; ok {
			delete(t.rows[id], oldName)
			t.rows[id][newName] = v
		}
	}
	return nil
}

// Clone deep-copies the table, used by the connector to snapshot state
// before a multi-step mutation so it can roll back on failure.
func (t *Table) Clone() *Table {
	out := &Table{
		Name:       t.Name,
		GeomColumn: t.GeomColumn,
		columns:    make(map[string]bool, len(t.columns)),
		colOrder:   append([]string{}, t.colOrder...),
		rows:       make(map[string]Row, len(t.rows)),
		order:      append([]string{}, t.order...),
	}
	for k, v := range t.columns {
		out.columns[k] = v
	}
	for id, row := range t.rows {
		out.rows[id] = row.Clone()
	}
	return out
}
