package store

// Backend is the contract both the in-memory *Table and the
// postgres-backed *PostgisTable satisfy, so the connector can swap
// storage without changing its mutation logic.
type Backend interface {
	InsertRows(rows map[string]Row) error
	DropRows(ids []string) error
	GetRow(id string) (Row, bool)
	SetCell(id, column string, value interface{}) error
	HasRow(id string) bool
	Len() int
	IterRows() []RowEntry
}

var _ Backend = (*Table)(nil)
