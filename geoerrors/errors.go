// Package geoerrors declares the error taxonomy shared by every
// geographer package: identifier, geometry, schema, invariant,
// persistence, and collaborator errors. Components return these
// concrete kinds rather than opaque errors so that callers driving
// batch operations can distinguish a bad input from a bug.
package geoerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// IdentifierError covers duplicate ids, unknown ids in a drop, and
// namespace collisions between the vectors and rasters tables.
type IdentifierError struct {
	ID     string
	Table  string
	Reason string
}

func (e *IdentifierError) Error() string {
	return fmt.Sprintf("identifier error: id %q in table %q: %s", e.ID, e.Table, e.Reason)
}

// NewDuplicateID reports an id that already exists in Table.
func NewDuplicateID(table, id string) *IdentifierError {
	return &IdentifierError{ID: id, Table: table, Reason: "already exists"}
}

// NewUnknownID reports an id that was expected to exist in Table but does not.
func NewUnknownID(table, id string) *IdentifierError {
	return &IdentifierError{ID: id, Table: table, Reason: "not found"}
}

// NewNamespaceCollision reports an id that collides across the vectors/rasters
// namespaces, which must stay disjoint.
func NewNamespaceCollision(id string) *IdentifierError {
	return &IdentifierError{ID: id, Table: "vectors/rasters", Reason: "id already used in the other table"}
}

// GeometryError covers invalid, empty, or unreprojectable geometries.
type GeometryError struct {
	ID     string
	Reason string
	cause  error
}

func (e *GeometryError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("geometry error: %s", e.Reason)
	}
	return fmt.Sprintf("geometry error: id %q: %s", e.ID, e.Reason)
}

func (e *GeometryError) Unwrap() error { return e.cause }

// NewGeometryError builds a GeometryError, optionally wrapping a cause.
func NewGeometryError(id, reason string, cause error) *GeometryError {
	return &GeometryError{ID: id, Reason: reason, cause: cause}
}

// SchemaError covers missing required columns and column type mismatches.
type SchemaError struct {
	Table  string
	Column string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error: table %q column %q: %s", e.Table, e.Column, e.Reason)
}

// InvariantError is only reachable by internal bugs or direct tampering
// with the tables outside the mutation API.
type InvariantError struct {
	Check  string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant error: %s: %s", e.Check, e.Detail)
}

// PersistenceError covers I/O failure, corrupt wire format, and version mismatch.
type PersistenceError struct {
	Path   string
	Reason string
	cause  error
}

func (e *PersistenceError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("persistence error: %s", e.Reason)
	}
	return fmt.Sprintf("persistence error: %s: %s", e.Path, e.Reason)
}

func (e *PersistenceError) Unwrap() error { return e.cause }

// NewPersistenceError builds a PersistenceError, wrapping cause with
// github.com/pkg/errors so the full chain survives %+v formatting.
func NewPersistenceError(path, reason string, cause error) *PersistenceError {
	if cause != nil {
		cause = errors.Wrap(cause, reason)
	}
	return &PersistenceError{Path: path, Reason: reason, cause: cause}
}

// CollaboratorError wraps a failure raised by a downloader or label-maker.
// It carries the offending id and a cause chain, and does not by
// itself imply the caller's batch rolled back.
type CollaboratorError struct {
	ID    string
	Stage string // "download" or "make_labels"
	cause error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("collaborator error: %s failed for id %q: %v", e.Stage, e.ID, e.cause)
}

func (e *CollaboratorError) Unwrap() error { return e.cause }
func (e *CollaboratorError) Cause() error  { return e.cause }

// NewCollaboratorError wraps cause with a cause chain via pkg/errors.
func NewCollaboratorError(stage, id string, cause error) *CollaboratorError {
	return &CollaboratorError{ID: id, Stage: stage, cause: errors.Wrap(cause, stage)}
}

// BatchError aggregates per-item CollaboratorErrors for a batch operation
// driven by an external producer (downloader/label-maker), where partial
// success is preserved rather than rolled back.
type BatchError struct {
	Errors []error
}

func (e *BatchError) Error() string {
	if len(e.Errors) == 0 {
		return "batch error: (empty)"
	}
	return fmt.Sprintf("batch error: %d item(s) failed, first: %v", len(e.Errors), e.Errors[0])
}

// Add appends err to the batch, ignoring nil.
func (e *BatchError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// OrNil returns e if it holds at least one error, else nil, so callers can
// write `return batch.OrNil()` without an extra len check.
func (e *BatchError) OrNil() error {
	if e == nil || len(e.Errors) == 0 {
		return nil
	}
	return e
}
