package persist

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pborman/uuid"

	"github.com/go-spatial/geographer/geoerrors"
	"github.com/go-spatial/geographer/graph"
	"github.com/go-spatial/geographer/store"
)

const (
	vectorsFile = "vectors.geojson"
	rastersFile = "rasters.geojson"
	graphFile   = "graph.json"
	attrsFile   = "attrs.json"
)

// Snapshot is the in-memory shape persisted to and loaded from a data
// directory: the two tables, the relation graph, and dataset attrs.
type Snapshot struct {
	Vectors *store.Table
	Rasters *store.Table
	Graph   *graph.Graph
	Attrs   AttrsDoc

	// GraphExtra holds top-level graph.json fields this version doesn't
	// recognize, carried from load to the next save so a round-trip
	// never drops them.
	GraphExtra map[string]json.RawMessage
}

// SaveDir writes snap to dir using the atomic write protocol: each of
// the four files is written to a sibling .tmp path first, and
// only renamed into place once every write has succeeded; a failure
// or crash while the temporary files are written leaves the previous
// files untouched. The renames themselves happen one file at a time,
// so an interruption between two renames leaves some files from the
// new save and some from the previous one.
func SaveDir(dir string, snap Snapshot) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return geoerrors.NewPersistenceError(dir, "failed to create data directory", err)
	}

	vectorsDoc, err := EncodeTable(snap.Vectors.IterRows(), snap.Vectors.GeomColumn)
	if err != nil {
		return err
	}
	rastersDoc, err := EncodeTable(snap.Rasters.IterRows(), snap.Rasters.GeomColumn)
	if err != nil {
		return err
	}
	graphDoc, err := EncodeGraph(snap.Graph, snap.GraphExtra)
	if err != nil {
		return err
	}
	attrsDoc, err := EncodeAttrs(snap.Attrs)
	if err != nil {
		return err
	}

	writes := []struct {
		name string
		data []byte
	}{
		{vectorsFile, vectorsDoc},
		{rastersFile, rastersDoc},
		{graphFile, graphDoc},
		{attrsFile, attrsDoc},
	}

	tmpPaths := make([]string, 0, len(writes))
	for _, w := range writes {
		tmp := filepath.Join(dir, w.name+"."+uuid.New()+".tmp")
		if err := ioutil.WriteFile(tmp, w.data, 0o644); err != nil {
			removeAll(tmpPaths)
			return geoerrors.NewPersistenceError(tmp, "failed to write temporary file", err)
		}
		tmpPaths = append(tmpPaths, tmp)
	}

	for i, w := range writes {
		final := filepath.Join(dir, w.name)
		if err := os.Rename(tmpPaths[i], final); err != nil {
			removeAll(tmpPaths[i+1:])
			return geoerrors.NewPersistenceError(final, "failed to commit file", err)
		}
	}
	return nil
}

func removeAll(paths []string) {
	for _, p := range paths {
		os.Remove(p)
	}
}

// LoadDir reads a directory written by SaveDir. A directory missing all
// four files is a valid empty connector state; a directory
// missing only some of them is an inconsistency error, since a partial
// write should never have been committed.
func LoadDir(dir string) (*Snapshot, error) {
	present := map[string]bool{}
	for _, name := range []string{vectorsFile, rastersFile, graphFile, attrsFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			present[name] = true
		} else if !os.IsNotExist(err) {
			return nil, geoerrors.NewPersistenceError(dir, "failed to stat "+name, err)
		}
	}

	if len(present) == 0 {
		return &Snapshot{
			Vectors: store.NewTable("vectors", "geom"),
			Rasters: store.NewTable("rasters", "geom"),
			Graph:   graph.New(),
			Attrs:   AttrsDoc{CRSEPSG: uint64(4326)},
		}, nil
	}
	if len(present) != 4 {
		return nil, geoerrors.NewPersistenceError(dir, "data directory has partial contents; a prior save never completed", nil)
	}

	vectorsRaw, err := ioutil.ReadFile(filepath.Join(dir, vectorsFile))
	if err != nil {
		return nil, geoerrors.NewPersistenceError(dir, "failed to read "+vectorsFile, err)
	}
	rastersRaw, err := ioutil.ReadFile(filepath.Join(dir, rastersFile))
	if err != nil {
		return nil, geoerrors.NewPersistenceError(dir, "failed to read "+rastersFile, err)
	}
	graphRaw, err := ioutil.ReadFile(filepath.Join(dir, graphFile))
	if err != nil {
		return nil, geoerrors.NewPersistenceError(dir, "failed to read "+graphFile, err)
	}
	attrsRaw, err := ioutil.ReadFile(filepath.Join(dir, attrsFile))
	if err != nil {
		return nil, geoerrors.NewPersistenceError(dir, "failed to read "+attrsFile, err)
	}

	snap, err := snapshotFromRaw(vectorsRaw, rastersRaw, graphRaw, attrsRaw)
	if err != nil {
		return nil, geoerrors.NewPersistenceError(dir, "failed to decode data directory", err)
	}
	return snap, nil
}

// snapshotFromRaw decodes the four wire-format payloads into a Snapshot,
// shared by LoadDir and AzureBackend.LoadRemote.
func snapshotFromRaw(vectorsRaw, rastersRaw, graphRaw, attrsRaw []byte) (*Snapshot, error) {
	vectorRows, err := DecodeTable(vectorsRaw, "geom")
	if err != nil {
		return nil, err
	}
	rasterRows, err := DecodeTable(rastersRaw, "geom")
	if err != nil {
		return nil, err
	}
	decodedGraph, err := DecodeGraph(graphRaw)
	if err != nil {
		return nil, err
	}
	attrs, err := DecodeAttrs(attrsRaw)
	if err != nil {
		return nil, err
	}

	vectors := store.NewTable("vectors", "geom")
	if err := vectors.InsertRows(vectorRows); err != nil {
		return nil, geoerrors.NewPersistenceError("", "vectors table failed validation on load", err)
	}
	rasters := store.NewTable("rasters", "geom")
	if err := rasters.InsertRows(rasterRows); err != nil {
		return nil, geoerrors.NewPersistenceError("", "rasters table failed validation on load", err)
	}

	return &Snapshot{
		Vectors:    vectors,
		Rasters:    rasters,
		Graph:      decodedGraph.Graph,
		Attrs:      attrs,
		GraphExtra: decodedGraph.Extra,
	}, nil
}
