// Package connector implements the Connector core: the orchestrator
// that owns the tabular store, spatial index, and bipartite relation
// graph, and keeps them mutually consistent across every mutation.
package connector

import (
	"encoding/json"
	"time"

	"github.com/go-redis/redis"
	"github.com/go-spatial/geom"

	"github.com/go-spatial/geographer/dict"
	"github.com/go-spatial/geographer/geoerrors"
	"github.com/go-spatial/geographer/geometry"
	"github.com/go-spatial/geographer/graph"
	"github.com/go-spatial/geographer/index"
	"github.com/go-spatial/geographer/persist"
	"github.com/go-spatial/geographer/store"
)

const (
	vectorsTableName  = "vectors"
	rastersTableName  = "rasters"
	geomColumn        = "geom"
	rasterCountColumn = "raster_count"

	// downloadFilesColumn names the raster-row attribute listing the
	// source files a downloader produced the raster from; it is copied
	// onto every edge the raster participates in as provenance.
	downloadFilesColumn = "download_files"
)

// Connector binds the vectors table, rasters table, spatial index, and
// relation graph into one consistent dataset. A zero value is not
// usable; build one with FromScratch or FromDataDir.
type Connector struct {
	dataDir string
	crs     geometry.CRS

	taskClasses     []string
	backgroundClass string

	vectors *store.Table
	rasters *store.Table
	tree    *index.RTree
	graph   *graph.Graph

	failures *store.FailureTable
	cache    *index.CachedQuerier

	// Optional write-through storage backends for the two tables; see
	// WithBackends.
	vectorsMirror store.Backend
	rastersMirror store.Backend

	// Unrecognized top-level fields from graph.json and attrs.json,
	// carried from load to the next save so a round-trip never drops
	// data a newer writer produced.
	graphExtra map[string]json.RawMessage
	attrsExtra map[string]json.RawMessage
}

// WithQueryCache fronts the spatial index with a redis-backed candidate
// cache (index.CachedQuerier), so repeated read queries against an
// unchanged index skip the tree walk. A nil client disables caching.
func (c *Connector) WithQueryCache(client *redis.Client, prefix string, ttl time.Duration) {
	c.cache = index.NewCachedQuerier(c.tree, client, prefix, ttl)
}

// query runs a candidate lookup through the cache when one is
// configured, falling back to the tree directly otherwise.
func (c *Connector) query(b index.Bounds) []string {
	if c.cache != nil {
		return c.cache.Query(b)
	}
	return c.tree.Query(b)
}

// WithBackends attaches storage backends (e.g. *store.PostgisTable) for
// the vectors and rasters tables; either may be nil. Every committed
// mutation is replayed onto the attached backend, so the backend holds
// a durable copy of the rows the in-memory tables serve. Attach
// backends before the first mutation and keep them attached for the
// connector's lifetime; a backend failure aborts the call and rolls
// back the in-memory state, while the backend's own per-call
// transaction keeps it row-consistent.
func (c *Connector) WithBackends(vectors, rasters store.Backend) {
	c.vectorsMirror = vectors
	c.rastersMirror = rasters
}

// mirrorFor returns the backend attached for t, or nil.
func (c *Connector) mirrorFor(t *store.Table) store.Backend {
	switch t {
	case c.vectors:
		return c.vectorsMirror
	case c.rasters:
		return c.rastersMirror
	}
	return nil
}

// FromScratch builds an empty Connector rooted at dataDir, with its
// canonical CRS fixed at crsEPSG (EPSG:4326 when crsEPSG is zero).
func FromScratch(dataDir string, crsEPSG uint64, taskClasses []string, backgroundClass string) *Connector {
	if crsEPSG == 0 {
		crsEPSG = uint64(geometry.WGS84)
	}
	return &Connector{
		dataDir:         dataDir,
		crs:             geometry.CRS(crsEPSG),
		taskClasses:     append([]string{}, taskClasses...),
		backgroundClass: backgroundClass,
		vectors:         store.NewTable(vectorsTableName, geomColumn),
		rasters:         store.NewTable(rastersTableName, geomColumn),
		tree:            index.New(index.DefaultMaxEntries),
		graph:           graph.New(),
	}
}

// FromDataDir loads a Connector previously saved at dataDir.
func FromDataDir(dataDir string) (*Connector, error) {
	snap, err := persist.LoadDir(dataDir)
	if err != nil {
		return nil, err
	}
	return fromSnapshot(dataDir, snap)
}

// fromSnapshot rebuilds a Connector (including its spatial index) from
// a loaded snapshot, shared by FromDataDir and FromRemote.
func fromSnapshot(dataDir string, snap *persist.Snapshot) (*Connector, error) {
	c := &Connector{
		dataDir:         dataDir,
		crs:             geometry.CRS(snap.Attrs.CRSEPSG),
		taskClasses:     snap.Attrs.TaskClasses,
		backgroundClass: snap.Attrs.BackgroundClass,
		vectors:         snap.Vectors,
		rasters:         snap.Rasters,
		graph:           snap.Graph,
		graphExtra:      snap.GraphExtra,
		attrsExtra:      snap.Attrs.Extra,
	}
	entries := make([]index.Entry, 0, snap.Vectors.Len()+snap.Rasters.Len())
	for _, r := range snap.Vectors.IterRows() {
		b, err := boundsOf(r.Attrs[geomColumn])
		if err != nil {
			return nil, geoerrors.NewPersistenceError(dataDir, "vectors table has a row with invalid geometry", err)
		}
		entries = append(entries, index.Entry{ID: r.ID, Bounds: b})
	}
	for _, r := range snap.Rasters.IterRows() {
		b, err := boundsOf(r.Attrs[geomColumn])
		if err != nil {
			return nil, geoerrors.NewPersistenceError(dataDir, "rasters table has a row with invalid geometry", err)
		}
		entries = append(entries, index.Entry{ID: r.ID, Bounds: b})
	}
	tree := index.New(index.DefaultMaxEntries)
	if err := tree.BulkLoad(entries); err != nil {
		return nil, geoerrors.NewPersistenceError(dataDir, "failed to rebuild spatial index", err)
	}
	c.tree = tree
	return c, nil
}

// Save persists the connector to its data directory using the atomic
// write protocol. The self-consistency check runs first so a
// tampered-with in-memory state is never written out.
func (c *Connector) Save() error {
	if err := c.CheckInvariants(); err != nil {
		return err
	}
	return persist.SaveDir(c.dataDir, c.snapshot())
}

// snapshot bundles the connector's persistent state for the local and
// remote persistence backends.
func (c *Connector) snapshot() persist.Snapshot {
	return persist.Snapshot{
		Vectors:    c.vectors,
		Rasters:    c.rasters,
		Graph:      c.graph,
		GraphExtra: c.graphExtra,
		Attrs: persist.AttrsDoc{
			CRSEPSG:         uint64(c.crs),
			TaskClasses:     c.taskClasses,
			BackgroundClass: c.backgroundClass,
			Extra:           c.attrsExtra,
		},
	}
}

// Vectors returns a read-only snapshot of the vectors table; mutating
// the returned rows does not write through to the connector.
func (c *Connector) Vectors() []store.RowEntry { return c.vectors.IterRows() }

// Rasters returns a read-only snapshot of the rasters table.
func (c *Connector) Rasters() []store.RowEntry { return c.rasters.IterRows() }

// Edges returns a read-only snapshot of the relation graph's edge set,
// e.g. for the debugsvg renderer.
func (c *Connector) Edges() []graph.EdgeView { return c.graph.Edges() }

func boundsOf(g interface{}) (index.Bounds, error) {
	geo, ok := g.(geom.Geometry)
	if !ok {
		return index.Bounds{}, geoerrors.NewGeometryError("", "row has no valid geometry", nil)
	}
	minx, miny, maxx, maxy, err := geometry.Bounds(geo)
	if err != nil {
		return index.Bounds{}, err
	}
	return index.Bounds{MinX: minx, MinY: miny, MaxX: maxx, MaxY: maxy}, nil
}

// AddVectors inserts a batch of (id, attrs) rows into the vectors
// table, wiring edges to every overlapping raster. inputCRS is the CRS
// the caller's geometries are already in; it is reprojected to the
// connector's canonical CRS. The whole call is all-or-nothing: any
// failure, including a duplicate id within the batch itself, leaves
// tables, index, and graph exactly as they were.
func (c *Connector) AddVectors(rows []store.RowEntry, inputCRS geometry.CRS) error {
	return c.addRows(c.vectors, c.rasters, graph.Feature, rows, inputCRS)
}

// AddRasters mirrors AddVectors for the rasters table.
func (c *Connector) AddRasters(rows []store.RowEntry, inputCRS geometry.CRS) error {
	return c.addRows(c.rasters, c.vectors, graph.Raster, rows, inputCRS)
}

// addRows implements the shared add_vectors/add_rasters algorithm: own
// is the table being inserted into, other is the opposite-kind table
// to classify candidates against. Edges are created in input row order.
func (c *Connector) addRows(own, other *store.Table, kind graph.Kind, rows []store.RowEntry, inputCRS geometry.CRS) (err error) {
	if len(rows) == 0 {
		return nil
	}

	// Step 1: id uniqueness within this batch, within the owning table,
	// and across the vectors/rasters namespace.
	ids := make([]string, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for _, r := range rows {
		if seen[r.ID] {
			return geoerrors.NewDuplicateID(own.Name, r.ID)
		}
		seen[r.ID] = true
		if own.HasRow(r.ID) {
			return geoerrors.NewDuplicateID(own.Name, r.ID)
		}
		if other.HasRow(r.ID) {
			return geoerrors.NewNamespaceCollision(r.ID)
		}
		ids = append(ids, r.ID)
	}

	// Snapshot for rollback before anything is mutated.
	ownSnap := own.Clone()
	treeSnap := c.tree.Clone()
	graphSnap := c.graph.Clone()
	// Adding rasters refreshes raster_count on existing vectors rows, so
	// the vectors table is snapshotted too.
	var vectorsSnap *store.Table
	if kind == graph.Raster {
		vectorsSnap = c.vectors.Clone()
	}
	defer func() {
		if err != nil {
			c.restore(own, ownSnap, treeSnap, graphSnap)
			if vectorsSnap != nil {
				*c.vectors = *vectorsSnap
			}
		}
	}()

	// Step 2: reproject geometries to canonical CRS.
	prepared := make(map[string]store.Row, len(rows))
	for _, r := range rows {
		g, ok := r.Attrs[geomColumn].(geom.Geometry)
		if !ok || g == nil {
			return &geoerrors.SchemaError{Table: own.Name, Column: geomColumn, Reason: "required geometry column missing"}
		}
		reprojected, rerr := geometry.Reproject(g, inputCRS, c.crs)
		if rerr != nil {
			return geoerrors.NewGeometryError(r.ID, "failed to reproject to canonical CRS", rerr)
		}
		if verr := geometry.IsValid(reprojected); verr != nil {
			return geoerrors.NewGeometryError(r.ID, "geometry invalid after reprojection", verr)
		}
		cp := r.Attrs.Clone()
		cp[geomColumn] = reprojected
		prepared[r.ID] = cp
	}

	// Step 3: insert into the owning table and the spatial index.
	if err = own.InsertRows(prepared); err != nil {
		return err
	}
	for _, id := range ids {
		b, berr := boundsOf(prepared[id][geomColumn])
		if berr != nil {
			err = berr
			return err
		}
		if err = c.tree.Insert(id, b); err != nil {
			return err
		}
	}
	if c.cache != nil {
		c.cache.Invalidate()
	}
	for _, id := range ids {
		if err = c.graph.AddVertex(id, kind); err != nil {
			return err
		}
	}

	// Step 4: classify candidates against the opposite table and wire edges.
	changedFeatures := map[string]bool{}
	for _, id := range ids {
		g := prepared[id][geomColumn].(geom.Geometry)
		b, _ := boundsOf(g)
		candidates := c.query(b)
		for _, candID := range candidates {
			if !other.HasRow(candID) {
				continue
			}
			otherRow, _ := other.GetRow(candID)
			otherGeom, ok := otherRow[geomColumn].(geom.Geometry)
			if !ok {
				continue
			}

			var rasterID, featureID string
			var rasterGeom, featureGeom geom.Geometry
			var rasterRow store.Row
			if kind == graph.Raster {
				rasterID, rasterGeom = id, g
				featureID, featureGeom = candID, otherGeom
				rasterRow = prepared[id]
			} else {
				rasterID, rasterGeom = candID, otherGeom
				featureID, featureGeom = id, g
				rasterRow = otherRow
			}

			label, lerr := classify(rasterGeom, featureGeom)
			if lerr != nil {
				err = lerr
				return err
			}
			if label == nil {
				continue
			}
			attrs := dict.New()
			if df, ok := rasterRow[downloadFilesColumn]; ok {
				attrs[downloadFilesColumn] = df
			}
			if err = c.graph.AddEdge(rasterID, featureID, *label, attrs); err != nil {
				return err
			}
			if *label == graph.Contains {
				changedFeatures[featureID] = true
			}
		}
	}

	// Step 5: recompute raster_count for every feature whose incoming
	// contains-edge set changed (new feature rows always recompute).
	if kind == graph.Feature {
		for _, id := range ids {
			changedFeatures[id] = true
		}
	}
	for featureID := range changedFeatures {
		if err = c.refreshRasterCount(featureID); err != nil {
			return err
		}
	}

	// Step 6: replay the committed batch onto the attached backend,
	// reading the final rows back from the table so derived columns
	// are included.
	if m := c.mirrorFor(own); m != nil {
		final := make(map[string]store.Row, len(ids))
		for _, id := range ids {
			row, _ := own.GetRow(id)
			final[id] = row
		}
		if err = m.InsertRows(final); err != nil {
			return err
		}
	}

	return nil
}

// classify evaluates the geometric predicate between a raster
// footprint and a feature geometry, returning nil if they do not
// overlap at all. A zero-area touch still counts as intersecting;
// fully disjoint geometries produce no label.
func classify(rasterGeom, featureGeom geom.Geometry) (*graph.Label, error) {
	contains, err := geometry.Contains(rasterGeom, featureGeom)
	if err != nil {
		return nil, err
	}
	if contains {
		l := graph.Contains
		return &l, nil
	}
	intersects, err := geometry.Intersects(rasterGeom, featureGeom)
	if err != nil {
		return nil, err
	}
	if !intersects {
		return nil, nil
	}
	l := graph.Intersects
	return &l, nil
}

// refreshRasterCount recomputes the raster_count materialized column
// for featureID from the graph's incoming contains edges. Callers
// never write this column directly.
func (c *Connector) refreshRasterCount(featureID string) error {
	if !c.vectors.HasRow(featureID) {
		return nil
	}
	n := c.graph.CountIncoming(featureID, graph.Contains)
	if err := c.vectors.SetCell(featureID, rasterCountColumn, n); err != nil {
		return err
	}
	// Rows not yet replayed onto the backend pick the count up when the
	// batch itself is replayed.
	if c.vectorsMirror != nil && c.vectorsMirror.HasRow(featureID) {
		return c.vectorsMirror.SetCell(featureID, rasterCountColumn, n)
	}
	return nil
}

func (c *Connector) restore(own *store.Table, ownSnap *store.Table, treeSnap *index.RTree, graphSnap *graph.Graph) {
	*own = *ownSnap
	*c.tree = *treeSnap
	*c.graph = *graphSnap
	if c.cache != nil {
		c.cache.Invalidate()
	}
}

// DropVectors removes ids from the vectors table along with their
// incident edges and index entries. No raster-side recomputation is
// needed; raster_count is a per-feature column.
func (c *Connector) DropVectors(ids []string) error {
	return c.dropRows(c.vectors, ids, nil)
}

// DropRasters removes ids from the rasters table, recomputing
// raster_count on every feature that loses a contains edge.
func (c *Connector) DropRasters(ids []string) error {
	affected := map[string]bool{}
	for _, rasterID := range ids {
		for _, nb := range c.graph.Neighbors(rasterID, labelPtr(graph.Contains)) {
			affected[nb] = true
		}
	}
	return c.dropRows(c.rasters, ids, affected)
}

func labelPtr(l graph.Label) *graph.Label { return &l }

func (c *Connector) dropRows(own *store.Table, ids []string, recomputeFeatures map[string]bool) (err error) {
	if len(ids) == 0 {
		return nil
	}
	for _, id := range ids {
		if !own.HasRow(id) {
			return geoerrors.NewUnknownID(own.Name, id)
		}
	}

	ownSnap := own.Clone()
	treeSnap := c.tree.Clone()
	graphSnap := c.graph.Clone()
	// Dropping rasters refreshes raster_count on vectors rows, so the
	// vectors table is snapshotted too.
	var vectorsSnap *store.Table
	if own != c.vectors && len(recomputeFeatures) > 0 {
		vectorsSnap = c.vectors.Clone()
	}
	defer func() {
		if err != nil {
			c.restore(own, ownSnap, treeSnap, graphSnap)
			if vectorsSnap != nil {
				*c.vectors = *vectorsSnap
			}
		}
	}()

	for _, id := range ids {
		if err = c.graph.RemoveVertex(id); err != nil {
			return err
		}
		if err = c.tree.Remove(id); err != nil {
			return err
		}
	}
	if c.cache != nil {
		c.cache.Invalidate()
	}
	if err = own.DropRows(ids); err != nil {
		return err
	}
	if m := c.mirrorFor(own); m != nil {
		if err = m.DropRows(ids); err != nil {
			return err
		}
	}

	for featureID := range recomputeFeatures {
		if err = c.refreshRasterCount(featureID); err != nil {
			return err
		}
	}
	return nil
}

// RastersContaining returns the rasters whose footprint contains
// featureID, in edge-insertion order.
func (c *Connector) RastersContaining(featureID string) []string {
	return c.graph.Neighbors(featureID, labelPtr(graph.Contains))
}

// RastersIntersecting returns the rasters that intersect featureID
// without containing it; containing rasters are listed by
// RastersContaining instead.
func (c *Connector) RastersIntersecting(featureID string) []string {
	return c.graph.Neighbors(featureID, labelPtr(graph.Intersects))
}

// VectorsContainedIn returns the features contained by rasterID.
func (c *Connector) VectorsContainedIn(rasterID string) []string {
	return c.graph.Neighbors(rasterID, labelPtr(graph.Contains))
}

// VectorsIntersecting returns the features that intersect rasterID.
func (c *Connector) VectorsIntersecting(rasterID string) []string {
	return c.graph.Neighbors(rasterID, labelPtr(graph.Intersects))
}

// HaveRasterFor reports whether featureID has at least one contains edge.
func (c *Connector) HaveRasterFor(featureID string) bool {
	return c.graph.CountIncoming(featureID, graph.Contains) > 0
}

// DoesRasterContain reports whether rasterID currently contains featureID.
func (c *Connector) DoesRasterContain(rasterID, featureID string) bool {
	label, _, ok := c.graph.Edge(rasterID, featureID)
	return ok && label == graph.Contains
}

// IsContainedIn reports whether f is currently contained by r.
func (c *Connector) IsContainedIn(featureID, rasterID string) bool {
	return c.DoesRasterContain(rasterID, featureID)
}

// CheckInvariants runs the self-consistency check: every edge endpoint
// exists in its table, the index and tables agree on membership, and
// raster_count matches the graph. It runs on save and on demand, not
// on every mutation.
func (c *Connector) CheckInvariants() error {
	for _, e := range c.graph.Edges() {
		if !c.rasters.HasRow(e.Raster) {
			return &geoerrors.InvariantError{Check: "edge-soundness", Detail: "edge references unknown raster " + e.Raster}
		}
		if !c.vectors.HasRow(e.Feature) {
			return &geoerrors.InvariantError{Check: "edge-soundness", Detail: "edge references unknown feature " + e.Feature}
		}
	}
	for _, r := range c.vectors.IterRows() {
		if !c.tree.Has(r.ID) {
			return &geoerrors.InvariantError{Check: "index-bijection", Detail: "vectors row missing from spatial index: " + r.ID}
		}
		want := c.graph.CountIncoming(r.ID, graph.Contains)
		if asInt(r.Attrs[rasterCountColumn]) != want {
			return &geoerrors.InvariantError{Check: "count-consistency", Detail: "raster_count mismatch for " + r.ID}
		}
	}
	for _, r := range c.rasters.IterRows() {
		if !c.tree.Has(r.ID) {
			return &geoerrors.InvariantError{Check: "index-bijection", Detail: "rasters row missing from spatial index: " + r.ID}
		}
	}
	if c.tree.Len() != c.vectors.Len()+c.rasters.Len() {
		return &geoerrors.InvariantError{Check: "index-bijection", Detail: "spatial index holds ids absent from both tables"}
	}
	return nil
}

// asInt normalizes a raster_count cell that may have round-tripped
// through JSON (decoding integers as float64) back to an int.
func asInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}
