// Package index is the spatial index: a bulk-loadable, incrementally
// updatable R-tree over raster footprints and feature geometries,
// keyed by string id. It is a pure candidate-narrowing structure, not
// authoritative: Query returns a superset of exact intersections that
// the caller still runs precise predicates over (see package
// geometry). Bulk loads build the tree with STR (sort-tile-recurse);
// incremental inserts use Guttman's quadratic split.
package index

import (
	"sort"

	"github.com/go-spatial/geographer/geoerrors"
)

// Bounds is an axis-aligned bounding box.
type Bounds struct {
	MinX, MinY, MaxX, MaxY float64
}

// Entry pairs an id with its bounding box, the unit bulk_load works over.
type Entry struct {
	ID     string
	Bounds Bounds
}

func (b Bounds) intersects(o Bounds) bool {
	return b.MinX <= o.MaxX && o.MinX <= b.MaxX && b.MinY <= o.MaxY && o.MinY <= b.MaxY
}

func union(a, b Bounds) Bounds {
	return Bounds{
		MinX: min(a.MinX, b.MinX),
		MinY: min(a.MinY, b.MinY),
		MaxX: max(a.MaxX, b.MaxX),
		MaxY: max(a.MaxY, b.MaxY),
	}
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func enlargement(a, b Bounds) float64 {
	u := union(a, b)
	return area(u) - area(a)
}

func area(b Bounds) float64 {
	w := b.MaxX - b.MinX
	h := b.MaxY - b.MinY
	if w < 0 || h < 0 {
		return 0
	}
	return w * h
}

// DefaultMaxEntries bounds the fan-out of each internal node.
const DefaultMaxEntries = 16

type node struct {
	bounds   Bounds
	leaf     bool
	children []*node // internal node
	id       string  // leaf only
	entry    Bounds  // leaf only
}

// RTree is an R-tree spatial index keyed by string id.
type RTree struct {
	root       *node
	maxEntries int
	locations  map[string]Bounds
}

// New creates an empty R-tree. maxEntries <= 0 uses DefaultMaxEntries.
func New(maxEntries int) *RTree {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &RTree{maxEntries: maxEntries, locations: map[string]Bounds{}}
}

// Len returns the number of indexed ids.
func (t *RTree) Len() int { return len(t.locations) }

// Has reports whether id is currently indexed.
func (t *RTree) Has(id string) bool {
	_, ok := t.locations[id]
	return ok
}

// Insert adds id with the given bounds. It is only safe to call with a
// new id; a duplicate id is an identifier error, matching the tabular
// store's own duplicate-id policy so callers get one consistent error
// shape across the two components.
func (t *RTree) Insert(id string, b Bounds) error {
	if t.Has(id) {
		return geoerrors.NewDuplicateID("spatial-index", id)
	}
	t.locations[id] = b
	leaf := &node{leaf: true, id: id, entry: b, bounds: b}
	if t.root == nil {
		t.root = leaf
		return nil
	}
	t.root = insert(t.root, leaf, t.maxEntries)
	return nil
}

// Remove deletes id from the index. A missing id is a not-found error.
func (t *RTree) Remove(id string) error {
	if !t.Has(id) {
		return geoerrors.NewUnknownID("spatial-index", id)
	}
	delete(t.locations, id)
	t.root = remove(t.root, id)
	return nil
}

// Query returns every id whose bounding box intersects b. This is a
// bbox-level filter: it may return ids whose precise geometry does not
// actually overlap b, which callers must re-check with package geometry.
func (t *RTree) Query(b Bounds) []string {
	if t.root == nil {
		return nil
	}
	var out []string
	collect(t.root, b, &out)
	return out
}

// BulkLoad replaces the tree's contents with entries, built via STR
// (sort-tile-recurse) for a flatter, better-balanced tree than N
// sequential inserts; used at load time.
func (t *RTree) BulkLoad(entries []Entry) error {
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if seen[e.ID] {
			return geoerrors.NewDuplicateID("spatial-index", e.ID)
		}
		seen[e.ID] = true
	}
	t.locations = make(map[string]Bounds, len(entries))
	for _, e := range entries {
		t.locations[e.ID] = e.Bounds
	}
	t.root = strBuild(entries, t.maxEntries)
	return nil
}

// Clone deep-copies the tree, used by the connector to snapshot state
// before a multi-step mutation so it can roll back on failure.
func (t *RTree) Clone() *RTree {
	locations := make(map[string]Bounds, len(t.locations))
	for id, b := range t.locations {
		locations[id] = b
	}
	return &RTree{
		maxEntries: t.maxEntries,
		locations:  locations,
		root:       cloneNode(t.root),
	}
}

func cloneNode(n *node) *node {
	if n == nil {
		return nil
	}
	cp := &node{bounds: n.bounds, leaf: n.leaf, id: n.id, entry: n.entry}
	if len(n.children) > 0 {
		cp.children = make([]*node, len(n.children))
		for i, c := range n.children {
			cp.children[i] = cloneNode(c)
		}
	}
	return cp
}

func insert(n, leaf *node, maxEntries int) *node {
	if n.leaf {
		parent := &node{children: []*node{n, leaf}}
		parent.bounds = union(n.bounds, leaf.bounds)
		return splitIfNeeded(parent, maxEntries)
	}
	best := chooseSubtree(n, leaf.bounds)
	n.children[best] = insert(n.children[best], leaf, maxEntries)
	n.bounds = recomputeBounds(n.children)
	return splitIfNeeded(n, maxEntries)
}

func chooseSubtree(n *node, b Bounds) int {
	bestIdx := 0
	bestEnl := enlargement(n.children[0].bounds, b)
	bestArea := area(n.children[0].bounds)
	for i := 1; i < len(n.children); i++ {
		enl := enlargement(n.children[i].bounds, b)
		if enl < bestEnl || (enl == bestEnl && area(n.children[i].bounds) < bestArea) {
			bestIdx = i
			bestEnl = enl
			bestArea = area(n.children[i].bounds)
		}
	}
	return bestIdx
}

func recomputeBounds(children []*node) Bounds {
	b := children[0].bounds
	for _, c := range children[1:] {
		b = union(b, c.bounds)
	}
	return b
}

func splitIfNeeded(n *node, maxEntries int) *node {
	if n.leaf || len(n.children) <= maxEntries {
		return n
	}
	a, b := quadraticSplit(n.children)
	left := &node{children: a, bounds: recomputeBounds(a)}
	right := &node{children: b, bounds: recomputeBounds(b)}
	parent := &node{children: []*node{left, right}}
	parent.bounds = union(left.bounds, right.bounds)
	return parent
}

// quadraticSplit is Guttman's quadratic-cost split algorithm.
func quadraticSplit(children []*node) (a, b []*node) {
	bestWaste := -1.0
	seed1, seed2 := 0, 1
	for i := 0; i < len(children); i++ {
		for j := i + 1; j < len(children); j++ {
			u := union(children[i].bounds, children[j].bounds)
			waste := area(u) - area(children[i].bounds) - area(children[j].bounds)
			if waste > bestWaste {
				bestWaste = waste
				seed1, seed2 = i, j
			}
		}
	}
	a = []*node{children[seed1]}
	b = []*node{children[seed2]}
	boundA := children[seed1].bounds
	boundB := children[seed2].bounds
	for i, c := range children {
		if i == seed1 || i == seed2 {
			continue
		}
		enlA := enlargement(boundA, c.bounds)
		enlB := enlargement(boundB, c.bounds)
		if enlA < enlB {
			a = append(a, c)
			boundA = union(boundA, c.bounds)
		} else {
			b = append(b, c)
			boundB = union(boundB, c.bounds)
		}
	}
	return a, b
}

func collect(n *node, b Bounds, out *[]string) {
	if !n.bounds.intersects(b) {
		return
	}
	if n.leaf {
		if n.entry.intersects(b) {
			*out = append(*out, n.id)
		}
		return
	}
	for _, c := range n.children {
		collect(c, b, out)
	}
}

func remove(n *node, id string) *node {
	if n == nil {
		return nil
	}
	if n.leaf {
		if n.id == id {
			return nil
		}
		return n
	}
	newChildren := n.children[:0:0]
	for _, c := range n.children {
		r := remove(c, id)
		if r != nil {
			newChildren = append(newChildren, r)
		}
	}
	if len(newChildren) == 0 {
		return nil
	}
	if len(newChildren) == 1 {
		return newChildren[0]
	}
	n.children = newChildren
	n.bounds = recomputeBounds(n.children)
	return n
}

// strBuild builds a tree bottom-up via sort-tile-recurse.
func strBuild(entries []Entry, maxEntries int) *node {
	if len(entries) == 0 {
		return nil
	}
	leaves := make([]*node, len(entries))
	for i, e := range entries {
		leaves[i] = &node{leaf: true, id: e.ID, entry: e.Bounds, bounds: e.Bounds}
	}
	return strBuildLevel(leaves, maxEntries)
}

func strBuildLevel(nodes []*node, maxEntries int) *node {
	if len(nodes) == 1 {
		return nodes[0]
	}
	groups := strGroups(nodes, maxEntries)
	next := make([]*node, 0, len(groups))
	for _, g := range groups {
		next = append(next, &node{children: g, bounds: recomputeBounds(g)})
	}
	return strBuildLevel(next, maxEntries)
}

func strGroups(nodes []*node, maxEntries int) [][]*node {
	n := len(nodes)
	numGroups := (n + maxEntries - 1) / maxEntries
	if numGroups < 1 {
		numGroups = 1
	}
	numSlices := int(ceilSqrt(float64(numGroups)))
	sort.Slice(nodes, func(i, j int) bool { return centerX(nodes[i]) < centerX(nodes[j]) })

	sliceSize := (n + numSlices - 1) / numSlices
	var groups [][]*node
	for i := 0; i < n; i += sliceSize {
		end := i + sliceSize
		if end > n {
			end = n
		}
		slice := append([]*node{}, nodes[i:end]...)
		sort.Slice(slice, func(i, j int) bool { return centerY(slice[i]) < centerY(slice[j]) })
		for j := 0; j < len(slice); j += maxEntries {
			e := j + maxEntries
			if e > len(slice) {
				e = len(slice)
			}
			groups = append(groups, slice[j:e])
		}
	}
	return groups
}

func centerX(n *node) float64 { return (n.bounds.MinX + n.bounds.MaxX) / 2 }
func centerY(n *node) float64 { return (n.bounds.MinY + n.bounds.MaxY) / 2 }

func ceilSqrt(f float64) float64 {
	lo, hi := 0.0, f+1
	for i := 0; i < 40; i++ {
		mid := (lo + hi) / 2
		if mid*mid < f {
			lo = mid
		} else {
			hi = mid
		}
	}
	return hi
}
