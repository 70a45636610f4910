package index_test

import (
	"sort"
	"testing"

	"github.com/gdey/tbltest"

	"github.com/go-spatial/geographer/index"
)

func contains(ids []string, id string) bool {
	for _, i := range ids {
		if i == id {
			return true
		}
	}
	return false
}

func TestInsertQueryRemove(t *testing.T) {
	tree := index.New(4)

	if err := tree.Insert("r1", index.Bounds{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}); err != nil {
		t.Fatal(err)
	}
	if err := tree.Insert("r2", index.Bounds{MinX: 20, MinY: 20, MaxX: 30, MaxY: 30}); err != nil {
		t.Fatal(err)
	}

	if err := tree.Insert("r1", index.Bounds{}); err == nil {
		t.Fatal("expected duplicate id error")
	}

	got := tree.Query(index.Bounds{MinX: 5, MinY: 5, MaxX: 6, MaxY: 6})
	if !contains(got, "r1") || contains(got, "r2") {
		t.Fatalf("unexpected query result: %v", got)
	}

	if err := tree.Remove("r1"); err != nil {
		t.Fatal(err)
	}
	if err := tree.Remove("r1"); err == nil {
		t.Fatal("expected not-found error removing twice")
	}
	if tree.Has("r1") {
		t.Fatal("r1 should be gone")
	}
	if tree.Len() != 1 {
		t.Fatalf("expected 1 remaining entry, got %d", tree.Len())
	}
}

func TestBulkLoadMatchesIncrementalInsert(t *testing.T) {
	type testcase struct {
		entries []index.Entry
		query   index.Bounds
		want    []string
	}

	tests := tbltest.Cases(
		testcase{
			entries: []index.Entry{
				{ID: "a", Bounds: index.Bounds{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1}},
				{ID: "b", Bounds: index.Bounds{MinX: 5, MinY: 5, MaxX: 6, MaxY: 6}},
				{ID: "c", Bounds: index.Bounds{MinX: 0.5, MinY: 0.5, MaxX: 1.5, MaxY: 1.5}},
			},
			query: index.Bounds{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1},
			want:  []string{"a", "c"},
		},
	)

	tests.Run(func(idx int, tc testcase) {
		tree := index.New(2)
		if err := tree.BulkLoad(tc.entries); err != nil {
			t.Fatal(err)
		}
		got := tree.Query(tc.query)
		sort.Strings(got)
		sort.Strings(tc.want)
		if len(got) != len(tc.want) {
			t.Fatalf("case %d: got %v, want %v", idx, got, tc.want)
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("case %d: got %v, want %v", idx, got, tc.want)
			}
		}

		incremental := index.New(2)
		for _, e := range tc.entries {
			if err := incremental.Insert(e.ID, e.Bounds); err != nil {
				t.Fatal(err)
			}
		}
		incGot := incremental.Query(tc.query)
		sort.Strings(incGot)
		if len(incGot) != len(got) {
			t.Fatalf("case %d: incremental insert got %v, bulk load got %v", idx, incGot, got)
		}
		for i := range got {
			if incGot[i] != got[i] {
				t.Fatalf("case %d: incremental insert got %v, bulk load got %v", idx, incGot, got)
			}
		}
	})
}

func TestBulkLoadDuplicateID(t *testing.T) {
	tree := index.New(4)
	err := tree.BulkLoad([]index.Entry{
		{ID: "x", Bounds: index.Bounds{}},
		{ID: "x", Bounds: index.Bounds{}},
	})
	if err == nil {
		t.Fatal("expected duplicate id error from bulk load")
	}
}
