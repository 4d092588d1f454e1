package vectorstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/synapsevault/memoryengine/internal/ids"
)

const dim = 4

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vectors.db")
	s, err := Open(path, dim)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func rec(memType MemoryType, vec []float32) Record {
	return Record{
		MemoryID:   ids.New(),
		MemoryType: memType,
		Vector:     vec,
		Content:    "hello",
		CreatedAt:  time.Now(),
	}
}

func TestOpenRejectsNonPositiveDimension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.db")
	if _, err := Open(path, 0); err == nil {
		t.Fatal("expected error for zero dimension")
	}
}

func TestAddRejectsInvalidID(t *testing.T) {
	s := newTestStore(t)
	r := rec(Event, []float32{1, 2, 3, 4})
	r.MemoryID = "not-a-valid-id"
	if err := s.Add(r); err == nil {
		t.Fatal("expected error for invalid memory id")
	}
}

func TestAddRejectsInvalidMemoryType(t *testing.T) {
	s := newTestStore(t)
	r := rec(MemoryType("bogus"), []float32{1, 2, 3, 4})
	if err := s.Add(r); err == nil {
		t.Fatal("expected error for invalid memory type")
	}
}

func TestAddRejectsDimensionMismatch(t *testing.T) {
	s := newTestStore(t)
	r := rec(Event, []float32{1, 2, 3})
	if err := s.Add(r); err == nil {
		t.Fatal("expected error for dimension mismatch")
	}
}

func TestAddAndCount(t *testing.T) {
	s := newTestStore(t)
	if err := s.Add(rec(Event, []float32{1, 0, 0, 0})); err != nil {
		t.Fatalf("Add: %v", err)
	}
	n, err := s.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Fatalf("Count = %d, want 1", n)
	}
}

func TestAddBatchEmptyIsNoop(t *testing.T) {
	s := newTestStore(t)
	if err := s.AddBatch(nil); err != nil {
		t.Fatalf("AddBatch(nil): %v", err)
	}
	n, _ := s.Count()
	if n != 0 {
		t.Fatalf("Count = %d, want 0", n)
	}
}

func TestSearchOrdersByAscendingDistance(t *testing.T) {
	s := newTestStore(t)
	near := rec(Event, []float32{1, 0, 0, 0})
	far := rec(Event, []float32{0, 0, 0, 1})
	if err := s.AddBatch([]Record{far, near}); err != nil {
		t.Fatalf("AddBatch: %v", err)
	}

	hits, err := s.Search([]float32{1, 0, 0, 0}, 2, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if hits[0].MemoryID != near.MemoryID {
		t.Fatalf("nearest hit = %s, want %s", hits[0].MemoryID, near.MemoryID)
	}
	if hits[0].Distance > hits[1].Distance {
		t.Fatalf("hits not ascending: %v then %v", hits[0].Distance, hits[1].Distance)
	}
}

func TestSearchFiltersByMemoryType(t *testing.T) {
	s := newTestStore(t)
	e := rec(Event, []float32{1, 0, 0, 0})
	en := rec(Entity, []float32{1, 0, 0, 0})
	if err := s.AddBatch([]Record{e, en}); err != nil {
		t.Fatalf("AddBatch: %v", err)
	}

	want := Entity
	hits, err := s.Search([]float32{1, 0, 0, 0}, 10, &want)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].MemoryID != en.MemoryID {
		t.Fatalf("expected only entity hit, got %+v", hits)
	}
}

func TestDeleteRemovesRecord(t *testing.T) {
	s := newTestStore(t)
	r := rec(Event, []float32{1, 0, 0, 0})
	if err := s.Add(r); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Delete(r.MemoryID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	n, _ := s.Count()
	if n != 0 {
		t.Fatalf("Count = %d after delete, want 0", n)
	}
}

func TestDeleteRejectsInvalidID(t *testing.T) {
	s := newTestStore(t)
	if err := s.Delete("not-a-valid-id"); err == nil {
		t.Fatal("expected error for invalid memory id")
	}
}

func TestSearchRejectsDimensionMismatch(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Search([]float32{1, 2}, 5, nil); err == nil {
		t.Fatal("expected error for mismatched query dimension")
	}
}

func TestListIDsReturnsEveryStoredRecord(t *testing.T) {
	s := newTestStore(t)
	r1 := rec(Event, []float32{1, 0, 0, 0})
	r2 := rec(Entity, []float32{0, 1, 0, 0})
	if err := s.Add(r1); err != nil {
		t.Fatalf("Add r1: %v", err)
	}
	if err := s.Add(r2); err != nil {
		t.Fatalf("Add r2: %v", err)
	}

	ids, err := s.ListIDs()
	if err != nil {
		t.Fatalf("ListIDs: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("got %d ids, want 2", len(ids))
	}

	found := map[string]MemoryType{}
	for _, rec := range ids {
		found[rec.MemoryID] = rec.MemoryType
	}
	if found[r1.MemoryID] != Event {
		t.Fatalf("r1 type = %v, want %v", found[r1.MemoryID], Event)
	}
	if found[r2.MemoryID] != Entity {
		t.Fatalf("r2 type = %v, want %v", found[r2.MemoryID], Entity)
	}
}
