package episodic

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/synapsevault/memoryengine/internal/relational"
	"github.com/synapsevault/memoryengine/internal/vectorstore"
)

const testDim = 4

// hashEmbedder deterministically maps text to a vector so tests can
// assert on distance ordering without a real model.
type hashEmbedder struct {
	fail bool
}

func (h *hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if h.fail {
		return nil, errors.New("embedding unavailable")
	}
	vec := make([]float32, testDim)
	for i, c := range text {
		vec[i%testDim] += float32(c % 7)
	}
	return vec, nil
}

func (h *hashEmbedder) Dimensions() int { return testDim }

func newTestStore(t *testing.T) (*Store, *relational.Database, *vectorstore.Store) {
	t.Helper()
	dir := t.TempDir()

	db, err := relational.Open(filepath.Join(dir, "memory.db"))
	if err != nil {
		t.Fatalf("relational.Open: %v", err)
	}
	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	vs, err := vectorstore.Open(filepath.Join(dir, "vectors.db"), testDim)
	if err != nil {
		t.Fatalf("vectorstore.Open: %v", err)
	}
	t.Cleanup(func() { vs.Close() })

	return New(db, vs, &hashEmbedder{}), db, vs
}

func TestAppendResolvesDefaultImportance(t *testing.T) {
	s, db, _ := newTestStore(t)

	event, err := s.Append(context.Background(), AppendInput{
		AgentID:   "agent-1",
		EventType: relational.EventMessage,
		Content:   "dark mode enabled",
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if event.Importance != DefaultImportance {
		t.Errorf("Importance = %v, want default %v", event.Importance, DefaultImportance)
	}

	got, err := db.GetEvent(event.ID)
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if got == nil {
		t.Fatal("expected event row to exist")
	}
}

func TestAppendHonorsExplicitImportance(t *testing.T) {
	s, _, _ := newTestStore(t)
	importance := 0.9

	event, err := s.Append(context.Background(), AppendInput{
		AgentID:    "agent-1",
		EventType:  relational.EventDecision,
		Content:    "chose Go for the backend",
		Importance: &importance,
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if event.Importance != 0.9 {
		t.Errorf("Importance = %v, want 0.9", event.Importance)
	}
}

func TestAppendRejectsInvalidEventType(t *testing.T) {
	s, _, _ := newTestStore(t)
	_, err := s.Append(context.Background(), AppendInput{
		AgentID:   "agent-1",
		EventType: relational.EventType("bogus"),
		Content:   "x",
	})
	if err == nil {
		t.Fatal("expected error for invalid event type")
	}
}

func TestAppendCompensatesRowOnEmbedFailure(t *testing.T) {
	dir := t.TempDir()
	db, err := relational.Open(filepath.Join(dir, "memory.db"))
	if err != nil {
		t.Fatalf("relational.Open: %v", err)
	}
	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	defer db.Close()

	vs, err := vectorstore.Open(filepath.Join(dir, "vectors.db"), testDim)
	if err != nil {
		t.Fatalf("vectorstore.Open: %v", err)
	}
	defer vs.Close()

	s := New(db, vs, &hashEmbedder{fail: true})

	_, err = s.Append(context.Background(), AppendInput{
		AgentID:   "agent-1",
		EventType: relational.EventMessage,
		Content:   "will fail to embed",
	})
	if err == nil {
		t.Fatal("expected error when embedding fails")
	}

	stats, err := db.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.EventCount != 0 {
		t.Fatalf("EventCount = %d, want 0 after compensating delete", stats.EventCount)
	}
}

func TestSearchOrdersByDistanceAndAppliesFilters(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	match, err := s.Append(ctx, AppendInput{AgentID: "agent-1", EventType: relational.EventMessage, Content: "dark mode toggle"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	other, err := s.Append(ctx, AppendInput{AgentID: "agent-2", EventType: relational.EventMessage, Content: "dark mode toggle"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	hits, err := s.Search(ctx, SearchInput{Query: "dark mode toggle", AgentID: "agent-1", Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, h := range hits {
		if h.Event.ID == other.ID {
			t.Fatalf("expected agent-2 event to be filtered out, found %s", other.ID)
		}
	}
	found := false
	for _, h := range hits {
		if h.Event.ID == match.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("expected matching agent-1 event in results")
	}
}

func TestSearchFallsBackToFTSWhenEmbedFails(t *testing.T) {
	dir := t.TempDir()
	db, err := relational.Open(filepath.Join(dir, "memory.db"))
	if err != nil {
		t.Fatalf("relational.Open: %v", err)
	}
	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	defer db.Close()

	vs, err := vectorstore.Open(filepath.Join(dir, "vectors.db"), testDim)
	if err != nil {
		t.Fatalf("vectorstore.Open: %v", err)
	}
	defer vs.Close()

	embedder := &hashEmbedder{}
	s := New(db, vs, embedder)

	event, err := s.Append(context.Background(), AppendInput{
		AgentID:   "agent-1",
		EventType: relational.EventMessage,
		Content:   "unique searchable phrase",
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	embedder.fail = true
	hits, err := s.Search(context.Background(), SearchInput{Query: "unique searchable phrase", Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	found := false
	for _, h := range hits {
		if h.Event.ID == event.ID {
			found = true
		}
	}
	if !found {
		t.Fatal("expected FTS fallback to still find the event")
	}
}

func TestTimelineReturnsNewestFirst(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	first, err := s.Append(ctx, AppendInput{AgentID: "agent-1", EventType: relational.EventMessage, Content: "first"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	second, err := s.Append(ctx, AppendInput{AgentID: "agent-1", EventType: relational.EventMessage, Content: "second"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	events, err := s.Timeline("agent-1", "", 10)
	if err != nil {
		t.Fatalf("Timeline: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].ID != second.ID || events[1].ID != first.ID {
		t.Fatal("expected newest-first ordering")
	}
}
