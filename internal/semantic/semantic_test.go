package semantic

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/synapsevault/memoryengine/internal/memerr"
	"github.com/synapsevault/memoryengine/internal/relational"
	"github.com/synapsevault/memoryengine/internal/vectorstore"
)

const testDim = 4

type hashEmbedder struct{ fail bool }

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

func newTestStore(t *testing.T) *Store {
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

	return New(db, vs, &hashEmbedder{})
}

func TestUpdateCoreMemoryAppendReplaceRemove(t *testing.T) {
	s := newTestStore(t)

	block, err := s.UpdateCoreMemory(relational.BlockPersona, "main", "BEGINNING_MARKER ", ModeAppend)
	if err != nil {
		t.Fatalf("UpdateCoreMemory append: %v", err)
	}
	if !strings.HasPrefix(block.Content, "BEGINNING_MARKER") {
		t.Fatalf("expected content to start with marker, got %q", block.Content)
	}

	block, err = s.UpdateCoreMemory(relational.BlockPersona, "main", "more content", ModeAppend)
	if err != nil {
		t.Fatalf("UpdateCoreMemory append 2: %v", err)
	}
	if !strings.Contains(block.Content, "more content") {
		t.Fatal("expected appended content to be present")
	}
	if block.Content != "BEGINNING_MARKER \nmore content" {
		t.Fatalf("expected append to join with a newline separator, got %q", block.Content)
	}

	block, err = s.UpdateCoreMemory(relational.BlockPersona, "main", "replaced", ModeReplace)
	if err != nil {
		t.Fatalf("UpdateCoreMemory replace: %v", err)
	}
	if block.Content != "replaced" {
		t.Fatalf("Content = %q, want %q", block.Content, "replaced")
	}

	block, err = s.UpdateCoreMemory(relational.BlockPersona, "main", "", ModeRemove)
	if err != nil {
		t.Fatalf("UpdateCoreMemory remove: %v", err)
	}
	if block == nil || block.Content != "" || block.BlockKey != "main" {
		t.Fatalf("expected an empty-content block echoing the key after remove, got %+v", block)
	}
	got, err := s.GetCoreMemory(relational.BlockPersona, "main")
	if err != nil {
		t.Fatalf("GetCoreMemory: %v", err)
	}
	if got != nil {
		t.Fatal("expected block to be gone")
	}
}

func TestUpdateCoreMemoryTruncatesLeading(t *testing.T) {
	s := newTestStore(t)

	long := strings.Repeat("x", relational.CoreMemoryMaxChars+500)
	block, err := s.UpdateCoreMemory(relational.BlockUserProfile, "profile", "BEGINNING_MARKER"+long, ModeReplace)
	if err != nil {
		t.Fatalf("UpdateCoreMemory: %v", err)
	}
	if len(block.Content) != relational.CoreMemoryMaxChars {
		t.Fatalf("Content length = %d, want %d", len(block.Content), relational.CoreMemoryMaxChars)
	}
	if !strings.HasPrefix(block.Content, "BEGINNING_MARKER") {
		t.Fatal("expected leading characters to be kept, not trailing")
	}
}

func TestUpsertEntityMergesObservations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e1, err := s.UpsertEntity(ctx, UpsertEntityInput{
		Name:         "Alice",
		EntityType:   relational.EntityPerson,
		Observations: []string{"likes coffee"},
	})
	if err != nil {
		t.Fatalf("UpsertEntity 1: %v", err)
	}
	if e1.Importance != DefaultEntityImportance {
		t.Fatalf("Importance = %v, want default %v", e1.Importance, DefaultEntityImportance)
	}

	e2, err := s.UpsertEntity(ctx, UpsertEntityInput{
		Name:         "alice",
		EntityType:   relational.EntityPerson,
		Observations: []string{"likes coffee", "works remotely"},
	})
	if err != nil {
		t.Fatalf("UpsertEntity 2: %v", err)
	}
	if e2.ID != e1.ID {
		t.Fatal("expected case-insensitive match to reuse the same entity id")
	}
	if len(e2.Observations) != 2 {
		t.Fatalf("Observations = %v, want 2 deduped entries", e2.Observations)
	}
	if e2.CreatedAt != e1.CreatedAt {
		t.Fatal("expected created_at to be preserved across merge")
	}
}

func TestCreateRelationBiTemporalInvariant(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.UpsertEntity(ctx, UpsertEntityInput{Name: "Alice", EntityType: relational.EntityPerson}); err != nil {
		t.Fatalf("UpsertEntity Alice: %v", err)
	}
	if _, err := s.UpsertEntity(ctx, UpsertEntityInput{Name: "Acme", EntityType: relational.EntityOrganization}); err != nil {
		t.Fatalf("UpsertEntity Acme: %v", err)
	}

	rel1, err := s.CreateRelation(RelationInput{FromName: "Alice", ToName: "Acme", RelationType: "works_at"})
	if err != nil {
		t.Fatalf("CreateRelation 1: %v", err)
	}
	if rel1.ValidUntil != nil {
		t.Fatal("expected first relation to be open")
	}

	rel2, err := s.CreateRelation(RelationInput{FromName: "Alice", ToName: "Acme", RelationType: "works_at"})
	if err != nil {
		t.Fatalf("CreateRelation 2: %v", err)
	}

	active, err := s.db.GetRelations(rel1.FromEntity, rel1.ToEntity, "works_at", true)
	if err != nil {
		t.Fatalf("GetRelations active: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("got %d active relations, want exactly 1", len(active))
	}
	if active[0].ID != rel2.ID {
		t.Fatal("expected only the newest relation to remain open")
	}

	all, err := s.db.GetRelations(rel1.FromEntity, rel1.ToEntity, "works_at", false)
	if err != nil {
		t.Fatalf("GetRelations all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d total relations, want 2", len(all))
	}
}

func TestCreateRelationMissingEntityIsEntityNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.CreateRelation(RelationInput{FromName: "Ghost", ToName: "Acme", RelationType: "works_at"})
	if err == nil {
		t.Fatal("expected error for missing entity")
	}
	if !errors.Is(err, memerr.ErrEntityNotFound) {
		t.Fatalf("expected ErrEntityNotFound, got %v", err)
	}
}

func TestKnowledgeSearchFiltersByEntityType(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.UpsertEntity(ctx, UpsertEntityInput{Name: "Alice", EntityType: relational.EntityPerson, Observations: []string{"engineer"}}); err != nil {
		t.Fatalf("UpsertEntity Alice: %v", err)
	}
	if _, err := s.UpsertEntity(ctx, UpsertEntityInput{Name: "Acme", EntityType: relational.EntityOrganization, Observations: []string{"engineer"}}); err != nil {
		t.Fatalf("UpsertEntity Acme: %v", err)
	}

	hits, err := s.KnowledgeSearch(ctx, KnowledgeSearchInput{Query: "engineer", EntityType: relational.EntityPerson, Limit: 10})
	if err != nil {
		t.Fatalf("KnowledgeSearch: %v", err)
	}
	for _, h := range hits {
		if h.Entity.EntityType != relational.EntityPerson {
			t.Fatalf("got entity of type %s, want only %s", h.Entity.EntityType, relational.EntityPerson)
		}
	}
}
