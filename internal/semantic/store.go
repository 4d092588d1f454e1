package semantic

import (
	"context"

	"github.com/synapsevault/memoryengine/internal/embedding"
	"github.com/synapsevault/memoryengine/internal/logging"
	"github.com/synapsevault/memoryengine/internal/relational"
	"github.com/synapsevault/memoryengine/internal/vectorstore"
)

var log = logging.GetLogger("semantic")

// Store wires the relational entity/relation tables to the vector
// index for knowledge search.
type Store struct {
	db       *relational.Database
	vectors  *vectorstore.Store
	embedder embedding.Provider
}

// New constructs a semantic Store.
func New(db *relational.Database, vectors *vectorstore.Store, embedder embedding.Provider) *Store {
	return &Store{db: db, vectors: vectors, embedder: embedder}
}

// refreshEntityVector re-embeds an entity's searchable content and
// swaps its vector record, deleting any prior one first. Embedding
// failures are logged, not surfaced: the relational row is already
// committed and remains the source of truth.
func (s *Store) refreshEntityVector(ctx context.Context, e *relational.Entity) {
	content := entitySearchContent(e)
	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		log.Warn("embedding failed while refreshing entity vector", "entity_id", e.ID, "error", err)
		return
	}
	if err := s.vectors.Delete(e.ID); err != nil {
		log.Warn("failed to delete stale entity vector", "entity_id", e.ID, "error", err)
	}
	if err := s.vectors.Add(vectorstore.Record{
		MemoryID:   e.ID,
		MemoryType: vectorstore.Entity,
		Vector:     vec,
		Content:    content,
		CreatedAt:  e.UpdatedAt,
	}); err != nil {
		log.Warn("failed to insert refreshed entity vector", "entity_id", e.ID, "error", err)
	}
}

func entitySearchContent(e *relational.Entity) string {
	content := e.Name
	if e.Summary != nil && *e.Summary != "" {
		content += ": " + *e.Summary
	}
	for _, o := range e.Observations {
		content += "\n" + o
	}
	return content
}
