// Package repair implements consistency maintenance between the
// relational store and the vector store: deleting vectors that outlived
// their owning row, and re-embedding rows that never got a vector (for
// example after an embedding backend outage).
package repair

import (
	"context"
	"strings"
	"time"

	"github.com/synapsevault/memoryengine/internal/embedding"
	"github.com/synapsevault/memoryengine/internal/logging"
	"github.com/synapsevault/memoryengine/internal/relational"
	"github.com/synapsevault/memoryengine/internal/vectorstore"
)

var log = logging.GetLogger("repair")

// Engine reconciles the relational store against the vector store.
type Engine struct {
	db       *relational.Database
	vectors  *vectorstore.Store
	embedder embedding.Provider
}

// New constructs a repair Engine.
func New(db *relational.Database, vectors *vectorstore.Store, embedder embedding.Provider) *Engine {
	return &Engine{db: db, vectors: vectors, embedder: embedder}
}

// Report tallies what one Repair pass found and fixed.
type Report struct {
	OrphanVectorsDeleted int
	MissingVectorsAdded  int
	MissingVectorsFailed int
}

// Repair runs one full consistency pass: every vector record whose
// owning relational row no longer exists is deleted, and every
// relational row with no vector record is re-embedded and indexed. A
// row that fails to re-embed is logged and counted, not treated as a
// fatal error for the pass.
func (e *Engine) Repair(ctx context.Context) (*Report, error) {
	report := &Report{}

	events, err := e.db.ListEvents()
	if err != nil {
		return nil, err
	}
	entities, err := e.db.ListEntities()
	if err != nil {
		return nil, err
	}
	reflections, err := e.db.ListReflections()
	if err != nil {
		return nil, err
	}

	eventIDs := make(map[string]*relational.Event, len(events))
	for _, ev := range events {
		eventIDs[ev.ID] = ev
	}
	entityIDs := make(map[string]*relational.Entity, len(entities))
	for _, ent := range entities {
		entityIDs[ent.ID] = ent
	}
	reflectionIDs := make(map[string]*relational.Reflection, len(reflections))
	for _, r := range reflections {
		reflectionIDs[r.ID] = r
	}

	vectorIDs, err := e.vectors.ListIDs()
	if err != nil {
		return nil, err
	}
	vectored := make(map[string]bool, len(vectorIDs))
	for _, v := range vectorIDs {
		vectored[v.MemoryID] = true

		var owned bool
		switch v.MemoryType {
		case vectorstore.Event:
			_, owned = eventIDs[v.MemoryID]
		case vectorstore.Entity:
			_, owned = entityIDs[v.MemoryID]
		case vectorstore.Reflection:
			_, owned = reflectionIDs[v.MemoryID]
		}
		if owned {
			continue
		}
		if err := e.vectors.Delete(v.MemoryID); err != nil {
			log.Warn("failed to delete orphan vector", "memory_id", v.MemoryID, "error", err)
			continue
		}
		report.OrphanVectorsDeleted++
	}

	for _, ev := range events {
		if vectored[ev.ID] {
			continue
		}
		if e.reembed(ctx, ev.ID, vectorstore.Event, ev.Content, ev.CreatedAt) {
			report.MissingVectorsAdded++
		} else {
			report.MissingVectorsFailed++
		}
	}
	for _, ent := range entities {
		if vectored[ent.ID] {
			continue
		}
		if e.reembed(ctx, ent.ID, vectorstore.Entity, entitySearchContent(ent), ent.CreatedAt) {
			report.MissingVectorsAdded++
		} else {
			report.MissingVectorsFailed++
		}
	}
	for _, r := range reflections {
		if vectored[r.ID] {
			continue
		}
		if e.reembed(ctx, r.ID, vectorstore.Reflection, r.Content, r.CreatedAt) {
			report.MissingVectorsAdded++
		} else {
			report.MissingVectorsFailed++
		}
	}

	return report, nil
}

func (e *Engine) reembed(ctx context.Context, id string, memType vectorstore.MemoryType, content string, createdAt time.Time) bool {
	vec, err := e.embedder.Embed(ctx, content)
	if err != nil {
		log.Warn("failed to re-embed row missing its vector", "memory_id", id, "memory_type", memType, "error", err)
		return false
	}
	if err := e.vectors.Add(vectorstore.Record{
		MemoryID:   id,
		MemoryType: memType,
		Vector:     vec,
		Content:    content,
		CreatedAt:  createdAt,
	}); err != nil {
		log.Warn("failed to index re-embedded vector", "memory_id", id, "memory_type", memType, "error", err)
		return false
	}
	return true
}

func entitySearchContent(e *relational.Entity) string {
	var b strings.Builder
	b.WriteString(e.Name)
	if e.Summary != nil && *e.Summary != "" {
		b.WriteString("\n")
		b.WriteString(*e.Summary)
	}
	for _, o := range e.Observations {
		b.WriteString("\n")
		b.WriteString(o)
	}
	return b.String()
}
