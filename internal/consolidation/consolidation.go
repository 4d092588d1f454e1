// Package consolidation implements the Consolidation loop: periodic
// entity maintenance that prunes stale observations, refreshes an
// entity's summary through the LM when warranted, and re-embeds entities
// whose searchable content changed.
package consolidation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/synapsevault/memoryengine/internal/embedding"
	"github.com/synapsevault/memoryengine/internal/llmprovider"
	"github.com/synapsevault/memoryengine/internal/logging"
	"github.com/synapsevault/memoryengine/internal/relational"
	"github.com/synapsevault/memoryengine/internal/vectorstore"
)

var log = logging.GetLogger("consolidation")

const (
	// MaxObservations bounds how many of an entity's most recent
	// observations survive a consolidation pass.
	MaxObservations = 20
	// summaryStaleAfter is how long a summary can go unrefreshed before
	// it is considered stale even if nothing else changed.
	summaryStaleAfter = 7 * 24 * time.Hour
	// maxObservationsForSummary/maxRelationsForSummary bound the LM
	// prompt's size: an entity with more observations than this is
	// skipped for summary refresh this cycle rather than truncated
	// silently, while its relations are capped at the most recent
	// maxRelationsForSummary.
	maxObservationsForSummary = 15
	maxRelationsForSummary    = 10
)

// Engine runs one consolidation pass across every entity.
type Engine struct {
	db       *relational.Database
	vectors  *vectorstore.Store
	embedder embedding.Provider
	llm      llmprovider.Provider
}

// New constructs a consolidation Engine.
func New(db *relational.Database, vectors *vectorstore.Store, embedder embedding.Provider, llm llmprovider.Provider) *Engine {
	return &Engine{db: db, vectors: vectors, embedder: embedder, llm: llm}
}

// Report summarizes the effects of one Run.
type Report struct {
	EntitiesScanned   int
	ObservationsPrune int
	SummariesRefresh  int
}

// Run performs one consolidation pass: every entity has its observations
// pruned to the most recent MaxObservations, and, when the LM is
// available and the entity qualifies, its summary refreshed and its
// vector re-embedded. max_age_days is accepted for forward compatibility
// with the documented configuration surface but is not yet consulted by
// any pruning rule.
func (e *Engine) Run(ctx context.Context, maxAgeDays int) (*Report, error) {
	entities, err := e.db.ListEntities()
	if err != nil {
		return nil, err
	}

	report := &Report{EntitiesScanned: len(entities)}
	now := time.Now()

	for _, ent := range entities {
		changed := false

		if len(ent.Observations) > MaxObservations {
			ent.Observations = ent.Observations[len(ent.Observations)-MaxObservations:]
			changed = true
			report.ObservationsPrune++
		}

		if e.llm.Available() && e.shouldRefreshSummary(ent, now) {
			summary, err := e.refreshSummary(ctx, ent)
			if err != nil {
				log.Warn("failed to refresh entity summary", "entity_id", ent.ID, "error", err)
			} else if summary != "" {
				ent.Summary = &summary
				changed = true
				report.SummariesRefresh++
			}
		}

		if !changed {
			continue
		}

		ent.UpdatedAt = now
		if err := e.db.UpdateEntityAfterConsolidation(ent); err != nil {
			log.Warn("failed to persist consolidated entity", "entity_id", ent.ID, "error", err)
			continue
		}
		e.refreshVector(ctx, ent)
	}

	if err := e.db.SetWatermark(relational.StateLastConsolidation, now); err != nil {
		return report, err
	}

	return report, nil
}

func (e *Engine) shouldRefreshSummary(ent *relational.Entity, now time.Time) bool {
	if len(ent.Observations) > maxObservationsForSummary {
		return false
	}
	if ent.Summary == nil {
		return true
	}
	return now.Sub(ent.UpdatedAt) > summaryStaleAfter
}

func (e *Engine) refreshSummary(ctx context.Context, ent *relational.Entity) (string, error) {
	relations, err := e.db.RelationsForEntity(ent.ID, maxRelationsForSummary)
	if err != nil {
		return "", err
	}

	prompt := summaryPrompt(ent, relations)
	summary, err := e.llm.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(summary), nil
}

func summaryPrompt(ent *relational.Entity, relations []*relational.Relation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Entity: %s (%s)\n\nObservations:\n", ent.Name, ent.EntityType)
	for _, o := range ent.Observations {
		fmt.Fprintf(&b, "- %s\n", o)
	}
	if len(relations) > 0 {
		b.WriteString("\nRelations:\n")
		for _, r := range relations {
			fmt.Fprintf(&b, "- %s\n", r.RelationType)
		}
	}
	b.WriteString("\nWrite a single concise paragraph summarizing this entity.")
	return b.String()
}

func (e *Engine) refreshVector(ctx context.Context, ent *relational.Entity) {
	vec, err := e.embedder.Embed(ctx, entitySearchContent(ent))
	if err != nil {
		log.Warn("failed to re-embed consolidated entity", "entity_id", ent.ID, "error", err)
		return
	}
	if err := e.vectors.Delete(ent.ID); err != nil {
		log.Warn("failed to delete stale entity vector", "entity_id", ent.ID, "error", err)
	}
	if err := e.vectors.Add(vectorstore.Record{
		MemoryID:   ent.ID,
		MemoryType: vectorstore.Entity,
		Vector:     vec,
		Content:    ent.Name,
		CreatedAt:  ent.CreatedAt,
	}); err != nil {
		log.Warn("failed to re-index consolidated entity vector", "entity_id", ent.ID, "error", err)
	}
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
