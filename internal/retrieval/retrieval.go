// Package retrieval implements the Retrieval Engine: a single unified
// recall procedure that fuses events, entities, and reflections from
// one vector search into a weighted-score ranking.
package retrieval

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/synapsevault/memoryengine/internal/embedding"
	"github.com/synapsevault/memoryengine/internal/logging"
	"github.com/synapsevault/memoryengine/internal/relational"
	"github.com/synapsevault/memoryengine/internal/vectorstore"
)

var log = logging.GetLogger("retrieval")

// Weights controls how recency, importance, and vector relevance
// combine into a single recall score. The combination is a weighted
// sum, not a product: a memory strong in only one dimension can still
// rank well, which a product would suppress to near zero.
type Weights struct {
	Recency    float64
	Importance float64
	Relevance  float64
}

// Engine fuses the relational store and the vector store into ranked
// recall results.
type Engine struct {
	db        *relational.Database
	vectors   *vectorstore.Store
	embedder  embedding.Provider
	weights   Weights
	decayRate float64
}

// New constructs a retrieval Engine. decayRate must be in (0, 1); it is
// the per-hour multiplicative falloff applied to recency.
func New(db *relational.Database, vectors *vectorstore.Store, embedder embedding.Provider, weights Weights, decayRate float64) *Engine {
	if sum := weights.Recency + weights.Importance + weights.Relevance; sum < 0.99 || sum > 1.01 {
		log.Warn("retrieval weights do not sum to 1.0", "recency", weights.Recency, "importance", weights.Importance, "relevance", weights.Relevance, "sum", sum)
	}
	return &Engine{db: db, vectors: vectors, embedder: embedder, weights: weights, decayRate: decayRate}
}

const (
	defaultLimit = 20
	minLimit     = 1
	maxLimit     = 50
)

// RecallInput parameterizes a single recall call. IncludeCore and Touch
// default to true when left nil, matching every core memory block and
// touching matched rows unless a caller opts out explicitly.
type RecallInput struct {
	Query       string
	Limit       int
	AgentID     string
	IncludeCore *bool
	Touch       *bool
}

func boolOrDefault(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// RecalledMemory is one fused, scored memory of any underlying type.
type RecalledMemory struct {
	MemoryID   string
	MemoryType vectorstore.MemoryType
	Content    string
	Score      float64
	Relevance  float64
	Recency    float64
	Importance float64
}

// RecallResult is the complete response to a Recall call.
type RecallResult struct {
	CoreMemory    []*relational.CoreMemoryBlock
	Memories      []RecalledMemory
	TotalSearched int
}

// Recall embeds the query, searches the vector store across all memory
// types at 3x the requested limit, hydrates each hit from its owning
// relational table, scores it, touches it if requested, and returns the
// top Limit results sorted by descending score.
func (e *Engine) Recall(ctx context.Context, in RecallInput) (*RecallResult, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit < minLimit {
		limit = minLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	vec, err := e.embedder.Embed(ctx, in.Query)
	if err != nil {
		return nil, err
	}

	hits, err := e.vectors.Search(vec, limit*3, nil)
	if err != nil {
		return nil, err
	}

	var eventIDs, entityIDs, reflectionIDs []string
	distanceByID := make(map[string]float64, len(hits))
	for _, h := range hits {
		distanceByID[h.MemoryID] = h.Distance
		switch h.MemoryType {
		case vectorstore.Event:
			eventIDs = append(eventIDs, h.MemoryID)
		case vectorstore.Entity:
			entityIDs = append(entityIDs, h.MemoryID)
		case vectorstore.Reflection:
			reflectionIDs = append(reflectionIDs, h.MemoryID)
		}
	}

	events, err := e.db.BatchGetEvents(eventIDs)
	if err != nil {
		return nil, err
	}
	entities, err := e.db.BatchGetEntities(entityIDs)
	if err != nil {
		return nil, err
	}
	reflections, err := e.db.BatchGetReflections(reflectionIDs)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var recalled []RecalledMemory

	for _, id := range eventIDs {
		ev, ok := events[id]
		if !ok {
			continue
		}
		if in.AgentID != "" && ev.AgentID != in.AgentID {
			continue
		}
		recalled = append(recalled, e.scoreEvent(ev, distanceByID[id], now))
	}
	for _, id := range entityIDs {
		ent, ok := entities[id]
		if !ok {
			continue
		}
		recalled = append(recalled, e.scoreEntity(ent, distanceByID[id], now))
	}
	for _, id := range reflectionIDs {
		r, ok := reflections[id]
		if !ok {
			continue
		}
		recalled = append(recalled, e.scoreReflection(r, distanceByID[id], now))
	}

	sort.Slice(recalled, func(i, j int) bool { return recalled[i].Score > recalled[j].Score })
	if len(recalled) > limit {
		recalled = recalled[:limit]
	}

	if boolOrDefault(in.Touch, true) {
		e.touchAll(recalled, now)
	}

	result := &RecallResult{Memories: recalled, TotalSearched: len(hits)}
	if boolOrDefault(in.IncludeCore, true) {
		core, err := e.db.ListCoreMemoryBlocks()
		if err != nil {
			return nil, err
		}
		result.CoreMemory = core
	}
	return result, nil
}

func (e *Engine) scoreEvent(ev *relational.Event, distance float64, now time.Time) RecalledMemory {
	anchor := ev.CreatedAt
	if ev.AccessedAt != nil {
		anchor = *ev.AccessedAt
	}
	relevance := clamp01(1 - distance/2)
	recency := e.recencyScore(anchor, now)
	importance := clamp01(ev.Importance)
	return RecalledMemory{
		MemoryID:   ev.ID,
		MemoryType: vectorstore.Event,
		Content:    ev.Content,
		Relevance:  relevance,
		Recency:    recency,
		Importance: importance,
		Score:      e.weights.Recency*recency + e.weights.Importance*importance + e.weights.Relevance*relevance,
	}
}

func (e *Engine) scoreEntity(ent *relational.Entity, distance float64, now time.Time) RecalledMemory {
	anchor := ent.CreatedAt
	if ent.AccessedAt != nil {
		anchor = *ent.AccessedAt
	}
	relevance := clamp01(1 - distance/2)
	recency := e.recencyScore(anchor, now)
	importance := clamp01(ent.Importance)
	return RecalledMemory{
		MemoryID:   ent.ID,
		MemoryType: vectorstore.Entity,
		Content:    formatEntityContent(ent),
		Relevance:  relevance,
		Recency:    recency,
		Importance: importance,
		Score:      e.weights.Recency*recency + e.weights.Importance*importance + e.weights.Relevance*relevance,
	}
}

func (e *Engine) scoreReflection(r *relational.Reflection, distance float64, now time.Time) RecalledMemory {
	anchor := r.CreatedAt
	if r.AccessedAt != nil {
		anchor = *r.AccessedAt
	}
	relevance := clamp01(1 - distance/2)
	recency := e.recencyScore(anchor, now)
	importance := clamp01(r.Importance)
	return RecalledMemory{
		MemoryID:   r.ID,
		MemoryType: vectorstore.Reflection,
		Content:    r.Content,
		Relevance:  relevance,
		Recency:    recency,
		Importance: importance,
		Score:      e.weights.Recency*recency + e.weights.Importance*importance + e.weights.Relevance*relevance,
	}
}

func (e *Engine) recencyScore(anchor, now time.Time) float64 {
	hours := now.Sub(anchor).Hours()
	if hours < 0 {
		hours = 0
	}
	return math.Pow(e.decayRate, hours)
}

func (e *Engine) touchAll(memories []RecalledMemory, now time.Time) {
	for _, m := range memories {
		var err error
		switch m.MemoryType {
		case vectorstore.Event:
			err = e.db.TouchEvent(m.MemoryID, now)
		case vectorstore.Entity:
			err = e.db.TouchEntity(m.MemoryID, now)
		case vectorstore.Reflection:
			err = e.db.TouchReflection(m.MemoryID, now)
		}
		if err != nil {
			log.Warn("failed to touch recalled memory", "memory_id", m.MemoryID, "memory_type", m.MemoryType, "error", err)
		}
	}
}

func formatEntityContent(ent *relational.Entity) string {
	content := ent.Name
	if ent.Summary != nil && *ent.Summary != "" {
		content += ": " + *ent.Summary
	}
	return content
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
