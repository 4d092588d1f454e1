package semantic

import (
	"context"
	"sort"
	"time"

	"github.com/synapsevault/memoryengine/internal/relational"
	"github.com/synapsevault/memoryengine/internal/vectorstore"
)

// EntityHit pairs an Entity with its vector distance from the query.
type EntityHit struct {
	Entity   *relational.Entity
	Distance float64
}

// KnowledgeSearchInput filters a distance-only vector search over
// entities.
type KnowledgeSearchInput struct {
	Query      string
	EntityType relational.EntityType // empty means no filter
	Limit      int
	Touch      bool
}

// KnowledgeSearch embeds query, searches the entity-typed vectors, and
// optionally filters to a single entity type, capping at limit and
// touching matched rows if requested.
func (s *Store) KnowledgeSearch(ctx context.Context, in KnowledgeSearchInput) ([]EntityHit, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = 10
	}

	vec, err := s.embedder.Embed(ctx, in.Query)
	if err != nil {
		return nil, err
	}

	fetchLimit := limit
	if in.EntityType != "" {
		fetchLimit = limit * 3
	}

	memType := vectorstore.Entity
	rawHits, err := s.vectors.Search(vec, fetchLimit, &memType)
	if err != nil {
		return nil, err
	}
	if len(rawHits) == 0 {
		return nil, nil
	}

	ids := make([]string, len(rawHits))
	distances := make(map[string]float64, len(rawHits))
	for i, h := range rawHits {
		ids[i] = h.MemoryID
		distances[h.MemoryID] = h.Distance
	}

	entities, err := s.db.BatchGetEntities(ids)
	if err != nil {
		return nil, err
	}

	var hits []EntityHit
	for _, id := range ids {
		e, ok := entities[id]
		if !ok {
			continue
		}
		if in.EntityType != "" && e.EntityType != in.EntityType {
			continue
		}
		hits = append(hits, EntityHit{Entity: e, Distance: distances[id]})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if len(hits) > limit {
		hits = hits[:limit]
	}

	if in.Touch {
		now := time.Now()
		for _, h := range hits {
			if err := s.db.TouchEntity(h.Entity.ID, now); err != nil {
				log.Warn("failed to touch entity after search", "entity_id", h.Entity.ID, "error", err)
			}
		}
	}

	return hits, nil
}
