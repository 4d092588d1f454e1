// Package episodic implements the Episodic Memory component: appending
// events to the relational log and their vectors to the Vector Store in
// lockstep, and a fused vector+full-text search over them.
package episodic

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/synapsevault/memoryengine/internal/embedding"
	"github.com/synapsevault/memoryengine/internal/ids"
	"github.com/synapsevault/memoryengine/internal/logging"
	"github.com/synapsevault/memoryengine/internal/memerr"
	"github.com/synapsevault/memoryengine/internal/relational"
	"github.com/synapsevault/memoryengine/internal/vectorstore"
)

var log = logging.GetLogger("episodic")

// DefaultImportance is used when neither the caller nor an importance
// scorer supplies a value.
const DefaultImportance = 0.5

// Store wires the relational event log to the vector index.
type Store struct {
	db       *relational.Database
	vectors  *vectorstore.Store
	embedder embedding.Provider
}

// New constructs an episodic Store.
func New(db *relational.Database, vectors *vectorstore.Store, embedder embedding.Provider) *Store {
	return &Store{db: db, vectors: vectors, embedder: embedder}
}

// AppendInput describes a new event to record.
type AppendInput struct {
	AgentID    string
	EventType  relational.EventType
	Content    string
	Importance *float64 // nil uses DefaultImportance
	Entities   []string
	Metadata   map[string]string
}

// Append generates an id, resolves importance, writes the event row,
// then embeds and indexes its content. If embedding or indexing fails,
// the event row is deleted to avoid a dangling, unsearchable record.
func (s *Store) Append(ctx context.Context, in AppendInput) (*relational.Event, error) {
	if !relational.IsValidEventType(string(in.EventType)) {
		return nil, memerr.StorageErr("episodic.Append", errInvalidEventType(in.EventType))
	}

	importance := DefaultImportance
	if in.Importance != nil {
		importance = *in.Importance
	}

	now := time.Now()
	event := &relational.Event{
		ID:         ids.NewAt(now),
		AgentID:    in.AgentID,
		EventType:  in.EventType,
		Content:    in.Content,
		Importance: importance,
		Entities:   in.Entities,
		Metadata:   in.Metadata,
		CreatedAt:  now,
	}

	if err := s.db.InsertEvent(event); err != nil {
		return nil, err
	}

	vec, err := s.embedder.Embed(ctx, in.Content)
	if err != nil {
		log.Warn("embedding failed for new event, rolling back row", "event_id", event.ID, "error", err)
		if delErr := s.db.DeleteEvent(event.ID); delErr != nil {
			log.Error("failed to roll back event row after embedding failure", "event_id", event.ID, "error", delErr)
		}
		return nil, memerr.EmbeddingErr("episodic.Append", err)
	}

	if err := s.vectors.Add(vectorstore.Record{
		MemoryID:   event.ID,
		MemoryType: vectorstore.Event,
		Vector:     vec,
		Content:    in.Content,
		CreatedAt:  now,
	}); err != nil {
		log.Warn("vector insert failed for new event, rolling back row", "event_id", event.ID, "error", err)
		if delErr := s.db.DeleteEvent(event.ID); delErr != nil {
			log.Error("failed to roll back event row after vector insert failure", "event_id", event.ID, "error", delErr)
		}
		return nil, err
	}

	return event, nil
}

// SearchInput filters a fused vector+FTS query over events.
type SearchInput struct {
	Query           string
	AgentID         string
	EventType       relational.EventType
	EntitySubstring string
	Since           *time.Time
	Until           *time.Time
	Limit           int
	Touch           bool
}

// Hit pairs an Event with its fused-search distance. FTS-only matches
// (no vector hit) carry +Inf so they sort behind every vector match.
type Hit struct {
	Event    *relational.Event
	Distance float64
}

// Search fuses a vector search (2x limit, type=event) with an FTS
// search (limit), applies AgentID/EventType/time-window/entity
// filters, touches matched rows if requested, and returns results
// sorted by ascending distance, truncated to limit.
func (s *Store) Search(ctx context.Context, in SearchInput) ([]Hit, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = 10
	}

	byID := make(map[string]float64)
	var order []string

	if in.Query != "" {
		vec, err := s.embedder.Embed(ctx, in.Query)
		if err != nil {
			log.Warn("query embedding failed, falling back to full-text-only search", "error", err)
		} else {
			memType := vectorstore.Event
			hits, err := s.vectors.Search(vec, limit*2, &memType)
			if err != nil {
				return nil, err
			}
			for _, h := range hits {
				if _, seen := byID[h.MemoryID]; !seen {
					order = append(order, h.MemoryID)
				}
				byID[h.MemoryID] = h.Distance
			}
		}

		ftsEvents, err := s.db.SearchEventsFTS(in.Query, limit)
		if err != nil {
			return nil, err
		}
		for _, e := range ftsEvents {
			if _, seen := byID[e.ID]; !seen {
				byID[e.ID] = math.Inf(1)
				order = append(order, e.ID)
			}
		}
	}

	if len(order) == 0 {
		return nil, nil
	}

	events, err := s.db.BatchGetEvents(order)
	if err != nil {
		return nil, err
	}

	var hits []Hit
	for _, id := range order {
		e, ok := events[id]
		if !ok {
			continue
		}
		if !matchesFilters(e, in) {
			continue
		}
		hits = append(hits, Hit{Event: e, Distance: byID[id]})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })

	if len(hits) > limit {
		hits = hits[:limit]
	}

	if in.Touch {
		now := time.Now()
		for _, h := range hits {
			if err := s.db.TouchEvent(h.Event.ID, now); err != nil {
				log.Warn("failed to touch event after search", "event_id", h.Event.ID, "error", err)
			}
		}
	}

	return hits, nil
}

func matchesFilters(e *relational.Event, in SearchInput) bool {
	if in.AgentID != "" && e.AgentID != in.AgentID {
		return false
	}
	if in.EventType != "" && e.EventType != in.EventType {
		return false
	}
	if in.Since != nil && e.CreatedAt.Before(*in.Since) {
		return false
	}
	if in.Until != nil && e.CreatedAt.After(*in.Until) {
		return false
	}
	if in.EntitySubstring != "" {
		found := false
		for _, ent := range e.Entities {
			if strings.Contains(strings.ToLower(ent), strings.ToLower(in.EntitySubstring)) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Timeline returns a chronological (newest-first) window of events for
// an agent, optionally filtered by event type.
func (s *Store) Timeline(agentID string, eventType relational.EventType, limit int) ([]*relational.Event, error) {
	return s.db.Timeline(agentID, string(eventType), limit)
}

type errInvalidEventType string

func (e errInvalidEventType) Error() string {
	return "invalid event type: " + string(e)
}
