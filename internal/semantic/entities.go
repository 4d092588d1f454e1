package semantic

import (
	"context"
	"database/sql"
	"time"

	"github.com/synapsevault/memoryengine/internal/ids"
	"github.com/synapsevault/memoryengine/internal/relational"
)

// DefaultEntityImportance is used for newly created entities when the
// caller supplies no importance and none already exists.
const DefaultEntityImportance = 0.5

// UpsertEntityInput describes an observed or re-observed entity.
type UpsertEntityInput struct {
	Name         string
	EntityType   relational.EntityType
	Observations []string
	Summary      *string
	Importance   *float64
}

// UpsertEntity merges in with any existing entity of the same
// (case-insensitive) name: new observations are unioned onto the
// existing list preserving insertion order and without duplicates,
// summary and importance use the caller's value, falling back to the
// existing value, falling back to a documented default, and
// created_at/accessed_at/access_count are preserved from the existing
// row. The merged row is embedded and indexed after the write commits;
// an embedding failure there is logged, not surfaced, since the
// relational row is already durable.
func (s *Store) UpsertEntity(ctx context.Context, in UpsertEntityInput) (*relational.Entity, error) {
	existing, err := s.db.GetEntityByName(in.Name)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	merged := &relational.Entity{
		Name:       in.Name,
		EntityType: in.EntityType,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if existing != nil {
		merged.ID = existing.ID
		merged.CreatedAt = existing.CreatedAt
		merged.AccessedAt = existing.AccessedAt
		merged.AccessCount = existing.AccessCount
		merged.Observations = mergeObservations(existing.Observations, in.Observations)

		merged.Summary = existing.Summary
		if in.Summary != nil {
			merged.Summary = in.Summary
		}

		merged.Importance = existing.Importance
		if in.Importance != nil {
			merged.Importance = *in.Importance
		}
	} else {
		merged.ID = ids.NewAt(now)
		merged.Observations = mergeObservations(nil, in.Observations)
		merged.Summary = in.Summary
		merged.Importance = DefaultEntityImportance
		if in.Importance != nil {
			merged.Importance = *in.Importance
		}
	}

	if err := s.db.WithTx(func(tx *sql.Tx) error {
		return s.db.UpsertEntityWithinTx(tx, merged)
	}); err != nil {
		return nil, err
	}

	s.refreshEntityVector(ctx, merged)

	return merged, nil
}

func mergeObservations(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing)+len(incoming))
	merged := make([]string, 0, len(existing)+len(incoming))
	for _, o := range existing {
		if !seen[o] {
			seen[o] = true
			merged = append(merged, o)
		}
	}
	for _, o := range incoming {
		if !seen[o] {
			seen[o] = true
			merged = append(merged, o)
		}
	}
	return merged
}
