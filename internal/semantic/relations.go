package semantic

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/synapsevault/memoryengine/internal/ids"
	"github.com/synapsevault/memoryengine/internal/memerr"
	"github.com/synapsevault/memoryengine/internal/relational"
)

// RelationInput describes a new bi-temporal edge between two entities
// referenced by name.
type RelationInput struct {
	FromName     string
	ToName       string
	RelationType string
	Metadata     map[string]string
}

// CreateRelation resolves both endpoints by name, closes any currently
// open row for the same (from, to, relation_type) triple, and inserts
// the new row -- all inside one transaction, so no reader ever observes
// zero or two open rows for the triple. A missing endpoint is reported
// as memerr.ErrEntityNotFound.
func (s *Store) CreateRelation(in RelationInput) (*relational.Relation, error) {
	from, err := s.db.GetEntityByName(in.FromName)
	if err != nil {
		return nil, err
	}
	if from == nil {
		return nil, memerr.StorageErr("CreateRelation", fmt.Errorf("entity %q not found: %w", in.FromName, memerr.ErrEntityNotFound))
	}
	to, err := s.db.GetEntityByName(in.ToName)
	if err != nil {
		return nil, err
	}
	if to == nil {
		return nil, memerr.StorageErr("CreateRelation", fmt.Errorf("entity %q not found: %w", in.ToName, memerr.ErrEntityNotFound))
	}

	now := time.Now()
	rel := &relational.Relation{
		ID:           ids.NewAt(now),
		FromEntity:   from.ID,
		ToEntity:     to.ID,
		RelationType: in.RelationType,
		Weight:       1.0,
		ValidFrom:    now,
		Metadata:     in.Metadata,
		CreatedAt:    now,
	}

	err = s.db.WithTx(func(tx *sql.Tx) error {
		if err := s.db.CloseOpenRelationWithinTx(tx, from.ID, to.ID, in.RelationType, now); err != nil {
			return err
		}
		return s.db.InsertRelationWithinTx(tx, rel)
	})
	if err != nil {
		return nil, err
	}
	return rel, nil
}

// RelationsForEntity returns the relations referencing entityID, most
// recently created first, capped at limit.
func (s *Store) RelationsForEntity(entityID string, limit int) ([]*relational.Relation, error) {
	return s.db.RelationsForEntity(entityID, limit)
}
