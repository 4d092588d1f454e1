package relational

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/synapsevault/memoryengine/internal/memerr"
)

const relationColumns = `id, from_entity, to_entity, relation_type, weight, valid_from, valid_until, metadata, created_at`

func scanRelation(row interface {
	Scan(dest ...any) error
}) (*Relation, error) {
	var r Relation
	var validFrom, metadataJSON, createdAt string
	var validUntil sql.NullString

	if err := row.Scan(&r.ID, &r.FromEntity, &r.ToEntity, &r.RelationType, &r.Weight,
		&validFrom, &validUntil, &metadataJSON, &createdAt); err != nil {
		return nil, err
	}

	if t, err := parseTime(validFrom); err == nil {
		r.ValidFrom = t
	}
	if validUntil.Valid {
		if t, err := parseTime(validUntil.String); err == nil {
			r.ValidUntil = &t
		}
	}
	if err := json.Unmarshal([]byte(metadataJSON), &r.Metadata); err != nil {
		r.Metadata = nil
	}
	if t, err := parseTime(createdAt); err == nil {
		r.CreatedAt = t
	}
	return &r, nil
}

// CloseOpenRelationWithinTx sets valid_until on any currently-open row for
// the given (from, to, relation_type) triple, inside an already-open
// transaction. Must run before InsertRelationWithinTx in the same
// transaction to avoid a window with zero or two open rows.
func (d *Database) CloseOpenRelationWithinTx(tx *sql.Tx, from, to, relationType string, now time.Time) error {
	_, err := tx.Exec(`
		UPDATE relations SET valid_until = ?
		WHERE from_entity = ? AND to_entity = ? AND relation_type = ? AND valid_until IS NULL
	`, formatTime(now), from, to, relationType)
	if err != nil {
		return memerr.StorageErr("CloseOpenRelationWithinTx", err)
	}
	return nil
}

// InsertRelationWithinTx inserts a new relation row. A foreign-key
// violation (an endpoint that does not reference an extant entity) is
// surfaced as memerr.ErrEntityNotFound rather than a generic storage
// error.
func (d *Database) InsertRelationWithinTx(tx *sql.Tx, r *Relation) error {
	metadataJSON, err := json.Marshal(r.Metadata)
	if err != nil {
		return memerr.StorageErr("InsertRelationWithinTx", err)
	}

	var validUntil any
	if r.ValidUntil != nil {
		validUntil = formatTime(*r.ValidUntil)
	}

	_, err = tx.Exec(`
		INSERT INTO relations (id, from_entity, to_entity, relation_type, weight, valid_from, valid_until, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.FromEntity, r.ToEntity, r.RelationType, r.Weight,
		formatTime(r.ValidFrom), validUntil, string(metadataJSON), formatTime(r.CreatedAt))
	if err != nil {
		if isForeignKeyViolation(err) {
			return memerr.StorageErr("InsertRelationWithinTx", memerr.ErrEntityNotFound)
		}
		return memerr.StorageErr("InsertRelationWithinTx", err)
	}
	return nil
}

func isForeignKeyViolation(err error) bool {
	sqliteErr, ok := err.(sqlite3.Error)
	if !ok {
		return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
}

// GetRelations returns relations between from and to for the given
// relation_type. If activeOnly, only the row with valid_until IS NULL (at
// most one) is returned.
func (d *Database) GetRelations(from, to, relationType string, activeOnly bool) ([]*Relation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	query := `SELECT ` + relationColumns + ` FROM relations WHERE from_entity = ? AND to_entity = ? AND relation_type = ?`
	args := []any{from, to, relationType}
	if activeOnly {
		query += ` AND valid_until IS NULL`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, memerr.StorageErr("GetRelations", err)
	}
	defer rows.Close()

	var relations []*Relation
	for rows.Next() {
		r, err := scanRelation(rows)
		if err != nil {
			return nil, memerr.StorageErr("GetRelations", err)
		}
		relations = append(relations, r)
	}
	return relations, nil
}

// RelationsForEntity returns every relation (outgoing or incoming) that
// references entityID, most recently created first, capped at limit.
func (d *Database) RelationsForEntity(entityID string, limit int) ([]*Relation, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}

	rows, err := d.db.Query(`
		SELECT `+relationColumns+` FROM relations
		WHERE from_entity = ? OR to_entity = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, entityID, entityID, limit)
	if err != nil {
		return nil, memerr.StorageErr("RelationsForEntity", err)
	}
	defer rows.Close()

	var relations []*Relation
	for rows.Next() {
		r, err := scanRelation(rows)
		if err != nil {
			return nil, memerr.StorageErr("RelationsForEntity", err)
		}
		relations = append(relations, r)
	}
	return relations, nil
}
