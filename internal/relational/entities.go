package relational

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/synapsevault/memoryengine/internal/memerr"
)

const entityColumns = `id, name, name_lower, entity_type, summary, observations, importance, created_at, updated_at, accessed_at, access_count`

func scanEntity(row interface {
	Scan(dest ...any) error
}) (*Entity, error) {
	var e Entity
	var nameLower, observationsJSON, createdAt, updatedAt string
	var summary sql.NullString
	var accessedAt sql.NullString

	if err := row.Scan(&e.ID, &e.Name, &nameLower, &e.EntityType, &summary,
		&observationsJSON, &e.Importance, &createdAt, &updatedAt, &accessedAt, &e.AccessCount); err != nil {
		return nil, err
	}

	if summary.Valid {
		e.Summary = &summary.String
	}
	if err := json.Unmarshal([]byte(observationsJSON), &e.Observations); err != nil {
		e.Observations = nil
	}
	if t, err := parseTime(createdAt); err == nil {
		e.CreatedAt = t
	}
	if t, err := parseTime(updatedAt); err == nil {
		e.UpdatedAt = t
	}
	if accessedAt.Valid {
		if t, err := parseTime(accessedAt.String); err == nil {
			e.AccessedAt = &t
		}
	}
	return &e, nil
}

// GetEntityByName looks up an entity case-insensitively by name, or
// returns nil if none exists.
func (d *Database) GetEntityByName(name string) (*Entity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	row := d.db.QueryRow(`SELECT `+entityColumns+` FROM entities WHERE name_lower = ?`, strings.ToLower(name))
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, memerr.StorageErr("GetEntityByName", err)
	}
	return e, nil
}

// GetEntity fetches a single entity by id, or nil if it does not exist.
func (d *Database) GetEntity(id string) (*Entity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	row := d.db.QueryRow(`SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)
	e, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, memerr.StorageErr("GetEntity", err)
	}
	return e, nil
}

// BatchGetEntities returns a mapping from id to entity. An empty input
// returns an empty mapping without issuing a query.
func (d *Database) BatchGetEntities(ids []string) (map[string]*Entity, error) {
	out := make(map[string]*Entity, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := "SELECT " + entityColumns + " FROM entities WHERE id IN (" + strings.Join(placeholders, ",") + ")"
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, memerr.StorageErr("BatchGetEntities", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, memerr.StorageErr("BatchGetEntities", err)
		}
		out[e.ID] = e
	}
	return out, nil
}

// UpsertEntityWithinTx writes e inside an already-open transaction. Callers
// (internal/semantic) are responsible for the merge logic described in
// spec §4.4; this method performs the raw write only.
func (d *Database) UpsertEntityWithinTx(tx *sql.Tx, e *Entity) error {
	observationsJSON, err := json.Marshal(e.Observations)
	if err != nil {
		return memerr.StorageErr("UpsertEntityWithinTx", err)
	}

	var summary any
	if e.Summary != nil {
		summary = *e.Summary
	}

	var accessedAt any
	if e.AccessedAt != nil {
		accessedAt = formatTime(*e.AccessedAt)
	}

	_, err = tx.Exec(`
		INSERT INTO entities (id, name, name_lower, entity_type, summary, observations, importance, created_at, updated_at, accessed_at, access_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name_lower) DO UPDATE SET
			entity_type = excluded.entity_type,
			summary = excluded.summary,
			observations = excluded.observations,
			importance = excluded.importance,
			updated_at = excluded.updated_at
	`, e.ID, e.Name, strings.ToLower(e.Name), e.EntityType, summary, string(observationsJSON),
		e.Importance, formatTime(e.CreatedAt), formatTime(e.UpdatedAt), accessedAt, e.AccessCount)
	if err != nil {
		return memerr.StorageErr("UpsertEntityWithinTx", err)
	}
	return nil
}

// TouchEntity sets accessed_at to now and increments access_count without
// modifying updated_at.
func (d *Database) TouchEntity(id string, now time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.db.Exec(`UPDATE entities SET accessed_at = ?, access_count = access_count + 1 WHERE id = ?`, formatTime(now), id)
	if err != nil {
		return memerr.StorageErr("TouchEntity", err)
	}
	return nil
}

// UpdateEntityAfterConsolidation replaces an entity's observations,
// summary, and updated_at following a consolidation pass. It does not
// touch accessed_at or access_count.
func (d *Database) UpdateEntityAfterConsolidation(e *Entity) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	observationsJSON, err := json.Marshal(e.Observations)
	if err != nil {
		return memerr.StorageErr("UpdateEntityAfterConsolidation", err)
	}
	var summary any
	if e.Summary != nil {
		summary = *e.Summary
	}

	_, err = d.db.Exec(`
		UPDATE entities SET observations = ?, summary = ?, updated_at = ?
		WHERE id = ?
	`, string(observationsJSON), summary, formatTime(e.UpdatedAt), e.ID)
	if err != nil {
		return memerr.StorageErr("UpdateEntityAfterConsolidation", err)
	}
	return nil
}

// ListEntities returns every entity row, used by the Consolidation Engine
// to iterate all entities each cycle.
func (d *Database) ListEntities() ([]*Entity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.Query(`SELECT ` + entityColumns + ` FROM entities`)
	if err != nil {
		return nil, memerr.StorageErr("ListEntities", err)
	}
	defer rows.Close()

	var entities []*Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, memerr.StorageErr("ListEntities", err)
		}
		entities = append(entities, e)
	}
	return entities, nil
}
