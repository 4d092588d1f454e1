package relational

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/synapsevault/memoryengine/internal/memerr"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// InsertEvent writes a new, immutable event row.
func (d *Database) InsertEvent(e *Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	entitiesJSON, err := json.Marshal(e.Entities)
	if err != nil {
		return memerr.StorageErr("InsertEvent", err)
	}
	metadataJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return memerr.StorageErr("InsertEvent", err)
	}

	_, err = d.db.Exec(`
		INSERT INTO events (id, agent_id, event_type, content, importance, entities, metadata, created_at, accessed_at, access_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.AgentID, string(e.EventType), e.Content, e.Importance,
		string(entitiesJSON), string(metadataJSON), formatTime(e.CreatedAt), nil, 0)
	if err != nil {
		return memerr.StorageErr("InsertEvent", err)
	}
	return nil
}

// ListEvents returns every event row, used by the Repair pass to find
// events with no corresponding vector record.
func (d *Database) ListEvents() ([]*Event, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.Query(`SELECT ` + eventColumns + ` FROM events`)
	if err != nil {
		return nil, memerr.StorageErr("ListEvents", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, memerr.StorageErr("ListEvents", err)
		}
		events = append(events, e)
	}
	return events, nil
}

// DeleteEvent removes an event row by id. Used for the episodic append
// path's compensating delete when embedding fails after the row write.
func (d *Database) DeleteEvent(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.db.Exec(`DELETE FROM events WHERE id = ?`, id); err != nil {
		return memerr.StorageErr("DeleteEvent", err)
	}
	return nil
}

func scanEvent(row interface {
	Scan(dest ...any) error
}) (*Event, error) {
	var e Event
	var entitiesJSON, metadataJSON, createdAt string
	var accessedAt sql.NullString

	if err := row.Scan(&e.ID, &e.AgentID, &e.EventType, &e.Content, &e.Importance,
		&entitiesJSON, &metadataJSON, &createdAt, &accessedAt, &e.AccessCount); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(entitiesJSON), &e.Entities); err != nil {
		e.Entities = nil
	}
	if err := json.Unmarshal([]byte(metadataJSON), &e.Metadata); err != nil {
		e.Metadata = nil
	}
	if t, err := parseTime(createdAt); err == nil {
		e.CreatedAt = t
	}
	if accessedAt.Valid {
		if t, err := parseTime(accessedAt.String); err == nil {
			e.AccessedAt = &t
		}
	}

	return &e, nil
}

const eventColumns = `id, agent_id, event_type, content, importance, entities, metadata, created_at, accessed_at, access_count`

// GetEvent fetches a single event by id, or nil if it does not exist.
func (d *Database) GetEvent(id string) (*Event, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	row := d.db.QueryRow(`SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, memerr.StorageErr("GetEvent", err)
	}
	return e, nil
}

// BatchGetEvents returns a mapping from id to event for the given ids. An
// empty input returns an empty mapping without issuing a query.
func (d *Database) BatchGetEvents(ids []string) (map[string]*Event, error) {
	out := make(map[string]*Event, len(ids))
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

	query := fmt.Sprintf(`SELECT %s FROM events WHERE id IN (%s)`, eventColumns, strings.Join(placeholders, ","))
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, memerr.StorageErr("BatchGetEvents", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, memerr.StorageErr("BatchGetEvents", err)
		}
		out[e.ID] = e
	}
	return out, nil
}

// TouchEvent sets accessed_at to now and increments access_count. It never
// modifies any other column.
func (d *Database) TouchEvent(id string, now time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.db.Exec(`UPDATE events SET accessed_at = ?, access_count = access_count + 1 WHERE id = ?`, formatTime(now), id)
	if err != nil {
		return memerr.StorageErr("TouchEvent", err)
	}
	return nil
}

// SearchEventsFTS runs a full-text search over event content, ranked by
// the store's native ranking. A parse error from the FTS layer (e.g. an
// unbalanced quote) fails soft: it logs a warning and returns an empty
// list rather than surfacing to the caller.
func (d *Database) SearchEventsFTS(query string, limit int) ([]*Event, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	rows, err := d.db.Query(`
		SELECT `+prefixColumns("e", eventColumns)+`
		FROM events_fts fts
		JOIN events e ON e.id = fts.id
		WHERE events_fts MATCH ?
		ORDER BY bm25(events_fts)
		LIMIT ?
	`, query, limit)
	if err != nil {
		log.Warn("full-text search parse error, returning empty result", "error", err, "query", query)
		return []*Event{}, nil
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, memerr.StorageErr("SearchEventsFTS", err)
		}
		events = append(events, e)
	}
	return events, nil
}

func prefixColumns(alias, cols string) string {
	parts := strings.Split(cols, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}

// UnreflectedEvents returns events for agentID whose created_at is
// strictly greater than watermark, newest first, capped at limit.
func (d *Database) UnreflectedEvents(agentID string, watermark time.Time, limit int) ([]*Event, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if limit <= 0 {
		limit = 500
	}

	rows, err := d.db.Query(`
		SELECT `+eventColumns+` FROM events
		WHERE agent_id = ? AND created_at > ?
		ORDER BY created_at DESC
		LIMIT ?
	`, agentID, formatTime(watermark), limit)
	if err != nil {
		return nil, memerr.StorageErr("UnreflectedEvents", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, memerr.StorageErr("UnreflectedEvents", err)
		}
		events = append(events, e)
	}
	return events, nil
}

// Timeline returns a range query over (agent_id, created_at) with an
// optional event type filter, newest first.
func (d *Database) Timeline(agentID string, eventType string, limit int) ([]*Event, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	query := `SELECT ` + eventColumns + ` FROM events WHERE agent_id = ?`
	args := []any{agentID}
	if eventType != "" {
		query += ` AND event_type = ?`
		args = append(args, eventType)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, memerr.StorageErr("Timeline", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, memerr.StorageErr("Timeline", err)
		}
		events = append(events, e)
	}
	return events, nil
}
