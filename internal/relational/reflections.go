package relational

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/synapsevault/memoryengine/internal/memerr"
)

const reflectionColumns = `id, content, source_ids, importance, depth, created_at, accessed_at, access_count`

func scanReflection(row interface {
	Scan(dest ...any) error
}) (*Reflection, error) {
	var r Reflection
	var sourceIDsJSON, createdAt string
	var accessedAt sql.NullString

	if err := row.Scan(&r.ID, &r.Content, &sourceIDsJSON, &r.Importance, &r.Depth,
		&createdAt, &accessedAt, &r.AccessCount); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(sourceIDsJSON), &r.SourceIDs); err != nil {
		r.SourceIDs = nil
	}
	if t, err := parseTime(createdAt); err == nil {
		r.CreatedAt = t
	}
	if accessedAt.Valid {
		if t, err := parseTime(accessedAt.String); err == nil {
			r.AccessedAt = &t
		}
	}
	return &r, nil
}

// InsertReflection writes a new reflection row.
func (d *Database) InsertReflection(r *Reflection) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	sourceIDsJSON, err := json.Marshal(r.SourceIDs)
	if err != nil {
		return memerr.StorageErr("InsertReflection", err)
	}

	_, err = d.db.Exec(`
		INSERT INTO reflections (id, content, source_ids, importance, depth, created_at, accessed_at, access_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Content, string(sourceIDsJSON), r.Importance, r.Depth, formatTime(r.CreatedAt), nil, 0)
	if err != nil {
		return memerr.StorageErr("InsertReflection", err)
	}
	return nil
}

// BatchGetReflections returns a mapping from id to reflection. An empty
// input returns an empty mapping without issuing a query.
func (d *Database) BatchGetReflections(ids []string) (map[string]*Reflection, error) {
	out := make(map[string]*Reflection, len(ids))
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

	query := "SELECT " + reflectionColumns + " FROM reflections WHERE id IN (" + strings.Join(placeholders, ",") + ")"
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, memerr.StorageErr("BatchGetReflections", err)
	}
	defer rows.Close()

	for rows.Next() {
		r, err := scanReflection(rows)
		if err != nil {
			return nil, memerr.StorageErr("BatchGetReflections", err)
		}
		out[r.ID] = r
	}
	return out, nil
}

// ListReflections returns every reflection row, used by the Repair pass
// to find reflections with no corresponding vector record.
func (d *Database) ListReflections() ([]*Reflection, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rows, err := d.db.Query(`SELECT ` + reflectionColumns + ` FROM reflections`)
	if err != nil {
		return nil, memerr.StorageErr("ListReflections", err)
	}
	defer rows.Close()

	var reflections []*Reflection
	for rows.Next() {
		r, err := scanReflection(rows)
		if err != nil {
			return nil, memerr.StorageErr("ListReflections", err)
		}
		reflections = append(reflections, r)
	}
	return reflections, nil
}

// TouchReflection sets accessed_at to now and increments access_count.
func (d *Database) TouchReflection(id string, now time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.db.Exec(`UPDATE reflections SET accessed_at = ?, access_count = access_count + 1 WHERE id = ?`, formatTime(now), id)
	if err != nil {
		return memerr.StorageErr("TouchReflection", err)
	}
	return nil
}
