// Package vectorstore persists vector records in an embedded sqlite-vec
// virtual table. It implements the Vector Store contract: a single
// `memories` table holding (vector, memory_id, memory_type, content,
// created_at), created lazily on first use, with add/search/delete/count
// operations and structural id and dimension validation at the boundary.
package vectorstore

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/synapsevault/memoryengine/internal/ids"
	"github.com/synapsevault/memoryengine/internal/logging"
	"github.com/synapsevault/memoryengine/internal/memerr"
)

var log = logging.GetLogger("vectorstore")

func init() {
	sqlite_vec.Auto()
}

// Store is a single-connection handle onto the memories vec0 table. The
// table name is kept as "memories" for parity with the directory name
// the rest of the system persists vectors under, even though the
// backing engine is sqlite-vec rather than an LSM vector database.
type Store struct {
	db        *sql.DB
	dimension int

	once      sync.Once
	ensureErr error
}

// Open opens (creating if necessary) the sqlite-vec database at path.
// The table itself is not created until the first Add/AddBatch/Search
// call, per the lazy-creation contract.
func Open(path string, dimension int) (*Store, error) {
	if dimension <= 0 {
		return nil, memerr.ConfigurationErr("vectorstore.Open", fmt.Errorf("dimension must be positive, got %d", dimension))
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, memerr.StorageErr("vectorstore.Open", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, memerr.StorageErr("vectorstore.Open", err)
	}

	return &Store{db: db, dimension: dimension}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ensureTable creates the memories virtual table on first use. Later
// calls observe the cached result of the first attempt, a one-shot
// latch matching the lazy-creation contract in spec.
func (s *Store) ensureTable() error {
	s.once.Do(func() {
		ddl := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS memories USING vec0(
			vector float[%d],
			+memory_id TEXT,
			+memory_type TEXT,
			+content TEXT,
			+created_at TEXT
		)`, s.dimension)
		_, err := s.db.Exec(ddl)
		if err != nil {
			s.ensureErr = memerr.StorageErr("vectorstore.ensureTable", err)
			return
		}
		log.Debug("memories table ensured", "dimension", s.dimension)
	})
	return s.ensureErr
}

func (s *Store) validate(r Record) error {
	if !ids.Valid(r.MemoryID) {
		return memerr.StorageErr("vectorstore.validate", fmt.Errorf("invalid memory id %q", r.MemoryID))
	}
	if !IsValidMemoryType(r.MemoryType) {
		return memerr.StorageErr("vectorstore.validate", fmt.Errorf("invalid memory type %q", r.MemoryType))
	}
	if len(r.Vector) != s.dimension {
		return memerr.StorageErr("vectorstore.validate", fmt.Errorf("vector has %d dimensions, want %d", len(r.Vector), s.dimension))
	}
	return nil
}

// Add inserts a single vector record.
func (s *Store) Add(r Record) error {
	if err := s.validate(r); err != nil {
		return err
	}
	if err := s.ensureTable(); err != nil {
		return err
	}

	blob, err := sqlite_vec.SerializeFloat32(r.Vector)
	if err != nil {
		return memerr.StorageErr("vectorstore.Add", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO memories (vector, memory_id, memory_type, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, blob, r.MemoryID, string(r.MemoryType), r.Content, r.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return memerr.StorageErr("vectorstore.Add", err)
	}
	return nil
}

// AddBatch inserts multiple records within a single transaction. An
// empty input is a no-op.
func (s *Store) AddBatch(records []Record) error {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if err := s.validate(r); err != nil {
			return err
		}
	}
	if err := s.ensureTable(); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return memerr.StorageErr("vectorstore.AddBatch", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO memories (vector, memory_id, memory_type, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return memerr.StorageErr("vectorstore.AddBatch", err)
	}
	defer stmt.Close()

	for _, r := range records {
		blob, err := sqlite_vec.SerializeFloat32(r.Vector)
		if err != nil {
			return memerr.StorageErr("vectorstore.AddBatch", err)
		}
		if _, err := stmt.Exec(blob, r.MemoryID, string(r.MemoryType), r.Content, r.CreatedAt.UTC().Format(time.RFC3339Nano)); err != nil {
			return memerr.StorageErr("vectorstore.AddBatch", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return memerr.StorageErr("vectorstore.AddBatch", err)
	}
	return nil
}

// Search returns the limit nearest records to query by ascending L2
// distance. If memoryType is non-nil, results are restricted to that
// type.
func (s *Store) Search(query []float32, limit int, memoryType *MemoryType) ([]SearchHit, error) {
	if len(query) != s.dimension {
		return nil, memerr.StorageErr("vectorstore.Search", fmt.Errorf("query vector has %d dimensions, want %d", len(query), s.dimension))
	}
	if limit <= 0 {
		return nil, nil
	}
	if err := s.ensureTable(); err != nil {
		return nil, err
	}

	blob, err := sqlite_vec.SerializeFloat32(query)
	if err != nil {
		return nil, memerr.StorageErr("vectorstore.Search", err)
	}

	query_ := `
		SELECT memory_id, memory_type, content, created_at, distance
		FROM memories
		WHERE vector MATCH ? AND k = ?`
	args := []any{blob, limit}
	if memoryType != nil {
		query_ += ` AND memory_type = ?`
		args = append(args, string(*memoryType))
	}
	query_ += ` ORDER BY distance ASC`

	rows, err := s.db.Query(query_, args...)
	if err != nil {
		return nil, memerr.StorageErr("vectorstore.Search", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var h SearchHit
		var memType, createdAt string
		if err := rows.Scan(&h.MemoryID, &memType, &h.Content, &createdAt, &h.Distance); err != nil {
			return nil, memerr.StorageErr("vectorstore.Search", err)
		}
		h.MemoryType = MemoryType(memType)
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			h.CreatedAt = t
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, memerr.StorageErr("vectorstore.Search", err)
	}
	return hits, nil
}

// Delete removes the record with the given memory id, if any.
func (s *Store) Delete(memoryID string) error {
	if !ids.Valid(memoryID) {
		return memerr.StorageErr("vectorstore.Delete", fmt.Errorf("invalid memory id %q", memoryID))
	}
	if err := s.ensureTable(); err != nil {
		return err
	}
	_, err := s.db.Exec(`DELETE FROM memories WHERE memory_id = ?`, memoryID)
	if err != nil {
		return memerr.StorageErr("vectorstore.Delete", err)
	}
	return nil
}

// ListIDs returns the (memory_id, memory_type) of every stored vector,
// used by the Repair pass to find vectors with no owning relational row.
func (s *Store) ListIDs() ([]IDRecord, error) {
	if err := s.ensureTable(); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`SELECT memory_id, memory_type FROM memories`)
	if err != nil {
		return nil, memerr.StorageErr("vectorstore.ListIDs", err)
	}
	defer rows.Close()

	var out []IDRecord
	for rows.Next() {
		var rec IDRecord
		var memType string
		if err := rows.Scan(&rec.MemoryID, &memType); err != nil {
			return nil, memerr.StorageErr("vectorstore.ListIDs", err)
		}
		rec.MemoryType = MemoryType(memType)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, memerr.StorageErr("vectorstore.ListIDs", err)
	}
	return out, nil
}

// Count returns the total number of vector records stored.
func (s *Store) Count() (int, error) {
	if err := s.ensureTable(); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM memories`).Scan(&n); err != nil {
		return 0, memerr.StorageErr("vectorstore.Count", err)
	}
	return n, nil
}
