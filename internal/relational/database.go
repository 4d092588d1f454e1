// Package relational implements the Relational Store: structured rows,
// full-text search over events, bi-temporal graph edges, and a watermark
// key/value table, backed by a single-writer SQLite connection.
package relational

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/synapsevault/memoryengine/internal/logging"
	"github.com/synapsevault/memoryengine/internal/memerr"
)

var log = logging.GetLogger("relational")

// Database is a process-wide single connection to the relational store.
type Database struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// Open opens (creating if necessary) the SQLite file at path with
// write-ahead logging, foreign-key enforcement, and a 5-second busy
// timeout, and configures the pool for a single writer.
func Open(path string) (*Database, error) {
	log.Info("opening relational store", "path", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, memerr.StorageErr("Open", fmt.Errorf("create data dir %s: %w", dir, err))
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, memerr.StorageErr("Open", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, memerr.StorageErr("Open", err)
	}

	return &Database{db: db, path: path}, nil
}

// InitSchema creates all tables, indexes, the full-text index, and its
// sync triggers. Running it against an already-initialized database is a
// no-op.
func (d *Database) InitSchema() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var tableName string
	err := d.db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='events' LIMIT 1`).Scan(&tableName)
	if err == nil && tableName != "" {
		log.Debug("schema already initialized")
		return nil
	}

	tx, err := d.db.Begin()
	if err != nil {
		return memerr.StorageErr("InitSchema", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(coreSchema); err != nil {
		return memerr.StorageErr("InitSchema", fmt.Errorf("core schema: %w", err))
	}
	if _, err := tx.Exec(ftsSchema); err != nil {
		return memerr.StorageErr("InitSchema", fmt.Errorf("fts schema: %w", err))
	}

	if _, err := tx.Exec(`INSERT OR REPLACE INTO schema_version (version, applied_at) VALUES (?, CURRENT_TIMESTAMP)`, SchemaVersion); err != nil {
		return memerr.StorageErr("InitSchema", err)
	}

	if err := tx.Commit(); err != nil {
		return memerr.StorageErr("InitSchema", err)
	}

	log.Info("relational schema initialized", "version", SchemaVersion)
	return nil
}

// Close closes the underlying connection.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// WithTx runs fn inside a single transaction, rolling back on any error
// fn returns (including a panic re-thrown after rollback) and committing
// otherwise.
func (d *Database) WithTx(fn func(tx *sql.Tx) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tx, err := d.db.Begin()
	if err != nil {
		return memerr.StorageErr("WithTx", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return memerr.StorageErr("WithTx", err)
	}
	return nil
}

// TableExists reports whether name is a known table.
func (d *Database) TableExists(name string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var count int
	err := d.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&count)
	if err != nil {
		return false, memerr.StorageErr("TableExists", err)
	}
	return count > 0, nil
}

// CountRows returns the row count of table. table must be a known,
// caller-trusted identifier (never built from external input) since
// SQLite does not support parameterized table names.
func (d *Database) CountRows(table string) (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
	if err := d.db.QueryRow(query).Scan(&count); err != nil {
		return 0, memerr.StorageErr("CountRows", err)
	}
	return count, nil
}

// Stats returns a single compound read over row counts and episodic
// bounds.
func (d *Database) Stats() (*Stats, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s := &Stats{}
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&s.EventCount); err != nil {
		return nil, memerr.StorageErr("Stats", err)
	}
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM entities`).Scan(&s.EntityCount); err != nil {
		return nil, memerr.StorageErr("Stats", err)
	}
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM relations`).Scan(&s.RelationCount); err != nil {
		return nil, memerr.StorageErr("Stats", err)
	}
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM reflections`).Scan(&s.ReflectionCount); err != nil {
		return nil, memerr.StorageErr("Stats", err)
	}

	var oldest, newest sql.NullString
	if err := d.db.QueryRow(`SELECT MIN(created_at), MAX(created_at) FROM events`).Scan(&oldest, &newest); err != nil {
		return nil, memerr.StorageErr("Stats", err)
	}
	if oldest.Valid {
		if t, err := time.Parse(time.RFC3339Nano, oldest.String); err == nil {
			s.OldestEventAt = &t
		}
	}
	if newest.Valid {
		if t, err := time.Parse(time.RFC3339Nano, newest.String); err == nil {
			s.NewestEventAt = &t
		}
	}

	return s, nil
}
