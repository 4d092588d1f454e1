// Package testutil provides shared test fixtures for the memory engine's
// own package tests: a disposable pair of relational/vector stores, and
// small assertion helpers in the teacher's plain-testing style.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/synapsevault/memoryengine/internal/relational"
	"github.com/synapsevault/memoryengine/internal/vectorstore"
)

// OpenStores opens a fresh relational database and vector store under a
// t.TempDir, with schema already initialized, and registers cleanup.
func OpenStores(t *testing.T, dimensions int) (*relational.Database, *vectorstore.Store) {
	t.Helper()
	dir := t.TempDir()

	db, err := relational.Open(filepath.Join(dir, "memory.db"))
	if err != nil {
		t.Fatalf("relational.Open: %v", err)
	}
	if err := db.InitSchema(); err != nil {
		db.Close()
		t.Fatalf("InitSchema: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	vs, err := vectorstore.Open(filepath.Join(dir, "vectors.db"), dimensions)
	if err != nil {
		t.Fatalf("vectorstore.Open: %v", err)
	}
	t.Cleanup(func() { vs.Close() })

	return db, vs
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected an error, got nil")
	}
}
