package consolidation

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/synapsevault/memoryengine/internal/relational"
	"github.com/synapsevault/memoryengine/internal/vectorstore"
)

const testDim = 4

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, testDim)
	for i, c := range text {
		vec[i%testDim] += float32(c % 5)
	}
	return vec, nil
}

func (fakeEmbedder) Dimensions() int { return testDim }

type fakeLLM struct {
	available bool
	response  string
}

func (f *fakeLLM) Available() bool { return f.available }

func (f *fakeLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return f.response, nil
}

func newTestEngine(t *testing.T, llm *fakeLLM) (*Engine, *relational.Database) {
	t.Helper()
	dir := t.TempDir()

	db, err := relational.Open(filepath.Join(dir, "memory.db"))
	if err != nil {
		t.Fatalf("relational.Open: %v", err)
	}
	if err := db.InitSchema(); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	vs, err := vectorstore.Open(filepath.Join(dir, "vectors.db"), testDim)
	if err != nil {
		t.Fatalf("vectorstore.Open: %v", err)
	}
	t.Cleanup(func() { vs.Close() })

	return New(db, vs, fakeEmbedder{}, llm), db
}

func TestRunPrunesObservationsToMostRecent20(t *testing.T) {
	llm := &fakeLLM{available: false}
	engine, db := newTestEngine(t, llm)

	observations := make([]string, 25)
	for i := range observations {
		observations[i] = fmt.Sprintf("Observation %d", i)
	}
	ent := &relational.Entity{
		ID:           "01ENTITY0000000000000001",
		Name:         "Alice",
		EntityType:   relational.EntityPerson,
		Observations: observations,
		Importance:   0.5,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := insertEntity(db, ent); err != nil {
		t.Fatalf("insertEntity: %v", err)
	}

	report, err := engine.Run(context.Background(), 90)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.ObservationsPrune != 1 {
		t.Fatalf("ObservationsPrune = %d, want 1", report.ObservationsPrune)
	}

	got, err := db.GetEntity(ent.ID)
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if len(got.Observations) != MaxObservations {
		t.Fatalf("Observations len = %d, want %d", len(got.Observations), MaxObservations)
	}
	if got.Observations[0] != "Observation 5" {
		t.Fatalf("Observations[0] = %q, want %q (the oldest 5 should have been dropped)", got.Observations[0], "Observation 5")
	}
}

func TestRunRefreshesSummaryWhenLLMAvailableAndSummaryMissing(t *testing.T) {
	llm := &fakeLLM{available: true, response: "Alice is a frequent collaborator."}
	engine, db := newTestEngine(t, llm)

	ent := &relational.Entity{
		ID:           "01ENTITY0000000000000002",
		Name:         "Alice",
		EntityType:   relational.EntityPerson,
		Observations: []string{"likes coffee"},
		Importance:   0.5,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := insertEntity(db, ent); err != nil {
		t.Fatalf("insertEntity: %v", err)
	}

	report, err := engine.Run(context.Background(), 90)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.SummariesRefresh != 1 {
		t.Fatalf("SummariesRefresh = %d, want 1", report.SummariesRefresh)
	}

	got, err := db.GetEntity(ent.ID)
	if err != nil {
		t.Fatalf("GetEntity: %v", err)
	}
	if got.Summary == nil || *got.Summary != llm.response {
		t.Fatalf("Summary = %v, want %q", got.Summary, llm.response)
	}
}

func TestRunSkipsSummaryRefreshWhenLLMUnavailable(t *testing.T) {
	llm := &fakeLLM{available: false}
	engine, db := newTestEngine(t, llm)

	ent := &relational.Entity{
		ID:           "01ENTITY0000000000000003",
		Name:         "Bob",
		EntityType:   relational.EntityPerson,
		Observations: []string{"likes tea"},
		Importance:   0.5,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	if err := insertEntity(db, ent); err != nil {
		t.Fatalf("insertEntity: %v", err)
	}

	report, err := engine.Run(context.Background(), 90)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.SummariesRefresh != 0 {
		t.Fatalf("SummariesRefresh = %d, want 0", report.SummariesRefresh)
	}
}

func TestRunAdvancesConsolidationWatermark(t *testing.T) {
	llm := &fakeLLM{available: false}
	engine, db := newTestEngine(t, llm)

	before, err := db.GetWatermark(relational.StateLastConsolidation)
	if err != nil {
		t.Fatalf("GetWatermark: %v", err)
	}
	if _, err := engine.Run(context.Background(), 90); err != nil {
		t.Fatalf("Run: %v", err)
	}
	after, err := db.GetWatermark(relational.StateLastConsolidation)
	if err != nil {
		t.Fatalf("GetWatermark: %v", err)
	}
	if !after.After(before) {
		t.Fatal("expected consolidation watermark to advance")
	}
}

func insertEntity(db *relational.Database, e *relational.Entity) error {
	return db.WithTx(func(tx *sql.Tx) error {
		return db.UpsertEntityWithinTx(tx, e)
	})
}
