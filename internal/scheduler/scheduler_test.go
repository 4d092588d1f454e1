package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/synapsevault/memoryengine/internal/consolidation"
	"github.com/synapsevault/memoryengine/internal/reflection"
	"github.com/synapsevault/memoryengine/internal/testutil"
)

const testDim = 4

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, testDim), nil
}

func (fakeEmbedder) Dimensions() int { return testDim }

type fakeLLM struct{ available bool }

func (f *fakeLLM) Available() bool { return f.available }

func (f *fakeLLM) Complete(ctx context.Context, prompt string) (string, error) {
	return "", nil
}

func newEngines(t *testing.T) (*reflection.Engine, *consolidation.Engine) {
	t.Helper()
	db, vs := testutil.OpenStores(t, testDim)

	llm := &fakeLLM{available: false}
	embedder := fakeEmbedder{}

	return reflection.New(db, vs, embedder, llm, 150), consolidation.New(db, vs, embedder, llm)
}

func TestStartStopIsIdempotent(t *testing.T) {
	reflEngine, consolEngine := newEngines(t)
	s := New(reflEngine, consolEngine, time.Hour, 90)

	ctx := context.Background()
	s.Start(ctx)
	s.Start(ctx) // second call should be a no-op, not a second pair of loops

	s.Stop()
	s.Stop() // second call should be a no-op, not a panic on double-close
}

func TestStopReturnsAfterLoopsExit(t *testing.T) {
	reflEngine, consolEngine := newEngines(t)
	s := New(reflEngine, consolEngine, time.Hour, 90)

	ctx := context.Background()
	s.Start(ctx)

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return in time")
	}
}

func TestDefaultAgentIDUsedWhenNoneProvided(t *testing.T) {
	reflEngine, consolEngine := newEngines(t)
	s := New(reflEngine, consolEngine, time.Hour, 90)

	if len(s.agentIDs) != 1 || s.agentIDs[0] != DefaultAgentID {
		t.Fatalf("agentIDs = %v, want [%q]", s.agentIDs, DefaultAgentID)
	}
}
