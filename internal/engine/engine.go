// Package engine composes every memory component into a single handle:
// the relational store, the vector store, the embedding and LM
// providers, episodic/semantic memory, retrieval, reflection,
// consolidation, repair, and the background scheduler.
package engine

import (
	"context"
	"os"
	"path/filepath"

	"github.com/synapsevault/memoryengine/internal/consolidation"
	"github.com/synapsevault/memoryengine/internal/embedding"
	"github.com/synapsevault/memoryengine/internal/episodic"
	"github.com/synapsevault/memoryengine/internal/llmprovider"
	"github.com/synapsevault/memoryengine/internal/logging"
	"github.com/synapsevault/memoryengine/internal/memerr"
	"github.com/synapsevault/memoryengine/internal/relational"
	"github.com/synapsevault/memoryengine/internal/reflection"
	"github.com/synapsevault/memoryengine/internal/repair"
	"github.com/synapsevault/memoryengine/internal/retrieval"
	"github.com/synapsevault/memoryengine/internal/scheduler"
	"github.com/synapsevault/memoryengine/internal/semantic"
	"github.com/synapsevault/memoryengine/internal/vectorstore"
	"github.com/synapsevault/memoryengine/pkg/config"
)

var log = logging.GetLogger("engine")

// Engine is the composition root for the whole memory system. Callers
// reach every capability through its component accessors rather than
// through the Engine itself, which owns lifecycle only.
type Engine struct {
	cfg *config.Config

	db      *relational.Database
	vectors *vectorstore.Store

	embedder *embedding.Lazy
	llm      llmprovider.Provider

	episodic      *episodic.Store
	semantic      *semantic.Store
	retrieval     *retrieval.Engine
	reflection    *reflection.Engine
	consolidation *consolidation.Engine
	repair        *repair.Engine
	scheduler     *scheduler.Scheduler
}

// Open wires every component from cfg. The relational and vector stores
// are opened eagerly (cheap, local files); the embedding provider stays
// lazy behind embedding.Lazy so a missing Ollama server does not fail
// Open itself, only the first call that needs an embedding.
func Open(cfg *config.Config) (*Engine, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath()), 0o755); err != nil {
		return nil, memerr.ConfigurationErr("engine.Open", err)
	}
	if err := os.MkdirAll(cfg.VectorStoreDir(), 0o755); err != nil {
		return nil, memerr.ConfigurationErr("engine.Open", err)
	}

	db, err := relational.Open(cfg.DatabasePath())
	if err != nil {
		return nil, err
	}
	if err := db.InitSchema(); err != nil {
		db.Close()
		return nil, err
	}

	vectors, err := vectorstore.Open(cfg.VectorStorePath(), cfg.EmbeddingDimensions)
	if err != nil {
		db.Close()
		return nil, err
	}

	embedder := embedding.NewLazy(cfg.EmbeddingDimensions, func() (embedding.Provider, error) {
		return embedding.NewOllamaProvider("", cfg.EmbeddingModel, cfg.EmbeddingDimensions), nil
	})

	llm := llmprovider.NewAnthropicProvider(cfg.AnthropicAPIKey, "")

	episodicStore := episodic.New(db, vectors, embedder)
	semanticStore := semantic.New(db, vectors, embedder)
	retrievalEngine := retrieval.New(db, vectors, embedder, retrieval.Weights{
		Recency:    cfg.WeightRecency,
		Importance: cfg.WeightImportance,
		Relevance:  cfg.WeightRelevance,
	}, cfg.DecayRate)
	reflectionEngine := reflection.New(db, vectors, embedder, llm, cfg.ReflectionThreshold)
	consolidationEngine := consolidation.New(db, vectors, embedder, llm)
	repairEngine := repair.New(db, vectors, embedder)
	sched := scheduler.New(reflectionEngine, consolidationEngine, cfg.ConsolidationInterval, cfg.PruneAgeDays)

	return &Engine{
		cfg:           cfg,
		db:            db,
		vectors:       vectors,
		embedder:      embedder,
		llm:           llm,
		episodic:      episodicStore,
		semantic:      semanticStore,
		retrieval:     retrievalEngine,
		reflection:    reflectionEngine,
		consolidation: consolidationEngine,
		repair:        repairEngine,
		scheduler:     sched,
	}, nil
}

// Close releases the underlying store connections. It does not stop the
// scheduler; call StopBackground first if it was started.
func (e *Engine) Close() error {
	if err := e.vectors.Close(); err != nil {
		log.Warn("failed to close vector store", "error", err)
	}
	return e.db.Close()
}

// StartBackground launches the reflection and consolidation timers.
func (e *Engine) StartBackground(ctx context.Context) {
	e.scheduler.Start(ctx)
}

// StopBackground stops the reflection and consolidation timers and
// waits for them to exit.
func (e *Engine) StopBackground() {
	e.scheduler.Stop()
}

// Episodic returns the episodic memory component.
func (e *Engine) Episodic() *episodic.Store { return e.episodic }

// Semantic returns the semantic memory component.
func (e *Engine) Semantic() *semantic.Store { return e.semantic }

// Retrieval returns the unified recall engine.
func (e *Engine) Retrieval() *retrieval.Engine { return e.retrieval }

// Reflection returns the reflection engine.
func (e *Engine) Reflection() *reflection.Engine { return e.reflection }

// Consolidation returns the consolidation engine.
func (e *Engine) Consolidation() *consolidation.Engine { return e.consolidation }

// Repair returns the consistency-repair engine.
func (e *Engine) Repair() *repair.Engine { return e.repair }

// Config returns the configuration this Engine was opened with.
func (e *Engine) Config() *config.Config { return e.cfg }
