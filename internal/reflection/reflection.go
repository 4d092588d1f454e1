// Package reflection implements the background Reflection loop: once an
// agent has accumulated enough importance-weighted events, it asks the
// configured LM for a handful of salient questions and synthesizes one
// insight per question, storing each as a Reflection grounded in the
// full set of events that triggered it.
package reflection

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/synapsevault/memoryengine/internal/embedding"
	"github.com/synapsevault/memoryengine/internal/ids"
	"github.com/synapsevault/memoryengine/internal/llmprovider"
	"github.com/synapsevault/memoryengine/internal/logging"
	"github.com/synapsevault/memoryengine/internal/relational"
	"github.com/synapsevault/memoryengine/internal/vectorstore"
)

var log = logging.GetLogger("reflection")

const (
	// InsightImportance is the fixed importance assigned to every
	// synthesized reflection.
	InsightImportance = 0.7
	// InsightDepth is constant: the engine does not yet build
	// reflections-of-reflections, so depth never exceeds 1.
	InsightDepth = 1

	maxUnreflectedEvents  = 500
	maxQuestionSourceSize = 50
	maxInsightSourceSize  = 30
	maxQuestions          = 3
)

// Engine runs the should-reflect check and the reflect procedure, gated
// on LM availability and serialized per agent so two concurrent callers
// never double-reflect the same agent.
type Engine struct {
	db        *relational.Database
	vectors   *vectorstore.Store
	embedder  embedding.Provider
	llm       llmprovider.Provider
	threshold float64

	mu     sync.Mutex
	active map[string]bool
}

// New constructs a reflection Engine. threshold is the importance-sum
// trigger from config (default 150).
func New(db *relational.Database, vectors *vectorstore.Store, embedder embedding.Provider, llm llmprovider.Provider, threshold float64) *Engine {
	return &Engine{
		db:        db,
		vectors:   vectors,
		embedder:  embedder,
		llm:       llm,
		threshold: threshold,
		active:    make(map[string]bool),
	}
}

// ShouldReflect reports whether agentID's unreflected events carry
// enough accumulated importance (sum(importance*10)) to cross the
// configured threshold.
func (e *Engine) ShouldReflect(agentID string) (bool, error) {
	if !e.llm.Available() {
		return false, nil
	}
	watermark, err := e.db.GetWatermark(relational.LastReflectedAtKey(agentID))
	if err != nil {
		return false, err
	}
	events, err := e.db.UnreflectedEvents(agentID, watermark, maxUnreflectedEvents)
	if err != nil {
		return false, err
	}
	var sum float64
	for _, ev := range events {
		sum += ev.Importance * 10
	}
	return sum >= e.threshold, nil
}

// Reflect runs the reflection procedure for agentID. Whatever force is,
// it is a no-op returning no insights if the LM is unavailable, if
// another reflection for this agent is already running (a concurrent
// call returns immediately rather than blocking), or if the agent has no
// unreflected events. force only skips the importance-threshold check.
func (e *Engine) Reflect(ctx context.Context, agentID string, force bool) ([]*relational.Reflection, error) {
	if !e.llm.Available() {
		return nil, nil
	}
	if !e.tryAcquire(agentID) {
		return nil, nil
	}
	defer e.release(agentID)

	watermark, err := e.db.GetWatermark(relational.LastReflectedAtKey(agentID))
	if err != nil {
		return nil, err
	}
	events, err := e.db.UnreflectedEvents(agentID, watermark, maxUnreflectedEvents)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}

	if !force {
		var sum float64
		for _, ev := range events {
			sum += ev.Importance * 10
		}
		if sum < e.threshold {
			return nil, nil
		}
	}

	sourceIDs := make([]string, len(events))
	for i, ev := range events {
		sourceIDs[i] = ev.ID
	}

	now := time.Now()
	var insights []*relational.Reflection

	questionWindow := events
	if len(questionWindow) > maxQuestionSourceSize {
		questionWindow = questionWindow[:maxQuestionSourceSize]
	}
	questions, err := e.askQuestions(ctx, questionWindow)
	if err != nil {
		log.Warn("failed to generate reflection questions", "agent_id", agentID, "error", err)
		questions = nil
	}

	insightWindow := events
	if len(insightWindow) > maxInsightSourceSize {
		insightWindow = insightWindow[:maxInsightSourceSize]
	}
	summaries := summarizeEvents(insightWindow)

	for _, q := range questions {
		content, err := e.llm.Complete(ctx, insightPrompt(q, summaries))
		if err != nil {
			log.Warn("failed to synthesize reflection insight", "agent_id", agentID, "question", q, "error", err)
			continue
		}
		content = strings.TrimSpace(content)
		if content == "" {
			continue
		}

		r := &relational.Reflection{
			ID:         ids.NewAt(now),
			Content:    content,
			SourceIDs:  sourceIDs,
			Importance: InsightImportance,
			Depth:      InsightDepth,
			CreatedAt:  now,
		}

		vec, err := e.embedder.Embed(ctx, content)
		if err != nil {
			log.Warn("failed to embed reflection, skipping insight", "agent_id", agentID, "error", err)
			continue
		}
		if err := e.db.InsertReflection(r); err != nil {
			log.Warn("failed to insert reflection", "agent_id", agentID, "error", err)
			continue
		}
		if err := e.vectors.Add(vectorstore.Record{
			MemoryID:   r.ID,
			MemoryType: vectorstore.Reflection,
			Vector:     vec,
			Content:    content,
			CreatedAt:  now,
		}); err != nil {
			log.Warn("failed to index reflection vector", "agent_id", agentID, "error", err)
		}
		insights = append(insights, r)
	}

	if err := e.db.SetWatermark(relational.LastReflectedAtKey(agentID), now); err != nil {
		log.Error("failed to advance reflection watermark", "agent_id", agentID, "error", err)
		return insights, err
	}
	if err := e.db.SetWatermark(relational.StateLastReflectionAt, now); err != nil {
		log.Error("failed to advance global reflection watermark", "agent_id", agentID, "error", err)
		return insights, err
	}

	return insights, nil
}

func (e *Engine) tryAcquire(agentID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active[agentID] {
		return false
	}
	e.active[agentID] = true
	return true
}

func (e *Engine) release(agentID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.active, agentID)
}

func (e *Engine) askQuestions(ctx context.Context, events []*relational.Event) ([]string, error) {
	summaries := summarizeEvents(events)
	raw, err := e.llm.Complete(ctx, questionsPrompt(summaries))
	if err != nil {
		return nil, err
	}
	return parseQuestions(raw), nil
}

func summarizeEvents(events []*relational.Event) string {
	var b strings.Builder
	for _, ev := range events {
		fmt.Fprintf(&b, "- [%s] %s\n", ev.EventType, ev.Content)
	}
	return b.String()
}

func questionsPrompt(summaries string) string {
	return fmt.Sprintf(
		"Given the following recent events, identify up to %d salient questions worth reflecting on. "+
			"Respond with one question per line, no numbering or commentary.\n\n%s",
		maxQuestions, summaries,
	)
}

func insightPrompt(question, summaries string) string {
	return fmt.Sprintf(
		"Question: %s\n\nRelevant events:\n%s\n\nWrite a single paragraph insight answering the question, "+
			"grounded only in the events above.",
		question, summaries,
	)
}

func parseQuestions(raw string) []string {
	lines := strings.Split(raw, "\n")
	var questions []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*0123456789. ")
		if line == "" {
			continue
		}
		questions = append(questions, line)
		if len(questions) >= maxQuestions {
			break
		}
	}
	return questions
}
