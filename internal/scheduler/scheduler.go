// Package scheduler runs the Reflection and Consolidation loops as two
// independent background timers, the way the engine is expected to run
// unattended for the lifetime of a process.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/synapsevault/memoryengine/internal/consolidation"
	"github.com/synapsevault/memoryengine/internal/logging"
	"github.com/synapsevault/memoryengine/internal/reflection"
)

var log = logging.GetLogger("scheduler")

// reflectionCheckInterval is how often each tracked agent is checked for
// should-reflect; it is intentionally much shorter than the
// consolidation interval since reflection is cheap to check and
// expensive only when it actually fires.
const reflectionCheckInterval = 5 * time.Minute

// DefaultAgentID is the agent checked for reflection when the caller does
// not track multiple agents explicitly.
const DefaultAgentID = "default"

// Scheduler owns the two background loops. Start/Stop are idempotent:
// calling Start twice without an intervening Stop is a no-op, and
// likewise for Stop.
type Scheduler struct {
	reflection            *reflection.Engine
	consolidation          *consolidation.Engine
	consolidationInterval time.Duration
	maxAgeDays            int
	agentIDs              []string

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New constructs a Scheduler. agentIDs lists the agents checked each
// reflection tick; if empty, DefaultAgentID is used.
func New(reflectionEngine *reflection.Engine, consolidationEngine *consolidation.Engine, consolidationInterval time.Duration, maxAgeDays int, agentIDs ...string) *Scheduler {
	if len(agentIDs) == 0 {
		agentIDs = []string{DefaultAgentID}
	}
	return &Scheduler{
		reflection:            reflectionEngine,
		consolidation:          consolidationEngine,
		consolidationInterval: consolidationInterval,
		maxAgeDays:            maxAgeDays,
		agentIDs:              agentIDs,
	}
}

// Start launches the reflection and consolidation loops in the
// background. Calling Start while already running is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})

	s.wg.Add(2)
	go s.runReflectionLoop(ctx)
	go s.runConsolidationLoop(ctx)
}

// Stop signals both loops to exit and waits for them to return. Calling
// Stop when not running is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Scheduler) runReflectionLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(reflectionCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkReflection(ctx)
		}
	}
}

func (s *Scheduler) checkReflection(ctx context.Context) {
	for _, agentID := range s.agentIDs {
		should, err := s.reflection.ShouldReflect(agentID)
		if err != nil {
			log.Warn("should-reflect check failed", "agent_id", agentID, "error", err)
			continue
		}
		if !should {
			continue
		}
		if _, err := s.reflection.Reflect(ctx, agentID, false); err != nil {
			log.Warn("reflection run failed", "agent_id", agentID, "error", err)
		}
	}
}

func (s *Scheduler) runConsolidationLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.consolidationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.consolidation.Run(ctx, s.maxAgeDays); err != nil {
				log.Warn("consolidation run failed", "error", err)
			}
		}
	}
}
