package embedding

import (
	"context"
	"sync"

	"github.com/synapsevault/memoryengine/internal/memerr"
)

// Lazy shares a single Provider instance across every caller, built on
// first use by factory. A failed build is cached and returned
// immediately to every subsequent caller without retrying factory,
// until Reset is called. This matches the single shared load with
// cached-failure fast-fail behavior the rest of the engine depends on
// for its embedding backend.
type Lazy struct {
	factory    func() (Provider, error)
	dimensions int

	mu       sync.Mutex
	provider Provider
	loadErr  error
	loaded   bool
}

// NewLazy constructs a Lazy around factory. dimensions is known
// up front (from configuration) so callers can validate vector shapes
// before the provider has ever been built.
func NewLazy(dimensions int, factory func() (Provider, error)) *Lazy {
	return &Lazy{factory: factory, dimensions: dimensions}
}

func (l *Lazy) resolve() (Provider, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.loaded {
		return l.provider, l.loadErr
	}

	p, err := l.factory()
	l.loaded = true
	if err != nil {
		l.loadErr = memerr.EmbeddingErr("embedding.Lazy", err)
		return nil, l.loadErr
	}
	l.provider = p
	return p, nil
}

// Embed loads the underlying provider on first call and delegates to
// it thereafter, sharing one load attempt across every caller.
func (l *Lazy) Embed(ctx context.Context, text string) ([]float32, error) {
	p, err := l.resolve()
	if err != nil {
		return nil, err
	}
	vec, err := p.Embed(ctx, text)
	if err != nil {
		return nil, memerr.EmbeddingErr("embedding.Lazy.Embed", err)
	}
	return vec, nil
}

// Dimensions returns the configured dimension, available even before
// the provider has been loaded.
func (l *Lazy) Dimensions() int {
	return l.dimensions
}

// Reset clears a cached failure (or a loaded provider) so the next
// Embed call retries factory from scratch.
func (l *Lazy) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.provider = nil
	l.loadErr = nil
	l.loaded = false
}
