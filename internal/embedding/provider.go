// Package embedding provides the embedding Provider abstraction used to
// turn event, entity, and reflection content into vectors for the
// Vector Store. The default backend talks to a local Ollama server; the
// provider itself is loaded lazily and shares a single cached instance
// (or cached failure) across every caller.
package embedding

import "context"

// Provider turns text into a fixed-dimensional vector.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}
