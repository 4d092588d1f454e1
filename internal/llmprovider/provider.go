// Package llmprovider wraps the language model used for importance
// scoring, reflection insight synthesis, and consolidation summaries.
// The engine is fully functional without it: every caller checks
// Available() first and falls back to a documented default rather than
// blocking on an LM call.
package llmprovider

import "context"

// Provider completes a single prompt into a text response.
type Provider interface {
	Available() bool
	Complete(ctx context.Context, prompt string) (string, error)
}
