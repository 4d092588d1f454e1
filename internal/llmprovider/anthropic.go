package llmprovider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/synapsevault/memoryengine/internal/logging"
	"github.com/synapsevault/memoryengine/internal/ratelimit"
)

var log = logging.GetLogger("llmprovider")

const (
	defaultModel     = anthropic.ModelClaude3_5HaikuLatest
	defaultMaxTokens = 1024
	maxRetries       = 3
	initialBackoff   = 1 * time.Second

	// requestsPerSecond/burstSize bound reflection and consolidation
	// sweeps, which can otherwise call Complete once per agent or
	// entity in a tight loop and trip Anthropic's own rate limit.
	requestsPerSecond = 2.0
	burstSize         = 5.0
)

// AnthropicProvider talks to the Anthropic Messages API. A zero-value
// AnthropicProvider built without an API key reports Available() ==
// false so the engine can run entirely without it.
type AnthropicProvider struct {
	client  anthropic.Client
	model   anthropic.Model
	enabled bool
	limiter *ratelimit.Limiter
}

// NewAnthropicProvider constructs a provider. If apiKey is empty, the
// provider is still returned but reports Available() == false; callers
// are never forced to branch on construction errors just because the
// key is unset, since an unset key is the expected default.
func NewAnthropicProvider(apiKey string, model anthropic.Model) *AnthropicProvider {
	if apiKey == "" {
		return &AnthropicProvider{enabled: false}
	}
	if model == "" {
		model = defaultModel
	}
	return &AnthropicProvider{
		client:  anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:   model,
		enabled: true,
		limiter: ratelimit.NewLimiter(requestsPerSecond, burstSize),
	}
}

// Available reports whether the provider was constructed with an API
// key and can serve Complete calls.
func (p *AnthropicProvider) Available() bool {
	return p.enabled
}

// Complete sends prompt to the model and returns its text response,
// retrying on timeouts and 429/5xx responses with exponential backoff.
func (p *AnthropicProvider) Complete(ctx context.Context, prompt string) (string, error) {
	if !p.enabled {
		return "", errors.New("anthropic provider not configured: ANTHROPIC_API_KEY unset")
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return "", err
	}

	params := anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: defaultMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := initialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		message, err := p.client.Messages.New(ctx, params)
		if err == nil {
			if len(message.Content) == 0 {
				return "", errors.New("anthropic response had no content blocks")
			}
			block := message.Content[0]
			if block.Type != "text" {
				return "", fmt.Errorf("unexpected anthropic response block type %q", block.Type)
			}
			return block.Text, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !isRetryable(err) {
			return "", fmt.Errorf("anthropic request failed: %w", err)
		}
		log.Warn("anthropic request failed, retrying", "attempt", attempt+1, "error", err)
	}

	return "", fmt.Errorf("anthropic request failed after %d attempts: %w", maxRetries+1, lastErr)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
