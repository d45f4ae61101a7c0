// Package aiprovider is the out-of-scope-per-spec, in-scope-per-ambient-stack
// collaborator the enrich worker calls out to: a small interface plus one
// concrete implementation backed by github.com/anthropics/anthropic-sdk-go,
// and a deterministic mock for when no API key is configured. The interface
// is the named boundary; only the default implementation lives here.
package aiprovider

import "context"

// EnrichmentResult is what an observation gets back from an AI pass: a
// short one-line subtitle richer than the deterministic title classify.go
// already derived, used by get_context and the timeline view.
type EnrichmentResult struct {
	Subtitle string
}

// Provider enriches a plain-text rendering of an observation. New never
// returns nil: an unknown name or a missing key yields a Mock. When
// enrichment is disabled (AGENTKITS_AI_ENRICHMENT=false) the CLI builds no
// Provider and the enrich worker receives nil, completing enrich tasks
// without writing a subtitle.
type Provider interface {
	EnrichObservation(ctx context.Context, text string) (EnrichmentResult, error)
}

// Config selects and parameterizes the default Provider.
type Config struct {
	Name    string // "claude-cli" | "openai" | "gemini" | "mock"
	APIKey  string
	BaseURL string
	Model   string
}

// New resolves Config into a Provider. Unknown or unconfigured providers
// fall back to Mock rather than erroring, mirroring the embedding client's
// "never reject the caller" contract — enrichment is a nice-to-have, not
// load-bearing for any invariant in §8.
func New(cfg Config) Provider {
	switch cfg.Name {
	case "claude-cli":
		if cfg.APIKey == "" {
			return Mock{}
		}
		return newAnthropicProvider(cfg)
	default:
		return Mock{}
	}
}
