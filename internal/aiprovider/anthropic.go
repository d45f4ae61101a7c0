package aiprovider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"
)

const (
	defaultModel  = "claude-3-5-haiku-20241022"
	maxRetries    = 3
	enrichTimeout = 15 * time.Second
)

// anthropicProvider enriches observations via the Messages API, retrying
// transient failures with an exponential backoff instead of the donor's
// hand-rolled doubling loop.
type anthropicProvider struct {
	client anthropic.Client
	model  anthropic.Model
}

func newAnthropicProvider(cfg Config) Provider {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &anthropicProvider{
		client: anthropic.NewClient(opts...),
		model:  anthropic.Model(model),
	}
}

func (p *anthropicProvider) EnrichObservation(ctx context.Context, text string) (EnrichmentResult, error) {
	ctx, cancel := context.WithTimeout(ctx, enrichTimeout)
	defer cancel()

	prompt := fmt.Sprintf(
		"Summarize the following coding-assistant tool observation as a single line of at most 12 words, "+
			"no preamble, no quotes:\n\n%s", text,
	)

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries)
	bo = backoff.WithContext(bo, ctx)

	var subtitle string
	err := backoff.Retry(func() error {
		message, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
			Model:     p.model,
			MaxTokens: 64,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if err != nil {
			if !isRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		if len(message.Content) == 0 || message.Content[0].Type != "text" {
			return backoff.Permanent(fmt.Errorf("unexpected anthropic response shape"))
		}
		subtitle = message.Content[0].Text
		return nil
	}, bo)
	if err != nil {
		return EnrichmentResult{}, fmt.Errorf("anthropic enrich: %w", err)
	}
	return EnrichmentResult{Subtitle: subtitle}, nil
}

func isRetryable(err error) bool {
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
