package completion

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/assistd/internal/config"
)

// NewFromConfig builds the configured provider.
func NewFromConfig(ctx context.Context, cfg config.ProviderConfig) (Completer, error) {
	var (
		c   Completer
		err error
	)

	switch cfg.Name {
	case "", "disabled":
		return Unavailable{}, nil
	case "gemini":
		c, err = NewGemini(ctx, cfg.APIKey.Value(), cfg.Model)
	case "openai":
		c, err = NewOpenAI(cfg.APIKey.Value(), cfg.Model, cfg.BaseURL)
	case "anthropic":
		c, err = NewAnthropic(cfg.APIKey.Value(), AnthropicOptions{
			Model:      cfg.Model,
			BaseURL:    cfg.BaseURL,
			Timeout:    cfg.Timeout,
			MaxRetries: cfg.MaxRetries,
		})
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Name)
	}
	if err != nil {
		return nil, err
	}

	if cfg.RateLimit > 0 {
		c = NewRateLimited(c, cfg.RateLimit, cfg.Burst)
	}
	return c, nil
}

// Unavailable always fails. Every conversation falls back to the variant's
// error reply.
type Unavailable struct{}

// Complete returns ErrUnavailable.
func (Unavailable) Complete(context.Context, Request) (string, error) {
	return "", ErrUnavailable
}
