// Package llm provides text completion clients for the enrichment pipeline.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/cvbank/cvbank-backend/pkg/config"
	"github.com/cvbank/cvbank-backend/pkg/logger"
)

// Request is a single-turn completion request.
type Request struct {
	Prompt          string
	Temperature     float32
	MaxOutputTokens int
}

// Completer sends a prompt to a language model and returns its text reply.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
	Model() string
}

// StatusError is a non-success response from a completion provider.
type StatusError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
}

// StatusCode returns the provider HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// New builds the completer selected by cfg.Provider.
func New(ctx context.Context, cfg config.AIConfig, log *logger.Logger) (Completer, error) {
	switch cfg.Provider {
	case config.ProviderGroq:
		return NewGroq(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Timeout), nil
	case config.ProviderGemini:
		return NewGemini(ctx, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
}

// Ping issues a tiny completion to verify credentials and model.
func Ping(ctx context.Context, c Completer) error {
	_, err := c.Complete(ctx, Request{Prompt: "test", MaxOutputTokens: 5})
	return err
}
