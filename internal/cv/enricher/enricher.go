// Package enricher derives a job position and a summary from CV text using a
// language model.
package enricher

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/cvbank/cvbank-backend/internal/cv/domain"
	"github.com/cvbank/cvbank-backend/internal/cv/llm"
	"github.com/cvbank/cvbank-backend/pkg/errors"
	"github.com/cvbank/cvbank-backend/pkg/logger"
)

const (
	positionWindow   = 2000
	summaryWindow    = 12000
	minSummaryLength = 50

	positionTemperature = 0.3
	positionMaxTokens   = 50
	summaryTemperature  = 0.7
	summaryMaxTokens    = 400
)

// Result is the outcome of one enrichment. Position is always set.
type Result struct {
	Position string
	Summary  string
}

// Enricher issues the position and summary prompts.
type Enricher struct {
	llm    llm.Completer
	logger *logger.Logger
}

func New(completer llm.Completer, log *logger.Logger) *Enricher {
	return &Enricher{
		llm:    completer,
		logger: log.WithComponent("enricher"),
	}
}

// ExtractPosition returns the normalized job title found in text. Any provider
// failure yields domain.NotSpecified.
func (e *Enricher) ExtractPosition(ctx context.Context, text string) string {
	raw, err := e.llm.Complete(ctx, llm.Request{
		Prompt:          positionPrompt(headRunes(text, positionWindow)),
		Temperature:     positionTemperature,
		MaxOutputTokens: positionMaxTokens,
	})
	if err != nil {
		e.logger.Warn().Err(err).Msg("position extraction failed")
		return domain.NotSpecified
	}
	return NormalizePosition(raw)
}

// GenerateSummary returns a structured summary of text or a classified
// provider error.
func (e *Enricher) GenerateSummary(ctx context.Context, text string) (string, error) {
	input := headRunes(text, summaryWindow)
	if len(input) < len(text) {
		input += "..."
	}

	summary, err := e.llm.Complete(ctx, llm.Request{
		Prompt:          summaryPrompt(input),
		Temperature:     summaryTemperature,
		MaxOutputTokens: summaryMaxTokens,
	})
	if err != nil {
		return "", e.classify(err)
	}
	if len([]rune(summary)) < minSummaryLength {
		return "", errors.GenerationFailed("Failed to generate summary: generated summary is too short")
	}
	return summary, nil
}

// EnrichPositionAndSummary runs both prompts concurrently. On error the
// returned Result still carries the position.
func (e *Enricher) EnrichPositionAndSummary(ctx context.Context, text string) (Result, error) {
	var (
		g       errgroup.Group
		result  Result
		summary string
	)

	g.Go(func() error {
		result.Position = e.ExtractPosition(ctx, text)
		return nil
	})
	g.Go(func() error {
		var err error
		summary, err = e.GenerateSummary(ctx, text)
		return err
	})

	if err := g.Wait(); err != nil {
		return result, err
	}
	result.Summary = summary
	return result, nil
}

func (e *Enricher) classify(err error) *errors.AppError {
	var appErr *errors.AppError
	switch llm.StatusCode(err) {
	case http.StatusUnauthorized:
		appErr = errors.Unauthorized("Invalid AI provider API key. Check the configured API key.")
	case http.StatusTooManyRequests:
		appErr = errors.RateLimited("AI provider rate limit exceeded. Please try again later.")
	case http.StatusServiceUnavailable:
		appErr = errors.ServiceUnavailable("AI provider is temporarily unavailable. Please try again later.")
	case http.StatusNotFound:
		appErr = errors.ModelNotFound(fmt.Sprintf("AI model %q not found or invalid.", e.llm.Model()))
	default:
		appErr = errors.GenerationFailed(fmt.Sprintf("Failed to generate summary: %v", err))
	}
	appErr.Err = fmt.Errorf("%w: %w", appErr.Err, err)

	e.logger.Warn().Err(err).Str("code", appErr.Code).Msg("summary generation failed")
	return appErr
}

// headRunes returns at most n leading characters of s.
func headRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
