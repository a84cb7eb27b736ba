package enricher

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/cvbank/cvbank-backend/internal/cv/domain"
	"github.com/cvbank/cvbank-backend/internal/cv/llm"
	"github.com/cvbank/cvbank-backend/pkg/errors"
	"github.com/cvbank/cvbank-backend/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const longSummary = "Seasoned backend engineer with eight years of Go, PostgreSQL and event driven systems."

type reply struct {
	text string
	err  error
}

// fakeCompleter answers position and summary prompts by their token budget.
type fakeCompleter struct {
	mu       sync.Mutex
	position reply
	summary  reply
	requests []llm.Request
}

func (f *fakeCompleter) Model() string { return "test-model" }

func (f *fakeCompleter) Complete(ctx context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if req.MaxOutputTokens == positionMaxTokens {
		return f.position.text, f.position.err
	}
	return f.summary.text, f.summary.err
}

func (f *fakeCompleter) request(maxTokens int) llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r.MaxOutputTokens == maxTokens {
			return r
		}
	}
	return llm.Request{}
}

func newEnricher(f *fakeCompleter) *Enricher {
	return New(f, logger.Nop())
}

func TestEnrichPositionAndSummary_Success(t *testing.T) {
	f := &fakeCompleter{
		position: reply{text: "Position: Senior Go Developer"},
		summary:  reply{text: longSummary},
	}

	result, err := newEnricher(f).EnrichPositionAndSummary(context.Background(), "cv text")
	require.NoError(t, err)

	assert.Equal(t, "Senior Go Developer", result.Position)
	assert.Equal(t, longSummary, result.Summary)

	pos := f.request(positionMaxTokens)
	assert.InDelta(t, 0.3, pos.Temperature, 0.0001)
	sum := f.request(summaryMaxTokens)
	assert.InDelta(t, 0.7, sum.Temperature, 0.0001)
}

func TestEnrichPositionAndSummary_SummaryErrorKeepsPosition(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   string
	}{
		{"unauthorized", 401, errors.CodeUnauthorized},
		{"model not found", 404, errors.CodeModelNotFound},
		{"rate limited", 429, errors.CodeRateLimited},
		{"unavailable", 503, errors.CodeServiceUnavailable},
		{"server error", 500, errors.CodeGenerationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeCompleter{
				position: reply{text: "Data Analyst"},
				summary:  reply{err: &llm.StatusError{Provider: "fake", StatusCode: tt.status, Message: "boom"}},
			}

			result, err := newEnricher(f).EnrichPositionAndSummary(context.Background(), "cv text")
			require.Error(t, err)
			assert.Equal(t, tt.code, errors.CodeOf(err))
			assert.Equal(t, "Data Analyst", result.Position)
			assert.Empty(t, result.Summary)
		})
	}
}

func TestEnrichPositionAndSummary_PositionFailureIsNotSpecified(t *testing.T) {
	f := &fakeCompleter{
		position: reply{err: &llm.StatusError{StatusCode: 500, Message: "down"}},
		summary:  reply{text: longSummary},
	}

	result, err := newEnricher(f).EnrichPositionAndSummary(context.Background(), "cv text")
	require.NoError(t, err)
	assert.Equal(t, domain.NotSpecified, result.Position)
	assert.Equal(t, longSummary, result.Summary)
}

func TestGenerateSummary_TooShort(t *testing.T) {
	f := &fakeCompleter{summary: reply{text: "Too short."}}

	_, err := newEnricher(f).GenerateSummary(context.Background(), "cv text")
	require.Error(t, err)
	assert.Equal(t, errors.CodeGenerationFailed, errors.CodeOf(err))
}

func TestGenerateSummary_TruncatesLongText(t *testing.T) {
	f := &fakeCompleter{summary: reply{text: longSummary}}
	text := strings.Repeat("a", summaryWindow+500)

	_, err := newEnricher(f).GenerateSummary(context.Background(), text)
	require.NoError(t, err)

	prompt := f.request(summaryMaxTokens).Prompt
	assert.Contains(t, prompt, strings.Repeat("a", summaryWindow)+"...")
	assert.NotContains(t, prompt, strings.Repeat("a", summaryWindow+1))
}

func TestGenerateSummary_ShortTextNotSuffixed(t *testing.T) {
	f := &fakeCompleter{summary: reply{text: longSummary}}

	_, err := newEnricher(f).GenerateSummary(context.Background(), "brief cv")
	require.NoError(t, err)
	assert.NotContains(t, f.request(summaryMaxTokens).Prompt, "brief cv...")
}

func TestExtractPosition_UsesLeadingWindow(t *testing.T) {
	f := &fakeCompleter{position: reply{text: "Engineer"}}
	text := strings.Repeat("b", positionWindow) + "TAIL"

	assert.Equal(t, "Engineer", newEnricher(f).ExtractPosition(context.Background(), text))
	assert.NotContains(t, f.request(positionMaxTokens).Prompt, "TAIL")
}

func TestNormalizePosition(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Software Engineer", "Software Engineer"},
		{"  Position: Marketing Manager ", "Marketing Manager"},
		{"position:Data Scientist", "Data Scientist"},
		{"Job Title: QA Lead", "QA Lead"},
		{"JOB TITLE   Nurse", "Nurse"},
		{`"Product Owner"`, "Product Owner"},
		{"DevOps Engineer\nat Acme since 2019", "DevOps Engineer"},
		{strings.Repeat("x", 120), strings.Repeat("x", 120)},
		{"", domain.NotSpecified},
		{"X", domain.NotSpecified},
		{"Position:", domain.NotSpecified},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePosition(tt.in))
		})
	}
}
