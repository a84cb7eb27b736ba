package enricher

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/cvbank/cvbank-backend/internal/cv/domain"
)

var (
	positionPrefix = regexp.MustCompile(`(?i)^position[:\s]*`)
	jobTitlePrefix = regexp.MustCompile(`(?i)^job title[:\s]*`)
)

const maxPositionLength = 100

// NormalizePosition cleans a raw model reply into a short job title.
func NormalizePosition(raw string) string {
	p := strings.TrimSpace(raw)
	p = positionPrefix.ReplaceAllString(p, "")
	p = jobTitlePrefix.ReplaceAllString(p, "")
	p = strings.TrimSpace(p)

	if utf8.RuneCountInString(p) > maxPositionLength || strings.Contains(p, "\n") {
		p, _, _ = strings.Cut(p, "\n")
	}
	p = strings.TrimSpace(strings.Trim(strings.TrimSpace(p), `"'`))

	if utf8.RuneCountInString(p) < 2 {
		return domain.NotSpecified
	}
	return p
}
