package extractor

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cvbank/cvbank-backend/internal/cv/storage"
	"github.com/cvbank/cvbank-backend/pkg/errors"
	"github.com/cvbank/cvbank-backend/pkg/logger"
)

// maxDocumentBytes bounds how much of a stored file is read into memory.
const maxDocumentBytes = 64 << 20

// Extraction is the text pulled out of one document.
type Extraction struct {
	Text      string
	PageCount int
	Parser    string
}

// Parser decodes one family of document formats.
type Parser interface {
	// CanParse returns true if this parser handles the given media type
	CanParse(mediaType string) bool

	// Parse extracts plain text from the raw document bytes.
	Parse(ctx context.Context, data []byte) (*Extraction, error)

	// Name returns the parser name for logging
	Name() string
}

// Extractor reads stored CV files and dispatches them to the first parser
// registered for their media type. It never modifies the stored file.
type Extractor struct {
	files   storage.FileStore
	parsers []Parser
	logger  *logger.Logger
}

// New creates an extractor with the given parsers, consulted in order.
func New(files storage.FileStore, log *logger.Logger, parsers ...Parser) *Extractor {
	return &Extractor{
		files:   files,
		parsers: parsers,
		logger:  log.WithComponent("extractor"),
	}
}

// NewDefault creates an extractor for PDF, DOCX and legacy DOC files.
func NewDefault(files storage.FileStore, log *logger.Logger) *Extractor {
	docx := NewDOCXParser()
	return New(files, log, NewPDFParser(), docx, NewDOCParser(docx))
}

// Supports reports whether some registered parser accepts mediaType.
func (e *Extractor) Supports(mediaType string) bool {
	return e.find(mediaType) != nil
}

func (e *Extractor) find(mediaType string) Parser {
	for _, p := range e.parsers {
		if p.CanParse(mediaType) {
			return p
		}
	}
	return nil
}

// Extract returns the trimmed text of the file at locator.
// Unknown media types fail with an UNSUPPORTED_MEDIA_TYPE error and parser
// failures with an EXTRACTION_ERROR wrapping the cause. Short output is not an error.
func (e *Extractor) Extract(ctx context.Context, locator, mediaType string) (*Extraction, error) {
	parser := e.find(mediaType)
	if parser == nil {
		return nil, errors.UnsupportedMediaType(mediaType)
	}

	data, err := e.read(ctx, locator)
	if err != nil {
		return nil, err
	}

	result, err := parser.Parse(ctx, data)
	if err != nil {
		return nil, errors.ExtractionFailed(fmt.Errorf("%s: %w", parser.Name(), err))
	}

	result.Text = strings.TrimSpace(result.Text)
	result.Parser = parser.Name()

	e.logger.Debug().
		Str("parser", parser.Name()).
		Int("chars", len(result.Text)).
		Int("pages", result.PageCount).
		Msg("text extracted")

	return result, nil
}

// ExtractText is Extract without the metadata.
func (e *Extractor) ExtractText(ctx context.Context, locator, mediaType string) (string, error) {
	result, err := e.Extract(ctx, locator, mediaType)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

func (e *Extractor) read(ctx context.Context, locator string) ([]byte, error) {
	rc, err := e.files.Open(ctx, locator)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, errors.NotFound("CV file")
		}
		return nil, errors.Storage("failed to open CV file", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxDocumentBytes))
	if err != nil {
		return nil, errors.Storage("failed to read CV file", err)
	}
	return data, nil
}
