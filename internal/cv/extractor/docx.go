package extractor

import (
	"bytes"
	"context"
	"fmt"

	"code.sajari.com/docconv"

	"github.com/cvbank/cvbank-backend/internal/cv/domain"
)

// DOCXParser reads the body, header and footer parts of an Office Open XML
// file through docconv.
type DOCXParser struct{}

func NewDOCXParser() *DOCXParser {
	return &DOCXParser{}
}

func (p *DOCXParser) Name() string { return "docx" }

func (p *DOCXParser) CanParse(mediaType string) bool {
	return mediaType == domain.MediaTypeDOCX
}

func (p *DOCXParser) Parse(ctx context.Context, data []byte) (*Extraction, error) {
	text, _, err := docconv.ConvertDocx(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("convert docx: %w", err)
	}
	return &Extraction{Text: text}, nil
}

// DOCParser handles legacy .doc uploads. Only files that are really DOCX
// under a .doc name can be read; binary Word 97 files fail extraction.
type DOCParser struct {
	docx *DOCXParser
}

func NewDOCParser(docx *DOCXParser) *DOCParser {
	return &DOCParser{docx: docx}
}

func (p *DOCParser) Name() string { return "doc" }

func (p *DOCParser) CanParse(mediaType string) bool {
	return mediaType == domain.MediaTypeDOC
}

func (p *DOCParser) Parse(ctx context.Context, data []byte) (*Extraction, error) {
	result, err := p.docx.Parse(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("legacy doc is not readable as docx: %w", err)
	}
	return result, nil
}
