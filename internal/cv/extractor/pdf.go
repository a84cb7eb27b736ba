package extractor

import (
	"bytes"
	"context"
	"fmt"

	"github.com/cvbank/cvbank-backend/internal/cv/domain"
	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFParser extracts the text layer of PDF documents. Scanned PDFs without a
// text layer come back empty.
type PDFParser struct{}

func NewPDFParser() *PDFParser {
	return &PDFParser{}
}

func (p *PDFParser) Name() string { return "pdf" }

func (p *PDFParser) CanParse(mediaType string) bool {
	return mediaType == domain.MediaTypePDF
}

func (p *PDFParser) Parse(ctx context.Context, data []byte) (result *Extraction, err error) {
	// The pdf reader panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("read pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return nil, fmt.Errorf("read pdf text: %w", err)
	}

	return &Extraction{
		Text:      buf.String(),
		PageCount: pageCount(data, reader.NumPage()),
	}, nil
}

// pageCount prefers pdfcpu's count and falls back to the text reader's.
func pageCount(data []byte, fallback int) int {
	count, err := api.PageCount(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil || count < 1 {
		return fallback
	}
	return count
}
