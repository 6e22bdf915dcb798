// Package extract turns uploaded files into per-unit plain text. PDFs are
// extracted page by page so each page is one unit; everything else goes
// through docconv and comes back as a single unit.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"code.sajari.com/docconv"
	"github.com/ledongthuc/pdf"

	"github.com/markdave123-py/studyrag/internal/core"
)

type Extractor struct {
	logger *slog.Logger
}

var _ core.TextExtractor = (*Extractor)(nil)

func New(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger.With("component", "extractor")}
}

// Extract parses data into one string per logical unit. Empty units are
// dropped; if nothing extractable remains the whole extraction fails.
func (e *Extractor) Extract(ctx context.Context, data []byte, filename, contentType string) ([]string, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", core.ErrExtraction)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		units []string
		err   error
	)
	if isPDF(filename, contentType) {
		units, err = extractPDFPages(data)
	} else {
		units, err = e.extractDocconv(data, filename, contentType)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrExtraction, err)
	}

	if len(units) == 0 {
		return nil, fmt.Errorf("%w: no text in %s", core.ErrExtraction, filename)
	}
	e.logger.Debug("extracted text", "file", filename, "units", len(units))
	return units, nil
}

func isPDF(filename, contentType string) bool {
	if strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return true
	}
	return contentType == "application/pdf"
}

// extractPDFPages reads the PDF page by page, one unit per page.
func extractPDFPages(data []byte) ([]string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	var pages []string
	for n := 1; n <= reader.NumPage(); n++ {
		page := reader.Page(n)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", n, err)
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}
	return pages, nil
}

// extractDocconv hands anything that is not a PDF to docconv, which picks a
// parser from the MIME type. The result is one unit.
func (e *Extractor) extractDocconv(data []byte, filename, contentType string) ([]string, error) {
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = docconv.MimeTypeByExtension(filename)
	}

	res, err := docconv.Convert(bytes.NewReader(data), contentType, false)
	if err != nil {
		return nil, fmt.Errorf("docconv %s: %w", contentType, err)
	}

	text := strings.TrimSpace(res.Body)
	if text == "" {
		return nil, nil
	}
	return []string{text}, nil
}

// TitleFromFilename derives a document title from the uploaded name by
// stripping any path components and the extension.
func TitleFromFilename(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
