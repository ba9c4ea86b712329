package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/ValentinOzeel/RAGalactic/internal/core/domain"
	"github.com/ValentinOzeel/RAGalactic/internal/core/ports"
)

// Extractor pulls per-page plain text out of staged PDF files.
type Extractor struct {
	stager ports.BlobStager
}

func NewExtractor(stager ports.BlobStager) *Extractor {
	return &Extractor{stager: stager}
}

func (e *Extractor) Extract(ctx context.Context, key string) ([]domain.PageText, error) {
	reader, err := e.stager.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open staged document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read staged document: %w", err)
	}

	doc, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("parse pdf: %w", err)
	}

	pages := make([]domain.PageText, 0, doc.NumPage())
	for pageNum := 1; pageNum <= doc.NumPage(); pageNum++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := doc.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract page %d: %w", pageNum, err)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		pages = append(pages, domain.PageText{Page: pageNum, Text: text})
	}
	return pages, nil
}
