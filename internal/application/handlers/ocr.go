package handlers

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ahrav/docflow/internal/domain/document"
	"github.com/ahrav/docflow/internal/domain/processor"
)

// ocrMimeTypes lists the content types the builtin OCR accepts.
var ocrMimeTypes = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":      true,
	"image/tiff":      true,
	"text/plain":      true,
}

// OCR is the builtin text extraction processor. Plain-text documents pass
// their bytes through; binary formats yield a synthetic transcript keyed by
// content hash so downstream steps have stable input.
type OCR struct{}

// NewOCR creates the builtin OCR handler.
func NewOCR() *OCR { return &OCR{} }

// CanProcess accepts the supported document content types.
func (h *OCR) CanProcess(doc *document.Document) bool {
	return ocrMimeTypes[doc.MimeType]
}

// OutputSchema requires extracted text in the output.
func (h *OCR) OutputSchema() []byte {
	return []byte(`{"type":"object","required":["text"],"properties":{"text":{"type":"string"}}}`)
}

// Process extracts text from the document bytes.
func (h *OCR) Process(ctx context.Context, doc *document.Document, config map[string]any, call *processor.CallContext) (*processor.Result, error) {
	data, err := call.Blobs.Get(ctx, doc.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("document bytes not found at %s: %w", doc.StoragePath, err)
	}

	var text string
	if strings.HasPrefix(doc.MimeType, "text/") && utf8.Valid(data) {
		text = string(data)
	} else {
		text = fmt.Sprintf("[ocr transcript of %s, %d bytes, sha256 %s]", doc.Filename, len(data), doc.ContentHash)
	}

	return &processor.Result{
		Success:    true,
		Output:     map[string]any{"text": text, "page_count": 1},
		TokensUsed: int64(len(text) / 4),
	}, nil
}
