package handlers

import (
	"context"
	"regexp"
	"strings"

	"github.com/ahrav/docflow/internal/domain/document"
	"github.com/ahrav/docflow/internal/domain/processor"
)

var (
	emailPattern  = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	datePattern   = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	amountPattern = regexp.MustCompile(`\$\s?\d[\d,]*(?:\.\d{2})?`)
)

// Extraction is the builtin field extractor. It pulls structured fields from
// the text a prior OCR step produced.
type Extraction struct{}

// NewExtraction creates the builtin extraction handler.
func NewExtraction() *Extraction { return &Extraction{} }

// CanProcess accepts every document.
func (h *Extraction) CanProcess(doc *document.Document) bool { return true }

// DependencySlugs requires the OCR step to have completed on the same job.
func (h *Extraction) DependencySlugs() []string { return []string{"ocr"} }

// OutputSchema requires extracted fields in the output.
func (h *Extraction) OutputSchema() []byte {
	return []byte(`{"type":"object","required":["fields"],"properties":{"fields":{"type":"object"}}}`)
}

// Process extracts well-known fields from the OCR text.
func (h *Extraction) Process(ctx context.Context, doc *document.Document, config map[string]any, call *processor.CallContext) (*processor.Result, error) {
	var text string
	if ocr, ok := call.PreviousOutputs["ocr"]; ok {
		text, _ = ocr["text"].(string)
	}

	fields := map[string]any{}
	if emails := emailPattern.FindAllString(text, 3); len(emails) > 0 {
		fields["emails"] = emails
	}
	if dates := datePattern.FindAllString(text, 5); len(dates) > 0 {
		fields["dates"] = dates
	}
	if amounts := amountPattern.FindAllString(text, 5); len(amounts) > 0 {
		fields["amounts"] = amounts
	}
	if lines := strings.Split(text, "\n"); len(lines) > 0 {
		fields["first_line"] = strings.TrimSpace(lines[0])
	}

	return &processor.Result{
		Success:    true,
		Output:     map[string]any{"fields": fields},
		TokensUsed: int64(len(text) / 4),
	}, nil
}
