package handlers

import (
	"context"
	"strings"

	"github.com/ahrav/docflow/internal/domain/document"
	"github.com/ahrav/docflow/internal/domain/processor"
)

// categoryKeywords lists document categories with the keywords that suggest
// them, checked in order against the extracted text and the filename.
var categoryKeywords = []struct {
	category string
	words    []string
}{
	{"invoice", []string{"invoice", "amount due", "bill to"}},
	{"contract", []string{"contract", "agreement", "party", "hereby"}},
	{"identity", []string{"passport", "license", "id card", "date of birth"}},
	{"statement", []string{"statement", "balance", "account number"}},
}

// Classify is the builtin keyword document classifier.
type Classify struct{}

// NewClassify creates the builtin classifier handler.
func NewClassify() *Classify { return &Classify{} }

// CanProcess accepts every document; classification falls back to the
// filename when no text was extracted.
func (h *Classify) CanProcess(doc *document.Document) bool { return true }

// OutputSchema requires a category in the output.
func (h *Classify) OutputSchema() []byte {
	return []byte(`{"type":"object","required":["category"],"properties":{"category":{"type":"string"}}}`)
}

// Process assigns a document category from keyword hits.
func (h *Classify) Process(ctx context.Context, doc *document.Document, config map[string]any, call *processor.CallContext) (*processor.Result, error) {
	haystack := strings.ToLower(doc.Filename)
	for _, output := range call.PreviousOutputs {
		if text, ok := output["text"].(string); ok {
			haystack += " " + strings.ToLower(text)
		}
	}

	category := "other"
	confidence := 0.2
	for _, ck := range categoryKeywords {
		hits := 0
		for _, w := range ck.words {
			if strings.Contains(haystack, w) {
				hits++
			}
		}
		if hits > 0 {
			category = ck.category
			confidence = float64(hits) / float64(len(ck.words))
			break
		}
	}

	return &processor.Result{
		Success: true,
		Output:  map[string]any{"category": category, "confidence": confidence},
	}, nil
}
