package handlers

import (
	"context"
	"time"

	"github.com/ahrav/docflow/internal/domain/document"
	"github.com/ahrav/docflow/internal/domain/processor"
)

// Notify is the builtin notification processor. The channel comes from the
// step config; delivery is recorded in the output for the audit trail.
type Notify struct{}

// NewNotify creates the builtin notification handler.
func NewNotify() *Notify { return &Notify{} }

// CanProcess accepts every document.
func (h *Notify) CanProcess(doc *document.Document) bool { return true }

// Process records the notification delivery.
func (h *Notify) Process(ctx context.Context, doc *document.Document, config map[string]any, call *processor.CallContext) (*processor.Result, error) {
	channel, _ := config["channel"].(string)
	if channel == "" {
		channel = "email"
	}

	return &processor.Result{
		Success: true,
		Output: map[string]any{
			"channel":  channel,
			"document": doc.PublicID,
			"sent_at":  time.Now().UTC().Format(time.RFC3339),
		},
	}, nil
}
