package handlers

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ahrav/docflow/internal/domain/document"
	"github.com/ahrav/docflow/internal/domain/processor"
)

// Sign is the builtin e-signature processor. It requires an approved eKYC
// step on the same job before issuing a signature envelope.
type Sign struct{}

// NewSign creates the builtin signing handler.
func NewSign() *Sign { return &Sign{} }

// CanProcess accepts every document.
func (h *Sign) CanProcess(doc *document.Document) bool { return true }

// DependencySlugs requires the ekyc step to have completed on the same job.
func (h *Sign) DependencySlugs() []string { return []string{"ekyc"} }

// Process issues a signature envelope for a verified document.
func (h *Sign) Process(ctx context.Context, doc *document.Document, config map[string]any, call *processor.CallContext) (*processor.Result, error) {
	kyc, ok := call.PreviousOutputs["ekyc"]
	if !ok {
		return nil, fmt.Errorf("missing dependency %q for signing", "ekyc")
	}
	if status, _ := kyc["status"].(string); status == "declined" || status == "expired" {
		return &processor.Result{
			Success: false,
			Error:   fmt.Sprintf("invalid file: identity verification %s", status),
		}, nil
	}

	return &processor.Result{
		Success: true,
		Output: map[string]any{
			"envelope_id": "env_" + uuid.NewString(),
			"signer":      doc.PublicID,
			"status":      "sent",
		},
	}, nil
}
