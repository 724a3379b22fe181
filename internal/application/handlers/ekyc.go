package handlers

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ahrav/docflow/internal/domain/document"
	"github.com/ahrav/docflow/internal/domain/processor"
)

// EKYCCredentialKey is the vault key the builtin eKYC handler resolves.
const EKYCCredentialKey = "ekyc_api_key"

// EKYC is the builtin identity verification processor. It submits the
// document to the external provider and suspends the workflow on the issued
// transaction id; the provider's callback resumes it.
type EKYC struct{}

// NewEKYC creates the builtin eKYC handler.
func NewEKYC() *EKYC { return &EKYC{} }

// CanProcess accepts every document.
func (h *EKYC) CanProcess(doc *document.Document) bool { return true }

// Process issues the verification transaction and reports the step as
// awaiting its callback.
func (h *EKYC) Process(ctx context.Context, doc *document.Document, config map[string]any, call *processor.CallContext) (*processor.Result, error) {
	campaignID := call.CampaignID
	apiKey, err := call.Credentials.Resolve(ctx, EKYCCredentialKey, nil, &campaignID)
	if err != nil {
		return nil, err
	}
	if apiKey == "" {
		return nil, fmt.Errorf("missing configuration: empty %s", EKYCCredentialKey)
	}

	transactionID := "txn_" + uuid.NewString()
	return &processor.Result{
		Success:          true,
		AwaitingCallback: true,
		TransactionID:    transactionID,
		Output: map[string]any{
			"transaction_id": transactionID,
			"provider":       "demo-kyc",
			"document":       doc.PublicID,
		},
	}, nil
}
