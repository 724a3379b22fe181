package processor

import (
	"context"

	"github.com/ahrav/docflow/internal/domain/document"
)

// Artifact is a file produced by a processor, attached to the execution
// record under a named collection.
type Artifact struct {
	Collection  string
	Filename    string
	ContentType string
	Data        []byte
}

// Result is the outcome a handler reports for one step. Handlers never touch
// jobs or execution records directly; the activity runner persists results.
type Result struct {
	Success     bool
	Output      map[string]any
	Error       string
	TokensUsed  int64
	CostCredits float64
	Artifacts   []Artifact
	// TransactionID with AwaitingCallback set marks a step that suspends the
	// workflow until an out-of-band callback delivers a signal.
	TransactionID    string
	AwaitingCallback bool
}

// CredentialResolver is the hierarchical credential lookup processors use.
// The tenant is implied by the context's tenant scope.
type CredentialResolver interface {
	Resolve(ctx context.Context, key string, processorID, campaignID *string) (string, error)
}

// BlobStore is the minimal storage surface handlers may read and write.
type BlobStore interface {
	Get(ctx context.Context, path string) ([]byte, error)
	Put(ctx context.Context, path string, data []byte) error
}

// CallContext carries everything a handler may consult during Process. All
// handler I/O goes through this context or through external services the
// handler itself brokers.
type CallContext struct {
	JobID      string
	StepIndex  int
	CampaignID string
	// PreviousOutputs maps completed steps' slugs to their outputs.
	PreviousOutputs map[string]map[string]any
	Credentials     CredentialResolver
	Blobs           BlobStore
}

// Handler executes one processor category against a document.
type Handler interface {
	// CanProcess pre-checks mime type and size before Process is invoked.
	CanProcess(doc *document.Document) bool

	// Process runs the step. Failures may be reported either through the
	// Result or as a returned error; the runner normalizes both.
	Process(ctx context.Context, doc *document.Document, config map[string]any, call *CallContext) (*Result, error)
}

// OutputSchemer is an optional handler capability declaring a JSON schema
// the output must satisfy.
type OutputSchemer interface {
	OutputSchema() []byte
}

// DependencyDeclarer is an optional handler capability declaring processor
// slugs that must have completed earlier on the same job.
type DependencyDeclarer interface {
	DependencySlugs() []string
}
