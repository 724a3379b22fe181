package handlers

import (
	"context"
	"fmt"
	"path"

	"github.com/ahrav/docflow/internal/domain/document"
	"github.com/ahrav/docflow/internal/domain/processor"
)

// Store is the builtin archival processor. It copies the document bytes into
// a long-term archive prefix at the end of a pipeline.
type Store struct{}

// NewStore creates the builtin archival handler.
func NewStore() *Store { return &Store{} }

// CanProcess accepts every document.
func (h *Store) CanProcess(doc *document.Document) bool { return true }

// Process copies the document into the archive prefix.
func (h *Store) Process(ctx context.Context, doc *document.Document, config map[string]any, call *processor.CallContext) (*processor.Result, error) {
	data, err := call.Blobs.Get(ctx, doc.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("document bytes not found at %s: %w", doc.StoragePath, err)
	}

	prefix, _ := config["prefix"].(string)
	if prefix == "" {
		prefix = "archive"
	}
	archivePath := path.Join(prefix, doc.PublicID, doc.Filename)
	if err := call.Blobs.Put(ctx, archivePath, data); err != nil {
		return nil, err
	}

	return &processor.Result{
		Success: true,
		Output: map[string]any{
			"archived_path": archivePath,
			"size_bytes":    len(data),
			"content_hash":  doc.ContentHash,
		},
	}, nil
}
