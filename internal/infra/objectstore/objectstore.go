// Package objectstore abstracts the blob backend that holds original
// document bytes and execution artifacts.
package objectstore

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when no object exists at the requested path.
var ErrNotFound = errors.New("object not found")

// Store is the object storage surface. Document bytes are addressed by
// (disk, storage_path); execution artifacts by ArtifactPath.
type Store interface {
	Exists(ctx context.Context, path string) (bool, error)
	Get(ctx context.Context, path string) ([]byte, error)
	Put(ctx context.Context, path string, data []byte) error
	Delete(ctx context.Context, path string) error
	// URL returns an externally usable URL for the object.
	URL(ctx context.Context, path string) (string, error)
}

// ArtifactPath keys a processor-produced file under its execution and
// collection.
func ArtifactPath(executionID, collection, filename string) string {
	return fmt.Sprintf("executions/%s/%s/%s", executionID, collection, filename)
}
