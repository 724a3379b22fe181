// Package registry maps stable processor slugs to executable handlers.
// Static registration happens at boot; unknown slugs fall back to the
// tenant-scoped processor catalog and resolve through the entry's handler
// key.
package registry

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/docflow/internal/domain/fault"
	"github.com/ahrav/docflow/internal/domain/processor"
)

// ErrProcessorNotRegistered is returned when no handler can be resolved for
// a slug.
var ErrProcessorNotRegistered = errors.New("processor not registered")

// Registry resolves processor slugs to handlers.
type Registry struct {
	catalog processor.Repository
	tracer  trace.Tracer

	mu sync.RWMutex
	// handlers holds statically registered handlers keyed by slug.
	handlers map[string]processor.Handler
	// builders constructs handlers for catalog handler keys resolved at
	// runtime. This is the statically compiled stand-in for class-name
	// dispatch.
	builders map[string]func() processor.Handler
}

// New creates a registry backed by the tenant processor catalog.
func New(catalog processor.Repository, tracer trace.Tracer) *Registry {
	return &Registry{
		catalog:  catalog,
		tracer:   tracer,
		handlers: make(map[string]processor.Handler),
		builders: make(map[string]func() processor.Handler),
	}
}

// Register statically binds a handler to a slug at boot.
func (r *Registry) Register(slug string, h processor.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[slug] = h
}

// RegisterBuilder binds a handler constructor to a catalog handler key.
func (r *Registry) RegisterBuilder(handlerKey string, build func() processor.Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builders[handlerKey] = build
}

// Has reports whether a handler is statically registered for the slug.
func (r *Registry) Has(slug string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[slug]
	return ok
}

// Get resolves a handler for the slug. The in-memory map is checked first;
// absent entries that look like sortable ids are looked up in the catalog by
// id, everything else by slug. Unknown handler keys fail with a
// non-retryable configuration error.
func (r *Registry) Get(ctx context.Context, slug string) (processor.Handler, error) {
	ctx, span := r.tracer.Start(ctx, "registry.Get", trace.WithAttributes(
		attribute.String("slug", slug),
	))
	defer span.End()

	r.mu.RLock()
	h, ok := r.handlers[slug]
	r.mu.RUnlock()
	if ok {
		return h, nil
	}

	var entry *processor.Entry
	var err error
	if looksLikeSortableID(slug) {
		entry, err = r.catalog.FindByID(ctx, slug)
	} else {
		entry, err = r.catalog.FindBySlug(ctx, slug)
	}
	if err != nil {
		if errors.Is(err, processor.ErrProcessorNotFound) {
			return nil, fault.Configuration("processor %q: %v", slug, ErrProcessorNotRegistered)
		}
		return nil, err
	}

	return r.resolveEntry(entry)
}

// GetForEntry resolves the handler for an already-loaded catalog entry.
func (r *Registry) GetForEntry(entry *processor.Entry) (processor.Handler, error) {
	return r.resolveEntry(entry)
}

func (r *Registry) resolveEntry(entry *processor.Entry) (processor.Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if h, ok := r.handlers[entry.Slug]; ok {
		return h, nil
	}
	if build, ok := r.builders[entry.HandlerKey]; ok {
		return build(), nil
	}
	return nil, fault.Configuration("processor %q: unknown handler key %q", entry.Slug, entry.HandlerKey)
}

// looksLikeSortableID reports whether s has the shape of a sortable id.
func looksLikeSortableID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
