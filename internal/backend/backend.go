// Package backend implements direct backends (C3): in-process sources that
// implement the same search shape an MCP-bound source exposes, without a
// network hop. Direct backends never answer count/aggregate modes; the
// orchestrator coerces their mode to search before dispatch.
package backend

import (
	"context"

	"unisearch/internal/model"
)

// Backend is the shape every in-process source implements.
type Backend interface {
	Search(ctx context.Context, query string, methods []model.Method, filters []model.FilterClause, topK int) ([]model.SearchResult, error)
	SourceName() string
	SourceClass() model.SourceClass
	SupportedMethods() []model.Method
	SupportedFilters() []model.FilterSpec
}

// Registry is the set of direct backends the orchestrator can dispatch to,
// keyed by source name. Built at startup, read-only during a search.
type Registry struct {
	byName map[string]Backend
}

// NewRegistry builds a Registry from backends, keyed by each backend's
// SourceName(). A later backend with the same name overrides an earlier one.
func NewRegistry(backends ...Backend) *Registry {
	r := &Registry{byName: make(map[string]Backend, len(backends))}
	for _, b := range backends {
		r.byName[b.SourceName()] = b
	}
	return r
}

// Get returns the backend bound to source, if any.
func (r *Registry) Get(source string) (Backend, bool) {
	b, ok := r.byName[source]
	return b, ok
}

// HasSource reports whether source has a direct backend.
func (r *Registry) HasSource(source string) bool {
	_, ok := r.byName[source]
	return ok
}
