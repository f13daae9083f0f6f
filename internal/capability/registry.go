// Package capability implements the capability registry (C1): the
// store of per-source metadata that every other
// component consults to decide what a source can do.
package capability

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"unisearch/internal/model"

	"go.uber.org/zap"
)

// Registry stores one Capability per source_name. Last register wins.
// Reads and writes are guarded by one RWMutex; writes come at startup, from
// the capability watcher, and from the admin API, and are not synchronized
// with searches in flight.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]model.Capability
	logger *zap.Logger
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		byName: make(map[string]model.Capability),
		logger: logger,
	}
}

// Register validates and stores cap, overwriting any prior registration for
// the same source_name.
func (r *Registry) Register(c model.Capability) error {
	c.Normalize()
	if err := c.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, existed := r.byName[c.SourceName]
	r.byName[c.SourceName] = c
	r.logger.Info("capability registered",
		zap.String("source", c.SourceName),
		zap.Bool("overwrite", existed),
		zap.String("class", string(c.SourceClass)))
	return nil
}

// registrationPayload is either a single capability document or a
// `{"sources": [...]}` envelope; both registration payload shapes are accepted.
type registrationPayload struct {
	Sources []model.Capability `json:"sources"`
}

// RegisterFromPayload accepts a JSON document shaped either as one
// Capability or as `{"sources": [...]}` and registers every capability it
// contains.
func (r *Registry) RegisterFromPayload(raw []byte) error {
	var envelope registrationPayload
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Sources) > 0 {
		for _, c := range envelope.Sources {
			if err := r.Register(c); err != nil {
				return fmt.Errorf("register_from_payload: %w", err)
			}
		}
		return nil
	}

	var single model.Capability
	if err := json.Unmarshal(raw, &single); err != nil {
		return fmt.Errorf("register_from_payload: invalid capability payload: %w", err)
	}
	return r.Register(single)
}

// Get returns the capability for source, if registered.
func (r *Registry) Get(source string) (model.Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byName[source]
	return c, ok
}

// AllSources returns every registered capability, sorted by source_name for
// determinism.
func (r *Registry) AllSources() []model.Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Capability, 0, len(r.byName))
	for _, c := range r.byName {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceName < out[j].SourceName })
	return out
}

// PersonalSources returns registered capabilities with source_class=personal.
func (r *Registry) PersonalSources() []model.Capability {
	return r.filterByClass(model.SourceClassPersonal)
}

// WebSources returns registered capabilities with source_class=web.
func (r *Registry) WebSources() []model.Capability {
	return r.filterByClass(model.SourceClassWeb)
}

func (r *Registry) filterByClass(class model.SourceClass) []model.Capability {
	all := r.AllSources()
	out := make([]model.Capability, 0, len(all))
	for _, c := range all {
		if c.SourceClass == class {
			out = append(out, c)
		}
	}
	return out
}

// SourcesSupportingMethod returns every source whose capability declares m.
func (r *Registry) SourcesSupportingMethod(m model.Method) []model.Capability {
	all := r.AllSources()
	out := make([]model.Capability, 0, len(all))
	for _, c := range all {
		if c.SupportsMethod(m) {
			out = append(out, c)
		}
	}
	return out
}

// SourcesSupportingFilter returns every source whose capability declares a
// filter named field.
func (r *Registry) SourcesSupportingFilter(field string) []model.Capability {
	all := r.AllSources()
	out := make([]model.Capability, 0, len(all))
	for _, c := range all {
		if c.SupportsFilter(field) {
			out = append(out, c)
		}
	}
	return out
}

// CanHandle reports whether source exists and supports method m.
func (r *Registry) CanHandle(source string, m model.Method) bool {
	c, ok := r.Get(source)
	return ok && c.SupportsMethod(m)
}

// SupportsMode reports whether source exists and supports mode.
func (r *Registry) SupportsMode(source string, mode model.Mode) bool {
	c, ok := r.Get(source)
	return ok && c.SupportsMode(mode)
}

// SupportsGroupBy reports whether source exists and declares field as a
// group-by field.
func (r *Registry) SupportsGroupBy(source, field string) bool {
	c, ok := r.Get(source)
	return ok && c.SupportsGroupBy(field)
}

// SourceLabelsForAgent returns a map of source_name -> display label,
// falling back to a humanized source_name.
func (r *Registry) SourceLabelsForAgent() map[string]string {
	all := r.AllSources()
	out := make(map[string]string, len(all))
	for _, c := range all {
		out[c.SourceName] = c.Label()
	}
	return out
}

// Aliases returns every normalized alias string a capability exposes for
// scoring: the source_name, its humanized form, the display label, tokens
// >= 3 chars from all three, and the capability's alias hints.
func Aliases(c model.Capability) []string {
	seen := make(map[string]struct{})
	add := func(s string) {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			return
		}
		seen[s] = struct{}{}
	}

	add(c.SourceName)
	humanized := model.Humanize(c.SourceName)
	add(humanized)
	if c.DisplayLabel != "" {
		add(c.DisplayLabel)
	}

	tokenize := func(s string) {
		for _, tok := range strings.FieldsFunc(s, func(r rune) bool {
			return r == '_' || r == '-' || r == ' '
		}) {
			if len(tok) >= 3 {
				add(tok)
			}
		}
	}
	tokenize(c.SourceName)
	tokenize(humanized)
	if c.DisplayLabel != "" {
		tokenize(c.DisplayLabel)
	}
	for _, a := range c.AliasHints {
		add(a)
	}

	out := make([]string, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
