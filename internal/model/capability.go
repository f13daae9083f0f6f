// Package model defines the value objects shared across the search core:
// capabilities, routing decisions, intents, results, and the final response.
package model

import (
	"fmt"
	"strings"
)

// SourceClass partitions sources into personal data vs. the open web.
type SourceClass string

const (
	SourceClassPersonal SourceClass = "personal"
	SourceClassWeb      SourceClass = "web"
)

// Method is a retrieval style a source can support.
type Method string

const (
	MethodStructured Method = "structured"
	MethodFulltext   Method = "fulltext"
	MethodVector     Method = "vector"
	MethodGraph      Method = "graph"
)

// Mode is the shape of the answer a search produces.
type Mode string

const (
	ModeSearch    Mode = "search"
	ModeCount     Mode = "count"
	ModeAggregate Mode = "aggregate"
)

// Tier is a coarse latency/quality/cost rating a capability declares.
type Tier string

const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// FilterOperator is a comparison a FilterClause can apply.
type FilterOperator string

const (
	OpEq       FilterOperator = "eq"
	OpContains FilterOperator = "contains"
	OpGte      FilterOperator = "gte"
	OpLte      FilterOperator = "lte"
	OpIn       FilterOperator = "in"
)

// EntityParser names how an entity-extraction rule reads a metadata value.
type EntityParser string

const (
	ParserString          EntityParser = "string"
	ParserEmailFromHeader EntityParser = "email_from_header"
)

// FilterSpec describes one filter a capability accepts.
type FilterSpec struct {
	Name        string           `json:"name"`
	Type        string           `json:"type"`
	Operators   []FilterOperator `json:"operators"`
	Description string           `json:"description,omitempty"`
}

// EntityExtractionRule tells the entity extractor (C7) how to pull a filter
// value for the next hop out of a prior result's metadata.
type EntityExtractionRule struct {
	TargetField string       `json:"target_field"`
	MetadataKey string       `json:"metadata_key"`
	Parser      EntityParser `json:"parser"`
}

// Capability is the canonical, read-only-during-search metadata for one
// source. It is registered once at startup per source_name.
type Capability struct {
	SourceName             string                 `json:"source_name"`
	SourceClass            SourceClass            `json:"source_class"`
	SupportedMethods       []Method               `json:"supported_methods"`
	SupportedFilters       []FilterSpec           `json:"supported_filters"`
	SupportedModes         []Mode                 `json:"supported_modes"`
	SupportedGroupByFields []string               `json:"supported_group_by_fields,omitempty"`
	MaxLimit               int                    `json:"max_limit"`
	DefaultLimit           int                    `json:"default_limit"`
	SortFields             []string               `json:"sort_fields,omitempty"`
	DefaultRanking         string                 `json:"default_ranking,omitempty"`
	DisplayLabel           string                 `json:"display_label,omitempty"`
	AliasHints             []string               `json:"alias_hints,omitempty"`
	FreshnessWindowDays    int                    `json:"freshness_window_days,omitempty"`
	LatencyTier            Tier                   `json:"latency_tier"`
	QualityTier            Tier                   `json:"quality_tier"`
	CostTier               Tier                   `json:"cost_tier"`
	RequestRoutingArgs     map[string]interface{} `json:"request_routing_args,omitempty"`
	EntityExtractionRules  []EntityExtractionRule `json:"entity_extraction_rules,omitempty"`
}

// Normalize trims/lower-cases/dedupes alias hints in place, the way the
// registry requires before accepting a registration.
func (c *Capability) Normalize() {
	seen := make(map[string]struct{}, len(c.AliasHints))
	out := make([]string, 0, len(c.AliasHints))
	for _, a := range c.AliasHints {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" {
			continue
		}
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	c.AliasHints = out
}

// Validate enforces the registration-time invariants:
// every capability tier is required, alias hints must not carry empty
// entries once normalized, and the freshness window (when set) must be
// positive.
func (c *Capability) Validate() error {
	if strings.TrimSpace(c.SourceName) == "" {
		return fmt.Errorf("capability: source_name is required")
	}
	if c.SourceClass != SourceClassPersonal && c.SourceClass != SourceClassWeb {
		return fmt.Errorf("capability %q: source_class must be personal or web, got %q", c.SourceName, c.SourceClass)
	}
	for _, t := range []struct {
		name string
		val  Tier
	}{
		{"latency_tier", c.LatencyTier},
		{"quality_tier", c.QualityTier},
		{"cost_tier", c.CostTier},
	} {
		if t.val != TierLow && t.val != TierMedium && t.val != TierHigh {
			return fmt.Errorf("capability %q: %s is required and must be low/medium/high, got %q", c.SourceName, t.name, t.val)
		}
	}
	if c.FreshnessWindowDays < 0 {
		return fmt.Errorf("capability %q: freshness_window_days must be >= 1 when set, got %d", c.SourceName, c.FreshnessWindowDays)
	}
	for _, a := range c.AliasHints {
		if strings.TrimSpace(a) == "" {
			return fmt.Errorf("capability %q: alias_hints must not contain empty entries", c.SourceName)
		}
	}
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = 20
	}
	if c.MaxLimit <= 0 {
		c.MaxLimit = 50
	}
	return nil
}

// SupportsMethod reports whether m is in the capability's supported set.
func (c *Capability) SupportsMethod(m Method) bool {
	for _, x := range c.SupportedMethods {
		if x == m {
			return true
		}
	}
	return false
}

// SupportsMode reports whether mode is in the capability's supported set.
func (c *Capability) SupportsMode(mode Mode) bool {
	for _, x := range c.SupportedModes {
		if x == mode {
			return true
		}
	}
	return false
}

// SupportsGroupBy reports whether field is a declared group-by field.
func (c *Capability) SupportsGroupBy(field string) bool {
	for _, f := range c.SupportedGroupByFields {
		if f == field {
			return true
		}
	}
	return false
}

// SupportsFilter reports whether a filter named name is declared.
func (c *Capability) SupportsFilter(name string) bool {
	for _, f := range c.SupportedFilters {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Label returns DisplayLabel, falling back to a humanized source_name
// .
func (c *Capability) Label() string {
	if c.DisplayLabel != "" {
		return c.DisplayLabel
	}
	return Humanize(c.SourceName)
}

// Humanize turns a snake_case/kebab-case source name into a readable label,
// e.g. "browser_history" -> "Browser History".
func Humanize(sourceName string) string {
	parts := strings.FieldsFunc(sourceName, func(r rune) bool {
		return r == '_' || r == '-'
	})
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}
