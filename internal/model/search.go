package model

// FilterClause is one predicate in a RoutingDecision. Value is polymorphic
// on purpose: scalar, list, or string, because backends own their own
// filter schemas and the core never interprets the value itself.
type FilterClause struct {
	Field    string         `json:"field"`
	Operator FilterOperator `json:"operator"`
	Value    interface{}    `json:"value"`
}

// SortOrder is ascending or descending for a RoutingDecision's sort_field.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// RoutingDecision is one source's slice of a RoutingPlan, owned by a single
// orchestrator run.
type RoutingDecision struct {
	Source        string         `json:"source"`
	Methods       []Method       `json:"methods"`
	Query         string         `json:"query"`
	Filters       []FilterClause `json:"filters,omitempty"`
	Mode          Mode           `json:"mode"`
	SortField     string         `json:"sort_field,omitempty"`
	SortOrder     SortOrder      `json:"sort_order,omitempty"`
	GroupBy       string         `json:"group_by,omitempty"`
	AggregateTopN int            `json:"aggregate_top_n,omitempty"`
	TopK          int            `json:"top_k,omitempty"`
}

// SourceMatch is one scored source candidate produced by the router (C4),
// retained so a response can explain why each source was chosen.
type SourceMatch struct {
	Source     string   `json:"source"`
	Confidence float64  `json:"confidence"`
	Position   int      `json:"position"`
	Reasons    []string `json:"reasons"`
}

// PolicyControls is the router's budget/fanout plan.
type PolicyControls struct {
	LatencyBudget Tier `json:"latency_budget"`
	QualityFloor  Tier `json:"quality_floor"`
	CostCeiling   Tier `json:"cost_ceiling"`
	FanoutLimit   int  `json:"fanout_limit"`
}

// SourcePolicyTraceEntry records why a source scored the way it did, for
// observability.
type SourcePolicyTraceEntry struct {
	Source     string   `json:"source"`
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons"`
}

// RoutingPlan is the full output of the router for one search.
type RoutingPlan struct {
	Decisions          []RoutingDecision        `json:"decisions"`
	Complexity         string                   `json:"complexity"` // "simple" | "complex"
	SourceMatches      []SourceMatch            `json:"source_matches"`
	PolicyControls     PolicyControls           `json:"policy_controls"`
	SourcePolicyTrace  []SourcePolicyTraceEntry `json:"source_policy_trace"`
	UsedDefaultSources bool                     `json:"used_default_sources"`
}

// EntityRole distinguishes a sender from a recipient entity.
type EntityRole string

const (
	RoleSender    EntityRole = "sender"
	RoleRecipient EntityRole = "recipient"
)

// IntentEntity is one extracted person/email reference.
type IntentEntity struct {
	Role  EntityRole `json:"role"`
	Name  string     `json:"name,omitempty"`
	Email string     `json:"email,omitempty"`
}

// RetrievalStep is one hop of a multi-step retrieval plan.
type RetrievalStep struct {
	Sources            []string `json:"sources"`
	QueryFocus         string   `json:"query_focus,omitempty"`
	EntityFromPrevious bool     `json:"entity_from_previous"`
}

// Intent is the deterministic-or-LM output consumed by the router.
type Intent struct {
	Label            string          `json:"label"`
	Entities         []IntentEntity  `json:"entities"`
	Temporal         string          `json:"temporal,omitempty"`
	SourceHints      []string        `json:"source_hints"`
	Complexity       string          `json:"complexity"` // "simple" | "multi_hop"
	RetrievalPlan    []RetrievalStep `json:"retrieval_plan,omitempty"`
	SearchMode       Mode            `json:"search_mode"`
	AggregateGroupBy string          `json:"aggregate_group_by,omitempty"`
	AggregateTopN    int             `json:"aggregate_top_n,omitempty"`

	// Decision and confidences are orchestrator/analyzer bookkeeping, not
	// part of the wire contract, but carried alongside the intent so the
	// gate and the trace share one value.
	Decision             string              `json:"-"`
	SourceConfidence     float64             `json:"-"`
	AggregateConfidence  float64             `json:"-"`
	ExtractorConfidences map[string]float64  `json:"-"`
	ExtractorReasons     map[string][]string `json:"-"`
}

// SearchResult is the canonical per-item result shape across all backends
// .
type SearchResult struct {
	ID          string                 `json:"id"`
	Source      string                 `json:"source"`
	SourceClass SourceClass            `json:"source_class"`
	Title       string                 `json:"title"`
	Snippet     string                 `json:"snippet"`
	Timestamp   string                 `json:"timestamp,omitempty"`
	Scores      map[string]float64     `json:"scores"`
	MethodsUsed []Method               `json:"methods_used"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Provenance  string                 `json:"provenance,omitempty"`

	// FusedScore is populated by the fusion ranker (C6); zero until then.
	FusedScore float64 `json:"fused_score,omitempty"`
}

// AggregateGroup is one bucket of an aggregate-mode answer.
type AggregateGroup struct {
	GroupValue string                 `json:"group_value"`
	Count      int                    `json:"count"`
	Label      string                 `json:"label,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// RefinementTraceEntry records one refinement round's outcome.
type RefinementTraceEntry struct {
	Reason             string `json:"reason"`
	Action             string `json:"action"`
	Fired              bool   `json:"fired"`
	CircuitBreakerOpen bool   `json:"circuit_breaker_open"`
}

// IntentTrace mirrors Intent but adds the gate decision, for meta.
type IntentTrace struct {
	Decision             string              `json:"decision"` // "deterministic" | "llm"
	SourceConfidence     float64             `json:"source_confidence"`
	AggregateConfidence  float64             `json:"aggregate_confidence"`
	ExtractorConfidences map[string]float64  `json:"extractor_confidences,omitempty"`
	ExtractorReasons     map[string][]string `json:"extractor_reasons,omitempty"`
}

// Meta carries every piece of observability data a Response returns
// .
type Meta struct {
	Query             string                   `json:"query"`
	SourcesQueried    []string                 `json:"sources_queried"`
	MethodsUsed       []Method                 `json:"methods_used"`
	Iterations        int                      `json:"iterations"`
	Complexity        string                   `json:"complexity"`
	IntentTrace       IntentTrace              `json:"intent_trace"`
	SourceMatchTrace  []SourceMatch            `json:"source_match_trace"`
	TimingMs          map[string]int64         `json:"timing_ms"`
	Count             *int64                   `json:"count,omitempty"`
	CountSource       string                   `json:"count_source,omitempty"`
	Aggregates        []AggregateGroup         `json:"aggregates,omitempty"`
	AggregatesSource  string                   `json:"aggregates_source,omitempty"`
	RefinementTrace   []RefinementTraceEntry   `json:"refinement_trace"`
	RoutingPolicy     PolicyControls           `json:"routing_policy"`
	SourcePolicyTrace []SourcePolicyTraceEntry `json:"source_policy_trace"`
	RequestID         string                   `json:"request_id,omitempty"`
}

// Response is the final, caller-facing answer of one search call.
type Response struct {
	Results []SearchResult `json:"results"`
	Errors  []string       `json:"errors"`
	Notes   []string       `json:"notes"`
	Meta    Meta           `json:"meta"`
}
