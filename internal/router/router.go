package router

import (
	"strings"
	"time"

	"unisearch/internal/capability"
	"unisearch/internal/model"

	"go.uber.org/zap"
)

// Router is the retrieval router (C4): it turns an intent + query into a
// RoutingPlan of RoutingDecisions.
type Router struct {
	registry  *capability.Registry
	logger    *zap.Logger
	threshold float64
	topN      int
}

// New creates a Router over registry. threshold/topN tune the
// default-fallback scoring pass when no source hint resolves.
func New(registry *capability.Registry, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{registry: registry, logger: logger, threshold: 0.35, topN: 5}
}

// ScoreQuery is the entry point C5 uses to obtain source-match scores for
// its source_hints extractor.
func (r *Router) ScoreQuery(query string) []model.SourceMatch {
	return ScoreSources(query, r.registry.AllSources())
}

// Route builds a RoutingPlan for one query + intent.
func (r *Router) Route(query string, intent model.Intent, timezone *time.Location) model.RoutingPlan {
	sources, usedDefault, trace := r.selectSources(query, intent)

	plan := model.RoutingPlan{
		SourceMatches:      trace,
		UsedDefaultSources: usedDefault,
		Complexity:         "simple",
	}

	mode, groupBy, aggTopN := r.resolveMode(intent, sources)

	decisions := make([]model.RoutingDecision, 0, len(sources))
	policyTrace := make([]model.SourcePolicyTraceEntry, 0, len(sources))
	for _, m := range trace {
		policyTrace = append(policyTrace, model.SourcePolicyTraceEntry{
			Source:     m.Source,
			Confidence: m.Confidence,
			Reasons:    m.Reasons,
		})
	}

	for _, sourceName := range sources {
		c, ok := r.registry.Get(sourceName)
		if !ok {
			continue
		}
		decisionMode := mode
		if decisionMode == model.ModeAggregate && !c.SupportsMode(model.ModeAggregate) {
			decisionMode = model.ModeSearch
		}
		if decisionMode == model.ModeCount && !c.SupportsMode(model.ModeCount) {
			decisionMode = model.ModeSearch
		}

		filters := r.extractFilters(intent, c, timezone)
		methods := r.selectMethods(c, query, filters)

		d := model.RoutingDecision{
			Source:  sourceName,
			Methods: methods,
			Query:   query,
			Filters: filters,
			Mode:    decisionMode,
			TopK:    c.DefaultLimit,
		}
		if decisionMode == model.ModeAggregate {
			d.GroupBy = groupBy
			if aggTopN <= 0 {
				aggTopN = 10
			}
			d.AggregateTopN = aggTopN
		}
		decisions = append(decisions, d)
	}

	if intent.Complexity == "multi_hop" || len(decisions) > 2 {
		plan.Complexity = "complex"
	}

	plan.Decisions = decisions
	plan.PolicyControls = r.policyControls(intent, sources, usedDefault)
	plan.SourcePolicyTrace = policyTrace
	return plan
}

// selectSources picks candidate sources: intent.source_hints
// first, then direct scoring of the query, then a default-personal-sources
// fallback with used_default_sources=true.
func (r *Router) selectSources(query string, intent model.Intent) (sources []string, usedDefault bool, trace []model.SourceMatch) {
	if len(intent.SourceHints) > 0 {
		resolved := make([]string, 0, len(intent.SourceHints))
		for _, hint := range intent.SourceHints {
			if _, ok := r.registry.Get(hint); ok {
				resolved = append(resolved, hint)
			}
		}
		if len(resolved) > 0 {
			return resolved, false, ScoreSources(query, r.registry.AllSources())
		}
	}

	scored := ScoreSources(query, r.registry.AllSources())
	filtered := FilterMatches(scored, r.threshold, r.topN)
	if len(filtered) > 0 {
		out := make([]string, 0, len(filtered))
		for _, m := range filtered {
			out = append(out, m.Source)
		}
		return out, false, scored
	}

	personal := r.registry.PersonalSources()
	out := make([]string, 0, len(personal))
	for _, c := range personal {
		out = append(out, c.SourceName)
	}
	if len(out) > 3 {
		out = out[:3]
	}
	return out, true, scored
}

// resolveMode resolves the requested mode and group-by field against what the candidate sources actually declare.
func (r *Router) resolveMode(intent model.Intent, sources []string) (model.Mode, string, int) {
	mode := intent.SearchMode
	if mode == "" {
		mode = model.ModeSearch
	}
	if mode != model.ModeAggregate {
		return mode, "", 0
	}

	anyAggregateCapable := false
	groupBy := ""
	requested := intent.AggregateGroupBy
	firstDeclared := ""
	for _, s := range sources {
		c, ok := r.registry.Get(s)
		if !ok || !c.SupportsMode(model.ModeAggregate) {
			continue
		}
		anyAggregateCapable = true
		if firstDeclared == "" && len(c.SupportedGroupByFields) > 0 {
			firstDeclared = c.SupportedGroupByFields[0]
		}
		if requested != "" && c.SupportsGroupBy(requested) {
			groupBy = requested
		}
	}
	if !anyAggregateCapable {
		return model.ModeSearch, "", 0
	}
	if groupBy == "" {
		groupBy = firstDeclared
	}
	topN := intent.AggregateTopN
	if topN <= 0 {
		topN = 10
	}
	return model.ModeAggregate, groupBy, topN
}

// SelectMethods exposes selectMethods for callers that build RoutingDecisions
// outside of Route itself.
func (r *Router) SelectMethods(c model.Capability, query string, filters []model.FilterClause) []model.Method {
	return r.selectMethods(c, query, filters)
}

// selectMethods picks the ordered method subset one source should run.
func (r *Router) selectMethods(c model.Capability, query string, filters []model.FilterClause) []model.Method {
	var ordered []model.Method
	hasTemporalOrFilters := len(filters) > 0
	hasQueryText := strings.TrimSpace(query) != ""

	if hasTemporalOrFilters && c.SupportsMethod(model.MethodStructured) {
		ordered = append(ordered, model.MethodStructured)
	}
	if hasQueryText && c.SupportsMethod(model.MethodFulltext) {
		ordered = append(ordered, model.MethodFulltext)
	}
	if hasQueryText && c.SupportsMethod(model.MethodVector) {
		ordered = append(ordered, model.MethodVector)
	}

	if len(ordered) == 0 && len(c.SupportedMethods) > 0 {
		ordered = append(ordered, c.SupportedMethods[0])
	}
	return ordered
}

// extractFilters derives filter clauses from intent entities
// and temporal tokens, gated by what the target capability declares.
func (r *Router) extractFilters(intent model.Intent, c model.Capability, timezone *time.Location) []model.FilterClause {
	var out []model.FilterClause

	for _, e := range intent.Entities {
		switch e.Role {
		case model.RoleSender:
			if e.Name != "" && c.SupportsFilter("from_name") {
				out = append(out, model.FilterClause{Field: "from_name", Operator: model.OpContains, Value: e.Name})
			}
			if e.Email != "" && c.SupportsFilter("from_email") {
				out = append(out, model.FilterClause{Field: "from_email", Operator: model.OpEq, Value: e.Email})
			}
		case model.RoleRecipient:
			if e.Email != "" && c.SupportsFilter("to_email") {
				out = append(out, model.FilterClause{Field: "to_email", Operator: model.OpEq, Value: e.Email})
			} else if e.Name != "" && c.SupportsFilter("to_email") {
				out = append(out, model.FilterClause{Field: "to_email", Operator: model.OpContains, Value: e.Name})
			}
		}
	}

	if intent.Temporal != "" {
		out = append(out, r.temporalFilters(intent.Temporal, c, timezone)...)
	}

	return out
}

func (r *Router) temporalFilters(temporal string, c model.Capability, timezone *time.Location) []model.FilterClause {
	if timezone == nil {
		timezone = time.UTC
	}
	now := time.Now().In(timezone)
	startOfDay := func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	}

	var after, before *time.Time
	today := startOfDay(now)

	switch temporal {
	case "today":
		after = &today
	case "yesterday":
		y := today.AddDate(0, 0, -1)
		after = &y
		before = &today
	case "this week":
		weekday := int(today.Weekday())
		startOfWeek := today.AddDate(0, 0, -weekday)
		after = &startOfWeek
	case "last week":
		weekday := int(today.Weekday())
		startOfThisWeek := today.AddDate(0, 0, -weekday)
		startOfLastWeek := startOfThisWeek.AddDate(0, 0, -7)
		after = &startOfLastWeek
		before = &startOfThisWeek
	case "this month":
		startOfMonth := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
		after = &startOfMonth
	case "last month":
		startOfThisMonth := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
		startOfLastMonth := startOfThisMonth.AddDate(0, -1, 0)
		after = &startOfLastMonth
		before = &startOfThisMonth
	case "most recent", "latest", "recently", "recent":
		weekAgo := today.AddDate(0, 0, -7)
		after = &weekAgo
	default:
		return nil
	}

	var out []model.FilterClause
	if after != nil && c.SupportsFilter("date_after") {
		out = append(out, model.FilterClause{Field: "date_after", Operator: model.OpGte, Value: after.Format(time.RFC3339)})
	}
	if before != nil && c.SupportsFilter("date_before") {
		out = append(out, model.FilterClause{Field: "date_before", Operator: model.OpLte, Value: before.Format(time.RFC3339)})
	}
	return out
}

// policyControls derives the budget tiers and fanout cap for one plan.
func (r *Router) policyControls(intent model.Intent, sources []string, usedDefault bool) model.PolicyControls {
	latency, quality, cost := model.TierMedium, model.TierMedium, model.TierMedium

	for _, s := range sources {
		c, ok := r.registry.Get(s)
		if !ok {
			continue
		}
		latency = worstTier(latency, c.LatencyTier)
		quality = betterTier(quality, c.QualityTier)
		cost = worstTier(cost, c.CostTier)
	}

	fanout := len(sources)
	if usedDefault && fanout > 3 {
		fanout = 3
	}
	if intent.Complexity == "multi_hop" && fanout < 2 {
		fanout = 2
	}

	return model.PolicyControls{
		LatencyBudget: latency,
		QualityFloor:  quality,
		CostCeiling:   cost,
		FanoutLimit:   fanout,
	}
}

func tierRank(t model.Tier) int {
	switch t {
	case model.TierLow:
		return 0
	case model.TierMedium:
		return 1
	default:
		return 2
	}
}

// worstTier returns whichever tier is "costlier" (higher rank).
func worstTier(a, b model.Tier) model.Tier {
	if tierRank(b) > tierRank(a) {
		return b
	}
	return a
}

// betterTier returns whichever tier is "better quality" (higher rank, since
// quality uses the same low<medium<high ordering as a floor).
func betterTier(a, b model.Tier) model.Tier {
	if tierRank(b) > tierRank(a) {
		return b
	}
	return a
}
