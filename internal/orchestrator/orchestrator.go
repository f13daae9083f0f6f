// Package orchestrator implements the search orchestrator (C8): it
// coordinates intent analysis, routing, parallel execution across MCP and
// direct backends, metric-driven refinement, and fusion into one ranked
// Response. It never returns a Go error for anything recoverable;
// recoverable failures become Response.Errors entries.
package orchestrator

import (
	"context"
	"sort"
	"time"

	"unisearch/internal/backend"
	"unisearch/internal/capability"
	"unisearch/internal/dispatch"
	"unisearch/internal/entity"
	"unisearch/internal/fusion"
	"unisearch/internal/intent"
	"unisearch/internal/model"
	"unisearch/internal/router"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
)

// Completer is the optional language-model fallback shape: used here
// for the intent fallback when the deterministic gate fails. The
// same shape is handed to the entity extractor (C7) for its own fallback.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Orchestrator wires every other component into one `search` call.
type Orchestrator struct {
	registry   *capability.Registry
	router     *router.Router
	analyzer   *intent.Analyzer
	dispatcher *dispatch.Dispatcher
	backends   *backend.Registry
	entities   *entity.Extractor
	completer  Completer
	timezone   *time.Location
	logger     *zap.Logger
	sanitizer  *bluemonday.Policy
}

// New builds an Orchestrator. completer may be nil, in which case the LM
// fallbacks are skipped and the core runs deterministic-only. timezone may
// be nil, in which case temporal filters degrade to UTC.
func New(
	registry *capability.Registry,
	r *router.Router,
	analyzer *intent.Analyzer,
	dispatcher *dispatch.Dispatcher,
	backends *backend.Registry,
	entities *entity.Extractor,
	completer Completer,
	timezone *time.Location,
	logger *zap.Logger,
) *Orchestrator {
	if registry == nil {
		panic("orchestrator: registry must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if timezone == nil {
		timezone = time.UTC
	}
	return &Orchestrator{
		registry:   registry,
		router:     r,
		analyzer:   analyzer,
		dispatcher: dispatcher,
		backends:   backends,
		entities:   entities,
		completer:  completer,
		timezone:   timezone,
		logger:     logger,
		sanitizer:  bluemonday.StrictPolicy(),
	}
}

const (
	defaultMaxResults = 20
	maxAllowedResults = 50
)

// Search runs the full pipeline: context, intent, routing, execution, refinement, fusion, assembly. It never panics or
// returns a Go error for a recoverable condition; every failure mode listed
// surfaces in the returned Response instead.
func (o *Orchestrator) Search(ctx context.Context, conversationContext, userMessage string, maxResults int, doRefinement bool) model.Response {
	requestID := uuid.NewString()
	timings := make(map[string]int64)
	totalStart := time.Now()

	query := timed(timings, "context", func() string {
		return intent.BuildContextQuery(conversationContext, userMessage)
	})

	if query == "" {
		o.logger.Info("empty search request", zap.String("request_id", requestID))
		return emptyResponse(requestID, timings, totalStart, "conversation_context or user_message is required")
	}

	maxResults = clampMaxResults(maxResults)

	var (
		finalIntent model.Intent
		gatePassed  bool
	)
	_ = timedVoid(timings, "intent", func() {
		det, passed := o.analyzer.Analyze(query)
		finalIntent = det
		gatePassed = passed
		if !passed {
			finalIntent = o.runLLMIntentFallback(ctx, query, det)
		}
	})

	var (
		plan        model.RoutingPlan
		outcomes    []decisionOutcome
		notes       []string
		errs        []string
		iterations  int
		refinements []model.RefinementTraceEntry
		isMultiHop  bool
	)

	_ = timedVoid(timings, "routing", func() {
		if steps := usableRetrievalPlan(finalIntent, o.registry); len(steps) >= 2 {
			isMultiHop = true
			return
		}
		plan = o.router.Route(query, finalIntent, o.timezone)
	})

	if isMultiHop {
		var hopErrs []string
		_ = timedVoid(timings, "execution", func() {
			outcomes, hopErrs, iterations = o.runMultiHop(ctx, query, finalIntent)
		})
		errs = append(errs, hopErrs...)
	} else {
		if len(plan.Decisions) == 0 {
			errs = append(errs, "No search backends available for this query")
			return assembleResponse(requestID, query, finalIntent, plan, nil, nil, nil, notes, errs, 0, nil, timings, totalStart, gatePassed)
		}
		_ = timedVoid(timings, "execution", func() {
			outcomes = o.fanOut(ctx, plan.Decisions)
		})
		iterations = 1
		if plan.UsedDefaultSources {
			notes = append(notes, "no explicit source hint; ran capped broad search")
		}

		skipRefinement := !doRefinement || isCountOrAggregate(plan.Decisions)
		if !skipRefinement {
			_ = timedVoid(timings, "refinement", func() {
				var refinedOutcomes []decisionOutcome
				refinedOutcomes, refinements = o.refine(ctx, finalIntent, plan, outcomes)
				addedRounds := countFiredRounds(refinements)
				outcomes = refinedOutcomes
				iterations += addedRounds
			})
		}
	}

	for _, out := range outcomes {
		errs = append(errs, out.Errors...)
	}

	count, countSource := firstCount(outcomes)
	aggregates, aggregatesSource := firstAggregates(outcomes)

	var allResults []model.SearchResult
	for _, out := range outcomes {
		allResults = append(allResults, out.Results...)
	}
	o.sanitizeResults(allResults)

	isPersonal := isPersonalQuery(o.registry, outcomes)

	var fused []model.SearchResult
	_ = timedVoid(timings, "fusion", func() {
		fused = fusion.Rank(allResults, isPersonal, maxResults)
	})

	return assembleResponse(requestID, query, finalIntent, plan, outcomes, fused, refinements, notes, errs, iterations, map[string]interface{}{
		"count":             count,
		"count_source":      countSource,
		"aggregates":        aggregates,
		"aggregates_source": aggregatesSource,
	}, timings, totalStart, gatePassed)
}

func (o *Orchestrator) runLLMIntentFallback(ctx context.Context, query string, deterministic model.Intent) model.Intent {
	if o.completer == nil {
		return deterministic
	}
	resp, err := o.completer.Complete(ctx, buildIntentPrompt(query), 500)
	if err != nil {
		o.logger.Warn("llm intent fallback failed", zap.Error(err))
		return deterministic
	}
	parsed, err := parseLLMIntent(resp)
	if err != nil {
		o.logger.Warn("llm intent fallback unparseable", zap.Error(err))
		return deterministic
	}
	return parsed
}

func clampMaxResults(n int) int {
	if n <= 0 {
		return defaultMaxResults
	}
	if n > maxAllowedResults {
		return maxAllowedResults
	}
	return n
}

func isCountOrAggregate(decisions []model.RoutingDecision) bool {
	for _, d := range decisions {
		if d.Mode == model.ModeCount || d.Mode == model.ModeAggregate {
			return true
		}
	}
	return false
}

// usableRetrievalPlan returns intent.RetrievalPlan when it has >=2 steps and
// every source referenced actually exists in the registry.
func usableRetrievalPlan(i model.Intent, reg *capability.Registry) []model.RetrievalStep {
	if len(i.RetrievalPlan) < 2 {
		return nil
	}
	for _, step := range i.RetrievalPlan {
		for _, s := range step.Sources {
			if _, ok := reg.Get(s); !ok {
				return nil
			}
		}
	}
	return i.RetrievalPlan
}

func firstCount(outcomes []decisionOutcome) (*int64, string) {
	for _, out := range outcomes {
		if out.Count != nil {
			return out.Count, out.Decision.Source
		}
	}
	return nil, ""
}

func firstAggregates(outcomes []decisionOutcome) ([]model.AggregateGroup, string) {
	for _, out := range outcomes {
		if len(out.Aggregates) > 0 {
			return out.Aggregates, out.Decision.Source
		}
	}
	return nil, ""
}

func isPersonalQuery(reg *capability.Registry, outcomes []decisionOutcome) bool {
	for _, out := range outcomes {
		if c, ok := reg.Get(out.Decision.Source); ok && c.SourceClass == model.SourceClassPersonal {
			return true
		}
	}
	return len(outcomes) == 0
}

func (o *Orchestrator) sanitizeResults(results []model.SearchResult) {
	for i := range results {
		results[i].Title = o.sanitizer.Sanitize(results[i].Title)
		results[i].Snippet = o.sanitizer.Sanitize(results[i].Snippet)
	}
}

func countFiredRounds(entries []model.RefinementTraceEntry) int {
	n := 0
	for _, e := range entries {
		if e.Fired {
			n++
		}
	}
	return n
}

func timed[T any](timings map[string]int64, phase string, fn func() T) T {
	start := time.Now()
	result := fn()
	timings[phase] = time.Since(start).Milliseconds()
	return result
}

func timedVoid(timings map[string]int64, phase string, fn func()) struct{} {
	start := time.Now()
	fn()
	timings[phase] = time.Since(start).Milliseconds()
	return struct{}{}
}

func emptyResponse(requestID string, timings map[string]int64, totalStart time.Time, errs ...string) model.Response {
	timings["total"] = time.Since(totalStart).Milliseconds()
	return model.Response{
		Results: nil,
		Errors:  errs,
		Notes:   nil,
		Meta: model.Meta{
			TimingMs:        timings,
			RefinementTrace: []model.RefinementTraceEntry{},
			RequestID:       requestID,
		},
	}
}

func assembleResponse(
	requestID, query string,
	finalIntent model.Intent,
	plan model.RoutingPlan,
	outcomes []decisionOutcome,
	fused []model.SearchResult,
	refinements []model.RefinementTraceEntry,
	notes, errs []string,
	iterations int,
	countAgg map[string]interface{},
	timings map[string]int64,
	totalStart time.Time,
	gatePassed bool,
) model.Response {
	timings["total"] = time.Since(totalStart).Milliseconds()

	decision := "deterministic"
	if !gatePassed && finalIntent.Decision == "llm" {
		decision = "llm"
	}

	sourcesSeen := make(map[string]struct{})
	methodsSeen := make(map[model.Method]struct{})
	for _, d := range plan.Decisions {
		sourcesSeen[d.Source] = struct{}{}
		for _, m := range d.Methods {
			methodsSeen[m] = struct{}{}
		}
	}
	for _, out := range outcomes {
		sourcesSeen[out.Decision.Source] = struct{}{}
		for _, m := range out.Decision.Methods {
			methodsSeen[m] = struct{}{}
		}
	}
	var sourcesQueried []string
	for s := range sourcesSeen {
		sourcesQueried = append(sourcesQueried, s)
	}
	sort.Strings(sourcesQueried)
	var methodsUsed []model.Method
	for m := range methodsSeen {
		methodsUsed = append(methodsUsed, m)
	}
	sort.Slice(methodsUsed, func(i, j int) bool { return methodsUsed[i] < methodsUsed[j] })

	complexity := plan.Complexity
	if complexity == "" {
		complexity = finalIntent.Complexity
	}

	meta := model.Meta{
		Query:          query,
		SourcesQueried: sourcesQueried,
		MethodsUsed:    methodsUsed,
		Iterations:     maxInt(iterations, 1),
		Complexity:     complexity,
		IntentTrace: model.IntentTrace{
			Decision:             decision,
			SourceConfidence:     finalIntent.SourceConfidence,
			AggregateConfidence:  finalIntent.AggregateConfidence,
			ExtractorConfidences: finalIntent.ExtractorConfidences,
			ExtractorReasons:     finalIntent.ExtractorReasons,
		},
		SourceMatchTrace:  plan.SourceMatches,
		TimingMs:          timings,
		RefinementTrace:   refinements,
		RoutingPolicy:     plan.PolicyControls,
		SourcePolicyTrace: plan.SourcePolicyTrace,
		RequestID:         requestID,
	}
	if refinements == nil {
		meta.RefinementTrace = []model.RefinementTraceEntry{}
	}
	if countAgg != nil {
		if c, ok := countAgg["count"].(*int64); ok && c != nil {
			meta.Count = c
			meta.CountSource, _ = countAgg["count_source"].(string)
		}
		if ag, ok := countAgg["aggregates"].([]model.AggregateGroup); ok && len(ag) > 0 {
			meta.Aggregates = ag
			meta.AggregatesSource, _ = countAgg["aggregates_source"].(string)
		}
	}

	return model.Response{
		Results: fused,
		Errors:  errs,
		Notes:   notes,
		Meta:    meta,
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
