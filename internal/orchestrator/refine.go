package orchestrator

import (
	"context"

	"unisearch/internal/model"
)

const (
	reasonNoResults         = "no_results"
	reasonLowSourceCoverage = "low_source_coverage"
	reasonLowConfidence     = "low_confidence"
	reasonSingleSource      = "single_source"

	actionBroadenRetryAll   = "broaden_retry_all"
	actionRetryEmptyCleared = "retry_empty_sources_cleared"
	actionAddMethods        = "add_untried_methods"
	actionRetryEmptySame    = "retry_empty_sources_same_filters"
)

// maxRefinementDecisions caps how many decisions one refinement round may
// dispatch.
const maxRefinementDecisions = 4

// refine runs the deterministic refinement loop over a single-step plan's
// outcomes. Each reason fires at most once per search: a reason that would
// fire a second time is recorded with circuit_breaker_open=true and ends the
// loop. Count/aggregate searches never reach this code path.
func (o *Orchestrator) refine(ctx context.Context, in model.Intent, plan model.RoutingPlan, outcomes []decisionOutcome) ([]decisionOutcome, []model.RefinementTraceEntry) {
	var trace []model.RefinementTraceEntry
	fired := make(map[string]bool, 4)

	for {
		reason, action := detectRefinementTrigger(in, plan, outcomes)
		if reason == "" {
			break
		}
		if fired[reason] {
			trace = append(trace, model.RefinementTraceEntry{Reason: reason, Action: action, Fired: false, CircuitBreakerOpen: true})
			break
		}
		fired[reason] = true

		decisions := o.buildRefinementDecisions(action, plan, outcomes)
		if len(decisions) > maxRefinementDecisions {
			decisions = decisions[:maxRefinementDecisions]
		}
		ran := len(decisions) > 0
		trace = append(trace, model.RefinementTraceEntry{Reason: reason, Action: action, Fired: ran, CircuitBreakerOpen: false})
		if !ran {
			continue
		}
		outcomes = append(outcomes, o.fanOut(ctx, decisions)...)
	}

	return outcomes, trace
}

// detectRefinementTrigger checks the four quality signals in fixed priority
// order and names the first one that applies.
func detectRefinementTrigger(in model.Intent, plan model.RoutingPlan, outcomes []decisionOutcome) (reason, action string) {
	if len(outcomes) == 0 {
		return "", ""
	}

	total := 0
	sourcesWithResults := 0
	for _, out := range outcomes {
		total += len(out.Results)
		if len(out.Results) > 0 {
			sourcesWithResults++
		}
	}

	if total == 0 {
		if !planHasExplicitFilters(plan) || in.Complexity == "multi_hop" {
			return reasonNoResults, actionBroadenRetryAll
		}
		return "", ""
	}

	if total < 3 {
		return reasonLowSourceCoverage, actionRetryEmptyCleared
	}

	if averageTopScore(outcomes) < 0.7 {
		return reasonLowConfidence, actionAddMethods
	}

	if sourcesWithResults == 1 && len(in.SourceHints) >= 2 && in.Complexity != "multi_hop" {
		return reasonSingleSource, actionRetryEmptySame
	}

	return "", ""
}

func planHasExplicitFilters(plan model.RoutingPlan) bool {
	for _, d := range plan.Decisions {
		if len(d.Filters) > 0 {
			return true
		}
	}
	return false
}

// averageTopScore averages each result's best per-method score across every
// outcome; results with no scores count as zero.
func averageTopScore(outcomes []decisionOutcome) float64 {
	var sum float64
	n := 0
	for _, out := range outcomes {
		for _, r := range out.Results {
			best := 0.0
			for _, s := range r.Scores {
				if s > best {
					best = s
				}
			}
			sum += best
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func (o *Orchestrator) buildRefinementDecisions(action string, plan model.RoutingPlan, outcomes []decisionOutcome) []model.RoutingDecision {
	switch action {
	case actionBroadenRetryAll:
		return o.broadenAndRetryAll(outcomes)
	case actionRetryEmptyCleared:
		return retryEmptySources(outcomes, true)
	case actionAddMethods:
		return o.addUntriedMethods(outcomes)
	case actionRetryEmptySame:
		return retryEmptySources(outcomes, false)
	default:
		return nil
	}
}

// broadenAndRetryAll retries every prior decision with filters cleared and
// methods set to vector and structured, each only where the source supports
// it; a source with neither falls back to its first supported method.
func (o *Orchestrator) broadenAndRetryAll(outcomes []decisionOutcome) []model.RoutingDecision {
	out := make([]model.RoutingDecision, 0, len(outcomes))
	for _, prior := range outcomes {
		c, ok := o.registry.Get(prior.Decision.Source)
		if !ok {
			continue
		}
		var methods []model.Method
		if c.SupportsMethod(model.MethodVector) {
			methods = append(methods, model.MethodVector)
		}
		if c.SupportsMethod(model.MethodStructured) {
			methods = append(methods, model.MethodStructured)
		}
		if len(methods) == 0 && len(c.SupportedMethods) > 0 {
			methods = []model.Method{c.SupportedMethods[0]}
		}
		d := prior.Decision
		d.Filters = nil
		d.Methods = methods
		out = append(out, d)
	}
	return out
}

// retryEmptySources re-issues the decision of every source that returned
// nothing, optionally clearing its filters first.
func retryEmptySources(outcomes []decisionOutcome, clearFilters bool) []model.RoutingDecision {
	var out []model.RoutingDecision
	seen := make(map[string]bool)
	for _, prior := range outcomes {
		if len(prior.Results) > 0 || seen[prior.Decision.Source] {
			continue
		}
		seen[prior.Decision.Source] = true
		d := prior.Decision
		if clearFilters {
			d.Filters = nil
		}
		out = append(out, d)
	}
	return out
}

// addUntriedMethods re-issues each decision with any supported method from
// {fulltext, vector} it has not tried yet. Decisions that already tried both
// are skipped.
func (o *Orchestrator) addUntriedMethods(outcomes []decisionOutcome) []model.RoutingDecision {
	var out []model.RoutingDecision
	for _, prior := range outcomes {
		c, ok := o.registry.Get(prior.Decision.Source)
		if !ok {
			continue
		}
		tried := make(map[model.Method]bool, len(prior.Decision.Methods))
		for _, m := range prior.Decision.Methods {
			tried[m] = true
		}
		var additions []model.Method
		for _, m := range []model.Method{model.MethodFulltext, model.MethodVector} {
			if !tried[m] && c.SupportsMethod(m) {
				additions = append(additions, m)
			}
		}
		if len(additions) == 0 {
			continue
		}
		d := prior.Decision
		d.Methods = append(append([]model.Method{}, d.Methods...), additions...)
		out = append(out, d)
	}
	return out
}
