package orchestrator

import (
	"context"

	"unisearch/internal/model"

	"golang.org/x/sync/errgroup"
)

// decisionOutcome pairs a RoutingDecision with whatever came back for it, so
// later phases (refinement, fusion, meta assembly) can trace a result back
// to the decision that produced it.
type decisionOutcome struct {
	Decision   model.RoutingDecision
	Results    []model.SearchResult
	Count      *int64
	Aggregates []model.AggregateGroup
	Success    bool
	Errors     []string
}

// fanOut executes every decision concurrently and returns outcomes in
// decision order, not completion order.
func (o *Orchestrator) fanOut(ctx context.Context, decisions []model.RoutingDecision) []decisionOutcome {
	outcomes := make([]decisionOutcome, len(decisions))
	g := errgroup.Group{}
	for i, d := range decisions {
		i, d := i, d
		g.Go(func() error {
			outcomes[i] = o.executeDecision(ctx, d)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// executeDecision runs one RoutingDecision against whichever of the direct
// backend registry or the MCP dispatcher owns its source. A
// direct backend never answers count/aggregate; its mode is coerced to
// search before dispatch and the decision is re-tagged to match what
// actually ran.
func (o *Orchestrator) executeDecision(ctx context.Context, d model.RoutingDecision) decisionOutcome {
	if o.backends != nil {
		if b, ok := o.backends.Get(d.Source); ok {
			d.Mode = model.ModeSearch
			results, err := b.Search(ctx, d.Query, d.Methods, d.Filters, d.TopK)
			if err != nil {
				return decisionOutcome{Decision: d, Errors: []string{d.Source + ": " + err.Error()}}
			}
			for i := range results {
				results[i].Source = d.Source
				results[i].SourceClass = b.SourceClass()
			}
			return decisionOutcome{Decision: d, Results: results, Success: true}
		}
	}

	if o.dispatcher != nil && o.dispatcher.HasSource(d.Source) {
		res := o.dispatcher.Search(ctx, d.Source, d.Query, d.Methods, d.Filters, d.TopK, d.Mode, d.SortField, d.SortOrder, d.GroupBy, d.AggregateTopN)
		return decisionOutcome{
			Decision:   d,
			Results:    res.Results,
			Count:      res.Count,
			Aggregates: res.Aggregates,
			Success:    res.Success,
			Errors:     res.Errors,
		}
	}

	return decisionOutcome{Decision: d, Errors: []string{"source " + d.Source + " has no bound backend or MCP connection"}}
}

// runMultiHop executes intent.RetrievalPlan's steps in sequence:
// step one's results feed C7's entity extraction, whose output becomes step
// two's filters. Outcomes from every step are returned in step order, then
// decision order within a step, never completion order.
func (o *Orchestrator) runMultiHop(ctx context.Context, query string, in model.Intent) (outcomes []decisionOutcome, errs []string, iterations int) {
	var carriedFilters []model.FilterClause

	for stepIdx, step := range in.RetrievalPlan {
		sources := step.Sources
		if step.EntityFromPrevious {
			sources = narrowToEntitySupportingSources(o.registry, step.Sources)
		}

		stepQuery := query
		if step.QueryFocus != "" {
			stepQuery = step.QueryFocus
		}

		decisions := make([]model.RoutingDecision, 0, len(sources))
		for _, sourceName := range sources {
			c, ok := o.registry.Get(sourceName)
			if !ok {
				continue
			}
			filters := carriedFilters
			methods := o.router.SelectMethods(c, stepQuery, filters)
			decisions = append(decisions, model.RoutingDecision{
				Source:  sourceName,
				Methods: methods,
				Query:   stepQuery,
				Filters: filters,
				Mode:    model.ModeSearch,
				TopK:    c.DefaultLimit,
			})
		}

		if len(decisions) == 0 {
			errs = append(errs, "multi-hop step has no resolvable sources")
			continue
		}

		stepOutcomes := o.fanOut(ctx, decisions)
		outcomes = append(outcomes, stepOutcomes...)
		iterations++

		if stepIdx+1 < len(in.RetrievalPlan) && in.RetrievalPlan[stepIdx+1].EntityFromPrevious {
			carriedFilters = o.carryEntityFilters(ctx, sources, stepOutcomes)
			if len(carriedFilters) == 0 {
				errs = append(errs, "multi-hop entity extraction found no carryable entity")
			}
		}
	}

	return outcomes, errs, maxInt(iterations, 1)
}

// carryEntityFilters derives the next hop's entity filters from the current
// step's outcomes: an aggregate answer's top group wins outright, otherwise
// the entity extractor reads result metadata via the producing sources'
// declared rules.
func (o *Orchestrator) carryEntityFilters(ctx context.Context, stepSources []string, stepOutcomes []decisionOutcome) []model.FilterClause {
	for _, out := range stepOutcomes {
		if len(out.Aggregates) == 0 {
			continue
		}
		top := out.Aggregates[0]
		value := top.Label
		if value == "" {
			value = top.GroupValue
		}
		if value != "" {
			return []model.FilterClause{{Field: "from_name", Operator: model.OpContains, Value: value}}
		}
	}

	if o.entities == nil {
		return nil
	}
	var stepResults []model.SearchResult
	for _, out := range stepOutcomes {
		stepResults = append(stepResults, out.Results...)
	}
	rules := entityRulesForSources(o.registry, stepSources)
	return o.entities.Extract(ctx, stepResults, rules)
}

// narrowToEntitySupportingSources restricts candidates to sources declaring
// from_name or from_email filters, falling back to the original candidate
// list if none qualify.
func narrowToEntitySupportingSources(reg interface {
	Get(string) (model.Capability, bool)
}, candidates []string) []string {
	out := make([]string, 0, len(candidates))
	for _, s := range candidates {
		c, ok := reg.Get(s)
		if !ok {
			continue
		}
		if c.SupportsFilter("from_name") || c.SupportsFilter("from_email") {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return candidates
	}
	return out
}

func entityRulesForSources(reg interface {
	Get(string) (model.Capability, bool)
}, sources []string) []model.EntityExtractionRule {
	var out []model.EntityExtractionRule
	for _, s := range sources {
		c, ok := reg.Get(s)
		if !ok {
			continue
		}
		out = append(out, c.EntityExtractionRules...)
	}
	return out
}
