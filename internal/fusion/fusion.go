// Package fusion implements the weighted fusion ranker (C6): per-method
// weights, source-class boosts, deduplication, and deterministic ordering
// of results gathered from every routed source.
package fusion

import (
	"sort"

	"unisearch/internal/model"
)

var methodWeights = map[model.Method]float64{
	model.MethodStructured: 1.00,
	model.MethodGraph:      0.90,
	model.MethodFulltext:   0.85,
	model.MethodVector:     0.70,
}

const unknownMethodWeight = 0.50

func methodWeight(m model.Method) float64 {
	if w, ok := methodWeights[m]; ok {
		return w
	}
	return unknownMethodWeight
}

// classBoost applies the source-class boost: personal queries favor
// personal sources, web queries favor web sources.
func classBoost(class model.SourceClass, isPersonalQuery bool) float64 {
	if isPersonalQuery {
		if class == model.SourceClassPersonal {
			return 1.00
		}
		return 0.80
	}
	if class == model.SourceClassWeb {
		return 1.00
	}
	return 0.90
}

// Rank dedups results by (source, id), computes each fused score, and
// returns them sorted by fused score descending (ties broken by source
// then id), truncated to cap.
func Rank(results []model.SearchResult, isPersonalQuery bool, limit int) []model.SearchResult {
	merged := dedupe(results)

	for i := range merged {
		merged[i].FusedScore = fusedScore(merged[i], isPersonalQuery)
	}

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].FusedScore != merged[j].FusedScore {
			return merged[i].FusedScore > merged[j].FusedScore
		}
		if merged[i].Source != merged[j].Source {
			return merged[i].Source < merged[j].Source
		}
		return merged[i].ID < merged[j].ID
	})

	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

func fusedScore(r model.SearchResult, isPersonalQuery bool) float64 {
	var weightedSum, weightTotal float64
	for method, score := range r.Scores {
		w := methodWeight(model.Method(method))
		weightedSum += w * score
		weightTotal += w
	}
	if weightTotal == 0 {
		return 0
	}
	return (weightedSum / weightTotal) * classBoost(r.SourceClass, isPersonalQuery)
}

type resultKey struct {
	source string
	id     string
}

// dedupe merges results sharing (source, id): scores are merged by
// per-method max, and methods_used is the union.
func dedupe(results []model.SearchResult) []model.SearchResult {
	order := make([]resultKey, 0, len(results))
	byKey := make(map[resultKey]model.SearchResult, len(results))

	for _, r := range results {
		key := resultKey{source: r.Source, id: r.ID}
		existing, ok := byKey[key]
		if !ok {
			clone := r
			clone.Scores = cloneScores(r.Scores)
			byKey[key] = clone
			order = append(order, key)
			continue
		}
		merged := mergeResults(existing, r)
		byKey[key] = merged
	}

	out := make([]model.SearchResult, 0, len(order))
	for _, key := range order {
		out = append(out, byKey[key])
	}
	return out
}

func mergeResults(a, b model.SearchResult) model.SearchResult {
	merged := a
	if merged.Scores == nil {
		merged.Scores = make(map[string]float64)
	}
	for method, score := range b.Scores {
		if existing, ok := merged.Scores[method]; !ok || score > existing {
			merged.Scores[method] = score
		}
	}
	merged.MethodsUsed = unionMethods(a.MethodsUsed, b.MethodsUsed)

	if merged.Title == "" {
		merged.Title = b.Title
	}
	if merged.Snippet == "" {
		merged.Snippet = b.Snippet
	}
	if merged.Timestamp == "" {
		merged.Timestamp = b.Timestamp
	}
	return merged
}

func unionMethods(a, b []model.Method) []model.Method {
	seen := make(map[model.Method]struct{}, len(a)+len(b))
	out := make([]model.Method, 0, len(a)+len(b))
	for _, m := range append(append([]model.Method{}, a...), b...) {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

func cloneScores(scores map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(scores))
	for k, v := range scores {
		out[k] = v
	}
	return out
}
