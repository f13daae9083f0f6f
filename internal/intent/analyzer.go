// Package intent implements the deterministic intent analyzer (C5): a set
// of regex-based extractors plus the confidence gate that decides
// whether the orchestrator can trust the deterministic result or must fall
// back to a language model.
package intent

import (
	"strings"

	"unisearch/internal/model"
	"unisearch/internal/router"

	"go.uber.org/zap"
)

const gateThreshold = 0.55

// Analyzer runs the deterministic extractors over a query and the router's
// source scores. It never calls a language model itself; gate failure is
// reported to the caller (the orchestrator), which owns the LM fallback.
type Analyzer struct {
	router *router.Router
	logger *zap.Logger
}

// New creates an Analyzer over r.
func New(r *router.Router, logger *zap.Logger) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{router: r, logger: logger}
}

// Analyze runs every extractor, computes the aggregate confidence, and
// reports whether the deterministic result passed the gate.
func (a *Analyzer) Analyze(query string) (intent model.Intent, gatePassed bool) {
	sourceMatches := a.router.ScoreQuery(query)
	sourceHints, sourceConf, sourceReasons := extractSourceHints(sourceMatches)
	temporal, temporalConf, temporalReason := extractTemporal(query)
	entities, entitiesConf, entityReasons := extractEntities(query)
	mode, aggTopN, queryTypeConf, queryTypeReason := extractQueryType(query)

	aggregateConf := 0.45*sourceConf + 0.25*queryTypeConf + 0.15*temporalConf + 0.15*entitiesConf

	intent = model.Intent{
		Label:            queryLabel(mode),
		Entities:         entities,
		Temporal:         temporal,
		SourceHints:      sourceHints,
		Complexity:       "simple",
		SearchMode:       mode,
		AggregateTopN:    aggTopN,
		Decision:         "deterministic",
		SourceConfidence: sourceConf,
		ExtractorConfidences: map[string]float64{
			"source_hints": sourceConf,
			"temporal":     temporalConf,
			"entities":     entitiesConf,
			"query_type":   queryTypeConf,
		},
		ExtractorReasons: map[string][]string{
			"source_hints": sourceReasons,
			"temporal":     {temporalReason},
			"entities":     entityReasons,
			"query_type":   {queryTypeReason},
		},
	}

	if plan, ok := detectFastPathPlan(query, sourceHints); ok {
		intent.RetrievalPlan = plan
		intent.Complexity = "multi_hop"
		intent.SourceConfidence = maxFloat(intent.SourceConfidence, 0.7)
		sourceConf = intent.SourceConfidence
		aggregateConf = 0.45*sourceConf + 0.25*queryTypeConf + 0.15*temporalConf + 0.15*entitiesConf
	}

	intent.AggregateConfidence = aggregateConf

	gatePassed = intent.SourceConfidence >= gateThreshold || aggregateConf >= gateThreshold
	return intent, gatePassed
}

func queryLabel(mode model.Mode) string {
	switch mode {
	case model.ModeCount:
		return "count_query"
	case model.ModeAggregate:
		return "aggregate_query"
	default:
		return "search_query"
	}
}

// BuildContextQuery resolves the raw input: user_message when
// supplied, else the first non-role-prefixed line of conversation_context,
// trimmed to 200 chars.
func BuildContextQuery(conversationContext, userMessage string) string {
	if strings.TrimSpace(userMessage) != "" {
		return truncate(userMessage, 200)
	}
	for _, line := range strings.Split(conversationContext, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if isRolePrefixed(line) {
			continue
		}
		return truncate(line, 200)
	}
	return ""
}

func isRolePrefixed(line string) bool {
	lower := strings.ToLower(line)
	for _, prefix := range []string{"user:", "assistant:", "system:", "human:", "ai:"} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
