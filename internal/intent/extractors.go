package intent

import (
	"regexp"
	"strings"

	"unisearch/internal/model"
)

// extractSourceHints takes the router's scored sources and keeps the
// top-3 by default, reporting the top match's confidence as the
// source-hint confidence the aggregation formula weights.
func extractSourceHints(matches []model.SourceMatch) (hints []string, confidence float64, reasons []string) {
	const topDefault = 3
	for i, m := range matches {
		if i >= topDefault {
			break
		}
		if m.Confidence <= 0 {
			break
		}
		hints = append(hints, m.Source)
		reasons = append(reasons, m.Source+": "+strings.Join(m.Reasons, "; "))
	}
	if len(matches) > 0 {
		confidence = matches[0].Confidence
	}
	return hints, confidence, reasons
}

var temporalPatterns = []struct {
	pattern    *regexp.Regexp
	token      string
	confidence float64
}{
	{regexp.MustCompile(`(?i)\btoday\b`), "today", 1.0},
	{regexp.MustCompile(`(?i)\byesterday\b`), "yesterday", 1.0},
	{regexp.MustCompile(`(?i)\bthis\s+week\b`), "this week", 0.9},
	{regexp.MustCompile(`(?i)\blast\s+week\b`), "last week", 0.9},
	{regexp.MustCompile(`(?i)\bthis\s+month\b`), "this month", 0.9},
	{regexp.MustCompile(`(?i)\blast\s+month\b`), "last month", 0.9},
	{regexp.MustCompile(`(?i)\bmost\s+recent\b`), "most recent", 0.8},
	{regexp.MustCompile(`(?i)\brecently\b`), "recently", 0.8},
	{regexp.MustCompile(`(?i)\brecent\b`), "recent", 0.8},
	{regexp.MustCompile(`(?i)\blatest\b`), "latest", 0.8},
}

// extractTemporal normalizes a query's temporal language into one of the
// tokens the router understands, preferring the earliest and most specific match.
func extractTemporal(query string) (token string, confidence float64, reason string) {
	bestIdx := -1
	for _, p := range temporalPatterns {
		loc := p.pattern.FindStringIndex(query)
		if loc == nil {
			continue
		}
		if bestIdx == -1 || loc[0] < bestIdx {
			bestIdx = loc[0]
			token = p.token
			confidence = p.confidence
		}
	}
	if token == "" {
		return "", 0, ""
	}
	return token, confidence, "matched temporal phrase \"" + token + "\""
}

var (
	emailPattern = regexp.MustCompile(`[\w.+-]+@[\w.-]+\.\w+`)
	fromPattern  = regexp.MustCompile(`(?i)\bfrom\s+(` + emailPattern.String() + `|[A-Z][a-zA-Z'-]*(?:\s+[A-Z][a-zA-Z'-]*){0,2})`)
	toPattern    = regexp.MustCompile(`(?i)\bto\s+(` + emailPattern.String() + `|[A-Z][a-zA-Z'-]*(?:\s+[A-Z][a-zA-Z'-]*){0,2})`)
)

// extractEntities applies the `from <Name|Email>` / `to <Name|Email>`
// patterns; an email match is weighted higher than a bare name match.
func extractEntities(query string) (entities []model.IntentEntity, confidence float64, reasons []string) {
	if m := fromPattern.FindStringSubmatch(query); m != nil {
		e, conf, reason := buildEntity(model.RoleSender, m[1])
		entities = append(entities, e)
		reasons = append(reasons, reason)
		confidence = maxFloat(confidence, conf)
	}
	if m := toPattern.FindStringSubmatch(query); m != nil {
		e, conf, reason := buildEntity(model.RoleRecipient, m[1])
		entities = append(entities, e)
		reasons = append(reasons, reason)
		confidence = maxFloat(confidence, conf)
	}
	return entities, confidence, reasons
}

func buildEntity(role model.EntityRole, raw string) (model.IntentEntity, float64, string) {
	raw = strings.TrimSpace(raw)
	if emailPattern.MatchString(raw) {
		return model.IntentEntity{Role: role, Email: raw}, 0.9, string(role) + " email match: " + raw
	}
	return model.IntentEntity{Role: role, Name: raw}, 0.7, string(role) + " name match: " + raw
}

func maxFloat(a, b float64) float64 {
	if b > a {
		return b
	}
	return a
}

var (
	countKeywords     = regexp.MustCompile(`(?i)\b(how many|count of|number of|total count|count\b)`)
	aggregateKeywords = regexp.MustCompile(`(?i)\b(top|breakdown|grouped|group by|per)\b`)
)

// extractQueryType classifies the query as count, aggregate, or plain search.
func extractQueryType(query string) (mode model.Mode, aggregateTopN int, confidence float64, reason string) {
	if countKeywords.MatchString(query) {
		return model.ModeCount, 0, 0.95, "matched count keyword"
	}
	if aggregateKeywords.MatchString(query) {
		return model.ModeAggregate, 10, 0.8, "matched aggregate keyword"
	}
	return model.ModeSearch, 0, 0.45, "no count/aggregate keyword, defaulting to search"
}

var fastPathConjunction = regexp.MustCompile(`(?i)\b(find|search for|look up|get)\s+(.+?)\s+(?:and\s+)?then\s+(?:search|find|look up|get)\s+(?:their|his|her|its)?\s*(.+)`)

// detectFastPathPlan recognizes a two-step "find X then search their Y"
// conjunction and builds the multi-hop retrieval plan the fast-path merge
// adopts verbatim. hintSources seeds the first step so it isn't empty.
func detectFastPathPlan(query string, hintSources []string) ([]model.RetrievalStep, bool) {
	m := fastPathConjunction.FindStringSubmatch(query)
	if m == nil {
		return nil, false
	}
	firstFocus := strings.TrimSpace(m[2])
	secondFocus := strings.TrimSpace(m[3])
	if firstFocus == "" || secondFocus == "" {
		return nil, false
	}

	firstSources := hintSources
	if len(firstSources) == 0 {
		return nil, false
	}

	return []model.RetrievalStep{
		{Sources: firstSources, QueryFocus: firstFocus, EntityFromPrevious: false},
		{Sources: firstSources, QueryFocus: secondFocus, EntityFromPrevious: true},
	}, true
}
