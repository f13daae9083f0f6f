// Package router implements the retrieval router (C4): deterministic source
// scoring, mode/group-by resolution, filter extraction, and the policy plan.
package router

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"unisearch/internal/capability"
	"unisearch/internal/model"
)

var negativeEvidencePattern = regexp.MustCompile(`(?i)\b(not|without|except|excluding|instead of)\s+([a-z0-9 _-]{2,40})`)

// ScoreSources scores every capability against query using the alias-match
// heuristics and returns matches sorted by confidence descending,
// then earliest match position, then source name.
func ScoreSources(query string, caps []model.Capability) []model.SourceMatch {
	lowerQuery := strings.ToLower(strings.TrimSpace(query))
	matches := make([]model.SourceMatch, 0, len(caps))

	negatedAliases := extractNegatedAliases(lowerQuery)

	for _, c := range caps {
		aliases := capability.Aliases(c)
		score := 0.0
		position := -1
		var reasons []string

		for _, alias := range aliases {
			if negatedAliases[alias] {
				score -= 0.7
				reasons = append(reasons, "negative evidence against alias \""+alias+"\"")
				continue
			}

			if lowerQuery == alias {
				score += 0.5
				reasons = append(reasons, "query exactly equals alias \""+alias+"\"")
			}

			if idx := wordBoundaryIndex(lowerQuery, alias); idx >= 0 {
				bonus := 0.35 + positionBonus(idx, len(lowerQuery))
				score += bonus
				reasons = append(reasons, fmt.Sprintf("alias %q matched at position %d", alias, idx))
				if position == -1 || idx < position {
					position = idx
				}
			}
		}

		overlap := tokenOverlapRatio(lowerQuery, aliases)
		if overlap > 0 {
			score += 0.35 * overlap
			reasons = append(reasons, fmt.Sprintf("token overlap ratio %.2f", overlap))
		}

		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		if position == -1 {
			position = 1 << 30
		}

		matches = append(matches, model.SourceMatch{
			Source:     c.SourceName,
			Confidence: score,
			Position:   position,
			Reasons:    reasons,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Confidence != matches[j].Confidence {
			return matches[i].Confidence > matches[j].Confidence
		}
		if matches[i].Position != matches[j].Position {
			return matches[i].Position < matches[j].Position
		}
		return matches[i].Source < matches[j].Source
	})

	return matches
}

// FilterMatches applies a confidence threshold and a top_n cap to a sorted
// (by ScoreSources) match list, preserving order (confidences stay in [0,1], sorted
// invariant: confidences in [0,1], sorted descending, length <= k, only
// present if confidence >= t).
func FilterMatches(matches []model.SourceMatch, threshold float64, topN int) []model.SourceMatch {
	out := make([]model.SourceMatch, 0, len(matches))
	for _, m := range matches {
		if m.Confidence < threshold {
			continue
		}
		out = append(out, m)
		if topN > 0 && len(out) >= topN {
			break
		}
	}
	return out
}

func extractNegatedAliases(lowerQuery string) map[string]bool {
	out := make(map[string]bool)
	for _, m := range negativeEvidencePattern.FindAllStringSubmatch(lowerQuery, -1) {
		phrase := strings.TrimSpace(m[2])
		out[phrase] = true
		for _, tok := range strings.Fields(phrase) {
			out[tok] = true
		}
	}
	return out
}

// wordBoundaryIndex finds alias inside query at a word boundary (whole
// phrase or whole word), returning its byte index, or -1 if absent.
func wordBoundaryIndex(query, alias string) int {
	if alias == "" {
		return -1
	}
	idx := strings.Index(query, alias)
	for idx >= 0 {
		before := idx == 0 || isWordBreak(rune(query[idx-1]))
		afterPos := idx + len(alias)
		after := afterPos >= len(query) || isWordBreak(rune(query[afterPos]))
		if before && after {
			return idx
		}
		next := strings.Index(query[idx+1:], alias)
		if next < 0 {
			return -1
		}
		idx = idx + 1 + next
	}
	return -1
}

func isWordBreak(r rune) bool {
	return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
}

// positionBonus rewards earlier matches with a small (<=0.1) bump.
func positionBonus(idx, queryLen int) float64 {
	if queryLen == 0 {
		return 0
	}
	frac := 1.0 - float64(idx)/float64(queryLen)
	return 0.1 * frac
}

func tokenOverlapRatio(query string, aliases []string) float64 {
	queryTokens := strings.Fields(query)
	if len(queryTokens) == 0 {
		return 0
	}
	aliasTokenSet := make(map[string]struct{})
	for _, a := range aliases {
		for _, tok := range strings.Fields(a) {
			aliasTokenSet[tok] = struct{}{}
		}
	}
	if len(aliasTokenSet) == 0 {
		return 0
	}
	hits := 0
	for _, tok := range queryTokens {
		if _, ok := aliasTokenSet[tok]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(queryTokens))
}
