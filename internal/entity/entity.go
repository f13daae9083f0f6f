// Package entity implements the entity extractor (C7): applies a source's
// declared entity_extraction_rules to prior-step results, falling back to
// a language-model prompt when metadata yields nothing.
package entity

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"unisearch/internal/model"

	"go.uber.org/zap"
)

// Completer is the language-model fallback shape, identical to the
// one the intent/orchestrator layers depend on.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Extractor applies entity-extraction rules to a prior step's results.
type Extractor struct {
	completer Completer
	logger    *zap.Logger
}

// New creates an Extractor. completer may be nil, in which case the LM
// fallback is skipped and Extract returns whatever metadata rules produced
// (possibly nothing).
func New(completer Completer, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{completer: completer, logger: logger}
}

// Extract applies rules, in order, against each result's metadata,
// returning the first rule that yields a value per target field. If no
// rule yields anything and a Completer is configured, the top 3 results
// are passed to an LM fallback prompt.
func (e *Extractor) Extract(ctx context.Context, results []model.SearchResult, rules []model.EntityExtractionRule) []model.FilterClause {
	var out []model.FilterClause
	seen := make(map[string]bool)

	for _, rule := range rules {
		for _, r := range results {
			raw, ok := r.Metadata[rule.MetadataKey]
			if !ok {
				continue
			}
			rawStr := fmt.Sprintf("%v", raw)
			values := applyParser(rule.Parser, rawStr, rule.TargetField)
			for field, value := range values {
				if value == "" || seen[field] {
					continue
				}
				seen[field] = true
				out = append(out, model.FilterClause{Field: field, Operator: model.OpContains, Value: value})
			}
		}
	}

	if len(out) > 0 || e.completer == nil {
		return out
	}

	return e.extractViaLM(ctx, results)
}

// applyParser runs one rule parser over a raw metadata value. The string parser maps
// targetField directly to the trimmed value; email_from_header can produce
// both from_name and from_email from one value, independent of targetField.
func applyParser(parser model.EntityParser, raw, targetField string) map[string]string {
	switch parser {
	case model.ParserEmailFromHeader:
		return parseEmailFromHeader(raw)
	case model.ParserString:
		return map[string]string{targetField: strings.TrimSpace(raw)}
	default:
		return nil
	}
}

var emailHeaderPattern = regexp.MustCompile(`^\s*(.*?)\s*<([\w.+-]+@[\w.-]+\.\w+)>\s*$`)
var bareEmailPattern = regexp.MustCompile(`^[\w.+-]+@[\w.-]+\.\w+$`)

func parseEmailFromHeader(raw string) map[string]string {
	raw = strings.TrimSpace(raw)
	out := make(map[string]string)
	if m := emailHeaderPattern.FindStringSubmatch(raw); m != nil {
		if m[1] != "" {
			out["from_name"] = strings.Trim(m[1], `"`)
		}
		out["from_email"] = m[2]
		return out
	}
	if bareEmailPattern.MatchString(raw) {
		out["from_email"] = raw
		return out
	}
	if raw != "" {
		out["from_name"] = raw
	}
	return out
}

const entityPromptTemplate = `Extract the primary person referenced by these search results. Respond with exactly one of:
- "Name (email@example.com)" if both a name and email are present
- a plain name if only a name is present
- NONE if no person can be identified

Results:
%s`

func (e *Extractor) extractViaLM(ctx context.Context, results []model.SearchResult) []model.FilterClause {
	top := results
	if len(top) > 3 {
		top = top[:3]
	}
	if len(top) == 0 {
		return nil
	}

	var sb strings.Builder
	for _, r := range top {
		fmt.Fprintf(&sb, "- %s | %s | %s\n", r.Title, r.Provenance, r.Snippet)
	}

	resp, err := e.completer.Complete(ctx, fmt.Sprintf(entityPromptTemplate, sb.String()), 64)
	if err != nil {
		e.logger.Warn("entity LM fallback failed", zap.Error(err))
		return nil
	}

	return parseLMEntityResponse(resp)
}

var nameEmailResponsePattern = regexp.MustCompile(`^(.*?)\s*\(([\w.+-]+@[\w.-]+\.\w+)\)$`)

func parseLMEntityResponse(resp string) []model.FilterClause {
	resp = strings.TrimSpace(resp)
	if resp == "" || strings.EqualFold(resp, "NONE") {
		return nil
	}

	if m := nameEmailResponsePattern.FindStringSubmatch(resp); m != nil {
		var out []model.FilterClause
		if m[1] != "" {
			out = append(out, model.FilterClause{Field: "from_name", Operator: model.OpContains, Value: m[1]})
		}
		out = append(out, model.FilterClause{Field: "from_email", Operator: model.OpContains, Value: m[2]})
		return out
	}

	return []model.FilterClause{{Field: "from_name", Operator: model.OpContains, Value: resp}}
}
