package orchestrator

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"unisearch/internal/model"
)

const intentPromptTemplate = `Classify this search query into a JSON object with this exact shape:
{
  "label": "<short intent label>",
  "entities": [{"role": "sender"|"recipient", "name": "...", "email": "..."}],
  "temporal": "today|yesterday|this week|last week|this month|last month|recent|",
  "source_hints": ["<source name>", ...],
  "complexity": "simple"|"multi_hop",
  "search_mode": "search"|"count"|"aggregate",
  "aggregate_group_by": "",
  "aggregate_top_n": 0
}
Respond with ONLY the JSON object, no commentary.

Query: %s`

func buildIntentPrompt(query string) string {
	return fmt.Sprintf(intentPromptTemplate, query)
}

var (
	fencedBlockPattern   = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// parseLLMIntent tolerantly recovers a model.Intent from an LM response: it
// strips a fenced code block if present, trims trailing commas a model
// sometimes emits, then unmarshals directly into model.Intent since its JSON
// tags already match the prompted shape.
func parseLLMIntent(resp string) (model.Intent, error) {
	cleaned := strings.TrimSpace(resp)
	if m := fencedBlockPattern.FindStringSubmatch(cleaned); m != nil {
		cleaned = strings.TrimSpace(m[1])
	}
	cleaned = trailingCommaPattern.ReplaceAllString(cleaned, "$1")

	var parsed model.Intent
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return model.Intent{}, fmt.Errorf("parse llm intent: %w", err)
	}
	if strings.TrimSpace(parsed.Label) == "" {
		return model.Intent{}, fmt.Errorf("parse llm intent: missing label")
	}

	parsed.Decision = "llm"
	parsed.SourceConfidence = 1.0
	parsed.AggregateConfidence = 1.0
	if parsed.SearchMode == "" {
		parsed.SearchMode = model.ModeSearch
	}
	if parsed.Complexity == "" {
		parsed.Complexity = "simple"
	}
	return parsed, nil
}
