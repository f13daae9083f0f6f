package dispatch

import (
	"encoding/json"
	"fmt"

	"unisearch/internal/model"
)

// parseResponse accepts a dict, or a
// dict with a JSON-string `output` field that is parsed first. Per-result
// and per-aggregate errors are tolerated (skipped), never fatal.
func parseResponse(raw map[string]interface{}, fallbackMode model.Mode) (Result, error) {
	body := raw
	if output, ok := raw["output"].(string); ok {
		var decoded map[string]interface{}
		if err := json.Unmarshal([]byte(output), &decoded); err != nil {
			return Result{}, fmt.Errorf("output field is not valid JSON: %w", err)
		}
		body = decoded
	}

	success := true
	if s, ok := body["success"].(bool); ok {
		success = s
	}

	mode := fallbackMode
	if m, ok := body["mode"].(string); ok && m != "" {
		mode = model.Mode(m)
	}

	result := Result{Mode: mode, Success: success}
	if !success {
		if errMsg, ok := body["error"].(string); ok {
			result.Errors = append(result.Errors, errMsg)
		} else {
			result.Errors = append(result.Errors, "backend reported success=false")
		}
		return result, nil
	}

	if rawResults, ok := body["results"].([]interface{}); ok {
		for _, item := range rawResults {
			entry, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			sr, err := toSearchResult(entry)
			if err != nil {
				continue
			}
			result.Results = append(result.Results, sr)
		}
	}

	if count, ok := numericValue(body["count"]); ok {
		c := int64(count)
		result.Count = &c
	}

	if rawAggregates, ok := body["aggregates"].([]interface{}); ok {
		for _, item := range rawAggregates {
			entry, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			ag, err := toAggregateGroup(entry)
			if err != nil {
				continue
			}
			result.Aggregates = append(result.Aggregates, ag)
		}
	}

	return result, nil
}

func toSearchResult(entry map[string]interface{}) (model.SearchResult, error) {
	id, _ := entry["id"].(string)
	if id == "" {
		return model.SearchResult{}, fmt.Errorf("result missing id")
	}
	source, _ := entry["source"].(string)
	title, _ := entry["title"].(string)
	snippet, _ := entry["snippet"].(string)
	timestamp, _ := entry["timestamp"].(string)
	provenance, _ := entry["provenance"].(string)
	sourceClass, _ := entry["source_class"].(string)

	scores := make(map[string]float64)
	if rawScores, ok := entry["scores"].(map[string]interface{}); ok {
		for k, v := range rawScores {
			if f, ok := numericValue(v); ok {
				scores[k] = f
			}
		}
	}

	var methods []model.Method
	if rawMethods, ok := entry["methods_used"].([]interface{}); ok {
		for _, m := range rawMethods {
			if s, ok := m.(string); ok {
				methods = append(methods, model.Method(s))
			}
		}
	}

	metadata, _ := entry["metadata"].(map[string]interface{})

	return model.SearchResult{
		ID:          id,
		Source:      source,
		SourceClass: model.SourceClass(sourceClass),
		Title:       title,
		Snippet:     snippet,
		Timestamp:   timestamp,
		Scores:      scores,
		MethodsUsed: methods,
		Metadata:    metadata,
		Provenance:  provenance,
	}, nil
}

func toAggregateGroup(entry map[string]interface{}) (model.AggregateGroup, error) {
	groupValue, _ := entry["group_value"].(string)
	if groupValue == "" {
		return model.AggregateGroup{}, fmt.Errorf("aggregate missing group_value")
	}
	count, _ := numericValue(entry["count"])
	label, _ := entry["label"].(string)
	metadata, _ := entry["metadata"].(map[string]interface{})
	return model.AggregateGroup{
		GroupValue: groupValue,
		Count:      int(count),
		Label:      label,
		Metadata:   metadata,
	}, nil
}

func numericValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// parseCapabilities normalizes a search_capabilities response shaped either
// as one capability or as `{"sources": [...]}`.
func parseCapabilities(raw map[string]interface{}) ([]model.Capability, error) {
	body := raw
	if output, ok := raw["output"].(string); ok {
		var decoded map[string]interface{}
		if err := json.Unmarshal([]byte(output), &decoded); err != nil {
			return nil, fmt.Errorf("output field is not valid JSON: %w", err)
		}
		body = decoded
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("re-encoding capability payload: %w", err)
	}

	var envelope struct {
		Sources []model.Capability `json:"sources"`
	}
	if err := json.Unmarshal(payload, &envelope); err == nil && len(envelope.Sources) > 0 {
		return envelope.Sources, nil
	}

	var single model.Capability
	if err := json.Unmarshal(payload, &single); err != nil {
		return nil, fmt.Errorf("invalid capability payload: %w", err)
	}
	if single.SourceName == "" {
		return nil, fmt.Errorf("invalid capability payload: missing source_name")
	}
	return []model.Capability{single}, nil
}
