package backend

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"unisearch/internal/model"
)

// MemoryBackend is a direct, in-process structured source: calendar events,
// task lists, and similar small personal stores that don't warrant a
// separate MCP-bound service. It supports structured filtering (date range,
// contains) and a simple fulltext substring match over title+snippet.
type MemoryBackend struct {
	sourceName string
	filters    []model.FilterSpec
	records    []model.SearchResult
}

// NewMemoryBackend builds a MemoryBackend over a fixed, caller-supplied set
// of records (e.g. loaded at startup from a local calendar/tasks export).
func NewMemoryBackend(sourceName string, filters []model.FilterSpec, records []model.SearchResult) *MemoryBackend {
	return &MemoryBackend{sourceName: sourceName, filters: filters, records: records}
}

func (m *MemoryBackend) SourceName() string             { return m.sourceName }
func (m *MemoryBackend) SourceClass() model.SourceClass { return model.SourceClassPersonal }
func (m *MemoryBackend) SupportedMethods() []model.Method {
	return []model.Method{model.MethodStructured, model.MethodFulltext}
}
func (m *MemoryBackend) SupportedFilters() []model.FilterSpec { return m.filters }

// Search filters m.records by the given filters, keeps the records whose
// title+snippet contain query (case-insensitive; all of them when query is
// empty), and returns them newest-first by timestamp, up to topK.
func (m *MemoryBackend) Search(ctx context.Context, query string, methods []model.Method, filters []model.FilterClause, topK int) ([]model.SearchResult, error) {
	candidates := make([]model.SearchResult, 0, len(m.records))
	for _, r := range m.records {
		if matchesFilters(r, filters) {
			candidates = append(candidates, r)
		}
	}

	lowerQuery := strings.ToLower(strings.TrimSpace(query))
	scored := make([]model.SearchResult, 0, len(candidates))
	for _, r := range candidates {
		score := 1.0
		if lowerQuery != "" {
			haystack := strings.ToLower(r.Title + " " + r.Snippet)
			if !strings.Contains(haystack, lowerQuery) {
				continue
			}
			score = 0.9
		}
		r.Scores = map[string]float64{string(model.MethodStructured): score, string(model.MethodFulltext): score}
		r.MethodsUsed = []model.Method{model.MethodStructured, model.MethodFulltext}
		scored = append(scored, r)
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Timestamp > scored[j].Timestamp })

	if topK <= 0 {
		topK = 20
	}
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

func matchesFilters(r model.SearchResult, filters []model.FilterClause) bool {
	for _, f := range filters {
		if !matchesFilter(r, f) {
			return false
		}
	}
	return true
}

func matchesFilter(r model.SearchResult, f model.FilterClause) bool {
	switch f.Field {
	case "date_after", "date_before":
		return matchesDateFilter(r.Timestamp, f)
	default:
		metaVal, ok := r.Metadata[f.Field]
		if !ok {
			return false
		}
		return matchesValueFilter(metaVal, f)
	}
}

func matchesDateFilter(timestamp string, f model.FilterClause) bool {
	if timestamp == "" {
		return false
	}
	recordTime, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return false
	}
	boundStr, ok := f.Value.(string)
	if !ok {
		return false
	}
	bound, err := time.Parse(time.RFC3339, boundStr)
	if err != nil {
		return false
	}
	if f.Field == "date_after" {
		return !recordTime.Before(bound)
	}
	return !recordTime.After(bound)
}

func matchesValueFilter(actual interface{}, f model.FilterClause) bool {
	actualStr := toComparableString(actual)
	wantStr := toComparableString(f.Value)
	switch f.Operator {
	case model.OpEq:
		return strings.EqualFold(actualStr, wantStr)
	case model.OpContains:
		return strings.Contains(strings.ToLower(actualStr), strings.ToLower(wantStr))
	default:
		return strings.EqualFold(actualStr, wantStr)
	}
}

func toComparableString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	default:
		return ""
	}
}
