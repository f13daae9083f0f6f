package backend

import (
	"context"
	"testing"

	"unisearch/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCalendarBackend() *MemoryBackend {
	return NewMemoryBackend("calendar", []model.FilterSpec{
		{Name: "date_after", Operators: []model.FilterOperator{model.OpGte}},
		{Name: "date_before", Operators: []model.FilterOperator{model.OpLte}},
	}, []model.SearchResult{
		{ID: "1", Source: "calendar", Title: "Standup", Timestamp: "2026-07-29T09:00:00Z"},
		{ID: "2", Source: "calendar", Title: "1:1 with Bob", Timestamp: "2026-07-20T09:00:00Z"},
		{ID: "3", Source: "calendar", Title: "Board meeting", Timestamp: "2026-06-01T09:00:00Z"},
	})
}

func TestMemoryBackend_FiltersByDateAfter(t *testing.T) {
	b := newCalendarBackend()
	results, err := b.Search(context.Background(), "", nil, []model.FilterClause{
		{Field: "date_after", Operator: model.OpGte, Value: "2026-07-01T00:00:00Z"},
	}, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestMemoryBackend_QuerySubstringMatchesTitle(t *testing.T) {
	b := newCalendarBackend()
	results, err := b.Search(context.Background(), "bob", nil, nil, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "1:1 with Bob", results[0].Title)
}

func TestMemoryBackend_NoMatchesReturnsEmptyNotNilError(t *testing.T) {
	b := newCalendarBackend()
	results, err := b.Search(context.Background(), "does not exist anywhere", nil, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryBackend_RespectsTopK(t *testing.T) {
	b := newCalendarBackend()
	results, err := b.Search(context.Background(), "", nil, nil, 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestMemoryBackend_DeclaresStructuredAndFulltext(t *testing.T) {
	b := newCalendarBackend()
	methods := b.SupportedMethods()
	assert.Contains(t, methods, model.MethodStructured)
	assert.Contains(t, methods, model.MethodFulltext)
}
