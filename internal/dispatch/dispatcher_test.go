package dispatch

import (
	"context"
	"encoding/json"
	"testing"

	"unisearch/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_HasSourceReflectsRegistration(t *testing.T) {
	d := New(nil)
	assert.False(t, d.HasSource("email"))

	d.RegisterMCP("conn1", []string{"email", "calendar"}, func(ctx context.Context, method string, args map[string]interface{}) (map[string]interface{}, error) {
		return nil, nil
	}, nil)

	assert.True(t, d.HasSource("email"))
	assert.True(t, d.HasSource("calendar"))
	assert.False(t, d.HasSource("unknown"))
}

func TestDispatcher_LaterRegistrationOverridesEarlier(t *testing.T) {
	d := New(nil)
	d.RegisterMCP("conn1", []string{"email"}, func(ctx context.Context, method string, args map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"success": true, "results": []interface{}{}}, nil
	}, nil)
	d.RegisterMCP("conn2", []string{"email"}, func(ctx context.Context, method string, args map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{
			"success": true,
			"results": []interface{}{
				map[string]interface{}{"id": "1", "source": "email", "title": "from conn2"},
			},
		}, nil
	}, nil)

	result := d.Search(context.Background(), "email", "q", nil, nil, 10, model.ModeSearch, "", "", "", 0)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "from conn2", result.Results[0].Title)
}

func TestDispatcher_Search_MergesRequestRoutingArgs(t *testing.T) {
	d := New(nil)
	var capturedArgs map[string]interface{}
	d.RegisterMCP("conn1", []string{"browser"}, func(ctx context.Context, method string, args map[string]interface{}) (map[string]interface{}, error) {
		capturedArgs = args
		return map[string]interface{}{"success": true, "results": []interface{}{}}, nil
	}, map[string]interface{}{"endpoint": "history"})

	d.Search(context.Background(), "browser", "q", nil, nil, 10, model.ModeSearch, "", "", "", 0)
	require.NotNil(t, capturedArgs)
	assert.Equal(t, "history", capturedArgs["endpoint"])
}

func TestDispatcher_Search_OmitsAbsentFiltersAndMethods(t *testing.T) {
	d := New(nil)
	var capturedArgs map[string]interface{}
	d.RegisterMCP("conn1", []string{"email"}, func(ctx context.Context, method string, args map[string]interface{}) (map[string]interface{}, error) {
		capturedArgs = args
		return map[string]interface{}{"success": true, "results": []interface{}{}}, nil
	}, nil)

	d.Search(context.Background(), "email", "q", nil, nil, 10, model.ModeSearch, "", "", "", 0)
	_, hasFilters := capturedArgs["filters"]
	_, hasMethods := capturedArgs["methods"]
	assert.False(t, hasFilters)
	assert.False(t, hasMethods)
}

func TestDispatcher_Search_SetsGroupByOnlyForAggregateMode(t *testing.T) {
	d := New(nil)
	var capturedArgs map[string]interface{}
	d.RegisterMCP("conn1", []string{"email"}, func(ctx context.Context, method string, args map[string]interface{}) (map[string]interface{}, error) {
		capturedArgs = args
		return map[string]interface{}{"success": true, "results": []interface{}{}}, nil
	}, nil)

	d.Search(context.Background(), "email", "q", nil, nil, 10, model.ModeSearch, "", "", "sender", 10)
	_, hasGroupBy := capturedArgs["group_by"]
	assert.False(t, hasGroupBy)

	d.Search(context.Background(), "email", "q", nil, nil, 10, model.ModeAggregate, "", "", "sender", 10)
	assert.Equal(t, "sender", capturedArgs["group_by"])
}

func TestDispatcher_Search_UnboundSourceReturnsEmptyResultNotPanic(t *testing.T) {
	d := New(nil)
	result := d.Search(context.Background(), "ghost", "q", nil, nil, 10, model.ModeSearch, "", "", "", 0)
	assert.False(t, result.Success)
	assert.Empty(t, result.Results)
	assert.NotEmpty(t, result.Errors)
}

func TestDispatcher_Search_CallFunctionErrorBecomesPartialFailure(t *testing.T) {
	d := New(nil)
	d.RegisterMCP("conn1", []string{"email"}, func(ctx context.Context, method string, args map[string]interface{}) (map[string]interface{}, error) {
		return nil, assertError{}
	}, nil)

	result := d.Search(context.Background(), "email", "q", nil, nil, 10, model.ModeSearch, "", "", "", 0)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Errors)
}

func TestDispatcher_Search_SuccessFalsePayloadBecomesPartialFailure(t *testing.T) {
	d := New(nil)
	d.RegisterMCP("conn1", []string{"email"}, func(ctx context.Context, method string, args map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"success": false, "error": "backend down"}, nil
	}, nil)

	result := d.Search(context.Background(), "email", "q", nil, nil, 10, model.ModeSearch, "", "", "", 0)
	assert.False(t, result.Success)
	assert.Contains(t, result.Errors, "backend down")
}

func TestDispatcher_Search_ParsesJSONStringOutputField(t *testing.T) {
	d := New(nil)
	inner, _ := json.Marshal(map[string]interface{}{
		"success": true,
		"results": []interface{}{
			map[string]interface{}{"id": "1", "source": "email", "title": "hi"},
		},
	})
	d.RegisterMCP("conn1", []string{"email"}, func(ctx context.Context, method string, args map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"output": string(inner)}, nil
	}, nil)

	result := d.Search(context.Background(), "email", "q", nil, nil, 10, model.ModeSearch, "", "", "", 0)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "hi", result.Results[0].Title)
}

func TestDispatcher_Search_MalformedResultEntryIsSkippedNotFatal(t *testing.T) {
	d := New(nil)
	d.RegisterMCP("conn1", []string{"email"}, func(ctx context.Context, method string, args map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{
			"success": true,
			"results": []interface{}{
				map[string]interface{}{"id": "1", "source": "email", "title": "good"},
				map[string]interface{}{"source": "email"}, // missing id, skipped
				"not even a map",
			},
		}, nil
	}, nil)

	result := d.Search(context.Background(), "email", "q", nil, nil, 10, model.ModeSearch, "", "", "", 0)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "good", result.Results[0].Title)
}

func TestFetchCapabilities_NormalizesSingleAndMultiSourcePayloads(t *testing.T) {
	d := New(nil)

	single, err := d.FetchCapabilities(context.Background(), func(ctx context.Context, method string, args map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{
			"source_name":  "email",
			"source_class": "personal",
			"latency_tier": "low",
			"quality_tier": "high",
			"cost_tier":    "low",
		}, nil
	})
	require.NoError(t, err)
	require.Len(t, single, 1)
	assert.Equal(t, "email", single[0].SourceName)

	multi, err := d.FetchCapabilities(context.Background(), func(ctx context.Context, method string, args map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{
			"sources": []interface{}{
				map[string]interface{}{
					"source_name": "email", "source_class": "personal",
					"latency_tier": "low", "quality_tier": "high", "cost_tier": "low",
				},
				map[string]interface{}{
					"source_name": "calendar", "source_class": "personal",
					"latency_tier": "medium", "quality_tier": "medium", "cost_tier": "low",
				},
			},
		}, nil
	})
	require.NoError(t, err)
	require.Len(t, multi, 2)
}

type assertError struct{}

func (assertError) Error() string { return "call function failed" }
