package router

import (
	"testing"

	"unisearch/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCapability(name string, class model.SourceClass, aliases ...string) model.Capability {
	c := model.Capability{
		SourceName:       name,
		SourceClass:      class,
		SupportedMethods: []model.Method{model.MethodFulltext, model.MethodStructured},
		SupportedModes:   []model.Mode{model.ModeSearch},
		SupportedFilters: []model.FilterSpec{
			{Name: "date_after", Operators: []model.FilterOperator{model.OpGte}},
			{Name: "date_before", Operators: []model.FilterOperator{model.OpLte}},
			{Name: "from_name", Operators: []model.FilterOperator{model.OpContains}},
			{Name: "from_email", Operators: []model.FilterOperator{model.OpEq}},
		},
		AliasHints:  aliases,
		LatencyTier: model.TierLow,
		QualityTier: model.TierMedium,
		CostTier:    model.TierLow,
	}
	c.Normalize()
	return c
}

func TestScoreSources_ExactMatchOutranksPartial(t *testing.T) {
	caps := []model.Capability{
		testCapability("email", model.SourceClassPersonal),
		testCapability("calendar", model.SourceClassPersonal),
	}

	matches := ScoreSources("email", caps)
	require.Len(t, matches, 2)
	assert.Equal(t, "email", matches[0].Source)
	assert.Greater(t, matches[0].Confidence, matches[1].Confidence)
	assert.InDelta(t, 1.0, matches[0].Confidence, 0.2)
}

func TestScoreSources_NegativeEvidenceSuppressesSource(t *testing.T) {
	caps := []model.Capability{
		testCapability("calendar", model.SourceClassPersonal),
		testCapability("email", model.SourceClassPersonal, "messages"),
	}

	matches := ScoreSources("find messages not in calendar", caps)
	var calendarMatch, emailMatch model.SourceMatch
	for _, m := range matches {
		switch m.Source {
		case "calendar":
			calendarMatch = m
		case "email":
			emailMatch = m
		}
	}
	assert.Less(t, calendarMatch.Confidence, emailMatch.Confidence)
	assert.Equal(t, 0.0, calendarMatch.Confidence)
}

func TestScoreSources_ConfidencesClampedAndSorted(t *testing.T) {
	caps := []model.Capability{
		testCapability("browser_history", model.SourceClassPersonal, "browsing", "history"),
		testCapability("email", model.SourceClassPersonal),
		testCapability("calendar", model.SourceClassPersonal),
	}

	matches := ScoreSources("browser history browsing history browsing", caps)
	for _, m := range matches {
		assert.GreaterOrEqual(t, m.Confidence, 0.0)
		assert.LessOrEqual(t, m.Confidence, 1.0)
	}
	for i := 1; i < len(matches); i++ {
		assert.LessOrEqual(t, matches[i].Confidence, matches[i-1].Confidence)
	}
}

func TestScoreSources_EmptyQueryYieldsNoAliasMatches(t *testing.T) {
	caps := []model.Capability{testCapability("email", model.SourceClassPersonal)}
	matches := ScoreSources("", caps)
	require.Len(t, matches, 1)
	assert.Equal(t, 0.0, matches[0].Confidence)
}

func TestFilterMatches_AppliesThresholdAndTopN(t *testing.T) {
	matches := []model.SourceMatch{
		{Source: "a", Confidence: 0.9},
		{Source: "b", Confidence: 0.6},
		{Source: "c", Confidence: 0.4},
		{Source: "d", Confidence: 0.1},
	}

	out := FilterMatches(matches, 0.5, 2)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].Source)
	assert.Equal(t, "b", out[1].Source)
}

func TestFilterMatches_NoTopNCapReturnsAllAboveThreshold(t *testing.T) {
	matches := []model.SourceMatch{
		{Source: "a", Confidence: 0.9},
		{Source: "b", Confidence: 0.2},
	}
	out := FilterMatches(matches, 0.5, 0)
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].Source)
}
