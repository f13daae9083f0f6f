package router

import (
	"testing"
	"time"

	"unisearch/internal/capability"
	"unisearch/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRegistry(t *testing.T) *capability.Registry {
	t.Helper()
	reg := capability.New(zap.NewNop())

	require.NoError(t, reg.Register(model.Capability{
		SourceName:             "email",
		SourceClass:            model.SourceClassPersonal,
		SupportedMethods:       []model.Method{model.MethodStructured, model.MethodFulltext},
		SupportedModes:         []model.Mode{model.ModeSearch, model.ModeCount, model.ModeAggregate},
		SupportedGroupByFields: []string{"sender", "day"},
		SupportedFilters: []model.FilterSpec{
			{Name: "from_name", Operators: []model.FilterOperator{model.OpContains}},
			{Name: "from_email", Operators: []model.FilterOperator{model.OpEq}},
			{Name: "date_after", Operators: []model.FilterOperator{model.OpGte}},
			{Name: "date_before", Operators: []model.FilterOperator{model.OpLte}},
		},
		LatencyTier:  model.TierLow,
		QualityTier:  model.TierHigh,
		CostTier:     model.TierLow,
		DefaultLimit: 20,
	}))

	require.NoError(t, reg.Register(model.Capability{
		SourceName:       "calendar",
		SourceClass:      model.SourceClassPersonal,
		SupportedMethods: []model.Method{model.MethodStructured},
		SupportedModes:   []model.Mode{model.ModeSearch},
		SupportedFilters: []model.FilterSpec{
			{Name: "date_after", Operators: []model.FilterOperator{model.OpGte}},
			{Name: "date_before", Operators: []model.FilterOperator{model.OpLte}},
		},
		LatencyTier:  model.TierMedium,
		QualityTier:  model.TierMedium,
		CostTier:     model.TierLow,
		DefaultLimit: 20,
	}))

	require.NoError(t, reg.Register(model.Capability{
		SourceName:       "web_search",
		SourceClass:      model.SourceClassWeb,
		SupportedMethods: []model.Method{model.MethodFulltext},
		SupportedModes:   []model.Mode{model.ModeSearch},
		LatencyTier:      model.TierHigh,
		QualityTier:      model.TierMedium,
		CostTier:         model.TierHigh,
		DefaultLimit:     10,
	}))

	return reg
}

func TestRoute_SourceHintsAreHonoredWhenResolvable(t *testing.T) {
	reg := newTestRegistry(t)
	r := New(reg, nil)

	intent := model.Intent{SourceHints: []string{"calendar"}}
	plan := r.Route("meeting tomorrow", intent, time.UTC)

	require.Len(t, plan.Decisions, 1)
	assert.Equal(t, "calendar", plan.Decisions[0].Source)
	assert.False(t, plan.UsedDefaultSources)
}

func TestRoute_FallsBackToDefaultPersonalSourcesWhenNothingScores(t *testing.T) {
	reg := newTestRegistry(t)
	r := New(reg, nil)

	intent := model.Intent{}
	plan := r.Route("xyzzy plugh qux", intent, time.UTC)

	assert.True(t, plan.UsedDefaultSources)
	assert.NotEmpty(t, plan.Decisions)
	for _, d := range plan.Decisions {
		c, ok := reg.Get(d.Source)
		require.True(t, ok)
		assert.Equal(t, model.SourceClassPersonal, c.SourceClass)
	}
}

func TestRoute_AggregateDowngradesWhenSourceLacksSupport(t *testing.T) {
	reg := newTestRegistry(t)
	r := New(reg, nil)

	intent := model.Intent{
		SourceHints: []string{"calendar"},
		SearchMode:  model.ModeAggregate,
	}
	plan := r.Route("meetings", intent, time.UTC)

	require.Len(t, plan.Decisions, 1)
	assert.Equal(t, model.ModeSearch, plan.Decisions[0].Mode)
}

func TestRoute_AggregateUsesRequestedGroupByWhenDeclared(t *testing.T) {
	reg := newTestRegistry(t)
	r := New(reg, nil)

	intent := model.Intent{
		SourceHints:      []string{"email"},
		SearchMode:       model.ModeAggregate,
		AggregateGroupBy: "sender",
	}
	plan := r.Route("emails by sender", intent, time.UTC)

	require.Len(t, plan.Decisions, 1)
	assert.Equal(t, model.ModeAggregate, plan.Decisions[0].Mode)
	assert.Equal(t, "sender", plan.Decisions[0].GroupBy)
}

func TestRoute_AggregateFallsBackToFirstDeclaredGroupBy(t *testing.T) {
	reg := newTestRegistry(t)
	r := New(reg, nil)

	intent := model.Intent{
		SourceHints:      []string{"email"},
		SearchMode:       model.ModeAggregate,
		AggregateGroupBy: "not_a_real_field",
	}
	plan := r.Route("emails", intent, time.UTC)

	require.Len(t, plan.Decisions, 1)
	assert.Equal(t, "sender", plan.Decisions[0].GroupBy)
}

func TestRoute_FilterExtractionGatedByCapabilityDeclaration(t *testing.T) {
	reg := newTestRegistry(t)
	r := New(reg, nil)

	intent := model.Intent{
		SourceHints: []string{"email", "web_search"},
		Entities:    []model.IntentEntity{{Role: model.RoleSender, Name: "Alice", Email: "alice@example.com"}},
		Temporal:    "today",
	}
	plan := r.Route("messages from Alice", intent, time.UTC)

	byName := map[string]model.RoutingDecision{}
	for _, d := range plan.Decisions {
		byName[d.Source] = d
	}

	assert.NotEmpty(t, byName["email"].Filters)
	assert.Empty(t, byName["web_search"].Filters)
}

func TestRoute_TemporalTodayProducesDateAfterOnly(t *testing.T) {
	reg := newTestRegistry(t)
	r := New(reg, nil)

	intent := model.Intent{SourceHints: []string{"calendar"}, Temporal: "today"}
	plan := r.Route("standup", intent, time.UTC)

	require.Len(t, plan.Decisions, 1)
	fields := map[string]bool{}
	for _, f := range plan.Decisions[0].Filters {
		fields[f.Field] = true
	}
	assert.True(t, fields["date_after"])
	assert.False(t, fields["date_before"])
}

func TestRoute_TemporalLastWeekProducesBothBounds(t *testing.T) {
	reg := newTestRegistry(t)
	r := New(reg, nil)

	intent := model.Intent{SourceHints: []string{"calendar"}, Temporal: "last week"}
	plan := r.Route("status updates", intent, time.UTC)

	require.Len(t, plan.Decisions, 1)
	fields := map[string]bool{}
	for _, f := range plan.Decisions[0].Filters {
		fields[f.Field] = true
	}
	assert.True(t, fields["date_after"])
	assert.True(t, fields["date_before"])
}

func TestRoute_MethodSelectionFallsBackToFirstSupportedMethod(t *testing.T) {
	reg := capability.New(zap.NewNop())
	require.NoError(t, reg.Register(model.Capability{
		SourceName:       "vector_only",
		SourceClass:      model.SourceClassPersonal,
		SupportedMethods: []model.Method{model.MethodVector},
		SupportedModes:   []model.Mode{model.ModeSearch},
		LatencyTier:      model.TierLow,
		QualityTier:      model.TierLow,
		CostTier:         model.TierLow,
	}))
	r := New(reg, nil)

	intent := model.Intent{SourceHints: []string{"vector_only"}}
	plan := r.Route("", intent, time.UTC)

	require.Len(t, plan.Decisions, 1)
	assert.Equal(t, []model.Method{model.MethodVector}, plan.Decisions[0].Methods)
}

func TestRoute_PolicyControlsReflectWorstLatencyAndCost(t *testing.T) {
	reg := newTestRegistry(t)
	r := New(reg, nil)

	intent := model.Intent{SourceHints: []string{"email", "web_search"}}
	plan := r.Route("find it", intent, time.UTC)

	assert.Equal(t, model.TierHigh, plan.PolicyControls.LatencyBudget)
	assert.Equal(t, model.TierHigh, plan.PolicyControls.CostCeiling)
	assert.Equal(t, 2, plan.PolicyControls.FanoutLimit)
}

func TestRoute_ComplexityReflectsMultiHopIntent(t *testing.T) {
	reg := newTestRegistry(t)
	r := New(reg, nil)

	intent := model.Intent{SourceHints: []string{"calendar"}, Complexity: "multi_hop"}
	plan := r.Route("find attendee then search their emails", intent, time.UTC)

	assert.Equal(t, "complex", plan.Complexity)
}
