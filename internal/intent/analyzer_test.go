package intent

import (
	"testing"

	"unisearch/internal/capability"
	"unisearch/internal/model"
	"unisearch/internal/router"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	reg := capability.New(zap.NewNop())
	require.NoError(t, reg.Register(model.Capability{
		SourceName:       "email",
		SourceClass:      model.SourceClassPersonal,
		SupportedMethods: []model.Method{model.MethodStructured, model.MethodFulltext},
		SupportedModes:   []model.Mode{model.ModeSearch, model.ModeCount, model.ModeAggregate},
		LatencyTier:      model.TierLow,
		QualityTier:      model.TierHigh,
		CostTier:         model.TierLow,
	}))
	require.NoError(t, reg.Register(model.Capability{
		SourceName:       "calendar",
		SourceClass:      model.SourceClassPersonal,
		SupportedMethods: []model.Method{model.MethodStructured},
		SupportedModes:   []model.Mode{model.ModeSearch},
		LatencyTier:      model.TierMedium,
		QualityTier:      model.TierMedium,
		CostTier:         model.TierLow,
	}))
	r := router.New(reg, nil)
	return New(r, nil)
}

func TestAnalyze_ExactSourceMentionPassesGate(t *testing.T) {
	a := newTestAnalyzer(t)
	in, gatePassed := a.Analyze("email")
	assert.True(t, gatePassed)
	assert.Contains(t, in.SourceHints, "email")
	assert.Equal(t, "deterministic", in.Decision)
}

func TestAnalyze_VagueQueryFailsGate(t *testing.T) {
	a := newTestAnalyzer(t)
	in, gatePassed := a.Analyze("xyzzy plugh qux corge")
	assert.False(t, gatePassed)
	assert.Equal(t, 0.0, in.SourceConfidence)
}

func TestAnalyze_CountKeywordSetsCountMode(t *testing.T) {
	a := newTestAnalyzer(t)
	in, _ := a.Analyze("how many emails from Alice")
	assert.Equal(t, model.ModeCount, in.SearchMode)
}

func TestAnalyze_AggregateKeywordSetsAggregateModeAndTopN(t *testing.T) {
	a := newTestAnalyzer(t)
	in, _ := a.Analyze("breakdown of emails by sender")
	assert.Equal(t, model.ModeAggregate, in.SearchMode)
	assert.Equal(t, 10, in.AggregateTopN)
}

func TestAnalyze_TemporalTokenIsNormalized(t *testing.T) {
	a := newTestAnalyzer(t)
	in, _ := a.Analyze("emails from yesterday")
	assert.Equal(t, "yesterday", in.Temporal)
}

func TestAnalyze_SenderEntityWithEmailScoresHigherThanName(t *testing.T) {
	a := newTestAnalyzer(t)
	byEmail, _ := a.Analyze("messages from alice@example.com")
	byName, _ := a.Analyze("messages from Alice")

	require.NotEmpty(t, byEmail.Entities)
	require.NotEmpty(t, byName.Entities)
	assert.Equal(t, "alice@example.com", byEmail.Entities[0].Email)
	assert.Equal(t, "Alice", byName.Entities[0].Name)
	assert.Greater(t, byEmail.ExtractorConfidences["entities"], byName.ExtractorConfidences["entities"])
}

func TestAnalyze_RecipientEntityIsExtracted(t *testing.T) {
	a := newTestAnalyzer(t)
	in, _ := a.Analyze("emails to Bob")
	require.NotEmpty(t, in.Entities)
	assert.Equal(t, model.RoleRecipient, in.Entities[0].Role)
	assert.Equal(t, "Bob", in.Entities[0].Name)
}

func TestAnalyze_FastPathPromotesComplexityAndFloorsSourceConfidence(t *testing.T) {
	a := newTestAnalyzer(t)
	in, gatePassed := a.Analyze("find email from Bob and then search their calendar")
	assert.Equal(t, "multi_hop", in.Complexity)
	require.Len(t, in.RetrievalPlan, 2)
	assert.True(t, in.RetrievalPlan[1].EntityFromPrevious)
	assert.GreaterOrEqual(t, in.SourceConfidence, 0.7)
	assert.True(t, gatePassed)
}

func TestBuildContextQuery_PrefersUserMessage(t *testing.T) {
	got := BuildContextQuery("user: hi\nassistant: hello", "what's on my calendar")
	assert.Equal(t, "what's on my calendar", got)
}

func TestBuildContextQuery_SkipsRolePrefixedLines(t *testing.T) {
	got := BuildContextQuery("system: setup\nuser: hello\nfind my emails\n", "")
	assert.Equal(t, "find my emails", got)
}

func TestBuildContextQuery_TruncatesTo200Chars(t *testing.T) {
	long := ""
	for i := 0; i < 50; i++ {
		long += "0123456789"
	}
	got := BuildContextQuery("", long)
	assert.Len(t, got, 200)
}
