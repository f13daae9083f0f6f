package entity

import (
	"context"
	"testing"

	"unisearch/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract_StringParserMapsToTargetField(t *testing.T) {
	e := New(nil, nil)
	results := []model.SearchResult{
		{Metadata: map[string]interface{}{"sender_raw": "Alice Smith"}},
	}
	rules := []model.EntityExtractionRule{
		{TargetField: "from_name", MetadataKey: "sender_raw", Parser: model.ParserString},
	}

	out := e.Extract(context.Background(), results, rules)
	require.Len(t, out, 1)
	assert.Equal(t, "from_name", out[0].Field)
	assert.Equal(t, "Alice Smith", out[0].Value)
}

func TestExtract_EmailFromHeaderParsesNameAndEmail(t *testing.T) {
	e := New(nil, nil)
	results := []model.SearchResult{
		{Metadata: map[string]interface{}{"from_header": `Alice Smith <alice@example.com>`}},
	}
	rules := []model.EntityExtractionRule{
		{TargetField: "from_email", MetadataKey: "from_header", Parser: model.ParserEmailFromHeader},
	}

	out := e.Extract(context.Background(), results, rules)
	fields := map[string]interface{}{}
	for _, f := range out {
		fields[f.Field] = f.Value
	}
	assert.Equal(t, "Alice Smith", fields["from_name"])
	assert.Equal(t, "alice@example.com", fields["from_email"])
}

func TestExtract_EmailFromHeaderToleratesBareEmail(t *testing.T) {
	e := New(nil, nil)
	results := []model.SearchResult{
		{Metadata: map[string]interface{}{"from_header": "alice@example.com"}},
	}
	rules := []model.EntityExtractionRule{
		{TargetField: "from_email", MetadataKey: "from_header", Parser: model.ParserEmailFromHeader},
	}

	out := e.Extract(context.Background(), results, rules)
	require.Len(t, out, 1)
	assert.Equal(t, "from_email", out[0].Field)
	assert.Equal(t, "alice@example.com", out[0].Value)
}

func TestExtract_NoMetadataAndNoCompleterReturnsEmpty(t *testing.T) {
	e := New(nil, nil)
	results := []model.SearchResult{{Metadata: nil}}
	rules := []model.EntityExtractionRule{
		{TargetField: "from_email", MetadataKey: "from_header", Parser: model.ParserEmailFromHeader},
	}

	out := e.Extract(context.Background(), results, rules)
	assert.Empty(t, out)
}

type stubCompleter struct {
	response string
}

func (s stubCompleter) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return s.response, nil
}

func TestExtract_FallsBackToLMWhenMetadataYieldsNothing(t *testing.T) {
	e := New(stubCompleter{response: "Alice Smith (alice@example.com)"}, nil)
	results := []model.SearchResult{
		{Title: "Re: project update", Snippet: "...", Provenance: "email"},
	}

	out := e.Extract(context.Background(), results, nil)
	fields := map[string]interface{}{}
	for _, f := range out {
		fields[f.Field] = f.Value
	}
	assert.Equal(t, "Alice Smith", fields["from_name"])
	assert.Equal(t, "alice@example.com", fields["from_email"])
}

func TestExtract_LMNoneResponseYieldsNoFilters(t *testing.T) {
	e := New(stubCompleter{response: "NONE"}, nil)
	results := []model.SearchResult{{Title: "unrelated"}}

	out := e.Extract(context.Background(), results, nil)
	assert.Empty(t, out)
}

func TestExtract_LMPlainNameResponse(t *testing.T) {
	e := New(stubCompleter{response: "Bob Jones"}, nil)
	results := []model.SearchResult{{Title: "x"}}

	out := e.Extract(context.Background(), results, nil)
	require.Len(t, out, 1)
	assert.Equal(t, "from_name", out[0].Field)
	assert.Equal(t, "Bob Jones", out[0].Value)
}
