// Package lmclient wraps langchaingo chat models behind the single shape
// the search core actually needs: an async (prompt, maxTokens) -> string
// callback. The model itself, and any tool-calling loop around it,
// belongs to the external conversational agent and is out of scope here.
package lmclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"
)

// Completer is the shape the orchestrator, intent analyzer, and entity
// extractor depend on for the optional LM fallback.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// NewCompleter builds a Completer for the configured provider.
func NewCompleter(config *Config) (Completer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid lmclient config: %w", err)
	}

	switch config.Provider {
	case "openai":
		return newOpenAICompleter(config)
	case "anthropic":
		return newAnthropicCompleter(config)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", config.Provider)
	}
}

type openAICompleter struct {
	llm    *openai.LLM
	config *Config
}

func newOpenAICompleter(config *Config) (*openAICompleter, error) {
	opts := []openai.Option{
		openai.WithModel(config.Model),
		openai.WithToken(config.APIKey),
	}
	if config.ProviderURL != "" {
		opts = append(opts, openai.WithBaseURL(config.ProviderURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
	}
	return &openAICompleter{llm: llm, config: config}, nil
}

func (p *openAICompleter) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	opts := []llms.CallOption{llms.WithTemperature(p.config.Temperature)}
	if maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(maxTokens))
	}
	resp, err := p.llm.Call(ctx, prompt, opts...)
	if err != nil {
		return "", fmt.Errorf("openai completion failed: %w", err)
	}
	return strings.TrimSpace(resp), nil
}

type anthropicCompleter struct {
	llm    *anthropic.LLM
	config *Config
}

func newAnthropicCompleter(config *Config) (*anthropicCompleter, error) {
	opts := []anthropic.Option{
		anthropic.WithModel(config.Model),
		anthropic.WithToken(config.APIKey),
	}
	llm, err := anthropic.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Anthropic client: %w", err)
	}
	return &anthropicCompleter{llm: llm, config: config}, nil
}

func (p *anthropicCompleter) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	opts := []llms.CallOption{llms.WithTemperature(p.config.Temperature)}
	if maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(maxTokens))
	}
	resp, err := p.llm.Call(ctx, prompt, opts...)
	if err != nil {
		return "", fmt.Errorf("anthropic completion failed: %w", err)
	}
	return strings.TrimSpace(resp), nil
}
