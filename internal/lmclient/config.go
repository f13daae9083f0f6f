package lmclient

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the optional LM fallback configuration, loaded from the
// environment with an optional dotenv file.
type Config struct {
	Provider        string
	ProviderURL     string
	APIKey          string
	Model           string
	Temperature     float64
	MaxOutputTokens int
}

// LoadConfig loads lmclient configuration from envFilePath (if non-empty)
// and the process environment. An unset AI_PROVIDER returns (nil, nil); an
// AI_PROVIDER other than openai or anthropic returns an error. In both cases
// the caller (cmd/searchd) leaves the Completer nil and the orchestrator
// runs deterministic-only.
func LoadConfig(envFilePath string) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load %s: %w", envFilePath, err)
		}
	}

	provider := os.Getenv("AI_PROVIDER")
	if provider == "" {
		return nil, nil
	}
	if provider != "openai" && provider != "anthropic" {
		return nil, fmt.Errorf("AI_PROVIDER must be 'openai' or 'anthropic', got: %s", provider)
	}

	providerURL := os.Getenv("PROVIDER_URL")
	if providerURL == "" {
		providerURL = os.Getenv("OPENAI_BASE_URL")
	}

	apiKey := os.Getenv("API_KEY")
	if apiKey == "" {
		switch provider {
		case "openai":
			apiKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic":
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	if apiKey == "" && providerURL != "" && provider == "openai" {
		apiKey = "ollama" // local OpenAI-compatible endpoints don't validate keys
	}

	model := os.Getenv("AI_MODEL")
	if model == "" {
		switch provider {
		case "openai":
			model = "gpt-4-turbo-preview"
		case "anthropic":
			model = "claude-3-sonnet-20240229"
		}
	}

	temperature := 0.2 // low temperature: intent/entity fallback wants determinism, not creativity
	if tempStr := os.Getenv("TEMPERATURE"); tempStr != "" {
		if val, err := strconv.ParseFloat(tempStr, 64); err == nil && val >= 0 && val <= 2.0 {
			temperature = val
		}
	}

	maxOutputTokens := 0
	if maxTokensStr := os.Getenv("MAX_OUT_TOKENS"); maxTokensStr != "" {
		if val, err := strconv.Atoi(maxTokensStr); err == nil && val > 0 {
			maxOutputTokens = val
		}
	}

	return &Config{
		Provider:        provider,
		ProviderURL:     providerURL,
		APIKey:          apiKey,
		Model:           model,
		Temperature:     temperature,
		MaxOutputTokens: maxOutputTokens,
	}, nil
}

// Validate checks the configuration is complete enough to build a client.
func (c *Config) Validate() error {
	if c.Provider != "openai" && c.Provider != "anthropic" {
		return fmt.Errorf("invalid provider: %s", c.Provider)
	}
	if c.APIKey == "" {
		return fmt.Errorf("API key required for %s provider", c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("model name is required")
	}
	if c.Temperature < 0 || c.Temperature > 2.0 {
		return fmt.Errorf("temperature must be between 0 and 2.0")
	}
	return nil
}
