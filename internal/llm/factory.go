package llm

import (
	"fmt"
	"strings"
	"time"
)

// Config selects and configures a provider.
type Config struct {
	Provider       string
	Model          string
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	AnthropicKey   string
	OllamaEndpoint string
	MaxTokens      int
	Temperature    float64
	Timeout        time.Duration
}

// ProviderName normalizes a configured provider name. Case is ignored and
// an empty name selects openai.
func ProviderName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "openai"
	}
	return name
}

// NewProvider builds the provider named by cfg.Provider.
func NewProvider(cfg Config) (Provider, error) {
	switch ProviderName(cfg.Provider) {
	case "openai":
		if cfg.OpenAIAPIKey == "" && cfg.OpenAIBaseURL == "" {
			return nil, fmt.Errorf("openai provider requires an API key")
		}
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: float32(cfg.Temperature),
		}), nil
	case "anthropic":
		return NewAnthropicProvider(AnthropicConfig{
			APIKey:    cfg.AnthropicKey,
			Model:     cfg.Model,
			MaxTokens: int64(cfg.MaxTokens),
		}), nil
	case "ollama":
		return NewOllamaProvider(OllamaConfig{
			BaseURL: cfg.OllamaEndpoint,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s (supported: openai, anthropic, ollama)", cfg.Provider)
	}
}
