package llm

import (
	"fmt"
	"strings"
)

// Provider identifies a supported LLM backend.
type Provider string

const (
	ProviderOpenAI           Provider = "openai"
	ProviderAnthropic        Provider = "anthropic"
	ProviderGemini           Provider = "gemini"
	ProviderOpenAICompatible Provider = "openai-compatible"
)

// ParseProvider maps a configured provider name onto a known Provider.
func ParseProvider(name string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "openai":
		return ProviderOpenAI, nil
	case "anthropic", "claude":
		return ProviderAnthropic, nil
	case "gemini", "google":
		return ProviderGemini, nil
	case "openai-compatible", "openai_compatible", "custom":
		return ProviderOpenAICompatible, nil
	default:
		return "", fmt.Errorf("unknown provider %q", name)
	}
}

// NewClient builds a Client for the given provider. baseURL is only consulted
// for OpenAI-compatible endpoints.
func NewClient(provider Provider, apiKey, baseURL, model string) (Client, error) {
	switch provider {
	case ProviderOpenAI:
		return NewOpenAIClient(apiKey, model)
	case ProviderAnthropic:
		return NewAnthropicClient(apiKey, model)
	case ProviderGemini:
		return NewGeminiClient(apiKey, model)
	case ProviderOpenAICompatible:
		if strings.TrimSpace(baseURL) == "" {
			return nil, fmt.Errorf("openai-compatible provider requires a base URL")
		}
		return NewOpenAICompatibleClient(apiKey, baseURL, model, string(provider))
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}
