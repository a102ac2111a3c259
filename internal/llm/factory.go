package llm

import (
	"fmt"
	"strings"

	"github.com/ppiankov/deidentify/internal/model"
)

// NewProvider creates a new LLM provider based on configuration
func NewProvider(config Config) (Provider, error) {
	provider := strings.ToLower(config.Provider)

	switch provider {
	case "openai":
		return NewOpenAIProvider(config)

	case "anthropic", "claude":
		return NewAnthropicProvider(config)

	case "ollama":
		return NewOllamaProvider(config)

	case "":
		// No provider configured - LLM recognizer disabled
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, anthropic, ollama)", config.Provider)
	}
}

// ConfigFromModel converts the recognizer and proxy settings to llm.Config
func ConfigFromModel(llmConfig model.LLMConfig, httpConfig model.HTTPConfig) Config {
	config := DefaultConfig()
	config.Provider = llmConfig.Provider
	config.Model = llmConfig.Model
	config.APIKey = llmConfig.APIKey
	config.BaseURL = llmConfig.BaseURL
	if llmConfig.Timeout > 0 {
		config.Timeout = llmConfig.Timeout
	}
	config.HTTPProxy = httpConfig.HTTPProxy
	config.HTTPSProxy = httpConfig.HTTPSProxy
	config.NoProxy = httpConfig.NoProxy
	return config
}
