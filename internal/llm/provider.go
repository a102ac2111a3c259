// Package llm talks to chat-completion LLMs that extract personal data from
// free text.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Extract asks the model for the personal data contained in a text
	Extract(ctx context.Context, req ExtractRequest) (*ExtractResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// ExtractRequest contains the input for entity extraction
type ExtractRequest struct {
	// Text is the cell value to inspect
	Text string

	// Entities restricts the labels the model may return
	Entities []string

	// Language of the text (ISO 639-1)
	Language string

	// Model overrides the configured model
	Model string

	// MaxTokens limits the response length
	MaxTokens int
}

// Entity is one value the model reported, copied verbatim from the text
type Entity struct {
	Text  string  `json:"text"`
	Label string  `json:"label"`
	Score float64 `json:"score,omitempty"`
}

// ExtractResponse contains the model's findings
type ExtractResponse struct {
	Entities   []Entity
	Model      string
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "", // Disabled by default
		Timeout:   60,
		MaxTokens: 1000,
	}
}

const systemPrompt = `You find personal data in short table cells.
Return ONLY a JSON array of objects of the form {"text": "...", "label": "..."}.
"text" must be copied exactly from the input, with the same spelling and case.
"label" must be one of the allowed labels.
Return [] if nothing is found.
Never return placeholder tokens such as <PERSON>.`

// BuildPrompt constructs the user message for an extraction request
func BuildPrompt(req ExtractRequest) string {
	var b strings.Builder

	labels := "PERSON, LOCATION, ORGANIZATION"
	if len(req.Entities) > 0 {
		labels = strings.Join(req.Entities, ", ")
	}
	fmt.Fprintf(&b, "Allowed labels: %s\n", labels)
	if req.Language != "" {
		fmt.Fprintf(&b, "Language: %s\n", req.Language)
	}
	b.WriteString("\nExample:\n")
	b.WriteString(`Input: "call John Smith in Berlin"` + "\n")
	b.WriteString(`Output: [{"text": "John Smith", "label": "PERSON"}, {"text": "Berlin", "label": "LOCATION"}]` + "\n")
	b.WriteString("\nText:\n")
	b.WriteString(req.Text)

	return b.String()
}

// ParseEntities extracts the entity array from a raw model reply. Reasoning
// blocks and markdown code fences are stripped, and entries without text are
// dropped.
func ParseEntities(raw string) ([]Entity, error) {
	content := stripThinkBlock(strings.TrimSpace(raw))
	content = stripCodeFence(content)
	if !strings.HasPrefix(content, "[") {
		content = extractJSONArray(content)
	}

	var entities []Entity
	if err := json.Unmarshal([]byte(content), &entities); err != nil {
		return nil, fmt.Errorf("parse model output: %w", err)
	}

	kept := entities[:0]
	for _, e := range entities {
		e.Text = strings.TrimSpace(e.Text)
		e.Label = strings.ToUpper(strings.TrimSpace(e.Label))
		if e.Text == "" || e.Label == "" {
			continue
		}
		kept = append(kept, e)
	}
	return kept, nil
}

// extractJSONArray finds the outermost [...] substring in s
func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	if start < 0 {
		return s
	}
	end := strings.LastIndex(s, "]")
	if end < start {
		return s
	}
	return s[start : end+1]
}

// stripThinkBlock removes a leading <think>...</think> reasoning block
func stripThinkBlock(s string) string {
	const open, close = "<think>", "</think>"
	start := strings.Index(s, open)
	if start < 0 {
		return s
	}
	end := strings.Index(s, close)
	if end < 0 {
		return strings.TrimSpace(s[:start])
	}
	return strings.TrimSpace(s[:start] + s[end+len(close):])
}

// stripCodeFence removes ```json ... ``` wrappers
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	return s
}
