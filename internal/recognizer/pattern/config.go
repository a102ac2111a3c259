package pattern

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// RecognizerFile is the top-level YAML structure of a pattern file
type RecognizerFile struct {
	Recognizers []RecognizerConfig `yaml:"recognizers"`
}

// RecognizerConfig mirrors Presidio's pattern recognizer schema
type RecognizerConfig struct {
	Name               string            `yaml:"name"`
	SupportedEntity    string            `yaml:"supported_entity"`
	Enabled            *bool             `yaml:"enabled,omitempty"`
	Patterns           []PatternConfig   `yaml:"patterns,omitempty"`
	SupportedLanguages []LanguageContext `yaml:"supported_languages,omitempty"`
	DenyList           []string          `yaml:"deny_list,omitempty"`
	DenyListScore      float64           `yaml:"deny_list_score,omitempty"`
	Validator          string            `yaml:"validator,omitempty"` // luhn, iban, ip, ssn
}

// PatternConfig is a single regex within a recognizer
type PatternConfig struct {
	Name  string  `yaml:"name"`
	Regex string  `yaml:"regex"`
	Score float64 `yaml:"score"`
}

// LanguageContext holds context words for one language
type LanguageContext struct {
	Language string   `yaml:"language"`
	Context  []string `yaml:"context,omitempty"`
}

func (r *RecognizerConfig) isEnabled() bool {
	if r.Enabled == nil {
		return true
	}
	return *r.Enabled
}

// contextFor returns the context words declared for lang
func (r *RecognizerConfig) contextFor(lang string) []string {
	for _, lc := range r.SupportedLanguages {
		if lc.Language == lang {
			return lc.Context
		}
	}
	return nil
}

// ParseRecognizerFile parses pattern YAML
func ParseRecognizerFile(data []byte) (*RecognizerFile, error) {
	var rf RecognizerFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse pattern yaml: %w", err)
	}
	for i, rec := range rf.Recognizers {
		if rec.Name == "" {
			return nil, fmt.Errorf("recognizer #%d: name is required", i)
		}
		if rec.SupportedEntity == "" {
			return nil, fmt.Errorf("recognizer %q: supported_entity is required", rec.Name)
		}
	}
	return &rf, nil
}

// LoadRecognizerFile reads and parses a pattern file from disk
func LoadRecognizerFile(path string) (*RecognizerFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pattern file: %w", err)
	}
	return ParseRecognizerFile(data)
}

// DefaultRecognizers returns the embedded recognizer definitions
func DefaultRecognizers() ([]RecognizerConfig, error) {
	rf, err := ParseRecognizerFile(defaultsYAML)
	if err != nil {
		return nil, fmt.Errorf("embedded patterns: %w", err)
	}
	return rf.Recognizers, nil
}

// MergeRecognizers layers recognizer lists. A later entry replaces an earlier
// one with the same name; new names are appended.
func MergeRecognizers(layers ...[]RecognizerConfig) []RecognizerConfig {
	index := make(map[string]int)
	var merged []RecognizerConfig

	for _, layer := range layers {
		for _, rc := range layer {
			if idx, exists := index[rc.Name]; exists {
				merged[idx] = rc
			} else {
				index[rc.Name] = len(merged)
				merged = append(merged, rc)
			}
		}
	}

	return merged
}
