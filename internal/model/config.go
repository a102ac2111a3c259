package model

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// DefaultOperator is the operator key applied to entity types without their own entry
const DefaultOperator = "DEFAULT"

// Config holds the complete de-identification configuration
type Config struct {
	TargetLanguage    string             `yaml:"target_language" mapstructure:"target_language"`
	Entities          []string           `yaml:"entities" mapstructure:"entities"`
	LowerCase         bool               `yaml:"lower_case" mapstructure:"lower_case"`
	ColumnsToSkip     []string           `yaml:"columns_to_skip" mapstructure:"columns_to_skip"`
	EquivalenceGroups []EquivalenceGroup `yaml:"equivalence_groups" mapstructure:"equivalence_groups"`

	Recognizers  RecognizersConfig  `yaml:"recognizers" mapstructure:"recognizers"`
	Anonymize    AnonymizeConfig    `yaml:"anonymize" mapstructure:"anonymize"`
	Concurrency  ConcurrencyConfig  `yaml:"concurrency" mapstructure:"concurrency"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	RateLimiting RateLimitingConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	HTTP         HTTPConfig         `yaml:"http" mapstructure:"http"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
}

// RecognizersConfig selects and configures the recognizer backends
type RecognizersConfig struct {
	Pattern PatternConfig `yaml:"pattern" mapstructure:"pattern"`
	NER     NERConfig     `yaml:"ner" mapstructure:"ner"`
	LLM     LLMConfig     `yaml:"llm" mapstructure:"llm"`
}

// PatternConfig configures the regex recognizer
type PatternConfig struct {
	Enabled     bool    `yaml:"enabled" mapstructure:"enabled"`
	PatternFile string  `yaml:"pattern_file" mapstructure:"pattern_file"` // Extra recognizers layered over the embedded set
	MinScore    float64 `yaml:"min_score" mapstructure:"min_score"`
}

// NERConfig configures the NER model sidecar
type NERConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	URL     string        `yaml:"url" mapstructure:"url"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// LLMConfig configures the LLM recognizer
type LLMConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Provider string `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama
	Model    string `yaml:"model" mapstructure:"model"`
	APIKey   string `yaml:"-" mapstructure:"api_key"` // Never written to disk
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	Timeout  int    `yaml:"timeout" mapstructure:"timeout"` // seconds
}

// AnonymizeConfig maps entity types (or DEFAULT) to replacement operators
type AnonymizeConfig struct {
	Operators map[string]OperatorConfig `yaml:"operators" mapstructure:"operators"`
}

// OperatorConfig describes how a detected span is rewritten
type OperatorConfig struct {
	Type        string `yaml:"type" mapstructure:"type"`                             // replace, redact, mask, hash
	NewValue    string `yaml:"new_value,omitempty" mapstructure:"new_value"`         // replace
	MaskingChar string `yaml:"masking_char,omitempty" mapstructure:"masking_char"`   // mask
	CharsToMask int    `yaml:"chars_to_mask,omitempty" mapstructure:"chars_to_mask"` // mask, 0 = all
	FromEnd     bool   `yaml:"from_end,omitempty" mapstructure:"from_end"`           // mask
	Salt        string `yaml:"salt,omitempty" mapstructure:"salt"`                   // hash
}

// ConcurrencyConfig controls column fan-out
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// CacheConfig controls recognizer result caching
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// RateLimitingConfig limits calls per recognizer
type RateLimitingConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`

	// Recognizers overrides the rate for individual recognizers by name
	Recognizers map[string]KeyRateConfig `yaml:"recognizers,omitempty" mapstructure:"recognizers"`
}

// KeyRateConfig is a rate limit for one recognizer
type KeyRateConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// HTTPConfig holds proxy settings for remote recognizers
type HTTPConfig struct {
	HTTPProxy  string `yaml:"http_proxy" mapstructure:"http_proxy"`
	HTTPSProxy string `yaml:"https_proxy" mapstructure:"https_proxy"`
	NoProxy    string `yaml:"no_proxy" mapstructure:"no_proxy"`
}

// ServerConfig configures the HTTP API
type ServerConfig struct {
	ListenAddr   string `yaml:"listen_addr" mapstructure:"listen_addr"`
	APIKey       string `yaml:"-" mapstructure:"api_key"` // Empty disables auth
	MaxBodyBytes int64  `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	cacheDir := ".deidentify/cache"
	if home, err := os.UserHomeDir(); err == nil {
		cacheDir = filepath.Join(home, ".deidentify", "cache")
	}

	return &Config{
		TargetLanguage: "en",
		Recognizers: RecognizersConfig{
			Pattern: PatternConfig{
				Enabled:  true,
				MinScore: 0.5,
			},
			NER: NERConfig{
				URL:     "http://localhost:8001",
				Timeout: 30 * time.Second,
			},
			LLM: LLMConfig{
				Provider: "openai",
				Model:    "gpt-4o-mini",
				Timeout:  60,
			},
		},
		Anonymize: AnonymizeConfig{
			Operators: map[string]OperatorConfig{
				DefaultOperator: {Type: "replace"},
			},
		},
		Concurrency: ConcurrencyConfig{
			Workers: runtime.NumCPU(),
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       cacheDir,
			MemoryTTL: time.Hour,
			DiskTTL:   7 * 24 * time.Hour,
		},
		RateLimiting: RateLimitingConfig{
			RequestsPerSecond: 10,
			BurstSize:         5,
		},
		Server: ServerConfig{
			ListenAddr:   ":8080",
			MaxBodyBytes: 10 << 20,
		},
	}
}

// SkipSet returns ColumnsToSkip as a lookup set
func (c *Config) SkipSet() map[string]bool {
	skip := make(map[string]bool, len(c.ColumnsToSkip))
	for _, name := range c.ColumnsToSkip {
		skip[name] = true
	}
	return skip
}
