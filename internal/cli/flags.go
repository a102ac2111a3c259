package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/deidentify/internal/model"
	"github.com/ppiankov/deidentify/internal/reconcile"
)

// Engine flags shared by run, batch and serve
var (
	language    string
	entities    []string
	lowerCase   bool
	skipColumns []string
	groupsFile  string
	patternFile string
	nerEnabled  bool
	nerURL      string
	llmEnabled  bool
	llmProvider string
	llmModel    string
	workers     int
	noCache     bool
)

// addEngineFlags registers the engine flags. withWorkers adds --concurrency
// for column fan-out; batch uses that name for file fan-out instead.
func addEngineFlags(cmd *cobra.Command, withWorkers bool) {
	f := cmd.Flags()
	f.StringVar(&language, "language", "en", "target language (ISO 639-1)")
	f.StringSliceVar(&entities, "entities", nil, "entity types to detect, e.g. PERSON,LOCATION (default: all supported)")
	f.BoolVar(&lowerCase, "lower-case", false, "lower-case cell values before detection")
	f.StringSliceVar(&skipColumns, "skip", nil, "columns to copy through unchanged")
	f.StringVar(&groupsFile, "groups", "", "YAML file with label equivalence groups")
	f.StringVar(&patternFile, "patterns", "", "YAML file with extra pattern recognizers")
	f.BoolVar(&nerEnabled, "ner", false, "enable the NER model sidecar")
	f.StringVar(&nerURL, "ner-url", "http://localhost:8001", "NER sidecar base URL")
	f.BoolVar(&llmEnabled, "llm", false, "enable the LLM recognizer")
	f.StringVar(&llmProvider, "llm-provider", "openai", "LLM provider (openai, anthropic, ollama)")
	f.StringVar(&llmModel, "llm-model", "", "LLM model name (default: config or the provider's default)")
	if withWorkers {
		f.IntVar(&workers, "concurrency", 0, "columns analyzed in parallel (default: config or number of CPUs)")
	}
	f.BoolVar(&noCache, "no-cache", false, "disable the recognizer result cache")
}

// applyEngineFlags overrides cfg with the flags the user actually set
func applyEngineFlags(cmd *cobra.Command, cfg *model.Config) error {
	f := cmd.Flags()
	if f.Changed("language") {
		cfg.TargetLanguage = language
	}
	if f.Changed("entities") {
		cfg.Entities = normalizeEntities(entities)
	}
	if f.Changed("lower-case") {
		cfg.LowerCase = lowerCase
	}
	if f.Changed("skip") {
		cfg.ColumnsToSkip = skipColumns
	}
	if groupsFile != "" {
		groups, err := reconcile.LoadGroups(groupsFile)
		if err != nil {
			return err
		}
		cfg.EquivalenceGroups = groups
	}
	if patternFile != "" {
		cfg.Recognizers.Pattern.PatternFile = patternFile
	}
	if f.Changed("ner") {
		cfg.Recognizers.NER.Enabled = nerEnabled
	}
	if f.Changed("ner-url") {
		cfg.Recognizers.NER.URL = nerURL
	}
	if f.Changed("llm") {
		cfg.Recognizers.LLM.Enabled = llmEnabled
	}
	if f.Changed("llm-provider") {
		// A model configured for another provider would be sent to this one
		if !strings.EqualFold(cfg.Recognizers.LLM.Provider, llmProvider) && !f.Changed("llm-model") {
			cfg.Recognizers.LLM.Model = ""
		}
		cfg.Recognizers.LLM.Provider = llmProvider
		cfg.Recognizers.LLM.APIKey = ""
	}
	if f.Changed("llm-model") {
		cfg.Recognizers.LLM.Model = llmModel
	}
	if workers > 0 {
		cfg.Concurrency.Workers = workers
	}
	if noCache {
		cfg.Cache.Enabled = false
	}

	if cfg.Recognizers.LLM.Enabled && cfg.Recognizers.LLM.APIKey == "" {
		switch strings.ToLower(cfg.Recognizers.LLM.Provider) {
		case "openai":
			cfg.Recognizers.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
			if cfg.Recognizers.LLM.APIKey == "" {
				return fmt.Errorf("OPENAI_API_KEY environment variable not set")
			}
		case "anthropic", "claude":
			cfg.Recognizers.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
			if cfg.Recognizers.LLM.APIKey == "" {
				return fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
			}
		}
	}
	return nil
}

func normalizeEntities(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToUpper(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}
