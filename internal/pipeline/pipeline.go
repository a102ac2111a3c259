package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ppiankov/deidentify/internal/analyze"
	"github.com/ppiankov/deidentify/internal/anonymize"
	"github.com/ppiankov/deidentify/internal/cache"
	"github.com/ppiankov/deidentify/internal/llm"
	"github.com/ppiankov/deidentify/internal/model"
	"github.com/ppiankov/deidentify/internal/recognizer"
	"github.com/ppiankov/deidentify/internal/recognizer/llmrec"
	"github.com/ppiankov/deidentify/internal/recognizer/ner"
	"github.com/ppiankov/deidentify/internal/recognizer/pattern"
	"github.com/ppiankov/deidentify/internal/reconcile"
	"github.com/ppiankov/deidentify/internal/table"
	"github.com/ppiankov/deidentify/internal/worker"
)

// Version is reported by the CLI, the API and the fetcher's User-Agent
var Version = "0.1.0"

const fetchTimeout = 60 * time.Second

// Pipeline wires configured recognizers into an Engine and runs it over files
type Pipeline struct {
	config   *model.Config
	registry *recognizer.Registry
	analyzer *analyze.Analyzer
	engine   *Engine
	fetcher  *Fetcher
}

// New creates a pipeline from configuration, building every enabled recognizer
func New(cfg *model.Config) (*Pipeline, error) {
	recs, err := BuildRecognizers(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithRecognizers(cfg, recs)
}

// NewWithRecognizers creates a pipeline around already-built recognizers
func NewWithRecognizers(cfg *model.Config, recs []recognizer.Recognizer) (*Pipeline, error) {
	registry := recognizer.NewRegistry()
	for _, rec := range recs {
		if err := registry.Register(rec); err != nil {
			return nil, err
		}
	}

	anonymizer, err := anonymize.New(cfg.Anonymize)
	if err != nil {
		return nil, fmt.Errorf("configure anonymizer: %w", err)
	}

	analyzer := analyze.New(registry.All(), reconcile.New(cfg.EquivalenceGroups), analyze.Options{
		Language: cfg.TargetLanguage,
		Entities: cfg.Entities,
		Workers:  cfg.Concurrency.Workers,
	})

	return &Pipeline{
		config:   cfg,
		registry: registry,
		analyzer: analyzer,
		engine:   NewEngine(analyzer, anonymizer, cfg.LowerCase, cfg.SkipSet()),
		fetcher:  NewFetcher(fetchTimeout, 0, cfg.HTTP.HTTPProxy, cfg.HTTP.HTTPSProxy, cfg.HTTP.NoProxy),
	}, nil
}

// BuildRecognizers creates the recognizers enabled in cfg. Remote recognizers
// are rate limited and cached.
func BuildRecognizers(cfg *model.Config) ([]recognizer.Recognizer, error) {
	var recs []recognizer.Recognizer

	if cfg.Recognizers.Pattern.Enabled {
		opts := []pattern.Option{pattern.WithLanguage(cfg.TargetLanguage)}
		if cfg.Recognizers.Pattern.MinScore > 0 {
			opts = append(opts, pattern.WithMinScore(cfg.Recognizers.Pattern.MinScore))
		}
		if cfg.Recognizers.Pattern.PatternFile != "" {
			opts = append(opts, pattern.WithPatternFile(cfg.Recognizers.Pattern.PatternFile))
		}
		rec, err := pattern.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("pattern recognizer: %w", err)
		}
		recs = append(recs, rec)
	}

	resultCache := cache.New(cfg.Cache)
	limiter := newLimiter(cfg.RateLimiting)
	remote := func(rec recognizer.Recognizer) recognizer.Recognizer {
		return recognizer.Cached(recognizer.RateLimited(rec, limiter), resultCache, cfg.Cache.DiskTTL)
	}

	if cfg.Recognizers.NER.Enabled {
		rec, err := ner.New(ner.Config{
			URL:        cfg.Recognizers.NER.URL,
			Language:   cfg.TargetLanguage,
			Timeout:    cfg.Recognizers.NER.Timeout,
			HTTPProxy:  cfg.HTTP.HTTPProxy,
			HTTPSProxy: cfg.HTTP.HTTPSProxy,
			NoProxy:    cfg.HTTP.NoProxy,
		})
		if err != nil {
			return nil, fmt.Errorf("ner recognizer: %w", err)
		}
		recs = append(recs, remote(rec))
	}

	if cfg.Recognizers.LLM.Enabled {
		provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.Recognizers.LLM, cfg.HTTP))
		if err != nil {
			return nil, fmt.Errorf("llm recognizer: %w", err)
		}
		if provider == nil {
			return nil, fmt.Errorf("llm recognizer: no provider configured")
		}
		rec, err := llmrec.New(provider, llmrec.Config{
			Language: cfg.TargetLanguage,
			Entities: cfg.Entities,
			Model:    cfg.Recognizers.LLM.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("llm recognizer: %w", err)
		}
		recs = append(recs, remote(rec))
	}

	return recs, nil
}

// Registry returns the registered recognizers
func (p *Pipeline) Registry() *recognizer.Registry {
	return p.registry
}

// Engine returns the configured engine
func (p *Pipeline) Engine() *Engine {
	return p.engine
}

// Entities returns the entity categories the pipeline looks for
func (p *Pipeline) Entities() []string {
	return p.analyzer.Entities()
}

// newLimiter builds the shared recognizer limiter with per-recognizer overrides
func newLimiter(cfg model.RateLimitingConfig) *worker.Limiter {
	limiter := worker.NewLimiter(cfg.RequestsPerSecond, cfg.BurstSize)
	for name, rate := range cfg.Recognizers {
		limiter.SetKeyRate(name, rate.RequestsPerSecond, rate.BurstSize)
	}
	return limiter
}

// Run reads inputPath (a file or an http(s) URL), de-identifies it and writes
// outputPath. The output format follows the output extension.
func (p *Pipeline) Run(ctx context.Context, inputPath, outputPath string) (*model.RunReport, error) {
	started := time.Now().UTC()
	report := &model.RunReport{
		ID:        uuid.New().String(),
		Input:     inputPath,
		Output:    outputPath,
		Language:  p.config.TargetLanguage,
		StartedAt: started,
	}
	for _, rec := range p.analyzer.Recognizers() {
		report.Recognizers = append(report.Recognizers, rec.Name())
	}

	if format := table.FormatFromPath(outputPath); !table.Writable(format) {
		return nil, fmt.Errorf("write %s: unsupported output format: %s", outputPath, format)
	}

	t, err := p.readTable(ctx, inputPath)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("run_id", report.ID).Str("input", inputPath).Int("rows", len(t.Rows)).Int("columns", len(t.Header)).Msg("table_loaded")

	result, err := p.engine.Deidentify(ctx, t)
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(outputPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := table.WriteFile(outputPath, result.Table); err != nil {
		return nil, fmt.Errorf("write %s: %w", outputPath, err)
	}

	report.Rows = len(t.Rows)
	report.Columns = len(t.Header)
	for _, name := range t.Header {
		if p.config.SkipSet()[name] {
			report.SkippedColumns = append(report.SkippedColumns, name)
		}
	}
	report.Detections = result.Stats.ByEntity
	report.Replaced = result.Stats.Replaced
	report.ChangedCells = result.Stats.ChangedCells
	report.Warnings = result.Warnings
	report.DurationMS = time.Since(started).Milliseconds()

	log.Info().
		Str("run_id", report.ID).
		Str("output", outputPath).
		Int("replaced", report.Replaced).
		Int("changed_cells", report.ChangedCells).
		Int64("duration_ms", report.DurationMS).
		Msg("run_complete")

	return report, nil
}

func (p *Pipeline) readTable(ctx context.Context, input string) (model.Table, error) {
	if !IsURL(input) {
		t, err := table.ReadFile(input)
		if err != nil {
			return model.Table{}, fmt.Errorf("read %s: %w", input, err)
		}
		return t, nil
	}

	fetched, err := p.fetcher.Fetch(ctx, input)
	if err != nil {
		return model.Table{}, fmt.Errorf("read %s: %w", input, err)
	}
	defer func() { _ = fetched.Body.Close() }()

	t, err := table.Read(fetched.Body, fetched.Format)
	if err != nil {
		return model.Table{}, fmt.Errorf("read %s: %w", fetched.FinalURL, err)
	}
	return t, nil
}

// WriteReport writes a run report as indented JSON
func WriteReport(path string, report any) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

var _ worker.Runner = (*Pipeline)(nil)
