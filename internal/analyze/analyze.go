// Package analyze runs recognizers over every cell of a column view and
// keeps the detections that reconcile to a requested entity category.
package analyze

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ppiankov/deidentify/internal/model"
	"github.com/ppiankov/deidentify/internal/recognizer"
	"github.com/ppiankov/deidentify/internal/reconcile"
	"github.com/ppiankov/deidentify/internal/worker"
)

// ErrNoRecognizers is returned when no recognizer supports the target language
var ErrNoRecognizers = errors.New("no recognizer supports the target language")

// RecognizerFailure reports a recognizer error or malformed recognizer output.
// It aborts the column it occurred in.
type RecognizerFailure struct {
	Column     string
	Row        int // 0-based data row
	Recognizer string
	Err        error
}

func (e *RecognizerFailure) Error() string {
	return fmt.Sprintf("recognizer %s failed on column %q row %d: %v", e.Recognizer, e.Column, e.Row, e.Err)
}

func (e *RecognizerFailure) Unwrap() error {
	return e.Err
}

// Options configures an Analyzer
type Options struct {
	// Language selects the recognizers to run (ISO 639-1)
	Language string

	// Entities restricts detection to these categories. Empty means every
	// category a selected recognizer declares.
	Entities []string

	// Workers is the number of columns analyzed concurrently
	Workers int
}

// Analyzer produces per-cell detections for a column view
type Analyzer struct {
	recognizers []recognizer.Recognizer
	reconciler  *reconcile.Reconciler
	entities    []string
	warnings    []string
	workers     int
	language    string
}

// New selects the recognizers for opts.Language and resolves the requested
// entities. A nil reconciler uses the default equivalence groups.
func New(recognizers []recognizer.Recognizer, reconciler *reconcile.Reconciler, opts Options) *Analyzer {
	if reconciler == nil {
		reconciler = reconcile.New(nil)
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}

	var selected []recognizer.Recognizer
	for _, rec := range recognizers {
		if strings.EqualFold(rec.SupportedLanguage(), opts.Language) {
			selected = append(selected, rec)
		}
	}

	supported := recognizer.UnionEntities(selected)
	entities := opts.Entities
	if len(entities) == 0 {
		entities = supported
	}

	var warnings []string
	for _, entity := range entities {
		if !contains(supported, entity) {
			warnings = append(warnings, fmt.Sprintf("entity %s is not supported by any %s recognizer", entity, opts.Language))
		}
	}

	return &Analyzer{
		recognizers: selected,
		reconciler:  reconciler,
		entities:    entities,
		warnings:    warnings,
		workers:     opts.Workers,
		language:    opts.Language,
	}
}

// Recognizers returns the recognizers that run for the configured language
func (a *Analyzer) Recognizers() []recognizer.Recognizer {
	return a.recognizers
}

// Entities returns the requested entity categories
func (a *Analyzer) Entities() []string {
	return a.entities
}

// Warnings returns the configuration warnings found by New
func (a *Analyzer) Warnings() []string {
	return a.warnings
}

// Analyze runs every recognizer over every cell of the columns not in skip.
// Columns are analyzed concurrently; the result holds one RowDetections per
// row for each analyzed column. When columns fail, the failure of the
// earliest column in view order is returned.
func (a *Analyzer) Analyze(ctx context.Context, view *model.ColumnView, skip map[string]bool) (model.ColumnDetections, []string, error) {
	if len(a.recognizers) == 0 {
		return nil, a.warnings, fmt.Errorf("%w: %s", ErrNoRecognizers, a.language)
	}
	for _, w := range a.warnings {
		log.Warn().Str("language", a.language).Msg(w)
	}

	pool := worker.NewPoolWithContext(ctx, a.workers)
	pool.Start()

	submitted := 0
	for i, name := range view.Order {
		if skip[name] {
			log.Debug().Str("column", name).Msg("column_skipped")
			continue
		}
		values, _ := view.Column(name)
		pool.Submit(&columnJob{analyzer: a, index: i, column: name, values: values})
		submitted++
	}

	results := pool.Wait()

	byIndex := make(map[int]*columnResult, len(results))
	for _, r := range results {
		cr := r.(*columnResult)
		byIndex[cr.index] = cr
	}

	for i, name := range view.Order {
		if cr, ok := byIndex[i]; ok && cr.err != nil {
			return nil, a.warnings, fmt.Errorf("analyze column %q: %w", name, cr.err)
		}
	}
	if len(byIndex) != submitted {
		if err := ctx.Err(); err != nil {
			return nil, a.warnings, fmt.Errorf("analyze: %w", err)
		}
		return nil, a.warnings, fmt.Errorf("analyze: %d of %d columns finished", len(byIndex), submitted)
	}

	detections := make(model.ColumnDetections, len(byIndex))
	for _, cr := range byIndex {
		detections[cr.column] = cr.rows
	}
	return detections, a.warnings, nil
}

// AnalyzeColumn returns the detections for a single column's cells
func (a *Analyzer) AnalyzeColumn(ctx context.Context, column string, values []string) ([]model.RowDetections, error) {
	rows := make([]model.RowDetections, len(values))
	for row, value := range values {
		dets, err := a.analyzeCell(ctx, column, row, value)
		if err != nil {
			return nil, err
		}
		rows[row] = model.RowDetections{Row: row, Detections: dets}
	}
	return rows, nil
}

func (a *Analyzer) analyzeCell(ctx context.Context, column string, row int, value string) ([]model.Detection, error) {
	if recognizer.IsBlank(value) {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	placeholders := recognizer.PlaceholderSpans(value)

	var accepted []model.Detection
	for _, rec := range a.recognizers {
		dets, err := rec.Detect(ctx, value)
		if err != nil {
			return nil, &RecognizerFailure{Column: column, Row: row, Recognizer: rec.Name(), Err: err}
		}
		if err := recognizer.Validate(value, dets); err != nil {
			return nil, &RecognizerFailure{Column: column, Row: row, Recognizer: rec.Name(), Err: err}
		}

		for _, d := range dets {
			raw := d.RawLabel()
			target, ok := a.reconciler.Resolve(raw, a.entities)
			if !ok || !recognizer.Supports(rec, target) {
				continue
			}
			if recognizer.OverlapsPlaceholder(placeholders, d.Start, d.End) {
				continue
			}
			d.EntityType = target
			d.Label = raw
			if d.Recognizer == "" {
				d.Recognizer = rec.Name()
			}
			accepted = append(accepted, d)
		}
	}

	sort.SliceStable(accepted, func(i, j int) bool {
		return accepted[i].Start < accepted[j].Start
	})
	return accepted, nil
}

// columnJob analyzes one column inside the worker pool
type columnJob struct {
	analyzer *Analyzer
	index    int
	column   string
	values   []string
}

type columnResult struct {
	index  int
	column string
	rows   []model.RowDetections
	err    error
}

func (r *columnResult) GetError() error { return r.err }

func (j *columnJob) Execute(ctx context.Context) worker.Result {
	rows, err := j.analyzer.AnalyzeColumn(ctx, j.column, j.values)
	if err == nil {
		found := 0
		for _, row := range rows {
			found += len(row.Detections)
		}
		log.Debug().Str("column", j.column).Int("rows", len(rows)).Int("detections", found).Msg("column_analyzed")
	}
	return &columnResult{index: j.index, column: j.column, rows: rows, err: err}
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
