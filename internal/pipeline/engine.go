package pipeline

import (
	"context"
	"fmt"

	"github.com/ppiankov/deidentify/internal/anonymize"
	"github.com/ppiankov/deidentify/internal/model"
	"github.com/ppiankov/deidentify/internal/table"
)

// Analyzer finds entities in a column view
type Analyzer interface {
	Analyze(ctx context.Context, view *model.ColumnView, skip map[string]bool) (model.ColumnDetections, []string, error)
}

// Anonymizer rewrites detected spans
type Anonymizer interface {
	Anonymize(view *model.ColumnView, detections model.ColumnDetections) (*model.ColumnView, anonymize.Stats, error)
}

// Engine de-identifies a single in-memory table
type Engine struct {
	analyzer   Analyzer
	anonymizer Anonymizer
	lowerCase  bool
	skip       map[string]bool
}

// Result is the output of one Deidentify call
type Result struct {
	Table      model.Table
	Detections model.ColumnDetections
	Stats      anonymize.Stats
	Warnings   []string
}

// NewEngine composes an analyzer and an anonymizer
func NewEngine(analyzer Analyzer, anonymizer Anonymizer, lowerCase bool, skip map[string]bool) *Engine {
	if skip == nil {
		skip = map[string]bool{}
	}
	return &Engine{
		analyzer:   analyzer,
		anonymizer: anonymizer,
		lowerCase:  lowerCase,
		skip:       skip,
	}
}

// WithOptions returns a copy of e using the given case folding and skip set
func (e *Engine) WithOptions(lowerCase bool, skip map[string]bool) *Engine {
	return NewEngine(e.analyzer, e.anonymizer, lowerCase, skip)
}

// LowerCase reports whether cells are case-folded before analysis
func (e *Engine) LowerCase() bool { return e.lowerCase }

// SkipSet returns a copy of the columns passed through unchanged
func (e *Engine) SkipSet() map[string]bool {
	skip := make(map[string]bool, len(e.skip))
	for name, v := range e.skip {
		skip[name] = v
	}
	return skip
}

// Deidentify transposes t, analyzes and anonymizes its columns, and rebuilds
// a table with the input's header order. Malformed tables are rejected before
// any recognizer runs.
func (e *Engine) Deidentify(ctx context.Context, t model.Table) (*Result, error) {
	view, err := table.Transpose(t)
	if err != nil {
		return nil, err
	}
	rows := len(t.Rows)

	table.Normalize(view, e.lowerCase)

	detections, warnings, err := e.analyzer.Analyze(ctx, view, e.skip)
	if err != nil {
		return nil, err
	}

	anonymized, stats, err := e.anonymizer.Anonymize(view, detections)
	if err != nil {
		return nil, fmt.Errorf("anonymize: %w", err)
	}

	out, err := table.Reassemble(anonymized, t.Header, rows)
	if err != nil {
		return nil, err
	}

	return &Result{
		Table:      out,
		Detections: detections,
		Stats:      stats,
		Warnings:   warnings,
	}, nil
}
