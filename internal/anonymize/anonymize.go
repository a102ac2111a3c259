// Package anonymize rewrites detected spans in a column view.
package anonymize

import (
	"fmt"
	"sort"

	"github.com/ppiankov/deidentify/internal/model"
	"github.com/ppiankov/deidentify/internal/table"
)

// Stats counts what an anonymization pass changed
type Stats struct {
	Replaced     int            // Spans rewritten after overlap resolution
	ChangedCells int            // Cells whose value differs from the input
	ByEntity     map[string]int // Rewritten spans per entity type
}

// Anonymizer applies per-entity operators to detected spans
type Anonymizer struct {
	operators map[string]Operator
	fallback  Operator
}

// New builds an Anonymizer. Entity types without an entry use the DEFAULT
// operator, which itself defaults to replace with a placeholder.
func New(cfg model.AnonymizeConfig) (*Anonymizer, error) {
	a := &Anonymizer{
		operators: make(map[string]Operator, len(cfg.Operators)),
		fallback:  replaceOperator{},
	}
	for entity, opCfg := range cfg.Operators {
		op, err := NewOperator(opCfg)
		if err != nil {
			return nil, fmt.Errorf("operator for %s: %w", entity, err)
		}
		if entity == model.DefaultOperator {
			a.fallback = op
			continue
		}
		a.operators[entity] = op
	}
	return a, nil
}

func (a *Anonymizer) operatorFor(entityType string) Operator {
	if op, ok := a.operators[entityType]; ok {
		return op
	}
	return a.fallback
}

// ResolveOverlaps picks a non-overlapping subset of dets. Higher scores win;
// ties go to the earlier start, then the lexically smaller recognizer name,
// then the longer span. The result is sorted by start.
func ResolveOverlaps(dets []model.Detection) []model.Detection {
	if len(dets) == 0 {
		return nil
	}

	ranked := make([]model.Detection, len(dets))
	copy(ranked, dets)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if a.Recognizer != b.Recognizer {
			return a.Recognizer < b.Recognizer
		}
		return a.End-a.Start > b.End-b.Start
	})

	var kept []model.Detection
	for _, d := range ranked {
		overlaps := false
		for _, k := range kept {
			if d.Overlaps(k) {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, d)
		}
	}

	sort.Slice(kept, func(i, j int) bool {
		return kept[i].Start < kept[j].Start
	})
	return kept
}

// AnonymizeValue rewrites the spans of value that survive overlap resolution
// and returns the new value with the number of spans rewritten. Spans are
// applied right to left so earlier offsets stay valid.
func (a *Anonymizer) AnonymizeValue(value string, dets []model.Detection) (string, int) {
	value, applied, _ := a.anonymizeValue(value, dets)
	return value, applied
}

func (a *Anonymizer) anonymizeValue(value string, dets []model.Detection) (string, int, []model.Detection) {
	if len(dets) == 0 {
		return value, 0, nil
	}

	var valid []model.Detection
	for _, d := range dets {
		if d.Start >= 0 && d.End <= len(value) && d.Start < d.End {
			valid = append(valid, d)
		}
	}

	kept := ResolveOverlaps(valid)
	out := value
	for i := len(kept) - 1; i >= 0; i-- {
		d := kept[i]
		replacement := a.operatorFor(d.EntityType).Apply(out[d.Start:d.End], d.EntityType)
		out = out[:d.Start] + replacement + out[d.End:]
	}
	return out, len(kept), kept
}

// Anonymize returns a new view with every analyzed column rewritten.
// Columns absent from detections are copied verbatim.
func (a *Anonymizer) Anonymize(view *model.ColumnView, detections model.ColumnDetections) (*model.ColumnView, Stats, error) {
	out := model.NewColumnView(view.Order)
	stats := Stats{ByEntity: make(map[string]int)}

	for _, name := range view.Order {
		values, _ := view.Column(name)
		rows, analyzed := detections[name]
		if !analyzed {
			out.Values[name] = append([]string(nil), values...)
			continue
		}
		if len(rows) != len(values) {
			return nil, stats, &table.ReassemblyLengthMismatch{Column: name, Want: len(values), Got: len(rows)}
		}

		anonymized := make([]string, len(values))
		for i, value := range values {
			newValue, applied, kept := a.anonymizeValue(value, rows[i].Detections)
			anonymized[i] = newValue
			stats.Replaced += applied
			for _, d := range kept {
				stats.ByEntity[d.EntityType]++
			}
			if newValue != value {
				stats.ChangedCells++
			}
		}
		out.Values[name] = anonymized
	}
	return out, stats, nil
}
