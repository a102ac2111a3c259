package recognizer

import (
	"fmt"
	"strings"
)

// Registry holds recognizers in registration order
type Registry struct {
	recognizers []Recognizer
	byName      map[string]Recognizer
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		recognizers: make([]Recognizer, 0),
		byName:      make(map[string]Recognizer),
	}
}

// Register adds a recognizer. Names must be unique.
func (r *Registry) Register(rec Recognizer) error {
	name := rec.Name()
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("recognizer %q already registered", name)
	}
	r.recognizers = append(r.recognizers, rec)
	r.byName[name] = rec
	return nil
}

// All returns every registered recognizer in registration order
func (r *Registry) All() []Recognizer {
	out := make([]Recognizer, len(r.recognizers))
	copy(out, r.recognizers)
	return out
}

// Len returns the number of registered recognizers
func (r *Registry) Len() int {
	return len(r.recognizers)
}

// ForLanguage returns the recognizers for lang in registration order
func (r *Registry) ForLanguage(lang string) []Recognizer {
	var out []Recognizer
	for _, rec := range r.recognizers {
		if strings.EqualFold(rec.SupportedLanguage(), lang) {
			out = append(out, rec)
		}
	}
	return out
}

// SupportedEntities returns the union of entities declared by the recognizers
// for lang, in first-declared order.
func (r *Registry) SupportedEntities(lang string) []string {
	return UnionEntities(r.ForLanguage(lang))
}

// UnionEntities returns the entities declared by recs, deduplicated in
// first-declared order.
func UnionEntities(recs []Recognizer) []string {
	seen := make(map[string]bool)
	var out []string
	for _, rec := range recs {
		for _, e := range rec.SupportedEntities() {
			if !seen[e] {
				seen[e] = true
				out = append(out, e)
			}
		}
	}
	return out
}
