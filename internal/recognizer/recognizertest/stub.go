// Package recognizertest provides a deterministic recognizer for tests.
package recognizertest

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/ppiankov/deidentify/internal/model"
)

// Stub flags every occurrence of its known terms. It needs no model and
// records how often it was called.
type Stub struct {
	RecName  string
	Language string
	Entities []string

	// Terms maps a literal term to the native label it is reported with
	Terms map[string]string
	// Score is reported for every detection; 0 means 0.85
	Score float64
	// Err, when set, is returned from every call
	Err error
	// Output, when set, replaces the computed detections
	Output func(text string) []model.Detection
	// KeyParts is reported as the cache fingerprint
	KeyParts []string

	mu    sync.Mutex
	calls []string
}

// Name implements recognizer.Recognizer
func (s *Stub) Name() string {
	if s.RecName == "" {
		return "stub"
	}
	return s.RecName
}

// SupportedEntities implements recognizer.Recognizer
func (s *Stub) SupportedEntities() []string { return s.Entities }

// SupportedLanguage implements recognizer.Recognizer
func (s *Stub) SupportedLanguage() string {
	if s.Language == "" {
		return "en"
	}
	return s.Language
}

// CacheKeyParts implements recognizer.Fingerprinter
func (s *Stub) CacheKeyParts() []string { return s.KeyParts }

// Detect implements recognizer.Recognizer
func (s *Stub) Detect(ctx context.Context, text string) ([]model.Detection, error) {
	s.mu.Lock()
	s.calls = append(s.calls, text)
	s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}
	if s.Output != nil {
		return s.Output(text), nil
	}

	score := s.Score
	if score == 0 {
		score = 0.85
	}

	terms := make([]string, 0, len(s.Terms))
	for term := range s.Terms {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	var dets []model.Detection
	for _, term := range terms {
		from := 0
		for {
			idx := strings.Index(text[from:], term)
			if idx < 0 {
				break
			}
			start := from + idx
			dets = append(dets, model.Detection{
				Label:      s.Terms[term],
				Start:      start,
				End:        start + len(term),
				Score:      score,
				Recognizer: s.Name(),
			})
			from = start + len(term)
		}
	}
	return dets, nil
}

// Calls returns the number of Detect calls so far
func (s *Stub) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// Seen returns the texts passed to Detect, in call order
func (s *Stub) Seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}
