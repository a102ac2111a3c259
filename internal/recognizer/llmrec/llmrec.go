// Package llmrec adapts an LLM provider to the recognizer interface.
// The model reports values verbatim; this package finds them in the cell.
package llmrec

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ppiankov/deidentify/internal/llm"
	"github.com/ppiankov/deidentify/internal/model"
	"github.com/ppiankov/deidentify/internal/recognizer"
)

// Name is the recognizer name reported in detections
const Name = "llm"

// DefaultScore is used when the provider reports no score
const DefaultScore = 0.85

// DefaultEntities are declared when Config.Entities is empty
var DefaultEntities = []string{"PERSON", "LOCATION", "ORGANIZATION"}

// Config configures the recognizer
type Config struct {
	Language  string
	Entities  []string
	Model     string // Overrides the provider default
	MaxTokens int
}

// Recognizer asks an LLM for personal data in each cell
type Recognizer struct {
	provider llm.Provider
	config   Config
}

var _ recognizer.Recognizer = (*Recognizer)(nil)

// New wraps provider
func New(provider llm.Provider, cfg Config) (*Recognizer, error) {
	if provider == nil {
		return nil, fmt.Errorf("llmrec: provider is required")
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if len(cfg.Entities) == 0 {
		cfg.Entities = DefaultEntities
	}
	return &Recognizer{provider: provider, config: cfg}, nil
}

// Name implements recognizer.Recognizer
func (r *Recognizer) Name() string { return Name }

// SupportedEntities implements recognizer.Recognizer
func (r *Recognizer) SupportedEntities() []string { return r.config.Entities }

// SupportedLanguage implements recognizer.Recognizer
func (r *Recognizer) SupportedLanguage() string { return r.config.Language }

// Provider returns the wrapped provider name
func (r *Recognizer) Provider() string { return r.provider.Name() }

// CacheKeyParts implements recognizer.Fingerprinter. Entity order does not
// change the answer, so entities are sorted.
func (r *Recognizer) CacheKeyParts() []string {
	entities := append([]string(nil), r.config.Entities...)
	sort.Strings(entities)
	return []string{
		"provider=" + r.provider.Name(),
		"model=" + r.config.Model,
		"entities=" + strings.Join(entities, ","),
	}
}

// Detect implements recognizer.Recognizer
func (r *Recognizer) Detect(ctx context.Context, text string) ([]model.Detection, error) {
	if recognizer.IsBlank(text) {
		return nil, nil
	}

	resp, err := r.provider.Extract(ctx, llm.ExtractRequest{
		Text:      text,
		Entities:  r.config.Entities,
		Language:  r.config.Language,
		Model:     r.config.Model,
		MaxTokens: r.config.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("llm extract via %s: %w", r.provider.Name(), err)
	}

	placeholders := recognizer.PlaceholderSpans(text)
	seen := make(map[[2]int]bool)
	var dets []model.Detection

	for _, entity := range resp.Entities {
		value := strings.TrimSpace(entity.Text)
		if value == "" {
			continue
		}
		score := entity.Score
		if score <= 0 || score > 1 {
			score = DefaultScore
		}

		for _, span := range findWholeWord(text, value) {
			if recognizer.OverlapsPlaceholder(placeholders, span[0], span[1]) {
				continue
			}
			key := [2]int{span[0], span[1]}
			if seen[key] {
				continue
			}
			seen[key] = true

			dets = append(dets, model.Detection{
				EntityType:  entity.Label,
				Label:       entity.Label,
				Start:       span[0],
				End:         span[1],
				Score:       score,
				Recognizer:  Name,
				Explanation: fmt.Sprintf("Reported as %s by %s", entity.Label, r.provider.Name()),
			})
		}
	}

	sort.SliceStable(dets, func(i, j int) bool {
		if dets[i].Start != dets[j].Start {
			return dets[i].Start < dets[j].Start
		}
		return dets[i].End < dets[j].End
	})
	return dets, nil
}

// findWholeWord returns every occurrence of value in text that is not part
// of a larger word.
func findWholeWord(text, value string) [][2]int {
	var spans [][2]int
	from := 0
	for from < len(text) {
		idx := strings.Index(text[from:], value)
		if idx < 0 {
			break
		}
		start := from + idx
		end := start + len(value)
		if !isInsideWord(text, start, end) {
			spans = append(spans, [2]int{start, end})
			from = end
			continue
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		from = start + size
	}
	return spans
}

// isInsideWord reports whether [start,end) continues a letter or digit run
// on either side, e.g. "Ann" inside "Anna".
func isInsideWord(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWordRune(r) {
			return true
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if isWordRune(r) {
			return true
		}
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
