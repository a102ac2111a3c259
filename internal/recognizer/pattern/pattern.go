// Package pattern is a regex recognizer for structured identifiers such as
// email addresses, phone numbers, card numbers and IBANs.
package pattern

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ppiankov/deidentify/internal/model"
	"github.com/ppiankov/deidentify/internal/recognizer"
)

const (
	// Name is the recognizer name reported in detections
	Name = "pattern"

	// DefaultMinScore drops matches below this confidence unless boosted by context
	DefaultMinScore = 0.5

	// ContextSimilarityFactor is added to a match's score when a context word
	// appears near it
	ContextSimilarityFactor = 0.35

	// ContextWindowChars is how far before and after a match context words are searched
	ContextWindowChars = 100
)

type compiledPattern struct {
	recognizer string
	name       string
	entity     string
	regex      *regexp.Regexp
	score      float64
	validate   func(string) bool
	context    []string
}

// Recognizer matches compiled regexes against cell text
type Recognizer struct {
	language string
	minScore float64
	entities []string
	patterns []compiledPattern
}

var _ recognizer.Recognizer = (*Recognizer)(nil)

// Option configures a Recognizer
type Option func(*options)

type options struct {
	language    string
	minScore    float64
	patternFile string
	entities    []string
	extra       []RecognizerConfig
}

// WithLanguage selects the context words to use. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(o *options) { o.language = lang }
}

// WithMinScore overrides DefaultMinScore
func WithMinScore(score float64) Option {
	return func(o *options) { o.minScore = score }
}

// WithPatternFile layers the recognizers of a YAML file over the built-in set
func WithPatternFile(path string) Option {
	return func(o *options) { o.patternFile = path }
}

// WithEntities keeps only recognizers for the given entities
func WithEntities(entities []string) Option {
	return func(o *options) { o.entities = entities }
}

// WithRecognizers layers in-memory recognizer definitions last
func WithRecognizers(recs []RecognizerConfig) Option {
	return func(o *options) { o.extra = recs }
}

// New builds a pattern recognizer from the embedded definitions plus any
// configured overrides.
func New(opts ...Option) (*Recognizer, error) {
	o := options{language: "en", minScore: DefaultMinScore}
	for _, opt := range opts {
		opt(&o)
	}

	defaults, err := DefaultRecognizers()
	if err != nil {
		return nil, err
	}

	var fromFile []RecognizerConfig
	if o.patternFile != "" {
		rf, err := LoadRecognizerFile(o.patternFile)
		if err != nil {
			return nil, err
		}
		fromFile = rf.Recognizers
	}

	merged := MergeRecognizers(defaults, fromFile, o.extra)

	allowed := make(map[string]bool, len(o.entities))
	for _, e := range o.entities {
		allowed[e] = true
	}

	r := &Recognizer{language: o.language, minScore: o.minScore}
	seen := make(map[string]bool)
	for _, rc := range merged {
		if !rc.isEnabled() {
			continue
		}
		if len(allowed) > 0 && !allowed[rc.SupportedEntity] {
			continue
		}

		compiled, err := compile(rc, o.language)
		if err != nil {
			return nil, err
		}
		r.patterns = append(r.patterns, compiled...)

		if !seen[rc.SupportedEntity] {
			seen[rc.SupportedEntity] = true
			r.entities = append(r.entities, rc.SupportedEntity)
		}
	}

	return r, nil
}

func compile(rc RecognizerConfig, lang string) ([]compiledPattern, error) {
	var validate func(string) bool
	if rc.Validator != "" {
		v, ok := validators[rc.Validator]
		if !ok {
			return nil, fmt.Errorf("recognizer %q: unknown validator %q", rc.Name, rc.Validator)
		}
		validate = v
	}

	contextWords := rc.contextFor(lang)
	var out []compiledPattern

	for _, p := range rc.Patterns {
		re, err := regexp.Compile(p.Regex)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q in recognizer %q: %w", p.Name, rc.Name, err)
		}
		out = append(out, compiledPattern{
			recognizer: rc.Name,
			name:       p.Name,
			entity:     rc.SupportedEntity,
			regex:      re,
			score:      p.Score,
			validate:   validate,
			context:    contextWords,
		})
	}

	if len(rc.DenyList) > 0 {
		quoted := make([]string, len(rc.DenyList))
		for i, word := range rc.DenyList {
			quoted[i] = regexp.QuoteMeta(word)
		}
		score := rc.DenyListScore
		if score == 0 {
			score = 1.0
		}
		out = append(out, compiledPattern{
			recognizer: rc.Name,
			name:       "deny_list",
			entity:     rc.SupportedEntity,
			regex:      regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`),
			score:      score,
			context:    contextWords,
		})
	}

	return out, nil
}

// Name implements recognizer.Recognizer
func (r *Recognizer) Name() string { return Name }

// SupportedEntities implements recognizer.Recognizer
func (r *Recognizer) SupportedEntities() []string { return r.entities }

// SupportedLanguage implements recognizer.Recognizer
func (r *Recognizer) SupportedLanguage() string { return r.language }

// Detect implements recognizer.Recognizer. Matches that fail their validator
// are dropped; matches that pass it score 1.0. Identical spans of the same
// entity are reported once with the best score.
func (r *Recognizer) Detect(ctx context.Context, text string) ([]model.Detection, error) {
	if recognizer.IsBlank(text) {
		return nil, nil
	}

	type spanKey struct {
		entity     string
		start, end int
	}
	best := make(map[spanKey]model.Detection)

	for _, p := range r.patterns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for _, m := range p.regex.FindAllStringIndex(text, -1) {
			value := text[m[0]:m[1]]

			score := p.score
			if p.validate != nil {
				if !p.validate(value) {
					continue
				}
				score = 1.0
			}

			score = enhanceScoreWithContext(text, m[0], m[1], score, p.context)
			if score < r.minScore {
				continue
			}

			key := spanKey{p.entity, m[0], m[1]}
			if prev, ok := best[key]; ok && prev.Score >= score {
				continue
			}
			best[key] = model.Detection{
				EntityType:  p.entity,
				Label:       p.entity,
				Start:       m[0],
				End:         m[1],
				Score:       score,
				Recognizer:  Name,
				Explanation: fmt.Sprintf("Matched pattern %s/%s", p.recognizer, p.name),
			}
		}
	}

	dets := make([]model.Detection, 0, len(best))
	for _, d := range best {
		dets = append(dets, d)
	}
	sort.Slice(dets, func(i, j int) bool {
		if dets[i].Start != dets[j].Start {
			return dets[i].Start < dets[j].Start
		}
		if dets[i].End != dets[j].End {
			return dets[i].End < dets[j].End
		}
		return dets[i].EntityType < dets[j].EntityType
	})
	return dets, nil
}

// enhanceScoreWithContext adds ContextSimilarityFactor when any context word
// occurs within ContextWindowChars of the match, capped at 1.0.
func enhanceScoreWithContext(text string, start, end int, baseScore float64, contextWords []string) float64 {
	if len(contextWords) == 0 || baseScore >= 1.0 {
		return baseScore
	}

	from := start - ContextWindowChars
	if from < 0 {
		from = 0
	}
	to := end + ContextWindowChars
	if to > len(text) {
		to = len(text)
	}
	window := strings.ToLower(text[from:start] + " " + text[end:to])

	for _, cw := range contextWords {
		if strings.Contains(window, strings.ToLower(cw)) {
			if boosted := baseScore + ContextSimilarityFactor; boosted < 1.0 {
				return boosted
			}
			return 1.0
		}
	}
	return baseScore
}
