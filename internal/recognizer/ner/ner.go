// Package ner is a client for a named entity recognition model served over
// HTTP (for example a Flair or spaCy sidecar). The sidecar does the tagging;
// this package turns its spans into detections.
package ner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/deidentify/internal/model"
	"github.com/ppiankov/deidentify/internal/recognizer"
	"github.com/ppiankov/deidentify/internal/util"
)

// Name is the recognizer name reported in detections
const Name = "ner"

// ModelLanguages maps a language to the sidecar model that serves it
var ModelLanguages = map[string]string{
	"en": "flair/ner-english-large",
	"es": "flair/ner-spanish-large",
	"de": "flair/ner-german-large",
	"nl": "flair/ner-dutch-large",
}

// Equivalences maps native NER tags to target categories
var Equivalences = map[string]string{
	"PER": "PERSON",
	"LOC": "LOCATION",
	"ORG": "ORGANIZATION",
}

// Entities are the categories this recognizer declares
var Entities = []string{"LOCATION", "PERSON", "ORGANIZATION"}

// Config configures the sidecar client
type Config struct {
	URL      string        // Base URL, e.g. http://localhost:8001
	Language string        // ISO 639-1; selects the model
	Model    string        // Overrides the ModelLanguages entry
	Timeout  time.Duration // Per request

	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// Recognizer calls the sidecar's /classify endpoint
type Recognizer struct {
	url      string
	language string
	model    string
	http     *http.Client
}

var _ recognizer.Recognizer = (*Recognizer)(nil)

type classifyRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Model    string `json:"model"`
}

type classifyResponse struct {
	Spans []nerSpan `json:"spans"`
}

// nerSpan offsets count Unicode code points, as Python sidecars report them
type nerSpan struct {
	Start int      `json:"start"`
	End   int      `json:"end"`
	Label string   `json:"label"`
	Score *float64 `json:"score,omitempty"`
}

// New creates a sidecar client
func New(cfg Config) (*Recognizer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("ner: sidecar URL is required")
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}

	modelName := cfg.Model
	if modelName == "" {
		var ok bool
		modelName, ok = ModelLanguages[cfg.Language]
		if !ok {
			return nil, fmt.Errorf("ner: no model for language %q", cfg.Language)
		}
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Recognizer{
		url:      strings.TrimRight(cfg.URL, "/") + "/classify",
		language: cfg.Language,
		model:    modelName,
		http:     util.NewHTTPClient(timeout, cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy),
	}, nil
}

// Name implements recognizer.Recognizer
func (r *Recognizer) Name() string { return Name }

// SupportedEntities implements recognizer.Recognizer
func (r *Recognizer) SupportedEntities() []string { return Entities }

// SupportedLanguage implements recognizer.Recognizer
func (r *Recognizer) SupportedLanguage() string { return r.language }

// Model returns the sidecar model used for this language
func (r *Recognizer) Model() string { return r.model }

// CacheKeyParts implements recognizer.Fingerprinter
func (r *Recognizer) CacheKeyParts() []string {
	return []string{"url=" + r.url, "model=" + r.model}
}

// Detect implements recognizer.Recognizer. Transport failures and non-200
// replies are returned as errors.
func (r *Recognizer) Detect(ctx context.Context, text string) ([]model.Detection, error) {
	if recognizer.IsBlank(text) {
		return nil, nil
	}

	body, err := json.Marshal(classifyRequest{Text: text, Language: r.language, Model: r.model})
	if err != nil {
		return nil, fmt.Errorf("ner: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ner: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ner: call sidecar: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ner: sidecar returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var result classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ner: decode: %w", err)
	}

	offsets := byteOffsets(text)
	dets := make([]model.Detection, 0, len(result.Spans))
	for _, s := range result.Spans {
		score := 1.0
		if s.Score != nil {
			score = math.Round(*s.Score*100) / 100
		}

		entityType := s.Label
		if mapped, ok := Equivalences[s.Label]; ok {
			entityType = mapped
		}

		dets = append(dets, model.Detection{
			EntityType:  entityType,
			Label:       s.Label,
			Start:       toByteOffset(offsets, s.Start),
			End:         toByteOffset(offsets, s.End),
			Score:       score,
			Recognizer:  Name,
			Explanation: fmt.Sprintf("Identified as %s by %s named entity recognition", s.Label, r.model),
		})
	}
	return dets, nil
}

// byteOffsets returns the byte offset of every rune in text plus len(text)
func byteOffsets(text string) []int {
	offsets := make([]int, 0, len(text)+1)
	for i := range text {
		offsets = append(offsets, i)
	}
	return append(offsets, len(text))
}

// toByteOffset converts a code point index. Out of range indexes map to -1
// so span validation rejects them.
func toByteOffset(offsets []int, runeIndex int) int {
	if runeIndex < 0 || runeIndex >= len(offsets) {
		return -1
	}
	return offsets[runeIndex]
}
