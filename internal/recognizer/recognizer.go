// Package recognizer defines the boundary to entity recognizers and the
// decorators and registry the engine uses to run them.
package recognizer

import (
	"context"
	"regexp"
	"strings"

	"github.com/ppiankov/deidentify/internal/model"
)

// Recognizer finds entity spans in a single cell value.
// Implementations must be safe for concurrent use.
type Recognizer interface {
	// Name identifies the recognizer in detections, logs and cache keys
	Name() string

	// SupportedEntities lists the target categories it may emit
	SupportedEntities() []string

	// SupportedLanguage is the ISO 639-1 code of the text it understands
	SupportedLanguage() string

	// Detect returns the spans found in text. Blank text yields no detections.
	Detect(ctx context.Context, text string) ([]model.Detection, error)
}

// Fingerprinter is implemented by recognizers whose output depends on
// configuration beyond name and language. The parts become part of cache keys.
type Fingerprinter interface {
	CacheKeyParts() []string
}

// CacheKeyParts returns rec's configuration fingerprint, or nil if it has none
func CacheKeyParts(rec Recognizer) []string {
	if f, ok := rec.(Fingerprinter); ok {
		return f.CacheKeyParts()
	}
	return nil
}

// placeholderPattern matches tokens written by a previous anonymization pass
var placeholderPattern = regexp.MustCompile(`<[A-Z][A-Z0-9_]*>`)

// PlaceholderSpans returns the byte ranges of placeholder tokens in text
func PlaceholderSpans(text string) [][]int {
	if !strings.Contains(text, "<") {
		return nil
	}
	return placeholderPattern.FindAllStringIndex(text, -1)
}

// OverlapsPlaceholder reports whether [start,end) shares a byte with any of spans
func OverlapsPlaceholder(spans [][]int, start, end int) bool {
	for _, s := range spans {
		if start < s[1] && s[0] < end {
			return true
		}
	}
	return false
}

// IsBlank reports whether text is empty or whitespace only
func IsBlank(text string) bool {
	return strings.TrimSpace(text) == ""
}

// Supports reports whether rec declares entity
func Supports(rec Recognizer, entity string) bool {
	for _, e := range rec.SupportedEntities() {
		if e == entity {
			return true
		}
	}
	return false
}
