package anonymize

import (
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/blake2b"

	"github.com/ppiankov/deidentify/internal/model"
)

// Operator types
const (
	OperatorReplace = "replace"
	OperatorRedact  = "redact"
	OperatorMask    = "mask"
	OperatorHash    = "hash"
)

// Operator rewrites the text of one detected span
type Operator interface {
	Apply(text, entityType string) string
}

// NewOperator builds an operator from configuration. An empty type means replace.
func NewOperator(cfg model.OperatorConfig) (Operator, error) {
	switch strings.ToLower(cfg.Type) {
	case "", OperatorReplace:
		return replaceOperator{newValue: cfg.NewValue}, nil
	case OperatorRedact:
		return redactOperator{}, nil
	case OperatorMask:
		if cfg.CharsToMask < 0 {
			return nil, fmt.Errorf("mask operator: chars_to_mask must not be negative")
		}
		char := '*'
		if cfg.MaskingChar != "" {
			r, size := utf8.DecodeRuneInString(cfg.MaskingChar)
			if size != len(cfg.MaskingChar) {
				return nil, fmt.Errorf("mask operator: masking_char must be a single character, got %q", cfg.MaskingChar)
			}
			char = r
		}
		return maskOperator{char: char, count: cfg.CharsToMask, fromEnd: cfg.FromEnd}, nil
	case OperatorHash:
		return hashOperator{salt: cfg.Salt}, nil
	default:
		return nil, fmt.Errorf("unknown operator: %s (supported: replace, redact, mask, hash)", cfg.Type)
	}
}

// Placeholder returns the replacement token for an entity type
func Placeholder(entityType string) string {
	return "<" + entityType + ">"
}

type replaceOperator struct {
	newValue string
}

func (o replaceOperator) Apply(_, entityType string) string {
	if o.newValue != "" {
		return o.newValue
	}
	return Placeholder(entityType)
}

type redactOperator struct{}

func (redactOperator) Apply(string, string) string { return "" }

type maskOperator struct {
	char    rune
	count   int // 0 masks every character
	fromEnd bool
}

func (o maskOperator) Apply(text, _ string) string {
	runes := []rune(text)
	n := o.count
	if n == 0 || n > len(runes) {
		n = len(runes)
	}

	if o.fromEnd {
		for i := len(runes) - n; i < len(runes); i++ {
			runes[i] = o.char
		}
	} else {
		for i := 0; i < n; i++ {
			runes[i] = o.char
		}
	}
	return string(runes)
}

type hashOperator struct {
	salt string
}

func (o hashOperator) Apply(text, _ string) string {
	sum := blake2b.Sum256([]byte(o.salt + text))
	return hex.EncodeToString(sum[:])
}
