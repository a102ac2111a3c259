package recognizer

import (
	"errors"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/ppiankov/deidentify/internal/model"
)

// ErrInvalidDetection marks recognizer output that breaks the span contract
var ErrInvalidDetection = errors.New("invalid detection")

// Validate checks that every detection is a well-formed span of text: offsets
// in bounds and on rune boundaries, start before end, score within [0,1].
func Validate(text string, dets []model.Detection) error {
	for i, d := range dets {
		switch {
		case d.Start < 0 || d.End > len(text):
			return fmt.Errorf("%w: #%d [%d,%d) outside value of length %d", ErrInvalidDetection, i, d.Start, d.End, len(text))
		case d.Start >= d.End:
			return fmt.Errorf("%w: #%d start %d not before end %d", ErrInvalidDetection, i, d.Start, d.End)
		case !onRuneBoundary(text, d.Start) || !onRuneBoundary(text, d.End):
			return fmt.Errorf("%w: #%d [%d,%d) splits a character", ErrInvalidDetection, i, d.Start, d.End)
		case math.IsNaN(d.Score) || d.Score < 0 || d.Score > 1:
			return fmt.Errorf("%w: #%d score %v outside [0,1]", ErrInvalidDetection, i, d.Score)
		case d.RawLabel() == "":
			return fmt.Errorf("%w: #%d has no label", ErrInvalidDetection, i)
		}
	}
	return nil
}

func onRuneBoundary(text string, offset int) bool {
	return offset == len(text) || utf8.RuneStart(text[offset])
}
