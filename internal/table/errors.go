package table

import "fmt"

// MalformedTableError reports a table that violates the header/row shape.
// Row is the 0-based data row index, or -1 for header problems.
type MalformedTableError struct {
	Row    int
	Column string
	Reason string
}

func (e *MalformedTableError) Error() string {
	if e.Row < 0 {
		if e.Column != "" {
			return fmt.Sprintf("malformed table: header column %q: %s", e.Column, e.Reason)
		}
		return fmt.Sprintf("malformed table: header: %s", e.Reason)
	}
	return fmt.Sprintf("malformed table: row %d: %s", e.Row, e.Reason)
}

// ReassemblyLengthMismatch reports an anonymized column whose length does not
// match the original row count. It always indicates a pipeline bug.
type ReassemblyLengthMismatch struct {
	Column string
	Want   int
	Got    int
}

func (e *ReassemblyLengthMismatch) Error() string {
	if e.Got < 0 {
		return fmt.Sprintf("reassembly: column %q missing from anonymized output", e.Column)
	}
	return fmt.Sprintf("reassembly: column %q has %d values, want %d", e.Column, e.Got, e.Want)
}
