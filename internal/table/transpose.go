// Package table converts between row-oriented tables and column views, and
// reads and writes table files.
package table

import (
	"fmt"
	"strings"

	"github.com/ppiankov/deidentify/internal/model"
)

// PlaceholderMarker marks a cell that already carries placeholder syntax
const PlaceholderMarker = "<"

// Transpose validates t and converts it to a column view in header order.
// It fails with *MalformedTableError on empty or duplicate column names and on
// rows whose width differs from the header.
func Transpose(t model.Table) (*model.ColumnView, error) {
	if len(t.Header) == 0 {
		return nil, &MalformedTableError{Row: -1, Reason: "missing header row"}
	}

	seen := make(map[string]bool, len(t.Header))
	for _, name := range t.Header {
		if strings.TrimSpace(name) == "" {
			return nil, &MalformedTableError{Row: -1, Column: name, Reason: "empty column name"}
		}
		if seen[name] {
			return nil, &MalformedTableError{Row: -1, Column: name, Reason: "duplicate column name"}
		}
		seen[name] = true
	}

	for i, row := range t.Rows {
		if len(row) != len(t.Header) {
			return nil, &MalformedTableError{
				Row:    i,
				Reason: fmt.Sprintf("has %d cells, header has %d", len(row), len(t.Header)),
			}
		}
	}

	order := make([]string, len(t.Header))
	copy(order, t.Header)
	view := model.NewColumnView(order)
	for c, name := range order {
		values := make([]string, len(t.Rows))
		for r, row := range t.Rows {
			values[r] = row[c]
		}
		view.Values[name] = values
	}

	return view, nil
}

// Normalize lower-cases every cell in place when lowerCase is set. Cells that
// contain PlaceholderMarker are left untouched so placeholder tokens from a
// previous pass keep their case. Header names are not changed.
func Normalize(view *model.ColumnView, lowerCase bool) {
	if !lowerCase {
		return
	}
	for _, name := range view.Order {
		values := view.Values[name]
		for i, v := range values {
			if strings.Contains(v, PlaceholderMarker) {
				continue
			}
			values[i] = strings.ToLower(v)
		}
	}
}

// Reassemble zips the columns of view positionally back into rows, using order
// as the output header. Every column must hold exactly rows values.
func Reassemble(view *model.ColumnView, order []string, rows int) (model.Table, error) {
	for _, name := range order {
		values, ok := view.Values[name]
		if !ok {
			return model.Table{}, &ReassemblyLengthMismatch{Column: name, Want: rows, Got: -1}
		}
		if len(values) != rows {
			return model.Table{}, &ReassemblyLengthMismatch{Column: name, Want: rows, Got: len(values)}
		}
	}

	header := make([]string, len(order))
	copy(header, order)

	out := model.Table{
		Header: header,
		Rows:   make([][]string, rows),
	}
	for r := 0; r < rows; r++ {
		row := make([]string, len(order))
		for c, name := range order {
			row[c] = view.Values[name][r]
		}
		out.Rows[r] = row
	}
	return out, nil
}
