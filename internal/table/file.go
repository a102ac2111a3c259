package table

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/deidentify/internal/model"
)

// Format identifies a table file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
	FormatHTML Format = "html"
	FormatJSON Format = "json"
)

// FormatFromPath picks a format from the file extension, defaulting to CSV
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsv", ".tab":
		return FormatTSV
	case ".html", ".htm":
		return FormatHTML
	case ".json":
		return FormatJSON
	default:
		return FormatCSV
	}
}

// Writable reports whether Write supports format
func Writable(format Format) bool {
	switch format {
	case FormatCSV, FormatTSV, FormatJSON:
		return true
	default:
		return false
	}
}

// Read reads a table in the given format. JSON input is not supported.
func Read(r io.Reader, format Format) (model.Table, error) {
	switch format {
	case FormatCSV:
		return ReadCSV(r, ',')
	case FormatTSV:
		return ReadCSV(r, '\t')
	case FormatHTML:
		return ReadHTML(r)
	default:
		return model.Table{}, fmt.Errorf("unsupported input format: %s", format)
	}
}

// Write writes a table in the given format. HTML output is not supported.
func Write(w io.Writer, t model.Table, format Format) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, t, ',')
	case FormatTSV:
		return WriteCSV(w, t, '\t')
	case FormatJSON:
		return WriteJSON(w, t)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// ReadFile reads a table file, choosing the format from its extension
func ReadFile(path string) (model.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Table{}, fmt.Errorf("open input: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Read(f, FormatFromPath(path))
}

// WriteFile writes a table file, choosing the format from its extension
func WriteFile(path string, t model.Table) (err error) {
	format := FormatFromPath(path)
	if !Writable(format) {
		return fmt.Errorf("unsupported output format: %s", format)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close output: %w", closeErr)
		}
	}()

	return Write(f, t, format)
}

// WriteJSON writes the rows as a JSON array of objects. Keys keep header order.
func WriteJSON(w io.Writer, t model.Table) error {
	bw := bufio.NewWriter(w)

	keys := make([][]byte, len(t.Header))
	for i, name := range t.Header {
		b, err := json.Marshal(name)
		if err != nil {
			return fmt.Errorf("marshal column name: %w", err)
		}
		keys[i] = b
	}

	_, _ = bw.WriteString("[")
	for r, row := range t.Rows {
		if len(row) != len(t.Header) {
			return &MalformedTableError{Row: r, Reason: fmt.Sprintf("has %d cells, header has %d", len(row), len(t.Header))}
		}
		if r > 0 {
			_, _ = bw.WriteString(",")
		}
		_, _ = bw.WriteString("\n  {")
		for c, cell := range row {
			if c > 0 {
				_, _ = bw.WriteString(",")
			}
			v, err := json.Marshal(cell)
			if err != nil {
				return fmt.Errorf("marshal row %d: %w", r, err)
			}
			_, _ = bw.Write(keys[c])
			_, _ = bw.WriteString(":")
			_, _ = bw.Write(v)
		}
		_, _ = bw.WriteString("}")
	}
	if len(t.Rows) > 0 {
		_, _ = bw.WriteString("\n")
	}
	_, _ = bw.WriteString("]\n")

	return bw.Flush()
}
