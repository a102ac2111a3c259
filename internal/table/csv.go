package table

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/ppiankov/deidentify/internal/model"
)

// ReadCSV reads a delimited table. The first record is the header.
// Field counts are not enforced here so that Transpose can report ragged rows
// with their row index.
func ReadCSV(r io.Reader, delimiter rune) (model.Table, error) {
	reader := csv.NewReader(r)
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return model.Table{}, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return model.Table{}, &MalformedTableError{Row: -1, Reason: "missing header row"}
	}
	return model.TableFromRecords(records), nil
}

// WriteCSV writes the header and rows as delimited text
func WriteCSV(w io.Writer, t model.Table, delimiter rune) error {
	writer := csv.NewWriter(w)
	writer.Comma = delimiter

	if err := writer.WriteAll(t.Records()); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}
