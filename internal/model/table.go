package model

// Table is a row-oriented table: a header of unique column names followed by
// data rows of string cells.
type Table struct {
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

// TableFromRecords builds a Table from raw records where record 0 is the header.
// The slices are not copied.
func TableFromRecords(records [][]string) Table {
	if len(records) == 0 {
		return Table{}
	}
	return Table{
		Header: records[0],
		Rows:   records[1:],
	}
}

// Records returns the table as raw records with the header first.
func (t Table) Records() [][]string {
	records := make([][]string, 0, len(t.Rows)+1)
	records = append(records, t.Header)
	records = append(records, t.Rows...)
	return records
}

// ColumnView is the column-oriented form of a Table.
// Order holds the column names in header order; Values maps each column to its
// cells in row order. It is also the shape of anonymized output columns.
type ColumnView struct {
	Order  []string
	Values map[string][]string
}

// NewColumnView creates an empty view with the given column order
func NewColumnView(order []string) *ColumnView {
	return &ColumnView{
		Order:  order,
		Values: make(map[string][]string, len(order)),
	}
}

// Column returns the cells of the named column
func (v *ColumnView) Column(name string) ([]string, bool) {
	values, ok := v.Values[name]
	return values, ok
}

// Rows returns the number of data rows, taken from the first column.
func (v *ColumnView) Rows() int {
	if len(v.Order) == 0 {
		return 0
	}
	return len(v.Values[v.Order[0]])
}
