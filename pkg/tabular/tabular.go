package tabular

import "fmt"

// Table is a column-ordered tabular payload for API responses.
// JSON encoding keeps the column order explicit so consumers can render
// the table without guessing at map iteration order.
type Table struct {
	Columns []string        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
}

// New creates an empty table with the given column order.
func New(columns ...string) *Table {
	return &Table{Columns: columns, Rows: [][]interface{}{}}
}

// Append adds one row. The number of values must match the column count.
func (t *Table) Append(values ...interface{}) error {
	if len(values) != len(t.Columns) {
		return fmt.Errorf("row has %d values, table has %d columns", len(values), len(t.Columns))
	}
	t.Rows = append(t.Rows, values)
	return nil
}

// MustAppend adds one row and panics on a column-count mismatch.
// Use it when the row is built from the same literal as the header.
func (t *Table) MustAppend(values ...interface{}) {
	if err := t.Append(values...); err != nil {
		panic(err)
	}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.Rows)
}
