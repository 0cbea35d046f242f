package exposure

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// RawTable is a decoded upload before normalization: a header plus
// string cells, column-addressable by name.
type RawTable struct {
	Columns []string
	Rows    [][]string

	index map[string]int
}

func newRawTable(columns []string, rows [][]string) *RawTable {
	t := &RawTable{Columns: columns, Rows: rows, index: make(map[string]int, len(columns))}
	for i, col := range columns {
		t.index[strings.TrimSpace(col)] = i
	}
	return t
}

// Has reports whether the table has the named column.
func (t *RawTable) Has(col string) bool {
	_, ok := t.index[col]
	return ok
}

// Cell returns the value at (row, col). Short rows read as empty cells.
func (t *RawTable) Cell(row int, col string) string {
	i, ok := t.index[col]
	if !ok || i >= len(t.Rows[row]) {
		return ""
	}
	return strings.TrimSpace(t.Rows[row][i])
}

// DecodeTable decodes an uploaded exposure file. CSV is assumed unless
// the filename points at a spreadsheet, mirroring the upload contract of
// the dashboard.
func DecodeTable(filename string, r io.Reader) (*RawTable, error) {
	if strings.Contains(strings.ToLower(filename), "xls") {
		return decodeXLSX(r)
	}
	return decodeCSV(r)
}

func decodeCSV(r io.Reader) (*RawTable, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("decode csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("decode csv: empty file")
	}
	return newRawTable(records[0], records[1:]), nil
}

func decodeXLSX(r io.Reader) (*RawTable, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("decode spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("decode spreadsheet: no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("decode spreadsheet: read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("decode spreadsheet: sheet %q is empty", sheets[0])
	}
	return newRawTable(rows[0], rows[1:]), nil
}
