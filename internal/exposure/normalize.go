package exposure

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Identifier columns that get pseudonymized when present in an upload.
var identifierColumns = []string{"drug_exposure_id", "person_id", "visit_occurrence_id"}

// Columns every upload must carry.
var requiredColumns = []string{
	"person_id",
	"drug_concept_id",
	"drug_exposure_start_date",
	"drug_exposure_end_date",
	"drug_exposure_start_datetime",
	"drug_exposure_end_datetime",
}

// Uploaded files use ISO-8601 dates and timestamps.
var (
	dateLayouts = []string{"2006-01-02", "2006-01-02T15:04:05", "2006-01-02 15:04:05"}
	timeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}
)

// IdentityMap holds the pseudonym assignments of one batch. Codes are
// assigned in first-seen order per column and the mapping is a bijection
// over the distinct raw values of that batch; a new batch starts over
// at 1.
type IdentityMap struct {
	columns map[string]map[string]string
	order   map[string]int
}

// NewIdentityMap creates an empty per-batch mapping.
func NewIdentityMap() *IdentityMap {
	return &IdentityMap{
		columns: make(map[string]map[string]string),
		order:   make(map[string]int),
	}
}

// Code returns the synthetic code for a raw value, assigning the next
// sequence number on first sight. The code is the uppercased first
// letter of the column followed by a 6-digit 1-based sequence number.
func (m *IdentityMap) Code(column, raw string) string {
	byRaw, ok := m.columns[column]
	if !ok {
		byRaw = make(map[string]string)
		m.columns[column] = byRaw
	}
	if code, ok := byRaw[raw]; ok {
		return code
	}
	m.order[column]++
	code := fmt.Sprintf("%s%06d", strings.ToUpper(column[:1]), m.order[column])
	byRaw[raw] = code
	return code
}

// Lookup returns the assigned code for a raw value without assigning.
func (m *IdentityMap) Lookup(column, raw string) (string, bool) {
	code, ok := m.columns[column][raw]
	return code, ok
}

// Size returns the number of distinct raw values seen for a column.
func (m *IdentityMap) Size(column string) int {
	return len(m.columns[column])
}

// Normalize pseudonymizes the identifier columns present in the table,
// parses dates and builds typed exposure rows. A missing required column
// or an unparseable value rejects the whole upload with
// MalformedInputError.
func Normalize(raw *RawTable) ([]DrugExposure, *IdentityMap, error) {
	for _, col := range requiredColumns {
		if !raw.Has(col) {
			return nil, nil, &MalformedInputError{Column: col}
		}
	}

	ids := NewIdentityMap()
	rows := make([]DrugExposure, 0, len(raw.Rows))
	for i := range raw.Rows {
		row := DrugExposure{}

		for _, col := range identifierColumns {
			if !raw.Has(col) {
				continue
			}
			v := raw.Cell(i, col)
			if v == "" {
				continue
			}
			code := ids.Code(col, v)
			switch col {
			case "drug_exposure_id":
				row.DrugExposureID = code
			case "person_id":
				row.PersonID = code
			case "visit_occurrence_id":
				row.VisitOccurrenceID = code
			}
		}

		var err error
		if row.DrugConceptID, err = parseConceptID(raw, i, "drug_concept_id"); err != nil {
			return nil, nil, err
		}
		if row.DrugTypeConceptID, err = parseOptionalConceptID(raw, i, "drug_type_concept_id"); err != nil {
			return nil, nil, err
		}
		if row.RouteConceptID, err = parseOptionalConceptID(raw, i, "route_concept_id"); err != nil {
			return nil, nil, err
		}
		if row.Quantity, err = parseQuantity(raw, i); err != nil {
			return nil, nil, err
		}
		if row.StartDate, err = parseDate(raw, i, "drug_exposure_start_date"); err != nil {
			return nil, nil, err
		}
		if row.EndDate, err = parseDate(raw, i, "drug_exposure_end_date"); err != nil {
			return nil, nil, err
		}
		if row.StartDatetime, err = parseDatetime(raw, i, "drug_exposure_start_datetime"); err != nil {
			return nil, nil, err
		}
		if row.EndDatetime, err = parseDatetime(raw, i, "drug_exposure_end_datetime"); err != nil {
			return nil, nil, err
		}

		rows = append(rows, row)
	}
	return rows, ids, nil
}

func parseConceptID(raw *RawTable, row int, col string) (int64, error) {
	v := raw.Cell(row, col)
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, &MalformedInputError{Column: col, Reason: fmt.Sprintf("row %d: %q is not a concept id", row+1, v)}
	}
	return id, nil
}

func parseOptionalConceptID(raw *RawTable, row int, col string) (int64, error) {
	if !raw.Has(col) || raw.Cell(row, col) == "" {
		return 0, nil
	}
	return parseConceptID(raw, row, col)
}

func parseQuantity(raw *RawTable, row int) (*float64, error) {
	const col = "quantity"
	if !raw.Has(col) {
		return nil, nil
	}
	v := raw.Cell(row, col)
	if v == "" {
		return nil, nil
	}
	q, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, &MalformedInputError{Column: col, Reason: fmt.Sprintf("row %d: %q is not a number", row+1, v)}
	}
	return &q, nil
}

func parseDate(raw *RawTable, row int, col string) (time.Time, error) {
	t, err := parseAny(raw.Cell(row, col), dateLayouts)
	if err != nil {
		return time.Time{}, &MalformedInputError{Column: col, Reason: fmt.Sprintf("row %d: %v", row+1, err)}
	}
	// Calendar-day granularity.
	return t.Truncate(24 * time.Hour), nil
}

func parseDatetime(raw *RawTable, row int, col string) (time.Time, error) {
	t, err := parseAny(raw.Cell(row, col), timeLayouts)
	if err != nil {
		return time.Time{}, &MalformedInputError{Column: col, Reason: fmt.Sprintf("row %d: %v", row+1, err)}
	}
	// Second precision.
	return t.Truncate(time.Second), nil
}

func parseAny(v string, layouts []string) (time.Time, error) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not an ISO-8601 date", v)
}
