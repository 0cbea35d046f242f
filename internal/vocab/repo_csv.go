package vocab

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Reference vocabulary exports use YYYYMMDD dates.
const refDateLayout = "20060102"

// Standard file names inside an OMOP vocabulary download.
const (
	ConceptFile      = "CONCEPT.csv"
	DrugStrengthFile = "DRUG_STRENGTH.csv"
)

// CSVRepository reads the vocabulary from tab-separated OMOP export files
// in a local directory (the layout produced by `rxlens-server vocab fetch`
// or a manual Athena download).
type CSVRepository struct {
	dir string
}

// NewCSVRepository creates a repository over the given vocabulary directory.
func NewCSVRepository(dir string) *CSVRepository {
	return &CSVRepository{dir: dir}
}

// Concepts loads CONCEPT.csv.
func (r *CSVRepository) Concepts(ctx context.Context) ([]Concept, error) {
	var out []Concept
	err := r.readFile(ctx, ConceptFile, func(row *refRow) error {
		c := Concept{
			ConceptName:    row.get("concept_name"),
			DomainID:       row.get("domain_id"),
			ConceptClassID: row.get("concept_class_id"),
			ConceptCode:    row.get("concept_code"),
			InvalidReason:  row.optional("invalid_reason"),
		}
		var err error
		if c.ConceptID, err = row.int64("concept_id"); err != nil {
			return err
		}
		if c.ValidStart, err = row.date("valid_start_date"); err != nil {
			return err
		}
		if c.ValidEnd, err = row.date("valid_end_date"); err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	return out, err
}

// DrugStrengths loads DRUG_STRENGTH.csv.
func (r *CSVRepository) DrugStrengths(ctx context.Context) ([]DrugStrength, error) {
	var out []DrugStrength
	err := r.readFile(ctx, DrugStrengthFile, func(row *refRow) error {
		s := DrugStrength{
			InvalidReason: row.optional("invalid_reason"),
		}
		var err error
		if s.DrugConceptID, err = row.int64("drug_concept_id"); err != nil {
			return err
		}
		if s.IngredientConceptID, err = row.int64("ingredient_concept_id"); err != nil {
			return err
		}
		if s.AmountValue, err = row.optFloat("amount_value"); err != nil {
			return err
		}
		if s.AmountUnitConceptID, err = row.optInt64("amount_unit_concept_id"); err != nil {
			return err
		}
		if s.NumeratorValue, err = row.optFloat("numerator_value"); err != nil {
			return err
		}
		if s.NumeratorUnitConceptID, err = row.optInt64("numerator_unit_concept_id"); err != nil {
			return err
		}
		if s.DenominatorValue, err = row.optFloat("denominator_value"); err != nil {
			return err
		}
		if s.DenominatorUnitConceptID, err = row.optInt64("denominator_unit_concept_id"); err != nil {
			return err
		}
		if s.ValidStart, err = row.date("valid_start_date"); err != nil {
			return err
		}
		if s.ValidEnd, err = row.date("valid_end_date"); err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

// readFile streams a tab-separated vocabulary file, calling fn once per
// data row with header-resolved field access.
func (r *CSVRepository) readFile(ctx context.Context, name string, fn func(*refRow) error) error {
	path := filepath.Join(r.dir, name)
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open vocabulary file %s: %w", name, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.Comma = '\t'
	// Athena exports do not quote fields; drug names may contain quotes.
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return fmt.Errorf("read header of %s: %w", name, err)
	}
	index := make(map[string]int, len(header))
	for i, col := range header {
		index[strings.TrimSpace(col)] = i
	}

	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fields, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s line %d: %w", name, line+1, err)
		}
		line++
		row := &refRow{file: name, line: line, index: index, fields: fields}
		if err := fn(row); err != nil {
			return err
		}
	}
}

// refRow resolves vocabulary fields by header name.
type refRow struct {
	file   string
	line   int
	index  map[string]int
	fields []string
}

func (r *refRow) get(col string) string {
	i, ok := r.index[col]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return r.fields[i]
}

// optional returns nil for empty fields, mirroring NULL in the source data.
func (r *refRow) optional(col string) *string {
	v := r.get(col)
	if v == "" {
		return nil
	}
	return &v
}

func (r *refRow) int64(col string) (int64, error) {
	v := r.get(col)
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s line %d: column %q: parse %q as integer: %w", r.file, r.line, col, v, err)
	}
	return n, nil
}

func (r *refRow) optInt64(col string) (*int64, error) {
	if r.get(col) == "" {
		return nil, nil
	}
	n, err := r.int64(col)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *refRow) optFloat(col string) (*float64, error) {
	v := r.get(col)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("%s line %d: column %q: parse %q as number: %w", r.file, r.line, col, v, err)
	}
	return &f, nil
}

func (r *refRow) date(col string) (time.Time, error) {
	v := r.get(col)
	t, err := time.Parse(refDateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s line %d: column %q: parse %q as YYYYMMDD date: %w", r.file, r.line, col, v, err)
	}
	return t, nil
}
