package vocab

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository reads the vocabulary from an OMOP CDM Postgres schema.
// Only the two reference tables are touched; exposure data never goes
// through the database.
type PGRepository struct {
	pool   *pgxpool.Pool
	schema string
}

// NewPGRepository creates a repository over the given pool. schema is the
// CDM schema holding the vocabulary tables (commonly "cdm" or "public").
func NewPGRepository(pool *pgxpool.Pool, schema string) *PGRepository {
	if schema == "" {
		schema = "public"
	}
	return &PGRepository{pool: pool, schema: schema}
}

// Concepts loads the concept table.
func (r *PGRepository) Concepts(ctx context.Context) ([]Concept, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		`SELECT concept_id, concept_name, domain_id, concept_class_id, concept_code,
		        valid_start_date, valid_end_date, invalid_reason
		 FROM %s.concept`, r.schema))
	if err != nil {
		return nil, fmt.Errorf("query concept: %w", err)
	}
	defer rows.Close()

	var out []Concept
	for rows.Next() {
		var c Concept
		if err := rows.Scan(&c.ConceptID, &c.ConceptName, &c.DomainID, &c.ConceptClassID,
			&c.ConceptCode, &c.ValidStart, &c.ValidEnd, &c.InvalidReason); err != nil {
			return nil, fmt.Errorf("scan concept: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DrugStrengths loads the drug_strength table.
func (r *PGRepository) DrugStrengths(ctx context.Context) ([]DrugStrength, error) {
	rows, err := r.pool.Query(ctx, fmt.Sprintf(
		`SELECT drug_concept_id, ingredient_concept_id,
		        amount_value, amount_unit_concept_id,
		        numerator_value, numerator_unit_concept_id,
		        denominator_value, denominator_unit_concept_id,
		        valid_start_date, valid_end_date, invalid_reason
		 FROM %s.drug_strength`, r.schema))
	if err != nil {
		return nil, fmt.Errorf("query drug_strength: %w", err)
	}
	defer rows.Close()

	var out []DrugStrength
	for rows.Next() {
		var s DrugStrength
		if err := rows.Scan(&s.DrugConceptID, &s.IngredientConceptID,
			&s.AmountValue, &s.AmountUnitConceptID,
			&s.NumeratorValue, &s.NumeratorUnitConceptID,
			&s.DenominatorValue, &s.DenominatorUnitConceptID,
			&s.ValidStart, &s.ValidEnd, &s.InvalidReason); err != nil {
			return nil, fmt.Errorf("scan drug_strength: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
