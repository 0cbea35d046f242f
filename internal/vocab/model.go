package vocab

import "time"

// Well-known OMOP unit concept IDs referenced by the dose rules.
const (
	UnitActuation  int64 = 45744809 // {actuat}, inhaler puffs
	UnitMilliliter int64 = 8587
	UnitMilligram  int64 = 8576
	UnitHour       int64 = 8505 // active ingredient released over time
)

// Concept is one row of the OMOP CONCEPT vocabulary table.
// Reference data, loaded once per process and never mutated.
type Concept struct {
	ConceptID      int64     `json:"concept_id"`
	ConceptName    string    `json:"concept_name"`
	DomainID       string    `json:"domain_id"`
	ConceptClassID string    `json:"concept_class_id"`
	ConceptCode    string    `json:"concept_code"`
	ValidStart     time.Time `json:"valid_start_date"`
	ValidEnd       time.Time `json:"valid_end_date"`
	// InvalidReason is "D" (deleted), "U" (replaced with an update) or nil
	// when valid_end_date still holds the default value.
	InvalidReason *string `json:"invalid_reason,omitempty"`
}

// ValidAt reports whether the concept is still valid at the given time.
func (c *Concept) ValidAt(t time.Time) bool {
	return !c.ValidEnd.Before(t)
}

// DrugStrength is one row of the OMOP DRUG_STRENGTH reference table.
type DrugStrength struct {
	DrugConceptID            int64     `json:"drug_concept_id"`
	IngredientConceptID      int64     `json:"ingredient_concept_id"`
	AmountValue              *float64  `json:"amount_value,omitempty"`
	AmountUnitConceptID      *int64    `json:"amount_unit_concept_id,omitempty"`
	NumeratorValue           *float64  `json:"numerator_value,omitempty"`
	NumeratorUnitConceptID   *int64    `json:"numerator_unit_concept_id,omitempty"`
	DenominatorValue         *float64  `json:"denominator_value,omitempty"`
	DenominatorUnitConceptID *int64    `json:"denominator_unit_concept_id,omitempty"`
	ValidStart               time.Time `json:"valid_start_date"`
	ValidEnd                 time.Time `json:"valid_end_date"`
	InvalidReason            *string   `json:"invalid_reason,omitempty"`
}

// ResolvedStrength is a DrugStrength row enriched with the unit and
// ingredient concepts it references. Enrichment fields are nil when the
// join key found no match; the row itself is never dropped.
type ResolvedStrength struct {
	DrugStrength
	AmountUnit      *Concept `json:"amount_unit,omitempty"`
	NumeratorUnit   *Concept `json:"numerator_unit,omitempty"`
	DenominatorUnit *Concept `json:"denominator_unit,omitempty"`
	Ingredient      *Concept `json:"ingredient,omitempty"`
}
