package exposure

import (
	"fmt"
	"time"

	"github.com/rxlens/rxlens/internal/vocab"
)

// DrugExposure is one administration event from an uploaded batch, after
// identifier pseudonymization and date coercion.
type DrugExposure struct {
	DrugExposureID    string    `json:"drug_exposure_id"`
	PersonID          string    `json:"person_id"`
	VisitOccurrenceID string    `json:"visit_occurrence_id"`
	DrugConceptID     int64     `json:"drug_concept_id"`
	DrugTypeConceptID int64     `json:"drug_type_concept_id"`
	RouteConceptID    int64     `json:"route_concept_id"`
	Quantity          *float64  `json:"quantity,omitempty"`
	StartDate         time.Time `json:"drug_exposure_start_date"`
	EndDate           time.Time `json:"drug_exposure_end_date"`
	StartDatetime     time.Time `json:"drug_exposure_start_datetime"`
	EndDatetime       time.Time `json:"drug_exposure_end_datetime"`
}

// EnrichedExposure is a DrugExposure with its concept references
// resolved. A missed join leaves the field nil; the row is kept.
type EnrichedExposure struct {
	DrugExposure
	Drug     *vocab.Concept `json:"drug,omitempty"`
	DrugType *vocab.Concept `json:"drug_type,omitempty"`
	Route    *vocab.Concept `json:"route,omitempty"`
}

// DrugLabel returns the drug concept name when resolved, otherwise the
// numeric concept id.
func (e *EnrichedExposure) DrugLabel() string {
	if e.Drug != nil && e.Drug.ConceptName != "" {
		return e.Drug.ConceptName
	}
	return fmt.Sprintf("%d", e.DrugConceptID)
}

// DoseResult is the derived dose for one exposure row. Both fields are
// nil for compounded formulations, which need manual analysis and must
// never get a fabricated value.
type DoseResult struct {
	Dose        *float64 `json:"dose,omitempty"`
	DoseDisplay *string  `json:"dose_display,omitempty"`
}

// DoseRecord combines an enriched exposure with its matched strength row
// and the derived dose.
type DoseRecord struct {
	EnrichedExposure
	Strength *vocab.ResolvedStrength `json:"strength,omitempty"`
	DoseResult
}

// MalformedInputError rejects a single uploaded file: a declared column
// is absent or a value cannot be parsed. It is reported to the caller
// and never crashes the process.
type MalformedInputError struct {
	Column string
	Reason string
}

func (e *MalformedInputError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("malformed input: missing required column %q", e.Column)
	}
	return fmt.Sprintf("malformed input: column %q: %s", e.Column, e.Reason)
}
