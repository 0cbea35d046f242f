package timeline

import "time"

// DailyAggregate is one calendar day of a patient's history: the
// distinct drugs and visits covering that day.
type DailyAggregate struct {
	Date           time.Time `json:"date"`
	DrugConceptIDs []int64   `json:"unique_drugs"`
	DrugCount      int       `json:"nb_drugs"`
	// VisitID is the first visit seen for the date. When several visits
	// overlap one day this loses precision; documented behavior, kept.
	VisitID    string   `json:"visit_id"`
	VisitIDs   []string `json:"unique_visits"`
	VisitCount int      `json:"nb_visits"`
}

// Trend classifications for sequential same-drug quantity changes. The
// consuming timeline colors bars by this value.
const (
	TrendDown = -1
	TrendFlat = 0
	TrendUp   = 1
)

// Entry is one bar of the visit drug timeline: an exposure interval with
// the quantity delta against the previous administration of the same
// drug.
type Entry struct {
	DrugConceptID     int64     `json:"drug_concept_id"`
	DrugLabel         string    `json:"drug_label"`
	VisitOccurrenceID string    `json:"visit_occurrence_id"`
	Start             time.Time `json:"drug_exposure_start_datetime"`
	End               time.Time `json:"drug_exposure_end_datetime"`
	Quantity          *float64  `json:"quantity,omitempty"`
	// QuantityDiff is nil for the first administration of a drug in the
	// slice: no previous row exists, which is a defined state rather
	// than an error.
	QuantityDiff    *float64 `json:"quantity_diff,omitempty"`
	QuantityDiffPct *float64 `json:"quantity_diff_percentage,omitempty"`
	Trend           int      `json:"quantity_diff_trend"`
}
