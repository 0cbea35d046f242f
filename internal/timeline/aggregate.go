package timeline

import (
	"math"
	"sort"
	"time"

	"github.com/rxlens/rxlens/internal/exposure"
)

// dayBucket accumulates one date during aggregation, keeping insertion
// order so the first visit of a day is deterministic.
type dayBucket struct {
	drugs     []int64
	drugSeen  map[int64]bool
	visits    []string
	visitSeen map[string]bool
}

// DailyAllVisits expands every exposure interval into its covered
// calendar days (inclusive on both ends) and aggregates the distinct
// drugs and visits per day across the patient's full history. One row
// per distinct date, ascending.
func DailyAllVisits(rows []exposure.DrugExposure) []DailyAggregate {
	buckets := make(map[time.Time]*dayBucket)
	for _, row := range rows {
		for d := row.StartDate; !d.After(row.EndDate); d = d.AddDate(0, 0, 1) {
			b, ok := buckets[d]
			if !ok {
				b = &dayBucket{drugSeen: make(map[int64]bool), visitSeen: make(map[string]bool)}
				buckets[d] = b
			}
			if !b.drugSeen[row.DrugConceptID] {
				b.drugSeen[row.DrugConceptID] = true
				b.drugs = append(b.drugs, row.DrugConceptID)
			}
			if row.VisitOccurrenceID != "" && !b.visitSeen[row.VisitOccurrenceID] {
				b.visitSeen[row.VisitOccurrenceID] = true
				b.visits = append(b.visits, row.VisitOccurrenceID)
			}
		}
	}

	dates := make([]time.Time, 0, len(buckets))
	for d := range buckets {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	out := make([]DailyAggregate, 0, len(dates))
	for _, d := range dates {
		b := buckets[d]
		agg := DailyAggregate{
			Date:           d,
			DrugConceptIDs: b.drugs,
			DrugCount:      len(b.drugs),
			VisitIDs:       b.visits,
			VisitCount:     len(b.visits),
		}
		if len(b.visits) > 0 {
			agg.VisitID = b.visits[0]
		}
		out = append(out, agg)
	}
	return out
}

// FilterByVisit keeps the rows of a single visit.
func FilterByVisit(rows []exposure.EnrichedExposure, visitID string) []exposure.EnrichedExposure {
	var out []exposure.EnrichedExposure
	for _, row := range rows {
		if row.VisitOccurrenceID == visitID {
			out = append(out, row)
		}
	}
	return out
}

// FilterByDateRange keeps rows with start date on or after start and end
// date strictly before end; a nil bound is open.
func FilterByDateRange(rows []exposure.EnrichedExposure, start, end *time.Time) []exposure.EnrichedExposure {
	var out []exposure.EnrichedExposure
	for _, row := range rows {
		if start != nil && row.StartDate.Before(*start) {
			continue
		}
		if end != nil && !row.EndDate.Before(*end) {
			continue
		}
		out = append(out, row)
	}
	return out
}

// Build computes the drug timeline for a filtered exposure slice. Rows
// are ordered by (drug_concept_id, start datetime) ascending; within
// each drug group the quantity delta against the previous row is
// classified into a trend.
func Build(rows []exposure.EnrichedExposure) []Entry {
	sorted := make([]exposure.EnrichedExposure, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].DrugConceptID != sorted[j].DrugConceptID {
			return sorted[i].DrugConceptID < sorted[j].DrugConceptID
		}
		return sorted[i].StartDatetime.Before(sorted[j].StartDatetime)
	})

	out := make([]Entry, len(sorted))
	var prev *exposure.EnrichedExposure
	for i := range sorted {
		row := &sorted[i]
		e := Entry{
			DrugConceptID:     row.DrugConceptID,
			DrugLabel:         row.DrugLabel(),
			VisitOccurrenceID: row.VisitOccurrenceID,
			Start:             row.StartDatetime,
			End:               row.EndDatetime,
			Quantity:          row.Quantity,
		}
		if prev != nil && prev.DrugConceptID == row.DrugConceptID &&
			prev.Quantity != nil && row.Quantity != nil {
			diff := *row.Quantity - *prev.Quantity
			e.QuantityDiff = &diff
		}
		e.QuantityDiffPct = diffPercentage(e.QuantityDiff, row.Quantity)
		e.Trend = trend(e.QuantityDiff)
		out[i] = e
		prev = row
	}
	return out
}

// diffPercentage is round(diff/quantity*100, 2) for positive quantities.
// A non-positive or missing quantity pins the percentage at 100; a
// missing diff (first row of a group) leaves it null.
func diffPercentage(diff, quantity *float64) *float64 {
	if quantity == nil || *quantity <= 0 {
		pct := 100.0
		return &pct
	}
	if diff == nil {
		return nil
	}
	pct := math.Round(*diff / *quantity * 100 * 100) / 100
	return &pct
}

// trend maps the diff sign onto the color scale classes; a missing diff
// reads as flat.
func trend(diff *float64) int {
	switch {
	case diff == nil:
		return TrendFlat
	case *diff > 0:
		return TrendUp
	case *diff < 0:
		return TrendDown
	default:
		return TrendFlat
	}
}
