package exposure

import (
	"strconv"

	"github.com/rxlens/rxlens/internal/vocab"
)

// doseRule is one (predicate, formula) pair of the formulation rule
// table. Rules are evaluated top-down per record and the first match
// wins; new formulation categories are added to the list, not to
// control flow.
type doseRule struct {
	name    string
	matches func(st *vocab.ResolvedStrength) bool
	apply   func(quantity *float64, st *vocab.ResolvedStrength) DoseResult
}

var doseRules = []doseRule{
	{
		// Tablets and other fixed-amount formulations carry no
		// denominator unit.
		name: "fixed-amount",
		matches: func(st *vocab.ResolvedStrength) bool {
			return st.DenominatorUnitConceptID == nil
		},
		apply: func(quantity *float64, st *vocab.ResolvedStrength) DoseResult {
			return scaledDose(quantity, st.AmountValue, st.DenominatorUnit)
		},
	},
	{
		// Puffs of an inhaler: denominator unit is {actuat}.
		name: "inhaler",
		matches: func(st *vocab.ResolvedStrength) bool {
			return *st.DenominatorUnitConceptID == vocab.UnitActuation
		},
		apply: func(quantity *float64, st *vocab.ResolvedStrength) DoseResult {
			return scaledDose(quantity, st.NumeratorValue, st.NumeratorUnit)
		},
	},
	{
		// Concentration formulated per mL or mg with a denominator
		// value other than 1, scaled by the administered quantity.
		name: "concentration-scaled",
		matches: func(st *vocab.ResolvedStrength) bool {
			return isVolumeOrMass(*st.DenominatorUnitConceptID) &&
				(st.DenominatorValue == nil || *st.DenominatorValue != 1)
		},
		apply: func(quantity *float64, st *vocab.ResolvedStrength) DoseResult {
			return scaledDose(quantity, st.NumeratorValue, st.NumeratorUnit)
		},
	},
	{
		// Quantified total: denominator value is exactly 1, quantity is
		// the full administered amount. The arithmetic coincides with
		// the concentration rule above but the clinical reading differs,
		// so the case stays its own entry.
		name: "quantified-total",
		matches: func(st *vocab.ResolvedStrength) bool {
			return isVolumeOrMass(*st.DenominatorUnitConceptID) &&
				st.DenominatorValue != nil && *st.DenominatorValue == 1
		},
		apply: func(quantity *float64, st *vocab.ResolvedStrength) DoseResult {
			return scaledDose(quantity, st.NumeratorValue, st.NumeratorUnit)
		},
	},
	{
		// Active ingredient released over time: the quantity does not
		// scale the dose.
		name: "time-release",
		matches: func(st *vocab.ResolvedStrength) bool {
			return *st.DenominatorUnitConceptID == vocab.UnitHour
		},
		apply: func(_ *float64, st *vocab.ResolvedStrength) DoseResult {
			if st.NumeratorValue == nil {
				return DoseResult{}
			}
			dose := *st.NumeratorValue
			display := formatDose(dose, st.NumeratorUnit)
			if code := conceptCode(st.DenominatorUnit); code != "" {
				display += " / " + code
			}
			return DoseResult{Dose: &dose, DoseDisplay: &display}
		},
	},
}

func isVolumeOrMass(unit int64) bool {
	return unit == vocab.UnitMilliliter || unit == vocab.UnitMilligram
}

// ComputeDose derives the dose for one exposure row from its quantity
// and matched strength metadata. Rows matching no rule are compounded or
// multi-ingredient formulations: both results stay nil, flagged for
// manual analysis rather than fabricated. No rule outcome is an error.
func ComputeDose(quantity *float64, st *vocab.ResolvedStrength) DoseResult {
	if st == nil {
		// Unresolved strength join: propagate the nulls.
		return DoseResult{}
	}
	for _, rule := range doseRules {
		if rule.matches(st) {
			return rule.apply(quantity, st)
		}
	}
	return DoseResult{}
}

// scaledDose computes quantity × value with the unit's concept code as
// display. Missing operands leave the result null.
func scaledDose(quantity, value *float64, unit *vocab.Concept) DoseResult {
	if quantity == nil || value == nil {
		return DoseResult{}
	}
	dose := *quantity * *value
	display := formatDose(dose, unit)
	return DoseResult{Dose: &dose, DoseDisplay: &display}
}

// formatDose renders "<dose> <concept_code>", omitting the code when the
// unit concept did not resolve.
func formatDose(dose float64, unit *vocab.Concept) string {
	s := strconv.FormatFloat(dose, 'f', -1, 64)
	if code := conceptCode(unit); code != "" {
		return s + " " + code
	}
	return s
}

func conceptCode(c *vocab.Concept) string {
	if c == nil {
		return ""
	}
	return c.ConceptCode
}
