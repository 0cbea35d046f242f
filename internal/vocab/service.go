package vocab

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// IntegrityError reports a bookkeeping mismatch in DRUG_STRENGTH: the
// number of rows whose valid_end_date has passed must equal the number of
// rows carrying a non-null invalid_reason. A mismatch means the reference
// download is inconsistent and must not be silently repaired.
type IntegrityError struct {
	Expired int
	Flagged int
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("drug_strength integrity violation: %d rows past valid_end_date but %d rows flagged invalid", e.Expired, e.Flagged)
}

// Options configures vocabulary loading.
type Options struct {
	// KeepOnlyValidUnits restricts the unit joins of ResolveStrengths to
	// concepts that are still valid at load time.
	KeepOnlyValidUnits bool
	// Now overrides the validity reference time. Defaults to time.Now.
	Now func() time.Time
}

// Service holds the loaded vocabulary and the resolved drug strengths.
// All state is built once and read-only afterwards, so it is safe for
// concurrent use by every pipeline invocation.
type Service struct {
	concepts map[int64]*Concept
	units    map[int64]*Concept
	resolved []ResolvedStrength
	byDrug   map[int64]*ResolvedStrength
	rawCount int
}

// New loads both reference tables through repo, verifies the strength
// integrity invariant and resolves every strength row.
func New(ctx context.Context, repo Repository, opts Options, logger zerolog.Logger) (*Service, error) {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	concepts, err := repo.Concepts(ctx)
	if err != nil {
		return nil, fmt.Errorf("load concepts: %w", err)
	}
	strengths, err := repo.DrugStrengths(ctx)
	if err != nil {
		return nil, fmt.Errorf("load drug strengths: %w", err)
	}

	s := &Service{
		concepts: make(map[int64]*Concept, len(concepts)),
		units:    make(map[int64]*Concept),
		byDrug:   make(map[int64]*ResolvedStrength, len(strengths)),
		rawCount: len(concepts),
	}

	loadTime := now()
	for i := range concepts {
		c := &concepts[i]
		if _, dup := s.concepts[c.ConceptID]; dup {
			// Duplicate keys would fan out the left joins downstream.
			logger.Warn().Int64("concept_id", c.ConceptID).Msg("duplicate concept_id, keeping first occurrence")
			continue
		}
		s.concepts[c.ConceptID] = c
		if c.DomainID == "Unit" {
			if opts.KeepOnlyValidUnits && !c.ValidAt(loadTime) {
				continue
			}
			s.units[c.ConceptID] = c
		}
	}

	if err := checkStrengthIntegrity(strengths, loadTime); err != nil {
		return nil, err
	}

	s.resolved = make([]ResolvedStrength, len(strengths))
	for i, st := range strengths {
		rs := ResolvedStrength{DrugStrength: st}
		if st.AmountUnitConceptID != nil {
			rs.AmountUnit = s.units[*st.AmountUnitConceptID]
		}
		if st.NumeratorUnitConceptID != nil {
			rs.NumeratorUnit = s.units[*st.NumeratorUnitConceptID]
		}
		if st.DenominatorUnitConceptID != nil {
			rs.DenominatorUnit = s.units[*st.DenominatorUnitConceptID]
		}
		rs.Ingredient = s.concepts[st.IngredientConceptID]
		s.resolved[i] = rs
		// First strength row wins for a drug listed with several
		// ingredients; the dose rules send those to the compounded
		// fallback anyway.
		if _, ok := s.byDrug[st.DrugConceptID]; !ok {
			s.byDrug[st.DrugConceptID] = &s.resolved[i]
		}
	}

	logger.Info().
		Int("concepts", len(s.concepts)).
		Int("units", len(s.units)).
		Int("strengths", len(s.resolved)).
		Bool("keep_only_valid_units", opts.KeepOnlyValidUnits).
		Msg("vocabulary loaded")

	return s, nil
}

// checkStrengthIntegrity enforces the invalid-record invariant.
func checkStrengthIntegrity(strengths []DrugStrength, now time.Time) error {
	expired, flagged := 0, 0
	for _, st := range strengths {
		if st.ValidEnd.Before(now) {
			expired++
		}
		if st.InvalidReason != nil {
			flagged++
		}
	}
	if expired != flagged {
		return &IntegrityError{Expired: expired, Flagged: flagged}
	}
	return nil
}

// Concept returns the concept with the given id, or nil when unknown.
func (s *Service) Concept(id int64) *Concept {
	return s.concepts[id]
}

// StrengthFor returns the resolved strength for a drug concept, or nil
// when the vocabulary has no strength row for it.
func (s *Service) StrengthFor(drugConceptID int64) *ResolvedStrength {
	return s.byDrug[drugConceptID]
}

// ResolvedStrengths returns every resolved strength row, one per input
// DRUG_STRENGTH row.
func (s *Service) ResolvedStrengths() []ResolvedStrength {
	return s.resolved
}

// ConceptCount returns the number of loaded concept rows.
func (s *Service) ConceptCount() int { return s.rawCount }

// StrengthCount returns the number of resolved strength rows.
func (s *Service) StrengthCount() int { return len(s.resolved) }
