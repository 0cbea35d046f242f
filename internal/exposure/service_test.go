package exposure

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rxlens/rxlens/internal/vocab"
)

type stubVocab struct {
	concepts  map[int64]*vocab.Concept
	strengths map[int64]*vocab.ResolvedStrength
}

func (s stubVocab) Concept(id int64) *vocab.Concept              { return s.concepts[id] }
func (s stubVocab) StrengthFor(id int64) *vocab.ResolvedStrength { return s.strengths[id] }

func newTestService() *Service {
	v := stubVocab{
		concepts: map[int64]*vocab.Concept{
			40231925: {ConceptID: 40231925, ConceptName: "acetaminophen 500 MG Oral Tablet"},
			1127078:  {ConceptID: 1127078, ConceptName: "acetaminophen"},
			38000177: {ConceptID: 38000177, ConceptName: "Prescription written"},
			4132161:  {ConceptID: 4132161, ConceptName: "Oral"},
		},
		strengths: map[int64]*vocab.ResolvedStrength{
			40231925: strength(func(st *vocab.ResolvedStrength) {
				st.DrugConceptID = 40231925
				st.AmountValue = f64(500)
				st.AmountUnit = unit(vocab.UnitMilligram, "mg")
			}),
		},
	}
	return NewService(v, zerolog.Nop())
}

func ingestTestBatch(t *testing.T, svc *Service) *Batch {
	t.Helper()
	batch, err := svc.Ingest("upload.csv", strings.NewReader(uploadCSV))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	return batch
}

func TestService_IngestRegistersBatch(t *testing.T) {
	svc := newTestService()
	batch := ingestTestBatch(t, svc)

	if batch.RowCount != 4 {
		t.Errorf("row count = %d, want 4", batch.RowCount)
	}
	got, err := svc.Batch(batch.ID)
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if got.Filename != "upload.csv" {
		t.Errorf("filename = %q", got.Filename)
	}
}

func TestService_IngestRejectsMalformed(t *testing.T) {
	svc := newTestService()
	_, err := svc.Ingest("upload.csv", strings.NewReader("person_id\n1\n"))
	var malformed *MalformedInputError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedInputError, got %v", err)
	}
}

func TestService_Patients(t *testing.T) {
	svc := newTestService()
	batch := ingestTestBatch(t, svc)

	patients, err := svc.Patients(batch.ID)
	if err != nil {
		t.Fatalf("Patients: %v", err)
	}
	// First-seen order over the pseudonymized codes.
	want := []string{"P000001", "P000002"}
	if len(patients) != len(want) || patients[0] != want[0] || patients[1] != want[1] {
		t.Errorf("patients = %v, want %v", patients, want)
	}
}

func TestService_Visits(t *testing.T) {
	svc := newTestService()
	batch := ingestTestBatch(t, svc)

	visits, err := svc.Visits(batch.ID, "P000001")
	if err != nil {
		t.Fatalf("Visits: %v", err)
	}
	if len(visits) != 1 || visits[0] != "V000001" {
		t.Errorf("visits = %v", visits)
	}
}

func TestService_PatientDoses(t *testing.T) {
	svc := newTestService()
	batch := ingestTestBatch(t, svc)

	records, err := svc.PatientDoses(batch.ID, "P000001")
	if err != nil {
		t.Fatalf("PatientDoses: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 rows for patient, got %d", len(records))
	}

	// Row 0: quantity 2 of a 500 mg tablet.
	r := records[0]
	if r.Drug == nil || r.Drug.ConceptName != "acetaminophen 500 MG Oral Tablet" {
		t.Errorf("drug join: %+v", r.Drug)
	}
	if r.Dose == nil || *r.Dose != 1000 {
		t.Errorf("dose = %v, want 1000", r.Dose)
	}

	// Row 1: ingredient-level concept has no strength row; dose stays
	// null and the row survives.
	if records[1].Strength != nil || records[1].Dose != nil {
		t.Errorf("unresolved strength must yield null dose, got %+v", records[1].DoseResult)
	}
}

func TestService_UnknownBatch(t *testing.T) {
	svc := newTestService()
	if _, err := svc.Patients(uuid.New()); !errors.Is(err, ErrBatchNotFound) {
		t.Errorf("err = %v, want ErrBatchNotFound", err)
	}
}

func TestService_Discard(t *testing.T) {
	svc := newTestService()
	batch := ingestTestBatch(t, svc)

	svc.Discard(batch.ID)
	if _, err := svc.Batch(batch.ID); !errors.Is(err, ErrBatchNotFound) {
		t.Errorf("discarded batch still resolves: %v", err)
	}
}
