package exposure

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rxlens/rxlens/internal/vocab"
)

// Vocabulary is the slice of the loaded reference data the pipeline
// needs. *vocab.Service satisfies it.
type Vocabulary interface {
	Concept(id int64) *vocab.Concept
	StrengthFor(drugConceptID int64) *vocab.ResolvedStrength
}

// Batch is one normalized upload held in memory. Batches are immutable
// once ingested and vanish with the process; nothing is persisted.
type Batch struct {
	ID         uuid.UUID      `json:"id"`
	Filename   string         `json:"filename"`
	UploadedAt time.Time      `json:"uploaded_at"`
	Rows       []DrugExposure `json:"-"`
	RowCount   int            `json:"row_count"`

	ids *IdentityMap
}

// ErrBatchNotFound is returned for unknown or already-discarded batches.
var ErrBatchNotFound = fmt.Errorf("upload batch not found")

// Service runs the exposure pipeline: decode, normalize, enrich, dose.
// The vocabulary is read-only shared state; the batch registry is the
// only mutable state and is guarded by the mutex.
type Service struct {
	vocab  Vocabulary
	logger zerolog.Logger

	mu      sync.RWMutex
	batches map[uuid.UUID]*Batch
}

// NewService creates a pipeline service over the loaded vocabulary.
func NewService(v Vocabulary, logger zerolog.Logger) *Service {
	return &Service{
		vocab:   v,
		logger:  logger,
		batches: make(map[uuid.UUID]*Batch),
	}
}

// Ingest decodes and normalizes one uploaded file and registers the
// resulting batch. Malformed files reject with MalformedInputError and
// leave no trace.
func (s *Service) Ingest(filename string, r io.Reader) (*Batch, error) {
	raw, err := DecodeTable(filename, r)
	if err != nil {
		return nil, err
	}
	rows, ids, err := Normalize(raw)
	if err != nil {
		return nil, err
	}

	batch := &Batch{
		ID:         uuid.New(),
		Filename:   filename,
		UploadedAt: time.Now().UTC(),
		Rows:       rows,
		RowCount:   len(rows),
		ids:        ids,
	}

	s.mu.Lock()
	s.batches[batch.ID] = batch
	s.mu.Unlock()

	s.logger.Info().
		Str("batch_id", batch.ID.String()).
		Str("filename", filename).
		Int("rows", len(rows)).
		Int("columns", len(raw.Columns)).
		Int("patients", ids.Size("person_id")).
		Msg("upload ingested")

	return batch, nil
}

// Batch returns a registered batch.
func (s *Service) Batch(id uuid.UUID) (*Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[id]
	if !ok {
		return nil, ErrBatchNotFound
	}
	return b, nil
}

// Discard drops a batch from the registry. Discarding is the only
// cancellation a pipeline run needs; there is no in-flight state.
func (s *Service) Discard(id uuid.UUID) {
	s.mu.Lock()
	delete(s.batches, id)
	s.mu.Unlock()
}

// Patients returns the distinct pseudonymized patient ids of a batch in
// first-seen order.
func (s *Service) Patients(batchID uuid.UUID) ([]string, error) {
	b, err := s.Batch(batchID)
	if err != nil {
		return nil, err
	}
	return distinct(b.Rows, func(e *DrugExposure) string { return e.PersonID }), nil
}

// Visits returns the distinct visit ids of one patient in first-seen
// order.
func (s *Service) Visits(batchID uuid.UUID, patientID string) ([]string, error) {
	rows, err := s.PatientRows(batchID, patientID)
	if err != nil {
		return nil, err
	}
	return distinct(rows, func(e *DrugExposure) string { return e.VisitOccurrenceID }), nil
}

// PatientExposures returns one patient's rows enriched with concept
// metadata, preserving upload order.
func (s *Service) PatientExposures(batchID uuid.UUID, patientID string) ([]EnrichedExposure, error) {
	rows, err := s.PatientRows(batchID, patientID)
	if err != nil {
		return nil, err
	}
	return Enrich(rows, s.vocab), nil
}

// PatientDoses runs the full pipeline for one patient: enrich, join the
// resolved strengths and derive a dose per row.
func (s *Service) PatientDoses(batchID uuid.UUID, patientID string) ([]DoseRecord, error) {
	enriched, err := s.PatientExposures(batchID, patientID)
	if err != nil {
		return nil, err
	}

	records := make([]DoseRecord, len(enriched))
	for i, e := range enriched {
		st := s.vocab.StrengthFor(e.DrugConceptID)
		records[i] = DoseRecord{
			EnrichedExposure: e,
			Strength:         st,
			DoseResult:       ComputeDose(e.Quantity, st),
		}
	}
	return records, nil
}

// PatientRows returns one patient's normalized rows in upload order.
func (s *Service) PatientRows(batchID uuid.UUID, patientID string) ([]DrugExposure, error) {
	b, err := s.Batch(batchID)
	if err != nil {
		return nil, err
	}
	var rows []DrugExposure
	for _, e := range b.Rows {
		if e.PersonID == patientID {
			rows = append(rows, e)
		}
	}
	return rows, nil
}

func distinct(rows []DrugExposure, key func(*DrugExposure) string) []string {
	seen := make(map[string]bool)
	var out []string
	for i := range rows {
		k := key(&rows[i])
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
