package exposure

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const uploadCSV = `drug_exposure_id,person_id,visit_occurrence_id,drug_concept_id,drug_type_concept_id,route_concept_id,quantity,drug_exposure_start_date,drug_exposure_end_date,drug_exposure_start_datetime,drug_exposure_end_datetime
9001,123,555,40231925,38000177,4132161,2,2020-01-01,2020-01-03,2020-01-01T08:00:00,2020-01-03T08:00:00
9002,123,555,1127078,38000177,4132161,1,2020-01-02,2020-01-02,2020-01-02T09:30:00,2020-01-02T10:00:00
9003,456,777,40231925,38000177,4132161,3,2020-02-01,2020-02-01,2020-02-01T12:00:00,2020-02-01T12:30:00
9004,123,555,40231925,38000177,4132161,1,2020-01-04,2020-01-04,2020-01-04T08:00:00,2020-01-04T08:30:00
`

func decodeUpload(t *testing.T, csv string) *RawTable {
	t.Helper()
	raw, err := DecodeTable("upload.csv", strings.NewReader(csv))
	if err != nil {
		t.Fatalf("DecodeTable: %v", err)
	}
	return raw
}

func TestNormalize_Pseudonymization(t *testing.T) {
	rows, ids, err := Normalize(decodeUpload(t, uploadCSV))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(rows))
	}

	// First-seen order, 6-digit 1-based sequence, column-initial prefix.
	if rows[0].DrugExposureID != "D000001" || rows[0].PersonID != "P000001" || rows[0].VisitOccurrenceID != "V000001" {
		t.Errorf("row 0 ids = %s/%s/%s", rows[0].DrugExposureID, rows[0].PersonID, rows[0].VisitOccurrenceID)
	}
	if rows[2].PersonID != "P000002" || rows[2].VisitOccurrenceID != "V000002" {
		t.Errorf("row 2 ids = %s/%s", rows[2].PersonID, rows[2].VisitOccurrenceID)
	}
	// Repeated raw values map to the same code within the batch.
	if rows[3].PersonID != "P000001" || rows[3].VisitOccurrenceID != "V000001" {
		t.Errorf("row 3 ids = %s/%s", rows[3].PersonID, rows[3].VisitOccurrenceID)
	}

	if ids.Size("person_id") != 2 || ids.Size("drug_exposure_id") != 4 {
		t.Errorf("mapping sizes: persons=%d exposures=%d", ids.Size("person_id"), ids.Size("drug_exposure_id"))
	}
}

func TestNormalize_MappingIsBijection(t *testing.T) {
	rows, _, err := Normalize(decodeUpload(t, uploadCSV))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	codes := make(map[string]bool)
	for _, r := range rows {
		codes[r.DrugExposureID] = true
	}
	// 4 distinct raw exposure ids must give 4 distinct codes.
	if len(codes) != 4 {
		t.Errorf("expected 4 distinct exposure codes, got %d", len(codes))
	}
}

func TestNormalize_NumberingRestartsPerBatch(t *testing.T) {
	first, _, err := Normalize(decodeUpload(t, uploadCSV))
	if err != nil {
		t.Fatal(err)
	}
	second, _, err := Normalize(decodeUpload(t, uploadCSV))
	if err != nil {
		t.Fatal(err)
	}
	// Separate invocations restart at 1; stability holds only within
	// one batch.
	if first[0].PersonID != "P000001" || second[0].PersonID != "P000001" {
		t.Errorf("numbering did not restart: %s vs %s", first[0].PersonID, second[0].PersonID)
	}
}

func TestNormalize_DateCoercion(t *testing.T) {
	rows, _, err := Normalize(decodeUpload(t, uploadCSV))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	want := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if !rows[0].StartDate.Equal(want) {
		t.Errorf("start date = %v, want %v", rows[0].StartDate, want)
	}
	wantDT := time.Date(2020, 1, 1, 8, 0, 0, 0, time.UTC)
	if !rows[0].StartDatetime.Equal(wantDT) {
		t.Errorf("start datetime = %v, want %v", rows[0].StartDatetime, wantDT)
	}
}

func TestNormalize_MissingRequiredColumn(t *testing.T) {
	csv := "person_id,drug_concept_id\n1,2\n"
	_, _, err := Normalize(decodeUpload(t, csv))
	var malformed *MalformedInputError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedInputError, got %v", err)
	}
	if malformed.Column != "drug_exposure_start_date" {
		t.Errorf("unexpected column: %q", malformed.Column)
	}
}

func TestNormalize_UnparseableDate(t *testing.T) {
	csv := strings.Replace(uploadCSV, "2020-01-01,", "bogus,", 1)
	_, _, err := Normalize(decodeUpload(t, csv))
	var malformed *MalformedInputError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedInputError, got %v", err)
	}
}

func TestNormalize_OptionalIdentifierColumnAbsent(t *testing.T) {
	// visit_occurrence_id is not required; rows simply carry no visit.
	csv := `person_id,drug_concept_id,quantity,drug_exposure_start_date,drug_exposure_end_date,drug_exposure_start_datetime,drug_exposure_end_datetime
123,40231925,2,2020-01-01,2020-01-01,2020-01-01T08:00:00,2020-01-01T09:00:00
`
	rows, ids, err := Normalize(decodeUpload(t, csv))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if rows[0].VisitOccurrenceID != "" {
		t.Errorf("expected empty visit id, got %q", rows[0].VisitOccurrenceID)
	}
	if ids.Size("visit_occurrence_id") != 0 {
		t.Errorf("no visit codes should be assigned, got %d", ids.Size("visit_occurrence_id"))
	}
}

func TestIdentityMap_LookupWithoutAssigning(t *testing.T) {
	m := NewIdentityMap()
	if _, ok := m.Lookup("person_id", "42"); ok {
		t.Error("lookup before assignment should miss")
	}
	code := m.Code("person_id", "42")
	if code != "P000001" {
		t.Errorf("code = %q", code)
	}
	if got, ok := m.Lookup("person_id", "42"); !ok || got != code {
		t.Errorf("lookup = %q, %v", got, ok)
	}
}
