package timeline

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/rxlens/rxlens/internal/exposure"
	"github.com/rxlens/rxlens/internal/vocab"
)

type stubVocab map[int64]*vocab.Concept

func (s stubVocab) Concept(id int64) *vocab.Concept           { return s[id] }
func (s stubVocab) StrengthFor(int64) *vocab.ResolvedStrength { return nil }

const timelineCSV = `person_id,visit_occurrence_id,drug_concept_id,quantity,drug_exposure_start_date,drug_exposure_end_date,drug_exposure_start_datetime,drug_exposure_end_datetime
123,555,40231925,10,2020-01-01,2020-01-03,2020-01-01T08:00:00,2020-01-03T08:00:00
123,555,40231925,7,2020-01-04,2020-01-04,2020-01-04T08:00:00,2020-01-04T09:00:00
123,777,1127078,1,2020-02-01,2020-02-01,2020-02-01T08:00:00,2020-02-01T09:00:00
`

func newTestRouter(t *testing.T) (*echo.Echo, uuid.UUID) {
	t.Helper()
	svc := exposure.NewService(stubVocab{
		40231925: {ConceptID: 40231925, ConceptName: "acetaminophen 500 MG Oral Tablet"},
	}, zerolog.Nop())
	batch, err := svc.Ingest("upload.csv", strings.NewReader(timelineCSV))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	e := echo.New()
	NewHandler(svc, zerolog.Nop()).RegisterRoutes(e.Group("/api/v1"))
	return e, batch.ID
}

type tableResponse struct {
	Columns []string        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
}

func getTable(t *testing.T, e *echo.Echo, url string) tableResponse {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET %s: status %d, body %s", url, rec.Code, rec.Body.String())
	}
	var table tableResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &table); err != nil {
		t.Fatalf("decode table: %v", err)
	}
	return table
}

func TestHandler_Daily(t *testing.T) {
	e, batchID := newTestRouter(t)
	table := getTable(t, e, "/api/v1/uploads/"+batchID.String()+"/patients/P000001/daily")

	// Days 1-3 from the first span, day 4, and one February day.
	if len(table.Rows) != 5 {
		t.Fatalf("expected 5 daily rows, got %d", len(table.Rows))
	}
	if table.Columns[0] != "date" || table.Columns[2] != "nb_drugs" {
		t.Errorf("columns = %v", table.Columns)
	}
	if table.Rows[0][0] != "2020-01-01" {
		t.Errorf("first date = %v", table.Rows[0][0])
	}
	if table.Rows[4][3] != "V000002" {
		t.Errorf("february visit = %v", table.Rows[4][3])
	}
}

func TestHandler_TimelineByVisit(t *testing.T) {
	e, batchID := newTestRouter(t)
	table := getTable(t, e, "/api/v1/uploads/"+batchID.String()+"/patients/P000001/timeline?visit_id=V000001")

	if len(table.Rows) != 2 {
		t.Fatalf("expected 2 rows for visit, got %d", len(table.Rows))
	}
	// Columns: ..., quantity(5), quantity_diff(6), pct(7), trend(8).
	if table.Rows[0][6] != nil {
		t.Errorf("first row diff = %v, want null", table.Rows[0][6])
	}
	if table.Rows[1][6] != float64(-3) {
		t.Errorf("diff = %v, want -3", table.Rows[1][6])
	}
	if table.Rows[1][7] != float64(-42.86) {
		t.Errorf("pct = %v, want -42.86", table.Rows[1][7])
	}
	if table.Rows[1][8] != float64(-1) {
		t.Errorf("trend = %v, want -1", table.Rows[1][8])
	}
	if table.Rows[0][1] != "acetaminophen 500 MG Oral Tablet" {
		t.Errorf("label = %v", table.Rows[0][1])
	}
}

func TestHandler_TimelineByDateRange(t *testing.T) {
	e, batchID := newTestRouter(t)
	table := getTable(t, e, "/api/v1/uploads/"+batchID.String()+"/patients/P000001/timeline?start=2020-02-01&end=2020-03-01")

	if len(table.Rows) != 1 {
		t.Fatalf("expected 1 row in range, got %d", len(table.Rows))
	}
	// Unresolved concept falls back to the numeric id as label.
	if table.Rows[0][1] != "1127078" {
		t.Errorf("label = %v", table.Rows[0][1])
	}
}

func TestHandler_TimelineBadDate(t *testing.T) {
	e, batchID := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/uploads/"+batchID.String()+"/patients/P000001/timeline?start=01-02-2020", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandler_UnknownBatch(t *testing.T) {
	e, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/uploads/"+uuid.NewString()+"/patients/P000001/daily", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}
