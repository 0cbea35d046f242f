package exposure

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/rxlens/rxlens/internal/vocab"
	"github.com/rxlens/rxlens/pkg/pagination"
	"github.com/rxlens/rxlens/pkg/tabular"
)

// previewRows caps the number of rows echoed back after an upload.
const previewRows = 10

// Handler provides the upload and per-patient dose endpoints.
type Handler struct {
	svc    *Service
	logger zerolog.Logger
}

// NewHandler creates a new exposure handler.
func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RegisterRoutes registers the upload routes on the API group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	uploads := api.Group("/uploads")
	uploads.POST("", h.Upload)
	uploads.GET("/:id", h.GetBatch)
	uploads.DELETE("/:id", h.DeleteBatch)
	uploads.GET("/:id/patients", h.ListPatients)
	uploads.GET("/:id/patients/:patientID/visits", h.ListVisits)
	uploads.GET("/:id/patients/:patientID/doses", h.PatientDoses)
}

// Upload handles POST /api/v1/uploads with a multipart "file" field.
func (h *Handler) Upload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart field 'file' is required")
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read uploaded file")
	}
	defer f.Close()

	batch, err := h.svc.Ingest(fh.Filename, f)
	if err != nil {
		var malformed *MalformedInputError
		if errors.As(err, &malformed) {
			h.logger.Warn().Err(err).Str("filename", fh.Filename).Msg("upload rejected")
			return echo.NewHTTPError(http.StatusBadRequest, malformed.Error())
		}
		h.logger.Warn().Err(err).Str("filename", fh.Filename).Msg("upload failed to decode")
		return echo.NewHTTPError(http.StatusBadRequest, "there was an error processing this file: "+err.Error())
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"batch":   batch,
		"preview": previewTable(batch.Rows),
	})
}

// GetBatch handles GET /api/v1/uploads/:id
func (h *Handler) GetBatch(c echo.Context) error {
	batch, err := h.batchFromPath(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, batch)
}

// DeleteBatch handles DELETE /api/v1/uploads/:id
func (h *Handler) DeleteBatch(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid batch id")
	}
	h.svc.Discard(id)
	return c.NoContent(http.StatusNoContent)
}

// ListPatients handles GET /api/v1/uploads/:id/patients. Large batches
// can carry thousands of patients, so the list pages with limit/offset.
func (h *Handler) ListPatients(c echo.Context) error {
	batch, err := h.batchFromPath(c)
	if err != nil {
		return err
	}
	patients, err := h.svc.Patients(batch.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if patients == nil {
		patients = []string{}
	}
	p := pagination.FromContext(c)
	start, end := p.Window(len(patients))
	return c.JSON(http.StatusOK, pagination.NewResponse(patients[start:end], len(patients), p))
}

// ListVisits handles GET /api/v1/uploads/:id/patients/:patientID/visits
func (h *Handler) ListVisits(c echo.Context) error {
	batch, err := h.batchFromPath(c)
	if err != nil {
		return err
	}
	visits, err := h.svc.Visits(batch.ID, c.Param("patientID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if visits == nil {
		visits = []string{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"visits": visits})
}

// PatientDoses handles GET /api/v1/uploads/:id/patients/:patientID/doses
func (h *Handler) PatientDoses(c echo.Context) error {
	batch, err := h.batchFromPath(c)
	if err != nil {
		return err
	}
	records, err := h.svc.PatientDoses(batch.ID, c.Param("patientID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, doseTable(records))
}

func (h *Handler) batchFromPath(c echo.Context) (*Batch, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid batch id")
	}
	batch, err := h.svc.Batch(id)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return batch, nil
}

func previewTable(rows []DrugExposure) *tabular.Table {
	t := tabular.New(
		"drug_exposure_id", "person_id", "visit_occurrence_id",
		"drug_concept_id", "quantity",
		"drug_exposure_start_date", "drug_exposure_end_date",
	)
	for i, row := range rows {
		if i >= previewRows {
			break
		}
		t.MustAppend(
			row.DrugExposureID, row.PersonID, row.VisitOccurrenceID,
			row.DrugConceptID, floatOrNil(row.Quantity),
			dateString(row.StartDate), dateString(row.EndDate),
		)
	}
	return t
}

func doseTable(records []DoseRecord) *tabular.Table {
	t := tabular.New(
		"drug_exposure_id", "person_id", "visit_occurrence_id",
		"drug_concept_id", "drug_concept_name", "drug_type_concept_name", "route_concept_name",
		"quantity", "dose", "dose_display",
		"drug_exposure_start_datetime", "drug_exposure_end_datetime",
	)
	for _, r := range records {
		t.MustAppend(
			r.DrugExposureID, r.PersonID, r.VisitOccurrenceID,
			r.DrugConceptID, conceptName(r.Drug), conceptName(r.DrugType), conceptName(r.Route),
			floatOrNil(r.Quantity), floatOrNil(r.Dose), strOrNil(r.DoseDisplay),
			timeString(r.StartDatetime), timeString(r.EndDatetime),
		)
	}
	return t
}

func conceptName(c *vocab.Concept) interface{} {
	if c == nil {
		return nil
	}
	return c.ConceptName
}

func floatOrNil(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func strOrNil(v *string) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func dateString(t time.Time) string {
	return t.Format("2006-01-02")
}

func timeString(t time.Time) string {
	return t.Format(time.RFC3339)
}
