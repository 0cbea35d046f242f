package timeline

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/rxlens/rxlens/internal/exposure"
	"github.com/rxlens/rxlens/pkg/tabular"
)

// Handler serves the aggregated time series consumed by the dashboard
// charts.
type Handler struct {
	svc    *exposure.Service
	logger zerolog.Logger
}

// NewHandler creates a new timeline handler.
func NewHandler(svc *exposure.Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// RegisterRoutes registers the series routes on the API group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/uploads/:id/patients/:patientID/daily", h.Daily)
	api.GET("/uploads/:id/patients/:patientID/timeline", h.Timeline)
}

// Daily handles GET /api/v1/uploads/:id/patients/:patientID/daily and
// returns the per-day distinct drug/visit counts across every visit,
// the source of the scatter chart.
func (h *Handler) Daily(c echo.Context) error {
	batchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid batch id")
	}
	rows, err := h.svc.PatientRows(batchID, c.Param("patientID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}

	t := tabular.New("date", "unique_drugs", "nb_drugs", "visit_id", "nb_visits")
	for _, agg := range DailyAllVisits(rows) {
		t.MustAppend(
			agg.Date.Format("2006-01-02"),
			agg.DrugConceptIDs,
			agg.DrugCount,
			agg.VisitID,
			agg.VisitCount,
		)
	}
	return c.JSON(http.StatusOK, t)
}

// Timeline handles GET /api/v1/uploads/:id/patients/:patientID/timeline.
// The slice is selected either by ?visit_id=... or by a ?start=/?end=
// date range (start inclusive, end exclusive), matching the dashboard's
// two selection modes.
func (h *Handler) Timeline(c echo.Context) error {
	batchID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid batch id")
	}
	rows, err := h.svc.PatientExposures(batchID, c.Param("patientID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}

	if visitID := c.QueryParam("visit_id"); visitID != "" {
		rows = FilterByVisit(rows, visitID)
	} else {
		start, err := parseDateParam(c.QueryParam("start"))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid 'start' date, expected YYYY-MM-DD")
		}
		end, err := parseDateParam(c.QueryParam("end"))
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid 'end' date, expected YYYY-MM-DD")
		}
		rows = FilterByDateRange(rows, start, end)
	}

	t := tabular.New(
		"drug_concept_id", "drug_label", "visit_occurrence_id",
		"drug_exposure_start_datetime", "drug_exposure_end_datetime",
		"quantity", "quantity_diff", "quantity_diff_percentage", "quantity_diff_trend",
	)
	for _, e := range Build(rows) {
		t.MustAppend(
			e.DrugConceptID,
			e.DrugLabel,
			e.VisitOccurrenceID,
			e.Start.Format(time.RFC3339),
			e.End.Format(time.RFC3339),
			floatOrNil(e.Quantity),
			floatOrNil(e.QuantityDiff),
			floatOrNil(e.QuantityDiffPct),
			e.Trend,
		)
	}
	return c.JSON(http.StatusOK, t)
}

func parseDateParam(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func floatOrNil(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
