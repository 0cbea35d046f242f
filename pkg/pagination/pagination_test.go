package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(t *testing.T, query string) Params {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?"+query, nil)
	return FromContext(e.NewContext(req, httptest.NewRecorder()))
}

func TestFromContext_Defaults(t *testing.T) {
	p := paramsFor(t, "")
	if p.Limit != DefaultLimit || p.Offset != 0 {
		t.Errorf("params = %+v", p)
	}
}

func TestFromContext_Clamps(t *testing.T) {
	p := paramsFor(t, "limit=9999&offset=-5")
	if p.Limit != MaxLimit {
		t.Errorf("limit = %d, want %d", p.Limit, MaxLimit)
	}
	if p.Offset != 0 {
		t.Errorf("offset = %d, want 0", p.Offset)
	}
}

func TestFromContext_Explicit(t *testing.T) {
	p := paramsFor(t, "limit=10&offset=30")
	if p.Limit != 10 || p.Offset != 30 {
		t.Errorf("params = %+v", p)
	}
}

func TestWindow(t *testing.T) {
	cases := []struct {
		p          Params
		total      int
		start, end int
	}{
		{Params{Limit: 10, Offset: 0}, 25, 0, 10},
		{Params{Limit: 10, Offset: 20}, 25, 20, 25},
		{Params{Limit: 10, Offset: 40}, 25, 25, 25},
	}
	for _, tc := range cases {
		start, end := tc.p.Window(tc.total)
		if start != tc.start || end != tc.end {
			t.Errorf("Window(%+v, %d) = %d,%d want %d,%d", tc.p, tc.total, start, end, tc.start, tc.end)
		}
	}
}

func TestNewResponse(t *testing.T) {
	r := NewResponse([]string{"a"}, 100, Params{Limit: 10, Offset: 0})
	if !r.HasMore || r.Total != 100 {
		t.Errorf("response = %+v", r)
	}
	r = NewResponse([]string{"a"}, 5, Params{Limit: 10, Offset: 0})
	if r.HasMore {
		t.Errorf("last page must not report more: %+v", r)
	}
}
