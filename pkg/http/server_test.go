package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type routes func(e *echo.Echo)

func (r routes) RegisterRoutes(e *echo.Echo) { r(e) }

func newTestServer(t *testing.T) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	srv := NewServer(routes(func(e *echo.Echo) {
		e.GET("/ok", func(c echo.Context) error { return SuccessResponse(c, "fine") })
		e.GET("/boom", func(c echo.Context) error { panic("boom") })
		e.GET("/missing", func(c echo.Context) error { return AppErrorResponse(c, NotFoundErrorf("no %s", "rule")) })
		e.GET("/broken", func(c echo.Context) error { return AppErrorResponse(c, errors.New("db down")) })
	}), WithMetrics("/metrics", reg, reg))
	return srv, reg
}

func serve(s *Server, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestServer_StatusCodesMatchEnvelope(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := serve(srv, http.MethodGet, "/ok")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":200,"message":"OK","data":"fine"}`, rec.Body.String())

	rec = serve(srv, http.MethodGet, "/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"status":404,"message":"Not Found","data":[{"code":"ERR_NOT_FOUND","message":"no rule"}]}`, rec.Body.String())

	rec = serve(srv, http.MethodGet, "/broken")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_RecoversFromPanics(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := serve(srv, http.MethodGet, "/boom")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = serve(srv, http.MethodGet, "/ok")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_ExposesRequestMetrics(t *testing.T) {
	srv, reg := newTestServer(t)

	serve(srv, http.MethodGet, "/ok")
	serve(srv, http.MethodGet, "/missing")

	families, err := reg.Gather()
	require.NoError(t, err)
	var requests float64
	for _, mf := range families {
		if mf.GetName() != "climapulse_http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			requests += m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, 2.0, requests)

	rec := serve(srv, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `climapulse_http_requests_total{method="GET",route="/ok",status="200"} 1`)
}

func TestServer_CORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/ok", nil)
	req.Header.Set(echo.HeaderOrigin, "http://dashboard.local")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodGet)
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}
