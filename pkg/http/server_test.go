package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

type pingHandler struct{}

func (pingHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ping", func(c echo.Context) error {
		return DataResponse(c, http.StatusOK, "pong")
	})
}

func serve(s *Server, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestServerRoutes(t *testing.T) {
	var hits int
	count := func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			hits++
			return next(c)
		}
	}
	s := NewServer(pingHandler{}, WithMetricsPath(""), WithMiddleware(count))

	if rec := serve(s, http.MethodGet, "/healthz"); rec.Code != http.StatusOK {
		t.Fatalf("healthz %d", rec.Code)
	}
	if rec := serve(s, http.MethodGet, "/ping"); rec.Code != http.StatusOK {
		t.Fatalf("ping %d: %s", rec.Code, rec.Body.String())
	}
	if rec := serve(s, http.MethodGet, "/metrics"); rec.Code != http.StatusNotFound {
		t.Fatalf("metrics disabled but got %d", rec.Code)
	}
	// middleware added with e.Use also wraps the 404 for unmatched routes
	if hits != 3 {
		t.Fatalf("extra middleware ran %d times", hits)
	}
}

func TestServerRecoversPanics(t *testing.T) {
	s := NewServer(nil, WithMetricsPath(""))
	s.Echo().GET("/boom", func(echo.Context) error { panic("boom") })

	if rec := serve(s, http.MethodGet, "/boom"); rec.Code != http.StatusInternalServerError {
		t.Fatalf("panic answered %d", rec.Code)
	}
}
