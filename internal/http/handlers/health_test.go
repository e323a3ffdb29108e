package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/geocoder89/accounthub/internal/http/handlers"
	"github.com/gin-gonic/gin"
)

func TestReadyz(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]handlers.Pinger
		status int
	}{
		{"no checks", nil, http.StatusOK},
		{"all up", map[string]handlers.Pinger{"db": func(context.Context) error { return nil }}, http.StatusOK},
		{
			"db down",
			map[string]handlers.Pinger{
				"db":    func(context.Context) error { return errors.New("refused") },
				"redis": func(context.Context) error { return nil },
			},
			http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := handlers.NewHealthHandler(tt.checks)
			r := gin.New()
			r.GET("/readyz", h.Readyz)

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if w.Code != tt.status {
				t.Fatalf("got %d want %d body=%s", w.Code, tt.status, w.Body.String())
			}
		})
	}
}
