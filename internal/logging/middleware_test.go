package logging

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := New(DebugLevel, &buf)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(Middleware(logger))
	r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).Info("handling")
		switch chi.URLParam(r, "id") {
		case "missing":
			w.WriteHeader(http.StatusNotFound)
		case "broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			_, _ = w.Write([]byte("ok"))
		}
	})

	tests := []struct {
		path   string
		status int
		level  string
	}{
		{"/items/1", http.StatusOK, "INFO"},
		{"/items/missing", http.StatusNotFound, "WARN"},
		{"/items/broken", http.StatusInternalServerError, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			buf.Reset()
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest("GET", tt.path, nil))
			require.Equal(t, tt.status, rr.Code)

			got := entries(t, &buf)
			require.Len(t, got, 3)
			assert.Equal(t, "request started", got[0]["message"])
			assert.Equal(t, "DEBUG", got[0]["level"])

			assert.Equal(t, "handling", got[1]["message"])
			assert.NotEmpty(t, got[1]["request_id"])
			assert.Equal(t, got[0]["request_id"], got[1]["request_id"])

			done := got[2]
			assert.Equal(t, "request completed", done["message"])
			assert.Equal(t, tt.level, done["level"])
			assert.Equal(t, float64(tt.status), done["status"])
			assert.Equal(t, "/items/{id}", done["route"])
			assert.Equal(t, tt.path, done["path"])
			if tt.status >= 400 {
				assert.Equal(t, http.StatusText(tt.status), done["error"])
			}
		})
	}
}
