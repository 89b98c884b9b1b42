package errors

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhichaoleo/roboptim-core/internal/logging"
)

func TestRecoveryMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(logging.ErrorLevel, &buf)

	h := RecoveryMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/panic" {
			panic("solver exploded")
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/ok", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Zero(t, buf.Len())

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest("GET", "/panic?x=1", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "Internal Server Error", resp.Error)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "recovered from panic", entry["message"])
	assert.Equal(t, "solver exploded", entry["error"])
	assert.Equal(t, "/panic", entry["path"])
	assert.Equal(t, "x=1", entry["query"])
	assert.NotEmpty(t, entry["stack"])
}

func TestRecoveryMiddlewareAbortHandler(t *testing.T) {
	h := RecoveryMiddleware(logging.New(logging.ErrorLevel, &bytes.Buffer{}))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	})
}
