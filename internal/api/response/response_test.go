package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestSuccessEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	Success(rec, map[string]int{"clients": 3})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decode(t, rec)
	assert.Equal(t, map[string]interface{}{"clients": 3.0}, body["data"])
	assert.NotContains(t, body, "next_cursor")
}

func TestCursorAlwaysCarriesNextCursor(t *testing.T) {
	rec := httptest.NewRecorder()
	Cursor(rec, []string{}, "")

	body := decode(t, rec)
	require.Contains(t, body, "next_cursor")
	assert.Equal(t, "", body["next_cursor"])
	assert.Equal(t, []interface{}{}, body["data"])
}

func TestProblemBodies(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter, error)
		status int
	}{
		{"bad request", BadRequest, http.StatusBadRequest},
		{"not found", NotFound, http.StatusNotFound},
		{"conflict", Conflict, http.StatusConflict},
		{"internal", InternalError, http.StatusInternalServerError},
		{"unavailable", ServiceUnavailable, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec, errors.New("stored version 4, got 2"))

			assert.Equal(t, tt.status, rec.Code)
			var p Problem
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
			assert.Equal(t, tt.status, p.Code)
			assert.Equal(t, http.StatusText(tt.status), p.Error)
			assert.Equal(t, "stored version 4, got 2", p.Message)
		})
	}
}
