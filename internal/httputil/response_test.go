package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter)
		status int
		msg    string
	}{
		{"method", MethodNotAllowed, http.StatusMethodNotAllowed, "method not allowed"},
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "nope") }, http.StatusBadRequest, "nope"},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "gone") }, http.StatusNotFound, "gone"},
		{"unavailable", func(w http.ResponseWriter) { ServiceUnavailable(w, "no db") }, http.StatusServiceUnavailable, "no db"},
		{"internal", func(w http.ResponseWriter) { InternalServerError(w, "boom") }, http.StatusInternalServerError, "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.msg, decodeError(t, rec))
		})
	}
}

func TestWriteJSONOK(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSONOK(rec, map[string]int{"tracks": 3})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"tracks":3}`, rec.Body.String())
}

func TestDecodeJSON(t *testing.T) {
	type params struct {
		Threshold float64 `json:"threshold"`
	}
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"ok", `{"threshold":0.4}`, false},
		{"unknown field", `{"threshold":0.4,"extra":1}`, true},
		{"trailing data", `{"threshold":0.4}{}`, true},
		{"malformed", `{"threshold":`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var p params
			err := DecodeJSON(httptest.NewRecorder(), req, &p)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 0.4, p.Threshold)
		})
	}
}

func TestDecodeJSON_TooLarge(t *testing.T) {
	big := `{"s":"` + strings.Repeat("x", MaxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	var v map[string]string
	assert.ErrorIs(t, DecodeJSON(httptest.NewRecorder(), req, &v), ErrBodyTooLarge)
}

func TestQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=25&bad=x&neg=-1", nil)

	n, err := QueryInt(req, "limit", 10)
	require.NoError(t, err)
	assert.Equal(t, 25, n)

	n, err = QueryInt(req, "missing", 10)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	_, err = QueryInt(req, "bad", 10)
	assert.Error(t, err)
	_, err = QueryInt(req, "neg", 10)
	assert.Error(t, err)
}
