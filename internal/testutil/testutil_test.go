package testutil

import (
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDet(t *testing.T) {
	d := Det("car", 0.7, 0.1, 0.2, 0.3, 0.4)
	assert.True(t, d.IsValid())
	assert.InDelta(t, 0.25, d.Box.Center().X, 1e-12)
}

func TestNewTestDB(t *testing.T) {
	d := NewTestDB(t)
	v, dirty, err := d.MigrateVersion()
	require.NoError(t, err)
	assert.NotZero(t, v)
	assert.False(t, dirty)
}

func TestServe(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Type", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusAccepted)
		w.Write(b)
	})

	rec := Serve(t, h, http.MethodPost, "/x", `{"a":1}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("X-Type"))
	assert.Equal(t, `{"a":1}`, rec.Body.String())

	rec = Serve(t, h, http.MethodGet, "/x", "")
	assert.Empty(t, rec.Body.String())
}
