// Package testutil holds fixtures shared by the overlay package tests.
package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/overlay/internal/db"
	"github.com/banshee-data/overlay/internal/overlay/l1geom"
	"github.com/banshee-data/overlay/internal/overlay/l2detect"
)

// Epoch is the fixed start time used with timeutil.MockClock in tests.
var Epoch = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

// Det builds a detection from a top-left corner and size.
func Det(label string, conf, x, y, w, h float64) l2detect.Detection {
	return l2detect.Detection{
		Label:      label,
		Confidence: conf,
		Box:        l1geom.Rect{X: x, Y: y, W: w, H: h},
	}
}

// NewTestDB returns a migrated database in t.TempDir, closed on cleanup.
func NewTestDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.NewDB(filepath.Join(t.TempDir(), "overlay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

// Serve runs one request through h. A non-empty body is sent as JSON.
func Serve(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}
