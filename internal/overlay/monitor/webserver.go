// Package monitor serves the overlay's HTTP API: live tracks, stats,
// runtime tuning, the association debug view, stored track history and
// the debug charts.
package monitor

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/banshee-data/overlay/internal/config"
	"github.com/banshee-data/overlay/internal/db"
	"github.com/banshee-data/overlay/internal/httputil"
	"github.com/banshee-data/overlay/internal/monitoring"
	"github.com/banshee-data/overlay/internal/overlay/debug"
	"github.com/banshee-data/overlay/internal/overlay/l3tracks"
	"github.com/banshee-data/overlay/internal/overlay/storage/sqlite"
	"github.com/banshee-data/overlay/internal/overlay/visualiser"
	"github.com/banshee-data/overlay/internal/version"
)

// WebServerConfig wires the server to the running pipeline. Tracker and
// Tuning are required; the rest switch their endpoints off when nil.
type WebServerConfig struct {
	Address   string
	Tracker   *l3tracks.Tracker
	Tuning    *config.Store
	Frames    *monitoring.FrameStats
	Collector *debug.Collector
	Trails    *TrailPlotter
	Stream    *visualiser.Publisher
	DB        *db.DB
	Tracks    *sqlite.TrackStore
	Sessions  *sqlite.SessionStore
	Recorder  *sqlite.Recorder
	SessionID string
}

// WebServer handles the HTTP interface.
type WebServer struct {
	cfg    WebServerConfig
	server *http.Server
}

// NewWebServer builds the server and its routes.
func NewWebServer(cfg WebServerConfig) (*WebServer, error) {
	if cfg.Tracker == nil || cfg.Tuning == nil {
		return nil, errors.New("monitor: tracker and tuning store are required")
	}
	ws := &WebServer{cfg: cfg}
	mux, err := ws.setupRoutes()
	if err != nil {
		return nil, err
	}
	ws.server = &http.Server{
		Addr:              cfg.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return ws, nil
}

// Handler returns the root handler, for tests and embedding.
func (ws *WebServer) Handler() http.Handler { return ws.server.Handler }

// Start serves until ctx is cancelled, then shuts down.
func (ws *WebServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting HTTP server on %s", ws.cfg.Address)
		if err := ws.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}
	log.Printf("HTTP server routine stopped")
	return nil
}

func (ws *WebServer) setupRoutes() (*http.ServeMux, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", ws.handleHealth)
	mux.HandleFunc("GET /api/tracks", ws.handleTracks)
	mux.HandleFunc("GET /api/stats", ws.handleStats)
	mux.HandleFunc("GET /api/params", ws.handleGetParams)
	mux.HandleFunc("POST /api/params", ws.handlePostParams)
	mux.HandleFunc("GET /api/debug/frame", ws.handleDebugFrame)
	mux.HandleFunc("POST /api/debug/frame", ws.handleDebugToggle)
	mux.HandleFunc("GET /api/tracks/history", ws.handleTrackHistory)
	mux.HandleFunc("GET /api/sessions", ws.handleSessions)
	mux.HandleFunc("GET /debug/charts/tracks", ws.handleTrackChart)
	mux.HandleFunc("GET /debug/plots/trails.png", ws.handleTrailPlot)

	if ws.cfg.DB != nil {
		if err := ws.cfg.DB.AttachAdminRoutes(mux); err != nil {
			return nil, err
		}
	}
	return mux, nil
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{"status": "ok"})
}

func (ws *WebServer) handleTracks(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]any{"tracks": ws.cfg.Tracker.Snapshot()})
}

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	Version  version.Info                   `json:"version"`
	Session  string                         `json:"session_id,omitempty"`
	Tracker  l3tracks.Metrics               `json:"tracker"`
	Frames   *monitoring.FrameStatsSnapshot `json:"frames,omitempty"`
	Stream   *visualiser.PublisherStats     `json:"stream,omitempty"`
	Recorder *sqlite.RecorderStats          `json:"recorder,omitempty"`
}

func (ws *WebServer) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		Version: version.Get(),
		Session: ws.cfg.SessionID,
		Tracker: ws.cfg.Tracker.Metrics(),
	}
	if ws.cfg.Frames != nil {
		s := ws.cfg.Frames.Snapshot()
		resp.Frames = &s
	}
	if ws.cfg.Stream != nil {
		s := ws.cfg.Stream.Stats()
		resp.Stream = &s
	}
	if ws.cfg.Recorder != nil {
		s := ws.cfg.Recorder.Stats()
		resp.Recorder = &s
	}
	httputil.WriteJSONOK(w, resp)
}

func (ws *WebServer) handleGetParams(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, ws.cfg.Tuning.Load())
}

// handlePostParams merges a partial tuning document into the live config.
// The change applies from the next frame.
func (ws *WebServer) handlePostParams(w http.ResponseWriter, r *http.Request) {
	var patch config.TuningConfig
	if err := httputil.DecodeJSON(w, r, &patch); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	next, err := ws.cfg.Tuning.Update(&patch)
	if errors.Is(err, config.ErrInvalid) {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	log.Printf("[monitor] tuning updated")
	httputil.WriteJSONOK(w, next)
}

func (ws *WebServer) handleDebugFrame(w http.ResponseWriter, r *http.Request) {
	c := ws.cfg.Collector
	if c == nil {
		httputil.ServiceUnavailable(w, "debug collector not configured")
		return
	}
	f := c.Last()
	if f == nil {
		httputil.NotFound(w, "no debug frame recorded; enable with POST /api/debug/frame?enabled=true")
		return
	}
	httputil.WriteJSONOK(w, f)
}

func (ws *WebServer) handleDebugToggle(w http.ResponseWriter, r *http.Request) {
	c := ws.cfg.Collector
	if c == nil {
		httputil.ServiceUnavailable(w, "debug collector not configured")
		return
	}
	switch r.URL.Query().Get("enabled") {
	case "true", "1":
		c.SetEnabled(true)
	case "false", "0":
		c.SetEnabled(false)
	default:
		httputil.BadRequest(w, "enabled must be true or false")
		return
	}
	httputil.WriteJSONOK(w, map[string]bool{"enabled": c.IsEnabled()})
}

func (ws *WebServer) handleTrackHistory(w http.ResponseWriter, r *http.Request) {
	if ws.cfg.Tracks == nil {
		httputil.ServiceUnavailable(w, "track store not configured")
		return
	}
	limit, err := httputil.QueryInt(r, "limit", 100)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	var recs []sqlite.TrackRecord
	if session := r.URL.Query().Get("session_id"); session != "" {
		recs, err = ws.cfg.Tracks.BySession(r.Context(), session, limit)
	} else {
		recs, err = ws.cfg.Tracks.Recent(r.Context(), limit)
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if recs == nil {
		recs = []sqlite.TrackRecord{}
	}
	httputil.WriteJSONOK(w, map[string]any{"tracks": recs})
}

func (ws *WebServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if ws.cfg.Sessions == nil {
		httputil.ServiceUnavailable(w, "session store not configured")
		return
	}
	limit, err := httputil.QueryInt(r, "limit", 50)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	sessions, err := ws.cfg.Sessions.List(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if sessions == nil {
		sessions = []sqlite.Session{}
	}
	httputil.WriteJSONOK(w, map[string]any{"sessions": sessions})
}
