// Package monitor serves the tracker's HTTP control and debug surface.
package monitor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/marker.tracker/internal/config"
	"github.com/banshee-data/marker.tracker/internal/db"
	"github.com/banshee-data/marker.tracker/internal/httputil"
	"github.com/banshee-data/marker.tracker/internal/lifecycle"
	"github.com/banshee-data/marker.tracker/internal/monitoring"
	"github.com/banshee-data/marker.tracker/internal/pose"
	"github.com/banshee-data/marker.tracker/internal/version"
)

var logf = monitoring.Prefixed("monitor")

// Controller is the part of lifecycle.Controller the API drives.
type Controller interface {
	Start()
	Stop()
	Status() lifecycle.Status
}

// Store persists configurations and lists session history.
type Store interface {
	SaveTrackingConfig(ctx context.Context, cfg *config.TrackingConfig, note string) (int64, error)
	ListSessions(ctx context.Context, limit int) ([]db.SessionRow, error)
}

// WebServerConfig wires a WebServer. Controller is required; the rest are
// optional and their routes answer 503 when absent.
type WebServerConfig struct {
	Address    string
	Controller Controller
	Configs    lifecycle.ConfigSource
	Store      Store
	Trajectory *TrajectoryRecorder
	Hub        *Hub
	// Admin, when set, attaches extra routes such as the database debugger.
	Admin func(mux *http.ServeMux) error
}

// WebServer is the monitor HTTP server.
type WebServer struct {
	cfg     WebServerConfig
	server  *http.Server
	started time.Time
}

// NewWebServer builds the server and its routes.
func NewWebServer(cfg WebServerConfig) (*WebServer, error) {
	if cfg.Controller == nil {
		return nil, errors.New("monitor: controller is required")
	}
	ws := &WebServer{cfg: cfg, started: time.Now()}
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

// Handler exposes the routes, mostly for tests.
func (ws *WebServer) Handler() http.Handler { return ws.server.Handler }

// Start serves until ctx is cancelled, then shuts down gracefully.
func (ws *WebServer) Start(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		logf("listening on %s", ws.cfg.Address)
		if err := ws.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err, ok := <-errc:
		if ok {
			return fmt.Errorf("monitor: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	if ws.cfg.Hub != nil {
		ws.cfg.Hub.Close()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		logf("shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			logf("force close error: %v", err)
		}
	}
	logf("stopped")
	return nil
}

func (ws *WebServer) setupRoutes() (*http.ServeMux, error) {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/tracking/start", ws.handleStart)
	mux.HandleFunc("/api/tracking/stop", ws.handleStop)
	mux.HandleFunc("/api/status", ws.handleStatus)
	mux.HandleFunc("/api/config", ws.handleConfig)
	mux.HandleFunc("/api/sessions", ws.handleSessions)
	mux.HandleFunc("/debug/trajectory", ws.handleTrajectoryChart)
	mux.HandleFunc("/debug/trajectory.png", ws.handleTrajectoryPNG)
	if ws.cfg.Hub != nil {
		mux.Handle("/ws/records", ws.cfg.Hub)
	}
	if ws.cfg.Admin != nil {
		if err := ws.cfg.Admin(mux); err != nil {
			return nil, err
		}
	}
	return mux, nil
}

func (ws *WebServer) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	ws.cfg.Controller.Start()
	httputil.WriteJSON(w, http.StatusAccepted, ws.cfg.Controller.Status())
}

func (ws *WebServer) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	ws.cfg.Controller.Stop()
	httputil.WriteJSON(w, http.StatusAccepted, ws.cfg.Controller.Status())
}

// LastPose is the newest filtered pose with its orientation as Euler angles.
type LastPose struct {
	Timestamp   float64   `json:"timestamp"`
	Translation pose.Vec3 `json:"translation"`
	EulerDeg    pose.Vec3 `json:"euler_deg"`
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	lifecycle.Status
	Version   string    `json:"version"`
	GitSHA    string    `json:"git_sha"`
	BuildTime string    `json:"build_time"`
	Uptime    string    `json:"uptime"`
	Viewers   int       `json:"viewers"`
	LastPose  *LastPose `json:"last_pose,omitempty"`
}

func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	resp := StatusResponse{
		Status:    ws.cfg.Controller.Status(),
		Version:   version.Version,
		GitSHA:    version.GitSHA,
		BuildTime: version.BuildTime,
		Uptime:    time.Since(ws.started).Round(time.Second).String(),
	}
	if ws.cfg.Hub != nil {
		resp.Viewers = ws.cfg.Hub.Count()
	}
	if ws.cfg.Trajectory != nil {
		if rec, ok := ws.cfg.Trajectory.Latest(); ok {
			t := pose.FromBasis(rec.Orientation, rec.Translation)
			resp.LastPose = &LastPose{
				Timestamp:   rec.Timestamp,
				Translation: rec.Translation,
				EulerDeg:    pose.Degrees(pose.RotationToEuler(t)),
			}
		}
	}
	httputil.WriteJSONOK(w, resp)
}

func (ws *WebServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if ws.cfg.Configs == nil {
			httputil.ServiceUnavailable(w, "no configuration source")
			return
		}
		cfg, err := ws.cfg.Configs.TrackingConfig(r.Context())
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		httputil.WriteJSONOK(w, cfg)

	case http.MethodPut:
		if ws.cfg.Store == nil {
			httputil.ServiceUnavailable(w, "no configuration store")
			return
		}
		cfg := config.EmptyTrackingConfig()
		if err := httputil.DecodeJSON(w, r, cfg); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		if err := cfg.Validate(); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		id, err := ws.cfg.Store.SaveTrackingConfig(r.Context(), cfg, r.URL.Query().Get("note"))
		if err != nil {
			httputil.InternalServerError(w, err.Error())
			return
		}
		logf("saved tracking config revision %d; applies from the next session", id)
		httputil.WriteJSONOK(w, map[string]interface{}{"id": id, "config": cfg})

	default:
		httputil.MethodNotAllowed(w, http.MethodGet, http.MethodPut)
	}
}

func (ws *WebServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	if ws.cfg.Store == nil {
		httputil.ServiceUnavailable(w, "no session store")
		return
	}
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil || v <= 0 || v > 500 {
			httputil.BadRequest(w, "limit must be between 1 and 500")
			return
		}
		limit = v
	}
	sessions, err := ws.cfg.Store.ListSessions(r.Context(), limit)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if sessions == nil {
		sessions = []db.SessionRow{}
	}
	httputil.WriteJSONOK(w, sessions)
}

func (ws *WebServer) handleTrajectoryChart(w http.ResponseWriter, r *http.Request) {
	if ws.cfg.Trajectory == nil {
		httputil.ServiceUnavailable(w, "trajectory recording disabled")
		return
	}
	line := TrajectoryChart(ws.cfg.Trajectory.Snapshot())
	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (ws *WebServer) handleTrajectoryPNG(w http.ResponseWriter, r *http.Request) {
	if ws.cfg.Trajectory == nil {
		httputil.ServiceUnavailable(w, "trajectory recording disabled")
		return
	}
	var buf bytes.Buffer
	err := WriteTrajectoryPNG(&buf, ws.cfg.Trajectory.Snapshot())
	if errors.Is(err, ErrNoTrajectory) {
		httputil.NotFound(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}
