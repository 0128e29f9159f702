// Package server exposes the operator-facing control API: start/stop/status
// for the monitoring engine, the WebSocket log stream, and the check
// history.
package server

import (
	"net/http"

	"github.com/gorilla/websocket"

	"pomon/internal/broadcast"
	"pomon/internal/utils"
	"pomon/pkg/monitor"
	"pomon/pkg/storage"
)

// MonitorControl is the only surface the control API is allowed to touch on
// the engine.
type MonitorControl interface {
	Start(params monitor.Params) error
	Stop() error
	Active() bool
}

type Server struct {
	Monitor  MonitorControl
	Hub      *broadcast.Hub
	Store    *storage.DB // optional
	Username string
	Password string

	upgrader websocket.Upgrader
}

func New(m MonitorControl, hub *broadcast.Hub, store *storage.DB, user, pass string) *Server {
	return &Server{
		Monitor:  m,
		Hub:      hub,
		Store:    store,
		Username: user,
		Password: pass,
		upgrader: websocket.Upgrader{
			// The dashboard may be served from a different origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/monitor/status", s.basicAuth(s.handleStatus))
	mux.HandleFunc("POST /api/monitor/start", s.basicAuth(s.handleStart))
	mux.HandleFunc("POST /api/monitor/stop", s.basicAuth(s.handleStop))
	mux.HandleFunc("GET /api/monitor/history", s.basicAuth(s.handleHistory))
	mux.HandleFunc("GET /api/monitor/updates", s.basicAuth(s.handleUpdates))
	return mux
}

func (s *Server) Start(addr string) error {
	utils.Log.Infof("Starting control API on %s", addr)
	return http.ListenAndServe(addr, s.Routes())
}

func (s *Server) basicAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Username == "" && s.Password == "" {
			next(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.Username || pass != s.Password {
			w.Header().Set("WWW-Authenticate", `Basic realm="Restricted"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
