// Package api exposes the engine's command surface over a loopback HTTP
// listener, plus a websocket push channel for live status.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/riptide-dl/riptide/internal/engine"
	"github.com/riptide-dl/riptide/internal/engine/types"
)

// Server is the daemon's HTTP face. It only ever binds 127.0.0.1 and
// rejects any request that somehow arrives from elsewhere.
type Server struct {
	mgr    *engine.Manager
	hub    *hub
	log    zerolog.Logger
	router *chi.Mux

	listener net.Listener
	httpSrv  *http.Server
}

func NewServer(mgr *engine.Manager, log zerolog.Logger) *Server {
	s := &Server{
		mgr:    mgr,
		hub:    newHub(mgr, log),
		log:    log,
		router: chi.NewRouter(),
	}
	s.routes()
	return s
}

// Router returns the handler tree, mainly so tests can mount it on an
// httptest server.
func (s *Server) Router() http.Handler {
	return s.router
}

// Listen binds the loopback listener. Port 0 asks the kernel for a free one;
// the chosen port is returned either way.
func (s *Server) Listen(port int) (int, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return 0, fmt.Errorf("failed to bind API listener: %w", err)
	}
	s.listener = ln
	s.httpSrv = &http.Server{Handler: s.router}
	return ln.Addr().(*net.TCPAddr).Port, nil
}

// Serve blocks until Shutdown.
func (s *Server) Serve() error {
	if err := s.httpSrv.Serve(s.listener); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the push hub and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.close()
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) routes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.loopbackOnly)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/downloads", s.handleAdd)
		r.Get("/downloads", s.handleList)
		r.Post("/downloads/{id}/pause", s.handlePause)
		r.Post("/downloads/{id}/resume", s.handleResume)
		r.Delete("/downloads/{id}", s.handleCancel)
		r.Post("/pause-all", s.handlePauseAll)
		r.Post("/resume-all", s.handleResumeAll)
		r.Get("/settings/{key}", s.handleGetSetting)
		r.Put("/settings/{key}", s.handlePutSetting)
	})
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/ws", s.hub.handleWS)
}

// loopbackOnly rejects peers that are not localhost. The listener already
// binds 127.0.0.1; this covers proxied or forwarded sockets.
func (s *Server) loopbackOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		ip := net.ParseIP(host)
		if err != nil || ip == nil || !ip.IsLoopback() {
			s.log.Warn().Str("remote", r.RemoteAddr).Msg("rejected non-loopback request")
			writeError(w, http.StatusForbidden, "", "loopback connections only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type addRequest struct {
	URL      string `json:"url"`
	Folder   string `json:"folder,omitempty"`
	Filename string `json:"filename,omitempty"`
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, types.ErrValidation, "invalid JSON body")
		return
	}

	id, err := s.mgr.Add(req.URL, req.Folder, req.Filename)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	views := s.mgr.Snapshot()
	if views == nil {
		views = []types.DownloadView{}
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.mgr.Pause(chi.URLParam(r, "id")); err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := s.mgr.Resume(chi.URLParam(r, "id")); err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var deleteFile *bool
	if raw := r.URL.Query().Get("delete_file"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, types.ErrValidation, "delete_file must be true or false")
			return
		}
		deleteFile = &v
	}

	if err := s.mgr.Cancel(chi.URLParam(r, "id"), deleteFile); err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handlePauseAll(w http.ResponseWriter, r *http.Request) {
	s.mgr.PauseAll()
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) handleResumeAll(w http.ResponseWriter, r *http.Request) {
	s.mgr.ResumeAll()
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

func (s *Server) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	value, err := s.mgr.Setting(key)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": value})
}

type putSettingRequest struct {
	Value string `json:"value"`
}

func (s *Server) handlePutSetting(w http.ResponseWriter, r *http.Request) {
	var req putSettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, types.ErrValidation, "invalid JSON body")
		return
	}

	key := chi.URLParam(r, "key")
	if err := s.mgr.SetSetting(key, req.Value); err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "value": req.Value})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "time": time.Now().Format(time.RFC3339)})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string          `json:"error"`
	Kind  types.ErrorKind `json:"kind,omitempty"`
}

func writeError(w http.ResponseWriter, code int, kind types.ErrorKind, msg string) {
	writeJSON(w, code, errorBody{Error: msg, Kind: kind})
}

// writeCommandError maps the error taxonomy onto HTTP statuses.
func writeCommandError(w http.ResponseWriter, err error) {
	kind := types.KindOf(err)
	code := http.StatusInternalServerError
	switch kind {
	case types.ErrValidation, types.ErrInvalidPath:
		code = http.StatusBadRequest
	case types.ErrNotFound:
		code = http.StatusNotFound
	case types.ErrInvalidState:
		code = http.StatusConflict
	}
	writeError(w, code, kind, err.Error())
}
