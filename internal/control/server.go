// Package control is the operator HTTP surface: fleet CRUD, a few agent
// commands, and a websocket event stream per agent.
package control

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/nrevox/growfleet/internal/agent"
	"github.com/nrevox/growfleet/internal/events"
	"github.com/nrevox/growfleet/internal/fleet"
	"github.com/nrevox/growfleet/internal/model"
	"github.com/nrevox/growfleet/internal/socks5"
)

// eventBuffer absorbs bursts between websocket writes; beyond it the bus
// drops events rather than stalling the agent.
const eventBuffer = 256

// Server wires the fleet manager to HTTP.
type Server struct {
	fleet    *fleet.Manager
	journal  *events.Journal
	log      *slog.Logger
	upgrader websocket.Upgrader
}

// NewServer builds the control server. journal may be nil.
func NewServer(f *fleet.Manager, journal *events.Journal, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		fleet:   f,
		journal: journal,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/agents", func(r chi.Router) {
		r.Get("/", s.listAgents)
		r.Post("/", s.createAgent)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getAgent)
			r.Delete("/", s.removeAgent)
			r.Get("/events", s.streamEvents)
			r.Post("/warp", s.warpAgent)
			r.Post("/chat", s.chatAgent)
			r.Put("/config", s.configureAgent)
		})
	})
	return r
}

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.fleet.List())
}

// createRequest is the POST /agents body.
type createRequest struct {
	Method   string `json:"method"` // legacy | fetcher | refresh
	GrowID   string `json:"grow_id"`
	Password string `json:"password"`
	Token    string `json:"token"`
	SOCKS5   *struct {
		Address  string `json:"address"`
		Username string `json:"username"`
		Password string `json:"password"`
	} `json:"socks5"`
}

func (s *Server) createAgent(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	creds := model.Credentials{GrowID: req.GrowID, Password: req.Password, Token: req.Token}
	switch req.Method {
	case "legacy", "":
		creds.Method = model.LoginLegacy
	case "fetcher":
		creds.Method = model.LoginTokenFetcher
	case "refresh":
		creds.Method = model.LoginRefreshToken
	default:
		writeError(w, http.StatusBadRequest, "unknown login method")
		return
	}

	var proxy *socks5.Config
	if req.SOCKS5 != nil {
		proxy = &socks5.Config{
			Address:  req.SOCKS5.Address,
			Username: req.SOCKS5.Username,
			Password: req.SOCKS5.Password,
		}
	}

	id, err := s.fleet.Create(fleet.CreateRequest{Credentials: creds, SOCKS5: proxy})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) getAgent(w http.ResponseWriter, r *http.Request) {
	a, ok := s.agentFrom(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, a.Describe())
}

func (s *Server) removeAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.fleet.Remove(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) warpAgent(w http.ResponseWriter, r *http.Request) {
	a, ok := s.agentFrom(w, r)
	if !ok {
		return
	}
	var body struct {
		World string `json:"world"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.World == "" {
		writeError(w, http.StatusBadRequest, "world required")
		return
	}
	if err := a.Warp(body.World); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) chatAgent(w http.ResponseWriter, r *http.Request) {
	a, ok := s.agentFrom(w, r)
	if !ok {
		return
	}
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Text == "" {
		writeError(w, http.StatusBadRequest, "text required")
		return
	}
	if err := a.Chat(body.Text); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// configRequest is the PUT /agents/{id}/config body.
type configRequest struct {
	AutoCollect   bool   `json:"auto_collect"`
	AutoReconnect bool   `json:"auto_reconnect"`
	FindPathDelay uint32 `json:"findpath_delay"`
	PunchDelay    uint32 `json:"punch_delay"`
	PlaceDelay    uint32 `json:"place_delay"`
}

func (s *Server) configureAgent(w http.ResponseWriter, r *http.Request) {
	a, ok := s.agentFrom(w, r)
	if !ok {
		return
	}
	var req configRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	a.Behavior().Set(req.AutoCollect, req.AutoReconnect)
	a.Delays().Set(model.Delays{
		FindPath: req.FindPathDelay,
		Punch:    req.PunchDelay,
		Place:    req.PlaceDelay,
	})
	a.Bus().Emit(events.TypeConfig, map[string]any{
		"auto_collect":   req.AutoCollect,
		"auto_reconnect": req.AutoReconnect,
	})
	w.WriteHeader(http.StatusNoContent)
}

// streamEvents upgrades to a websocket and forwards the agent's bus.
// With a journal configured, the stored backlog is replayed first.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a, ok := s.fleet.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "no such agent")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	if s.journal != nil {
		backlog, err := s.journal.Recent(id, 100)
		if err != nil {
			s.log.Warn("journal backlog failed", "error", err)
		}
		for _, ev := range backlog {
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}

	ch := a.Bus().Subscribe(eventBuffer)
	defer a.Bus().Unsubscribe()

	// Reader goroutine notices the peer going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, open := <-ch:
			if !open {
				return
			}
			if s.journal != nil {
				if err := s.journal.Record(id, ev); err != nil {
					s.log.Warn("journal write failed", "error", err)
				}
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

func (s *Server) agentFrom(w http.ResponseWriter, r *http.Request) (*agent.Agent, bool) {
	id := chi.URLParam(r, "id")
	a, ok := s.fleet.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "no such agent")
		return nil, false
	}
	return a, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
