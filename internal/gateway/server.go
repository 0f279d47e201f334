// Package gateway relays analysis sessions to rendering clients over HTTP,
// server-sent events, and WebSocket.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/hedgewatch/internal/analysis"
	"github.com/nextlevelbuilder/hedgewatch/internal/bus"
	"github.com/nextlevelbuilder/hedgewatch/internal/config"
	"github.com/nextlevelbuilder/hedgewatch/internal/sse"
	"github.com/nextlevelbuilder/hedgewatch/pkg/protocol"
)

// maxRequestBodySize caps the start request body.
const maxRequestBodySize = 64 * 1024

// ServerConfig configures a Server.
type ServerConfig struct {
	Token          string        // required bearer token; empty disables auth
	RateLimit      int           // run starts per minute per caller; 0 disables
	Burst          int           // rate limiter burst
	Version        string        // reported by /health
	Heartbeat      time.Duration // SSE heartbeat interval (default 15s)
	CoalesceWindow time.Duration // WebSocket snapshot coalescing (default 100ms)
}

// Server serves the relay endpoints for a Runner.
type Server struct {
	runner *Runner
	bus    *bus.Bus
	router *MethodRouter

	mu        sync.RWMutex
	token     string
	limiter   *RateLimiter
	schedules ScheduleSource

	upgrader       websocket.Upgrader
	version        string
	heartbeat      time.Duration
	coalesceWindow time.Duration
}

// NewServer creates a server for runner.
func NewServer(runner *Runner, cfg ServerConfig) *Server {
	s := &Server{
		runner:         runner,
		bus:            runner.Bus(),
		token:          cfg.Token,
		limiter:        NewRateLimiter(cfg.RateLimit, cfg.Burst),
		version:        cfg.Version,
		heartbeat:      cfg.Heartbeat,
		coalesceWindow: cfg.CoalesceWindow,
	}
	if s.heartbeat <= 0 {
		s.heartbeat = 15 * time.Second
	}
	if s.coalesceWindow == 0 {
		s.coalesceWindow = 100 * time.Millisecond
	}
	if s.version == "" {
		s.version = "dev"
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     sameOrigin,
	}
	s.router = NewMethodRouter(s)
	return s
}

// sameOrigin accepts non-browser clients and browsers on the gateway's own host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && u.Host == r.Host
}

// ApplyConfig updates the token, rate limits, and request defaults from a
// reloaded config. Connected clients keep their connections.
func (s *Server) ApplyConfig(cfg *config.Config) {
	g := cfg.GatewaySnapshot()
	a := cfg.AnalysisSnapshot()

	s.mu.Lock()
	old := s.limiter
	s.token = g.Token
	s.limiter = NewRateLimiter(g.RateLimit, g.Burst)
	s.mu.Unlock()
	old.Close()

	s.runner.SetDefaults(a.Agents, a.Model)
	slog.Info("gateway.config_applied", "auth", g.Token != "", "rate_limit_rpm", g.RateLimit)
}

// Close releases background resources. It does not stop the runner.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limiter.Close()
}

// Handler returns the HTTP handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// RegisterRoutes registers the relay routes on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /v1/analysis", s.authMiddleware(s.handleStart))
	mux.HandleFunc("DELETE /v1/analysis", s.authMiddleware(s.handleCancel))
	mux.HandleFunc("GET /v1/analysis", s.authMiddleware(s.handleCurrent))
	mux.HandleFunc("GET /v1/analysis/events", s.authMiddleware(s.handleEvents))
	mux.HandleFunc("GET /v1/runs/{id}", s.authMiddleware(s.handleRun))
	mux.HandleFunc("GET /v1/schedules", s.authMiddleware(s.handleSchedules))
	mux.HandleFunc("GET /ws", s.authMiddleware(s.handleWS))
}

func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.RLock()
		token := s.token
		s.mu.RUnlock()
		if !tokenMatch(requestToken(r), token) {
			slog.Warn("security.unauthorized", "path", r.URL.Path, "remote", r.RemoteAddr)
			writeJSON(w, http.StatusUnauthorized, protocol.NewErrorResponse("", protocol.ErrUnauthorized, "invalid or missing token"))
			return
		}
		next(w, r)
	}
}

func (s *Server) healthPayload() map[string]any {
	_, active := s.runner.Current()
	return map[string]any{
		"status":      "ok",
		"protocol":    protocol.ProtocolVersion,
		"version":     s.version,
		"active":      active,
		"subscribers": s.bus.Len(),
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.healthPayload())
}

// startRun applies rate limiting and starts a run, returning the HTTP
// status and response frame shared by the HTTP and WebSocket surfaces.
func (s *Server) startRun(reqID, rateKey string, params protocol.StartParams) (int, *protocol.ResponseFrame) {
	s.mu.RLock()
	limiter := s.limiter
	s.mu.RUnlock()

	if ok, retryAfter := limiter.Allow(rateKey); !ok {
		resp := protocol.NewErrorResponse(reqID, protocol.ErrResourceExhausted, "rate limit exceeded")
		resp.Error.Retryable = true
		resp.Error.RetryAfterMs = int(retryAfter.Milliseconds())
		return http.StatusTooManyRequests, resp
	}

	session, err := s.runner.Start(params)
	switch {
	case err == nil:
		return http.StatusAccepted, protocol.NewOKResponse(reqID, map[string]any{
			"runId":    session.ID(),
			"snapshot": session.Snapshot(),
		})
	case errors.Is(err, ErrBusy):
		resp := protocol.NewErrorResponse(reqID, protocol.ErrBusy, err.Error())
		resp.Error.Retryable = true
		return http.StatusConflict, resp
	case errors.Is(err, ErrInvalidParams):
		return http.StatusBadRequest, protocol.NewErrorResponse(reqID, protocol.ErrInvalidRequest, err.Error())
	case errors.Is(err, ErrClosed):
		return http.StatusServiceUnavailable, protocol.NewErrorResponse(reqID, protocol.ErrUnavailable, err.Error())
	default:
		slog.Error("gateway.start_failed", "error", err)
		return http.StatusInternalServerError, protocol.NewErrorResponse(reqID, protocol.ErrInternal, "failed to start analysis")
	}
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var params protocol.StartParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.NewErrorResponse("", protocol.ErrInvalidRequest, "invalid JSON: "+err.Error()))
		return
	}

	status, resp := s.startRun(r.Header.Get("X-Request-Id"), rateLimitKey(r), params)
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(time.Duration(resp.Error.RetryAfterMs)*time.Millisecond)))
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	runID, err := s.runner.Cancel()
	if err != nil {
		writeJSON(w, http.StatusNotFound, protocol.NewErrorResponse("", protocol.ErrNotFound, err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, protocol.NewOKResponse("", map[string]string{"runId": runID}))
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	snap, active := s.runner.Current()
	writeJSON(w, http.StatusOK, protocol.NewOKResponse("", map[string]any{
		"active":   active,
		"snapshot": snap,
	}))
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	snap, ok := s.runner.Lookup(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, protocol.NewErrorResponse("", protocol.ErrNotFound, "run not found: "+id))
		return
	}
	writeJSON(w, http.StatusOK, protocol.NewOKResponse("", snap))
}

// handleEvents streams snapshots as server-sent events, starting with
// the current one. Events a slow client cannot take are dropped; every
// snapshot is cumulative, so the next one supersedes them.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, err := sse.PrepareStream(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	events := make(chan bus.Event, 64)
	id := "sse-" + uuid.NewString()
	s.bus.Subscribe(id, func(e bus.Event) {
		select {
		case events <- e:
		default:
			slog.Debug("gateway.sse_event_dropped", "subscriber", id, "event", e.Name, "seq", e.Seq)
		}
	})
	defer s.bus.Unsubscribe(id)

	w.WriteHeader(http.StatusOK)
	snap, _ := s.runner.Current()
	if err := sse.WriteAndFlush(w, flusher, protocol.EventSnapshot, snap); err != nil {
		return
	}
	slog.Debug("gateway.sse_subscribed", "subscriber", id, "remote", r.RemoteAddr)

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case e := <-events:
			if err := sse.WriteAndFlush(w, flusher, e.Name, e.Payload); err != nil {
				slog.Debug("gateway.sse_write_failed", "subscriber", id, "error", err)
				return
			}
		case t := <-ticker.C:
			if err := sse.WriteAndFlush(w, flusher, protocol.EventHeartbeat, map[string]int64{"ts": t.UnixMilli()}); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("gateway.ws_upgrade_failed", "error", err)
		return
	}

	client := NewClient(conn, s, rateLimitKey(r))
	slog.Info("gateway.ws_connected", "client", client.ID(), "remote", r.RemoteAddr)
	client.Run(context.WithoutCancel(r.Context()))
	slog.Info("gateway.ws_disconnected", "client", client.ID())
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("gateway.write_json_failed", "error", err)
	}
}

// SnapshotOf decodes a snapshot from an event frame payload, for clients
// of the WebSocket feed.
func SnapshotOf(frame protocol.EventFrame) (analysis.Snapshot, error) {
	var snap analysis.Snapshot
	data, err := json.Marshal(frame.Payload)
	if err != nil {
		return snap, err
	}
	err = json.Unmarshal(data, &snap)
	return snap, err
}
