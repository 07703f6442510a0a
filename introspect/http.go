package introspect

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/vinayprograms/threadkit/errors"
	"github.com/vinayprograms/threadkit/logging"
	"github.com/vinayprograms/threadkit/threads"
)

// HandlerConfig configures the HTTP introspection handler.
type HandlerConfig struct {
	Registry *threads.Registry

	// Instance is reported in every snapshot.
	Instance string

	// StallAfter is the default threshold for /threads/stalled.
	// Default: 1 minute
	StallAfter time.Duration

	// StreamInterval between websocket snapshots.
	// Default: 1 second
	StreamInterval time.Duration

	// WriteTimeout for websocket writes.
	// Default: 10 seconds
	WriteTimeout time.Duration

	// Upgrader for /threads/stream. Default accepts any origin.
	Upgrader *websocket.Upgrader

	Logger *logging.Logger
}

// Handler serves registry snapshots over HTTP.
//
//	GET /threads                  snapshot, optional ?short_name=
//	GET /threads/stalled          stalled threads, optional ?after=30s
//	GET /threads/stream           websocket, one snapshot per interval
//	GET /threads/{id}             one thread
type Handler struct {
	cfg    HandlerConfig
	seq    atomic.Uint64
	router chi.Router
}

// NewHandler creates a handler. A nil Registry serves the default registry.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Registry == nil {
		cfg.Registry = threads.DefaultRegistry()
	}
	if cfg.StallAfter <= 0 {
		cfg.StallAfter = time.Minute
	}
	if cfg.StreamInterval <= 0 {
		cfg.StreamInterval = time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.Upgrader == nil {
		cfg.Upgrader = NewUpgrader()
	}

	h := &Handler{cfg: cfg}

	r := chi.NewRouter()
	r.Get("/threads", h.list)
	r.Get("/threads/stalled", h.stalled)
	r.Get("/threads/stream", h.stream)
	r.Get("/threads/{id}", h.get)
	h.router = r
	return h
}

// NewUpgrader creates an upgrader for the stream route.
func NewUpgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) snapshot() *Snapshot {
	return &Snapshot{
		Instance:  h.cfg.Instance,
		Seq:       h.seq.Add(1),
		Timestamp: time.Now(),
		Threads:   h.cfg.Registry.Snapshot(),
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.snapshot().Filter(r.URL.Query().Get("short_name")))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.InvalidInput("invalid thread id: "+raw))
		return
	}
	st, ok := h.cfg.Registry.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, errors.NotFound("thread not found", errors.WithThread(id, "")))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) stalled(w http.ResponseWriter, r *http.Request) {
	after := h.cfg.StallAfter
	if raw := r.URL.Query().Get("after"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, errors.InvalidInput("invalid duration: "+raw))
			return
		}
		after = d
	}
	snap := h.snapshot()
	snap.Threads = Stalled(snap.Threads, snap.Timestamp, after)
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err *errors.Error) {
	writeJSON(w, status, map[string]any{"error": err})
}
