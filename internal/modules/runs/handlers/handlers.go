// Package handlers provides HTTP handlers for scenario runs.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/events"
	"github.com/aristath/allocator/internal/modules/runs"
	"github.com/aristath/allocator/internal/modules/scenarios"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// maxRequestBody bounds POST /runs bodies.
const maxRequestBody = 1 << 20

// Executor runs scenario batches
type Executor interface {
	Execute(ctx context.Context, req runs.Request) (*runs.Run, []scenarios.Outcome, error)
}

// RunReader reads run history
type RunReader interface {
	Get(ctx context.Context, id string) (*runs.Run, error)
	List(ctx context.Context, limit int) ([]runs.Run, error)
}

// Handler provides HTTP handlers for run endpoints
type Handler struct {
	executor Executor
	reader   RunReader
	bus      *events.Bus
	log      zerolog.Logger
}

// NewHandler creates a new runs handler
func NewHandler(executor Executor, reader RunReader, bus *events.Bus, log zerolog.Logger) *Handler {
	return &Handler{
		executor: executor,
		reader:   reader,
		bus:      bus,
		log:      log.With().Str("handler", "runs").Logger(),
	}
}

// RegisterRoutes registers run routes under /runs
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/runs", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleList)
		r.Get("/stream", h.HandleStream)
		r.Get("/{id}", h.HandleGet)
	})
}

// HandleCreate handles POST /api/runs
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req runs.Request
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}
	if len(body) > 0 {
		// Bad scenario fields mark that scenario malformed; only the envelope fails here.
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}
	req.Trigger = runs.TriggerAPI

	run, _, err := h.executor.Execute(r.Context(), req)
	if err != nil {
		h.log.Error().Err(err).Msg("Run failed")
		status := http.StatusInternalServerError
		var insufficient *domain.InsufficientDataError
		if errors.As(err, &insufficient) {
			status = http.StatusUnprocessableEntity
		}
		h.writeJSON(w, status, map[string]interface{}{"error": err.Error(), "run": run})
		return
	}

	h.writeJSON(w, http.StatusCreated, run)
}

// HandleList handles GET /api/runs
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := runs.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	list, err := h.reader.List(r.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list runs")
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, list)
}

// HandleGet handles GET /api/runs/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := h.reader.Get(r.Context(), id)
	if err != nil {
		h.log.Error().Err(err).Str("id", id).Msg("Failed to get run")
		http.Error(w, "Failed to get run", http.StatusInternalServerError)
		return
	}
	if run == nil {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, run)
}

// HandleStream handles GET /api/runs/stream, forwarding run events over a websocket.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	ch, unsubscribe := h.bus.Channel(100)
	defer unsubscribe()

	// Clients only listen; CloseRead handles control frames and cancels on disconnect.
	ctx := conn.CloseRead(r.Context())
	h.log.Info().Msg("Client connected to run stream")

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info().Msg("Client disconnected from run stream")
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case event := <-ch:
			if err := h.send(ctx, conn, event); err != nil {
				h.log.Debug().Err(err).Msg("Failed to send event")
				return
			}
		case <-heartbeat.C:
			if err := conn.Ping(ctx); err != nil {
				return
			}
		}
	}
}

func (h *Handler) send(ctx context.Context, conn *websocket.Conn, event *events.Event) error {
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return wsjson.Write(writeCtx, conn, event)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}
