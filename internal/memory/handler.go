package memory

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Nikunikuo/EmotionMemCore/internal/api"
	"github.com/Nikunikuo/EmotionMemCore/internal/capability"
	"github.com/Nikunikuo/EmotionMemCore/internal/emotion"
)

// Handler handles memory HTTP endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates a new memory handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// saveResponse is the sync-mode save body.
type saveResponse struct {
	MemoryID         string          `json:"memory_id"`
	Summary          string          `json:"summary"`
	Emotions         []emotion.Label `json:"emotions"`
	CreatedAt        time.Time       `json:"created_at"`
	ProcessingTimeMS int64           `json:"processing_time_ms"`
	Degraded         bool            `json:"degraded,omitempty"`
}

type searchResponse struct {
	Results []SearchResult `json:"results"`
	Total   int            `json:"total"`
}

type listResponse struct {
	Memories []*Memory `json:"memories"`
	Total    int64     `json:"total"`
}

type deleteResponse struct {
	Success bool `json:"success"`
}

// Save runs the save pipeline. In async mode it acknowledges with the
// assigned id before the pipeline runs.
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	var turn ConversationTurn
	if err := json.NewDecoder(r.Body).Decode(&turn); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if h.svc.Async() {
		ack, err := h.svc.SaveAsync(r.Context(), &turn)
		if err != nil {
			h.handleError(w, "queueing save", err)
			return
		}
		api.JSON(w, http.StatusAccepted, ack)
		return
	}

	res, err := h.svc.Save(r.Context(), &turn)
	if err != nil {
		h.handleError(w, "saving memory", err)
		return
	}
	api.JSON(w, http.StatusOK, saveResponse{
		MemoryID:         res.Memory.ID,
		Summary:          res.Memory.Summary,
		Emotions:         res.Memory.Emotions,
		CreatedAt:        res.Memory.CreatedAt,
		ProcessingTimeMS: res.ProcessingTime.Milliseconds(),
		Degraded:         res.Degraded,
	})
}

// BatchSave saves several turns in one request.
func (h *Handler) BatchSave(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Memories []*ConversationTurn `json:"memories"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	res, err := h.svc.BatchSave(r.Context(), req.Memories)
	if err != nil {
		h.handleError(w, "batch saving memories", err)
		return
	}
	if res.Failed == nil {
		res.Failed = []BatchFailure{}
	}
	api.JSON(w, http.StatusOK, res)
}

// Search embeds the query text and returns ranked matches.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	var q SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	results, err := h.svc.Search(r.Context(), &q)
	if err != nil {
		h.handleError(w, "searching memories", err)
		return
	}
	if results == nil {
		results = []SearchResult{}
	}
	api.JSON(w, http.StatusOK, searchResponse{Results: results, Total: len(results)})
}

// List pages through memories, newest first. Filters come from query
// parameters.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := ListQuery{Limit: 50}
	params := r.URL.Query()

	q.OwnerID = params.Get("owner_id")
	if raw := params.Get("emotions"); raw != "" {
		q.Emotions = splitCSV(raw)
	}
	if v, err := strconv.Atoi(params.Get("limit")); err == nil && v > 0 && v <= 200 {
		q.Limit = v
	}
	if v, err := strconv.Atoi(params.Get("offset")); err == nil && v > 0 {
		q.Offset = v
	}
	tr, err := parseTimeRange(params.Get("start"), params.Get("end"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid time range, want RFC 3339"))
		return
	}
	q.TimeRange = tr

	memories, total, err := h.svc.List(r.Context(), &q)
	if err != nil {
		h.handleError(w, "listing memories", err)
		return
	}
	if memories == nil {
		memories = []*Memory{}
	}
	api.JSON(w, http.StatusOK, listResponse{Memories: memories, Total: total})
}

// Get returns a single memory by id.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "memoryID")
	mem, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.handleError(w, "getting memory", err)
		return
	}
	api.JSON(w, http.StatusOK, mem)
}

// Delete removes a memory. Deleting an absent id succeeds with
// success=false.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "memoryID")
	found, err := h.svc.Delete(r.Context(), id)
	if err != nil {
		h.handleError(w, "deleting memory", err)
		return
	}
	api.JSON(w, http.StatusOK, deleteResponse{Success: found})
}

// Stats returns store totals and per-label counts.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		h.handleError(w, "computing stats", err)
		return
	}
	api.JSON(w, http.StatusOK, stats)
}

func (h *Handler) handleError(w http.ResponseWriter, op string, err error) {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		api.HandleError(w, api.NewBadRequestError(verr.Error()))
	case errors.Is(err, ErrDuplicateID):
		api.HandleError(w, api.NewConflictError("memory id already exists"))
	case errors.Is(err, ErrNotFound):
		api.HandleError(w, api.NewNotFoundError("memory not found"))
	case errors.Is(err, ErrQueueFull):
		api.HandleError(w, api.NewUnavailableError("save queue full, retry later"))
	case capability.IsTransient(err):
		slog.Warn(op, "error", err)
		api.HandleError(w, api.ErrUnavailable)
	default:
		slog.Error(op, "error", err)
		api.HandleError(w, api.ErrInternalServer)
	}
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseTimeRange(start, end string) (*TimeRange, error) {
	if start == "" && end == "" {
		return nil, nil
	}
	tr := &TimeRange{}
	if start != "" {
		t, err := time.Parse(time.RFC3339, start)
		if err != nil {
			return nil, err
		}
		tr.Start = t
	}
	if end != "" {
		t, err := time.Parse(time.RFC3339, end)
		if err != nil {
			return nil, err
		}
		tr.End = t
	}
	return tr, nil
}
