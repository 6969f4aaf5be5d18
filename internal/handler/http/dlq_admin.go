package httphandler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"xconfess-notify/internal/middleware"
	"xconfess-notify/internal/queue"
	"xconfess-notify/pkg/response"
	"xconfess-notify/pkg/xerrors"
)

// DLQHandler exposes the dead-letter admin surface.
type DLQHandler struct {
	queue queue.Queue
}

func NewDLQHandler(q queue.Queue) *DLQHandler {
	return &DLQHandler{queue: q}
}

// ListDeadLetterJobs returns dead-lettered jobs newest first, filtered
// by failure time and attempt count.
func (h *DLQHandler) ListDeadLetterJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var f queue.FailedFilter
	if raw := q.Get("failedAfter"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "failedAfter must be RFC3339")
			return
		}
		f.FailedAfter = &t
	}
	if raw := q.Get("failedBefore"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "failedBefore must be RFC3339")
			return
		}
		f.FailedBefore = &t
	}
	if raw := q.Get("minRetries"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.Error(w, http.StatusBadRequest, "minRetries must be a non-negative integer")
			return
		}
		f.MinAttempts = n
	}

	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	jobs, total, err := h.queue.ListFailed(r.Context(), f, page, limit)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.Page(w, http.StatusOK, jobs, response.PageMeta{
		Total: total,
		Page:  page,
		Limit: limit,
	})
}

// ReplayDeadLetterJob re-enqueues a dead-lettered job as a brand new job
// with a fresh retry budget. The dead-letter record itself is untouched.
func (h *DLQHandler) ReplayDeadLetterJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")

	var body struct {
		Reason string `json:"reason"`
	}
	if r.Body != nil {
		// Body is optional; decode errors on an empty body are fine.
		_ = json.NewDecoder(r.Body).Decode(&body)
	}

	replayed, err := h.queue.Replay(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, xerrors.ErrJobNotFound) {
			response.Error(w, http.StatusNotFound, "dead-letter job not found")
			return
		}
		response.Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Printf("[DLQ] admin=%s replayed job=%s as=%s reason=%q",
		middleware.UserID(r), jobID, replayed.ID, body.Reason)

	response.JSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Job queued for replay",
		"jobId":   replayed.ID,
	})
}
