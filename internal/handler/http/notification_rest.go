package httphandler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"xconfess-notify/internal/domain"
	"xconfess-notify/internal/middleware"
	"xconfess-notify/internal/usecase"
	"xconfess-notify/pkg/response"
	"xconfess-notify/pkg/xerrors"
)

type NotificationHandler struct {
	uc *usecase.NotificationUsecase
}

func NewNotificationHandler(uc *usecase.NotificationUsecase) *NotificationHandler {
	return &NotificationHandler{uc: uc}
}

// ----------------------
// Notification Handlers
// ----------------------

func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	unreadOnly := r.URL.Query().Get("unreadOnly") == "true"
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	items, total, unread, err := h.uc.GetUserNotifications(r.Context(), userID, page, limit, unreadOnly)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.JSON(w, http.StatusOK, map[string]any{
		"notifications": items,
		"total":         total,
		"unreadCount":   unread,
		"page":          page,
		"limit":         limit,
	})
}

func (h *NotificationHandler) CountUnread(w http.ResponseWriter, r *http.Request) {
	count, err := h.uc.CountUnread(r.Context(), middleware.UserID(r))
	if err != nil {
		response.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.JSON(w, http.StatusOK, map[string]int{"count": count})
}

func (h *NotificationHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	userID := middleware.UserID(r)

	if err := h.uc.MarkAsRead(r.Context(), id, userID); err != nil {
		if errors.Is(err, xerrors.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "notification not found")
			return
		}
		response.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) MarkAllAsRead(w http.ResponseWriter, r *http.Request) {
	if err := h.uc.MarkAllAsRead(r.Context(), middleware.UserID(r)); err != nil {
		response.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// IngestEvent accepts an event from the confession/comment subsystems
// and runs it through the preference gate. A dropped event still
// returns 202 so producers never retry on gating.
func (h *NotificationHandler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	var ev domain.MessageEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid input")
		return
	}
	if ev.UserID == "" || ev.Kind == "" {
		response.Error(w, http.StatusBadRequest, "userId and kind are required")
		return
	}

	created, err := h.uc.HandleEvent(r.Context(), ev)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.JSON(w, http.StatusAccepted, map[string]any{
		"delivered":    created != nil,
		"notification": created,
	})
}

// ----------------------
// Preference Handlers
// ----------------------

func (h *NotificationHandler) GetPreference(w http.ResponseWriter, r *http.Request) {
	pref, err := h.uc.GetUserPreference(r.Context(), middleware.UserID(r))
	if err != nil {
		response.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.JSON(w, http.StatusOK, pref)
}

func (h *NotificationHandler) UpdatePreference(w http.ResponseWriter, r *http.Request) {
	var pref domain.Preference
	if err := json.NewDecoder(r.Body).Decode(&pref); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid input")
		return
	}

	updated, err := h.uc.UpdateUserPreference(r.Context(), middleware.UserID(r), &pref)
	if err != nil {
		response.Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.JSON(w, http.StatusOK, updated)
}
