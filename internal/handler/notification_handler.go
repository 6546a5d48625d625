// internal/handler/notification_handler.go
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/unclebandit/retention-backend/internal/errors"
	"github.com/unclebandit/retention-backend/internal/httpx"
	"github.com/unclebandit/retention-backend/internal/middleware"
	"github.com/unclebandit/retention-backend/internal/notification"
)

// Sessions is the session registry the feed handlers use.
type Sessions interface {
	Get(ctx context.Context, userID string) (*notification.Session, error)
	End(userID string)
}

// NotificationHandler serves the caller's notification feed.
type NotificationHandler struct {
	Sessions Sessions
}

func NewNotificationHandler(sessions Sessions) *NotificationHandler {
	return &NotificationHandler{Sessions: sessions}
}

// session resolves the caller's session, answering the request itself on failure.
func (h *NotificationHandler) session(w http.ResponseWriter, r *http.Request) (*notification.Session, bool) {
	s, err := h.Sessions.Get(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		httpx.WriteError(w, err)
		return nil, false
	}
	return s, true
}

// GetNotifications returns the feed, starting a session on first use
func (h *NotificationHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, s.Snapshot())
}

func (h *NotificationHandler) MarkAllAsRead(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.MarkAllAsRead()
	httpx.WriteJSON(w, http.StatusOK, s.Snapshot())
}

func (h *NotificationHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if !s.MarkAsRead(id) {
		httpx.WriteError(w, appErrors.NotFound("notification", id))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, s.Snapshot())
}

// Refresh rebuilds the feed from the latest stored rows.
func (h *NotificationHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Refresh(r.Context()); err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, s.Snapshot())
}

// EndSession drops the caller's session and its live subscriptions.
func (h *NotificationHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	h.Sessions.End(middleware.UserIDFromContext(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}
