package api

import (
	"io"
	"net/http"

	"github.com/wallet-sync/internal/models"
	"github.com/wallet-sync/internal/serviceworker"
)

// maxPushPayload is the largest payload a push service delivers
const maxPushPayload = 4096

// PushReceivedResponse is the body of POST /api/push
type PushReceivedResponse struct {
	Shown bool   `json:"shown"`
	Title string `json:"title"`
	Tag   string `json:"tag"`
}

// ControlMessageResponse is the body of POST /api/push/control
type ControlMessageResponse struct {
	Type serviceworker.MessageType `json:"type"`
}

// NotificationClickRequest is the body of POST /api/notifications/click
type NotificationClickRequest struct {
	Action       string                       `json:"action"`
	Notification models.NotificationOptions   `json:"notification"`
	Windows      []serviceworker.ClientWindow `json:"windows"`
}

// handlePushReceived handles POST /api/push, the target the push distributor
// delivers to. The payload is decoded with defaults and shown when
// notifications are enabled.
func (s *Server) handlePushReceived(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPushPayload))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, ErrCodeInvalidInput, "Push payload too large", map[string]interface{}{
			"maxBytes": maxPushPayload,
		})
		return
	}

	push := serviceworker.ParsePushPayload(body)
	shown, err := s.notifications.ShowNotification(r.Context(), push.Title, push.Options)
	if err != nil {
		s.logger.WithError(err).WithField("tag", push.Options.Tag).Warn("failed to show push notification")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, PushReceivedResponse{
		Shown: shown,
		Title: push.Title,
		Tag:   push.Options.Tag,
	})
}

// handleControlMessage handles POST /api/push/control. The headless
// registration is always active, so SKIP_WAITING is acknowledged as is.
func (s *Server) handleControlMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPushPayload))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, ErrCodeInvalidInput, "Message too large", nil)
		return
	}

	msgType, ok := serviceworker.ParseControlMessage(body)
	if !ok {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Unknown control message", nil)
		return
	}
	s.logger.WithField("type", msgType).Debug("control message received")
	respondJSON(w, http.StatusAccepted, ControlMessageResponse{Type: msgType})
}

// handleNotificationClick handles POST /api/notifications/click and tells
// the caller whether to close, focus a window or open one
func (s *Server) handleNotificationClick(w http.ResponseWriter, r *http.Request) {
	var req NotificationClickRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid JSON body", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	respondJSON(w, http.StatusOK, serviceworker.ResolveClick(req.Windows, req.Action, req.Notification))
}
