package api

import (
	"net/http"

	"github.com/wallet-sync/internal/models"
	"github.com/wallet-sync/internal/notification"
	"github.com/wallet-sync/internal/types"
)

// PreferencesRequest is the body of PUT /api/notifications/preferences.
// Omitted fields are left unchanged.
type PreferencesRequest struct {
	PaymentReceived   *bool `json:"paymentReceived,omitempty"`
	WithdrawCompleted *bool `json:"withdrawCompleted,omitempty"`
}

// NotificationStatusResponse is the body of GET /api/notifications/status
type NotificationStatusResponse struct {
	Supported   bool                           `json:"supported"`
	Permission  types.Permission               `json:"permission"`
	Preferences models.NotificationPreferences `json:"preferences"`
	Server      *models.PushStatus             `json:"server,omitempty"`
	ServerError string                         `json:"serverError,omitempty"`
}

// handleGetPreferences handles GET /api/notifications/preferences
func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.notifications.Preferences())
}

// handleUpdatePreferences handles PUT /api/notifications/preferences
func (s *Server) handleUpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req PreferencesRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid JSON body", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	prefs, err := s.notifications.UpdatePreferences(r.Context(), notification.PreferenceUpdate{
		PaymentReceived:   req.PaymentReceived,
		WithdrawCompleted: req.WithdrawCompleted,
	})
	if err != nil {
		s.logger.WithError(err).Error("failed to update notification preferences")
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, prefs)
}

// handleSubscribe handles POST /api/notifications/subscription
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if err := s.notifications.Subscribe(r.Context()); err != nil {
		s.logger.WithError(err).Warn("push subscribe failed")
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.notifications.Preferences())
}

// handleUnsubscribe handles DELETE /api/notifications/subscription
func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	if err := s.notifications.Unsubscribe(r.Context()); err != nil {
		s.logger.WithError(err).Warn("push unsubscribe failed")
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, s.notifications.Preferences())
}

// handleNotificationStatus handles GET /api/notifications/status. A backend
// failure is reported in the body rather than failing the whole request.
func (s *Server) handleNotificationStatus(w http.ResponseWriter, r *http.Request) {
	resp := NotificationStatusResponse{
		Supported:   s.notifications.IsSupported(),
		Permission:  s.notifications.Permission(),
		Preferences: s.notifications.Preferences(),
	}

	status, err := s.notifications.ServerStatus(r.Context())
	if err != nil {
		resp.ServerError = err.Error()
	} else {
		resp.Server = status
	}
	respondJSON(w, http.StatusOK, resp)
}
