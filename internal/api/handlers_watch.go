package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/wallet-sync/internal/models"
)

// handleWatchPayment handles POST /api/payments/{id}/watch. The payment's
// current record from wallet state seeds the watcher when one exists.
func (s *Server) handleWatchPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := paymentID(w, r)
	if !ok {
		return
	}

	var initial *models.PaymentRecord
	if p, found := models.FindPayment(s.sync.State().Payments, id); found {
		initial = &p
	}

	status, created, err := s.watchers.Track(id, initial)
	if err != nil {
		s.logger.WithError(err).WithField("paymentId", id).Warn("failed to watch payment")
		respondServiceError(w, err)
		return
	}

	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	respondJSON(w, code, status)
}

// handleGetWatch handles GET /api/payments/{id}/watch
func (s *Server) handleGetWatch(w http.ResponseWriter, r *http.Request) {
	id, ok := paymentID(w, r)
	if !ok {
		return
	}

	status, found := s.watchers.Lookup(id)
	if !found {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "No watcher for payment", map[string]interface{}{
			"paymentId": id,
		})
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// handleUnwatchPayment handles DELETE /api/payments/{id}/watch
func (s *Server) handleUnwatchPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := paymentID(w, r)
	if !ok {
		return
	}

	if !s.watchers.Unwatch(id) {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "No watcher for payment", map[string]interface{}{
			"paymentId": id,
		})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func paymentID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(mux.Vars(r)["id"])
	if id == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Payment id is required", nil)
		return "", false
	}
	return id, true
}
