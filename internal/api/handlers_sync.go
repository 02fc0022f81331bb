package api

import (
	"net/http"

	"github.com/wallet-sync/internal/types"
)

// RefreshRequest is the optional body of POST /api/refresh
type RefreshRequest struct {
	Force bool `json:"force"`
}

// RefreshResponse reports whether a cycle ran for this request
type RefreshResponse struct {
	Refreshed bool `json:"refreshed"`
}

// VisibilityRequest is the body of PUT /api/visibility
type VisibilityRequest struct {
	Visibility string `json:"visibility"`
}

// handleGetState handles GET /api/state
func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.sync.State())
}

// handleGetStatus handles GET /api/status
func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sync":     s.sync.Status(),
		"watchers": s.watchers.Stats(),
	})
}

// handleRefresh handles POST /api/refresh. A refresh dropped because another
// cycle is in flight is still a 200 with refreshed=false.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := parseOptionalJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid JSON body", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	if !s.sync.Status().Active {
		respondError(w, http.StatusConflict, ErrCodeConflict, "No active sync session", nil)
		return
	}

	refreshed := s.sync.Refresh(r.Context(), req.Force)
	respondJSON(w, http.StatusOK, RefreshResponse{Refreshed: refreshed})
}

// handleSetVisibility handles PUT /api/visibility
func (s *Server) handleSetVisibility(w http.ResponseWriter, r *http.Request) {
	var req VisibilityRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid JSON body", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	v, ok := types.ParseVisibility(req.Visibility)
	if !ok {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid visibility", map[string]interface{}{
			"visibility": req.Visibility,
			"allowed":    []string{string(types.VisibilityForeground), string(types.VisibilityBackground)},
		})
		return
	}

	s.sync.SetVisibility(v)
	respondJSON(w, http.StatusOK, s.sync.Status())
}

// handlePublicStats handles GET /api/public-stats. The upstream fetch is
// best-effort and bounded, so failures surface as a gateway error.
func (s *Server) handlePublicStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats.GetPublicStats(r.Context())
	if err != nil {
		s.logger.WithError(err).Debug("public stats unavailable")
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}
