package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/envsort/envsort-core/internal/controller"
	"github.com/envsort/envsort-core/internal/validate"
)

// handleGetSettings returns the current validation settings.
func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Settings())
}

// handleUpdateSettings replaces the validation settings.
//
// The controller refuses updates while an item is open; that surfaces
// as 409 so the UI can retry once the item completes.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var settings validate.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.ctrl.UpdateSettings(r.Context(), settings); err != nil {
		if errors.Is(err, controller.ErrItemInFlight) {
			writeError(w, http.StatusConflict, ErrCodeConflict, "an item is in progress, settings are locked")
			return
		}
		s.logger.Error("settings update failed", "error", err)
		writeInternalError(w, "failed to update settings")
		return
	}

	writeJSON(w, http.StatusOK, settings)
}

// handleGetReference returns the loaded reference dataset.
func (s *Server) handleGetReference(w http.ResponseWriter, _ *http.Request) {
	if s.reference == nil {
		writeInternalError(w, "reference dataset not configured")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": s.reference.Entries(),
		"count":   s.reference.Len(),
	})
}

// handleReloadReference re-reads the reference dataset from disk.
// Used after an operator edits the file without restarting the service.
func (s *Server) handleReloadReference(w http.ResponseWriter, _ *http.Request) {
	if s.reference == nil {
		writeInternalError(w, "reference dataset not configured")
		return
	}

	if err := s.reference.Reload(); err != nil {
		s.logger.Error("reference reload failed", "error", err)
		writeInternalError(w, "failed to reload reference dataset")
		return
	}

	s.logger.Info("reference dataset reloaded", "entries", s.reference.Len())
	writeJSON(w, http.StatusOK, map[string]any{
		"reloaded": true,
		"count":    s.reference.Len(),
	})
}
