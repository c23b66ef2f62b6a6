package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/envsort/envsort-core/internal/controller"
)

// defaultSessionListLimit caps the sessions listing when no limit is given.
const defaultSessionListLimit = 50

// handleStatus returns the controller snapshot plus link state.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := s.ctrl.Status()

	resp := map[string]any{
		"controller": status,
	}
	if s.hardware != nil {
		resp["hardware"] = s.hardware.Stats()
	}
	if s.mqtt != nil {
		resp["mqtt_connected"] = s.mqtt.IsConnected()
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleStartSession opens a scanning session.
func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := s.ctrl.StartSession(r.Context())
	if err != nil {
		if errors.Is(err, controller.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, ErrCodeConflict, "session already running")
			return
		}
		s.logger.Error("session start failed", "error", err)
		writeInternalError(w, "failed to start session")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id": sessionID,
	})
}

// handleStopSession closes the open session and writes the session file.
// Stopping with no session open succeeds and reports nothing written.
func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	filePath, err := s.ctrl.StopSession(r.Context())
	if err != nil {
		s.logger.Error("session stop failed", "error", err)
		writeInternalError(w, "failed to stop session")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"file_path": filePath,
	})
}

// handleListSessions returns session history from the local database.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if s.sessionRepo == nil {
		writeInternalError(w, "session history not configured")
		return
	}

	limit := defaultSessionListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	sessions, err := s.sessionRepo.ListSessions(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list sessions", "error", err)
		writeInternalError(w, "failed to list sessions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// handleListSessionItems returns the items recorded against one session.
func (s *Server) handleListSessionItems(w http.ResponseWriter, r *http.Request) {
	if s.sessionRepo == nil {
		writeInternalError(w, "session history not configured")
		return
	}

	sessionID := chi.URLParam(r, "id")
	if sessionID == "" {
		writeBadRequest(w, "session id is required")
		return
	}

	items, err := s.sessionRepo.ListItems(r.Context(), sessionID)
	if err != nil {
		s.logger.Error("failed to list session items", "error", err, "session_id", sessionID)
		writeInternalError(w, "failed to list session items")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"items":      items,
		"count":      len(items),
	})
}
