package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

// scanRequest is a complete barcode submitted by the kiosk UI.
type scanRequest struct {
	Code string `json:"code"`
}

// keysRequest is raw keyboard-wedge text. Each rune is fed through the
// controller's keystroke buffer; "\n" flushes the buffer immediately.
type keysRequest struct {
	Text string `json:"text"`
}

// handleInjectScan submits a complete barcode to the controller.
//
// The code joins the same pipeline as hardware scanner lines: it is
// classified, debounced, and applied to the open item asynchronously.
// Malformed or duplicate codes are absorbed by the pipeline, so this
// endpoint only rejects empty input.
func (s *Server) handleInjectScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	code := strings.TrimSpace(req.Code)
	if code == "" {
		writeBadRequest(w, "code is required")
		return
	}

	s.ctrl.SubmitScan(code)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"accepted": true,
	})
}

// handleInjectKeys feeds keyboard-wedge text through the keystroke buffer.
func (s *Server) handleInjectKeys(w http.ResponseWriter, r *http.Request) {
	var req keysRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Text == "" {
		writeBadRequest(w, "text is required")
		return
	}

	for _, c := range req.Text {
		s.ctrl.SubmitKey(c)
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"accepted": true,
		"length":   len([]rune(req.Text)),
	})
}

// handleTestPass sends the pass test command to the hardware.
func (s *Server) handleTestPass(w http.ResponseWriter, r *http.Request) {
	s.handleTest(w, r, true)
}

// handleTestFail sends the fail test command to the hardware.
func (s *Server) handleTestFail(w http.ResponseWriter, r *http.Request) {
	s.handleTest(w, r, false)
}

// handleTestStatus asks the hardware to report its state. The reply
// comes back over the WebSocket hub as hardware events.
func (s *Server) handleTestStatus(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.SendStatus(r.Context()); err != nil {
		s.logger.Error("status command failed", "error", err)
		writeInternalError(w, "failed to send status command")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sent": true,
	})
}

func (s *Server) handleTest(w http.ResponseWriter, r *http.Request, pass bool) {
	if err := s.ctrl.SendTest(r.Context(), pass); err != nil {
		s.logger.Error("test command failed", "error", err, "pass", pass)
		writeInternalError(w, "failed to send test command")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sent": true,
		"pass": pass,
	})
}
