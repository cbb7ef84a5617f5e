package web

import "net/http"

type verificationStartRequest struct {
	CallID      string `json:"callId"`
	PhoneNumber string `json:"phoneNumber"`
}

// apiVerificationStart handles POST /api/verification/start.
func (h *Handler) apiVerificationStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.config.VerifyEngine == nil {
		h.jsonError(w, "Verification is not configured", http.StatusServiceUnavailable)
		return
	}

	var req verificationStartRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if req.CallID == "" {
		h.jsonError(w, "Missing required parameter: callId", http.StatusBadRequest)
		return
	}

	sessionID := h.config.VerifyEngine.StartVerification(req.CallID, req.PhoneNumber)
	h.jsonResponse(w, map[string]any{
		"success":   true,
		"sessionId": sessionID,
	})
}

// apiVerificationSessions handles GET /api/verification/sessions.
func (h *Handler) apiVerificationSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.config.VerifyEngine == nil {
		h.jsonError(w, "Verification is not configured", http.StatusServiceUnavailable)
		return
	}
	h.jsonResponse(w, h.config.VerifyEngine.GetAllSessions())
}

// apiVerificationSession handles GET /api/verification/sessions/{id}.
func (h *Handler) apiVerificationSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.config.VerifyEngine == nil {
		h.jsonError(w, "Verification is not configured", http.StatusServiceUnavailable)
		return
	}

	id := pathID(r, "/api/verification/sessions/")
	if id == "" {
		h.jsonError(w, "Session ID required", http.StatusBadRequest)
		return
	}

	session, ok := h.config.VerifyEngine.GetSessionResults(id)
	if !ok {
		h.jsonError(w, "Session not found", http.StatusNotFound)
		return
	}
	h.jsonResponse(w, session)
}
