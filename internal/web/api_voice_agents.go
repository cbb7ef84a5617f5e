package web

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/voxgate/voxgate/pkg/models"
)

// apiVoiceAgents handles GET and POST /api/voice-agents.
func (h *Handler) apiVoiceAgents(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := h.config.Stores.VoiceAgents.List(r.Context(), h.requestUserID(r))
		if err != nil {
			h.jsonError(w, "Failed to list voice agents", http.StatusInternalServerError)
			return
		}
		h.jsonResponse(w, list)

	case http.MethodPost:
		var a models.VoiceAgent
		if !h.decodeJSON(w, r, &a) {
			return
		}
		if a.Name == "" {
			h.jsonError(w, "Name is required", http.StatusBadRequest)
			return
		}
		a.ID = uuid.New().String()
		if uid := h.requestUserID(r); uid != "" {
			a.UserID = uid
		}
		now := time.Now()
		a.CreatedAt = now
		a.UpdatedAt = now
		if err := h.config.Stores.VoiceAgents.Create(r.Context(), &a); err != nil {
			h.jsonError(w, "Failed to create voice agent", http.StatusInternalServerError)
			return
		}
		h.jsonStatus(w, http.StatusCreated, &a)

	default:
		h.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// apiVoiceAgent handles GET, PUT, and DELETE /api/voice-agents/{id}.
func (h *Handler) apiVoiceAgent(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "/api/voice-agents/")
	if id == "" {
		h.jsonError(w, "Voice agent ID required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		a, err := h.config.Stores.VoiceAgents.Get(r.Context(), id)
		if err != nil {
			h.entityError(w, err, "Voice agent")
			return
		}
		h.jsonResponse(w, a)

	case http.MethodPut:
		existing, err := h.config.Stores.VoiceAgents.Get(r.Context(), id)
		if err != nil {
			h.entityError(w, err, "Voice agent")
			return
		}
		var a models.VoiceAgent
		if !h.decodeJSON(w, r, &a) {
			return
		}
		a.ID = existing.ID
		a.UserID = existing.UserID
		a.CreatedAt = existing.CreatedAt
		a.UpdatedAt = time.Now()
		if err := h.config.Stores.VoiceAgents.Update(r.Context(), &a); err != nil {
			h.entityError(w, err, "Voice agent")
			return
		}
		h.jsonResponse(w, &a)

	case http.MethodDelete:
		if err := h.config.Stores.VoiceAgents.Delete(r.Context(), id); err != nil {
			h.entityError(w, err, "Voice agent")
			return
		}
		h.jsonResponse(w, map[string]bool{"success": true})

	default:
		h.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
