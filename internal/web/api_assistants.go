package web

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voxgate/voxgate/internal/storage"
	"github.com/voxgate/voxgate/pkg/models"
)

// pathID extracts the trailing identifier from a route like /api/xs/{id}.
func pathID(r *http.Request, prefix string) string {
	id := strings.TrimPrefix(r.URL.Path, prefix)
	return strings.Trim(id, "/")
}

// apiAssistants handles GET and POST /api/assistants.
func (h *Handler) apiAssistants(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := h.config.Stores.Assistants.List(r.Context(), h.requestUserID(r))
		if err != nil {
			h.jsonError(w, "Failed to list assistants", http.StatusInternalServerError)
			return
		}
		h.jsonResponse(w, list)

	case http.MethodPost:
		var a models.Assistant
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
		if err := h.config.Stores.Assistants.Create(r.Context(), &a); err != nil {
			h.jsonError(w, "Failed to create assistant", http.StatusInternalServerError)
			return
		}
		h.jsonStatus(w, http.StatusCreated, &a)

	default:
		h.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// apiAssistant handles GET, PUT, and DELETE /api/assistants/{id}.
func (h *Handler) apiAssistant(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "/api/assistants/")
	if id == "" {
		h.jsonError(w, "Assistant ID required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		a, err := h.config.Stores.Assistants.Get(r.Context(), id)
		if err != nil {
			h.entityError(w, err, "Assistant")
			return
		}
		h.jsonResponse(w, a)

	case http.MethodPut:
		existing, err := h.config.Stores.Assistants.Get(r.Context(), id)
		if err != nil {
			h.entityError(w, err, "Assistant")
			return
		}
		var a models.Assistant
		if !h.decodeJSON(w, r, &a) {
			return
		}
		a.ID = existing.ID
		a.UserID = existing.UserID
		a.CreatedAt = existing.CreatedAt
		a.UpdatedAt = time.Now()
		if err := h.config.Stores.Assistants.Update(r.Context(), &a); err != nil {
			h.entityError(w, err, "Assistant")
			return
		}
		h.jsonResponse(w, &a)

	case http.MethodDelete:
		if err := h.config.Stores.Assistants.Delete(r.Context(), id); err != nil {
			h.entityError(w, err, "Assistant")
			return
		}
		h.jsonResponse(w, map[string]bool{"success": true})

	default:
		h.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// entityError maps storage errors onto API responses.
func (h *Handler) entityError(w http.ResponseWriter, err error, entity string) {
	if errors.Is(err, storage.ErrNotFound) {
		h.jsonError(w, entity+" not found", http.StatusNotFound)
		return
	}
	h.jsonError(w, "Failed to access "+entity, http.StatusInternalServerError)
}
