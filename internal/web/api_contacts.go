package web

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/voxgate/voxgate/pkg/models"
)

// apiContacts handles GET and POST /api/contacts. Listing accepts a
// campaignId query filter.
func (h *Handler) apiContacts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		campaignID := r.URL.Query().Get("campaignId")
		list, err := h.config.Stores.Contacts.List(r.Context(), h.requestUserID(r), campaignID)
		if err != nil {
			h.jsonError(w, "Failed to list contacts", http.StatusInternalServerError)
			return
		}
		h.jsonResponse(w, list)

	case http.MethodPost:
		var c models.Contact
		if !h.decodeJSON(w, r, &c) {
			return
		}
		if c.PhoneNumber == "" {
			h.jsonError(w, "Phone number is required", http.StatusBadRequest)
			return
		}
		c.ID = uuid.New().String()
		if uid := h.requestUserID(r); uid != "" {
			c.UserID = uid
		}
		now := time.Now()
		c.CreatedAt = now
		c.UpdatedAt = now
		if err := h.config.Stores.Contacts.Create(r.Context(), &c); err != nil {
			h.jsonError(w, "Failed to create contact", http.StatusInternalServerError)
			return
		}
		h.jsonStatus(w, http.StatusCreated, &c)

	default:
		h.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// apiContact handles GET and DELETE /api/contacts/{id}.
func (h *Handler) apiContact(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "/api/contacts/")
	if id == "" {
		h.jsonError(w, "Contact ID required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		c, err := h.config.Stores.Contacts.Get(r.Context(), id)
		if err != nil {
			h.entityError(w, err, "Contact")
			return
		}
		h.jsonResponse(w, c)

	case http.MethodDelete:
		if err := h.config.Stores.Contacts.Delete(r.Context(), id); err != nil {
			h.entityError(w, err, "Contact")
			return
		}
		h.jsonResponse(w, map[string]bool{"success": true})

	default:
		h.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
