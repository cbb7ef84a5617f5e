package web

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/voxgate/voxgate/pkg/models"
)

// apiCampaigns handles GET and POST /api/campaigns.
func (h *Handler) apiCampaigns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		list, err := h.config.Stores.Campaigns.List(r.Context(), h.requestUserID(r))
		if err != nil {
			h.jsonError(w, "Failed to list campaigns", http.StatusInternalServerError)
			return
		}
		h.jsonResponse(w, list)

	case http.MethodPost:
		var c models.Campaign
		if !h.decodeJSON(w, r, &c) {
			return
		}
		if c.Name == "" {
			h.jsonError(w, "Name is required", http.StatusBadRequest)
			return
		}
		c.ID = uuid.New().String()
		if uid := h.requestUserID(r); uid != "" {
			c.UserID = uid
		}
		if c.Status == "" {
			c.Status = models.CampaignStatusDraft
		}
		now := time.Now()
		c.CreatedAt = now
		c.UpdatedAt = now
		if err := h.config.Stores.Campaigns.Create(r.Context(), &c); err != nil {
			h.jsonError(w, "Failed to create campaign", http.StatusInternalServerError)
			return
		}
		h.jsonStatus(w, http.StatusCreated, &c)

	default:
		h.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// apiCampaign handles GET, PUT, and DELETE /api/campaigns/{id}.
func (h *Handler) apiCampaign(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "/api/campaigns/")
	if id == "" {
		h.jsonError(w, "Campaign ID required", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		c, err := h.config.Stores.Campaigns.Get(r.Context(), id)
		if err != nil {
			h.entityError(w, err, "Campaign")
			return
		}
		h.jsonResponse(w, c)

	case http.MethodPut:
		existing, err := h.config.Stores.Campaigns.Get(r.Context(), id)
		if err != nil {
			h.entityError(w, err, "Campaign")
			return
		}
		var c models.Campaign
		if !h.decodeJSON(w, r, &c) {
			return
		}
		c.ID = existing.ID
		c.UserID = existing.UserID
		c.CreatedAt = existing.CreatedAt
		c.UpdatedAt = time.Now()
		if c.Status == "" {
			c.Status = existing.Status
		}
		if err := h.config.Stores.Campaigns.Update(r.Context(), &c); err != nil {
			h.entityError(w, err, "Campaign")
			return
		}
		h.jsonResponse(w, &c)

	case http.MethodDelete:
		if err := h.config.Stores.Campaigns.Delete(r.Context(), id); err != nil {
			h.entityError(w, err, "Campaign")
			return
		}
		h.jsonResponse(w, map[string]bool{"success": true})

	default:
		h.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
