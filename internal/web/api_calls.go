package web

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/voxgate/voxgate/internal/providers"
	"github.com/voxgate/voxgate/internal/storage"
	"github.com/voxgate/voxgate/internal/voice"
)

// apiCalls handles GET /api/calls.
func (h *Handler) apiCalls(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	list, err := h.config.Stores.Calls.List(r.Context(), h.requestUserID(r))
	if err != nil {
		h.jsonError(w, "Failed to list calls", http.StatusInternalServerError)
		return
	}
	h.jsonResponse(w, list)
}

// apiCall handles GET /api/calls/{id}.
func (h *Handler) apiCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := pathID(r, "/api/calls/")
	if id == "" {
		h.jsonError(w, "Call ID required", http.StatusBadRequest)
		return
	}

	call, err := h.config.Stores.Calls.Get(r.Context(), id)
	if err != nil {
		h.entityError(w, err, "Call")
		return
	}
	h.jsonResponse(w, call)
}

type makeCallRequest struct {
	To          string `json:"to"`
	AssistantID string `json:"assistantId"`
	CampaignID  string `json:"campaignId"`
	ContactID   string `json:"contactId"`
}

// apiMakeCall handles POST /api/make-call: it places an outbound call
// through the call manager and answers with the provider SID.
func (h *Handler) apiMakeCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.config.CallManager == nil {
		h.jsonError(w, "Telephony is not configured", http.StatusServiceUnavailable)
		return
	}

	var req makeCallRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if req.To == "" {
		h.jsonError(w, "Missing required parameter: to", http.StatusBadRequest)
		return
	}

	call, err := h.config.CallManager.StartCall(r.Context(), &voice.StartCallInput{
		UserID:      h.requestUserID(r),
		AssistantID: req.AssistantID,
		CampaignID:  req.CampaignID,
		ContactID:   req.ContactID,
		To:          req.To,
	})
	if err != nil {
		h.config.Logger.Error("make call failed", "to", req.To, "error", err)
		h.jsonStatus(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	h.jsonResponse(w, map[string]any{
		"success":  true,
		"call_sid": call.ProviderCallID,
		"call_id":  call.ID,
	})
}

// maxWebhookBytes bounds a status webhook form body.
const maxWebhookBytes = 64 << 10

// apiCallStatus handles the provider status webhooks posted to
// /api/call-status and /api/signalwire-webhook. Both carry the same form
// fields. Signed requests are verified when a verifier is configured; an
// unknown SID is acknowledged so the provider stops retrying.
func (h *Handler) apiCallStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.config.CallManager == nil {
		h.jsonError(w, "Telephony is not configured", http.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		h.jsonError(w, "Invalid form body", http.StatusBadRequest)
		return
	}

	if h.config.WebhookVerifier != nil {
		signature := r.Header.Get("X-Twilio-Signature")
		ok, verr := h.config.WebhookVerifier.VerifyWebhook(signature, h.webhookURL(r), string(body))
		if verr != nil {
			h.jsonError(w, "Invalid form body", http.StatusBadRequest)
			return
		}
		if !ok {
			h.config.Logger.Warn("status webhook signature rejected", "remote_addr", r.RemoteAddr)
			h.jsonError(w, "Invalid signature", http.StatusForbidden)
			return
		}
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		h.jsonError(w, "Invalid form body", http.StatusBadRequest)
		return
	}
	event, err := providers.ParseStatusWebhook(form)
	if err != nil {
		h.jsonError(w, "Missing CallSid", http.StatusBadRequest)
		return
	}

	if _, err := h.config.CallManager.ApplyStatus(r.Context(), event.CallSID, event.Status); err != nil {
		if errors.Is(err, voice.ErrCallNotFound) || errors.Is(err, storage.ErrNotFound) {
			h.config.Logger.Warn("status webhook for unknown call", "call_sid", event.CallSID)
			h.jsonResponse(w, map[string]bool{"success": true})
			return
		}
		h.jsonStatus(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	h.jsonResponse(w, map[string]bool{"success": true})
}

// webhookURL reconstructs the URL the provider signed: the configured public
// base when set, otherwise the request's own host.
func (h *Handler) webhookURL(r *http.Request) string {
	if base := strings.TrimSuffix(h.config.PublicURL, "/"); base != "" {
		return base + r.URL.RequestURI()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
