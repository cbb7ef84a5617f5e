// Package web exposes the gateway's REST API: authentication, entity CRUD,
// outbound call control, provider webhooks, and verification sessions.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/voxgate/voxgate/internal/auth"
	"github.com/voxgate/voxgate/internal/observability"
	"github.com/voxgate/voxgate/internal/providers"
	"github.com/voxgate/voxgate/internal/storage"
	"github.com/voxgate/voxgate/internal/verify"
	"github.com/voxgate/voxgate/internal/voice"
)

// Transcriber converts recorded audio to text. *providers.Deepgram
// satisfies it.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, contentType string) (*providers.Transcription, error)
}

// WebhookVerifier checks a provider webhook's request signature.
// *providers.SignalWire satisfies it.
type WebhookVerifier interface {
	VerifyWebhook(signature, fullURL, body string) (bool, error)
}

// Config holds API handler dependencies.
type Config struct {
	// AuthService validates bearer tokens. When disabled, requests pass
	// through unauthenticated and handlers fall back to query-parameter
	// user scoping.
	AuthService *auth.Service

	// Stores provides entity persistence (required).
	Stores storage.StoreSet

	// CallManager drives outbound calls (optional; call endpoints return
	// 503 without it).
	CallManager *voice.Manager

	// VerifyEngine runs verification sessions (optional; verification
	// endpoints return 503 without it).
	VerifyEngine *verify.Engine

	// Transcriber converts uploaded audio to text (optional; the
	// transcribe endpoint returns 503 without it).
	Transcriber Transcriber

	// WebhookVerifier authenticates status webhooks (optional; without it
	// webhooks are accepted unsigned, the dev-mode posture).
	WebhookVerifier WebhookVerifier

	// PublicURL is the externally reachable base URL the provider signs
	// webhook requests against. Falls back to the request host.
	PublicURL string

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Handler is the API HTTP handler.
type Handler struct {
	config *Config
	mux    *http.ServeMux
}

// NewHandler creates the API handler.
func NewHandler(cfg *Config) (*Handler, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	h := &Handler{
		config: cfg,
		mux:    http.NewServeMux(),
	}
	h.setupRoutes()
	return h, nil
}

// setupRoutes configures all HTTP routes. Webhooks, auth entry points, and
// health stay open; everything else requires a valid token when auth is
// enabled.
func (h *Handler) setupRoutes() {
	// Public surface
	h.mux.HandleFunc("/api/health", h.apiHealth)
	h.mux.HandleFunc("/api/auth/signup", h.apiSignup)
	h.mux.HandleFunc("/api/auth/signin", h.apiSignin)
	h.mux.HandleFunc("/api/call-status", h.apiCallStatus)
	h.mux.HandleFunc("/api/signalwire-webhook", h.apiCallStatus)

	// Authenticated surface
	h.mux.Handle("/api/auth/signout", h.protected(h.apiSignout))
	h.mux.Handle("/api/auth/user", h.protected(h.apiCurrentUser))

	h.mux.Handle("/api/assistants", h.protected(h.apiAssistants))
	h.mux.Handle("/api/assistants/", h.protected(h.apiAssistant))
	h.mux.Handle("/api/voice-agents", h.protected(h.apiVoiceAgents))
	h.mux.Handle("/api/voice-agents/", h.protected(h.apiVoiceAgent))
	h.mux.Handle("/api/campaigns", h.protected(h.apiCampaigns))
	h.mux.Handle("/api/campaigns/", h.protected(h.apiCampaign))
	h.mux.Handle("/api/contacts", h.protected(h.apiContacts))
	h.mux.Handle("/api/contacts/", h.protected(h.apiContact))
	h.mux.Handle("/api/calls", h.protected(h.apiCalls))
	h.mux.Handle("/api/calls/", h.protected(h.apiCall))

	h.mux.Handle("/api/make-call", h.protected(h.apiMakeCall))
	h.mux.Handle("/api/transcribe", h.protected(h.apiTranscribe))

	h.mux.Handle("/api/verification/start", h.protected(h.apiVerificationStart))
	h.mux.Handle("/api/verification/sessions", h.protected(h.apiVerificationSessions))
	h.mux.Handle("/api/verification/sessions/", h.protected(h.apiVerificationSession))
}

// protected wraps a handler with bearer-token auth when enabled.
func (h *Handler) protected(fn http.HandlerFunc) http.Handler {
	if h.config.AuthService == nil || !h.config.AuthService.Enabled() {
		return fn
	}
	return auth.Middleware(h.config.AuthService, h.config.Logger)(fn)
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Mount returns the handler with logging and metrics middleware applied.
func (h *Handler) Mount() http.Handler {
	var handler http.Handler = h
	handler = MetricsMiddleware(h.config.Metrics)(handler)
	handler = LoggingMiddleware(h.config.Logger)(handler)
	return handler
}

func (h *Handler) apiHealth(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, map[string]string{"status": "healthy", "service": "voxgate"})
}

func (h *Handler) jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.config.Logger.Error("json encode error", "error", err)
	}
}

func (h *Handler) jsonStatus(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.config.Logger.Error("json encode error", "error", err)
	}
}

// jsonError writes a JSON error response.
func (h *Handler) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// decodeJSON parses the request body into dst, rejecting unknown noise.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.jsonError(w, "Invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}
