package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/voxgate/voxgate/internal/auth"
	"github.com/voxgate/voxgate/internal/storage"
	"github.com/voxgate/voxgate/pkg/models"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	User  *models.User `json:"user"`
	Token string       `json:"token,omitempty"`
}

// apiSignup handles POST /api/auth/signup.
func (h *Handler) apiSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req credentialsRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		h.jsonError(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.jsonError(w, "Failed to create account", http.StatusInternalServerError)
		return
	}

	now := time.Now()
	user := &models.User{
		ID:           uuid.New().String(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.config.Stores.Users.Create(r.Context(), user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			h.jsonError(w, "Username already taken", http.StatusConflict)
			return
		}
		h.jsonError(w, "Failed to create account", http.StatusInternalServerError)
		return
	}

	h.jsonStatus(w, http.StatusCreated, authResponse{User: user, Token: h.issueToken(user)})
}

// apiSignin handles POST /api/auth/signin.
func (h *Handler) apiSignin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req credentialsRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	user, err := h.config.Stores.Users.GetByUsername(r.Context(), req.Username)
	if err != nil || !auth.VerifyPassword(user.PasswordHash, req.Password) {
		h.jsonError(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	h.jsonResponse(w, authResponse{User: user, Token: h.issueToken(user)})
}

// apiSignout handles POST /api/auth/signout. Tokens are stateless; the
// client discards its copy.
func (h *Handler) apiSignout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.jsonResponse(w, map[string]bool{"success": true})
}

// apiCurrentUser handles GET /api/auth/user.
func (h *Handler) apiCurrentUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.jsonError(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	// The token only carries identity; refresh the rest from storage.
	stored, err := h.config.Stores.Users.Get(r.Context(), user.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.jsonError(w, "User no longer exists", http.StatusUnauthorized)
			return
		}
		h.jsonError(w, "Failed to load user", http.StatusInternalServerError)
		return
	}
	h.jsonResponse(w, stored)
}

func (h *Handler) issueToken(user *models.User) string {
	if h.config.AuthService == nil || !h.config.AuthService.Enabled() {
		return ""
	}
	token, err := h.config.AuthService.GenerateToken(user)
	if err != nil {
		h.config.Logger.Error("token generation failed", "user_id", user.ID, "error", err)
		return ""
	}
	return token
}

// requestUserID resolves the scoping user: the authenticated identity when
// present, else the userId query parameter (auth-disabled deployments).
func (h *Handler) requestUserID(r *http.Request) string {
	if user, ok := auth.UserFromContext(r.Context()); ok {
		return user.ID
	}
	return r.URL.Query().Get("userId")
}
