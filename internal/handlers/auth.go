package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"deskmemo/internal/auth"
	"deskmemo/internal/logger"
)

// AuthHandler serves login, logout and session checks.
type AuthHandler struct {
	auth *auth.Authenticator
}

func NewAuthHandler(a *auth.Authenticator) *AuthHandler {
	return &AuthHandler{auth: a}
}

type LoginRequest struct {
	Password string `json:"password"`
}

type LoginResponse struct {
	Success   bool   `json:"success"`
	Token     string `json:"token,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
	Message   string `json:"message"`
}

type AuthCheckResponse struct {
	Authenticated bool `json:"authenticated"`
	AuthEnabled   bool `json:"auth_enabled"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if !h.auth.Enabled() {
		writeJSON(w, r, http.StatusOK, LoginResponse{Success: true, Message: "authentication disabled"})
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	token, expires, err := h.auth.Login(r.Context(), req.Password)
	if errors.Is(err, auth.ErrInvalidPassword) {
		logger.FromContext(r.Context()).Warn("Login failed: wrong password")
		writeError(w, r, http.StatusUnauthorized, "invalid password")
		return
	}
	if err != nil {
		internalError(w, r, "failed to issue token", err)
		return
	}

	logger.FromContext(r.Context()).Info("Login succeeded")
	writeJSON(w, r, http.StatusOK, LoginResponse{
		Success:   true,
		Token:     token,
		ExpiresAt: expires.UTC().Format(time.RFC3339),
		Message:   "login succeeded",
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, _ := auth.BearerToken(r.Header.Get("Authorization"))
	if err := h.auth.Logout(r.Context(), token); err != nil {
		internalError(w, r, "failed to revoke token", err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"success": true})
}

func (h *AuthHandler) Check(w http.ResponseWriter, r *http.Request) {
	err := h.auth.Check(r.Context(), r.Header.Get("Authorization"))
	writeJSON(w, r, http.StatusOK, AuthCheckResponse{
		Authenticated: err == nil,
		AuthEnabled:   h.auth.Enabled(),
	})
}
