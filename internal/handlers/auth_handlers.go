package handlers

import (
	"errors"
	"net/http"

	"chat-gateway/internal/auth"
	"chat-gateway/internal/models"
	"chat-gateway/pkg/logger"
)

// Disconnector closes an actor's live realtime connections.
type Disconnector interface {
	DisconnectActor(actorID string) error
}

type AuthHandlers struct {
	authService *auth.Service
	realtime    Disconnector
}

func NewAuthHandlers(authService *auth.Service, realtime Disconnector) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		realtime:    realtime,
	}
}

func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if !decode(w, r, &req) {
		return
	}

	response, err := h.authService.Register(r.Context(), &req)
	if err != nil {
		logger.Error("Registration error: %v", err)
		if errors.Is(err, models.ErrAlreadyExists) {
			writeError(w, http.StatusConflict, "email already used")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, response)
}

func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if !decode(w, r, &req) {
		return
	}

	response, err := h.authService.Login(r.Context(), &req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		fail(w, "Login", err)
		return
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *AuthHandlers) Refresh(w http.ResponseWriter, r *http.Request) {
	var req models.RefreshRequest
	if !decode(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refreshToken is required")
		return
	}

	pair, err := h.authService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		fail(w, "Refresh", err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// Logout revokes the caller's refresh tokens and drops their realtime
// connections. Access tokens stay valid until they expire.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	userID := UserID(r.Context())
	if err := h.authService.Logout(r.Context(), userID); err != nil {
		fail(w, "Logout", err)
		return
	}
	if err := h.realtime.DisconnectActor(userID); err != nil {
		logger.Error("Error disconnecting %s: %v", userID, err)
	}
	w.WriteHeader(http.StatusNoContent)
}
