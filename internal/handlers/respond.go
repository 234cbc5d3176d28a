package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"chat-gateway/internal/auth"
	"chat-gateway/internal/gateway"
	"chat-gateway/internal/models"
	"chat-gateway/internal/services"
	"chat-gateway/pkg/logger"

	"github.com/gorilla/websocket"
)

// bearerSubprotocol lets browser clients, which cannot set headers on a
// websocket handshake, pass the token as the subprotocol after "bearer".
const bearerSubprotocol = "bearer"

// ExtractToken finds the bearer token of a request: the Authorization
// header first, then the handshake subprotocol pair, then the token query
// parameter. A "Bearer " prefix is stripped from whichever is used.
func ExtractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		return stripBearer(h)
	}
	protocols := websocket.Subprotocols(r)
	for i, p := range protocols {
		if p == bearerSubprotocol && i+1 < len(protocols) {
			return protocols[i+1]
		}
	}
	return stripBearer(r.URL.Query().Get("token"))
}

func stripBearer(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		return strings.TrimSpace(raw[7:])
	}
	return raw
}

type userKey struct{}

// UserID returns the authenticated user stored by RequireAuth.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userKey{}).(string)
	return id
}

// RequireAuth rejects requests without a valid access token.
func RequireAuth(verifier gateway.TokenVerifier, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := ExtractToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing token")
			return
		}
		userID, err := verifier.VerifyAccess(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), userKey{}, userID)))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps a service error to the HTTP status it is reported with.
func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrWrongTokenKind),
		errors.Is(err, auth.ErrMissingToken):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrForbidden), errors.Is(err, services.ErrBanned),
		errors.Is(err, services.ErrInviteUnusable):
		return http.StatusForbidden
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrAlreadyExists), errors.Is(err, services.ErrAlreadyMember):
		return http.StatusConflict
	case errors.Is(err, services.ErrBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("%s error: %v", op, err)
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return false
	}
	return true
}
