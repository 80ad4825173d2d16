package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/pokebid/pokebid/internal/auth"
)

// extractTokenFromCookie pulls the auth token value out of a raw Cookie
// header, or returns empty if not present.
func extractTokenFromCookie(cookieHeader string) string {
	parts := strings.Split(cookieHeader, auth.CookieName+"=")
	if len(parts) < 2 {
		return ""
	}
	token := parts[1]
	if idx := strings.Index(token, ";"); idx != -1 {
		token = token[:idx]
	}
	return token
}

// authenticateRequest resolves the requesting user from the auth cookie.
// An Authorization bearer token is accepted as a fallback for non-browser
// clients.
func authenticateRequest(r *http.Request) (uuid.UUID, error) {
	token := extractTokenFromCookie(r.Header.Get("Cookie"))
	if token == "" {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		}
	}
	userIDStr, err := auth.AuthenticateJWT(token)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(userIDStr)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
