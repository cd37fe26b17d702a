package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"namlong/internal/auth"
	"namlong/internal/db"
)

type contextKey string

const sessionIDKey contextKey = "sessionID"

// SessionMiddleware authenticates widget requests by their session token.
type SessionMiddleware struct {
	jwtService *auth.JWTService
	sessions   *db.SessionRepository
}

func NewSessionMiddleware(jwtService *auth.JWTService, sessions *db.SessionRepository) *SessionMiddleware {
	return &SessionMiddleware{jwtService: jwtService, sessions: sessions}
}

func (m *SessionMiddleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			unauthorized(w, "Authorization header required")
			return
		}

		claims, err := m.jwtService.ValidateSessionToken(token)
		if err != nil {
			unauthorized(w, "Invalid or expired token")
			return
		}

		// A token can outlive its session once retention cleanup ran.
		if _, err := m.sessions.FindByID(r.Context(), claims.SessionID); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				unauthorized(w, "Session no longer exists")
				return
			}
			internalError(w)
			return
		}

		ctx := context.WithValue(r.Context(), sessionIDKey, claims.SessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

func GetSessionID(r *http.Request) string {
	if v := r.Context().Value(sessionIDKey); v != nil {
		if sessionID, ok := v.(string); ok {
			return sessionID
		}
	}
	return ""
}
