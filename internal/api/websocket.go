package api

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"namlong/internal/auth"
	"namlong/internal/db"
	"namlong/internal/ws"
)

type WebSocketHandler struct {
	hub            *ws.Hub
	jwtService     *auth.JWTService
	sessions       *db.SessionRepository
	allowedOrigins []string
	upgrader       websocket.Upgrader
}

func NewWebSocketHandler(hub *ws.Hub, jwtService *auth.JWTService, sessions *db.SessionRepository, allowedOrigins []string) *WebSocketHandler {
	h := &WebSocketHandler{
		hub:            hub,
		jwtService:     jwtService,
		sessions:       sessions,
		allowedOrigins: allowedOrigins,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// GET /ws?token=
func (h *WebSocketHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		unauthorized(w, "Missing token")
		return
	}

	claims, err := h.jwtService.ValidateSessionToken(token)
	if err != nil {
		slog.Debug("rejected websocket token", "component", "api", "error", err)
		unauthorized(w, "Invalid or expired token")
		return
	}

	session, err := h.sessions.FindByID(r.Context(), claims.SessionID)
	if errors.Is(err, db.ErrNotFound) {
		unauthorized(w, "Session no longer exists")
		return
	}
	if err != nil {
		slog.Error("error loading chat session", "component", "api", "error", err, "session_id", claims.SessionID)
		internalError(w)
		return
	}

	if !h.checkOrigin(r) {
		forbidden(w, "Origin not allowed")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "component", "api", "error", err)
		return
	}

	if err := h.sessions.Touch(r.Context(), session.ID); err != nil {
		slog.Warn("error touching chat session", "component", "api", "error", err, "session_id", session.ID)
	}

	client, err := ws.NewClient(h.hub, conn, session)
	if err != nil {
		slog.Error("error creating widget client", "component", "api", "error", err, "session_id", session.ID)
		conn.Close()
		return
	}
	if err := h.hub.Register(client); err != nil {
		slog.Warn("websocket register failed", "component", "api", "error", err, "session_id", session.ID)
		client.Close()
		return
	}

	go client.WritePump()
	client.SendHello()
	client.SendReady()
	go client.ReadPump()
}

// checkOrigin allows requests without an Origin header, loopback origins and
// the configured storefront origins.
func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	return isOriginAllowed(r.Header.Get("Origin"), h.allowedOrigins)
}

func isOriginAllowed(origin string, allowed []string) bool {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return true
	}
	if isLoopbackOrigin(origin) {
		return true
	}
	for _, candidate := range allowed {
		if originMatchesAllowed(origin, candidate) {
			return true
		}
	}
	return false
}

func originMatchesAllowed(origin, allowed string) bool {
	allowed = strings.TrimSpace(allowed)
	if allowed == "" {
		return false
	}
	if prefix, ok := strings.CutSuffix(allowed, "*"); ok {
		return strings.HasPrefix(origin, prefix)
	}
	return strings.EqualFold(origin, allowed)
}

func isLoopbackOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	host := u.Hostname()
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
