package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"namlong/internal/auth"
	"namlong/internal/chat"
	"namlong/internal/constants"
	"namlong/internal/db"
)

type SessionHandler struct {
	sessions    *db.SessionRepository
	transcripts *db.TranscriptRepository
	jwtService  *auth.JWTService
	location    *time.Location
	now         func() time.Time
}

func NewSessionHandler(
	sessions *db.SessionRepository,
	transcripts *db.TranscriptRepository,
	jwtService *auth.JWTService,
	location *time.Location,
) *SessionHandler {
	return &SessionHandler{
		sessions:    sessions,
		transcripts: transcripts,
		jwtService:  jwtService,
		location:    location,
		now:         time.Now,
	}
}

type CreateSessionRequest struct {
	Path string `json:"path" validate:"required,max=2048,sitepath"`
}

type CreateSessionResponse struct {
	SessionID string    `json:"session_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type TranscriptResponse struct {
	SessionID string           `json:"session_id"`
	Groups    []chat.DateGroup `json:"groups"`
}

// POST /api/v1/chat/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeAndValidate(r.Body, &req); err != nil {
		badRequest(w, err.Error())
		return
	}

	session, err := h.sessions.Create(r.Context(), req.Path)
	if err != nil {
		slog.Error("error creating chat session", "component", "api", "error", err)
		internalError(w)
		return
	}

	token, err := h.jwtService.GenerateSessionToken(session)
	if err != nil {
		slog.Error("error generating session token", "component", "api", "error", err, "session_id", session.ID)
		internalError(w)
		return
	}

	writeJSON(w, http.StatusCreated, CreateSessionResponse{
		SessionID: session.ID,
		Token:     token.Token,
		ExpiresAt: token.ExpiresAt,
	})
}

// GET /api/v1/chat/sessions/me/transcript
//
// The archive is read-only, so it is rendered with a zero recall window and
// no bubble offers recall.
func (h *SessionHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	sessionID := GetSessionID(r)
	if sessionID == "" {
		unauthorized(w, "Session not found in context")
		return
	}

	limit := constants.TranscriptListMaxLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	msgs, err := h.transcripts.ListBySession(r.Context(), sessionID, limit)
	if err != nil {
		slog.Error("error listing transcript", "component", "api", "error", err, "session_id", sessionID)
		internalError(w)
		return
	}

	groups := chat.Snapshot(msgs, h.now(), 0, h.location)
	if groups == nil {
		groups = []chat.DateGroup{}
	}
	writeJSON(w, http.StatusOK, TranscriptResponse{SessionID: sessionID, Groups: groups})
}
