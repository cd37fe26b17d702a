package api

import (
	"net/http"

	"namlong/internal/db"
	"namlong/internal/ws"
)

type HealthHandler struct {
	database *db.DB
	hub      *ws.Hub
}

func NewHealthHandler(database *db.DB, hub *ws.Hub) *HealthHandler {
	return &HealthHandler{database: database, hub: hub}
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	dbStatus := "ok"
	status := http.StatusOK

	if err := h.database.PingContext(r.Context()); err != nil {
		dbStatus = "error"
		status = http.StatusServiceUnavailable
	}

	result := "ok"
	if status != http.StatusOK {
		result = "degraded"
	}

	writeJSON(w, status, map[string]any{
		"status": result,
		"checks": map[string]string{
			"database": dbStatus,
		},
		"connections": h.hub.Count(),
	})
}
