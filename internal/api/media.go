package api

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"namlong/internal/blob"
	"namlong/internal/db"
	"namlong/internal/models"
)

type MediaHandler struct {
	attachments *db.AttachmentRepository
	blobs       *blob.Service
}

func NewMediaHandler(attachments *db.AttachmentRepository, blobs *blob.Service) *MediaHandler {
	return &MediaHandler{attachments: attachments, blobs: blobs}
}

// GET /media/{blobID}
func (h *MediaHandler) GetBlob(w http.ResponseWriter, r *http.Request) {
	row, ok := h.lookup(w, r, "Media not found")
	if !ok {
		return
	}

	file, err := h.blobs.Open(row.StoragePath)
	if errors.Is(err, os.ErrNotExist) {
		notFound(w, "Media not found")
		return
	}
	if err != nil {
		internalError(w)
		return
	}
	defer file.Close()

	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("ETag", fmt.Sprintf("\"%s\"", row.ID))
	w.Header().Set("Content-Type", row.MimeType)

	disposition := "inline"
	if shouldForceDownload(r) {
		disposition = "attachment"
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=\"%s\"", disposition, sanitizeDispositionFilename(row.OriginalName)))

	http.ServeContent(w, r, row.OriginalName, row.CreatedAt, file)
}

// GET /media/{blobID}/preview
func (h *MediaHandler) GetBlobPreview(w http.ResponseWriter, r *http.Request) {
	row, ok := h.lookup(w, r, "Media preview not found")
	if !ok {
		return
	}

	if row.PreviewStoragePath == nil || row.PreviewMimeType == nil {
		notFound(w, "Media preview not found")
		return
	}

	file, err := h.blobs.Open(*row.PreviewStoragePath)
	if errors.Is(err, os.ErrNotExist) {
		notFound(w, "Media preview not found")
		return
	}
	if err != nil {
		internalError(w)
		return
	}
	defer file.Close()

	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Header().Set("ETag", fmt.Sprintf("\"%s-preview\"", row.ID))
	w.Header().Set("Content-Type", *row.PreviewMimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=\"%s\"", sanitizeDispositionFilename(row.OriginalName)))

	http.ServeContent(w, r, row.OriginalName, row.CreatedAt, file)
}

func (h *MediaHandler) lookup(w http.ResponseWriter, r *http.Request, missing string) (*models.StoredAttachment, bool) {
	blobID := strings.TrimSpace(chi.URLParam(r, "blobID"))
	if blobID == "" {
		notFound(w, missing)
		return nil, false
	}

	row, err := h.attachments.FindByID(r.Context(), blobID)
	if errors.Is(err, db.ErrNotFound) {
		notFound(w, missing)
		return nil, false
	}
	if err != nil {
		internalError(w)
		return nil, false
	}
	return row, true
}

func sanitizeDispositionFilename(name string) string {
	name = strings.TrimSpace(name)
	name = strings.NewReplacer("\\", "", "\"", "", "\r", "", "\n", "").Replace(name)
	if name == "" {
		return "image"
	}
	return name
}

func shouldForceDownload(r *http.Request) bool {
	download := strings.TrimSpace(r.URL.Query().Get("download"))
	if download == "" {
		return false
	}

	force, err := strconv.ParseBool(download)
	if err != nil {
		return false
	}

	return force
}
