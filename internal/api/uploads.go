package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"

	"namlong/internal/blob"
	"namlong/internal/chat"
	"namlong/internal/constants"
	"namlong/internal/db"
	"namlong/internal/mediaurl"
	"namlong/internal/metrics"
	"namlong/internal/models"
)

const uploadFormField = "files"

type UploadHandler struct {
	attachments             *db.AttachmentRepository
	blobs                   *blob.Service
	baseURL                 string
	uploadRequestLimitBytes int64
}

func NewUploadHandler(
	attachments *db.AttachmentRepository,
	blobs *blob.Service,
	baseURL string,
	uploadRequestLimitBytes int64,
) *UploadHandler {
	return &UploadHandler{
		attachments:             attachments,
		blobs:                   blobs,
		baseURL:                 baseURL,
		uploadRequestLimitBytes: uploadRequestLimitBytes,
	}
}

// POST /api/v1/uploads/chat
//
// The response entries are file selections the widget hands to DRAFT_ATTACH.
// The batch is all or nothing.
func (h *UploadHandler) UploadChatImages(w http.ResponseWriter, r *http.Request) {
	sessionID := GetSessionID(r)
	if sessionID == "" {
		unauthorized(w, "Session not found in context")
		return
	}

	headers, cleanup, ok := readMultipartFiles(w, r, h.uploadRequestLimitBytes)
	if !ok {
		return
	}
	defer cleanup()

	if len(headers) > constants.MaxAttachmentsPerSelection {
		badRequest(w, fmt.Sprintf("At most %d images per upload", constants.MaxAttachmentsPerSelection))
		return
	}

	var saved []*models.StoredAttachment
	committed := false
	defer func() {
		if !committed {
			metrics.Uploads.WithLabelValues("rejected").Inc()
			h.discard(context.WithoutCancel(r.Context()), saved)
			return
		}
		metrics.Uploads.WithLabelValues("ok").Inc()
	}()

	selections := make([]chat.FileSelection, 0, len(headers))
	for _, header := range headers {
		record, err := h.storeImage(r.Context(), sessionID, header)
		if record != nil {
			saved = append(saved, record)
		}
		if !handleBlobSaveError(w, err, h.blobs.MaxUploadBytes()) {
			return
		}

		selection := chat.FileSelection{
			Name:     record.OriginalName,
			MimeType: record.MimeType,
			URL:      mediaurl.Image(h.baseURL, record.ID),
		}
		if record.PreviewStoragePath != nil {
			selection.PreviewURL = mediaurl.ImagePreview(h.baseURL, record.ID)
		}
		selections = append(selections, selection)
	}

	committed = true
	writeJSON(w, http.StatusCreated, selections)
}

// storeImage saves one upload with its preview and records it. The returned
// record is non-nil once anything reached the disk, even on error.
func (h *UploadHandler) storeImage(ctx context.Context, sessionID string, header *multipart.FileHeader) (*models.StoredAttachment, error) {
	file, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("opening upload part: %w", err)
	}
	defer file.Close()

	stored, err := h.blobs.SaveImage(ctx, header.Filename, file)
	if err != nil {
		return nil, err
	}

	record := &models.StoredAttachment{
		ID:           stored.ID,
		SessionID:    sessionID,
		StoragePath:  stored.StoragePath,
		MimeType:     stored.MimeType,
		SizeBytes:    stored.SizeBytes,
		OriginalName: stored.OriginalName,
		CreatedAt:    stored.CreatedAt,
	}

	if err := h.attachPreview(record); err != nil {
		slog.Warn("error generating chat image preview", "component", "api", "error", err, "blob_id", stored.ID)
	}

	if err := h.attachments.Create(ctx, record); err != nil {
		return record, fmt.Errorf("creating attachment record: %w", err)
	}
	return record, nil
}

func (h *UploadHandler) attachPreview(record *models.StoredAttachment) error {
	src, err := h.blobs.Open(record.StoragePath)
	if err != nil {
		return err
	}
	defer src.Close()

	preview, err := blob.GeneratePreview(src, blob.DefaultPreviewMaxEdge, blob.DefaultPreviewQuality)
	if err != nil {
		return err
	}

	previewPath, err := h.blobs.WritePreview(record.ID, preview.Data)
	if err != nil {
		return err
	}

	width, height := int64(preview.Width), int64(preview.Height)
	record.PreviewStoragePath = &previewPath
	record.PreviewMimeType = &preview.MimeType
	record.PreviewWidth = &width
	record.PreviewHeight = &height
	return nil
}

func (h *UploadHandler) discard(ctx context.Context, records []*models.StoredAttachment) {
	for _, record := range records {
		if err := h.attachments.DeleteByID(ctx, record.ID); err != nil && !errors.Is(err, db.ErrNotFound) {
			slog.Warn("error discarding attachment record", "component", "api", "error", err, "blob_id", record.ID)
		}
		if record.PreviewStoragePath != nil {
			_ = h.blobs.Delete(*record.PreviewStoragePath)
		}
		_ = h.blobs.Delete(record.StoragePath)
	}
}

func readMultipartFiles(
	w http.ResponseWriter,
	r *http.Request,
	maxBytes int64,
) ([]*multipart.FileHeader, func(), bool) {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(nil, r.Body, maxBytes)
	}

	err := r.ParseMultipartForm(1 << 20)
	if err != nil {
		if isBodyTooLargeError(err) {
			payloadTooLarge(w, "Upload exceeds maximum size")
		} else {
			badRequest(w, "Invalid multipart upload")
		}
		return nil, func() {}, false
	}

	cleanup := func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}

	headers := r.MultipartForm.File[uploadFormField]
	if len(headers) == 0 {
		cleanup()
		badRequest(w, "File field 'files' is required")
		return nil, func() {}, false
	}

	for _, header := range headers {
		if header == nil || strings.TrimSpace(header.Filename) == "" {
			cleanup()
			badRequest(w, "File name is required")
			return nil, func() {}, false
		}
	}

	return headers, cleanup, true
}

func handleBlobSaveError(w http.ResponseWriter, err error, maxBytes int64) bool {
	if err == nil {
		return true
	}

	if errors.Is(err, blob.ErrFileTooLarge) {
		payloadTooLarge(w, "Each image must be at most "+humanize.Bytes(uint64(maxBytes)))
		return false
	}
	if errors.Is(err, blob.ErrDisallowedType) {
		writeError(w, http.StatusBadRequest, constants.ErrCodeAttachmentInvalid, "Only image files can be attached")
		return false
	}

	slog.Error("error saving chat image", "component", "api", "error", err)
	internalError(w)
	return false
}

func isBodyTooLargeError(err error) bool {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "request body too large")
}
