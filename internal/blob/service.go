package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"namlong/internal/db"
)

type Kind string

const (
	KindChatImage   Kind = "chat_image"
	KindChatPreview Kind = "chat_preview"
)

var (
	ErrFileTooLarge   = errors.New("blob file too large")
	ErrDisallowedType = errors.New("only png, jpeg, gif and webp images are accepted")
	ErrInvalidPath    = errors.New("invalid blob path")
)

// allowedImageTypes are the sniffed content types accepted as chat images.
var allowedImageTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/gif":  {},
	"image/webp": {},
}

type StoredBlob struct {
	ID           string
	StoragePath  string
	MimeType     string
	SizeBytes    int64
	OriginalName string
	CreatedAt    time.Time
}

// Service keeps uploaded images on the local filesystem under rootDir.
type Service struct {
	rootDir        string
	maxUploadBytes int64
}

func NewService(rootDir string, maxUploadBytes int64) (*Service, error) {
	if strings.TrimSpace(rootDir) == "" {
		return nil, fmt.Errorf("blob root directory is required")
	}
	if maxUploadBytes <= 0 {
		return nil, fmt.Errorf("max upload bytes must be > 0")
	}

	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating blob root directory: %w", err)
	}

	return &Service{
		rootDir:        rootDir,
		maxUploadBytes: maxUploadBytes,
	}, nil
}

func (s *Service) MaxUploadBytes() int64 {
	return s.maxUploadBytes
}

// SaveImage stores src as a chat image after checking its sniffed type and size.
func (s *Service) SaveImage(_ context.Context, originalName string, src io.Reader) (*StoredBlob, error) {
	sniff := make([]byte, 512)
	n, err := io.ReadFull(src, sniff)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("reading blob data: %w", err)
	}
	sniff = sniff[:n]

	mimeType := DetectMimeType(sniff)
	if !IsAllowedImageType(mimeType) {
		return nil, ErrDisallowedType
	}

	blobID, err := db.GenerateID(db.BlobIDPrefix)
	if err != nil {
		return nil, fmt.Errorf("generating blob id: %w", err)
	}
	relPath := relativePath(KindChatImage, blobID, "")

	written, err := s.write(relPath, io.MultiReader(bytes.NewReader(sniff), src), s.maxUploadBytes)
	if err != nil {
		return nil, err
	}

	return &StoredBlob{
		ID:           blobID,
		StoragePath:  relPath,
		MimeType:     mimeType,
		SizeBytes:    written,
		OriginalName: sanitizeOriginalName(originalName),
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// WritePreview stores a generated preview next to its image.
func (s *Service) WritePreview(blobID string, data []byte) (string, error) {
	relPath := relativePath(KindChatPreview, blobID, ".jpg")
	if _, err := s.write(relPath, bytes.NewReader(data), 0); err != nil {
		return "", err
	}
	return relPath, nil
}

func (s *Service) Open(storagePath string) (*os.File, error) {
	absPath, err := s.resolveStoragePath(storagePath)
	if err != nil {
		return nil, err
	}
	return os.Open(absPath)
}

// Delete removes a stored file. Missing files are not an error.
func (s *Service) Delete(storagePath string) error {
	absPath, err := s.resolveStoragePath(storagePath)
	if err != nil {
		return err
	}

	err = os.Remove(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("deleting blob file: %w", err)
	}

	return nil
}

// write copies src to storagePath through a temp file so readers never see a
// partial blob. A positive limit rejects larger inputs.
func (s *Service) write(storagePath string, src io.Reader, limit int64) (int64, error) {
	absPath, err := s.resolveStoragePath(storagePath)
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return 0, fmt.Errorf("creating blob directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(absPath), "blob-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("creating temporary blob file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if limit > 0 {
		src = io.LimitReader(src, limit+1)
	}
	written, err := io.Copy(tmpFile, src)
	if err != nil {
		return 0, fmt.Errorf("writing blob file: %w", err)
	}
	if limit > 0 && written > limit {
		return 0, ErrFileTooLarge
	}
	if err := tmpFile.Close(); err != nil {
		return 0, fmt.Errorf("closing temporary blob file: %w", err)
	}

	if err := os.Rename(tmpPath, absPath); err != nil {
		return 0, fmt.Errorf("finalizing blob file: %w", err)
	}

	return written, nil
}

func (s *Service) resolveStoragePath(storagePath string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(storagePath))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", ErrInvalidPath
	}

	return filepath.Join(s.rootDir, clean), nil
}

// relativePath shards blobs by the first two characters of their random part.
func relativePath(kind Kind, blobID, ext string) string {
	shard := strings.TrimPrefix(blobID, "blb_")
	if len(shard) < 2 {
		shard = "xx"
	}
	return filepath.ToSlash(filepath.Join(string(kind), shard[:2], blobID+ext))
}

func sanitizeOriginalName(name string) string {
	name = strings.TrimSpace(filepath.Base(filepath.ToSlash(name)))
	if name == "" || name == "." || name == "/" {
		return "image"
	}
	if len(name) > 255 {
		return name[:255]
	}
	return name
}

// DetectMimeType sniffs content the way browsers do, without parameters.
func DetectMimeType(sniff []byte) string {
	if len(sniff) == 0 {
		return "application/octet-stream"
	}
	contentType := http.DetectContentType(sniff)
	if idx := strings.Index(contentType, ";"); idx != -1 {
		contentType = contentType[:idx]
	}
	return strings.TrimSpace(contentType)
}

func IsAllowedImageType(mimeType string) bool {
	_, ok := allowedImageTypes[strings.ToLower(strings.TrimSpace(mimeType))]
	return ok
}
