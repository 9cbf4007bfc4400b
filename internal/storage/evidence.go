// Package storage holds the evidence-store collaborator boundary. Evidence
// images (proctoring snapshots, reference face images) are byte buffers
// exchanged for durable URLs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Sentinel errors for evidence uploads.
var (
	ErrUnsupportedFormat = errors.New("unsupported evidence format")
	ErrTooLarge          = errors.New("evidence too large")
)

// EvidenceStore accepts a byte buffer and returns a durable URL.
type EvidenceStore interface {
	Upload(ctx context.Context, data []byte, folder string) (string, error)
}

// Allowed image MIME types and their file extensions.
var allowedMIMETypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// LocalEvidenceStore persists evidence to local disk under baseDir and
// returns URLs below /uploads. Suitable for single-node deployments; the
// interface allows swapping in an object-storage client.
type LocalEvidenceStore struct {
	baseDir  string
	maxBytes int64
}

// NewLocalEvidenceStore creates a LocalEvidenceStore rooted at baseDir.
func NewLocalEvidenceStore(baseDir string, maxBytes int64) *LocalEvidenceStore {
	return &LocalEvidenceStore{baseDir: baseDir, maxBytes: maxBytes}
}

// Upload validates and writes the buffer, returning its serving URL.
func (s *LocalEvidenceStore) Upload(ctx context.Context, data []byte, folder string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if int64(len(data)) > s.maxBytes {
		return "", fmt.Errorf("%w: %d bytes (max: %d)", ErrTooLarge, len(data), s.maxBytes)
	}

	contentType := http.DetectContentType(data)
	ext, ok := allowedMIMETypes[contentType]
	if !ok {
		return "", fmt.Errorf("%w: %s (allowed: %s)",
			ErrUnsupportedFormat, contentType, strings.Join(allowedTypes(), ", "))
	}

	dir := filepath.Join(s.baseDir, filepath.Clean(folder))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create evidence dir: %w", err)
	}

	filename := uuid.New().String() + ext
	if err := os.WriteFile(filepath.Join(dir, filename), data, 0o644); err != nil {
		return "", fmt.Errorf("write evidence: %w", err)
	}

	return "/uploads/" + folder + "/" + filename, nil
}

func allowedTypes() []string {
	types := make([]string, 0, len(allowedMIMETypes))
	for t := range allowedMIMETypes {
		types = append(types, t)
	}
	return types
}
