package storage

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FileStore is implemented by every storage backend holding valve photos
type FileStore interface {
	// Save writes r under subDir and returns the generated storage key
	Save(ctx context.Context, r io.Reader, filename, contentType, subDir string) (string, int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// MaxFileSize returns the maximum allowed file size (10MB)
func MaxFileSize() int64 {
	return 10 * 1024 * 1024 // 10 MB
}

// ValidImageExtensions returns allowed photo file extensions
func ValidImageExtensions() map[string]string {
	return map[string]string{
		".png":  "image/png",
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
		".gif":  "image/gif",
	}
}

// ImageContentType returns the MIME type for an allowed photo filename
func ImageContentType(filename string) (string, bool) {
	ct, ok := ValidImageExtensions()[strings.ToLower(filepath.Ext(filename))]
	return ct, ok
}

// newObjectName keeps the extension and replaces the base name with a uuid
func newObjectName(filename string) string {
	return uuid.NewString() + strings.ToLower(filepath.Ext(filename))
}

var (
	_ FileStore = (*LocalStorage)(nil)
	_ FileStore = (*S3Storage)(nil)
)
