package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalStorage handles file storage on the local filesystem
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new local storage instance
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	// Ensure the base directory exists
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath}, nil
}

// Save writes the reader to a new file and returns its relative path
func (s *LocalStorage) Save(ctx context.Context, r io.Reader, filename, contentType, subDir string) (string, int64, error) {
	// Organize by year/month (e.g., "photos/2026/01")
	dir := filepath.Join(s.basePath, subDir, time.Now().Format("2006/01"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", 0, fmt.Errorf("failed to create directory: %w", err)
	}

	filePath := filepath.Join(dir, newObjectName(filename))

	dst, err := os.Create(filePath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create file: %w", err)
	}
	defer dst.Close()

	// Copy at most one byte past the limit so oversized input is detected
	n, err := io.Copy(dst, io.LimitReader(r, MaxFileSize()+1))
	if err != nil {
		os.Remove(filePath)
		return "", 0, fmt.Errorf("failed to save file: %w", err)
	}
	if n > MaxFileSize() {
		os.Remove(filePath)
		return "", 0, fmt.Errorf("file exceeds %d bytes", MaxFileSize())
	}

	// Return relative path for database storage
	relPath, _ := filepath.Rel(s.basePath, filePath)
	return filepath.ToSlash(relPath), n, nil
}

// Open returns a file for reading
func (s *LocalStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	filePath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	return os.Open(filePath)
}

// Delete removes a file; a missing file is not an error
func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	filePath, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Exists checks if a file exists
func (s *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	filePath, err := s.resolve(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(filePath)
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

// GetFullPath returns the absolute path for serving files
func (s *LocalStorage) GetFullPath(key string) string {
	filePath, _ := s.resolve(key)
	return filePath
}

func (s *LocalStorage) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(s.basePath, clean), nil
}
