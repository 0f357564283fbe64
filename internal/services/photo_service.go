package services

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/plantops/valve-ledger-api/internal/models"
	"github.com/plantops/valve-ledger-api/internal/repository"
	"github.com/plantops/valve-ledger-api/internal/statemachine"
	"github.com/plantops/valve-ledger-api/internal/storage"
	"github.com/plantops/valve-ledger-api/pkg/logger"
)

const thumbnailSize = 320

// PhotoUpload is one uploaded image
type PhotoUpload struct {
	File        io.ReadSeeker
	Filename    string
	Size        int64
	Description string
}

// PhotoService stores valve photos and their thumbnails
type PhotoService struct {
	repos    *repository.Repositories
	valves   *ValveService
	store    storage.FileStore
	auditSvc *AuditService
}

func NewPhotoService(repos *repository.Repositories, valves *ValveService, store storage.FileStore, auditSvc *AuditService) *PhotoService {
	return &PhotoService{repos: repos, valves: valves, store: store, auditSvc: auditSvc}
}

func mayChangeValve(valve *models.Valve, actor statemachine.Actor) bool {
	return valve.IsOwnedBy(actor.ID) || actor.IsPrivileged()
}

// Upload validates and stores an image for a valve the actor may edit
func (s *PhotoService) Upload(ctx context.Context, actor statemachine.Actor, valveID uint, up PhotoUpload) (*models.ValvePhoto, error) {
	valve, err := s.valves.Get(ctx, actor, valveID)
	if err != nil {
		return nil, err
	}
	if !mayChangeValve(valve, actor) {
		return nil, fmt.Errorf("%w: %s", ErrForbidden, statemachine.MsgNoPermissionEdit)
	}

	if up.Size > storage.MaxFileSize() {
		return nil, invalid("文件大小超过限制(10MB)")
	}
	contentType, ok := storage.ImageContentType(up.Filename)
	if !ok {
		return nil, invalid("只支持 png/jpg/jpeg/gif 格式的图片")
	}

	img, err := imaging.Decode(up.File, imaging.AutoOrientation(true))
	if err != nil {
		return nil, invalid("图片无法解析")
	}
	if _, err := up.File.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	subDir := fmt.Sprintf("valves/%d", valveID)
	key, size, err := s.store.Save(ctx, up.File, up.Filename, contentType, subDir)
	if err != nil {
		return nil, err
	}

	thumbKey, err := s.saveThumbnail(ctx, img, up.Filename, contentType, subDir)
	if err != nil {
		s.discard(ctx, key)
		return nil, err
	}

	photo := &models.ValvePhoto{
		ValveID:     valveID,
		Path:        key,
		ThumbPath:   thumbKey,
		Filename:    filepath.Base(up.Filename),
		ContentType: contentType,
		Size:        size,
		Description: up.Description,
		UploadedBy:  actor.ID,
	}
	if err := s.repos.Photo.Create(ctx, photo); err != nil {
		s.discard(ctx, photo.StorageKeys()...)
		return nil, err
	}

	s.auditSvc.Log(ctx, actor.ID, AuditCreate, "ValvePhoto", photo.ID, photo.Filename)
	return photo, nil
}

func (s *PhotoService) saveThumbnail(ctx context.Context, img image.Image, filename, contentType, subDir string) (string, error) {
	format, err := imaging.FormatFromFilename(filename)
	if err != nil {
		return "", invalid("只支持 png/jpg/jpeg/gif 格式的图片")
	}
	thumb := imaging.Fit(img, thumbnailSize, thumbnailSize, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, format, imaging.JPEGQuality(85)); err != nil {
		return "", fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	key, _, err := s.store.Save(ctx, &buf, "thumb_"+filepath.Base(filename), contentType, subDir+"/thumbs")
	return key, err
}

// List returns the photos of a visible valve, newest first
func (s *PhotoService) List(ctx context.Context, actor statemachine.Actor, valveID uint) ([]models.ValvePhoto, error) {
	if _, err := s.valves.Get(ctx, actor, valveID); err != nil {
		return nil, err
	}
	return s.repos.Photo.FindByValve(ctx, valveID)
}

// Open streams a photo (or its thumbnail) of a visible valve
func (s *PhotoService) Open(ctx context.Context, actor statemachine.Actor, photoID uint, thumb bool) (io.ReadCloser, *models.ValvePhoto, error) {
	photo, err := s.repos.Photo.FindByID(ctx, photoID)
	if err != nil {
		return nil, nil, notFoundAs(err)
	}
	if _, err := s.valves.Get(ctx, actor, photo.ValveID); err != nil {
		return nil, nil, err
	}

	key := photo.Path
	if thumb && photo.ThumbPath != "" {
		key = photo.ThumbPath
	}
	rc, err := s.store.Open(ctx, key)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return rc, photo, nil
}

// Delete removes a photo; the uploader, the valve creator and privileged users may do so
func (s *PhotoService) Delete(ctx context.Context, actor statemachine.Actor, photoID uint) error {
	photo, err := s.repos.Photo.FindByID(ctx, photoID)
	if err != nil {
		return notFoundAs(err)
	}
	valve, err := s.repos.Valve.FindByID(ctx, photo.ValveID)
	if err != nil {
		return notFoundAs(err)
	}
	if photo.UploadedBy != actor.ID && !mayChangeValve(valve, actor) {
		return fmt.Errorf("%w: %s", ErrForbidden, statemachine.MsgNoPermissionDelete)
	}

	if err := s.repos.Photo.Delete(ctx, photoID); err != nil {
		return err
	}
	s.discard(ctx, photo.StorageKeys()...)

	s.auditSvc.Log(ctx, actor.ID, AuditDelete, "ValvePhoto", photoID, photo.Filename)
	return nil
}

func (s *PhotoService) discard(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if err := s.store.Delete(ctx, key); err != nil {
			logger.Warn("failed to delete photo file", "key", key, "error", err)
		}
	}
}
