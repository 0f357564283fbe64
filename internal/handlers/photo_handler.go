package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/plantops/valve-ledger-api/internal/middleware"
	"github.com/plantops/valve-ledger-api/internal/services"
	"github.com/plantops/valve-ledger-api/internal/storage"
)

type PhotoHandler struct {
	photoService *services.PhotoService
}

func NewPhotoHandler(photoSvc *services.PhotoService) *PhotoHandler {
	return &PhotoHandler{photoService: photoSvc}
}

// Upload stores a site photo of a valve
// @Summary Upload valve photo
// @Tags Photos
// @Accept multipart/form-data
// @Produce json
// @Param id path int true "Valve ID"
// @Param file formData file true "png, jpg, jpeg or gif, max 10MB"
// @Param description formData string false "Description"
// @Success 201 {object} models.ValvePhoto
// @Failure 400 {object} map[string]string
// @Security BearerAuth
// @Router /valves/{id}/photos [post]
func (h *PhotoHandler) Upload(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, storage.MaxFileSize()+1<<20)
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "请选择要上传的图片")
		return
	}
	f, err := fh.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer f.Close()

	photo, err := h.photoService.Upload(c.Request.Context(), middleware.GetActor(c), id, services.PhotoUpload{
		File:        f,
		Filename:    fh.Filename,
		Size:        fh.Size,
		Description: strings.TrimSpace(c.PostForm("description")),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"photo": photo})
}

// Index lists the photos of a valve
// @Summary List valve photos
// @Tags Photos
// @Produce json
// @Param id path int true "Valve ID"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /valves/{id}/photos [get]
func (h *PhotoHandler) Index(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	photos, err := h.photoService.List(c.Request.Context(), middleware.GetActor(c), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"photos": photos})
}

// Download streams a photo or, with ?thumb=1, its thumbnail
// @Summary Download photo
// @Tags Photos
// @Produce image/png
// @Param photo_id path int true "Photo ID"
// @Param thumb query bool false "Thumbnail"
// @Success 200 {file} file
// @Security BearerAuth
// @Router /photos/{photo_id}/download [get]
func (h *PhotoHandler) Download(c *gin.Context) {
	id, ok := paramID(c, "photo_id")
	if !ok {
		return
	}
	thumb := c.Query("thumb") == "1" || c.Query("thumb") == "true"

	rc, photo, err := h.photoService.Open(c.Request.Context(), middleware.GetActor(c), id, thumb)
	if err != nil {
		respondError(c, err)
		return
	}
	defer rc.Close()

	contentType := photo.ContentType
	if thumb {
		if ct, ok := storage.ImageContentType(photo.ThumbPath); ok {
			contentType = ct
		}
	}
	c.Header("Content-Disposition", "inline; filename=\""+strings.ReplaceAll(photo.Filename, "\"", "")+"\"")
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, rc)
}

// Delete removes a photo
// @Summary Delete photo
// @Tags Photos
// @Produce json
// @Param photo_id path int true "Photo ID"
// @Success 200 {object} map[string]string
// @Security BearerAuth
// @Router /photos/{photo_id} [delete]
func (h *PhotoHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "photo_id")
	if !ok {
		return
	}

	if err := h.photoService.Delete(c.Request.Context(), middleware.GetActor(c), id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "删除成功"})
}
