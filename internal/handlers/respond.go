package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/plantops/valve-ledger-api/internal/repository"
	"github.com/plantops/valve-ledger-api/internal/services"
	"github.com/plantops/valve-ledger-api/pkg/logger"
)

// statusFor maps service errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound), repository.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, services.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrInvalidState),
		errors.Is(err, services.ErrLedgerHasPending),
		errors.Is(err, services.ErrNothingToSubmit),
		errors.Is(err, services.ErrDuplicate),
		errors.Is(err, services.ErrImportConflict),
		repository.IsDuplicateKey(err):
		return http.StatusConflict
	case errors.Is(err, services.ErrInvalidInput),
		errors.Is(err, services.ErrInvalidImport),
		errors.Is(err, services.ErrInvalidPassword):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// respondError writes err as {"error": msg}. Unexpected errors are logged.
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch {
	case status == http.StatusInternalServerError:
		_ = c.Error(err)
		logger.Error("request failed", "path", c.FullPath(), "error", err)
	case status == http.StatusNotFound && !errors.Is(err, services.ErrNotFound):
		msg = services.ErrNotFound.Error()
	case status == http.StatusConflict && repository.IsDuplicateKey(err) && !errors.Is(err, services.ErrDuplicate):
		msg = services.ErrDuplicate.Error()
	}
	c.JSON(status, gin.H{"error": msg})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// paramID parses a positive numeric path parameter, answering 400 when it is not one
func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		badRequest(c, "无效的ID")
		return 0, false
	}
	return uint(id), true
}

// listQuery reads the common paging, search and sort parameters
func listQuery(c *gin.Context, defaultPerPage int) *repository.ListQuery {
	query := repository.NewListQuery()
	query.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	query.PerPage, _ = strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(defaultPerPage)))
	query.Search = strings.TrimSpace(c.Query("search"))
	query.SortBy = c.Query("sort_by")
	query.SortDir = c.Query("sort_dir")
	query.Normalize()
	return query
}

func pagination(query *repository.ListQuery, total int64) gin.H {
	return gin.H{
		"page":        query.Page,
		"per_page":    query.PerPage,
		"total":       total,
		"total_pages": query.TotalPages(total),
	}
}

// parseIDs accepts "1,2,3" as used by export links
func parseIDs(raw string) ([]uint, error) {
	var ids []uint
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, err
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}

// sendFile streams a generated download
func sendFile(c *gin.Context, data []byte, filename, contentType string) {
	c.Header("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(filename))
	c.Data(http.StatusOK, contentType, data)
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// IDsRequest is the body of every batch endpoint
type IDsRequest struct {
	IDs     []uint `json:"ids" binding:"required,min=1,max=500"`
	Comment string `json:"comment" binding:"max=500"`
}

// CommentRequest is the optional body of approve/reject
type CommentRequest struct {
	Comment string `json:"comment" binding:"max=500"`
}

// bindComment tolerates an empty body
func bindComment(c *gin.Context) (string, bool) {
	var req CommentRequest
	if c.Request.ContentLength == 0 {
		return "", true
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, validationMessage(err))
		return "", false
	}
	return strings.TrimSpace(req.Comment), true
}
