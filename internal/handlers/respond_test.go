package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/plantops/valve-ledger-api/internal/services"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{services.ErrNotFound, http.StatusNotFound},
		{gorm.ErrRecordNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: 只能编辑自己的记录", services.ErrForbidden), http.StatusForbidden},
		{services.ErrUnauthorized, http.StatusUnauthorized},
		{services.ErrInvalidState, http.StatusConflict},
		{services.ErrLedgerHasPending, http.StatusConflict},
		{services.ErrNothingToSubmit, http.StatusConflict},
		{services.ErrDuplicate, http.StatusConflict},
		{gorm.ErrDuplicatedKey, http.StatusConflict},
		{services.ErrImportConflict, http.StatusConflict},
		{services.ErrInvalidInput, http.StatusBadRequest},
		{services.ErrInvalidImport, http.StatusBadRequest},
		{services.ErrInvalidPassword, http.StatusBadRequest},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.status, statusFor(tt.err))
		})
	}
}

func TestRespondError_NormalizesMessages(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
	}{
		{"gorm not found", gorm.ErrRecordNotFound, services.ErrNotFound.Error()},
		{"unique violation", gorm.ErrDuplicatedKey, services.ErrDuplicate.Error()},
		{"wrapped forbidden keeps detail", fmt.Errorf("%w: 只能编辑自己的记录", services.ErrForbidden), "只能编辑自己的记录"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest("GET", "/", nil)

			respondError(c, tt.err)

			assert.Contains(t, w.Body.String(), tt.message)
		})
	}
}

func TestParseIDs(t *testing.T) {
	ids, err := parseIDs("3, 1,,7")
	assert.NoError(t, err)
	assert.Equal(t, []uint{3, 1, 7}, ids)

	_, err = parseIDs("1,x")
	assert.Error(t, err)
}
