package handlers

import (
	"bytes"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/plantops/valve-ledger-api/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindNestedOrFlat(t *testing.T) {
	tests := []struct {
		name        string
		key         string
		body        string
		expected    services.LedgerInput
		expectError bool
	}{
		{
			name:     "Nested Structure",
			key:      "ledger",
			body:     `{"ledger": {"name": "一期装置", "description": "常减压"}}`,
			expected: services.LedgerInput{Name: "一期装置", Description: "常减压"},
		},
		{
			name:     "Flat Structure",
			key:      "ledger",
			body:     `{"name": "二期装置"}`,
			expected: services.LedgerInput{Name: "二期装置"},
		},
		{
			name:     "Other Keys Fall Back To Flat",
			key:      "ledger",
			body:     `{"other": "value", "name": "三期装置"}`,
			expected: services.LedgerInput{Name: "三期装置"},
		},
		{
			name:        "Invalid JSON Type",
			key:         "ledger",
			body:        `{"name": 12}`,
			expectError: true,
		},
		{
			name:        "Nested Key Present but Invalid Type",
			key:         "ledger",
			body:        `{"ledger": "some string"}`,
			expectError: true,
		},
		{
			name:        "Nested Fails Validation",
			key:         "ledger",
			body:        `{"ledger": {"description": "no name"}}`,
			expectError: true,
		},
		{
			name:        "Flat Fails Validation",
			key:         "ledger",
			body:        `{}`,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest("POST", "/", bytes.NewBufferString(tt.body))
			c.Request.Header.Set("Content-Type", "application/json")

			var result services.LedgerInput
			err := BindNestedOrFlat(c, tt.key, &result)

			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			}
		})
	}
}

func TestBindValveInput(t *testing.T) {
	bind := func(t *testing.T, body string) (valvePayload, error) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest("POST", "/", bytes.NewBufferString(body))
		return bindValveInput(c)
	}

	t.Run("nested", func(t *testing.T) {
		p, err := bind(t, `{"fields": {"tag": "FV-1", "名称": "切断阀"}, "submit": true, "ledger_id": 3}`)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"tag": "FV-1", "名称": "切断阀"}, p.Input.Fields)
		assert.True(t, p.Input.Submit)
		require.NotNil(t, p.Input.LedgerID)
		assert.Equal(t, uint(3), *p.Input.LedgerID)
		assert.Zero(t, p.ID)
	})

	t.Run("flat keeps scalars as text", func(t *testing.T) {
		p, err := bind(t, `{"id": 9, "tag": "FV-2", "trim_cv": 40, "interlock": false, "remark": null, "status": "approved"}`)
		require.NoError(t, err)
		assert.Equal(t, uint(9), p.ID)
		assert.Equal(t, map[string]string{
			"tag":       "FV-2",
			"trim_cv":   "40",
			"interlock": "false",
			"remark":    "",
		}, p.Input.Fields)
		assert.False(t, p.Input.Submit)
		assert.Nil(t, p.Input.LedgerID)
	})

	t.Run("flat attachments", func(t *testing.T) {
		p, err := bind(t, `{"tag": "FV-3", "attachments": [{"type": "定位器", "model": "DVC6200"}]}`)
		require.NoError(t, err)
		require.Len(t, p.Input.Attachments, 1)
		assert.Equal(t, map[string]string{"tag": "FV-3"}, p.Input.Fields)
	})

	t.Run("not an object", func(t *testing.T) {
		_, err := bind(t, `["FV-4"]`)
		assert.Error(t, err)
	})

	t.Run("bad id", func(t *testing.T) {
		_, err := bind(t, `{"id": "x", "tag": "FV-5"}`)
		assert.Error(t, err)
	})
}
