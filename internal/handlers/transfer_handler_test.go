package handlers

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/plantops/valve-ledger-api/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func importWorkbook(t *testing.T, rows ...[]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

// upload posts a multipart form with the workbook under "file"
func (s *testServer) upload(t *testing.T, u *models.User, path, filename string, data []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+signToken(t, u, time.Hour))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestTransferHandler_PreviewAndExecute(t *testing.T) {
	s := newTestServer(t)
	existing := s.createValve(t, s.alice, "PV-1", true)
	w := s.do(t, s.leader, http.MethodPost, valvePath(existing, "/approve"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	data := importWorkbook(t,
		[]interface{}{"位号", "名称"},
		[]interface{}{"PV-1", "已存在"},
		[]interface{}{"PV-2", "新阀门"},
	)

	w = s.upload(t, s.leader, "/api/v1/valves/import/preview", "valves.xlsx", data, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	preview := decode(t, w)
	assert.Len(t, preview["new_records"], 1)
	assert.Len(t, preview["conflicts"], 1)

	w = s.upload(t, s.leader, "/api/v1/valves/import/execute", "valves.xlsx", data, map[string]string{"conflict_mode": "sideways"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.upload(t, s.leader, "/api/v1/valves/import/execute", "valves.xlsx", data, map[string]string{"conflict_mode": "skip"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode(t, w)["result"].(map[string]interface{})
	assert.EqualValues(t, 1, result["imported"])
	assert.EqualValues(t, 1, result["skipped"])
}

func TestTransferHandler_RejectsBadUploads(t *testing.T) {
	s := newTestServer(t)
	data := importWorkbook(t, []interface{}{"位号"}, []interface{}{"PV-9"})

	tests := []struct {
		name     string
		user     *models.User
		filename string
		data     []byte
		status   int
	}{
		{"employees cannot import", s.alice, "valves.xlsx", data, http.StatusForbidden},
		{"missing file", s.leader, "", nil, http.StatusBadRequest},
		{"wrong extension", s.leader, "valves.csv", []byte("位号\nPV-9"), http.StatusBadRequest},
		{"not a workbook", s.leader, "valves.xlsx", []byte("garbage"), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.upload(t, tt.user, "/api/v1/valves/import/preview", tt.filename, tt.data, nil)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestTransferHandler_ExportValves(t *testing.T) {
	s := newTestServer(t)
	id := s.createValve(t, s.alice, "FV-701", false)

	w := s.do(t, s.alice, http.MethodGet, "/api/v1/valves/export?ids=x", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, s.alice, http.MethodGet, fmt.Sprintf("/api/v1/valves/export?ids=%d", id), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
