package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatscribe/internal/driver"
	"chatscribe/internal/render"
)

type stubCore struct {
	captureRes driver.Result
	captureErr error
	count      int
	clearErr   error
	exported   render.Format
}

func (s *stubCore) Capture(context.Context) (driver.Result, error) {
	return s.captureRes, s.captureErr
}

func (s *stubCore) Export(f render.Format) (render.File, error) {
	s.exported = f
	return render.File{Name: "chat-export-2026-03-14." + string(f), MediaType: f.MediaType(), Data: []byte("x")}, nil
}

func (s *stubCore) Count() int { return s.count }

func (s *stubCore) Clear() error {
	if s.clearErr == nil {
		s.count = 0
	}
	return s.clearErr
}

func do(t *testing.T, core Core, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req, err := http.NewRequest(method, path, nil)
	require.NoError(t, err)
	New(core, nil).Router().ServeHTTP(w, req)
	return w
}

func TestCapture_ReportsCount(t *testing.T) {
	core := &stubCore{captureRes: driver.Result{Total: 42, Rounds: 9}}
	w := do(t, core, http.MethodPost, "/api/v1/capture")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"settled","count":42,"rounds":9}`, w.Body.String())
}

func TestCapture_AlreadyRunningIsConflict(t *testing.T) {
	core := &stubCore{captureErr: driver.ErrRunInProgress}
	w := do(t, core, http.MethodPost, "/api/v1/capture")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCapture_NoContainerIsDistinctFailure(t *testing.T) {
	core := &stubCore{captureErr: driver.ErrNoScrollContainer}
	w := do(t, core, http.MethodPost, "/api/v1/capture")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "scroll container")
}

func TestCount(t *testing.T) {
	w := do(t, &stubCore{count: 7}, http.MethodGet, "/api/v1/transcript/count")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"count":7}`, w.Body.String())
}

func TestExport_DeliversFile(t *testing.T) {
	core := &stubCore{}
	w := do(t, core, http.MethodGet, "/api/v1/export/json")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, render.FormatJSON, core.exported)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "chat-export-2026-03-14.json")
}

func TestExport_UnknownFormat(t *testing.T) {
	w := do(t, &stubCore{}, http.MethodGet, "/api/v1/export/pdf")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClear_ReturnsFreshCount(t *testing.T) {
	core := &stubCore{count: 7}
	w := do(t, core, http.MethodDelete, "/api/v1/transcript")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"count":0}`, w.Body.String())
}
