package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/dairysync/internal/domain/models"
	"github.com/mamadbah2/dairysync/internal/service/coordinator"
	"github.com/mamadbah2/dairysync/internal/service/importer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(t *testing.T, method, path, body string, register func(r *gin.Engine)) *httptest.ResponseRecorder {
	t.Helper()
	r := gin.New()
	register(r)

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

type fakeRunner struct {
	err    error
	report *coordinator.Report
}

func (f fakeRunner) Trigger() error { return f.err }
func (f fakeRunner) State() coordinator.State { return coordinator.StateQuickSync }
func (f fakeRunner) Running() bool { return f.report == nil }
func (f fakeRunner) LastReport() (coordinator.Report, bool) {
	if f.report == nil {
		return coordinator.Report{}, false
	}
	return *f.report, true
}

func TestSyncHandler_Trigger(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"queued", nil, http.StatusAccepted},
		{"already running", coordinator.ErrAlreadyRunning, http.StatusConflict},
		{"pool unavailable", errors.New("queue full"), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewSyncHandler(fakeRunner{err: tc.err}, nil)
			w := serve(t, http.MethodPost, "/sync", "", func(r *gin.Engine) { r.POST("/sync", h.Trigger) })

			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestSyncHandler_Status(t *testing.T) {
	t.Run("before first run", func(t *testing.T) {
		h := NewSyncHandler(fakeRunner{}, nil)
		w := serve(t, http.MethodGet, "/sync/status", "", func(r *gin.Engine) { r.GET("/sync/status", h.Status) })

		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, "quick_sync", body["state"])
		assert.Equal(t, true, body["running"])
		assert.NotContains(t, body, "last_report")
	})

	t.Run("with report", func(t *testing.T) {
		report := coordinator.Report{OwnerID: "u1", Mode: coordinator.ModeQuickSync, Errors: []string{"boom"}}
		h := NewSyncHandler(fakeRunner{report: &report}, nil)
		w := serve(t, http.MethodGet, "/sync/status", "", func(r *gin.Engine) { r.GET("/sync/status", h.Status) })

		body := decode(t, w)
		assert.Equal(t, float64(1), body["failures"])
		assert.Equal(t, "u1", body["last_report"].(map[string]any)["owner_id"])
	})
}

type fakeImporter struct {
	res importer.Result
	err error
}

func (f fakeImporter) ImportFarmers(context.Context) (importer.Result, error) { return f.res, f.err }
func (f fakeImporter) ImportPrices(context.Context) (importer.Result, error) { return f.res, f.err }

func TestImportHandler(t *testing.T) {
	cases := []struct {
		name string
		imp  SheetImporter
		want int
	}{
		{"not configured", nil, http.StatusServiceUnavailable},
		{"imported", fakeImporter{res: importer.Result{Rows: 2, Imported: 2}}, http.StatusOK},
		{"signed out", fakeImporter{err: models.ErrNotAuthenticated}, http.StatusUnauthorized},
		{"overlap", fakeImporter{err: models.ErrOverlappingRange}, http.StatusUnprocessableEntity},
		{"sheet failure", fakeImporter{err: errors.New("quota")}, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewImportHandler(tc.imp, nil)
			register := func(r *gin.Engine) {
				r.POST("/import/farmers", h.Farmers)
				r.POST("/import/prices", h.Prices)
			}

			assert.Equal(t, tc.want, serve(t, http.MethodPost, "/import/farmers", "", register).Code)
			assert.Equal(t, tc.want, serve(t, http.MethodPost, "/import/prices", "", register).Code)
		})
	}
}

type fakeCredentials struct{}

func (fakeCredentials) Authenticate(_ context.Context, id, password string) (models.User, error) {
	if id == "u1" && password == "secret" {
		return models.User{ID: "u1", Name: "Awa"}, nil
	}
	return models.User{}, models.ErrNotAuthenticated
}

type fakeSigner struct {
	userID string
}

func (f *fakeSigner) SignIn(userID string) error {
	f.userID = userID
	return nil
}

func (f *fakeSigner) SignOut() { f.userID = "" }

func TestSessionHandler(t *testing.T) {
	signer := &fakeSigner{}
	h := NewSessionHandler(fakeCredentials{}, signer, nil)
	register := func(r *gin.Engine) {
		r.POST("/session", h.SignIn)
		r.DELETE("/session", h.SignOut)
	}

	w := serve(t, http.MethodPost, "/session", `{"user_id":"u1"}`, register)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(t, http.MethodPost, "/session", `{"user_id":"u1","password":"wrong"}`, register)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, signer.userID)

	w = serve(t, http.MethodPost, "/session", `{"user_id":"u1","password":"secret"}`, register)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Awa", decode(t, w)["name"])
	assert.Equal(t, "u1", signer.userID)

	w = serve(t, http.MethodDelete, "/session", "", register)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, signer.userID)
}
