package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mamadbah2/dairysync/internal/server/handlers"
)

func TestRouter_Routes(t *testing.T) {
	r := New(Handlers{Import: handlers.NewImportHandler(nil, nil)}, nil)

	cases := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodPost, "/import/farmers", http.StatusServiceUnavailable},
		{http.MethodPost, "/sync", http.StatusNotFound},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, tc.want, w.Code, "%s %s", tc.method, tc.path)
	}
}
