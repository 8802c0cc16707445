package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/apipatb/earning-sub011/internal/observability"
	"github.com/apipatb/earning-sub011/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthReportsDatabase(t *testing.T) {
	conn, err := db.NewTest()
	require.NoError(t, err)

	r := NewEngine(observability.Config{Environment: "test"}, conn)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestHealthWithoutDatabase(t *testing.T) {
	r := NewEngine(observability.Config{Environment: "test"}, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	r := NewEngine(observability.Config{Environment: "test"}, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
