package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rglservice/mediation-strapi-import-export/internal/config"
)

func TestHealthEndpoint(t *testing.T) {
	router, _, cleanup := setupTestRouter(t, config.AuthModeNone)
	defer cleanup()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var response HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "healthy", response.Status)
	assert.Equal(t, "test", response.Version)
	assert.Equal(t, "ok", response.Checks["database"])
	assert.NotEmpty(t, response.Time)
}

func TestHealthController_NoStore(t *testing.T) {
	gin.SetMode(gin.TestMode)

	controller := NewHealthController(nil, "test")

	router := gin.New()
	router.GET("/health", controller.Status)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var response HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "not configured", response.Checks["database"])
}
