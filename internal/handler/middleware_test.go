package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"storybook-server/internal/config"
	"storybook-server/internal/models"
)

func TestZapLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)

	router := gin.New()
	router.Use(ZapLogger(zap.New(core)))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/bad", func(c *gin.Context) { c.Status(http.StatusConflict) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Zero(t, logs.Len())

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ok?x=1", nil)
	req.Header.Set(requestIDHeader, "req-1")
	router.ServeHTTP(w, req)
	assert.Equal(t, "req-1", w.Header().Get(requestIDHeader))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/bad", nil))
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, "Request completed", entries[0].Message)
	assert.Equal(t, "/ok?x=1", entries[0].ContextMap()["path"])
	assert.Equal(t, "req-1", entries[0].ContextMap()["request_id"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
}

func TestNewRouter_HealthAndMetrics(t *testing.T) {
	cfg := &config.Config{AppEnv: "test", CORSAllowedOrigins: []string{"*"}}
	router := NewRouter(cfg, &SessionHandler{logger: zap.NewNop()}, zap.NewNop())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "gin_requests_total")
}

func TestHandleServiceError_Internal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	handleServiceError(c, zap.NewNop(), assert.AnError)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), models.ErrCodeInternal)
	assert.NotContains(t, w.Body.String(), assert.AnError.Error())
}
