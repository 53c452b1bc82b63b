package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"support_chat/pkg/logger"
)

type stubRateLimitService struct {
	keys    []string
	limits  []int
	allowed bool
	count   int64
}

func (s *stubRateLimitService) CheckLimit(_ context.Context, key string, limit int, _ int) (bool, error) {
	s.keys = append(s.keys, key)
	s.limits = append(s.limits, limit)
	return s.allowed, nil
}

func (s *stubRateLimitService) Increment(_ context.Context, _ string, _ int) (int64, error) {
	s.count++
	return s.count, nil
}

func newLimiterEngine(stub *stubRateLimitService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	m := NewRateLimitMiddleware(stub, logger.New("error"))

	engine := gin.New()
	engine.POST("/login", m.Limit(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	})
	engine.POST("/telegram/webhook", m.WebhookLimit(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	})
	return engine
}

func TestRateLimitScopesKeysPerEndpoint(t *testing.T) {
	stub := &stubRateLimitService{allowed: true}
	engine := newLimiterEngine(stub)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/telegram/webhook", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, stub.keys, 2)
	assert.True(t, strings.HasPrefix(stub.keys[0], "ratelimit:auth:"))
	assert.True(t, strings.HasPrefix(stub.keys[1], "ratelimit:webhook:"))
	assert.NotEqual(t, stub.keys[0], stub.keys[1])
}

func TestRateLimitWebhookWindowIsWider(t *testing.T) {
	stub := &stubRateLimitService{allowed: true}
	engine := newLimiterEngine(stub)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/telegram/webhook", nil))

	require.Len(t, stub.limits, 2)
	assert.Greater(t, stub.limits[1], stub.limits[0])
}

func TestRateLimitRejectsOverLimit(t *testing.T) {
	stub := &stubRateLimitService{allowed: false}
	engine := newLimiterEngine(stub)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Zero(t, stub.count)
}
