package api

import (
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/Migyaba/external-settlement-service/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const validBody = `{"participantId":"1","amount":"1","currency":"USD","reference":"R"}`

func TestAPIKey(t *testing.T) {
	cfg := testConfig()
	cfg.Server.APIKey = "s3cret"
	stub := &stubReconciler{outcome: &domain.Outcome{Status: domain.StatusPendingQuorum}}
	router := NewRouter(cfg, NewHandler(stub), nil)

	rec := do(router, http.MethodPost, "/external-settlement/42", validBody, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "InvalidAPIKey")

	rec = do(router, http.MethodPost, "/external-settlement/42", validBody, map[string]string{APIKeyHeader: "wrong"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(router, http.MethodPost, "/external-settlement/42", validBody, map[string]string{APIKeyHeader: "s3cret"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "health is not behind the key")
}

func TestCorrelationID(t *testing.T) {
	var seen string
	router := gin.New()
	router.Use(CorrelationID())
	router.GET("/", func(c *gin.Context) {
		seen = domain.CorrelationID(c.Request.Context())
	})

	rec := do(router, http.MethodGet, "/", "", map[string]string{CorrelationHeader: "abc-123"})
	assert.Equal(t, "abc-123", rec.Header().Get(CorrelationHeader))
	assert.Equal(t, "abc-123", seen)

	rec = do(router, http.MethodGet, "/", "", nil)
	assert.Len(t, rec.Header().Get(CorrelationHeader), 36)
	assert.Equal(t, rec.Header().Get(CorrelationHeader), seen)
}

func TestRecovery(t *testing.T) {
	router := gin.New()
	router.Use(Recovery(testLogger()))
	router.GET("/boom", func(c *gin.Context) { panic("boom") })

	rec := do(router, http.MethodGet, "/boom", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "InternalError")
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 2)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"), "burst exhausted")
	assert.True(t, rl.Allow("10.0.0.2"), "budgets are per client")

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("10.0.0.1"), "refilled after one second")

	now = now.Add(time.Hour)
	rl.Allow("10.0.0.3")
	rl.mu.Lock()
	_, kept := rl.clients["10.0.0.1"]
	rl.mu.Unlock()
	assert.False(t, kept, "idle clients are swept")
}

func TestRateLimitMiddleware(t *testing.T) {
	cfg := testConfig()
	cfg.Server.RateLimitRPS = 0.001
	cfg.Server.RateLimitBurst = 1
	stub := &stubReconciler{outcome: &domain.Outcome{Status: domain.StatusPendingQuorum}}
	router := NewRouter(cfg, NewHandler(stub), nil)

	rec := do(router, http.MethodPost, "/external-settlement/42", validBody, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(router, http.MethodPost, "/external-settlement/42", validBody, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "RateLimited")
}
