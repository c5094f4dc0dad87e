package api

import (
	"log/slog"

	"github.com/Migyaba/external-settlement-service/internal/infra"

	"github.com/gin-gonic/gin"
)

// NewRouter wires the middleware chain and routes. metrics may be nil.
func NewRouter(cfg *infra.Config, h *Handler, metrics *infra.Metrics) *gin.Engine {
	logger := slog.Default().With("module", "http")

	router := gin.New()
	router.Use(CorrelationID(), RequestLogger(logger), Recovery(logger))

	router.GET("/health", h.Health)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	settlements := router.Group("/external-settlement")
	settlements.Use(APIKey(cfg.Server.APIKey))
	if cfg.Server.RateLimitRPS > 0 {
		settlements.Use(NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst).Middleware())
	}
	settlements.POST("/:settlementId", h.Notify)
	settlements.GET("/:settlementId/status", h.Status)

	return router
}
