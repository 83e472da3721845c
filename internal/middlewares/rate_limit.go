package middlewares

import (
	"net/http"
	"time"

	"github.com/clearledger/go-docvault/internal/config"
	"github.com/clearledger/go-docvault/internal/pkg/cache"
	"github.com/clearledger/go-docvault/internal/pkg/logger"
	"github.com/clearledger/go-docvault/internal/pkg/utils"
	"github.com/clearledger/go-docvault/internal/pkg/xerr"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RateLimitMiddleware 基于 redis 计数器的每分钟限流，按操作者维度计数。
// Redis 不可用时放行，限流是保护手段，不能成为单点。
func RateLimitMiddleware(cfg *config.Config, cacheClient cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.RateLimit.Enabled {
			c.Next()
			return
		}

		actorID := c.GetString(utils.CtxKeyActorID)
		if actorID == "" {
			// 匿名请求按来源IP计数
			actorID = c.ClientIP()
		}

		window := time.Now().Unix() / 60
		key := cache.GenerateRateLimitKey(actorID, window)
		count, err := cacheClient.IncrWithTTL(c.Request.Context(), key, 2*time.Minute)
		if err != nil {
			logger.Warn("限流计数失败，放行请求", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		if count > int64(cfg.RateLimit.RequestsPerMin) {
			xerr.AbortWithError(c, http.StatusTooManyRequests, xerr.TooManyAttemptsCode, "请求过于频繁，请稍后再试")
			return
		}

		c.Next()
	}
}
