package server

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/tracechain/internal/observability/logger"
	"go.uber.org/zap"
)

// StepWriteRateLimit throttles step submissions per actor. Limiter errors fail
// open: the sequencer lock still bounds ledger traffic.
func (s *Server) StepWriteRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.stepLimiter.Enabled() {
			c.Next()
			return
		}

		a, ok := currentActor(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := c.Request.Context()
		res, err := s.stepLimiter.AllowActor(ctx, a.ID)
		if err != nil {
			logger.FromContext(ctx).Warn("step write rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if !res.Allowed {
			logger.FromContext(ctx).Warn("step write rate limit exceeded",
				zap.String("endpoint", normalizeEndpoint(c)),
			)
			retry := int(res.RetryAfter.Seconds())
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			AbortWithError(c, ErrRateLimited)
			return
		}
		c.Next()
	}
}

func normalizeEndpoint(c *gin.Context) string {
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
