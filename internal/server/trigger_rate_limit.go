package server

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/tirta/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/tirta/internal/observability/metrics"
	"go.uber.org/zap"
)

const rateLimitReasonConfigRate = "config-rate"

// TriggerRateLimit throttles manual executions per billing config. It runs
// after ConfigContext so the bucket is keyed by the resolved config id.
func (s *Server) TriggerRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.triggerLimiter.Enabled() {
			c.Next()
			return
		}

		cfg := configFromContext(c)
		if cfg == nil {
			AbortWithError(c, ErrNotFound)
			return
		}

		ctx := c.Request.Context()
		endpoint := normalizeRateLimitEndpoint(c)

		result, err := s.triggerLimiter.Allow(ctx, cfg.ID.String())
		if err != nil {
			logger.FromContext(ctx).Warn("manual trigger rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !result.Allowed {
			logger.FromContext(ctx).Warn("manual trigger rate limit exceeded",
				zap.String("reason", rateLimitReasonConfigRate),
				zap.String("endpoint", endpoint),
			)
			recordRateLimitDenied(ctx, endpoint, rateLimitReasonConfigRate, s.obsMetrics)

			retryAfter := int(math.Ceil(result.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			c.Header("X-Rate-Limited-Reason", rateLimitReasonConfigRate)
			AbortWithError(c, ErrRateLimited)
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		recordRateLimitAllowed(ctx, endpoint, s.obsMetrics)
		c.Next()
	}
}

func recordRateLimitAllowed(ctx context.Context, endpoint string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitAllowed(ctx, endpoint)
}

func recordRateLimitDenied(ctx context.Context, endpoint, reason string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitDenied(ctx, endpoint, reason)
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
