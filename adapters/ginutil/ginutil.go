// Package ginutil holds the response and rate limit helpers shared by the gin
// handlers.
package ginutil

import (
	"context"
	"net/http"

	"github.com/PaulFidika/contentgate/core"
	"github.com/PaulFidika/contentgate/identity"
	"github.com/PaulFidika/contentgate/lang"
	"github.com/PaulFidika/contentgate/metrics"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Rate limit buckets.
const (
	RLContent = "content"
)

// RateLimiter is implemented by ratelimit/memory and ratelimit/redis.
type RateLimiter interface {
	Allow(ctx context.Context, bucket, key string) (bool, error)
}

// Allow checks bucket for the verified identity, or the client IP when the
// request is anonymous. Limiter errors let the request through.
func Allow(c *gin.Context, rl RateLimiter, bucket string) bool {
	if rl == nil {
		return true
	}
	key := c.ClientIP()
	if id, ok := identity.FromContext(c.Request.Context()); ok {
		key = id.ID
	}
	ok, err := rl.Allow(c.Request.Context(), bucket, key)
	if err != nil {
		logrus.WithError(err).WithField("bucket", bucket).Warn("rate limiter unavailable")
		return true
	}
	return ok
}

// TooMany responds 429.
func TooMany(c *gin.Context) {
	metrics.RateLimited.Inc()
	abort(c, http.StatusTooManyRequests, core.CodeRateLimited, lang.MsgRateLimited)
}

// BadRequest responds 400 with code.
func BadRequest(c *gin.Context, code string) {
	metrics.Failures.WithLabelValues(code).Inc()
	abort(c, http.StatusBadRequest, code, messageKey(code))
}

// Unauthorized responds 401.
func Unauthorized(c *gin.Context) {
	Fail(c, core.Failure{Status: http.StatusUnauthorized, Code: core.CodeUnauthenticated})
}

// ServerErr responds 500 with code unless a response was already started.
func ServerErr(c *gin.Context, code string) {
	metrics.Failures.WithLabelValues(code).Inc()
	if c.Writer.Written() {
		c.Abort()
		return
	}
	abort(c, http.StatusInternalServerError, code, messageKey(code))
}

// Fail writes a classified pipeline failure with a localized message.
func Fail(c *gin.Context, f core.Failure) {
	metrics.Failures.WithLabelValues(f.Code).Inc()
	abort(c, f.Status, f.Code, messageKey(f.Code))
}

func abort(c *gin.Context, status int, code string, key lang.MessageKey) {
	body := gin.H{"error": code}
	if key != "" {
		body["message"] = lang.MessageFor(c.Request.Context(), key)
	}
	c.Header("Cache-Control", "no-store")
	c.AbortWithStatusJSON(status, body)
}

func messageKey(code string) lang.MessageKey {
	switch code {
	case core.CodeUnauthenticated:
		return lang.MsgAccessExpired
	case core.CodeSubscriptionInactive:
		return lang.MsgSubscription
	case core.CodeNotAccessible:
		return lang.MsgNotAccessible
	case core.CodeUnavailable, core.CodeInternal:
		return lang.MsgUnavailable
	case core.CodeRateLimited:
		return lang.MsgRateLimited
	}
	return ""
}
