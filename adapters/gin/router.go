// Package gategin mounts the content delivery API on gin.
package gategin

import (
	"net/http"
	"time"

	"github.com/PaulFidika/contentgate/adapters/gin/handlers"
	"github.com/PaulFidika/contentgate/adapters/ginutil"
	core "github.com/PaulFidika/contentgate/core"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// RouterOptions wires NewRouter. Objects is mounted at /objects/*path when
// set; it is the local storage backend's file server. JWKS, when set, is
// served at /.well-known/jwks.json. HealthChecks back /healthz.
type RouterOptions struct {
	Service      *core.Service
	RateLimiter  ginutil.RateLimiter
	CookieName   string
	Language     *LanguageConfig
	Objects      http.Handler
	JWKS         http.Handler
	HealthChecks map[string]handlers.HealthCheck
	Logger       logrus.FieldLogger
}

func NewRouter(o RouterOptions) *gin.Engine {
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	r := gin.New()
	r.Use(RequestLogger(o.Logger), LanguageMiddleware(o.Language), gin.CustomRecovery(func(c *gin.Context, _ any) {
		ginutil.ServerErr(c, core.CodeInternal)
	}))

	r.GET("/healthz", handlers.HandleHealthGET(o.HealthChecks))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if o.Objects != nil {
		r.GET("/objects/*path", gin.WrapH(o.Objects))
		r.HEAD("/objects/*path", gin.WrapH(o.Objects))
	}
	if o.JWKS != nil {
		r.GET("/.well-known/jwks.json", gin.WrapH(o.JWKS))
	}
	r.GET("/content/:kind", AuthRequired(o.Service, o.CookieName), handlers.HandleContentGET(o.Service, o.RateLimiter))
	return r
}

// RequestLogger logs one line per request. Query strings are left out so
// signed URLs never reach the logs.
func RequestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
		if id, ok := CurrentIdentity(c); ok {
			entry = entry.WithField("identity_id", id.ID)
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request")
			return
		}
		entry.Debug("request")
	}
}
