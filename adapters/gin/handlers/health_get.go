package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthCheck probes one dependency. It should return quickly.
type HealthCheck func(ctx context.Context) error

// HandleHealthGET runs every check with a shared deadline and answers 503 when
// any of them fails. Failure details stay in the logs; the body names the
// failing dependencies only.
func HandleHealthGET(checks map[string]HealthCheck) gin.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		var failing []string
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				_ = c.Error(err)
				failing = append(failing, name)
			}
		}
		if len(failing) > 0 {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "failing": failing})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
