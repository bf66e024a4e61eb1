// Package health serves the liveness probe over the process's dependencies.
package health

import (
	"context"
	"net/http"
	"sort"
	"time"

	"contestjudge/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultTimeout = 2 * time.Second

// Pinger is anything that can report its connection is alive.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler pings every dependency and answers 200 when all respond, 503
// otherwise. The body maps each dependency name to "ok" or the error text.
func Handler(deps map[string]Pinger) gin.HandlerFunc {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), defaultTimeout)
		defer cancel()

		status := http.StatusOK
		checks := make(map[string]string, len(names))
		for _, name := range names {
			if err := deps[name].Ping(ctx); err != nil {
				logger.Warn(ctx, "health check failed", zap.String("dependency", name), zap.Error(err))
				checks[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}
		c.JSON(status, gin.H{"checks": checks})
	}
}
