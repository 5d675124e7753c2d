package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Check pings one dependency.
type Check func(ctx context.Context) error

// Health returns a JSON health check response.
// Runs every check; never exposes credentials or internals.
func Health(checks map[string]Check) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		body := gin.H{}
		status := http.StatusOK
		for name, check := range checks {
			if err := check(ctx); err != nil {
				body[name] = "error"
				status = http.StatusServiceUnavailable
				continue
			}
			body[name] = "connected"
		}
		body["ok"] = status == http.StatusOK
		c.JSON(status, body)
	}
}
