package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ShaurayaMohan/TARS-Windscribe/common/logger"
)

// quietRoutes are hit by health checks and scrapers.
var quietRoutes = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// Logger writes one access line per request, keyed by the route template
// rather than the raw URL so query strings never reach the logs.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Request = c.Request.WithContext(logger.WithLogFields(c.Request.Context(), logger.LogFields{
			Component: "tars.http",
		}))

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("route", route),
			slog.Int("status", status),
			slog.Int64("latency_ms", time.Since(start).Milliseconds()),
			slog.Int("bytes", max(c.Writer.Size(), 0)),
			slog.String("client_ip", c.ClientIP()),
		}
		if ua := c.Request.UserAgent(); ua != "" {
			attrs = append(attrs, slog.String("user_agent", ua))
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, slog.String("errors", c.Errors.String()))
		}

		slog.LogAttrs(c.Request.Context(), levelFor(route, status), "http request", attrs...)
	}
}

func levelFor(route string, status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	case quietRoutes[route]:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
