package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/usagedeck/usagedeck/internal/logging"
)

// Middleware instruments every request and emits one structured log line
// per request. It stamps the request context with a correlation ID, taken
// from the X-Correlation-ID header when the caller supplies one, so
// handler logs and the completion line share it.
func Middleware(m *Metrics, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		correlationID := c.GetHeader("X-Correlation-ID")
		if correlationID == "" {
			correlationID = logging.GenerateCorrelationID()
		}
		ctx := logging.WithCorrelationID(c.Request.Context(), correlationID)
		c.Request = c.Request.WithContext(ctx)

		m.IncHTTPRequestsInFlight()
		c.Next()
		m.DecHTTPRequestsInFlight()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()
		// Route template, not the raw path, keeps label cardinality bounded.
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = c.Request.URL.Path
		}

		m.RecordRequestLatency(endpoint, c.Request.Method, strconv.Itoa(status), duration)
		m.RecordHTTPRequest(endpoint, c.Request.Method, strconv.Itoa(status))

		logger.InfoWithContext(ctx, "request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration_seconds", duration,
		)
		if len(c.Errors) > 0 {
			logger.ErrorWithContext(ctx, "request error", "error", c.Errors.String())
		}
	}
}
