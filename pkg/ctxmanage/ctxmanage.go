package ctxmanage

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const TraceIDHeader = "X-Trace-Id"

// GetTraceIdOfRequest returns the trace id attached by the logger middleware,
// or mints one if the request skipped the middleware (public endpoints).
func GetTraceIdOfRequest(c *gin.Context) string {
	traceId := c.Request.Header.Get(TraceIDHeader)
	if traceId == "" {
		traceId = uuid.NewString()
	}
	return traceId
}
