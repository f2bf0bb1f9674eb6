// Package middleware carries this service's Gin middleware: correlation-id
// propagation and (wired in ServerFacade) panic recovery, both adapted
// directly from the teacher's middleware package.
package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hocman2/sfu-coordinator/internal/logging"
)

const CorrelationIDHeader = "X-Correlation-ID"

// CorrelationID reads X-Correlation-ID from the incoming request, or mints
// one, and stores it both on the Gin context and the request context so
// downstream logging picks it up automatically.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader(CorrelationIDHeader)
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Set(string(logging.CorrelationIDKey), cid)
		c.Header(CorrelationIDHeader, cid)
		c.Request = c.Request.WithContext(
			context.WithValue(c.Request.Context(), logging.CorrelationIDKey, cid),
		)
		c.Next()
	}
}
