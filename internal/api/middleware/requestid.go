package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/auditrunner/internal/shared/id"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-Id"

const requestIDKey = "request_id"

// RequestID tags every request with an id, reusing a valid incoming one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := id.RequestID(c.GetHeader(RequestIDHeader))
		if !id.IsValid(string(rid)) {
			rid = id.NewRequestID()
		}
		c.Set(requestIDKey, string(rid))
		c.Header(RequestIDHeader, string(rid))
		c.Next()
	}
}

// GetRequestID returns the id assigned by RequestID.
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
