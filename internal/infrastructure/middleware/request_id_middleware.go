package middleware

import (
	"meshcall/pkg/utils"

	"github.com/gin-gonic/gin"
)

// RequestIDHeader carries the id correlating a response with its log
// lines and trace.
const RequestIDHeader = "X-Request-ID"

// RequestIDMiddleware stamps every request with an id, honoring one the
// client already sent.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = utils.GenerateRequestID()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set(RequestIDHeader, id)
		c.Next()
	}
}
