package middleware

import (
	"net/http"

	"meshcall/pkg/errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandlerMiddleware maps errors queued on the gin context to a
// JSON error response. AppErrors carry their own status and code;
// anything else becomes an opaque 500.
func ErrorHandlerMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		if appErr := errors.GetAppError(err); appErr != nil {
			if appErr.HTTPStatus >= http.StatusInternalServerError {
				logger.Errorw("request failed",
					"code", appErr.Code, "error", err, "path", c.Request.URL.Path)
			} else {
				logger.Warnw("request rejected",
					"code", appErr.Code, "status", appErr.HTTPStatus, "path", c.Request.URL.Path)
			}
			writeError(c, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Context)
			return
		}

		logger.Errorw("unhandled error",
			"error", err, "path", c.Request.URL.Path, "method", c.Request.Method)
		writeError(c, http.StatusInternalServerError, errors.ErrCodeInternal, "internal server error", nil)
	}
}

// RecoveryMiddleware turns a handler panic into a 500 instead of
// killing the connection.
func RecoveryMiddleware(logger *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorw("panic in handler",
					"panic", r, "path", c.Request.URL.Path, "method", c.Request.Method)
				writeError(c, http.StatusInternalServerError, errors.ErrCodeInternal, "internal server error", nil)
				c.Abort()
			}
		}()
		c.Next()
	}
}

func writeError(c *gin.Context, status int, code errors.ErrorCode, message string, details map[string]interface{}) {
	body := gin.H{"error": string(code), "message": message}
	if len(details) > 0 {
		body["details"] = details
	}
	c.JSON(status, body)
}
