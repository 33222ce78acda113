package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
)

// BodySizeLimit caps request bodies at maxBytes. A declared Content-Length
// over the cap is rejected before the handler runs; a chunked body fails on
// read with *http.MaxBytesError, which handlers answer the same way via
// PayloadTooLarge.
func BodySizeLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			// The unread body would otherwise be drained before the connection is reused.
			c.Header("Connection", "close")
			PayloadTooLarge(c, maxBytes)
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// PayloadTooLarge aborts with 413 and the payload-too-large error body.
func PayloadTooLarge(c *gin.Context, maxBytes int64) {
	c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
		"error":     domain.ErrPayloadTooLarge.Error(),
		"max_bytes": maxBytes,
	})
}
