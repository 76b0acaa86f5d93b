// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the X-API-Key check. A request carrying the header
// must present the configured key; a request without it is let through
// unless the check is marked required.
package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HeaderAPIKey is the request header holding the shared API key.
const HeaderAPIKey = "X-API-Key"

// APIKeyOptions configures APIKey.
type APIKeyOptions struct {
	// Key is the expected value. An empty Key disables the check entirely.
	Key string
	// Required rejects requests that omit the header.
	Required bool
}

// APIKey returns a middleware that validates X-API-Key in constant time.
// Rejections are 403 with the standard error envelope.
func APIKey(opts APIKeyOptions) gin.HandlerFunc {
	want := []byte(opts.Key)
	return func(c *gin.Context) {
		if len(want) == 0 {
			c.Next()
			return
		}
		got := c.GetHeader(HeaderAPIKey)
		if got == "" && !opts.Required {
			c.Next()
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			SetErrorCode(c, "forbidden")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "forbidden",
				"message":    "Could not validate API Key",
			})
			return
		}
		c.Next()
	}
}
