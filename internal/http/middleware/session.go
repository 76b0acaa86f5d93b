// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the caller's chat session token. Browsers carry it in
// an HttpOnly cookie; API clients may send it in the X-Session-ID header.
// The resolved value is stashed in the Gin context so idempotency, rate
// limiting and handlers agree on one identity per request.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderSessionID carries the session token for clients without cookies.
const HeaderSessionID = "X-Session-ID"

const ctxKeySession = "session.token"

// maxSessionTokenLen bounds what is accepted from the client; real tokens
// are 36-character UUIDs.
const maxSessionTokenLen = 64

// Session reads the token from cookieName, falling back to X-Session-ID.
// Values that are blank or oversized are ignored.
func Session(cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := ""
		if v, err := c.Cookie(cookieName); err == nil {
			tok = strings.TrimSpace(v)
		}
		if tok == "" {
			tok = strings.TrimSpace(c.GetHeader(HeaderSessionID))
		}
		if tok != "" && len(tok) <= maxSessionTokenLen {
			c.Set(ctxKeySession, tok)
		}
		c.Next()
	}
}

// SessionToken returns the token resolved by Session, or "".
func SessionToken(c *gin.Context) string {
	v, _ := c.Get(ctxKeySession)
	s, _ := v.(string)
	return s
}
