// Package middleware holds the Gin middleware of the relay's HTTP edge.
//
// Correlation and logging live here: RequestID binds a request-scoped
// zerolog logger to the Gin context and the request context (services log
// through zerolog.Ctx), Logger and RedactingLogger write one access line per
// request, and Recovery turns panics into the JSON error envelope. Handlers
// that fail a request call SetErrorCode so the access line and the error
// counter report the same code as the response body.
//
// Install RequestID first, then Session, then the access logger, then
// Recovery.
package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
	loggerKey       = "logger"
	errorCodeKey    = "errorCode"

	maxQueryLogLength  = 2048
	maxRequestIDLength = 128
)

// RequestID reuses the caller's X-Request-ID when it is at most 128 bytes
// and otherwise mints a UUIDv4. The ID is echoed on the response and stamped
// on the request logger.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" || len(rid) > maxRequestIDLength {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)

		l := log.With().Str("request_id", rid).Logger()
		c.Set(loggerKey, &l)
		c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))
		c.Next()
	}
}

// Logger writes the access line. The raw query is logged as is; use
// RedactingLogger when query strings may carry birth data.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		query := truncate(c.Request.URL.RawQuery, maxQueryLogLength)
		c.Next()
		l := accessFields(c, start).
			Str("query", query).
			Str("user_agent", c.Request.UserAgent()).
			Logger()
		accessEvent(&l, c).Msg("request")
	}
}

// accessFields collects what every access line carries. Call it after
// c.Next so the outcome is known.
func accessFields(c *gin.Context, start time.Time) zerolog.Context {
	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}
	ctx := LoggerFrom(c).With().
		Str("method", c.Request.Method).
		Str("path", route).
		Str("remote_ip", c.ClientIP()).
		Bool("has_session", SessionToken(c) != "").
		Int64("bytes_in", c.Request.ContentLength).
		Int("status", c.Writer.Status()).
		Dur("latency", time.Since(start)).
		Int("bytes_out", c.Writer.Size())
	if code := ErrorCode(c); code != "" {
		ctx = ctx.Str("error_code", code)
	}
	if IsReplay(c) {
		ctx = ctx.Bool("replay", true)
	}
	return ctx
}

// accessEvent picks the level: error for 5xx or recorded Gin errors, warn
// for other 4xx, info otherwise.
func accessEvent(l *zerolog.Logger, c *gin.Context) *zerolog.Event {
	status := c.Writer.Status()
	switch {
	case len(c.Errors) > 0:
		return l.Error().Str("errors", c.Errors.String())
	case status >= http.StatusInternalServerError:
		return l.Error()
	case status >= http.StatusBadRequest:
		return l.Warn()
	}
	return l.Info()
}

// Recovery logs a panic with its stack and answers 500 internal_error,
// unless the handler had already started writing.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")

			SetErrorCode(c, "internal_error")
			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			rid := c.GetString(requestIDKey)
			c.Header(requestIDHeader, rid)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": rid,
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}

// LoggerFrom returns the request logger, or a child of the global logger
// when RequestID did not run. Never nil.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if lg, ok := c.Value(loggerKey).(*zerolog.Logger); ok && lg != nil {
		return lg
	}
	l := log.With().Logger()
	return &l
}

// SetErrorCode records the API error code of the response being written.
func SetErrorCode(c *gin.Context, code string) { c.Set(errorCodeKey, code) }

// ErrorCode returns the code recorded by SetErrorCode, or "".
func ErrorCode(c *gin.Context) string { return c.GetString(errorCodeKey) }

// truncate caps s at max bytes plus an ellipsis; max <= 0 keeps s whole.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
