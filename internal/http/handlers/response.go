// Package handlers provides the HTTP handlers of the astrology chat relay.
//
// This file holds the response helpers shared by every endpoint:
//   - ErrorResponse and fail() produce the single error envelope used across
//     the API, {request_id, code, message}, and log 5xx through the
//     request-scoped logger.
//   - Envelope mirrors the upstream API's {status, response} shape; the proxy
//     endpoints answer with it so clients see the same structure the
//     upstream returns.
//   - ok() and noContent() write success responses.
//
// Example error response:
//
//	HTTP/1.1 500 Internal Server Error
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "prediction_failed",
//	  "message": "Failed to get prediction: oracle: status 503: unavailable"
//	}
//
// Example proxy response:
//
//	HTTP/1.1 200 OK
//	{ "status": 200, "response": { "ascendant": "Leo" } }
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/astro-chat-relay/internal/http/middleware"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"bad_request"`
	// Human-readable message; upstream and oracle failures include the
	// remote error text.
	Message string `json:"message" example:"invalid dob: must be DD/MM/YYYY"`
}

// Envelope is the upstream-compatible success body of the proxy endpoints.
type Envelope struct {
	Status   int `json:"status" example:"200"`
	Response any `json:"response" swaggertype:"object"`
}

// fail aborts the request with a structured error and logs server-side errors.
func fail(c *gin.Context, status int, code, msg string) {
	resp := ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	}

	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	middleware.SetErrorCode(c, code)
	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail() for the router's NoRoute and
// NoMethod handlers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// envelope writes a 200 {status, response} body.
func envelope(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, Envelope{Status: http.StatusOK, Response: payload})
}

// noContent writes an HTTP 204 No Content response.
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
