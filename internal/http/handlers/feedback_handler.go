// Feedback HTTP handlers.
//
// This file exposes the REST endpoint for rating assistant replies:
//   - POST /chat/turns/{id}/feedback  (create feedback)
//
// Only assistant turns of the caller's own session can be rated, once each.
// Feedback values are constrained to {-1, +1}.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/astro-chat-relay/internal/http/middleware"
	"github.com/tbourn/astro-chat-relay/internal/services"
)

// LeaveFeedbackRequest is the JSON payload for rating a turn.
//
// The binding tag enforces the value set at the transport layer.
type LeaveFeedbackRequest struct {
	// Value is the feedback signal: +1 (positive) or -1 (negative).
	Value   int    `json:"value" binding:"required,oneof=-1 1" example:"1"`
	Comment string `json:"comment,omitempty" example:"Spot on"`
}

// LeaveFeedback godoc
// @ID          leaveFeedback
// @Summary     Rate an assistant reply
// @Description Records positive (+1) or negative (-1) feedback for an assistant turn of the caller's session.
// @Tags        Feedback
// @Accept      json
// @Produce     json
//
// @Param       X-Session-ID  header  string  false "Session token (alternative to the cookie)"
// @Param       id            path    string  true  "Turn ID (UUID)"  format(uuid)
// @Param       body          body    handlers.LeaveFeedbackRequest true "Feedback payload"
//
// @Success     201  {object} domain.Feedback
// @Failure     400  {object} handlers.ErrorResponse "Invalid payload"
// @Failure     403  {object} handlers.ErrorResponse "Not allowed to leave feedback"
// @Failure     404  {object} handlers.ErrorResponse "Turn not found"
// @Failure     409  {object} handlers.ErrorResponse "Feedback already exists"
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /chat/turns/{id}/feedback [post]
func (h *Handlers) LeaveFeedback(c *gin.Context) {
	turnID := c.Param("id")
	if _, err := uuid.Parse(turnID); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "turn id must be a UUID")
		return
	}

	var req LeaveFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "value must be -1 or 1")
		return
	}

	sessionID := middleware.SessionToken(c)
	if sessionID == "" {
		fail(c, http.StatusForbidden, ErrCodeForbidden, "cannot leave feedback on this turn")
		return
	}

	fb, err := h.fbSvc.Leave(c.Request.Context(), sessionID, turnID, req.Value, req.Comment)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrTurnNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "turn not found")
		case errors.Is(err, services.ErrInvalidFeedback):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "value must be -1 or 1")
		case errors.Is(err, services.ErrForbiddenFeedback):
			fail(c, http.StatusForbidden, ErrCodeForbidden, "cannot leave feedback on this turn")
		case errors.Is(err, services.ErrDuplicateFeedback):
			fail(c, http.StatusConflict, ErrCodeConflict, "feedback already exists")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}

	ok(c, http.StatusCreated, fb)
}
