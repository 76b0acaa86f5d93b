// Session HTTP handlers.
//
// This file exposes the caller's conversation:
//   - GET    /chat/session         (metadata)
//   - GET    /chat/session/turns   (transcript, paginated, ETag support)
//   - DELETE /chat/session         (end the session)
//
// The session is identified the same way as on POST /chat/prediction. An
// unknown or expired token answers 404.
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/astro-chat-relay/internal/domain"
	"github.com/tbourn/astro-chat-relay/internal/http/middleware"
	"github.com/tbourn/astro-chat-relay/internal/services"
	"github.com/tbourn/astro-chat-relay/internal/utils"
)

// SessionResponse describes a live session.
type SessionResponse struct {
	SessionID   string     `json:"session_id" example:"6f1c2a4e-7be0-4d2f-9a57-0be3f6f0a6de"`
	ProfileKey  string     `json:"profile_key"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	LastUpdated time.Time  `json:"last_updated"`
	TurnCount   int64      `json:"turn_count" example:"4"`
	LatestTurn  *time.Time `json:"latest_turn,omitempty"`
}

// ListTurnsResponse wraps a page of turns and pagination information.
type ListTurnsResponse struct {
	Turns      []domain.Turn `json:"turns"`
	Pagination Pagination    `json:"pagination"`
}

// requireSession reads the session token or answers 404.
func requireSession(c *gin.Context) (string, bool) {
	token := middleware.SessionToken(c)
	if token == "" {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "no chat session")
		return "", false
	}
	return token, true
}

// GetSession godoc
// @ID          getSession
// @Summary     Current chat session
// @Description Returns metadata of the caller's live session.
// @Tags        Session
// @Produce     json
//
// @Param       X-Session-ID  header  string  false "Session token (alternative to the cookie)"
//
// @Success     200  {object}  handlers.SessionResponse
// @Failure     404  {object}  handlers.ErrorResponse  "No live session"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /chat/session [get]
func (h *Handlers) GetSession(c *gin.Context) {
	token, found := requireSession(c)
	if !found {
		return
	}
	info, err := h.sessionSvc.Info(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "chat session not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, SessionResponse{
		SessionID:   info.Session.ID,
		ProfileKey:  info.Session.ProfileKey,
		CreatedAt:   info.Session.CreatedAt,
		ExpiresAt:   info.Session.ExpiresAt,
		LastUpdated: info.Session.LastUpdated,
		TurnCount:   info.TurnCount,
		LatestTurn:  info.LatestTurn,
	})
}

// ListTurns godoc
// @ID          listTurns
// @Summary     Session transcript (paginated)
// @Description Returns a page of the caller's transcript in order. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Session
// @Produce     json
//
// @Param       X-Session-ID   header  string  false "Session token (alternative to the cookie)"
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListTurnsResponse
// @Header      200  {string} ETag           "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     404  {object} handlers.ErrorResponse "No live session"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /chat/session/turns [get]
func (h *Handlers) ListTurns(c *gin.Context) {
	token, found := requireSession(c)
	if !found {
		return
	}
	ctx := c.Request.Context()
	page, pageSize := clampPagination(c)

	info, err := h.sessionSvc.Info(ctx, token)
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "chat session not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	// Turns are append-only, so count plus latest timestamp identifies the
	// transcript state.
	var ts int64
	if info.LatestTurn != nil {
		ts = info.LatestTurn.UnixNano()
	}
	etag := fmt.Sprintf(`W/"turns:%d:%d:%d:%d"`, info.TurnCount, ts, page, pageSize)
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return
	}

	items, total, err := h.sessionSvc.TurnsPage(ctx, token, page, pageSize)
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "chat session not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	win := utils.NewPage(page, pageSize)
	ok(c, http.StatusOK, ListTurnsResponse{
		Turns: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: win.TotalPages(total),
			HasNext:    win.HasNext(total),
		},
	})
}

// DeleteSession godoc
// @ID          deleteSession
// @Summary     End the chat session
// @Description Deletes the caller's session with its transcript and feedback, and clears the cookie.
// @Tags        Session
//
// @Param       X-Session-ID  header  string  false "Session token (alternative to the cookie)"
//
// @Success     204  {string} string "No Content"
// @Failure     404  {object} handlers.ErrorResponse "No live session"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /chat/session [delete]
func (h *Handlers) DeleteSession(c *gin.Context) {
	token, found := requireSession(c)
	if !found {
		return
	}
	if err := h.sessionSvc.Delete(c.Request.Context(), token); err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "chat session not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	h.clearSession(c)
	noContent(c)
}
