// Chat HTTP handlers.
//
// This file wires the handler set and exposes the conversational endpoint:
//   - POST /chat/prediction   (one chat turn)
//
// The session token travels in the chat_session_id cookie (or X-Session-ID
// for clients without a cookie jar). A request without a live session starts
// one; the response sets the cookie and echoes the token in X-Session-ID.
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/tbourn/astro-chat-relay/internal/astro"
	"github.com/tbourn/astro-chat-relay/internal/domain"
	"github.com/tbourn/astro-chat-relay/internal/http/middleware"
	"github.com/tbourn/astro-chat-relay/internal/oracle"
	"github.com/tbourn/astro-chat-relay/internal/services"
	"github.com/tbourn/astro-chat-relay/internal/utils"
)

//
// Service contracts (context-aware)
//

// ChatService runs one conversational turn.
type ChatService interface {
	Predict(ctx context.Context, token string, in services.PredictInput) (*services.Prediction, error)
}

// SessionService exposes session metadata and transcripts.
type SessionService interface {
	Info(ctx context.Context, token string) (*services.SessionInfo, error)
	TurnsPage(ctx context.Context, token string, page, pageSize int) ([]domain.Turn, int64, error)
	Delete(ctx context.Context, token string) error
}

// FeedbackService records ratings on assistant turns.
type FeedbackService interface {
	Leave(ctx context.Context, sessionID, turnID string, value int, comment string) (*domain.Feedback, error)
}

// LocationService implements the two-step search-then-select flow.
type LocationService interface {
	Search(ctx context.Context, city string) (*services.LocationResults, error)
	Select(ctx context.Context, token, fullName string) (*astro.Location, error)
}

// Upstream performs pass-through calls to the astrology API.
type Upstream interface {
	Get(ctx context.Context, path string, q url.Values) (json.RawMessage, error)
	GetRaw(ctx context.Context, path string, q url.Values) (string, error)
}

//
// Handler wiring
//

// CookieOptions controls the session cookie.
type CookieOptions struct {
	Name   string
	Secure bool
	MaxAge time.Duration
}

// Deps are the collaborators of Handlers. Nil services leave their routes
// unusable; the router registers only what it was given.
type Deps struct {
	Chat      ChatService
	Sessions  SessionService
	Feedback  FeedbackService
	Locations LocationService
	Upstream  Upstream
	Catalog   *astro.Catalog
}

// Handlers groups the HTTP endpoints of the relay.
type Handlers struct {
	chatSvc     ChatService
	sessionSvc  SessionService
	fbSvc       FeedbackService
	locationSvc LocationService
	upstream    Upstream
	catalog     *astro.Catalog
	cookie      CookieOptions
}

// New constructs a Handlers instance bound to the given services.
func New(d Deps, cookie CookieOptions) *Handlers {
	if cookie.Name == "" {
		cookie.Name = "chat_session_id"
	}
	if cookie.MaxAge <= 0 {
		cookie.MaxAge = services.DefaultSessionTTL
	}
	return &Handlers{
		chatSvc:     d.Chat,
		sessionSvc:  d.Sessions,
		fbSvc:       d.Feedback,
		locationSvc: d.Locations,
		upstream:    d.Upstream,
		catalog:     d.Catalog,
		cookie:      cookie,
	}
}

// setSession hands the session token back to the client.
func (h *Handlers) setSession(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, token, int(h.cookie.MaxAge/time.Second), "/", "", h.cookie.Secure, true)
	c.Header(middleware.HeaderSessionID, token)
}

// clearSession expires the session cookie.
func (h *Handlers) clearSession(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, "", -1, "/", "", h.cookie.Secure, true)
}

//
// DTOs
//

// Coordinate is a latitude or longitude given either as a JSON number or as
// a numeric string ("26.46523000").
type Coordinate float64

// UnmarshalJSON accepts 26.4 and "26.4".
func (f *Coordinate) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("coordinate %q is not a number", s)
	}
	*f = Coordinate(v)
	return nil
}

// PredictionRequest is the JSON payload of POST /chat/prediction.
type PredictionRequest struct {
	Name string `json:"name" binding:"required" example:"Asha Rao"`
	// DOB is the date of birth, DD/MM/YYYY.
	DOB string `json:"dob" binding:"required" example:"09/09/1998"`
	// TOB is the time of birth, HH:MM (24h).
	TOB string      `json:"tob" binding:"required" example:"19:08"`
	Lat *Coordinate `json:"lat" binding:"required" swaggertype:"number" example:"26.46523"`
	Lon *Coordinate `json:"lon" binding:"required" swaggertype:"number" example:"80.34975"`
	// TZ is the UTC offset in hours.
	TZ *float64 `json:"tz" binding:"required" example:"5.5"`
	// Lang is a language tag; "en" when empty.
	Lang  string `json:"lang" example:"en"`
	Query string `json:"query" binding:"required" example:"What does my career look like this year?"`
}

// PredictionResponse is the reply of one chat turn.
type PredictionResponse struct {
	Prediction string `json:"prediction" example:"Jupiter transiting your tenth house..."`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	p := utils.ParsePage(c.Query("page"), c.Query("page_size"))
	return p.Number, p.Size
}

// bindMessage turns a binding error into a client-facing message.
func bindMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		names := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			names = append(names, strings.ToLower(fe.Field()))
		}
		return "invalid or missing fields: " + strings.Join(names, ", ")
	}
	return "invalid JSON body: " + err.Error()
}

// upstreamText returns the remote error text carried by err.
func upstreamText(err error) string {
	var ue *astro.UpstreamError
	if errors.As(err, &ue) {
		return ue.Error()
	}
	return err.Error()
}

// oracleText returns the oracle error text carried by err.
func oracleText(err error) string {
	var oe *oracle.Error
	if errors.As(err, &oe) {
		return oe.Error()
	}
	return err.Error()
}

//
// Handlers
//

// Predict godoc
// @ID          chatPrediction
// @Summary     Ask the astrologer
// @Description Runs one chat turn. Without a live session a new one is seeded from the birth profile (cached, refreshed by age); with one, only the query is appended. The session token is set as the chat_session_id cookie and echoed in X-Session-ID.
// @Tags        Chat
// @Accept      json
// @Produce     json
//
// @Param       X-API-Key        header  string  false "API key"
// @Param       X-Session-ID     header  string  false "Session token (alternative to the cookie)"
// @Param       Idempotency-Key  header  string  false "Replays the recorded reply of a retried follow-up"
// @Param       body             body    handlers.PredictionRequest  true  "Birth data and question"
//
// @Success     200  {object}  handlers.PredictionResponse
// @Header      200  {string}  X-Session-ID  "Session token"
// @Failure     400  {object}  handlers.ErrorResponse  "Invalid birth data or query"
// @Failure     403  {object}  handlers.ErrorResponse  "Could not validate API Key"
// @Failure     429  {object}  handlers.ErrorResponse  "Rate limited"
// @Failure     500  {object}  handlers.ErrorResponse  "Upstream or oracle failure"
// @Router      /chat/prediction [post]
func (h *Handlers) Predict(c *gin.Context) {
	var req PredictionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, bindMessage(err))
		return
	}

	idemKey, _ := middleware.GetIdempotencyKey(c)
	in := services.PredictInput{
		Birth: services.BirthData{
			Name: req.Name,
			DOB:  req.DOB,
			TOB:  req.TOB,
			Lat:  float64(*req.Lat),
			Lon:  float64(*req.Lon),
			TZ:   *req.TZ,
			Lang: req.Lang,
		},
		Query:          req.Query,
		IdempotencyKey: idemKey,
	}

	presented := middleware.SessionToken(c)
	res, err := h.chatSvc.Predict(c.Request.Context(), presented, in)
	if res != nil && res.SessionID != "" {
		h.setSession(c, res.SessionID)
	}
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidBirthData),
			errors.Is(err, services.ErrEmptyQuery),
			errors.Is(err, services.ErrQueryTooLong):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case errors.Is(err, services.ErrProfileUnavailable):
			fail(c, http.StatusInternalServerError, ErrCodeUpstreamFailed, "Failed to fetch astrological data: "+upstreamText(err))
		case errors.Is(err, services.ErrOracleFailed):
			fail(c, http.StatusInternalServerError, ErrCodePredictionFailed, "Failed to get prediction: "+oracleText(err))
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}

	lg := middleware.LoggerFrom(c)
	lg.Info().
		Bool("session_new", res.IsNew).
		Bool("replayed", res.Replayed).
		Str("tier", string(res.Tier)).
		Bool("stale_fallback", res.Fallback).
		Msg("prediction served")

	ok(c, http.StatusOK, PredictionResponse{Prediction: res.Text})
}
