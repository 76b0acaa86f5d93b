// Location HTTP handlers.
//
// Place lookup is a two-step flow:
//   - GET /geo-search?city=            (search; returns a search_token)
//   - GET /select-location?search_token=&full_name=
//
// The search results are stored server-side under the returned token, so a
// selection only ever sees the caller's own search.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/astro-chat-relay/internal/astro"
	"github.com/tbourn/astro-chat-relay/internal/services"
)

// GeoSearchResponse lists the places matching a city name.
type GeoSearchResponse struct {
	Status       int              `json:"status" example:"200"`
	SearchToken  string           `json:"search_token" example:"0b8e5d8c-3a54-4d7a-bb43-1f1f3f0d2f0c"`
	Locations    []astro.Location `json:"locations"`
	ResultLength int              `json:"result_length" example:"3"`
}

// SelectLocationResponse carries the coordinates of the chosen place.
type SelectLocationResponse struct {
	Status      int    `json:"status" example:"200"`
	FullName    string `json:"full_name" example:"Kanpur, Uttar Pradesh, IN"`
	Coordinates any    `json:"coordinates" swaggertype:"array,string"`
}

// upstreamStatus maps an upstream failure onto the relay's status: client
// errors pass through, everything else is a bad gateway.
func upstreamStatus(err error) int {
	var ue *astro.UpstreamError
	if errors.As(err, &ue) && ue.Status >= 400 && ue.Status < 500 {
		return ue.Status
	}
	return http.StatusBadGateway
}

// GeoSearch godoc
// @ID          geoSearch
// @Summary     Search places by city name
// @Tags        Location
// @Produce     json
//
// @Param       X-API-Key  header  string  false "API key"
// @Param       city       query   string  true  "City name"  example(Kanpur)
//
// @Success     200  {object} handlers.GeoSearchResponse
// @Failure     400  {object} handlers.ErrorResponse "Missing city"
// @Failure     502  {object} handlers.ErrorResponse "Upstream failure"
// @Router      /geo-search [get]
func (h *Handlers) GeoSearch(c *gin.Context) {
	res, err := h.locationSvc.Search(c.Request.Context(), c.Query("city"))
	if err != nil {
		var ue *astro.UpstreamError
		switch {
		case errors.Is(err, services.ErrEmptyCity):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "city is required")
		case errors.As(err, &ue):
			fail(c, upstreamStatus(err), ErrCodeUpstreamFailed, "Failed to fetch data from external API: "+ue.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, GeoSearchResponse{
		Status:       http.StatusOK,
		SearchToken:  res.Token,
		Locations:    res.Locations,
		ResultLength: len(res.Locations),
	})
}

// SelectLocation godoc
// @ID          selectLocation
// @Summary     Pick a place from a previous search
// @Description Matches full_name exactly, then case-insensitively, then by best word overlap.
// @Tags        Location
// @Produce     json
//
// @Param       X-API-Key     header  string  false "API key"
// @Param       search_token  query   string  true  "Token returned by /geo-search"
// @Param       full_name     query   string  true  "Full place name"  example(Kanpur, Uttar Pradesh, IN)
//
// @Success     200  {object} handlers.SelectLocationResponse
// @Failure     404  {object} handlers.ErrorResponse "Unknown search or no match"
// @Router      /select-location [get]
func (h *Handlers) SelectLocation(c *gin.Context) {
	loc, err := h.locationSvc.Select(c.Request.Context(), c.Query("search_token"), c.Query("full_name"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSearchNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "search not found or expired")
		case errors.Is(err, services.ErrLocationNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "Selected location not found in recent search results")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}
	ok(c, http.StatusOK, SelectLocationResponse{
		Status:      http.StatusOK,
		FullName:    loc.FullName,
		Coordinates: loc.Coordinates,
	})
}
