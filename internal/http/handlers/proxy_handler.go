// Pass-through HTTP handlers.
//
// Every endpoint of the astrology catalog is served by one generic handler:
//   - GET /{group}/{name}?...   e.g. /horoscope/planet-details
//
// Parameters are checked against the catalog before any network call
// (dates, times, numbers, one-of sets; zodiac, nakshatra and planet names
// are turned into their upstream codes). The upstream's response object is
// returned in the same {status, response} envelope; image endpoints answer
// with the SVG text as the response value.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/astro-chat-relay/internal/astro"
	"github.com/tbourn/astro-chat-relay/internal/http/middleware"
)

// Proxy returns the handler for one catalog endpoint.
func (h *Handlers) Proxy(ep *astro.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, err := ep.Query(h.catalog, c.Request.URL.Query())
		if err != nil {
			var ve *astro.ValidationError
			if errors.As(err, &ve) {
				fail(c, http.StatusBadRequest, ErrCodeBadRequest, ve.Error())
				return
			}
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
			return
		}

		ctx := c.Request.Context()
		if ep.Raw {
			text, err := h.upstream.GetRaw(ctx, ep.Path, q)
			if err != nil {
				h.proxyFailure(c, ep, err)
				return
			}
			envelope(c, text)
			return
		}

		payload, err := h.upstream.Get(ctx, ep.Path, q)
		if err != nil {
			h.proxyFailure(c, ep, err)
			return
		}
		envelope(c, payload)
	}
}

func (h *Handlers) proxyFailure(c *gin.Context, ep *astro.Endpoint, err error) {
	status := upstreamStatus(err)
	msg := "Failed to fetch " + ep.Path + " from external API: " + upstreamText(err)
	if status < http.StatusInternalServerError {
		middleware.LoggerFrom(c).Warn().Str("upstream_path", ep.Path).Int("upstream_status", status).Msg("upstream rejected request")
	}
	fail(c, status, ErrCodeUpstreamFailed, msg)
}

// ListEndpoints godoc
// @ID          listEndpoints
// @Summary     Catalog of pass-through endpoints
// @Description Lists every proxied upstream endpoint with its parameters.
// @Tags        Catalog
// @Produce     json
//
// @Success     200  {array} handlers.EndpointInfo
// @Router      /endpoints [get]
func (h *Handlers) ListEndpoints(c *gin.Context) {
	out := make([]EndpointInfo, 0, len(h.catalog.Endpoints))
	for i := range h.catalog.Endpoints {
		ep := &h.catalog.Endpoints[i]
		info := EndpointInfo{Path: "/" + ep.Path, Raw: ep.Raw}
		for _, p := range ep.ResolvedParams() {
			pi := ParamInfo{Name: p.Name, Required: p.Required, Default: p.Default, Kind: p.Kind}
			switch {
			case p.Choice != "":
				pi.Kind = "choice"
				pi.Values = h.catalog.Choices[p.Choice]
			case p.Lookup != "":
				pi.Kind = "name"
				pi.Lookup = p.Lookup
			}
			info.Params = append(info.Params, pi)
		}
		out = append(out, info)
	}
	ok(c, http.StatusOK, out)
}

// EndpointInfo describes one proxied route.
type EndpointInfo struct {
	Path   string      `json:"path" example:"/horoscope/planet-report"`
	Raw    bool        `json:"raw,omitempty"`
	Params []ParamInfo `json:"params"`
}

// ParamInfo describes one query parameter of a proxied route.
type ParamInfo struct {
	Name     string   `json:"name" example:"planet"`
	Kind     string   `json:"kind,omitempty" example:"choice"`
	Required bool     `json:"required"`
	Default  string   `json:"default,omitempty"`
	Values   []string `json:"values,omitempty"`
	Lookup   string   `json:"lookup,omitempty"`
}
