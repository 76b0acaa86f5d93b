// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, session tokens, logging/redaction, panic
// recovery, metrics, compression, CORS, security headers, API keys,
// idempotency, and rate limiting.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/astro-chat-relay/docs" // registers the Swagger document
	"github.com/tbourn/astro-chat-relay/internal/astro"
	"github.com/tbourn/astro-chat-relay/internal/config"
	"github.com/tbourn/astro-chat-relay/internal/http/handlers"
	"github.com/tbourn/astro-chat-relay/internal/http/middleware"
	"github.com/tbourn/astro-chat-relay/internal/lock"
	"github.com/tbourn/astro-chat-relay/internal/observability"
	"github.com/tbourn/astro-chat-relay/internal/oracle"
	"github.com/tbourn/astro-chat-relay/internal/repo"
	"github.com/tbourn/astro-chat-relay/internal/services"
)

// Upstream is everything the relay needs from the astrology API: category
// fetches for the profile cache, geo search, and pass-through calls.
// *astro.Client implements it.
type Upstream interface {
	services.Gateway
	services.GeoSearcher
	handlers.Upstream
}

// Backends are the external collaborators of the HTTP layer.
type Backends struct {
	DB       *gorm.DB
	Upstream Upstream
	Oracle   oracle.Completer
	Locker   lock.Locker
	Catalog  *astro.Catalog
}

// allowHeaders are the request headers browsers may send cross-origin.
var allowHeaders = []string{
	"Origin", "Content-Type", "Accept", "Authorization",
	middleware.HeaderAPIKey, middleware.HeaderSessionID, middleware.HeaderIdempotencyKey,
}

// exposeHeaders are the response headers browsers may read cross-origin.
var exposeHeaders = []string{"X-Request-ID", middleware.HeaderSessionID, "ETag", "Content-Length"}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and builds the services behind them.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Session: read the session token (cookie or X-Session-ID)
//  4. Access log (redacting by default)
//  5. Recovery: capture panics after logger
//  6. Body size limiter
//  7. Metrics
//  8. Compression
//  9. Idempotency validator (before rate limiter to allow bypass on replay)
//  10. CORS and Security headers
//
// The API key check guards the API group; the rate limiter guards the routes
// that reach the upstream or the oracle.
func RegisterRoutes(r *gin.Engine, b Backends, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName, otelgin.WithFilter(observability.TraceRequest)))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Session token for logging, idempotency and rate-limit keys
	r.Use(middleware.Session(cfg.Chat.SessionCookie))

	// 4) Structured logging; birth data in query strings is masked
	if cfg.LogRedact {
		r.Use(middleware.RedactingLogger(middleware.RedactOptions{MaskParams: []string{"city", "full_name"}}))
	} else {
		r.Use(middleware.Logger())
	}

	// 5) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 6) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Compress JSON bodies (proxy payloads and chart SVGs are large)
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	// 9) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200},
		func(ctx context.Context, sessionID, key string, now time.Time) (string, error) {
			rec, err := repo.GetIdempotency(ctx, b.DB, sessionID, key, now)
			switch {
			case errors.Is(err, repo.ErrNotFound):
				return "", nil
			case err != nil:
				return "", err
			}
			return rec.TurnID, nil
		},
	))

	// 10) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		// Named origins may send the session cookie.
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     allowHeaders,
			ExposeHeaders:    exposeHeaders,
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← db/upstream/oracle
	sessions := &services.SessionService{DB: b.DB, TTL: cfg.Chat.SessionTTL}
	profiles := &services.ProfileService{
		DB:          b.DB,
		Gateway:     b.Upstream,
		Catalog:     b.Catalog,
		FreshFor:    cfg.Chat.ProfileFreshFor,
		MajorAfter:  cfg.Chat.ProfileMajorAge,
		Concurrency: cfg.Upstream.Concurrency,
	}
	chat := &services.ChatService{
		DB:             b.DB,
		Sessions:       sessions,
		Profiles:       profiles,
		Oracle:         b.Oracle,
		Locker:         b.Locker,
		MaxQueryRunes:  cfg.Chat.MaxQueryRunes,
		IdempotencyTTL: cfg.IdempotencyTTL,
	}
	locations := &services.LocationService{DB: b.DB, Geo: b.Upstream, TTL: cfg.Chat.GeoSearchTTL}

	h := handlers.New(handlers.Deps{
		Chat:      chat,
		Sessions:  sessions,
		Feedback:  &services.FeedbackService{DB: b.DB},
		Locations: locations,
		Upstream:  b.Upstream,
		Catalog:   b.Catalog,
	}, handlers.CookieOptions{
		Name:   cfg.Chat.SessionCookie,
		Secure: cfg.Chat.CookieSecure,
		MaxAge: cfg.Chat.SessionTTL,
	})

	// Token-bucket rate limiter per session/IP for upstream and oracle traffic
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyBySessionOrIP())
	limited := rl.Handler()

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(middleware.APIKey(middleware.APIKeyOptions{Key: cfg.Auth.APIKey, Required: cfg.Auth.Required}))
	{
		// Chat
		api.POST("/chat/prediction", limited, h.Predict)

		// Session
		session := api.Group("/chat/session", middleware.PrivateCache())
		session.GET("", h.GetSession)
		session.GET("/turns", h.ListTurns)
		session.DELETE("", h.DeleteSession)

		// Feedback
		api.POST("/chat/turns/:id/feedback", h.LeaveFeedback)

		// Location
		api.GET("/geo-search", limited, h.GeoSearch)
		api.GET("/select-location", h.SelectLocation)

		// Pass-through catalog
		api.GET("/endpoints", h.ListEndpoints)
		for i := range b.Catalog.Endpoints {
			ep := &b.Catalog.Endpoints[i]
			api.GET("/"+ep.Path, limited, h.Proxy(ep))
		}
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
