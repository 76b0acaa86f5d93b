package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey carries the client's retry key for POST /chat/prediction.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdem       = "idem.state"
	ctxKeyRateBypass = "rate.bypass" // bool, read by RateLimiter
)

const defaultIdempotencyKeyLen = 200

var defaultIdempotencyKeyPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// idemState is what IdempotencyValidator learned about the request.
type idemState struct {
	key        string
	replayTurn string // assistant turn recorded under key, "" when none
}

func idemFrom(c *gin.Context) idemState {
	v, _ := c.Get(ctxKeyIdem)
	st, _ := v.(idemState)
	return st
}

// GetIdempotencyKey returns the validated key, if the request carried one.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	k := idemFrom(c).key
	return k, k != ""
}

// IsReplay reports whether the session already completed a request under
// this key.
func IsReplay(c *gin.Context) bool { return ReplayTurnID(c) != "" }

// ReplayTurnID is the assistant turn recorded for the replayed request.
func ReplayTurnID(c *gin.Context) string { return idemFrom(c).replayTurn }

// IdempotencyOptions tunes key validation.
type IdempotencyOptions struct {
	MaxLen  int            // <= 0 means 200
	Pattern *regexp.Regexp // nil means ^[A-Za-z0-9._~\-:]+$
	Now     func() time.Time
}

// IdempotencyLookup returns the turn recorded for (sessionID, key) that is
// still valid at now, or "" when there is none.
type IdempotencyLookup func(ctx context.Context, sessionID, key string, now time.Time) (turnID string, err error)

// IdempotencyValidator checks the Idempotency-Key header and remembers it
// for the handler. A malformed key is rejected with 400
// bad_idempotency_key. When the request also carries a session token the
// lookup is consulted, and a hit marks the request as a replay that skips
// the rate limiter. Lookup failures are logged and the request proceeds as
// a fresh one.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = defaultIdempotencyKeyLen
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultIdempotencyKeyPattern
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			SetErrorCode(c, "bad_idempotency_key")
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}

		st := idemState{key: key}
		if sid := SessionToken(c); lookup != nil && sid != "" {
			turn, err := lookup(c.Request.Context(), sid, key, now().UTC())
			switch {
			case err != nil:
				LoggerFrom(c).Warn().Err(err).Msg("idempotency lookup failed")
			case turn != "":
				st.replayTurn = turn
				c.Set(ctxKeyRateBypass, true)
			}
		}
		c.Set(ctxKeyIdem, st)
		c.Next()
	}
}
