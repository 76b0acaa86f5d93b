// RedactingLogger is the default access logger. Birth
// data is personal data, and the proxy endpoints take it in the query
// string, so the logger scrubs request metadata before emitting it:
//
//   - never logs request or response bodies
//   - masks whole query parameters that carry birth data or credentials
//   - redacts identifiers (emails, phone numbers, UUIDs) elsewhere
//   - masks sensitive headers (Authorization, Cookie, Set-Cookie, X-API-Key,
//     X-Session-ID, plus custom)
//
// Usage:
//
//	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
//	    MaskParams: []string{"city"},
//	}))

package middleware

import (
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// RedactOptions configures additional scrub behavior for RedactingLogger.
//
// MaskHeaders and MaskParams extend the built-in lists of header names and
// query parameter names whose values are replaced wholesale. Matching is
// case-insensitive.
type RedactOptions struct {
	MaskHeaders []string
	MaskParams  []string
}

var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// Digits-only phone pattern so UUID hex groups never match.
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// redactText scrubs identifiers from free text. UUIDs go first because the
// phone pattern would otherwise eat their digit groups.
func redactText(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

func lowerSet(base []string, extra []string) map[string]struct{} {
	out := make(map[string]struct{}, len(base)+len(extra))
	for _, group := range [][]string{base, extra} {
		for _, v := range group {
			if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
				out[v] = struct{}{}
			}
		}
	}
	return out
}

// redactQuery masks listed parameters and scrubs the rest. Output keys are
// sorted; an unparsable query is scrubbed as plain text.
func redactQuery(raw string, mask map[string]struct{}) string {
	if raw == "" {
		return ""
	}
	vals, err := url.ParseQuery(raw)
	if err != nil {
		return redactText(raw)
	}
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		for _, v := range vals[k] {
			if sb.Len() > 0 {
				sb.WriteByte('&')
			}
			sb.WriteString(k)
			sb.WriteByte('=')
			if _, ok := mask[strings.ToLower(k)]; ok {
				sb.WriteString("[REDACTED]")
			} else {
				sb.WriteString(redactText(v))
			}
		}
	}
	return truncate(sb.String(), maxQueryLogLength)
}

// RedactingLogger is Logger with secrets scrubbed: masked query parameters
// and headers become [REDACTED], and e-mail addresses, phone numbers and
// UUIDs in the remaining values are blanked. Request headers are included
// in the line.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	maskHeaders := lowerSet([]string{
		"authorization", "cookie", "set-cookie", "x-api-key", "x-session-id",
	}, opts.MaskHeaders)
	maskParams := lowerSet([]string{
		"api_key", "name", "dob", "tob", "lat", "lon", "search_token",
	}, opts.MaskParams)

	return func(c *gin.Context) {
		start := time.Now()
		safeQuery := redactQuery(c.Request.URL.RawQuery, maskParams)
		safeHeaders := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := maskHeaders[strings.ToLower(k)]; ok {
				safeHeaders[k] = "[REDACTED]"
				continue
			}
			safeHeaders[k] = redactText(strings.Join(vv, ", "))
		}

		c.Next()

		l := accessFields(c, start).
			Str("query", safeQuery).
			Interface("headers", safeHeaders).
			Logger()
		accessEvent(&l, c).Msg("request")
	}
}
