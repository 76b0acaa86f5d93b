package astro

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Input layouts accepted by the upstream API.
const (
	DateLayout = "02/01/2006"
	TimeLayout = "15:04"
)

// ValidationError reports an inbound parameter rejected before any
// upstream call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Lookup maps a human readable name (e.g. "Leo", "Purva Phalguni") to the
// numeric code the upstream expects. Exact matches win; otherwise the match
// is case-insensitive.
func (c *Catalog) Lookup(table, name string) (int, bool) {
	m, ok := c.Lookups[table]
	if !ok {
		return 0, false
	}
	name = strings.TrimSpace(name)
	if v, ok := m[name]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return 0, false
}

// Choice reports whether value belongs to the named choice set.
func (c *Catalog) Choice(set, value string) bool {
	for _, v := range c.Choices[set] {
		if v == value {
			return true
		}
	}
	return false
}

// Query validates in against the endpoint's parameters and returns the
// upstream query: defaults applied, lookups resolved to codes, unknown
// inbound keys dropped. The api_key is not added here.
func (e *Endpoint) Query(c *Catalog, in url.Values) (url.Values, error) {
	out := url.Values{}
	for _, p := range e.resolved {
		raw := strings.TrimSpace(in.Get(p.Name))
		if raw == "" {
			raw = p.Default
		}
		if raw == "" {
			if p.Required {
				return nil, &ValidationError{Field: p.Name, Reason: "is required"}
			}
			continue
		}
		v, err := c.checkParam(p, raw)
		if err != nil {
			return nil, err
		}
		out.Set(p.Name, v)
	}
	return out, nil
}

func (c *Catalog) checkParam(p Param, raw string) (string, error) {
	switch {
	case p.Lookup != "":
		code, ok := c.Lookup(p.Lookup, raw)
		if !ok {
			return "", &ValidationError{Field: p.Name, Reason: fmt.Sprintf("unknown %s %q", p.Lookup, raw)}
		}
		return strconv.Itoa(code), nil
	case p.Choice != "":
		if !c.Choice(p.Choice, raw) {
			return "", &ValidationError{Field: p.Name, Reason: fmt.Sprintf("must be one of %s", strings.Join(c.Choices[p.Choice], ", "))}
		}
		return raw, nil
	}

	switch p.Kind {
	case KindDate:
		if _, err := time.Parse(DateLayout, raw); err != nil {
			return "", &ValidationError{Field: p.Name, Reason: "must be DD/MM/YYYY"}
		}
	case KindTime:
		if _, err := time.Parse(TimeLayout, raw); err != nil {
			return "", &ValidationError{Field: p.Name, Reason: "must be HH:MM"}
		}
	case KindFloat:
		if _, err := strconv.ParseFloat(raw, 64); err != nil {
			return "", &ValidationError{Field: p.Name, Reason: "must be a number"}
		}
	case KindInt:
		if _, err := strconv.Atoi(raw); err != nil {
			return "", &ValidationError{Field: p.Name, Reason: "must be an integer"}
		}
	}
	return raw, nil
}

// BirthParams are the natal inputs shared by every cached category.
type BirthParams struct {
	DOB  string
	TOB  string
	Lat  float64
	Lon  float64
	TZ   float64
	Lang string
}

// Values renders the params as an upstream query. Floats use the shortest
// representation that round-trips.
func (b BirthParams) Values() url.Values {
	lang := b.Lang
	if lang == "" {
		lang = "en"
	}
	v := url.Values{}
	v.Set("dob", b.DOB)
	v.Set("tob", b.TOB)
	v.Set("lat", FormatCoord(b.Lat))
	v.Set("lon", FormatCoord(b.Lon))
	v.Set("tz", FormatCoord(b.TZ))
	v.Set("lang", lang)
	return v
}

// FormatCoord formats a coordinate or offset without trailing zeros.
func FormatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
