package astro

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultBaseURL is the VedicAstroAPI v3 JSON root.
const DefaultBaseURL = "https://api.vedicastroapi.com/v3-json"

// maxBody caps how much of an upstream response is read.
const maxBody = 8 << 20

var tracer = otel.Tracer("astro")

// ErrUnknownCategory is returned by Fetch for a category not in the catalog.
var ErrUnknownCategory = errors.New("unknown fact category")

// UpstreamError reports a non-success answer from the upstream API, either
// an HTTP status other than 200 or a JSON envelope whose status is not 200.
type UpstreamError struct {
	Path    string
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: status %d: %s", e.Path, e.Status, e.Message)
}

// Location is one geo-search hit.
type Location struct {
	FullName    string          `json:"full_name"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Client calls the upstream API. One attempt per call; no retries.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
	Catalog *Catalog
}

// NewClient builds a client with a bounded HTTP timeout.
func NewClient(baseURL, apiKey string, timeout time.Duration, cat *Catalog) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: timeout},
		Catalog: cat,
	}
}

// Fetch retrieves one fact category for the given birth data and returns
// the upstream "response" payload verbatim.
func (c *Client) Fetch(ctx context.Context, category string, p BirthParams) (json.RawMessage, error) {
	cat, ok := c.Catalog.Category(category)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	payload, err := c.Get(ctx, cat.Path, p.Values())
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	upstreamFetches.WithLabelValues(category, outcome).Inc()
	return payload, err
}

// Get calls a JSON endpoint and unwraps its {"status":200,"response":...}
// envelope.
func (c *Client) Get(ctx context.Context, path string, q url.Values) (json.RawMessage, error) {
	body, status, err := c.do(ctx, path, q)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &UpstreamError{Path: path, Status: status, Message: truncate(string(body), 512)}
	}

	var env struct {
		Status   int             `json:"status"`
		Response json.RawMessage `json:"response"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &UpstreamError{Path: path, Status: http.StatusBadGateway, Message: "invalid JSON: " + err.Error()}
	}
	if env.Status != http.StatusOK {
		return nil, &UpstreamError{Path: path, Status: env.Status, Message: truncate(string(env.Response), 512)}
	}
	if len(env.Response) == 0 {
		env.Response = json.RawMessage("{}")
	}
	return env.Response, nil
}

// GetRaw calls an endpoint that answers with a non-JSON body (chart SVGs)
// and returns it as text.
func (c *Client) GetRaw(ctx context.Context, path string, q url.Values) (string, error) {
	body, status, err := c.do(ctx, path, q)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", &UpstreamError{Path: path, Status: status, Message: truncate(string(body), 512)}
	}
	return string(body), nil
}

// GeoSearch looks up cities by name.
func (c *Client) GeoSearch(ctx context.Context, city string) ([]Location, error) {
	q := url.Values{}
	q.Set("city", city)
	raw, err := c.Get(ctx, "utilities/geo-search", q)
	if err != nil {
		return nil, err
	}
	var out []Location
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &UpstreamError{Path: "utilities/geo-search", Status: http.StatusBadGateway, Message: "unexpected payload: " + err.Error()}
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, path string, q url.Values) ([]byte, int, error) {
	ctx, span := tracer.Start(ctx, "astro.Get")
	defer span.End()
	span.SetAttributes(attribute.String("upstream.path", path))

	full := url.Values{}
	for k, vs := range q {
		full[k] = append([]string(nil), vs...)
	}
	full.Set("api_key", c.APIKey)
	target := c.BaseURL + "/" + strings.TrimLeft(path, "/") + "?" + full.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		span.RecordError(err)
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send")
		return nil, 0, &UpstreamError{Path: path, Status: http.StatusBadGateway, Message: redactKey(err.Error(), c.APIKey)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		span.RecordError(err)
		return nil, resp.StatusCode, fmt.Errorf("read upstream body: %w", err)
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		span.SetStatus(codes.Error, resp.Status)
	}

	zerolog.Ctx(ctx).Debug().
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("upstream call")
	return body, resp.StatusCode, nil
}

// Transport errors include the request URL, which carries the key.
func redactKey(s, key string) string {
	if key == "" {
		return s
	}
	return strings.ReplaceAll(s, url.QueryEscape(key), "REDACTED")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
