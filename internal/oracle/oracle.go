// Package oracle wraps the chat-completion API used to produce predictions.
//
// The service treats the model as an opaque text generator: a transcript of
// role/content messages goes in, the first choice's text comes out. Any
// OpenAI-compatible endpoint works; the default points at Perplexity.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	DefaultBaseURL = "https://api.perplexity.ai"
	DefaultModel   = "sonar-pro"
	DefaultTimeout = 300 * time.Second
)

var requestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "oracle_request_duration_seconds",
		Help:    "Chat completion latency by outcome.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160, 300},
	},
	[]string{"outcome"},
)

func init() {
	prometheus.MustRegister(requestDuration)
}

// Message is one transcript entry.
type Message struct {
	Role    string
	Content string
}

// Completer produces the next assistant message for a transcript.
type Completer interface {
	Complete(ctx context.Context, msgs []Message) (string, error)
}

// Error is a failed or timed-out completion. Status is the HTTP status when
// the API answered, zero otherwise.
type Error struct {
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("oracle: status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("oracle: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Config configures Client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client calls a chat-completions endpoint once per Complete; no retries.
type Client struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// New builds a Client, filling unset fields with defaults.
func New(cfg Config) *Client {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	config := openai.DefaultConfig(cfg.APIKey)
	config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	config.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Client{
		client:  openai.NewClientWithConfig(config),
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Complete sends the transcript and returns choices[0].message.content.
func (c *Client) Complete(ctx context.Context, msgs []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ctx, span := otel.Tracer("oracle").Start(ctx, "oracle.Complete")
	defer span.End()
	span.SetAttributes(attribute.String("oracle.model", c.model), attribute.Int("oracle.messages", len(msgs)))

	chatMessages := make([]openai.ChatCompletionMessage, len(msgs))
	for i, m := range msgs {
		chatMessages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: chatMessages,
	})
	if err == nil && len(resp.Choices) == 0 {
		err = errors.New("no choices in response")
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	requestDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		oe := wrap(err)
		zerolog.Ctx(ctx).Warn().Err(oe).Dur("latency", time.Since(start)).Msg("oracle call failed")
		return "", oe
	}
	return resp.Choices[0].Message.Content, nil
}

func wrap(err error) *Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &Error{Status: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &Error{Status: reqErr.HTTPStatusCode, Err: err}
	}
	return &Error{Err: err}
}
