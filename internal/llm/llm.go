package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pavelanni/evaluator/internal/llm/prompts"
)

// Well-known provider names.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// GeminiBaseURL is Gemini's OpenAI-compatible endpoint.
const GeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "evaluator",
		Subsystem: "llm",
		Name:      "request_duration_seconds",
		Help:      "Duration of provider chat completion requests",
	}, []string{"provider", "model"})

	requestFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "evaluator",
		Subsystem: "llm",
		Name:      "request_failures_total",
		Help:      "Number of failed provider chat completion requests",
	}, []string{"provider", "model"})
)

// ErrEmptyResponse is returned when a provider replies without usable content.
var ErrEmptyResponse = errors.New("provider returned empty response")

// Options tune a chat completion request.
type Options struct {
	Temperature float32
	MaxTokens   int
	// JSONMode asks the backend for a JSON object response. Not every
	// OpenAI-compatible backend supports it.
	JSONMode bool
}

// DefaultOptions mirrors the settings used for answer grading.
func DefaultOptions() Options {
	return Options{Temperature: 0.3, MaxTokens: 1000}
}

// Client wraps an OpenAI-compatible API client and acts as one grading provider.
type Client struct {
	name   string
	api    *openai.Client
	model  string
	opts   Options
	tracer trace.Tracer
}

// New creates a new provider client. An empty baseURL uses the OpenAI default.
func New(name, baseURL, apiKey, modelName string, opts Options) (*Client, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("provider name is required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%s api key is required", name)
	}
	if modelName == "" {
		return nil, fmt.Errorf("%s model is required", name)
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		name:   name,
		api:    openai.NewClientWithConfig(config),
		model:  modelName,
		opts:   opts,
		tracer: otel.Tracer("github.com/pavelanni/evaluator/internal/llm"),
	}, nil
}

// Name returns the provider identifier used in logs and evaluation tags.
func (c *Client) Name() string {
	return c.name
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Send posts the prompt as a chat completion and returns the raw reply text.
func (c *Client) Send(ctx context.Context, p prompts.Prompt) (string, error) {
	ctx, span := c.tracer.Start(ctx, "llm.send", trace.WithAttributes(
		attribute.String("provider", c.name),
		attribute.String("model", c.model),
	))
	defer span.End()

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.opts.Temperature,
		MaxTokens:   c.opts.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.System},
			{Role: openai.ChatMessageRoleUser, Content: p.User},
		},
	}
	if c.opts.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, req)
	requestDuration.WithLabelValues(c.name, c.model).Observe(time.Since(start).Seconds())
	if err != nil {
		return "", c.fail(span, fmt.Errorf("%s chat completion: %w", c.name, err))
	}

	if len(resp.Choices) == 0 {
		return "", c.fail(span, fmt.Errorf("%s: %w: no choices", c.name, ErrEmptyResponse))
	}

	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	if raw == "" {
		return "", c.fail(span, fmt.Errorf("%s: %w", c.name, ErrEmptyResponse))
	}
	slog.Debug("provider response", "provider", c.name, "raw", raw)
	span.SetAttributes(attribute.Int("llm.total_tokens", resp.Usage.TotalTokens))

	return raw, nil
}

// Ping verifies the endpoint is reachable and the credentials are accepted.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("%s list models: %w", c.name, err)
	}
	return nil
}

func (c *Client) fail(span trace.Span, err error) error {
	requestFailures.WithLabelValues(c.name, c.model).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
