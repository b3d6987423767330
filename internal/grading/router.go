package grading

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pavelanni/evaluator/internal/llm/prompts"
	"github.com/pavelanni/evaluator/internal/model"
)

// Provider is a remote text-evaluation backend. Any non-nil error means the
// provider is unavailable for this request.
type Provider interface {
	Name() string
	Send(ctx context.Context, p prompts.Prompt) (string, error)
}

// EvaluationRequest is one free-text answer to score.
type EvaluationRequest struct {
	Question        string
	MaxMarks        float64
	ReferenceAnswer string
	CandidateAnswer string
	Rubric          string
	Subject         string
}

// RoutedScore is a score plus the tag of the path that produced it.
type RoutedScore struct {
	model.ProviderScoreResult
	Source string
}

// ProviderRouter tries providers in priority order and falls back to
// FallbackScorer when none is configured or all of them fail.
type ProviderRouter struct {
	providers []Provider
	builder   *prompts.Builder
	parser    ResponseParser
	fallback  FallbackScorer
	timeout   time.Duration
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewProviderRouter creates a router. providers may be empty.
func NewProviderRouter(providers []Provider, builder *prompts.Builder, msgs Messages, timeout time.Duration, logger *slog.Logger) (*ProviderRouter, error) {
	if len(providers) > 0 && builder == nil {
		return nil, fmt.Errorf("prompt builder is required when providers are configured")
	}
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProviderRouter{
		providers: append([]Provider(nil), providers...),
		builder:   builder,
		parser:    NewResponseParser(msgs),
		fallback:  NewFallbackScorer(msgs),
		timeout:   timeout,
		logger:    logger.With("component", "provider_router"),
		tracer:    otel.Tracer("github.com/pavelanni/evaluator/internal/grading"),
	}, nil
}

// Providers returns the configured provider names in priority order.
func (r *ProviderRouter) Providers() []string {
	names := make([]string, len(r.providers))
	for i, p := range r.providers {
		names[i] = p.Name()
	}
	return names
}

// Evaluate scores req. It fails only with ErrInvalidInput for a blank
// candidate answer, or with the context error when ctx is done.
func (r *ProviderRouter) Evaluate(ctx context.Context, req EvaluationRequest) (RoutedScore, error) {
	if strings.TrimSpace(req.CandidateAnswer) == "" {
		return RoutedScore{}, fmt.Errorf("%w: candidate answer is empty", ErrInvalidInput)
	}

	if len(r.providers) > 0 {
		prompt, err := r.builder.Build(prompts.Input{
			Subject:         req.Subject,
			Question:        req.Question,
			MaxMarks:        req.MaxMarks,
			ReferenceAnswer: req.ReferenceAnswer,
			CandidateAnswer: req.CandidateAnswer,
			Rubric:          req.Rubric,
		})
		if err != nil {
			r.logger.Error("prompt build failed, using fallback", "error", err)
		} else {
			for _, p := range r.providers {
				res, err := r.attempt(ctx, p, prompt, req.MaxMarks)
				if err == nil {
					return RoutedScore{ProviderScoreResult: res, Source: p.Name()}, nil
				}
				if ctx.Err() != nil {
					return RoutedScore{}, fmt.Errorf("evaluation aborted: %w", ctx.Err())
				}
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return RoutedScore{}, fmt.Errorf("evaluation aborted: %w", err)
	}
	fallbackScores.Inc()
	r.logger.Info("scoring with fallback", "providers", len(r.providers))
	return RoutedScore{ProviderScoreResult: r.fallback.Score(req), Source: model.EvaluatedByFallback}, nil
}

func (r *ProviderRouter) attempt(ctx context.Context, p Provider, prompt prompts.Prompt, maxMarks float64) (model.ProviderScoreResult, error) {
	name := p.Name()
	ctx, span := r.tracer.Start(ctx, "grading.provider_attempt", trace.WithAttributes(
		attribute.String("provider", name),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	raw, err := p.Send(ctx, prompt)
	if err == nil && strings.TrimSpace(raw) == "" {
		err = fmt.Errorf("empty response")
	}
	elapsed := time.Since(start)
	providerLatency.WithLabelValues(name).Observe(elapsed.Seconds())

	if err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrProviderUnavailable, name, err)
		providerAttempts.WithLabelValues(name, "failure").Inc()
		span.RecordError(err)
		r.logger.Warn("provider attempt failed",
			"provider", name,
			"outcome", "failure",
			"duration", elapsed,
			"error", err,
		)
		return model.ProviderScoreResult{}, err
	}

	res := r.parser.Parse(raw, maxMarks)
	providerAttempts.WithLabelValues(name, "success").Inc()
	span.SetAttributes(attribute.Bool("grading.needs_review", res.NeedsReview))
	r.logger.Info("provider attempt succeeded",
		"provider", name,
		"outcome", "success",
		"duration", elapsed,
		"marks", res.MarksAwarded,
		"needs_review", res.NeedsReview,
	)
	return res, nil
}
