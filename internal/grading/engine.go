package grading

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pavelanni/evaluator/internal/llm/prompts"
	"github.com/pavelanni/evaluator/internal/model"
)

// Engine wires the evaluation pipeline: batch evaluation, grading and summary.
type Engine struct {
	cfg      Config
	router   *ProviderRouter
	question *QuestionEvaluator
	batch    *BatchEvaluator
	grader   SubmissionGrader
	composer SummaryComposer
	msgs     Messages
	base     *slog.Logger
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewEngine builds the pipeline. providers are tried in the given order.
func NewEngine(cfg Config, providers []Provider, msgs Messages, logger *slog.Logger) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	if msgs == nil {
		return nil, fmt.Errorf("engine config: messages are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	builder, err := prompts.New(cfg.PromptVariant)
	if err != nil {
		return nil, fmt.Errorf("prompt builder: %w", err)
	}
	router, err := NewProviderRouter(providers, builder, msgs, cfg.ProviderTimeout, logger)
	if err != nil {
		return nil, err
	}
	question := NewQuestionEvaluator(router, msgs, validator.New(validator.WithRequiredStructEnabled()))

	return &Engine{
		cfg:      cfg,
		router:   router,
		question: question,
		batch:    NewBatchEvaluator(question, cfg.Workers, msgs, logger),
		grader:   NewSubmissionGrader(cfg.Band),
		composer: NewSummaryComposer(msgs),
		msgs:     msgs,
		base:     logger,
		logger:   logger.With("component", "engine"),
		tracer:   otel.Tracer("github.com/pavelanni/evaluator/internal/grading"),
	}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Providers returns configured provider names in priority order.
func (e *Engine) Providers() []string {
	return e.router.Providers()
}

// EvaluateSubmission runs every question through the pipeline and returns the
// graded, summarized result. Per-question failures are reported inside the
// result; only an empty or zero-total question set fails the call.
func (e *Engine) EvaluateSubmission(ctx context.Context, qs []model.QuestionSpec, answers []model.CandidateAnswer) (model.SubmissionEvaluation, BatchResult, error) {
	ctx, span := e.tracer.Start(ctx, "grading.evaluate_submission", trace.WithAttributes(
		attribute.Int("grading.questions", len(qs)),
	))
	defer span.End()

	batch, err := e.batch.EvaluateBatch(ctx, qs, answers)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return model.SubmissionEvaluation{}, BatchResult{}, err
	}

	result, err := e.Finalize(batch.Evaluations)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return model.SubmissionEvaluation{}, batch, err
	}

	span.SetAttributes(
		attribute.Float64("grading.percentage", result.Percentage),
		attribute.String("grading.grade", result.Grade),
		attribute.Int("grading.failed", batch.Failed),
	)
	e.logger.Info("submission evaluated",
		"questions", len(qs),
		"failed", batch.Failed,
		"percentage", result.Percentage,
		"grade", result.Grade,
	)
	return result, batch, nil
}

// Finalize grades evals and attaches the summary.
func (e *Engine) Finalize(evals []model.QuestionEvaluation) (model.SubmissionEvaluation, error) {
	return finalize(e.grader, e.composer, evals)
}

func finalize(g SubmissionGrader, c SummaryComposer, evals []model.QuestionEvaluation) (model.SubmissionEvaluation, error) {
	result, err := g.Grade(evals)
	if err != nil {
		return model.SubmissionEvaluation{}, err
	}
	summary, err := c.Summarize(result)
	if err != nil {
		return model.SubmissionEvaluation{}, err
	}
	result.OverallFeedback = summary.OverallFeedback
	result.Strengths = summary.Strengths
	result.Improvements = summary.Improvements
	return result, nil
}

// Override replaces the marks and, when set, the feedback of one question.
type Override struct {
	QuestionID string   `json:"question_id" validate:"required"`
	Marks      *float64 `json:"marks,omitempty"`
	Feedback   string   `json:"feedback,omitempty"`
}

// ApplyOverrides applies manual review edits to a previous result and
// recomputes totals, grade and summary. Marks are clamped to the question
// maximum. Unknown question IDs fail with ErrInvalidInput.
func (e *Engine) ApplyOverrides(prev model.SubmissionEvaluation, overrides []Override) (model.SubmissionEvaluation, error) {
	index := make(map[string]int, len(prev.PerQuestion))
	evals := make([]model.QuestionEvaluation, len(prev.PerQuestion))
	for i, ev := range prev.PerQuestion {
		index[ev.QuestionID] = i
		evals[i] = ev
	}

	for _, o := range overrides {
		i, ok := index[o.QuestionID]
		if !ok {
			return model.SubmissionEvaluation{}, fmt.Errorf("%w: unknown question %q", ErrInvalidInput, o.QuestionID)
		}
		ev := evals[i]
		if o.Marks != nil {
			ev.MarksAwarded = clampMarks(*o.Marks, ev.MaxMarks)
		}
		if o.Feedback != "" {
			ev.Feedback = o.Feedback
		}
		ev.EvaluatedBy = model.EvaluatedByManual
		ev.NeedsReview = false
		evals[i] = ev
	}

	return e.Finalize(evals)
}

// Stats summarizes graded submissions. The distribution lists every label of
// the configured grade table.
func (e *Engine) Stats(results []model.SubmissionEvaluation) model.Stats {
	stats := model.Stats{GradeDistribution: make(map[string]int)}
	for _, label := range e.grader.Band().Labels() {
		stats.GradeDistribution[label] = 0
	}

	var sum float64
	for _, r := range results {
		stats.Count++
		sum += r.Percentage
		stats.GradeDistribution[r.Grade]++
	}
	if stats.Count > 0 {
		stats.AveragePercentage = roundTo2(sum / float64(stats.Count))
	}
	return stats
}

// Reevaluator returns a coordinator bound to store and auth.
func (e *Engine) Reevaluator(store SubmissionStore, auth Authorizer) *ReevaluationCoordinator {
	return NewReevaluationCoordinator(store, auth, e.batch, e.grader, e.composer, e.cfg.Workers, e.msgs, e.base)
}
