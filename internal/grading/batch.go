package grading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/evaluator/internal/model"
)

type questionScorer interface {
	EvaluateQuestion(ctx context.Context, q model.QuestionSpec, a model.CandidateAnswer) (model.QuestionEvaluation, error)
}

// BatchResult holds per-question results in input order.
type BatchResult struct {
	Evaluations []model.QuestionEvaluation
	Outcomes    []model.BatchItemOutcome[model.QuestionEvaluation]
	Failed      int
}

// BatchEvaluator evaluates every question of a submission independently on a
// bounded worker pool.
type BatchEvaluator struct {
	questions questionScorer
	workers   int
	msgs      Messages
	logger    *slog.Logger
}

// NewBatchEvaluator creates a batch evaluator running at most workers
// questions at a time.
func NewBatchEvaluator(questions questionScorer, workers int, msgs Messages, logger *slog.Logger) *BatchEvaluator {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchEvaluator{
		questions: questions,
		workers:   workers,
		msgs:      msgs,
		logger:    logger.With("component", "batch_evaluator"),
	}
}

// EvaluateBatch scores qs against answers, matched by question ID. A failing
// question becomes a zero-mark entry tagged "error"; questions not started or
// aborted before ctx was cancelled are tagged "cancelled". The call fails only
// when qs is empty.
func (b *BatchEvaluator) EvaluateBatch(ctx context.Context, qs []model.QuestionSpec, answers []model.CandidateAnswer) (BatchResult, error) {
	if len(qs) == 0 {
		return BatchResult{}, fmt.Errorf("%w: no questions to evaluate", ErrInvalidInput)
	}

	byQuestion := make(map[string]model.CandidateAnswer, len(answers))
	for _, a := range answers {
		if _, dup := byQuestion[a.QuestionID]; !dup {
			byQuestion[a.QuestionID] = a
		}
	}

	evals := make([]model.QuestionEvaluation, len(qs))
	outcomes := make([]model.BatchItemOutcome[model.QuestionEvaluation], len(qs))

	var g errgroup.Group
	g.SetLimit(b.workers)
	for i, q := range qs {
		a, ok := byQuestion[q.ID]
		if !ok {
			a = model.CandidateAnswer{QuestionID: q.ID}
		}
		if ctx.Err() != nil {
			evals[i], outcomes[i] = b.cancelled(q, ctx.Err())
			continue
		}
		g.Go(func() error {
			evals[i], outcomes[i] = b.evaluateOne(ctx, q, a)
			return nil
		})
	}
	_ = g.Wait()

	res := BatchResult{Evaluations: evals, Outcomes: outcomes}
	for _, o := range outcomes {
		batchItems.WithLabelValues("question", string(o.Status)).Inc()
		if o.Status == model.ItemFailed {
			res.Failed++
		}
	}
	if res.Failed > 0 {
		b.logger.Warn("batch finished with failures", "questions", len(qs), "failed", res.Failed)
	}
	return res, nil
}

func (b *BatchEvaluator) evaluateOne(ctx context.Context, q model.QuestionSpec, a model.CandidateAnswer) (ev model.QuestionEvaluation, out model.BatchItemOutcome[model.QuestionEvaluation]) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("question evaluation panicked", "question_id", q.ID, "panic", r)
			ev, out = b.failed(q, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := ctx.Err(); err != nil {
		return b.cancelled(q, err)
	}

	ev, err := b.questions.EvaluateQuestion(ctx, q, a)
	switch {
	case err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
		return b.cancelled(q, err)
	case err != nil:
		b.logger.Error("question evaluation failed", "question_id", q.ID, "error", err)
		return b.failed(q, err)
	}

	ev.MarksAwarded = clampMarks(ev.MarksAwarded, q.MaxMarks)
	return ev, model.BatchItemOutcome[model.QuestionEvaluation]{
		ItemID: q.ID,
		Status: model.ItemSuccess,
		Result: &ev,
	}
}

func (b *BatchEvaluator) failed(q model.QuestionSpec, err error) (model.QuestionEvaluation, model.BatchItemOutcome[model.QuestionEvaluation]) {
	ev := b.zero(q, model.EvaluatedByError, b.msgs.T("EvaluationFailed"))
	ev.Improvements = []string{b.msgs.T("TechnicalError")}
	return ev, model.BatchItemOutcome[model.QuestionEvaluation]{
		ItemID: q.ID,
		Status: model.ItemFailed,
		Result: &ev,
		Error:  err.Error(),
	}
}

func (b *BatchEvaluator) cancelled(q model.QuestionSpec, err error) (model.QuestionEvaluation, model.BatchItemOutcome[model.QuestionEvaluation]) {
	ev := b.zero(q, model.EvaluatedByCancelled, b.msgs.T("EvaluationCancelled"))
	return ev, model.BatchItemOutcome[model.QuestionEvaluation]{
		ItemID: q.ID,
		Status: model.ItemFailed,
		Result: &ev,
		Error:  err.Error(),
	}
}

func (b *BatchEvaluator) zero(q model.QuestionSpec, by, feedback string) model.QuestionEvaluation {
	maxMarks := q.MaxMarks
	if math.IsNaN(maxMarks) || math.IsInf(maxMarks, 0) || maxMarks < 0 {
		maxMarks = 0
	}
	return model.QuestionEvaluation{
		ProviderScoreResult: model.ProviderScoreResult{
			Feedback:     feedback,
			Strengths:    []string{},
			Improvements: []string{},
			NeedsReview:  true,
		},
		QuestionID:  q.ID,
		MaxMarks:    maxMarks,
		EvaluatedBy: by,
	}
}
