package grading

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/evaluator/internal/model"
)

// SubmissionStore loads and persists submissions.
type SubmissionStore interface {
	GetByID(ctx context.Context, id string) (model.Submission, bool, error)
	Save(ctx context.Context, sub model.Submission) error
}

// Authorizer decides whether actor may modify sub.
type Authorizer interface {
	CanModify(actor model.User, sub model.Submission) bool
}

// ReevaluationOutcome is the per-submission result of ReevaluateMany.
type ReevaluationOutcome = model.BatchItemOutcome[model.ReevaluationResult]

// ReevaluationCoordinator re-scores stored submissions one by one, reporting
// a per-item outcome instead of failing the whole call.
type ReevaluationCoordinator struct {
	store    SubmissionStore
	auth     Authorizer
	batch    *BatchEvaluator
	grader   SubmissionGrader
	composer SummaryComposer
	workers  int
	msgs     Messages
	logger   *slog.Logger
	now      func() time.Time
}

// NewReevaluationCoordinator creates a coordinator.
func NewReevaluationCoordinator(store SubmissionStore, auth Authorizer, batch *BatchEvaluator, grader SubmissionGrader, composer SummaryComposer, workers int, msgs Messages, logger *slog.Logger) *ReevaluationCoordinator {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReevaluationCoordinator{
		store:    store,
		auth:     auth,
		batch:    batch,
		grader:   grader,
		composer: composer,
		workers:  workers,
		msgs:     msgs,
		logger:   logger.With("component", "reevaluation"),
		now:      time.Now,
	}
}

// ReevaluateMany re-runs free-text scoring for each submission in ids.
// Outcomes are returned in input order. The call itself fails only when ids
// is empty or contains blank entries.
func (c *ReevaluationCoordinator) ReevaluateMany(ctx context.Context, actor model.User, ids []string) ([]ReevaluationOutcome, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no submission ids given", ErrInvalidInput)
	}
	for i, id := range ids {
		if strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("%w: submission id at position %d is blank", ErrInvalidInput, i)
		}
	}

	outcomes := make([]ReevaluationOutcome, len(ids))
	var g errgroup.Group
	g.SetLimit(c.workers)
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			outcomes[i] = c.fail(id, err.Error())
			continue
		}
		g.Go(func() error {
			outcomes[i] = c.reevaluateOne(ctx, actor, id)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		batchItems.WithLabelValues("reevaluation", string(o.Status)).Inc()
	}
	return outcomes, nil
}

func (c *ReevaluationCoordinator) reevaluateOne(ctx context.Context, actor model.User, id string) (out ReevaluationOutcome) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("re-evaluation panicked", "submission_id", id, "panic", r)
			out = c.fail(id, fmt.Sprintf("panic: %v", r))
		}
	}()

	if err := ctx.Err(); err != nil {
		return c.fail(id, err.Error())
	}
	if _, err := uuid.Parse(id); err != nil {
		return c.fail(id, c.msgs.T("InvalidSubmissionID"))
	}

	sub, found, err := c.store.GetByID(ctx, id)
	if err != nil {
		c.logger.Error("load submission failed", "submission_id", id, "error", err)
		return c.fail(id, err.Error())
	}
	if !found {
		return c.fail(id, c.msgs.T("SubmissionNotFound"))
	}
	if !c.auth.CanModify(actor, sub) {
		return c.fail(id, c.msgs.T("NotAuthorized"))
	}
	if !sub.NeedsRescoring() {
		return ReevaluationOutcome{ItemID: id, Status: model.ItemSkipped, Error: c.msgs.T("NoFreeTextQuestions")}
	}

	evals, err := c.rescore(ctx, sub)
	if err != nil {
		c.logger.Warn("re-scoring failed, keeping previous evaluation", "submission_id", id, "error", err)
		return c.fail(id, err.Error())
	}
	if err := ctx.Err(); err != nil {
		return c.fail(id, err.Error())
	}

	result, err := finalize(c.grader, c.composer, evals)
	if err != nil {
		return c.fail(id, err.Error())
	}

	now := c.now()
	reviewer := actor.ID
	sub.Evaluation = &result
	sub.ReviewedBy = &reviewer
	sub.ReviewedAt = &now
	sub.UpdatedAt = now
	if err := c.store.Save(ctx, sub); err != nil {
		c.logger.Error("save submission failed", "submission_id", id, "error", err)
		return c.fail(id, err.Error())
	}

	c.logger.Info("submission re-evaluated",
		"submission_id", id,
		"actor_id", actor.ID,
		"percentage", result.Percentage,
		"grade", result.Grade,
	)
	return ReevaluationOutcome{
		ItemID: id,
		Status: model.ItemSuccess,
		Result: &model.ReevaluationResult{Percentage: result.Percentage, Grade: result.Grade},
	}
}

// rescore re-runs free-text questions and keeps prior results for the rest.
// Questions without a prior result are evaluated as well. Any failed question
// fails the whole rescore so the stored evaluation is left untouched.
func (c *ReevaluationCoordinator) rescore(ctx context.Context, sub model.Submission) ([]model.QuestionEvaluation, error) {
	prior := make(map[string]model.QuestionEvaluation)
	if sub.Evaluation != nil {
		for _, ev := range sub.Evaluation.PerQuestion {
			prior[ev.QuestionID] = ev
		}
	}

	var (
		pending []model.QuestionSpec
		slots   []int
	)
	evals := make([]model.QuestionEvaluation, len(sub.Questions))
	for i, q := range sub.Questions {
		ev, ok := prior[q.ID]
		if ok && q.Type != model.QuestionFreeText {
			evals[i] = ev
			continue
		}
		pending = append(pending, q)
		slots = append(slots, i)
	}

	res, err := c.batch.EvaluateBatch(ctx, pending, sub.Answers)
	if err != nil {
		return nil, err
	}
	if res.Failed > 0 {
		for _, o := range res.Outcomes {
			if o.Status == model.ItemFailed {
				return nil, fmt.Errorf("%d of %d questions failed, first %s: %s", res.Failed, len(pending), o.ItemID, o.Error)
			}
		}
	}
	for j, i := range slots {
		evals[i] = res.Evaluations[j]
	}
	return evals, nil
}

func (c *ReevaluationCoordinator) fail(id, msg string) ReevaluationOutcome {
	return ReevaluationOutcome{ItemID: id, Status: model.ItemFailed, Error: msg}
}
