package grading

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/evaluator/internal/model"
)

const objectiveConfidence = 1.0

type scorer interface {
	Evaluate(ctx context.Context, req EvaluationRequest) (RoutedScore, error)
}

// QuestionEvaluator scores one answer against one question.
type QuestionEvaluator struct {
	router   scorer
	msgs     Messages
	validate *validator.Validate
}

// NewQuestionEvaluator creates an evaluator that sends free-text answers to router.
func NewQuestionEvaluator(router scorer, msgs Messages, validate *validator.Validate) *QuestionEvaluator {
	if validate == nil {
		validate = validator.New(validator.WithRequiredStructEnabled())
	}
	return &QuestionEvaluator{router: router, msgs: msgs, validate: validate}
}

// EvaluateQuestion returns a result whose marks always lie in [0, q.MaxMarks].
// An unanswered free-text question is a zero-mark result, not an error.
func (e *QuestionEvaluator) EvaluateQuestion(ctx context.Context, q model.QuestionSpec, a model.CandidateAnswer) (model.QuestionEvaluation, error) {
	if err := e.validate.Struct(q); err != nil {
		return model.QuestionEvaluation{}, fmt.Errorf("%w: question %q: %v", ErrInvalidInput, q.ID, err)
	}
	if math.IsNaN(q.MaxMarks) || math.IsInf(q.MaxMarks, 0) {
		return model.QuestionEvaluation{}, fmt.Errorf("%w: question %q: max marks must be finite", ErrInvalidInput, q.ID)
	}
	if a.QuestionID != "" && a.QuestionID != q.ID {
		return model.QuestionEvaluation{}, fmt.Errorf("%w: answer for %q given to question %q", ErrInvalidInput, a.QuestionID, q.ID)
	}

	var (
		res model.ProviderScoreResult
		by  string
	)
	switch q.Type {
	case model.QuestionObjective:
		res, by = e.objective(q, a), model.EvaluatedByObjective
	case model.QuestionFreeText:
		routed, err := e.router.Evaluate(ctx, EvaluationRequest{
			Question:        q.Text,
			MaxMarks:        q.MaxMarks,
			ReferenceAnswer: q.ReferenceAnswer,
			CandidateAnswer: a.SubmittedText,
			Rubric:          q.Rubric,
			Subject:         q.Subject,
		})
		switch {
		case errors.Is(err, ErrInvalidInput):
			res, by = e.unanswered(), model.EvaluatedByUnanswered
		case err != nil:
			return model.QuestionEvaluation{}, err
		default:
			res, by = routed.ProviderScoreResult, routed.Source
		}
	default:
		return model.QuestionEvaluation{}, fmt.Errorf("%w: question %q has unknown type %q", ErrInvalidInput, q.ID, q.Type)
	}

	res.MarksAwarded = clampMarks(res.MarksAwarded, q.MaxMarks)
	res.Strengths = nonNil(res.Strengths)
	res.Improvements = nonNil(res.Improvements)

	return model.QuestionEvaluation{
		ProviderScoreResult: res,
		QuestionID:          q.ID,
		MaxMarks:            q.MaxMarks,
		EvaluatedBy:         by,
	}, nil
}

func (e *QuestionEvaluator) objective(q model.QuestionSpec, a model.CandidateAnswer) model.ProviderScoreResult {
	correct := strings.TrimSpace(q.ReferenceAnswer)
	res := model.ProviderScoreResult{
		Strengths:    []string{},
		Improvements: []string{},
		Confidence:   objectiveConfidence,
	}
	if correct != "" && strings.EqualFold(strings.TrimSpace(a.SubmittedChoice), correct) {
		res.MarksAwarded = q.MaxMarks
		res.Feedback = e.msgs.T("CorrectAnswer")
		return res
	}
	res.Feedback = e.msgs.Td("IncorrectAnswer", map[string]any{"Choice": correct})
	return res
}

func (e *QuestionEvaluator) unanswered() model.ProviderScoreResult {
	return model.ProviderScoreResult{
		Feedback:     e.msgs.T("NoAnswerSubmitted"),
		Strengths:    []string{},
		Improvements: []string{},
		Confidence:   objectiveConfidence,
	}
}
