package grading

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/evaluator/internal/model"
)

type funcScorer func(ctx context.Context, q model.QuestionSpec, a model.CandidateAnswer) (model.QuestionEvaluation, error)

func (f funcScorer) EvaluateQuestion(ctx context.Context, q model.QuestionSpec, a model.CandidateAnswer) (model.QuestionEvaluation, error) {
	return f(ctx, q, a)
}

func fiveQuestions() ([]model.QuestionSpec, []model.CandidateAnswer) {
	var (
		qs      []model.QuestionSpec
		answers []model.CandidateAnswer
	)
	for i := 1; i <= 5; i++ {
		id := fmt.Sprintf("q%d", i)
		qs = append(qs, freeText(id, 10, "reference"))
		answers = append(answers, model.CandidateAnswer{QuestionID: id, SubmittedText: "answer " + id})
	}
	return qs, answers
}

func TestBatchEvaluator_IsolatesFailures(t *testing.T) {
	scorer := funcScorer(func(_ context.Context, q model.QuestionSpec, a model.CandidateAnswer) (model.QuestionEvaluation, error) {
		switch q.ID {
		case "q3":
			panic("provider exploded")
		case "q5":
			return model.QuestionEvaluation{}, fmt.Errorf("unexpected")
		}
		ev := evalOf(q.ID, 8, q.MaxMarks)
		ev.EvaluatedBy = "openai"
		return ev, nil
	})
	b := NewBatchEvaluator(scorer, 2, testMessages(t), discardLogger())
	qs, answers := fiveQuestions()

	res, err := b.EvaluateBatch(context.Background(), qs, answers)
	require.NoError(t, err)
	require.Len(t, res.Evaluations, 5)
	require.Len(t, res.Outcomes, 5)
	assert.Equal(t, 2, res.Failed)

	for i, ev := range res.Evaluations {
		assert.Equal(t, qs[i].ID, ev.QuestionID, "results keep input order")
		assert.Equal(t, qs[i].ID, res.Outcomes[i].ItemID)
	}

	q3 := res.Evaluations[2]
	assert.Equal(t, model.EvaluatedByError, q3.EvaluatedBy)
	assert.Equal(t, 0.0, q3.MarksAwarded)
	assert.Equal(t, 10.0, q3.MaxMarks)
	assert.Equal(t, "Evaluation failed", q3.Feedback)
	assert.Equal(t, []string{"Technical error occurred during evaluation"}, q3.Improvements)
	assert.Equal(t, model.ItemFailed, res.Outcomes[2].Status)
	assert.Contains(t, res.Outcomes[2].Error, "provider exploded")

	assert.Equal(t, model.EvaluatedByError, res.Evaluations[4].EvaluatedBy)
	for _, i := range []int{0, 1, 3} {
		assert.Equal(t, 8.0, res.Evaluations[i].MarksAwarded)
		assert.Equal(t, model.ItemSuccess, res.Outcomes[i].Status)
	}
}

func TestBatchEvaluator_BoundedWorkers(t *testing.T) {
	var running, peak atomic.Int32
	release := make(chan struct{})
	scorer := funcScorer(func(_ context.Context, q model.QuestionSpec, _ model.CandidateAnswer) (model.QuestionEvaluation, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		running.Add(-1)
		return evalOf(q.ID, 1, q.MaxMarks), nil
	})
	b := NewBatchEvaluator(scorer, 2, testMessages(t), discardLogger())
	qs, answers := fiveQuestions()

	done := make(chan BatchResult)
	go func() {
		res, _ := b.EvaluateBatch(context.Background(), qs, answers)
		done <- res
	}()
	for range qs {
		release <- struct{}{}
	}
	res := <-done

	assert.Equal(t, 0, res.Failed)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestBatchEvaluator_Cancelled(t *testing.T) {
	var calls atomic.Int32
	scorer := funcScorer(func(_ context.Context, q model.QuestionSpec, _ model.CandidateAnswer) (model.QuestionEvaluation, error) {
		calls.Add(1)
		return evalOf(q.ID, 1, q.MaxMarks), nil
	})
	b := NewBatchEvaluator(scorer, 4, testMessages(t), discardLogger())
	qs, answers := fiveQuestions()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := b.EvaluateBatch(ctx, qs, answers)
	require.NoError(t, err)
	assert.EqualValues(t, 0, calls.Load())
	assert.Equal(t, 5, res.Failed)
	for _, ev := range res.Evaluations {
		assert.Equal(t, model.EvaluatedByCancelled, ev.EvaluatedBy)
		assert.Equal(t, 0.0, ev.MarksAwarded)
	}
}

func TestBatchEvaluator_CancelledMidway(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	scorer := funcScorer(func(ctx context.Context, q model.QuestionSpec, _ model.CandidateAnswer) (model.QuestionEvaluation, error) {
		if q.ID == "q2" {
			cancel()
			return model.QuestionEvaluation{}, fmt.Errorf("evaluation aborted: %w", context.Canceled)
		}
		return evalOf(q.ID, 4, q.MaxMarks), nil
	})
	b := NewBatchEvaluator(scorer, 1, testMessages(t), discardLogger())
	qs, answers := fiveQuestions()

	res, err := b.EvaluateBatch(ctx, qs, answers)
	require.NoError(t, err)
	assert.Equal(t, model.ItemSuccess, res.Outcomes[0].Status)
	for _, ev := range res.Evaluations[1:] {
		assert.Equal(t, model.EvaluatedByCancelled, ev.EvaluatedBy)
	}
	assert.Equal(t, 4, res.Failed)
}

func TestBatchEvaluator_MissingAnswerIsUnanswered(t *testing.T) {
	r, err := NewProviderRouter(nil, nil, testMessages(t), 0, discardLogger())
	require.NoError(t, err)
	b := NewBatchEvaluator(NewQuestionEvaluator(r, testMessages(t), nil), 2, testMessages(t), discardLogger())

	res, err := b.EvaluateBatch(context.Background(), []model.QuestionSpec{freeText("q1", 5, "ref")}, nil)
	require.NoError(t, err)
	assert.Equal(t, model.EvaluatedByUnanswered, res.Evaluations[0].EvaluatedBy)
	assert.Equal(t, 0, res.Failed)
}

func TestBatchEvaluator_EmptyQuestions(t *testing.T) {
	b := NewBatchEvaluator(funcScorer(nil), 1, testMessages(t), discardLogger())
	_, err := b.EvaluateBatch(context.Background(), nil, nil)
	require.ErrorIs(t, err, ErrInvalidInput)
}
