package grading

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/evaluator/internal/model"
)

func TestNewEngine_Validation(t *testing.T) {
	msgs := testMessages(t)

	cfg := DefaultConfig()
	cfg.Workers = 0
	_, err := NewEngine(cfg, nil, msgs, nil)
	require.Error(t, err)

	cfg = DefaultConfig()
	cfg.ProviderTimeout = 0
	_, err = NewEngine(cfg, nil, msgs, nil)
	require.Error(t, err)

	cfg = DefaultConfig()
	cfg.PromptVariant = "harsh"
	_, err = NewEngine(cfg, nil, msgs, nil)
	require.Error(t, err)

	_, err = NewEngine(DefaultConfig(), nil, nil, nil)
	require.Error(t, err)
}

func TestEngine_FallbackEndToEnd(t *testing.T) {
	e := newTestEngine(t)
	qs := []model.QuestionSpec{freeText("q1", 10, "derivative of x squared is two x")}
	answers := []model.CandidateAnswer{{QuestionID: "q1", SubmittedText: "the derivative of x squared equals two x"}}

	res, batch, err := e.EvaluateSubmission(context.Background(), qs, answers)
	require.NoError(t, err)
	assert.Equal(t, 0, batch.Failed)
	require.Len(t, res.PerQuestion, 1)

	ev := res.PerQuestion[0]
	assert.GreaterOrEqual(t, ev.MarksAwarded, 7.0)
	assert.LessOrEqual(t, ev.MarksAwarded, 10.0)
	assert.Equal(t, 0.6, ev.Confidence)
	assert.Equal(t, model.EvaluatedByFallback, ev.EvaluatedBy)
	assert.True(t, ev.NeedsReview)
	assert.NotEmpty(t, res.OverallFeedback)
}

func TestEngine_ObjectiveEndToEnd(t *testing.T) {
	e := newTestEngine(t)
	qs := []model.QuestionSpec{{ID: "q1", Type: model.QuestionObjective, ReferenceAnswer: "B", MaxMarks: 3}}
	answers := []model.CandidateAnswer{{QuestionID: "q1", SubmittedChoice: "B"}}

	res, _, err := e.EvaluateSubmission(context.Background(), qs, answers)
	require.NoError(t, err)
	assert.Equal(t, 3.0, res.PerQuestion[0].MarksAwarded)
	assert.Equal(t, "Correct answer", res.PerQuestion[0].Feedback)
	assert.Equal(t, 100.0, res.Percentage)
	assert.Equal(t, "A+", res.Grade)
}

func TestEngine_ProviderResult(t *testing.T) {
	p := &fakeProvider{name: "openai", reply: `{"marks": 7, "feedback": "Good", "strengths": ["clear"], "improvements": ["depth"], "confidence": 0.85}`}
	e := newTestEngine(t, p)
	assert.Equal(t, []string{"openai"}, e.Providers())

	qs := []model.QuestionSpec{
		freeText("q1", 10, "ref"),
		{ID: "q2", Type: model.QuestionObjective, ReferenceAnswer: "A", MaxMarks: 10},
	}
	answers := []model.CandidateAnswer{
		{QuestionID: "q1", SubmittedText: "my answer"},
		{QuestionID: "q2", SubmittedChoice: "C"},
	}

	res, _, err := e.EvaluateSubmission(context.Background(), qs, answers)
	require.NoError(t, err)
	assert.Equal(t, "openai", res.PerQuestion[0].EvaluatedBy)
	assert.Equal(t, 7.0, res.TotalAwarded)
	assert.Equal(t, 20.0, res.TotalPossible)
	assert.Equal(t, 35.0, res.Percentage)
	assert.Equal(t, "F", res.Grade)
	assert.Equal(t, []string{"clear"}, res.Strengths)
	assert.Equal(t, []string{"depth"}, res.Improvements)
}

func TestEngine_ZeroPossible(t *testing.T) {
	e := newTestEngine(t)
	qs := []model.QuestionSpec{{ID: "q1", Type: model.QuestionObjective, ReferenceAnswer: "A", MaxMarks: 0}}

	_, _, err := e.EvaluateSubmission(context.Background(), qs, nil)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestEngine_CancelledSubmission(t *testing.T) {
	p := &fakeProvider{name: "openai", err: errors.New("unused")}
	cfg := DefaultConfig()
	cfg.ProviderTimeout = time.Second
	e, err := NewEngine(cfg, []Provider{p}, testMessages(t), discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	qs := []model.QuestionSpec{freeText("q1", 5, "ref"), freeText("q2", 5, "ref")}

	res, batch, err := e.EvaluateSubmission(ctx, qs, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, batch.Failed)
	assert.Equal(t, 0.0, res.Percentage)
	for _, ev := range res.PerQuestion {
		assert.Equal(t, model.EvaluatedByCancelled, ev.EvaluatedBy)
	}
	assert.EqualValues(t, 0, p.calls.Load())
}

func TestEngine_ApplyOverrides(t *testing.T) {
	e := newTestEngine(t)
	prev, err := e.Finalize([]model.QuestionEvaluation{evalOf("q1", 4, 10), evalOf("q2", 5, 10)})
	require.NoError(t, err)
	assert.Equal(t, 45.0, prev.Percentage)

	marks := 20.0
	got, err := e.ApplyOverrides(prev, []Override{{QuestionID: "q1", Marks: &marks, Feedback: "Reviewed by hand"}})
	require.NoError(t, err)
	assert.Equal(t, 10.0, got.PerQuestion[0].MarksAwarded)
	assert.Equal(t, "Reviewed by hand", got.PerQuestion[0].Feedback)
	assert.Equal(t, model.EvaluatedByManual, got.PerQuestion[0].EvaluatedBy)
	assert.False(t, got.PerQuestion[0].NeedsReview)
	assert.Equal(t, 75.0, got.Percentage)
	assert.Equal(t, "B", got.Grade)
	assert.Equal(t, 4.0, prev.PerQuestion[0].MarksAwarded, "previous result is not mutated")

	_, err = e.ApplyOverrides(prev, []Override{{QuestionID: "q9", Marks: &marks}})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestEngine_Stats(t *testing.T) {
	e := newTestEngine(t)

	empty := e.Stats(nil)
	assert.Equal(t, 0, empty.Count)
	assert.Len(t, empty.GradeDistribution, 6)

	stats := e.Stats([]model.SubmissionEvaluation{
		{Percentage: 92, Grade: "A+"},
		{Percentage: 71, Grade: "B"},
		{Percentage: 70, Grade: "B"},
	})
	assert.Equal(t, 3, stats.Count)
	assert.Equal(t, 77.67, stats.AveragePercentage)
	assert.Equal(t, 1, stats.GradeDistribution["A+"])
	assert.Equal(t, 2, stats.GradeDistribution["B"])
	assert.Equal(t, 0, stats.GradeDistribution["F"])
}
