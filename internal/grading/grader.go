package grading

import (
	"fmt"
	"math"

	"github.com/pavelanni/evaluator/internal/model"
)

// SubmissionGrader totals per-question results and assigns a letter grade
// from a single GradeBand.
type SubmissionGrader struct {
	band GradeBand
}

// NewSubmissionGrader creates a grader using band for every call.
func NewSubmissionGrader(band GradeBand) SubmissionGrader {
	return SubmissionGrader{band: band}
}

// Band returns the grade table in use.
func (g SubmissionGrader) Band() GradeBand {
	return g.band
}

// Grade is a pure function of evals: equal input always yields equal output.
// It fails with ErrInvalidInput when the total possible marks are zero.
func (g SubmissionGrader) Grade(evals []model.QuestionEvaluation) (model.SubmissionEvaluation, error) {
	var awarded, possible float64
	for _, ev := range evals {
		awarded += ev.MarksAwarded
		possible += ev.MaxMarks
	}
	if !(possible > 0) {
		return model.SubmissionEvaluation{}, fmt.Errorf("%w: total possible marks is zero", ErrInvalidInput)
	}

	pct := roundTo2(awarded / possible * 100)
	return model.SubmissionEvaluation{
		PerQuestion:   append([]model.QuestionEvaluation(nil), evals...),
		TotalAwarded:  awarded,
		TotalPossible: possible,
		Percentage:    pct,
		Grade:         g.band.Grade(pct),
	}, nil
}

func roundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}
