package grading

import (
	"fmt"

	"github.com/pavelanni/evaluator/internal/model"
)

const maxPooledNotes = 5

// feedbackLadder is deliberately coarser than any grade table.
var feedbackLadder = []struct {
	min   float64
	msgID string
}{
	{90, "OverallExcellent"},
	{80, "OverallVeryGood"},
	{70, "OverallGood"},
	{60, "OverallSatisfactory"},
	{50, "OverallOnTrack"},
}

// Summary is the narrative part of a graded submission.
type Summary struct {
	OverallFeedback string
	Strengths       []string
	Improvements    []string
}

// SummaryComposer pools per-question notes and picks an overall message.
type SummaryComposer struct {
	msgs Messages
}

// NewSummaryComposer creates a composer using msgs for the feedback ladder.
func NewSummaryComposer(msgs Messages) SummaryComposer {
	return SummaryComposer{msgs: msgs}
}

// Summarize requires a graded submission; calling it before Grade fails with
// ErrPrecondition.
func (c SummaryComposer) Summarize(graded model.SubmissionEvaluation) (Summary, error) {
	if !(graded.TotalPossible > 0) || len(graded.PerQuestion) == 0 {
		return Summary{}, fmt.Errorf("%w: submission has not been graded", ErrPrecondition)
	}

	var strengths, improvements []string
	for _, ev := range graded.PerQuestion {
		strengths = append(strengths, ev.Strengths...)
		improvements = append(improvements, ev.Improvements...)
	}

	return Summary{
		OverallFeedback: c.overallFeedback(graded.Percentage),
		Strengths:       pool(strengths, maxPooledNotes),
		Improvements:    pool(improvements, maxPooledNotes),
	}, nil
}

func (c SummaryComposer) overallFeedback(pct float64) string {
	for _, step := range feedbackLadder {
		if pct >= step.min {
			return c.msgs.T(step.msgID)
		}
	}
	return c.msgs.T("OverallNeedsImprovement")
}

// pool de-duplicates notes keeping first-occurrence order and truncates to limit.
func pool(notes []string, limit int) []string {
	seen := make(map[string]struct{}, len(notes))
	out := make([]string, 0, min(len(notes), limit))
	for _, n := range notes {
		if len(out) == limit {
			break
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
