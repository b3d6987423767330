package store

import (
	"context"
	"fmt"

	"github.com/pavelanni/evaluator/internal/model"
)

// ExportResults builds export-ready results from all submissions, oldest first.
// Submissions that were never evaluated are included with empty scores.
func (s *Store) ExportResults(ctx context.Context) ([]model.StudentResult, error) {
	subs, err := s.ListSubmissions(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}

	results := make([]model.StudentResult, 0, len(subs))
	for i := len(subs) - 1; i >= 0; i-- {
		results = append(results, exportSubmission(subs[i]))
	}
	return results, nil
}

func exportSubmission(sub model.Submission) model.StudentResult {
	scored := make(map[string]model.QuestionEvaluation)
	if sub.Evaluation != nil {
		for _, ev := range sub.Evaluation.PerQuestion {
			scored[ev.QuestionID] = ev
		}
	}

	questions := make([]model.QuestionResult, 0, len(sub.Questions))
	for _, q := range sub.Questions {
		a := sub.AnswerFor(q.ID)
		answer := a.SubmittedText
		if q.Type == model.QuestionObjective {
			answer = a.SubmittedChoice
		}
		qr := model.QuestionResult{
			QuestionID: q.ID,
			Text:       q.Text,
			Type:       string(q.Type),
			MaxMarks:   q.MaxMarks,
			Answer:     answer,
		}
		if ev, ok := scored[q.ID]; ok {
			qr.MarksAwarded = ev.MarksAwarded
			qr.Feedback = ev.Feedback
			qr.EvaluatedBy = ev.EvaluatedBy
			qr.NeedsReview = ev.NeedsReview
		}
		questions = append(questions, qr)
	}

	res := model.StudentResult{
		SubmissionID: sub.ID,
		ExamID:       sub.ExamID,
		StudentID:    sub.StudentID,
		Subject:      sub.Subject,
		Questions:    questions,
		Reviewed:     sub.ReviewedBy != nil,
	}
	if sub.Evaluation != nil {
		res.Percentage = sub.Evaluation.Percentage
		res.Grade = sub.Evaluation.Grade
	}
	return res
}
