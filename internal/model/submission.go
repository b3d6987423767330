package model

import (
	"strings"
	"time"
)

// Submission is a stored exam attempt: the question set, the candidate's
// answers and the latest evaluation, if any.
type Submission struct {
	ID         string                `json:"id"`
	ExamID     string                `json:"exam_id" validate:"required"`
	StudentID  string                `json:"student_id" validate:"required"`
	OwnerID    int64                 `json:"owner_id"`
	Subject    string                `json:"subject"`
	Questions  []QuestionSpec        `json:"questions" validate:"required,min=1,dive"`
	Answers    []CandidateAnswer     `json:"answers" validate:"dive"`
	Evaluation *SubmissionEvaluation `json:"evaluation,omitempty"`
	ReviewedBy *int64                `json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time            `json:"reviewed_at,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

// AnswerFor returns the candidate's answer to questionID, or an empty answer.
func (s Submission) AnswerFor(questionID string) CandidateAnswer {
	for _, a := range s.Answers {
		if a.QuestionID == questionID {
			return a
		}
	}
	return CandidateAnswer{QuestionID: questionID}
}

// NeedsRescoring reports whether any free-text question has a non-blank answer.
func (s Submission) NeedsRescoring() bool {
	for _, q := range s.Questions {
		if q.Type == QuestionFreeText && strings.TrimSpace(s.AnswerFor(q.ID).SubmittedText) != "" {
			return true
		}
	}
	return false
}

// RolePolicy decides whether an actor may modify a submission.
// Admins may modify any submission, teachers only the ones they own.
type RolePolicy struct{}

// CanModify implements the authorization check used by re-evaluation and review.
func (RolePolicy) CanModify(actor User, sub Submission) bool {
	if !actor.Active {
		return false
	}
	switch actor.Role {
	case UserRoleAdmin:
		return true
	case UserRoleTeacher:
		return sub.OwnerID == actor.ID
	default:
		return false
	}
}
