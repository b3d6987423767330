package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleStudent is a student user role.
	UserRoleStudent UserRole = "student"
	// UserRoleTeacher is a teacher user role.
	UserRoleTeacher UserRole = "teacher"
	// UserRoleAdmin is an admin user role.
	UserRoleAdmin UserRole = "admin"
)

// User represents a system user.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

// QuestionType distinguishes objectively scored questions from free-text ones.
type QuestionType string

const (
	QuestionObjective QuestionType = "objective"
	QuestionFreeText  QuestionType = "free-text"
)

// QuestionSpec is an immutable question definition. For objective questions
// ReferenceAnswer holds the correct choice.
type QuestionSpec struct {
	ID              string       `json:"id" validate:"required"`
	Text            string       `json:"text"`
	Type            QuestionType `json:"type" validate:"required,oneof=objective free-text"`
	ReferenceAnswer string       `json:"reference_answer"`
	MaxMarks        float64      `json:"max_marks" validate:"gte=0"`
	Rubric          string       `json:"rubric,omitempty"`
	Subject         string       `json:"subject,omitempty"`
}

// CandidateAnswer is one test-taker answer. Free-text questions read
// SubmittedText, objective questions read SubmittedChoice.
type CandidateAnswer struct {
	QuestionID      string `json:"question_id" validate:"required"`
	SubmittedText   string `json:"submitted_text,omitempty"`
	SubmittedChoice string `json:"submitted_choice,omitempty"`
}

// ProviderScoreResult is the canonical score shape produced by providers,
// the response parser and the fallback scorer.
type ProviderScoreResult struct {
	MarksAwarded float64  `json:"marks_awarded"`
	Feedback     string   `json:"feedback"`
	Strengths    []string `json:"strengths"`
	Improvements []string `json:"improvements"`
	Confidence   float64  `json:"confidence"`
	NeedsReview  bool     `json:"needs_review,omitempty"`
}

// Evaluation source tags for QuestionEvaluation.EvaluatedBy that are not provider names.
const (
	EvaluatedByFallback   = "fallback"
	EvaluatedByObjective  = "objective"
	EvaluatedByUnanswered = "unanswered"
	EvaluatedByError      = "error"
	EvaluatedByCancelled  = "cancelled"
	EvaluatedByManual     = "manual"
)

// QuestionEvaluation is the scored result for a single question.
type QuestionEvaluation struct {
	ProviderScoreResult
	QuestionID  string  `json:"question_id"`
	MaxMarks    float64 `json:"max_marks"`
	EvaluatedBy string  `json:"evaluated_by"`
}

// SubmissionEvaluation aggregates per-question results for one submission.
type SubmissionEvaluation struct {
	PerQuestion     []QuestionEvaluation `json:"per_question"`
	TotalAwarded    float64              `json:"total_awarded"`
	TotalPossible   float64              `json:"total_possible"`
	Percentage      float64              `json:"percentage"`
	Grade           string               `json:"grade"`
	OverallFeedback string               `json:"overall_feedback"`
	Strengths       []string             `json:"strengths"`
	Improvements    []string             `json:"improvements"`
}

// ItemStatus is the per-item outcome of a batch operation.
type ItemStatus string

const (
	ItemSuccess ItemStatus = "success"
	ItemSkipped ItemStatus = "skipped"
	ItemFailed  ItemStatus = "failed"
)

// BatchItemOutcome reports one unit of work inside a batch call.
type BatchItemOutcome[T any] struct {
	ItemID string     `json:"item_id"`
	Status ItemStatus `json:"status"`
	Result *T         `json:"result,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// ReevaluationResult is the success payload of a re-evaluated submission.
type ReevaluationResult struct {
	Percentage float64 `json:"percentage"`
	Grade      string  `json:"grade"`
}
