package model

import "time"

// EvaluationExport is the top-level JSON structure for evaluation export.
type EvaluationExport struct {
	ExportedAt time.Time       `json:"exported_at"`
	GradeScale string          `json:"grade_scale"`
	Stats      Stats           `json:"stats"`
	Results    []StudentResult `json:"results"`
}

// StudentResult holds one stored submission and its evaluation for export.
type StudentResult struct {
	SubmissionID string           `json:"submission_id"`
	ExamID       string           `json:"exam_id"`
	StudentID    string           `json:"student_id"`
	Subject      string           `json:"subject"`
	Questions    []QuestionResult `json:"questions"`
	Percentage   float64          `json:"percentage"`
	Grade        string           `json:"grade"`
	Reviewed     bool             `json:"reviewed"`
}

// QuestionResult holds per-question data for export.
type QuestionResult struct {
	QuestionID   string  `json:"question_id"`
	Text         string  `json:"text"`
	Type         string  `json:"type"`
	MaxMarks     float64 `json:"max_marks"`
	Answer       string  `json:"answer"`
	MarksAwarded float64 `json:"marks_awarded"`
	Feedback     string  `json:"feedback"`
	EvaluatedBy  string  `json:"evaluated_by"`
	NeedsReview  bool    `json:"needs_review"`
}

// Stats summarizes a set of graded submissions.
type Stats struct {
	Count             int            `json:"count"`
	AveragePercentage float64        `json:"average_percentage"`
	GradeDistribution map[string]int `json:"grade_distribution"`
}
