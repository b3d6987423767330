package grading

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResponseParser_Parse(t *testing.T) {
	p := NewResponseParser(testMessages(t))

	tests := []struct {
		name        string
		raw         string
		maxMarks    float64
		marks       float64
		feedback    string
		confidence  float64
		needsReview bool
	}{
		{
			name:       "complete record",
			raw:        `{"marks": 8, "feedback": "Solid", "strengths": ["clear"], "improvements": [], "confidence": 0.9}`,
			maxMarks:   10,
			marks:      8,
			feedback:   "Solid",
			confidence: 0.9,
		},
		{
			name:       "marks above maximum are clamped",
			raw:        `{"marks": 15, "feedback": "Great"}`,
			maxMarks:   10,
			marks:      10,
			feedback:   "Great",
			confidence: 0.8,
		},
		{
			name:       "negative marks are clamped",
			raw:        `{"marks": -3, "feedback": "Wrong"}`,
			maxMarks:   10,
			marks:      0,
			feedback:   "Wrong",
			confidence: 0.8,
		},
		{
			name:       "record wrapped in prose and fences",
			raw:        "Here is my grading:\n```json\n{\"marks\": 4}\n```\nThanks.",
			maxMarks:   5,
			marks:      4,
			feedback:   "No feedback provided",
			confidence: 0.8,
		},
		{
			name:       "confidence outside unit range",
			raw:        `{"marks": 2, "feedback": "ok", "confidence": 3}`,
			maxMarks:   5,
			marks:      2,
			feedback:   "ok",
			confidence: 1,
		},
		{
			name:       "mistyped notes keep the marks",
			raw:        `{"marks": 2, "feedback": "weak", "strengths": "none", "confidence": 0.9}`,
			maxMarks:   10,
			marks:      2,
			feedback:   "weak",
			confidence: 0.9,
		},
		{
			name:       "marks as numeric string",
			raw:        `{"marks": "2", "feedback": "weak"}`,
			maxMarks:   10,
			marks:      2,
			feedback:   "weak",
			confidence: 0.8,
		},
		{
			name:       "unusable marks default to zero",
			raw:        `{"marks": "two", "feedback": 5}`,
			maxMarks:   10,
			marks:      0,
			feedback:   "No feedback provided",
			confidence: 0.8,
		},
		{
			name:       "zero confidence uses default",
			raw:        `{"marks": 3, "feedback": "fine", "confidence": 0}`,
			maxMarks:   5,
			marks:      3,
			feedback:   "fine",
			confidence: 0.8,
		},
		{
			name:        "no record at all",
			raw:         "The answer looks mostly right.",
			maxMarks:    10,
			marks:       7,
			feedback:    "The answer looks mostly right.",
			confidence:  0.5,
			needsReview: true,
		},
		{
			name:        "malformed record",
			raw:         `{"marks": eight}`,
			maxMarks:    3,
			marks:       2,
			feedback:    `{"marks": eight}`,
			confidence:  0.5,
			needsReview: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Parse(tt.raw, tt.maxMarks)
			assert.Equal(t, tt.marks, got.MarksAwarded)
			assert.Equal(t, tt.feedback, got.Feedback)
			assert.InDelta(t, tt.confidence, got.Confidence, 1e-9)
			assert.Equal(t, tt.needsReview, got.NeedsReview)
			assert.NotNil(t, got.Strengths)
			assert.NotNil(t, got.Improvements)
		})
	}
}

func TestResponseParser_MarksAlwaysInRange(t *testing.T) {
	p := NewResponseParser(testMessages(t))
	r := rand.New(rand.NewPCG(7, 42))

	for i := range 500 {
		maxMarks := float64(r.IntN(50))
		marks := r.Float64()*300 - 150
		raw := fmt.Sprintf(`{"marks": %g, "feedback": "case %d"}`, marks, i)
		if i%5 == 0 {
			raw = fmt.Sprintf("unparseable reply %d", i)
		}

		got := p.Parse(raw, maxMarks)
		if got.MarksAwarded < 0 || got.MarksAwarded > maxMarks {
			t.Fatalf("case %d: marks %v outside [0, %v] for %q", i, got.MarksAwarded, maxMarks, raw)
		}
		if got.Confidence < 0 || got.Confidence > 1 {
			t.Fatalf("case %d: confidence %v outside [0, 1]", i, got.Confidence)
		}
	}
}
