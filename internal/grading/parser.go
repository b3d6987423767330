package grading

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/pavelanni/evaluator/internal/model"
)

const (
	defaultParsedConfidence = 0.8
	degradedConfidence      = 0.5
	degradedMarksFraction   = 0.7
)

// jsonObjectRegex spans from the first '{' to the last '}' so that records
// wrapped in prose or markdown fences are still found.
var jsonObjectRegex = regexp.MustCompile(`(?s)\{.*\}`)

// rawScore holds the fields of a provider record that decoded cleanly.
// A field with the wrong type is left nil and defaulted later.
type rawScore struct {
	Marks        *float64
	Feedback     *string
	Strengths    []string
	Improvements []string
	Confidence   *float64
}

// ResponseParser turns a provider's raw reply into a ProviderScoreResult.
type ResponseParser struct {
	msgs Messages
}

// NewResponseParser creates a parser using msgs for default feedback.
func NewResponseParser(msgs Messages) ResponseParser {
	return ResponseParser{msgs: msgs}
}

// Parse decodes the structured record embedded in raw. Marks are clamped to
// [0, maxMarks] and missing fields defaulted. When no record can be decoded
// the result awards 70% of maxMarks, keeps raw as feedback and is flagged
// for review.
func (p ResponseParser) Parse(raw string, maxMarks float64) model.ProviderScoreResult {
	if rec, ok := decodeRecord(raw); ok {
		res := model.ProviderScoreResult{
			Feedback:     p.msgs.T("NoFeedbackProvided"),
			Strengths:    nonNil(rec.Strengths),
			Improvements: nonNil(rec.Improvements),
			Confidence:   defaultParsedConfidence,
		}
		if rec.Marks != nil {
			res.MarksAwarded = clampMarks(*rec.Marks, maxMarks)
		}
		if rec.Feedback != nil && *rec.Feedback != "" {
			res.Feedback = *rec.Feedback
		}
		// Zero confidence is treated as unset.
		if rec.Confidence != nil && *rec.Confidence != 0 {
			res.Confidence = clamp(*rec.Confidence, 0, 1)
		}
		return res
	}

	return model.ProviderScoreResult{
		MarksAwarded: clampMarks(math.Round(maxMarks*degradedMarksFraction), maxMarks),
		Feedback:     raw,
		Strengths:    []string{},
		Improvements: []string{},
		Confidence:   degradedConfidence,
		NeedsReview:  true,
	}
}

// decodeRecord fails only when raw holds no JSON object. Fields are decoded
// one by one so that a single mistyped field does not discard the rest.
func decodeRecord(raw string) (rawScore, bool) {
	match := jsonObjectRegex.FindString(raw)
	if match == "" {
		return rawScore{}, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(match), &fields); err != nil {
		return rawScore{}, false
	}

	var rec rawScore
	if v, ok := decodeNumber(fields["marks"]); ok {
		rec.Marks = &v
	}
	var feedback string
	if json.Unmarshal(fields["feedback"], &feedback) == nil {
		rec.Feedback = &feedback
	}
	rec.Strengths = decodeNotes(fields["strengths"])
	rec.Improvements = decodeNotes(fields["improvements"])
	if v, ok := decodeNumber(fields["confidence"]); ok {
		rec.Confidence = &v
	}
	return rec, true
}

// decodeNumber accepts a JSON number or a string holding one.
func decodeNumber(msg json.RawMessage) (float64, bool) {
	if len(msg) == 0 {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(msg, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(msg, &s); err != nil {
		return 0, false
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// decodeNotes returns nil unless msg is an array of strings.
func decodeNotes(msg json.RawMessage) []string {
	var notes []string
	if len(msg) == 0 || json.Unmarshal(msg, &notes) != nil {
		return nil
	}
	return notes
}

// clampMarks bounds m to [0, maxMarks]; NaN and negative maxima yield 0.
func clampMarks(m, maxMarks float64) float64 {
	if math.IsNaN(m) || math.IsNaN(maxMarks) || maxMarks <= 0 {
		return 0
	}
	return clamp(m, 0, maxMarks)
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(v, hi))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
