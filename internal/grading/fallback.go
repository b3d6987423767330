package grading

import (
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pavelanni/evaluator/internal/model"
)

const (
	fallbackConfidence  = 0.6
	minSignificantRunes = 4
	strengthSimilarity  = 0.7
	improvingSimilarity = 0.5
)

// FallbackScorer scores an answer by lexical overlap with the reference
// answer. It performs no I/O and always succeeds.
type FallbackScorer struct {
	msgs Messages
}

// NewFallbackScorer creates a scorer using msgs for its canned notes.
func NewFallbackScorer(msgs Messages) FallbackScorer {
	return FallbackScorer{msgs: msgs}
}

// Score returns round(similarity * maxMarks) where similarity is the share of
// significant reference tokens (longer than three runes) found in the candidate.
func (f FallbackScorer) Score(req EvaluationRequest) model.ProviderScoreResult {
	sim := similarity(req.ReferenceAnswer, req.CandidateAnswer)

	res := model.ProviderScoreResult{
		MarksAwarded: clampMarks(math.Round(sim*req.MaxMarks), req.MaxMarks),
		Feedback:     f.msgs.T("FallbackFeedback"),
		Strengths:    []string{},
		Improvements: []string{},
		Confidence:   fallbackConfidence,
		NeedsReview:  true,
	}
	if sim > strengthSimilarity {
		res.Strengths = append(res.Strengths, f.msgs.T("FallbackStrength"))
	}
	if sim < improvingSimilarity {
		res.Improvements = append(res.Improvements,
			f.msgs.T("FallbackImproveDetails"),
			f.msgs.T("FallbackImproveConcepts"),
		)
	}
	return res
}

func similarity(reference, candidate string) float64 {
	seen := make(map[string]struct{})
	for _, tok := range tokenize(candidate) {
		seen[tok] = struct{}{}
	}

	var significant, matches int
	for _, tok := range tokenize(reference) {
		if utf8.RuneCountInString(tok) < minSignificantRunes {
			continue
		}
		significant++
		if _, ok := seen[tok]; ok {
			matches++
		}
	}
	return float64(matches) / float64(max(1, significant))
}

func tokenize(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	tokens := fields[:0]
	for _, f := range fields {
		f = strings.TrimFunc(f, unicode.IsPunct)
		if f != "" {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
