package grading

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pavelanni/evaluator/internal/i18n"
	"github.com/pavelanni/evaluator/internal/llm/prompts"
	"github.com/pavelanni/evaluator/internal/model"
)

type fakeProvider struct {
	name  string
	reply string
	err   error
	send  func(ctx context.Context, p prompts.Prompt) (string, error)
	calls atomic.Int32
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Send(ctx context.Context, p prompts.Prompt) (string, error) {
	f.calls.Add(1)
	if f.send != nil {
		return f.send(ctx, p)
	}
	return f.reply, f.err
}

type memStore struct {
	mu    sync.Mutex
	subs  map[string]model.Submission
	saves int
}

func newMemStore(subs ...model.Submission) *memStore {
	s := &memStore{subs: make(map[string]model.Submission)}
	for _, sub := range subs {
		s.subs[sub.ID] = sub
	}
	return s
}

func (s *memStore) GetByID(_ context.Context, id string) (model.Submission, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	return sub, ok, nil
}

func (s *memStore) Save(_ context.Context, sub model.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.ID] = sub
	s.saves++
	return nil
}

func testMessages(t *testing.T) *i18n.Catalog {
	t.Helper()
	c, err := i18n.New("en")
	require.NoError(t, err)
	return c
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testBuilder(t *testing.T) *prompts.Builder {
	t.Helper()
	b, err := prompts.New(prompts.PromptStandard)
	require.NoError(t, err)
	return b
}

func newTestEngine(t *testing.T, providers ...Provider) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultConfig(), providers, testMessages(t), discardLogger())
	require.NoError(t, err)
	return e
}

func freeText(id string, maxMarks float64, reference string) model.QuestionSpec {
	return model.QuestionSpec{
		ID:              id,
		Text:            "Explain " + id,
		Type:            model.QuestionFreeText,
		ReferenceAnswer: reference,
		MaxMarks:        maxMarks,
	}
}

func evalOf(id string, awarded, maxMarks float64) model.QuestionEvaluation {
	return model.QuestionEvaluation{
		ProviderScoreResult: model.ProviderScoreResult{
			MarksAwarded: awarded,
			Strengths:    []string{},
			Improvements: []string{},
		},
		QuestionID: id,
		MaxMarks:   maxMarks,
	}
}
