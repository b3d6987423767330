package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newCatalog(t *testing.T, lang string) *Catalog {
	t.Helper()
	c, err := New(lang)
	if err != nil {
		t.Fatalf("New(%q): %v", lang, err)
	}
	return c
}

func TestTranslateEnglish(t *testing.T) {
	c := newCatalog(t, "en")

	if got := c.T("CorrectAnswer"); got != "Correct answer" {
		t.Errorf("T(CorrectAnswer) = %q, want 'Correct answer'", got)
	}
	if got := c.T("NoAnswerSubmitted"); got != "No answer submitted" {
		t.Errorf("T(NoAnswerSubmitted) = %q, want 'No answer submitted'", got)
	}
}

func TestTranslateRussian(t *testing.T) {
	c := newCatalog(t, "ru")

	if got := c.T("CorrectAnswer"); got != "Правильный ответ" {
		t.Errorf("T(CorrectAnswer) = %q, want 'Правильный ответ'", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	c := newCatalog(t, "en")

	got := c.Td("IncorrectAnswer", map[string]any{"Choice": "B"})
	if got != "Incorrect. The correct answer is B" {
		t.Errorf("Td(IncorrectAnswer, Choice=B) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	c := newCatalog(t, "en")

	if got := c.T("NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestInvalidLanguage(t *testing.T) {
	if _, err := New("not a language tag!"); err == nil {
		t.Error("expected error for invalid language tag")
	}
}

func TestMiddleware(t *testing.T) {
	c := newCatalog(t, "ru")

	var seen *Catalog
	h := Middleware(c)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen != c {
		t.Error("catalog not injected into request context")
	}
	if got := rec.Header().Get("Content-Language"); got != "ru" {
		t.Errorf("Content-Language = %q, want ru", got)
	}
	if FromContext(context.Background()) != nil {
		t.Error("expected nil catalog on empty context")
	}
}
