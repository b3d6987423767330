package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pavelanni/evaluator/internal/llm/prompts"
)

func chatServer(t *testing.T, status int, content string, gotReq *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if gotReq != nil {
			_ = json.NewDecoder(r.Body).Decode(gotReq)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			return
		}
		resp := map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name, provider, key, model string
	}{
		{"missing name", "", "k", "m"},
		{"missing key", "openai", "", "m"},
		{"missing model", "openai", "k", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.provider, "", tt.key, tt.model, DefaultOptions()); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSend(t *testing.T) {
	var got map[string]any
	srv := chatServer(t, http.StatusOK, `  {"marks": 7}  `, &got)

	opts := DefaultOptions()
	opts.JSONMode = true
	c, err := New(ProviderOpenAI, srv.URL+"/v1", "key", "test-model", opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.Name() != ProviderOpenAI || c.Model() != "test-model" {
		t.Errorf("unexpected identity %s/%s", c.Name(), c.Model())
	}

	raw, err := c.Send(context.Background(), prompts.Prompt{System: "sys", User: "usr"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if raw != `{"marks": 7}` {
		t.Errorf("raw = %q", raw)
	}

	msgs, _ := got["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if _, ok := got["response_format"]; !ok {
		t.Error("JSON mode should set response_format")
	}
}

func TestSendErrors(t *testing.T) {
	t.Run("server error", func(t *testing.T) {
		srv := chatServer(t, http.StatusInternalServerError, "", nil)
		c, _ := New(ProviderGemini, srv.URL+"/v1", "key", "m", DefaultOptions())
		if _, err := c.Send(context.Background(), prompts.Prompt{User: "x"}); err == nil {
			t.Error("expected error on 500")
		}
	})

	t.Run("empty content", func(t *testing.T) {
		srv := chatServer(t, http.StatusOK, "   ", nil)
		c, _ := New(ProviderGemini, srv.URL+"/v1", "key", "m", DefaultOptions())
		_, err := c.Send(context.Background(), prompts.Prompt{User: "x"})
		if !errors.Is(err, ErrEmptyResponse) {
			t.Errorf("expected ErrEmptyResponse, got %v", err)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		srv := chatServer(t, http.StatusOK, "{}", nil)
		c, _ := New(ProviderOpenAI, srv.URL+"/v1", "key", "m", DefaultOptions())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := c.Send(ctx, prompts.Prompt{User: "x"}); err == nil {
			t.Error("expected error on cancelled context")
		}
	})
}
