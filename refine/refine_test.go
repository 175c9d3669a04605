package refine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type fakeCompleter struct {
	text string
	err  error

	gotMessages []Message
}

func (f *fakeCompleter) Complete(_ context.Context, messages []Message) (string, Usage, error) {
	f.gotMessages = messages
	if f.err != nil {
		return "", Usage{}, f.err
	}
	return f.text, Usage{TotalTokens: 10}, nil
}

func TestRefineSucceeds(t *testing.T) {
	fake := &fakeCompleter{text: "  Hello, world.  "}
	r := NewRefiner(Config{Enabled: true, Provider: "openai"}, fake, nil)

	res := r.Refine(context.Background(), "hello world")

	if res.Outcome != OutcomeRefined {
		t.Fatalf("outcome = %q, want %q", res.Outcome, OutcomeRefined)
	}
	if res.Text != "Hello, world." {
		t.Errorf("text = %q, want trimmed completion", res.Text)
	}
	if res.Provider != "openai" {
		t.Errorf("provider = %q, want openai", res.Provider)
	}
	if res.Latency < 0 {
		t.Errorf("latency = %v, want non-negative", res.Latency)
	}

	if len(fake.gotMessages) != 2 {
		t.Fatalf("got %d messages, want system + user", len(fake.gotMessages))
	}
	if fake.gotMessages[0].Role != "system" {
		t.Errorf("first message role = %q, want system", fake.gotMessages[0].Role)
	}
	if fake.gotMessages[1].Content != "hello world" {
		t.Errorf("user message = %q, want raw transcript", fake.gotMessages[1].Content)
	}
}

func TestRefineLanguageHint(t *testing.T) {
	fake := &fakeCompleter{text: "ok"}
	r := NewRefiner(Config{Enabled: true, Provider: "openai"}, fake, nil)

	r.Refine(context.Background(), "please schedule the meeting for tomorrow afternoon")

	system := fake.gotMessages[0].Content
	if !strings.Contains(system, "Respond in English") {
		t.Errorf("system prompt missing language hint: %q", system)
	}
}

func TestRefineFallbackOnError(t *testing.T) {
	fake := &fakeCompleter{err: errors.New("rate limited")}
	r := NewRefiner(Config{Enabled: true, Provider: "claude"}, fake, nil)

	res := r.Refine(context.Background(), "hello world")

	if res.Outcome != OutcomeFallback {
		t.Fatalf("outcome = %q, want %q", res.Outcome, OutcomeFallback)
	}
	if res.Reason != "rate limited" {
		t.Errorf("reason = %q, want completer error", res.Reason)
	}
}

func TestRefineFallbackOnEmptyResponse(t *testing.T) {
	fake := &fakeCompleter{text: "   "}
	r := NewRefiner(Config{Enabled: true, Provider: "openai"}, fake, nil)

	res := r.Refine(context.Background(), "hello world")

	if res.Outcome != OutcomeFallback {
		t.Fatalf("outcome = %q, want %q", res.Outcome, OutcomeFallback)
	}
	if res.Reason != "empty-response" {
		t.Errorf("reason = %q, want empty-response", res.Reason)
	}
}

func TestRefineSkipped(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		raw  string
		want string
	}{
		{"disabled", Config{Enabled: false}, "hello", "refinement-disabled"},
		{"empty transcript", Config{Enabled: true}, "   ", "empty-transcript"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRefiner(tt.cfg, &fakeCompleter{text: "x"}, nil)
			res := r.Refine(context.Background(), tt.raw)
			if res.Outcome != OutcomeSkipped {
				t.Fatalf("outcome = %q, want %q", res.Outcome, OutcomeSkipped)
			}
			if res.Reason != tt.want {
				t.Errorf("reason = %q, want %q", res.Reason, tt.want)
			}
		})
	}
}

func TestClaudeCompleter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-api-key"); got != "sk-test" {
			t.Errorf("x-api-key = %q, want sk-test", got)
		}
		if got := r.Header.Get("anthropic-version"); got == "" {
			t.Error("missing anthropic-version header")
		}

		var req claudeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.System != "be brief" {
			t.Errorf("system = %q, want extracted system prompt", req.System)
		}
		if req.MaxTokens == 0 {
			t.Error("max_tokens must be set")
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("messages = %+v, want single user message", req.Messages)
		}

		json.NewEncoder(w).Encode(claudeResponse{
			Content: []claudeContent{{Type: "text", Text: "refined"}},
			Usage:   &claudeUsage{InputTokens: 4, OutputTokens: 2},
		})
	}))
	defer srv.Close()

	c := NewCompleter("claude", "sk-test", srv.URL, "claude-test", CompleterOptions{})
	text, usage, err := c.Complete(context.Background(), []Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hello"},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "refined" {
		t.Errorf("text = %q, want refined", text)
	}
	if usage.TotalTokens != 6 {
		t.Errorf("total tokens = %d, want 6", usage.TotalTokens)
	}
}

func TestClaudeCompleterAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(claudeResponse{
			Error: &claudeAPIError{Type: "overloaded_error", Message: "try later"},
		})
	}))
	defer srv.Close()

	c := NewCompleter("claude", "sk-test", srv.URL, "claude-test", CompleterOptions{})
	if _, _, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "x"}}); err == nil {
		t.Fatal("expected API error")
	}
}

func TestGeminiCompleter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "gemini-test:generateContent") {
			t.Errorf("path = %q, want model generateContent call", r.URL.Path)
		}
		if got := r.URL.Query().Get("key"); got != "gk-test" {
			t.Errorf("key = %q, want gk-test", got)
		}

		var req geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.SystemInstruction == nil {
			t.Error("system instruction not extracted")
		}

		json.NewEncoder(w).Encode(geminiResponse{
			Candidates: []geminiCandidate{
				{Content: geminiContent{Parts: []geminiPart{{Text: "refined"}}}},
			},
			UsageMetadata: &geminiUsageMeta{TotalTokenCount: 7},
		})
	}))
	defer srv.Close()

	c := NewCompleter("gemini", "gk-test", srv.URL, "gemini-test", CompleterOptions{})
	text, usage, err := c.Complete(context.Background(), []Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hello"},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if text != "refined" {
		t.Errorf("text = %q, want refined", text)
	}
	if usage.TotalTokens != 7 {
		t.Errorf("total tokens = %d, want 7", usage.TotalTokens)
	}
}

func TestRefineTimeoutConfig(t *testing.T) {
	r := NewRefiner(Config{Enabled: true}, &fakeCompleter{text: "x"}, nil)
	if r.cfg.Timeout != 15*time.Second {
		t.Errorf("default timeout = %v, want 15s", r.cfg.Timeout)
	}
}
