package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCleanResponsePlain(t *testing.T) {
	if got := CleanResponse("  A short summary.  "); got != "A short summary." {
		t.Errorf("got %q", got)
	}
}

func TestCleanResponseWithCodeFence(t *testing.T) {
	if got := CleanResponse("```markdown\nSummary text\n```"); got != "Summary text" {
		t.Errorf("got %q", got)
	}
}

func TestCleanResponseUnclosedFence(t *testing.T) {
	if got := CleanResponse("```\nSummary text"); got != "Summary text" {
		t.Errorf("got %q", got)
	}
}

func TestCleanResponseQuotes(t *testing.T) {
	tests := []struct{ in, want string }{
		{`"quoted"`, "quoted"},
		{"“curly”", "curly"},
		{"「中文」", "中文"},
		{`"`, `"`},
		{`say "hi"`, `say "hi"`},
		{"", ""},
		{"   \n   ", ""},
	}
	for _, tt := range tests {
		if got := CleanResponse(tt.in); got != tt.want {
			t.Errorf("CleanResponse(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOpenAIProviderGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req.Model != "gpt-test" || len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("unexpected request: %+v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  hello  "},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("sk-test", "gpt-test", srv.URL+"/")
	got, err := p.Generate(context.Background(), "be brief", "say hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "hello" {
		t.Errorf("expected trimmed reply, got %q", got)
	}
}

func TestOpenAIProviderNotConfigured(t *testing.T) {
	p := NewOpenAIProvider("", "gpt-test", "")
	if p.IsConfigured() {
		t.Error("expected provider without key to be unconfigured")
	}
	if _, err := p.Generate(context.Background(), "s", "u"); err == nil {
		t.Error("expected error without API key")
	}
}

func TestAnthropicProviderGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("x-api-key") != "ak-test" || r.Header.Get("anthropic-version") != "2023-06-01" {
			t.Errorf("unexpected headers: %v", r.Header)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if req["system"] != "be brief" || req["max_tokens"] != float64(1024) {
			t.Errorf("unexpected request: %v", req)
		}
		w.Write([]byte(`{"content":[{"type":"thinking","text":"hmm"},{"type":"text","text":" summary "}]}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider("ak-test", "claude-test", srv.URL)
	got, err := p.Generate(context.Background(), "be brief", "summarize")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "summary" {
		t.Errorf("expected first text block, got %q", got)
	}
}

func TestAnthropicProviderHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", 529)
	}))
	defer srv.Close()

	p := NewAnthropicProvider("ak-test", "claude-test", srv.URL)
	if _, err := p.Generate(context.Background(), "s", "u"); err == nil {
		t.Error("expected error on non-200 response")
	}
}

func TestCreateProvider(t *testing.T) {
	if p := CreateProvider(Settings{Provider: "openai"}); p != nil {
		t.Error("expected nil provider without an API key")
	}
	if _, ok := CreateProvider(Settings{Provider: "anthropic", APIKey: "k"}).(*AnthropicProvider); !ok {
		t.Error("expected Anthropic provider")
	}
	if _, ok := CreateProvider(Settings{Provider: "", APIKey: "k"}).(*OpenAIProvider); !ok {
		t.Error("expected OpenAI provider by default")
	}
}
