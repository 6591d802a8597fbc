package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sandevgo/kaidesk/internal/config"
	"github.com/sandevgo/kaidesk/internal/core"
)

var conversation = []core.Message{
	{Role: core.RoleSystem, Content: "be brief"},
	{Role: core.RoleUser, Content: "hi"},
	{Role: core.RoleAssistant, Content: "hello"},
	{Role: core.RoleUser, Content: "fees?"},
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	data, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return out
}

func TestOpenAICompatible_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected auth header %q", got)
		}
		if got := r.Header.Get("X-Title"); got != "Kai" {
			t.Errorf("unexpected extra header %q", got)
		}
		body := decodeBody(t, r)
		if body["model"] != "m1" {
			t.Errorf("unexpected model %v", body["model"])
		}
		if msgs := body["messages"].([]any); len(msgs) != 4 {
			t.Errorf("expected 4 messages, got %d", len(msgs))
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"RM1200"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAICompatible(OpenAICompatibleConfig{
		BaseURL:      srv.URL + "/",
		APIKey:       "sk-test",
		Model:        "m1",
		AuthHeader:   "Authorization",
		AuthPrefix:   "Bearer ",
		ExtraHeaders: map[string]string{"X-Title": core.KaiName},
	})

	msg, err := p.Chat(context.Background(), conversation)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Content != "RM1200" || msg.Role != core.RoleAssistant {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestOpenAICompatible_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		errPart string
	}{
		{"http error", http.StatusTooManyRequests, `{"error":"rate limited"}`, "http 429"},
		{"empty choices", http.StatusOK, `{"choices":[]}`, "empty choices"},
		{"bad json", http.StatusOK, `not json`, "decode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p := NewCustomOpenAI(srv.URL, "", "m")
			_, err := p.Chat(context.Background(), conversation)
			if err == nil || !strings.Contains(err.Error(), tt.errPart) {
				t.Errorf("expected error containing %q, got %v", tt.errPart, err)
			}
		})
	}
}

func TestAnthropic_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "ak" || r.Header.Get("anthropic-version") != anthropicVersion {
			t.Errorf("missing anthropic headers")
		}
		body := decodeBody(t, r)
		if body["system"] != "be brief" {
			t.Errorf("system prompt not lifted: %v", body["system"])
		}
		if msgs := body["messages"].([]any); len(msgs) != 3 {
			t.Errorf("expected 3 messages without system, got %d", len(msgs))
		}
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"Fees "},{"type":"text","text":"vary."}]}`))
	}))
	defer srv.Close()

	a := NewAnthropic("ak", "claude")
	a.baseURL = srv.URL

	msg, err := a.Chat(context.Background(), conversation)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Content != "Fees vary." {
		t.Errorf("unexpected content %q", msg.Content)
	}
}

func TestGemini_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/gemini-2.5-flash-lite:generateContent" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "gk" {
			t.Errorf("missing api key header")
		}
		body := decodeBody(t, r)
		if _, ok := body["systemInstruction"]; !ok {
			t.Error("missing systemInstruction")
		}
		contents := body["contents"].([]any)
		if len(contents) != 3 {
			t.Fatalf("expected 3 contents, got %d", len(contents))
		}
		if role := contents[1].(map[string]any)["role"]; role != "model" {
			t.Errorf("assistant turn should map to model, got %v", role)
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"text\":\"ok\"}"}]}}]}`))
	}))
	defer srv.Close()

	g := newGeminiWithBaseURL(srv.URL, "gk", "models/gemini-2.5-flash-lite")
	msg, err := g.Chat(context.Background(), conversation)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Content != `{"text":"ok"}` {
		t.Errorf("unexpected content %q", msg.Content)
	}
}

func TestNewProvider(t *testing.T) {
	tests := []struct {
		provider string
		wantErr  bool
	}{
		{"openai", false},
		{"anthropic", false},
		{"openrouter", false},
		{"ollama", false},
		{"gemini", false},
		{"custom", true},
		{"unknown", true},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			cfg := &config.LLMConfig{Provider: tt.provider, Model: "m"}
			p, err := NewProvider(context.Background(), cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewProvider(%s) error = %v, wantErr %v", tt.provider, err, tt.wantErr)
			}
			if !tt.wantErr && p == nil {
				t.Error("expected a provider")
			}
		})
	}
}
