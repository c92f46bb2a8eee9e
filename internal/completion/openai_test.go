package completion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIClientComplete(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Fatalf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  <SQL>SELECT 1;</SQL>\n"}}]}`))
	}))
	defer server.Close()

	client, err := NewOpenAIClient(OpenAIConfig{BaseURL: server.URL + "/", APIKey: "secret", Model: "test-model", TopP: 0.9, MaxTokens: 256})
	if err != nil {
		t.Fatalf("NewOpenAIClient() error = %v", err)
	}
	got, err := client.Complete(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "<SQL>SELECT 1;</SQL>" {
		t.Fatalf("Complete() = %q", got)
	}
	if captured["model"] != "test-model" {
		t.Fatalf("model = %v", captured["model"])
	}
	if captured["max_tokens"] != float64(256) {
		t.Fatalf("max_tokens = %v", captured["max_tokens"])
	}
	if captured["top_p"] != 0.9 {
		t.Fatalf("top_p = %v", captured["top_p"])
	}
}

func TestOpenAIClientErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, err := NewOpenAIClient(OpenAIConfig{BaseURL: server.URL, APIKey: "k"})
	if err != nil {
		t.Fatalf("NewOpenAIClient() error = %v", err)
	}
	if _, err := client.Complete(context.Background(), "hello"); err == nil {
		t.Fatal("expected error for 429 response")
	}
}

func TestNewOpenAIClientRequiresSettings(t *testing.T) {
	if _, err := NewOpenAIClient(OpenAIConfig{APIKey: "k"}); err == nil {
		t.Fatal("expected error for missing base URL")
	}
	if _, err := NewOpenAIClient(OpenAIConfig{BaseURL: "http://x"}); err == nil {
		t.Fatal("expected error for missing api key")
	}
}

func TestNewRateLimitedPassThroughWhenDisabled(t *testing.T) {
	base := CompleterFunc(func(context.Context, string) (string, error) { return "ok", nil })
	if _, ok := NewRateLimited(base, 0, 0).(CompleterFunc); !ok {
		t.Fatal("NewRateLimited() should return the wrapped completer when disabled")
	}
	limited := NewRateLimited(base, 100, 1)
	got, err := limited.Complete(context.Background(), "p")
	if err != nil || got != "ok" {
		t.Fatalf("Complete() = %q, %v", got, err)
	}
}
