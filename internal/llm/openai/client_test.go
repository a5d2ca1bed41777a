package openai

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/joseph-ayodele/bills-assistant/internal/common"
	"github.com/joseph-ayodele/bills-assistant/internal/llm"
)

func TestCompleteSendsChatRequest(t *testing.T) {
	var body map[string]any
	var auth, reqID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		reqID = r.Header.Get("X-Request-ID")
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  {\"type\":\"FILTER\"}\n"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL + "/v1/", Model: "m"}, slog.New(slog.DiscardHandler))
	ctx := common.WithRequestID(context.Background(), "req-42")
	got, err := c.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{{Role: llm.RoleSystem, Content: "sys"}, {Role: llm.RoleUser, Content: "hi"}},
		JSON:     true,
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != `{"type":"FILTER"}` {
		t.Errorf("Complete() = %q", got)
	}
	if auth != "Bearer k" {
		t.Errorf("Authorization = %q", auth)
	}
	if reqID != "req-42" {
		t.Errorf("X-Request-ID = %q", reqID)
	}
	if body["model"] != "m" {
		t.Errorf("model = %v", body["model"])
	}
	if rf, _ := body["response_format"].(map[string]any); rf["type"] != "json_object" {
		t.Errorf("response_format = %v", body["response_format"])
	}
	if msgs, _ := body["messages"].([]any); len(msgs) != 2 {
		t.Errorf("messages = %v", body["messages"])
	}
}

func TestCompleteErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		retryable  bool
		retryAfter time.Duration
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"error":"slow down"}`, retryable: true, retryAfter: 7 * time.Second},
		{name: "bad request", status: http.StatusBadRequest, body: `{"error":"bad"}`},
		{name: "no choices", status: http.StatusOK, body: `{"choices":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if tt.retryAfter > 0 {
					w.Header().Set("Retry-After", "7")
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, slog.New(slog.DiscardHandler))
			_, err := c.Complete(context.Background(), llm.CompletionRequest{Messages: []llm.Message{{Role: llm.RoleUser, Content: "x"}}})
			if err == nil {
				t.Fatal("Complete() should fail")
			}
			var se *llm.StatusError
			if tt.status == http.StatusOK {
				if !errors.Is(err, errNoChoices) {
					t.Errorf("Complete() error = %v, want errNoChoices", err)
				}
				return
			}
			if !errors.As(err, &se) || se.Status != tt.status || se.Retryable() != tt.retryable || se.RetryAfter != tt.retryAfter {
				t.Errorf("Complete() error = %#v", err)
			}
		})
	}
}

func TestNewClientDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "env-key")
	c := NewClient(Config{}, nil)
	if c.cfg.APIKey != "env-key" || c.cfg.Model != "llama-3.1-8b-instant" || c.cfg.Timeout <= 0 {
		t.Errorf("defaults not applied: %+v", c.cfg)
	}
}
