package einochat

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/go-cmp/cmp"

	"github.com/joseph-ayodele/bills-assistant/internal/llm"
)

type fakeChat struct {
	got   []*schema.Message
	reply *schema.Message
	err   error
}

func (f *fakeChat) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.got = input
	return f.reply, f.err
}

func (f *fakeChat) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

func TestCompleteMapsRoles(t *testing.T) {
	chat := &fakeChat{reply: schema.AssistantMessage(" {\"type\":\"NONE\"} ", nil)}
	c := New(chat, "fake", slog.New(slog.DiscardHandler))

	got, err := c.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "sys"},
			{Role: llm.RoleUser, Content: "q1"},
			{Role: llm.RoleAssistant, Content: "a1"},
			{Role: llm.RoleUser, Content: "q2"},
		},
		JSON: true,
	})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != `{"type":"NONE"}` {
		t.Errorf("Complete() = %q", got)
	}

	type turn struct {
		Role    schema.RoleType
		Content string
	}
	var turns []turn
	for _, m := range chat.got {
		turns = append(turns, turn{m.Role, m.Content})
	}
	want := []turn{
		{schema.System, "sys"},
		{schema.User, "q1"},
		{schema.Assistant, "a1"},
		{schema.User, "q2"},
		{schema.System, "Output JSON only. No markdown."},
	}
	if diff := cmp.Diff(want, turns); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
}

func TestCompleteErrors(t *testing.T) {
	boom := errors.New("ollama down")
	c := New(&fakeChat{err: boom}, "fake", nil)
	if _, err := c.Complete(context.Background(), llm.CompletionRequest{}); !errors.Is(err, boom) {
		t.Errorf("Complete() error = %v, want %v", err, boom)
	}

	c = New(&fakeChat{}, "fake", nil)
	if _, err := c.Complete(context.Background(), llm.CompletionRequest{}); !errors.Is(err, errEmptyResponse) {
		t.Errorf("Complete() error = %v, want errEmptyResponse", err)
	}
}
