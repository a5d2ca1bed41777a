package llm

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/joseph-ayodele/bills-assistant/internal/common"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func reply(content string) Completer {
	return CompleterFunc(func(context.Context, CompletionRequest) (string, error) {
		return content, nil
	})
}

func ptr(f float64) *float64 { return &f }

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    map[string]any
		wantErr error
	}{
		{
			name:    "clean plan",
			content: `{"type": "AGGREGATION", "operation": "sum", "filters": {"category": "Grocery"}, "entities": null, "time_range": null, "needs_rag": false}`,
			want: map[string]any{
				"type": "AGGREGATION", "operation": "sum", "filters": map[string]any{"category": "Grocery"},
				"entities": nil, "time_range": nil, "needs_rag": false,
			},
		},
		{
			name:    "fenced reply with case drift and empty list filters",
			content: "```json\n{\"type\": \"filter\", \"operation\": \"LIST\", \"filters\": [], \"reasoning\": \"x\"}\n```",
			want:    map[string]any{"type": "FILTER", "operation": "list", "filters": nil},
		},
		{
			name:    "prose without json",
			content: "I think you want a list of bills.",
			wantErr: common.ErrMalformedPlan,
		},
		{
			name:    "missing type",
			content: `{"operation": "sum"}`,
			wantErr: common.ErrMalformedPlan,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAssistant(reply(tt.content), quietLogger())
			got, err := a.Classify(context.Background(), "how much on groceries")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Classify() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Classify() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Classify() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAssistantTransportErrorsAreCollaboratorFailures(t *testing.T) {
	boom := errors.New("connection refused")
	a := NewAssistant(CompleterFunc(func(context.Context, CompletionRequest) (string, error) {
		return "", boom
	}), quietLogger())
	ctx := context.Background()

	_, err := a.Classify(ctx, "q")
	if !errors.Is(err, common.ErrCollaboratorUnavailable) || !errors.Is(err, boom) {
		t.Errorf("Classify() error = %v, want collaborator unavailable wrapping cause", err)
	}
	if _, err := a.ExtractTime(ctx, "q"); !errors.Is(err, common.ErrCollaboratorUnavailable) {
		t.Errorf("ExtractTime() error = %v, want collaborator unavailable", err)
	}
	if _, err := a.Generate(ctx, "q"); !errors.Is(err, common.ErrCollaboratorUnavailable) {
		t.Errorf("Generate() error = %v, want collaborator unavailable", err)
	}
	if _, err := a.ExtractBill(ctx, "some bill text"); !errors.Is(err, common.ErrCollaboratorUnavailable) {
		t.Errorf("ExtractBill() error = %v, want collaborator unavailable", err)
	}
}

func TestExtractTime(t *testing.T) {
	var seen CompletionRequest
	a := NewAssistant(CompleterFunc(func(_ context.Context, req CompletionRequest) (string, error) {
		seen = req
		return `{"type": "RELATIVE", "from": {"relative": {"unit": "month", "offset": -3}}, "to": {"relative": {"unit": "month", "offset": -1}}, "granularity": "month"}`, nil
	}), quietLogger())

	got, err := a.ExtractTime(context.Background(), "spend in the last 3 months")
	if err != nil {
		t.Fatalf("ExtractTime() error = %v", err)
	}
	if got["type"] != "RELATIVE" || got["granularity"] != "month" {
		t.Errorf("ExtractTime() = %v", got)
	}
	if !seen.JSON {
		t.Error("time extraction should request a JSON response")
	}
	if n := len(seen.Messages); n != len(timeFewShot)+2 || seen.Messages[n-1].Content != "spend in the last 3 months" {
		t.Errorf("time extraction messages = %d, last %q", n, seen.Messages[n-1].Content)
	}

	bad := NewAssistant(reply(`{"type": "RELATIVE"}`), quietLogger())
	if _, err := bad.ExtractTime(context.Background(), "q"); !errors.Is(err, common.ErrInvalidTimeExpression) {
		t.Errorf("ExtractTime() without granularity error = %v, want invalid time expression", err)
	}
}

func TestExtractBill(t *testing.T) {
	content := `Here you go:
{"vendor": " Fresh Mart ", "bill_date": "2026-01-05", "category": "Grocery", "total_amount": "Rs. 1,250.50",
 "tax_amount": null, "currency": "inr", "payment_method": "upi", "cashier": "Asha",
 "items": [{"name": "Rice", "amount": 50, "gst": "5%"}, {"amount": 3}]}`
	a := NewAssistant(reply(content), quietLogger())

	got, err := a.ExtractBill(context.Background(), "FRESH MART ... TOTAL 1250.50")
	if err != nil {
		t.Fatalf("ExtractBill() error = %v", err)
	}
	want := BillFields{
		Vendor:        "Fresh Mart",
		BillDate:      "2026-01-05",
		Category:      "Grocery",
		TotalAmount:   ptr(1250.5),
		Currency:      "INR",
		PaymentMethod: "UPI",
		Items:         []BillItem{{Description: "Rice", Amount: ptr(50), GST: ptr(5)}},
		ExtraData:     map[string]any{"cashier": "Asha"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ExtractBill() mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractBillRejectsBadDates(t *testing.T) {
	a := NewAssistant(reply(`{"vendor": "X", "bill_date": "05/01/2025"}`), quietLogger())
	if _, err := a.ExtractBill(context.Background(), "some bill text"); err == nil {
		t.Error("ExtractBill() with a non-ISO date should fail validation")
	}
}

func TestGenerateTrimsAnswer(t *testing.T) {
	a := NewAssistant(reply("  You spent 70 on groceries.\n"), quietLogger())
	got, err := a.Generate(context.Background(), SemanticAnswerPrompt("ctx", "q"))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "You spent 70 on groceries." {
		t.Errorf("Generate() = %q", got)
	}
}
