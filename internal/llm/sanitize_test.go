package llm

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{name: "bare", in: `{"a":1}`, want: `{"a":1}`},
		{name: "fenced", in: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "prose around", in: "Sure! {\"a\":{\"b\":2}} hope that helps", want: `{"a":{"b":2}}`},
		{name: "braces in strings", in: `{"note":"use } and { freely","q":"\"}"}`, want: `{"note":"use } and { freely","q":"\"}"}`},
		{name: "no object", in: "nothing here", wantErr: true},
		{name: "unbalanced", in: `{"a":{"b":1}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSONObject(tt.in)
			if tt.wantErr {
				if !errors.Is(err, errNoJSONObject) {
					t.Fatalf("ExtractJSONObject() error = %v, want errNoJSONObject", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractJSONObject() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("ExtractJSONObject() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSanitizePlanJSON(t *testing.T) {
	raw := []byte(`{"type":" mixed ","operation":"Count","entities":"","filters":{"vendor":"Apollo"},"needs_rag":"true","confidence":0.9}`)
	out, changed, err := SanitizePlanJSON(raw, quietLogger())
	if err != nil {
		t.Fatalf("SanitizePlanJSON() error = %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatal(err)
	}
	want := map[string]any{
		"type": "MIXED", "operation": "count", "entities": nil,
		"filters": map[string]any{"vendor": "Apollo"}, "needs_rag": true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SanitizePlanJSON() mismatch (-want +got):\n%s", diff)
	}
	if len(changed) != 5 {
		t.Errorf("changed = %v, want 5 repairs", changed)
	}
	if err := mustSchema(t, planSchema).Validate(out); err != nil {
		t.Errorf("sanitized plan should validate: %v", err)
	}
}

func TestSanitizeBillJSON(t *testing.T) {
	raw := []byte(`{
		"vendor": "Apollo Hospital",
		"bill_no": 4417,
		"total_amount": "Rs. 12,500",
		"tax_amount": "n/a",
		"currency": "rupees",
		"payment_method": "credit card",
		"items": [{"name": "Consultation", "amount": "1,000.00", "quantity": "1"}, "junk", {"description": "  "}],
		"extra_data": {"ward": "B"},
		"doctor": "Dr. Rao",
		"notes": null
	}`)
	out, dropped, err := SanitizeBillJSON(raw, quietLogger())
	if err != nil {
		t.Fatalf("SanitizeBillJSON() error = %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatal(err)
	}
	want := map[string]any{
		"vendor":         "Apollo Hospital",
		"bill_no":        "4417",
		"total_amount":   12500.0,
		"payment_method": "CREDIT_CARD",
		"items": []any{
			map[string]any{"description": "Consultation", "amount": 1000.0, "quantity": 1.0},
		},
		"extra_data": map[string]any{"ward": "B", "doctor": "Dr. Rao"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SanitizeBillJSON() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"tax_amount", "currency(format)", "items[]", "items[]"}, dropped); diff != "" {
		t.Errorf("dropped mismatch (-want +got):\n%s", diff)
	}
	if err := mustSchema(t, billSchema).Validate(out); err != nil {
		t.Errorf("sanitized bill should validate: %v", err)
	}
}

func TestCoerceNumber(t *testing.T) {
	tests := []struct {
		in   any
		want float64
		ok   bool
	}{
		{in: 12.5, want: 12.5, ok: true},
		{in: "18%", want: 18, ok: true},
		{in: "INR -1,234.50", want: -1234.5, ok: true},
		{in: "free", ok: false},
		{in: true, ok: false},
		{in: nil, ok: false},
	}
	for _, tt := range tests {
		got, ok := coerceNumber(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("coerceNumber(%v) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
