package llm

import "context"

// Role of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn. Few-shot examples are user/assistant pairs.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is a provider-neutral chat call.
type CompletionRequest struct {
	Messages []Message
	// JSON asks the provider for a JSON object response when it supports one.
	JSON bool
}

// Completer is the interface the assistant depends on; providers implement it.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req CompletionRequest) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	return f(ctx, req)
}

// BillItem is one extracted line item.
type BillItem struct {
	Description string   `json:"description"`
	Amount      *float64 `json:"amount,omitempty"`
	Quantity    *float64 `json:"quantity,omitempty"`
	Rate        *float64 `json:"rate,omitempty"`
	GST         *float64 `json:"gst,omitempty"`
}

// BillFields is the normalized shape we want from the bill extraction call. Every field
// is optional; callers decide what is required.
type BillFields struct {
	Vendor        string         `json:"vendor,omitempty"`
	BillNo        string         `json:"bill_no,omitempty"`
	BillDate      string         `json:"bill_date,omitempty"` // YYYY-MM-DD
	Category      string         `json:"category,omitempty"`
	TotalAmount   *float64       `json:"total_amount,omitempty"`
	TaxAmount     *float64       `json:"tax_amount,omitempty"`
	Currency      string         `json:"currency,omitempty"`
	PaymentMethod string         `json:"payment_method,omitempty"`
	Items         []BillItem     `json:"items,omitempty"`
	ExtraData     map[string]any `json:"extra_data,omitempty"`
}

// IsEmpty reports whether the model returned nothing usable.
func (f BillFields) IsEmpty() bool {
	return f.Vendor == "" && f.BillNo == "" && f.BillDate == "" && f.Category == "" &&
		f.TotalAmount == nil && f.TaxAmount == nil && f.PaymentMethod == "" && len(f.Items) == 0
}
