package entity

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Item is one line of a bill.
type Item struct {
	Description string              `json:"description"`
	Amount      decimal.Decimal     `json:"amount"`
	Quantity    decimal.NullDecimal `json:"quantity"`
	Rate        decimal.NullDecimal `json:"rate"`
	GST         decimal.NullDecimal `json:"gst"` // percent, 18 means 18%
}

// Bill represents a stored bill for data transfer between layers.
type Bill struct {
	ID            string              `json:"id"`
	UserID        string              `json:"user_id"`
	Vendor        string              `json:"vendor"`
	BillNo        string              `json:"bill_no,omitempty"`
	BillDate      *time.Time          `json:"bill_date,omitempty"`
	Category      string              `json:"category"`
	Subcategory   string              `json:"subcategory,omitempty"`
	PaymentMethod string              `json:"payment_method"`
	Currency      string              `json:"currency"`
	Status        string              `json:"status,omitempty"`
	TotalAmount   decimal.Decimal     `json:"total_amount"`
	TaxAmount     decimal.NullDecimal `json:"tax_amount"`
	Items         []Item              `json:"items"`
	Source        string              `json:"source,omitempty"`   // manual | text
	RawText       string              `json:"raw_text,omitempty"` // bill text the fields were extracted from
	CreatedAt     time.Time           `json:"created_at"`
	IndexedAt     *time.Time          `json:"indexed_at,omitempty"`
}

// ToDocument flattens the bill into the document shape pipelines run over. Money stays
// decimal and dates stay time.Time.
func (b *Bill) ToDocument() map[string]any {
	items := make([]any, 0, len(b.Items))
	for _, it := range b.Items {
		m := map[string]any{
			"description": it.Description,
			"amount":      it.Amount,
		}
		if it.Quantity.Valid {
			m["quantity"] = it.Quantity.Decimal
		}
		if it.Rate.Valid {
			m["rate"] = it.Rate.Decimal
		}
		if it.GST.Valid {
			m["gst"] = it.GST.Decimal
		}
		items = append(items, m)
	}

	doc := map[string]any{
		"id":             b.ID,
		"user_id":        b.UserID,
		"vendor":         b.Vendor,
		"category":       b.Category,
		"payment_method": b.PaymentMethod,
		"currency":       b.Currency,
		"total_amount":   b.TotalAmount,
		"items":          items,
		"created_at":     b.CreatedAt,
	}
	optional := map[string]string{
		"bill_no":     b.BillNo,
		"subcategory": b.Subcategory,
		"status":      b.Status,
	}
	for k, v := range optional {
		if v != "" {
			doc[k] = v
		}
	}
	if b.BillDate != nil {
		doc["bill_date"] = b.BillDate.UTC()
	}
	if b.TaxAmount.Valid {
		doc["tax_amount"] = b.TaxAmount.Decimal
	}
	return doc
}

// IndexText is the passage stored in the vector index for a manually entered bill.
func (b *Bill) IndexText() string {
	return strings.TrimSpace(b.Vendor + " " + b.Category + " " + b.TotalAmount.String())
}

// MissingRequired lists the required fields that are empty, in a stable order.
func (b *Bill) MissingRequired() []string {
	var missing []string
	if strings.TrimSpace(b.Vendor) == "" {
		missing = append(missing, "vendor")
	}
	if strings.TrimSpace(b.Category) == "" {
		missing = append(missing, "category")
	}
	if b.TotalAmount.IsZero() {
		missing = append(missing, "total_amount")
	}
	if strings.TrimSpace(b.PaymentMethod) == "" {
		missing = append(missing, "payment_method")
	}
	return missing
}
