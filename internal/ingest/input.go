package ingest

import (
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/bills-assistant/internal/common"
	"github.com/joseph-ayodele/bills-assistant/internal/entity"
	"github.com/joseph-ayodele/bills-assistant/internal/utils"
)

// BillInput is a bill entered or confirmed by the user.
type BillInput struct {
	UserID        string      `json:"user_id" validate:"required,max=128"`
	Vendor        string      `json:"vendor" validate:"required,max=255"`
	BillNo        string      `json:"bill_no,omitempty" validate:"omitempty,max=64"`
	BillDate      string      `json:"bill_date,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Category      string      `json:"category" validate:"required,max=64"`
	Subcategory   string      `json:"subcategory,omitempty" validate:"omitempty,max=64"`
	TotalAmount   float64     `json:"total_amount" validate:"gt=0"`
	TaxAmount     *float64    `json:"tax_amount,omitempty" validate:"omitempty,gte=0"`
	Currency      string      `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
	PaymentMethod string      `json:"payment_method" validate:"required,max=64"`
	Items         []ItemInput `json:"items,omitempty" validate:"omitempty,dive"`
	// RawText is the bill text a requires_confirmation result carried, if any. It is
	// indexed instead of the summary line.
	RawText string `json:"raw_text,omitempty"`
}

type ItemInput struct {
	Description string   `json:"description" validate:"required"`
	Amount      float64  `json:"amount" validate:"gte=0"`
	Quantity    *float64 `json:"quantity,omitempty" validate:"omitempty,gt=0"`
	Rate        *float64 `json:"rate,omitempty" validate:"omitempty,gte=0"`
	GST         *float64 `json:"gst,omitempty" validate:"omitempty,gte=0,lte=100"`
}

func (in *BillInput) toBill(log *slog.Logger) (*entity.Bill, error) {
	b := &entity.Bill{
		UserID:        strings.TrimSpace(in.UserID),
		Vendor:        strings.TrimSpace(in.Vendor),
		BillNo:        strings.TrimSpace(in.BillNo),
		Category:      canonicalCategory(in.Category, log),
		Subcategory:   strings.TrimSpace(in.Subcategory),
		PaymentMethod: strings.ToUpper(strings.TrimSpace(in.PaymentMethod)),
		Currency:      currencyOrDefault(in.Currency),
		TotalAmount:   decimal.NewFromFloat(in.TotalAmount),
		TaxAmount:     nullDecimal(in.TaxAmount),
		RawText:       strings.TrimSpace(in.RawText),
		Items:         make([]entity.Item, 0, len(in.Items)),
	}
	if in.BillDate != "" {
		d, err := utils.ParseYMD(in.BillDate)
		if err != nil {
			return nil, common.InvalidInput("bill_date must be YYYY-MM-DD")
		}
		b.BillDate = &d
	}
	for _, it := range in.Items {
		b.Items = append(b.Items, entity.Item{
			Description: strings.TrimSpace(it.Description),
			Amount:      decimal.NewFromFloat(it.Amount),
			Quantity:    nullDecimal(it.Quantity),
			Rate:        nullDecimal(it.Rate),
			GST:         nullDecimal(it.GST),
		})
	}
	return b, nil
}
