package export

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/bills-assistant/constants"
	"github.com/joseph-ayodele/bills-assistant/internal/common"
	"github.com/joseph-ayodele/bills-assistant/internal/entity"
	"github.com/joseph-ayodele/bills-assistant/internal/temporal"
)

const sheet = "Bills"

type BillLister interface {
	List(ctx context.Context, userID string, window *temporal.Window) ([]*entity.Bill, error)
}

// Service produces XLSX bytes for bill exports.
type Service struct {
	bills  BillLister
	logger *slog.Logger
}

func NewService(bills BillLister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{bills: bills, logger: logger}
}

// ExportBillsXLSX returns a workbook with one row per bill of userID inside window,
// newest first. A nil window exports everything.
func (s *Service) ExportBillsXLSX(ctx context.Context, userID string, window *temporal.Window) ([]byte, error) {
	start := time.Now()
	if strings.TrimSpace(userID) == "" {
		return nil, common.InvalidInput("user_id is required")
	}
	log := common.LoggerFrom(common.WithUserID(ctx, userID), s.logger)

	bills, err := s.bills.List(ctx, userID, window)
	if err != nil {
		return nil, fmt.Errorf("query bills: %w", err)
	}
	sortNewestFirst(bills)

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	headers := []string{
		"Bill Date",
		"Vendor",
		"Category",
		"Payment Method",
		"Currency",
		"Total",
		"Tax",
		"Items",
		"Bill No",
		"Indexed",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetRowStyle(sheet, 1, 1, style)
	}

	for i, b := range bills {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		if b.BillDate != nil {
			write(1, b.BillDate.UTC().Format("2006-01-02"))
		} else {
			write(1, "")
		}
		write(2, b.Vendor)
		write(3, b.Category)
		write(4, b.PaymentMethod)
		write(5, b.Currency)
		write(6, b.TotalAmount.InexactFloat64())
		if b.TaxAmount.Valid {
			write(7, b.TaxAmount.Decimal.InexactFloat64())
		}
		write(8, truncate(itemSummary(b.Items), 140))
		write(9, b.BillNo)
		write(10, string(indexStatus(b)))
	}

	_ = f.SetColWidth(sheet, "A", "A", 12)
	_ = f.SetColWidth(sheet, "B", "B", 28)
	_ = f.SetColWidth(sheet, "C", "E", 16)
	_ = f.SetColWidth(sheet, "F", "G", 12)
	_ = f.SetColWidth(sheet, "H", "H", 48)
	_ = f.SetColWidth(sheet, "I", "J", 14)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	log.Info("export.xlsx.ok",
		"rows", len(bills),
		"elapsed_ms", common.ElapsedMS(start),
	)
	return buf.Bytes(), nil
}

// sortNewestFirst orders by bill_date descending; undated bills go last.
func sortNewestFirst(bills []*entity.Bill) {
	slices.SortStableFunc(bills, func(a, b *entity.Bill) int {
		switch {
		case a.BillDate == nil && b.BillDate == nil:
			return 0
		case a.BillDate == nil:
			return 1
		case b.BillDate == nil:
			return -1
		}
		return b.BillDate.Compare(*a.BillDate)
	})
}

func itemSummary(items []entity.Item) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, it.Description)
	}
	return strings.Join(parts, "; ")
}

func indexStatus(b *entity.Bill) constants.IndexStatus {
	if b.IndexedAt != nil {
		return constants.IndexStatusIndexed
	}
	return constants.IndexStatusPending
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
