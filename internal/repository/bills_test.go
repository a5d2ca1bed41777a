package repository

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/bills-assistant/constants"
	"github.com/joseph-ayodele/bills-assistant/internal/common"
	"github.com/joseph-ayodele/bills-assistant/internal/entity"
	"github.com/joseph-ayodele/bills-assistant/internal/pipeline"
	"github.com/joseph-ayodele/bills-assistant/internal/queryplan"
	"github.com/joseph-ayodele/bills-assistant/internal/temporal"
)

var decimalEqual = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func at(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 9, 30, 0, 0, time.UTC)
	return &t
}

func fixture() []*entity.Bill {
	return []*entity.Bill{
		{
			UserID: "u1", Vendor: "Fresh Mart", Category: "Grocery", PaymentMethod: "UPI", Currency: "INR",
			BillDate: at(2026, time.January, 5), TotalAmount: decimal.RequireFromString("50"),
			Items: []entity.Item{{Description: "Basmati Rice 5kg", Amount: decimal.RequireFromString("50")}},
		},
		{
			UserID: "u1", Vendor: "Daily Dairy", Category: "Grocery", PaymentMethod: "CASH", Currency: "INR",
			BillDate: at(2026, time.January, 20), TotalAmount: decimal.RequireFromString("20.75"),
			Items: []entity.Item{{Description: "Milk", Amount: decimal.RequireFromString("20.75")}},
		},
		{
			UserID: "u1", Vendor: "City Pharmacy", Category: "Medical", PaymentMethod: "CARD", Currency: "INR",
			BillDate: at(2026, time.February, 2), TotalAmount: decimal.RequireFromString("120.50"),
			Items: []entity.Item{{Description: "Paracetamol", Amount: decimal.RequireFromString("120.50")}},
		},
		{
			UserID: "u1", Vendor: "Corner Shop", Category: "Other", PaymentMethod: "CASH", Currency: "INR",
			TotalAmount: decimal.RequireFromString("5"),
		},
		{
			UserID: "u2", Vendor: "Fresh Mart", Category: "Grocery", PaymentMethod: "UPI", Currency: "INR",
			BillDate: at(2026, time.January, 7), TotalAmount: decimal.RequireFromString("999"),
			Items: []entity.Item{{Description: "Rice", Amount: decimal.RequireFromString("999")}},
		},
	}
}

type repoFactory func(t *testing.T) BillRepository

func repositories() map[string]repoFactory {
	return map[string]repoFactory{
		"memory": func(t *testing.T) BillRepository {
			return NewMemoryBillRepository(testLogger())
		},
		"sqlite": func(t *testing.T) BillRepository {
			t.Helper()
			ctx := context.Background()
			db, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "bills.db"), testLogger())
			if err != nil {
				t.Fatalf("OpenSQLite() error = %v", err)
			}
			t.Cleanup(func() { db.Close(testLogger()) })
			if err := Migrate(ctx, db, testLogger()); err != nil {
				t.Fatalf("Migrate() error = %v", err)
			}
			return NewBillRepository(db, testLogger())
		},
	}
}

func seed(t *testing.T, repo BillRepository) []string {
	t.Helper()
	var ids []string
	for _, b := range fixture() {
		id, err := repo.Insert(context.Background(), b)
		if err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}

func compile(t *testing.T, op constants.Operation, item string, window *temporal.Window, userID string) []pipeline.Stage {
	t.Helper()
	plan := &queryplan.QueryPlan{
		Type:      constants.QueryTypeAggregation,
		Operation: op,
		Filters:   queryplan.Filters{Fields: map[string]any{}, BillDate: window},
		Entities:  map[string]string{"item": item},
	}
	stages, err := pipeline.Compile(plan, userID)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	return stages
}

func TestBillRepository(t *testing.T) {
	jan := &temporal.Window{
		Start: time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, time.January, 31, 23, 59, 59, 0, time.UTC),
	}

	for name, newRepo := range repositories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("insert and get round-trip", func(t *testing.T) {
				repo := newRepo(t)
				in := fixture()[0]
				in.TaxAmount = decimal.NewNullDecimal(decimal.RequireFromString("2.38"))
				id, err := repo.Insert(ctx, in)
				if err != nil {
					t.Fatalf("Insert() error = %v", err)
				}
				if id == "" || in.CreatedAt.IsZero() {
					t.Fatalf("Insert() did not assign id and created_at: %q %v", id, in.CreatedAt)
				}
				got, err := repo.Get(ctx, "u1", id)
				if err != nil {
					t.Fatalf("Get() error = %v", err)
				}
				if diff := cmp.Diff(in, got, decimalEqual); diff != "" {
					t.Errorf("Get() mismatch (-want +got):\n%s", diff)
				}
				if _, err := repo.Get(ctx, "u2", id); !errors.Is(err, common.ErrNotFound) {
					t.Errorf("Get() for another user error = %v, want not found", err)
				}
			})

			t.Run("pipelines are tenant scoped and windowed", func(t *testing.T) {
				repo := newRepo(t)
				seed(t, repo)

				rows, err := repo.RunPipeline(ctx, constants.BillsCollection, compile(t, constants.OperationSum, "", jan, "u1"))
				if err != nil {
					t.Fatalf("RunPipeline() error = %v", err)
				}
				if diff := cmp.Diff([]pipeline.Row{{"_id": nil, "total": 70.75}}, rows); diff != "" {
					t.Errorf("January sum mismatch (-want +got):\n%s", diff)
				}

				rows, err = repo.RunPipeline(ctx, constants.BillsCollection, compile(t, constants.OperationCount, "", nil, "u1"))
				if err != nil {
					t.Fatalf("RunPipeline() error = %v", err)
				}
				if diff := cmp.Diff([]pipeline.Row{{"total": 4}}, rows); diff != "" {
					t.Errorf("unwindowed count mismatch (-want +got):\n%s", diff)
				}

				rows, err = repo.RunPipeline(ctx, constants.BillsCollection, compile(t, constants.OperationSum, "rice", nil, "u1"))
				if err != nil {
					t.Fatalf("RunPipeline() error = %v", err)
				}
				if diff := cmp.Diff([]pipeline.Row{{"_id": nil, "total": 50.0}}, rows); diff != "" {
					t.Errorf("item sum mismatch (-want +got):\n%s", diff)
				}
			})

			t.Run("list orders newest first", func(t *testing.T) {
				repo := newRepo(t)
				seed(t, repo)
				rows, err := repo.RunPipeline(ctx, constants.BillsCollection, compile(t, constants.OperationList, "", jan, "u1"))
				if err != nil {
					t.Fatalf("RunPipeline() error = %v", err)
				}
				var vendors []any
				for _, r := range rows {
					vendors = append(vendors, r["vendor"])
				}
				if diff := cmp.Diff([]any{"Daily Dairy", "Fresh Mart"}, vendors); diff != "" {
					t.Errorf("listed vendors mismatch (-want +got):\n%s", diff)
				}
			})

			t.Run("rejects unknown collections and unscoped pipelines", func(t *testing.T) {
				repo := newRepo(t)
				stages := compile(t, constants.OperationCount, "", nil, "u1")
				if _, err := repo.RunPipeline(ctx, "receipts", stages); !errors.Is(err, common.ErrInvalidInput) {
					t.Errorf("RunPipeline(receipts) error = %v, want invalid input", err)
				}
				unscoped := []pipeline.Stage{pipeline.Count{As: "total"}}
				if _, err := repo.RunPipeline(ctx, constants.BillsCollection, unscoped); !errors.Is(err, common.ErrInvalidInput) {
					t.Errorf("RunPipeline(unscoped) error = %v, want invalid input", err)
				}
			})

			t.Run("index bookkeeping", func(t *testing.T) {
				repo := newRepo(t)
				ids := seed(t, repo)

				pending, err := repo.PendingIndex(ctx, 2)
				if err != nil {
					t.Fatalf("PendingIndex() error = %v", err)
				}
				if len(pending) != 2 {
					t.Fatalf("PendingIndex(2) returned %d bills", len(pending))
				}
				for _, id := range ids[:3] {
					if err := repo.MarkIndexed(ctx, id, time.Now()); err != nil {
						t.Fatalf("MarkIndexed() error = %v", err)
					}
				}
				pending, err = repo.PendingIndex(ctx, 0)
				if err != nil {
					t.Fatalf("PendingIndex() error = %v", err)
				}
				var got []string
				for _, b := range pending {
					got = append(got, b.ID)
				}
				if diff := cmp.Diff(ids[3:], got, cmpopts.SortSlices(func(a, b string) bool { return a < b })); diff != "" {
					t.Errorf("pending ids mismatch (-want +got):\n%s", diff)
				}
				if err := repo.MarkIndexed(ctx, "missing", time.Now()); !errors.Is(err, common.ErrNotFound) {
					t.Errorf("MarkIndexed(missing) error = %v, want not found", err)
				}

				n, err := repo.Count(ctx)
				if err != nil {
					t.Fatalf("Count() error = %v", err)
				}
				if n != len(ids) {
					t.Errorf("Count() = %d, want %d", n, len(ids))
				}

				cleared, err := repo.ResetIndexed(ctx)
				if err != nil {
					t.Fatalf("ResetIndexed() error = %v", err)
				}
				if cleared != 3 {
					t.Errorf("ResetIndexed() = %d, want 3", cleared)
				}
				pending, err = repo.PendingIndex(ctx, 0)
				if err != nil {
					t.Fatalf("PendingIndex() error = %v", err)
				}
				if len(pending) != len(ids) {
					t.Errorf("PendingIndex() after reset returned %d bills, want %d", len(pending), len(ids))
				}
				if again, err := repo.ResetIndexed(ctx); err != nil || again != 0 {
					t.Errorf("second ResetIndexed() = %d, %v, want 0", again, err)
				}
			})

			t.Run("list by window skips undated bills", func(t *testing.T) {
				repo := newRepo(t)
				seed(t, repo)
				all, err := repo.List(ctx, "u1", nil)
				if err != nil {
					t.Fatalf("List() error = %v", err)
				}
				windowed, err := repo.List(ctx, "u1", jan)
				if err != nil {
					t.Fatalf("List() error = %v", err)
				}
				if len(all) != 4 || len(windowed) != 2 {
					t.Errorf("List() returned %d and %d bills, want 4 and 2", len(all), len(windowed))
				}
			})
		})
	}
}
