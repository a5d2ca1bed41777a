package repository

import (
	"context"
	"log/slog"

	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"

	"github.com/joseph-ayodele/bills-assistant/internal/common"
)

const billsTable = "bills"

// Table columns. document holds the bill as JSON; the other columns are copies used
// for filtering and indexes.
const (
	colID            = "id"
	colUserID        = "user_id"
	colBillDate      = "bill_date"
	colVendor        = "vendor"
	colCategory      = "category"
	colPaymentMethod = "payment_method"
	colTotalAmount   = "total_amount"
	colDocument      = "document"
	colCreatedAt     = "created_at"
	colIndexedAt     = "indexed_at"
)

// BillsTable describes the bills table and the indexes that back the compiled pipelines.
func BillsTable() *schema.Table {
	id := &schema.Column{Name: colID, Type: field.TypeString, Size: 64}
	t := schema.NewTable(billsTable).
		AddPrimary(id).
		AddColumn(&schema.Column{Name: colUserID, Type: field.TypeString, Size: 128}).
		AddColumn(&schema.Column{Name: colBillDate, Type: field.TypeInt64, Nullable: true}).
		AddColumn(&schema.Column{Name: colVendor, Type: field.TypeString, Size: 255}).
		AddColumn(&schema.Column{Name: colCategory, Type: field.TypeString, Size: 64}).
		AddColumn(&schema.Column{Name: colPaymentMethod, Type: field.TypeString, Size: 64}).
		AddColumn(&schema.Column{Name: colTotalAmount, Type: field.TypeFloat64}).
		AddColumn(&schema.Column{
			Name:       colDocument,
			Type:       field.TypeString,
			SchemaType: map[string]string{dialect.Postgres: "text", dialect.SQLite: "text"},
		}).
		AddColumn(&schema.Column{Name: colCreatedAt, Type: field.TypeInt64}).
		AddColumn(&schema.Column{Name: colIndexedAt, Type: field.TypeInt64, Nullable: true})

	t.AddIndex("bills_user_date", false, []string{colUserID, colBillDate})
	t.AddIndex("bills_user_category_date", false, []string{colUserID, colCategory, colBillDate})
	t.AddIndex("bills_user_vendor", false, []string{colUserID, colVendor})
	t.AddIndex("bills_user_total", false, []string{colUserID, colTotalAmount})
	return t
}

// Migrate creates or updates the bills table and its indexes.
func Migrate(ctx context.Context, db *DB, logger *slog.Logger) error {
	m, err := schema.NewMigrate(db.Driver)
	if err != nil {
		logger.Error("failed to prepare migration", "error", err)
		return common.WrapError(err, "prepare migration")
	}
	if err := m.Create(ctx, BillsTable()); err != nil {
		logger.Error("failed to migrate", "table", billsTable, "error", err)
		return common.WrapError(err, "migrate bills table")
	}
	logger.Info("schema migrated", "table", billsTable)
	return nil
}
