package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/bills-assistant/internal/common"
	"github.com/joseph-ayodele/bills-assistant/internal/entity"
	"github.com/joseph-ayodele/bills-assistant/internal/pipeline"
	"github.com/joseph-ayodele/bills-assistant/internal/temporal"
)

// BillRepository stores bills and executes compiled pipelines over them.
type BillRepository interface {
	Insert(ctx context.Context, bill *entity.Bill) (string, error)
	Get(ctx context.Context, userID, id string) (*entity.Bill, error)
	List(ctx context.Context, userID string, window *temporal.Window) ([]*entity.Bill, error)
	RunPipeline(ctx context.Context, collection string, stages []pipeline.Stage) ([]pipeline.Row, error)
	PendingIndex(ctx context.Context, limit int) ([]*entity.Bill, error)
	MarkIndexed(ctx context.Context, id string, at time.Time) error
	ResetIndexed(ctx context.Context) (int, error)
	Count(ctx context.Context) (int, error)
}

type billRepository struct {
	drv    *entsql.Driver
	logger *slog.Logger
}

// NewBillRepository returns a SQL-backed repository. Call Migrate first.
func NewBillRepository(db *DB, logger *slog.Logger) BillRepository {
	return &billRepository{
		drv:    db.Driver,
		logger: logger,
	}
}

type billRecord struct {
	ID        string        `sql:"id"`
	Document  string        `sql:"document"`
	IndexedAt sql.NullInt64 `sql:"indexed_at"`
}

func (r *billRepository) builder() *entsql.DialectBuilder {
	return entsql.Dialect(r.drv.Dialect())
}

func (r *billRepository) Insert(ctx context.Context, bill *entity.Bill) (string, error) {
	prepareForInsert(bill)
	doc, err := json.Marshal(bill)
	if err != nil {
		return "", common.WrapError(err, "encode bill")
	}

	var billDate any
	if bill.BillDate != nil {
		billDate = bill.BillDate.Unix()
	}
	q, args := r.builder().Insert(billsTable).
		Columns(colID, colUserID, colBillDate, colVendor, colCategory, colPaymentMethod, colTotalAmount, colDocument, colCreatedAt).
		Values(bill.ID, bill.UserID, billDate, bill.Vendor, bill.Category, bill.PaymentMethod, bill.TotalAmount.InexactFloat64(), string(doc), bill.CreatedAt.UnixNano()).
		Query()
	if err := r.drv.Exec(ctx, q, args, nil); err != nil {
		r.logger.Error("failed to insert bill", "user_id", bill.UserID, "error", err)
		return "", errors.Join(common.ErrDatabase, err)
	}
	return bill.ID, nil
}

func (r *billRepository) Get(ctx context.Context, userID, id string) (*entity.Bill, error) {
	b := r.builder()
	sel := b.Select(colID, colDocument, colIndexedAt).
		From(b.Table(billsTable)).
		Where(entsql.And(entsql.EQ(colID, id), entsql.EQ(colUserID, userID)))
	bills, err := r.query(ctx, sel)
	if err != nil {
		r.logger.Error("failed to get bill", "bill_id", id, "error", err)
		return nil, err
	}
	if len(bills) == 0 {
		return nil, common.WrapError(common.ErrNotFound, "bill "+id)
	}
	return bills[0], nil
}

func (r *billRepository) List(ctx context.Context, userID string, window *temporal.Window) ([]*entity.Bill, error) {
	bills, err := r.query(ctx, r.scoped(scope{userID: userID, window: window}))
	if err != nil {
		r.logger.Error("failed to list bills", "user_id", userID, "error", err)
		return nil, err
	}
	return bills, nil
}

// RunPipeline pushes the user and bill_date scope down to SQL and evaluates the
// remaining stages over the loaded documents.
func (r *billRepository) RunPipeline(ctx context.Context, collection string, stages []pipeline.Stage) ([]pipeline.Row, error) {
	sc, err := scopeOf(collection, stages)
	if err != nil {
		return nil, err
	}
	bills, err := r.query(ctx, r.scoped(sc))
	if err != nil {
		r.logger.Error("failed to load bills for pipeline", "user_id", sc.userID, "error", err)
		return nil, err
	}
	return pipeline.Run(documents(bills), stages)
}

func (r *billRepository) PendingIndex(ctx context.Context, limit int) ([]*entity.Bill, error) {
	b := r.builder()
	sel := b.Select(colID, colDocument, colIndexedAt).
		From(b.Table(billsTable)).
		Where(entsql.IsNull(colIndexedAt)).
		OrderBy(entsql.Asc(colCreatedAt), entsql.Asc(colID))
	if limit > 0 {
		sel.Limit(limit)
	}
	bills, err := r.query(ctx, sel)
	if err != nil {
		r.logger.Error("failed to list unindexed bills", "error", err)
		return nil, err
	}
	return bills, nil
}

func (r *billRepository) MarkIndexed(ctx context.Context, id string, at time.Time) error {
	q, args := r.builder().Update(billsTable).
		Set(colIndexedAt, at.Unix()).
		Where(entsql.EQ(colID, id)).
		Query()
	var res sql.Result
	if err := r.drv.Exec(ctx, q, args, &res); err != nil {
		r.logger.Error("failed to mark bill indexed", "bill_id", id, "error", err)
		return errors.Join(common.ErrDatabase, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.WrapError(common.ErrNotFound, "bill "+id)
	}
	return nil
}

// ResetIndexed clears every index mark and returns how many bills were marked.
func (r *billRepository) ResetIndexed(ctx context.Context) (int, error) {
	q, args := r.builder().Update(billsTable).
		SetNull(colIndexedAt).
		Where(entsql.NotNull(colIndexedAt)).
		Query()
	var res sql.Result
	if err := r.drv.Exec(ctx, q, args, &res); err != nil {
		r.logger.Error("failed to reset index marks", "error", err)
		return 0, errors.Join(common.ErrDatabase, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Join(common.ErrDatabase, err)
	}
	r.logger.Info("repository.bills.index_reset", "bills", n)
	return int(n), nil
}

func (r *billRepository) Count(ctx context.Context) (int, error) {
	b := r.builder()
	q, args := b.Select().Count().From(b.Table(billsTable)).Query()
	rows := &entsql.Rows{}
	if err := r.drv.Query(ctx, q, args, rows); err != nil {
		return 0, errors.Join(common.ErrDatabase, err)
	}
	defer rows.Close()
	return entsql.ScanInt(rows)
}

func (r *billRepository) scoped(sc scope) *entsql.Selector {
	b := r.builder()
	preds := []*entsql.Predicate{entsql.EQ(colUserID, sc.userID)}
	if w := sc.window; w != nil {
		if !w.Start.IsZero() {
			preds = append(preds, entsql.GTE(colBillDate, w.Start.Unix()))
		}
		if !w.End.IsZero() {
			preds = append(preds, entsql.LTE(colBillDate, w.End.Unix()))
		}
	}
	return b.Select(colID, colDocument, colIndexedAt).
		From(b.Table(billsTable)).
		Where(entsql.And(preds...)).
		OrderBy(entsql.Asc(colCreatedAt), entsql.Asc(colID))
}

func (r *billRepository) query(ctx context.Context, sel *entsql.Selector) ([]*entity.Bill, error) {
	q, args := sel.Query()
	rows := &entsql.Rows{}
	if err := r.drv.Query(ctx, q, args, rows); err != nil {
		return nil, errors.Join(common.ErrDatabase, err)
	}
	defer rows.Close()

	var recs []billRecord
	if err := entsql.ScanSlice(rows, &recs); err != nil {
		return nil, errors.Join(common.ErrDatabase, err)
	}
	out := make([]*entity.Bill, 0, len(recs))
	for _, rec := range recs {
		var bill entity.Bill
		if err := json.Unmarshal([]byte(rec.Document), &bill); err != nil {
			return nil, common.WrapError(err, "decode bill "+rec.ID)
		}
		bill.IndexedAt = nil
		if rec.IndexedAt.Valid {
			at := time.Unix(rec.IndexedAt.Int64, 0).UTC()
			bill.IndexedAt = &at
		}
		out = append(out, &bill)
	}
	return out, nil
}

func prepareForInsert(bill *entity.Bill) {
	if bill.ID == "" {
		bill.ID = uuid.NewString()
	}
	if bill.CreatedAt.IsZero() {
		bill.CreatedAt = time.Now().UTC()
	}
	// indexed_at is owned by the index worker.
	bill.IndexedAt = nil
}

func documents(bills []*entity.Bill) []pipeline.Document {
	docs := make([]pipeline.Document, len(bills))
	for i, b := range bills {
		docs[i] = b.ToDocument()
	}
	return docs
}
