package repository

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/joseph-ayodele/bills-assistant/internal/common"
	"github.com/joseph-ayodele/bills-assistant/internal/entity"
	"github.com/joseph-ayodele/bills-assistant/internal/pipeline"
	"github.com/joseph-ayodele/bills-assistant/internal/temporal"
)

type memoryBillRepository struct {
	mu     sync.RWMutex
	bills  []*entity.Bill
	logger *slog.Logger
}

// NewMemoryBillRepository keeps bills in process. Used by tests and the local CLI.
func NewMemoryBillRepository(logger *slog.Logger, seed ...*entity.Bill) BillRepository {
	r := &memoryBillRepository{logger: logger}
	for _, b := range seed {
		cp := *b
		prepareForInsert(&cp)
		r.bills = append(r.bills, &cp)
	}
	return r
}

func (r *memoryBillRepository) Insert(_ context.Context, bill *entity.Bill) (string, error) {
	prepareForInsert(bill)
	cp := *bill
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bills = append(r.bills, &cp)
	return cp.ID, nil
}

func (r *memoryBillRepository) Get(_ context.Context, userID, id string) (*entity.Bill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.bills {
		if b.ID == id && b.UserID == userID {
			cp := *b
			return &cp, nil
		}
	}
	return nil, common.WrapError(common.ErrNotFound, "bill "+id)
}

func (r *memoryBillRepository) List(_ context.Context, userID string, window *temporal.Window) ([]*entity.Bill, error) {
	return r.selectScope(scope{userID: userID, window: window}), nil
}

func (r *memoryBillRepository) RunPipeline(_ context.Context, collection string, stages []pipeline.Stage) ([]pipeline.Row, error) {
	sc, err := scopeOf(collection, stages)
	if err != nil {
		return nil, err
	}
	return pipeline.Run(documents(r.selectScope(sc)), stages)
}

func (r *memoryBillRepository) PendingIndex(_ context.Context, limit int) ([]*entity.Bill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*entity.Bill
	for _, b := range r.bills {
		if b.IndexedAt != nil {
			continue
		}
		cp := *b
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memoryBillRepository) MarkIndexed(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := slices.IndexFunc(r.bills, func(b *entity.Bill) bool { return b.ID == id })
	if i < 0 {
		return common.WrapError(common.ErrNotFound, "bill "+id)
	}
	at = at.UTC()
	r.bills[i].IndexedAt = &at
	return nil
}

func (r *memoryBillRepository) ResetIndexed(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.bills {
		if b.IndexedAt != nil {
			b.IndexedAt = nil
			n++
		}
	}
	return n, nil
}

func (r *memoryBillRepository) Count(context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bills), nil
}

func (r *memoryBillRepository) selectScope(sc scope) []*entity.Bill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*entity.Bill
	for _, b := range r.bills {
		if b.UserID != sc.userID {
			continue
		}
		if sc.window != nil && (b.BillDate == nil || !sc.window.Contains(*b.BillDate)) {
			continue
		}
		cp := *b
		out = append(out, &cp)
	}
	return out
}
