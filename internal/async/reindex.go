package async

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/joseph-ayodele/bills-assistant/internal/common"
	"github.com/joseph-ayodele/bills-assistant/internal/entity"
)

// PendingSource lists bills that have not reached the vector index yet.
type PendingSource interface {
	PendingIndex(ctx context.Context, limit int) ([]*entity.Bill, error)
}

// IndexResetter clears the index mark of every bill.
type IndexResetter interface {
	ResetIndexed(ctx context.Context) (int, error)
}

// SyncIndexer indexes and marks one bill before returning.
type SyncIndexer interface {
	IndexNow(ctx context.Context, job Job) error
}

// Reindexer periodically re-enqueues bills whose indexing never completed, for example
// because the vector store was down at ingest time.
type Reindexer struct {
	source  PendingSource
	queue   Queue
	batch   int
	timeout time.Duration
	logger  *slog.Logger

	cron *cron.Cron
}

func NewReindexer(source PendingSource, queue Queue, batch int, logger *slog.Logger) *Reindexer {
	if logger == nil {
		logger = slog.Default()
	}
	if batch <= 0 {
		batch = 100
	}
	return &Reindexer{
		source:  source,
		queue:   queue,
		batch:   batch,
		timeout: time.Minute,
		logger:  logger,
	}
}

// RunOnce enqueues up to one batch of pending bills and returns how many were enqueued.
func (r *Reindexer) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()
	bills, err := r.source.PendingIndex(ctx, r.batch)
	if err != nil {
		r.logger.Error("reindex.list.failed", "error", err)
		return 0, err
	}
	n := 0
	for _, b := range bills {
		if err := r.queue.Enqueue(ctx, JobFor(b, "reindex")); err != nil {
			r.logger.Warn("reindex.enqueue.failed", "bill_id", b.ID, "error", err)
			return n, err
		}
		n++
	}
	if n > 0 {
		r.logger.Info("reindex.pass.ok", "enqueued", n, "elapsed_ms", common.ElapsedMS(start))
	}
	return n, nil
}

// Start runs RunOnce on schedule (standard cron syntax or descriptors like "@every 10m").
func (r *Reindexer) Start(schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, r.pass)
	if err != nil {
		return common.InvalidInput("invalid reindex schedule %q: %v", schedule, err)
	}
	r.cron = c
	c.Start()
	r.logger.Info("reindex.started", "schedule", schedule, "batch", r.batch)
	return nil
}

func (r *Reindexer) pass() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if n, err := r.RunOnce(ctx); err != nil {
		r.logger.Error("reindex.pass.failed", "enqueued", n, "error", err)
	}
}

// Rebuild repopulates a vector store that starts empty on every boot. Index marks left
// by an earlier process are cleared, then every bill is indexed batch by batch on the
// calling goroutine. It returns how many bills were indexed.
func (r *Reindexer) Rebuild(ctx context.Context, reset IndexResetter, idx SyncIndexer) (int, error) {
	start := time.Now()
	cleared, err := reset.ResetIndexed(ctx)
	if err != nil {
		r.logger.Error("reindex.rebuild.reset_failed", "error", err)
		return 0, err
	}
	seen := make(map[string]struct{}, cleared)
	n := 0
	for {
		bills, err := r.source.PendingIndex(ctx, r.batch)
		if err != nil {
			r.logger.Error("reindex.list.failed", "error", err)
			return n, err
		}
		if len(bills) == 0 {
			break
		}
		for _, b := range bills {
			if _, again := seen[b.ID]; again {
				return n, common.Internal("bill %s is still pending after indexing", b.ID)
			}
			seen[b.ID] = struct{}{}
			if err := idx.IndexNow(ctx, JobFor(b, "rebuild")); err != nil {
				r.logger.Error("reindex.rebuild.failed", "bill_id", b.ID, "indexed", n, "error", err)
				return n, err
			}
			n++
		}
	}
	r.logger.Info("reindex.rebuild.ok", "cleared", cleared, "indexed", n, "elapsed_ms", common.ElapsedMS(start))
	return n, nil
}

// Stop waits for a running pass to finish or ctx to end.
func (r *Reindexer) Stop(ctx context.Context) {
	if r.cron == nil {
		return
	}
	select {
	case <-r.cron.Stop().Done():
	case <-ctx.Done():
	}
}
