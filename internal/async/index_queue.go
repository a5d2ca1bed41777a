package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/bills-assistant/internal/common"
	"github.com/joseph-ayodele/bills-assistant/internal/metrics"
	"github.com/joseph-ayodele/bills-assistant/internal/vector"
)

// Marker records that a bill made it into the vector index.
type Marker interface {
	MarkIndexed(ctx context.Context, id string, at time.Time) error
}

// IndexQueue indexes bill text on a fixed pool of workers.
type IndexQueue struct {
	indexer vector.Indexer
	marker  Marker
	logger  *slog.Logger
	workers int
	timeout time.Duration
	now     func() time.Time

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex // guards closed and sends on ch
	closed bool

	inflightMu sync.Mutex
	inflight   map[string]struct{}
}

type Option func(*IndexQueue)

func WithWorkers(n int) Option {
	return func(q *IndexQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *IndexQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithJobTimeout(d time.Duration) Option {
	return func(q *IndexQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(q *IndexQueue) {
		if now != nil {
			q.now = now
		}
	}
}

// NewIndexQueue starts the workers. marker may be nil when nothing tracks index state.
func NewIndexQueue(indexer vector.Indexer, marker Marker, logger *slog.Logger, opts ...Option) *IndexQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &IndexQueue{
		indexer:  indexer,
		marker:   marker,
		logger:   logger,
		workers:  4,
		timeout:  30 * time.Second,
		now:      time.Now,
		ch:       make(chan Job, 256),
		inflight: make(map[string]struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *IndexQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("index.worker.started", "worker_id", workerID)
				for job := range q.ch {
					metrics.SetIndexQueueDepth(len(q.ch))
					q.process(workerID, job)
				}
				q.logger.Debug("index.worker.stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *IndexQueue) process(workerID int, job Job) {
	defer q.release(job.BillID)
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	_ = q.run(ctx, job, q.jobLogger(job).With("worker_id", workerID))
}

// IndexNow indexes job on the calling goroutine, bypassing the buffer.
func (q *IndexQueue) IndexNow(ctx context.Context, job Job) error {
	if job.BillID == "" || job.UserID == "" {
		return common.InvalidInput("index job needs bill_id and user_id")
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = q.now()
	}
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()
	return q.run(ctx, job, q.jobLogger(job))
}

func (q *IndexQueue) jobLogger(job Job) *slog.Logger {
	log := q.logger.With("bill_id", job.BillID, "user_id", job.UserID)
	if job.TraceID != "" {
		log = log.With("req_id", job.TraceID)
	}
	return log
}

func (q *IndexQueue) run(ctx context.Context, job Job, log *slog.Logger) error {
	start := time.Now()
	if err := q.indexer.Index(ctx, job.document()); err != nil {
		metrics.IncIndexJob("failed")
		log.Error("index.job.failed", "error", err, "elapsed_ms", common.ElapsedMS(start))
		return err
	}
	if q.marker != nil {
		if err := q.marker.MarkIndexed(ctx, job.BillID, q.now().UTC()); err != nil {
			// The text is searchable; the next reindex pass will index it again.
			metrics.IncIndexJob("unmarked")
			log.Warn("index.job.mark_failed", "error", err)
			return err
		}
	}
	metrics.IncIndexJob("ok")
	log.Info("index.job.ok", "queued_ms", start.Sub(job.SubmittedAt).Milliseconds(), "elapsed_ms", common.ElapsedMS(start))
	return nil
}

// claim marks billID as in flight. It reports false when it already was and force is off.
func (q *IndexQueue) claim(billID string, force bool) bool {
	q.inflightMu.Lock()
	defer q.inflightMu.Unlock()
	if _, busy := q.inflight[billID]; busy && !force {
		return false
	}
	q.inflight[billID] = struct{}{}
	return true
}

func (q *IndexQueue) release(billID string) {
	q.inflightMu.Lock()
	delete(q.inflight, billID)
	q.inflightMu.Unlock()
}

// Enqueue hands job to the workers. A bill already waiting or running is skipped unless
// job.Force is set. When the buffer is full Enqueue blocks until a worker frees a slot or
// ctx ends.
func (q *IndexQueue) Enqueue(ctx context.Context, job Job) error {
	if job.BillID == "" || job.UserID == "" {
		return common.InvalidInput("index job needs bill_id and user_id")
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now().UTC()
	}
	if job.TraceID == "" {
		job.TraceID = common.RequestIDFromContext(ctx)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("index.enqueue.closed", "bill_id", job.BillID)
		return ErrQueueClosed
	}
	// Claimed before the send so a fast worker cannot release it first.
	if !q.claim(job.BillID, job.Force) {
		q.logger.Debug("index.enqueue.skipped", "bill_id", job.BillID)
		return nil
	}
	select {
	case q.ch <- job:
	default:
		q.logger.Warn("index.queue.full", "bill_id", job.BillID, "capacity", cap(q.ch))
		select {
		case q.ch <- job:
		case <-ctx.Done():
			q.release(job.BillID)
			return ctx.Err()
		}
	}
	metrics.SetIndexQueueDepth(len(q.ch))
	q.logger.Debug("index.enqueue.ok", "bill_id", job.BillID, "force", job.Force)
	return nil
}

// Shutdown stops accepting jobs and waits for queued ones to drain or ctx to end.
func (q *IndexQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("index.shutdown.interrupted", "pending", len(q.ch))
	case <-done:
		q.logger.Info("index.shutdown.drained")
	}
}
