// Package ingest stores new bills and hands them to the vector indexer.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/bills-assistant/constants"
	"github.com/joseph-ayodele/bills-assistant/internal/async"
	"github.com/joseph-ayodele/bills-assistant/internal/common"
	"github.com/joseph-ayodele/bills-assistant/internal/entity"
	"github.com/joseph-ayodele/bills-assistant/internal/llm"
	"github.com/joseph-ayodele/bills-assistant/internal/metrics"
	"github.com/joseph-ayodele/bills-assistant/internal/utils"
)

const (
	sourceManual = "manual"
	sourceText   = "text"

	defaultCurrency = "INR"
	minTextLength   = 10
)

type BillExtractor interface {
	ExtractBill(ctx context.Context, text string) (llm.BillFields, error)
}

type BillStore interface {
	Insert(ctx context.Context, bill *entity.Bill) (string, error)
}

// Result is what the caller gets back for one ingested bill. Bill is set for
// requires_confirmation so the client can fill the gaps and resubmit through Ingest.
type Result struct {
	Status  constants.IngestStatus `json:"status"`
	BillID  string                 `json:"bill_id,omitempty"`
	Bill    *entity.Bill           `json:"bill,omitempty"`
	Missing []string               `json:"missing_fields,omitempty"`
	RawText string                 `json:"raw_text,omitempty"`
	Index   constants.IndexStatus  `json:"index_status,omitempty"`
	Message string                 `json:"message,omitempty"`
}

type Service struct {
	extractor      BillExtractor
	store          BillStore
	queue          async.Queue
	validator      *common.StructValidator
	extractTimeout time.Duration
	logger         *slog.Logger
}

type Option func(*Service)

func WithExtractTimeout(d time.Duration) Option {
	return func(s *Service) { s.extractTimeout = d }
}

// NewService wires ingestion. queue may be nil, in which case stored bills stay pending
// until the reindexer picks them up.
func NewService(extractor BillExtractor, store BillStore, queue async.Queue, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		extractor: extractor,
		store:     store,
		queue:     queue,
		validator: common.NewStructValidator(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest stores a bill entered by hand.
func (s *Service) Ingest(ctx context.Context, in *BillInput) (*Result, error) {
	if in == nil {
		return nil, common.InvalidInput("bill is required")
	}
	if err := s.validator.Struct(in); err != nil {
		return nil, err
	}
	ctx = common.WithUserID(ctx, in.UserID)
	bill, err := in.toBill(common.LoggerFrom(ctx, s.logger))
	if err != nil {
		return nil, err
	}
	bill.Source = sourceManual
	return s.save(ctx, bill)
}

// IngestText extracts a bill from text that was already pulled out of a document and
// stores it when every required field is present.
func (s *Service) IngestText(ctx context.Context, userID, text string) (*Result, error) {
	start := time.Now()
	if strings.TrimSpace(userID) == "" {
		return nil, common.InvalidInput("user_id is required")
	}
	ctx = common.WithUserID(ctx, userID)
	log := common.LoggerFrom(ctx, s.logger)

	text = strings.TrimSpace(text)
	if len(text) < minTextLength {
		return s.failed(log, text, "bill text is empty or too short"), nil
	}

	ectx, cancel := common.WithTimeout(ctx, s.extractTimeout)
	defer cancel()
	fields, err := s.extractor.ExtractBill(ectx, text)
	metrics.ObserveCollaborator("bill_extractor", start, err)
	if err != nil {
		if errors.Is(err, common.ErrCollaboratorUnavailable) {
			log.Error("ingest.extract.unavailable", "error", err, "elapsed_ms", common.ElapsedMS(start))
			return nil, err
		}
		log.Warn("ingest.extract.failed", "error", err)
		return s.failed(log, text, "could not extract bill fields"), nil
	}
	if fields.IsEmpty() {
		return s.failed(log, text, "no bill fields found in text"), nil
	}

	bill := billFromFields(userID, fields, log)
	bill.Source = sourceText
	bill.RawText = text

	if missing := bill.MissingRequired(); len(missing) > 0 {
		log.Info("ingest.text.requires_confirmation", "missing", missing, "elapsed_ms", common.ElapsedMS(start))
		metrics.IncIngest(string(constants.IngestStatusRequiresConfirmation))
		return &Result{
			Status:  constants.IngestStatusRequiresConfirmation,
			Bill:    bill,
			Missing: missing,
			RawText: text,
		}, nil
	}
	return s.save(ctx, bill)
}

func (s *Service) save(ctx context.Context, bill *entity.Bill) (*Result, error) {
	start := time.Now()
	log := common.LoggerFrom(ctx, s.logger)

	id, err := s.store.Insert(ctx, bill)
	if err != nil {
		log.Error("ingest.store.failed", "error", err)
		return nil, err
	}
	res := &Result{Status: constants.IngestStatusOK, BillID: id, Bill: bill, Index: constants.IndexStatusPending}
	if s.queue != nil {
		if err := s.queue.Enqueue(ctx, async.JobFor(bill, common.RequestIDFromContext(ctx))); err != nil {
			// Stored but not queued; the reindexer retries later.
			log.Warn("ingest.index.enqueue_failed", "bill_id", id, "error", err)
			res.Index = constants.IndexStatusFailed
		}
	}
	metrics.IncIngest(string(constants.IngestStatusOK))
	log.Info("ingest.store.ok", "bill_id", id, "source", bill.Source, "index", res.Index, "elapsed_ms", common.ElapsedMS(start))
	return res, nil
}

func (s *Service) failed(log *slog.Logger, text, msg string) *Result {
	metrics.IncIngest(string(constants.IngestStatusExtractionFailed))
	log.Info("ingest.text.extraction_failed", "reason", msg, "text_len", len(text))
	return &Result{Status: constants.IngestStatusExtractionFailed, RawText: text, Message: msg}
}

// billFromFields maps extractor output onto a bill. Fields that do not parse are left
// empty so they show up as missing.
func billFromFields(userID string, f llm.BillFields, log *slog.Logger) *entity.Bill {
	b := &entity.Bill{
		UserID:        userID,
		Vendor:        strings.TrimSpace(f.Vendor),
		BillNo:        strings.TrimSpace(f.BillNo),
		PaymentMethod: strings.ToUpper(strings.TrimSpace(f.PaymentMethod)),
		Currency:      currencyOrDefault(f.Currency),
		Items:         make([]entity.Item, 0, len(f.Items)),
	}
	if f.Category != "" {
		b.Category = canonicalCategory(f.Category, log)
	}
	if f.BillDate != "" {
		if d, err := utils.ParseYMD(f.BillDate); err == nil {
			b.BillDate = &d
		} else {
			log.Warn("ingest.extract.bad_date", "bill_date", f.BillDate)
		}
	}
	if f.TotalAmount != nil {
		b.TotalAmount = decimal.NewFromFloat(*f.TotalAmount)
	}
	b.TaxAmount = nullDecimal(f.TaxAmount)
	for _, it := range f.Items {
		item := entity.Item{
			Description: it.Description,
			Quantity:    nullDecimal(it.Quantity),
			Rate:        nullDecimal(it.Rate),
			GST:         nullDecimal(it.GST),
		}
		if it.Amount != nil {
			item.Amount = decimal.NewFromFloat(*it.Amount)
		}
		b.Items = append(b.Items, item)
	}
	if len(f.ExtraData) > 0 {
		log.Debug("ingest.extract.extra_data", "keys", len(f.ExtraData))
	}
	return b
}

func canonicalCategory(raw string, log *slog.Logger) string {
	cat, ok := constants.Canonicalize(raw)
	if !ok {
		log.Warn("ingest.category.unknown", "category", raw, "using", cat)
	}
	return string(cat)
}

func currencyOrDefault(c string) string {
	c = strings.ToUpper(strings.TrimSpace(c))
	if c == "" {
		return defaultCurrency
	}
	return c
}

func nullDecimal(f *float64) decimal.NullDecimal {
	if f == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(*f))
}
