package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/bills-assistant/constants"
	"github.com/joseph-ayodele/bills-assistant/internal/common"
	"github.com/joseph-ayodele/bills-assistant/internal/ingest"
	"github.com/joseph-ayodele/bills-assistant/internal/pipeline"
	"github.com/joseph-ayodele/bills-assistant/internal/router"
	"github.com/joseph-ayodele/bills-assistant/internal/temporal"
	"github.com/joseph-ayodele/bills-assistant/internal/utils"
)

const (
	maxQueryLength  = 2000
	maxUserIDLength = 128
	maxTextLength   = 20000
)

type QueryRouter interface {
	Route(ctx context.Context, query, userID string) (*router.Result, error)
	Report(ctx context.Context, template, query, userID string) ([]pipeline.Row, error)
	Window(ctx context.Context, query string) (*temporal.Window, error)
}

type Ingester interface {
	Ingest(ctx context.Context, in *ingest.BillInput) (*ingest.Result, error)
	IngestText(ctx context.Context, userID, text string) (*ingest.Result, error)
}

type Exporter interface {
	ExportBillsXLSX(ctx context.Context, userID string, window *temporal.Window) ([]byte, error)
}

// BillsService implements BillsServiceServer on top of the router, ingest and export
// services. It only translates messages; errors go back as they are and the interceptor
// maps them to statuses.
type BillsService struct {
	router   QueryRouter
	ingester Ingester
	exporter Exporter
	now      func() time.Time
	logger   *slog.Logger
}

func NewBillsService(r QueryRouter, ing Ingester, exp Exporter, logger *slog.Logger) *BillsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BillsService{router: r, ingester: ing, exporter: exp, now: time.Now, logger: logger}
}

// Route: {query, user_id} -> {type, rows | answer}.
func (s *BillsService) Route(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	query, userID := stringField(req, "query"), stringField(req, "user_id")
	v := common.NewValidator().
		Field("query", query, common.Required, common.MaxLength(maxQueryLength)).
		Field("user_id", userID, common.Required, common.MaxLength(maxUserIDLength))
	if err := common.ValidateAndReturnError(v); err != nil {
		return nil, err
	}
	res, err := s.router.Route(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	out := map[string]any{"type": string(res.Type)}
	if res.HasAnswer() {
		out["answer"] = res.Answer
	} else {
		out["rows"] = rowsValue(res.Rows)
	}
	return newStruct(out)
}

// Report: {template, query?, user_id} -> {template, rows}.
func (s *BillsService) Report(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	tpl := strings.ToUpper(stringField(req, "template"))
	query, userID := stringField(req, "query"), stringField(req, "user_id")
	v := common.NewValidator().
		Field("template", tpl, common.OneOf(reportTemplates()...)).
		Field("query", query, common.MaxLength(maxQueryLength)).
		Field("user_id", userID, common.Required, common.MaxLength(maxUserIDLength))
	if err := common.ValidateAndReturnError(v); err != nil {
		return nil, err
	}
	rows, err := s.router.Report(ctx, tpl, query, userID)
	if err != nil {
		return nil, err
	}
	return newStruct(map[string]any{"template": tpl, "rows": rowsValue(rows)})
}

// Ingest takes the bill fields at the top level of the request.
func (s *BillsService) Ingest(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in ingest.BillInput
	if err := decodeStruct(req, &in); err != nil {
		return nil, err
	}
	res, err := s.ingester.Ingest(ctx, &in)
	if err != nil {
		return nil, err
	}
	return encodeStruct(res)
}

// IngestText: {user_id, text} -> ingest result.
func (s *BillsService) IngestText(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, text := stringField(req, "user_id"), rawStringField(req, "text")
	v := common.NewValidator().
		Field("user_id", userID, common.Required, common.MaxLength(maxUserIDLength)).
		Field("text", text, common.MaxLength(maxTextLength))
	if err := common.ValidateAndReturnError(v); err != nil {
		return nil, err
	}
	res, err := s.ingester.IngestText(ctx, userID, text)
	if err != nil {
		return nil, err
	}
	return encodeStruct(res)
}

// Export: {user_id, query?, from_date?, to_date?} -> {filename, xlsx (base64), size}.
// A query wins over explicit dates. Only from_date means from that day until today.
func (s *BillsService) Export(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID := stringField(req, "user_id")
	v := common.NewValidator().Field("user_id", userID, common.Required, common.MaxLength(maxUserIDLength))
	if err := common.ValidateAndReturnError(v); err != nil {
		return nil, err
	}
	var window *temporal.Window
	var err error
	if q := stringField(req, "query"); q != "" {
		window, err = s.router.Window(ctx, q)
	} else {
		window, err = s.dateWindow(stringField(req, "from_date"), stringField(req, "to_date"))
	}
	if err != nil {
		return nil, err
	}

	xlsx, err := s.exporter.ExportBillsXLSX(ctx, userID, window)
	if err != nil {
		common.LoggerFrom(ctx, s.logger).Error("export.xlsx.failed", "user_id", userID, "error", err)
		return nil, err
	}
	return newStruct(map[string]any{
		"filename": "bills.xlsx",
		"xlsx":     base64.StdEncoding.EncodeToString(xlsx),
		"size":     len(xlsx),
	})
}

func (s *BillsService) dateWindow(from, to string) (*temporal.Window, error) {
	if from == "" && to == "" {
		return nil, nil
	}
	var w temporal.Window
	if from != "" {
		d, err := utils.ParseYMD(from)
		if err != nil {
			return nil, common.InvalidInput("from_date must be YYYY-MM-DD")
		}
		w.Start = d
	}
	if to == "" {
		now := s.now().UTC()
		to = now.Format("2006-01-02")
	}
	d, err := utils.ParseYMD(to)
	if err != nil {
		return nil, common.InvalidInput("to_date must be YYYY-MM-DD")
	}
	w.End = d.Add(24*time.Hour - time.Second)
	if !w.Start.IsZero() && w.End.Before(w.Start) {
		return nil, common.InvalidInput("from_date is after to_date")
	}
	return &w, nil
}

func reportTemplates() []string {
	return []string{
		string(constants.TemplateMonthlySummary),
		string(constants.TemplateCategoryBreakdown),
		string(constants.TemplateRecentBills),
	}
}

func stringField(req *structpb.Struct, key string) string {
	return strings.TrimSpace(rawStringField(req, key))
}

func rawStringField(req *structpb.Struct, key string) string {
	return req.GetFields()[key].GetStringValue()
}

func rowsValue(rows []pipeline.Row) []any {
	out := make([]any, 0, len(rows))
	for _, r := range utils.NormalizeRows(rows) {
		out = append(out, r)
	}
	return out
}

func newStruct(m map[string]any) (*structpb.Struct, error) {
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, common.WrapError(err, "encode response")
	}
	return st, nil
}

// encodeStruct converts v to a Struct through its JSON form.
func encodeStruct(v any) (*structpb.Struct, error) {
	bs, err := json.Marshal(v)
	if err != nil {
		return nil, common.WrapError(err, "encode response")
	}
	st := &structpb.Struct{}
	if err := st.UnmarshalJSON(bs); err != nil {
		return nil, common.WrapError(err, "encode response")
	}
	return st, nil
}

func decodeStruct(req *structpb.Struct, v any) error {
	bs, err := req.MarshalJSON()
	if err != nil {
		return common.InvalidInput("unreadable request: %v", err)
	}
	if err := json.Unmarshal(bs, v); err != nil {
		return common.InvalidInput("bad request: %v", err)
	}
	return nil
}
