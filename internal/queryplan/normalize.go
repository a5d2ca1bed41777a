package queryplan

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joseph-ayodele/bills-assistant/constants"
	"github.com/joseph-ayodele/bills-assistant/internal/common"
	"github.com/joseph-ayodele/bills-assistant/internal/temporal"
)

// Normalizer is the single validation boundary between planner output and execution.
// It is stateless across calls.
type Normalizer struct {
	resolver       *temporal.Resolver
	extractor      TimeExtractor
	extractTimeout time.Duration
	logger         *slog.Logger
}

type Option func(*Normalizer)

// WithExtractor sets the fallback time extractor. Without one, unusable time ranges go
// straight to the phrase table.
func WithExtractor(e TimeExtractor) Option {
	return func(n *Normalizer) { n.extractor = e }
}

func WithExtractTimeout(d time.Duration) Option {
	return func(n *Normalizer) { n.extractTimeout = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(n *Normalizer) {
		if l != nil {
			n.logger = l
		}
	}
}

func NewNormalizer(resolver *temporal.Resolver, opts ...Option) *Normalizer {
	if resolver == nil {
		resolver = temporal.NewResolver(nil)
	}
	n := &Normalizer{
		resolver:       resolver,
		extractTimeout: 10 * time.Second,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize validates raw planner output for query and resolves its time range into
// Filters.BillDate.
func (n *Normalizer) Normalize(ctx context.Context, raw map[string]any, query string) (*QueryPlan, error) {
	log := common.LoggerFrom(ctx, n.logger)
	if raw == nil {
		return nil, common.MalformedPlan("plan is empty")
	}

	qt, err := parseType(raw["type"])
	if err != nil {
		return nil, err
	}
	op, err := parseOperation(raw["operation"], qt)
	if err != nil {
		return nil, err
	}
	filters, err := parseFilters(raw["filters"], log)
	if err != nil {
		return nil, err
	}
	entities, err := parseEntities(raw["entities"])
	if err != nil {
		return nil, err
	}

	tr := n.timeRange(ctx, raw["time_range"], query, log)
	tr = CollapseSingleDay(tr, query)
	if err := checkTimeRange(tr); err != nil {
		log.Error("normalize.time.invariant", "time_range", tr.String(), "error", err)
		return nil, err
	}

	window, err := n.resolver.Resolve(tr)
	if err != nil {
		log.Warn("normalize.time.unsupported", "time_range", tr.String(), "error", err)
		return nil, err
	}
	if window != nil {
		filters.BillDate = window
	}

	plan := &QueryPlan{
		Type:      qt,
		Operation: op,
		Filters:   filters,
		Entities:  entities,
		TimeRange: tr,
		NeedsRAG:  parseBool(raw["needs_rag"]),
	}
	log.Debug("normalize.ok",
		"type", plan.Type,
		"operation", plan.Operation,
		"time_range", tr.String(),
		"bill_date", windowString(plan.Filters.BillDate),
	)
	return plan, nil
}

// timeRange never fails: anything unusable degrades to extraction, then the phrase
// table, then an explicit NONE.
func (n *Normalizer) timeRange(ctx context.Context, raw any, query string, log *slog.Logger) *temporal.TimeRange {
	if raw != nil {
		tr, err := temporal.ParseCandidate(raw)
		if err == nil {
			return tr
		}
		log.Info("normalize.time.invalid", "error", err)
	}

	if tr := n.extract(ctx, query, log); tr != nil {
		return tr
	}
	if tr := temporal.Fallback(query); tr != nil {
		log.Info("normalize.time.fallback", "time_range", tr.String())
		return tr
	}
	return temporal.NoneRange()
}

func (n *Normalizer) extract(ctx context.Context, query string, log *slog.Logger) *temporal.TimeRange {
	if n.extractor == nil || strings.TrimSpace(query) == "" {
		return nil
	}
	start := time.Now()
	ectx, cancel := common.WithTimeout(ctx, n.extractTimeout)
	defer cancel()

	candidate, err := n.extractor.ExtractTime(ectx, query)
	if err != nil {
		log.Warn("normalize.time.extract_failed", "error", err, "elapsed_ms", common.ElapsedMS(start))
		return nil
	}
	if candidate == nil {
		log.Info("normalize.time.extract_absent", "elapsed_ms", common.ElapsedMS(start))
		return nil
	}
	tr, err := temporal.ParseCandidate(candidate)
	if err != nil {
		log.Warn("normalize.time.extract_invalid", "error", err, "elapsed_ms", common.ElapsedMS(start))
		return nil
	}
	log.Info("normalize.time.extract_ok", "time_range", tr.String(), "elapsed_ms", common.ElapsedMS(start))
	return tr
}

func checkTimeRange(tr *temporal.TimeRange) error {
	if tr == nil {
		return nil
	}
	switch tr.Type {
	case temporal.RangeAbsolute, temporal.RangeRelative, temporal.RangeNone:
	default:
		return common.Internal("time range reached resolution with type %q", tr.Type)
	}
	switch tr.Granularity {
	case temporal.UnitDay, temporal.UnitMonth, temporal.UnitYear:
	default:
		return common.Internal("time range reached resolution with granularity %q", tr.Granularity)
	}
	return nil
}

func parseType(raw any) (constants.QueryType, error) {
	s, ok := raw.(string)
	if !ok {
		return "", common.MalformedPlan("plan type is missing")
	}
	qt, ok := constants.ParseQueryType(strings.ToUpper(strings.TrimSpace(s)))
	if !ok {
		return "", common.MalformedPlan("plan type %q is not one of FILTER, AGGREGATION, SEMANTIC, MIXED", s)
	}
	return qt, nil
}

func parseOperation(raw any, qt constants.QueryType) (constants.Operation, error) {
	s, _ := raw.(string)
	if strings.TrimSpace(s) == "" {
		if qt == constants.QueryTypeSemantic {
			return constants.OperationList, nil
		}
		return "", common.MalformedPlan("plan operation is missing")
	}
	op, ok := constants.ParseOperation(s)
	if !ok {
		return "", common.MalformedPlan("plan operation %q is not one of list, sum, count", s)
	}
	return op, nil
}

func parseFilters(raw any, log *slog.Logger) (Filters, error) {
	out := Filters{Fields: map[string]any{}}
	var m map[string]any
	switch v := raw.(type) {
	case nil:
		return out, nil
	case []any:
		// Some planners emit "filters": [] for "no filters".
		if len(v) == 0 {
			return out, nil
		}
		return out, common.MalformedPlan("filters must be an object, got a list")
	case map[string]any:
		m = v
	default:
		return out, common.MalformedPlan("filters must be an object, got %T", raw)
	}

	for key := range m {
		if slices.Contains(constants.TimeLeakKeys, strings.ToLower(strings.TrimSpace(key))) {
			return out, common.MalformedPlan("time expression leaked into filters under %q", key)
		}
	}

	for key, val := range m {
		k := strings.ToLower(strings.TrimSpace(key))
		if k == "bill_date" {
			w, err := parseWindow(val)
			if err != nil {
				return out, err
			}
			out.BillDate = w
			continue
		}
		if !slices.Contains(constants.FilterFields, k) {
			log.Warn("normalize.filters.unknown_key", "key", key)
			continue
		}
		scalar, ok := scalarValue(val)
		if !ok {
			log.Warn("normalize.filters.non_scalar", "key", key, "value_type", fmt.Sprintf("%T", val))
			continue
		}
		if scalar == nil {
			continue
		}
		if c, ok := scalar.(string); ok && k == "category" {
			scalar = canonicalCategory(c)
		}
		out.Fields[k] = scalar
	}
	return out, nil
}

// scalarValue returns (nil, true) for values that mean "no filter".
func scalarValue(v any) (any, bool) {
	switch x := v.(type) {
	case nil:
		return nil, true
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return nil, true
		}
		return s, true
	case bool, float64, int, int64:
		return x, true
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return nil, false
		}
		return f, true
	default:
		return nil, false
	}
}

// parseWindow accepts an already-resolved {gte, lte} range, with or without "$".
func parseWindow(v any) (*temporal.Window, error) {
	switch x := v.(type) {
	case *temporal.Window:
		if x == nil {
			return nil, common.MalformedPlan("bill_date is empty")
		}
		return x, nil
	case temporal.Window:
		return &x, nil
	case map[string]any:
		var w temporal.Window
		var err error
		if w.Start, err = instant(x, "gte"); err != nil {
			return nil, err
		}
		if w.End, err = instant(x, "lte"); err != nil {
			return nil, err
		}
		if w.Start.IsZero() && w.End.IsZero() {
			return nil, common.MalformedPlan("bill_date must carry gte and/or lte")
		}
		return &w, nil
	default:
		return nil, common.MalformedPlan("bill_date must be a resolved range, got %T", v)
	}
}

func instant(m map[string]any, key string) (time.Time, error) {
	v, ok := m[key]
	if !ok {
		v, ok = m["$"+key]
	}
	if !ok || v == nil {
		return time.Time{}, nil
	}
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, common.MalformedPlan("bill_date.%s is not an RFC3339 instant: %q", key, t)
		}
		return parsed.UTC(), nil
	default:
		return time.Time{}, common.MalformedPlan("bill_date.%s has unsupported type %T", key, v)
	}
}

func parseEntities(raw any) (map[string]string, error) {
	out := map[string]string{}
	switch v := raw.(type) {
	case nil:
		return out, nil
	case []any:
		if len(v) == 0 {
			return out, nil
		}
		return out, common.MalformedPlan("entities must be an object, got a list")
	case map[string]string:
		for k, s := range v {
			if s = strings.TrimSpace(s); s != "" {
				out[strings.ToLower(k)] = s
			}
		}
		return canonicalEntities(out), nil
	case map[string]any:
		for k, val := range v {
			var s string
			switch x := val.(type) {
			case nil:
				continue
			case string:
				s = x
			case float64:
				s = strconv.FormatFloat(x, 'f', -1, 64)
			case json.Number:
				s = x.String()
			case bool:
				s = strconv.FormatBool(x)
			default:
				continue
			}
			if s = strings.TrimSpace(s); s != "" {
				out[strings.ToLower(k)] = s
			}
		}
		return canonicalEntities(out), nil
	default:
		return out, common.MalformedPlan("entities must be an object, got %T", raw)
	}
}

func canonicalEntities(m map[string]string) map[string]string {
	if c, ok := m["category"]; ok {
		m["category"] = canonicalCategory(c)
	}
	return m
}

// canonicalCategory maps synonyms onto the stored category names ingest writes.
// Text that names no known category is kept for substring matching.
func canonicalCategory(s string) string {
	if cat, ok := constants.Canonicalize(s); ok {
		return string(cat)
	}
	return s
}

func parseBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(x))
		return b
	default:
		return false
	}
}

func windowString(w *temporal.Window) string {
	if w == nil {
		return "-"
	}
	return w.String()
}
