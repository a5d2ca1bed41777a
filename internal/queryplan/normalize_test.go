package queryplan

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/joseph-ayodele/bills-assistant/constants"
	"github.com/joseph-ayodele/bills-assistant/internal/common"
	"github.com/joseph-ayodele/bills-assistant/internal/temporal"
)

var fixedNow = time.Date(2026, time.March, 15, 10, 30, 0, 0, time.UTC)

type fakeExtractor struct {
	candidate map[string]any
	err       error
	delay     time.Duration
	calls     atomic.Int32
}

func (f *fakeExtractor) ExtractTime(ctx context.Context, _ string) (map[string]any, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.candidate, f.err
}

func newTestNormalizer(ex TimeExtractor) *Normalizer {
	opts := []Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}
	if ex != nil {
		opts = append(opts, WithExtractor(ex))
	}
	return NewNormalizer(temporal.NewResolver(func() time.Time { return fixedNow }), opts...)
}

func rawPlan(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		t.Fatalf("bad fixture %s: %v", s, err)
	}
	return m
}

func utc(y int, m time.Month, d, hh, mm, ss int) time.Time {
	return time.Date(y, m, d, hh, mm, ss, 0, time.UTC)
}

func TestNormalizeResolvesIntoBillDate(t *testing.T) {
	n := newTestNormalizer(nil)
	raw := rawPlan(t, `{
		"type": "FILTER",
		"operation": "list",
		"entities": {"item": "Rice"},
		"filters": null,
		"time_range": {"type": "ABSOLUTE", "granularity": "month", "from": {"month": 1, "year": 2026}},
		"needs_rag": false
	}`)

	got, err := n.Normalize(context.Background(), raw, "show all the bills of Rice purchase in jan 2026")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	want := &QueryPlan{
		Type:      constants.QueryTypeFilter,
		Operation: constants.OperationList,
		Filters: Filters{
			Fields:   map[string]any{},
			BillDate: &temporal.Window{Start: utc(2026, time.January, 1, 0, 0, 0), End: utc(2026, time.January, 31, 23, 59, 59)},
		},
		Entities:  map[string]string{"item": "Rice"},
		TimeRange: &temporal.TimeRange{Type: temporal.RangeAbsolute, Granularity: temporal.UnitMonth, From: temporal.Absolute{Year: 2026, Month: 1}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Normalize() mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeFilters(t *testing.T) {
	n := newTestNormalizer(nil)
	raw := rawPlan(t, `{
		"type": "aggregation",
		"operation": "SUM",
		"filters": {"category": "Grocery", "payment_method": " UPI ", "vendor": "", "bill_no": null, "total_amount": 5, "notes": "x", "items": ["a"]},
		"entities": {"category": "Grocery", "item": null},
		"time_range": {"type": "NONE", "granularity": "year"},
		"needs_rag": "true"
	}`)

	got, err := n.Normalize(context.Background(), raw, "How much did I spend on groceries via UPI?")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	want := &QueryPlan{
		Type:      constants.QueryTypeAggregation,
		Operation: constants.OperationSum,
		Filters:   Filters{Fields: map[string]any{"category": "Grocery", "payment_method": "UPI"}},
		Entities:  map[string]string{"category": "Grocery"},
		TimeRange: temporal.NoneRange(),
		NeedsRAG:  true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Normalize() mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeCanonicalizesCategory(t *testing.T) {
	n := newTestNormalizer(nil)
	tests := []struct {
		in   string
		want string
	}{
		{"groceries", "Grocery"},
		{" PHARMACY ", "Medical"},
		{"grocery", "Grocery"},
		{"stationery", "stationery"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			raw := map[string]any{
				"type":       "AGGREGATION",
				"operation":  "sum",
				"filters":    map[string]any{"category": tt.in},
				"entities":   map[string]any{"category": tt.in},
				"time_range": map[string]any{"type": "NONE", "granularity": "year"},
			}
			got, err := n.Normalize(context.Background(), raw, "spend on "+tt.in)
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if got.Filters.Fields["category"] != tt.want || got.Category() != tt.want {
				t.Errorf("category = %v / %q, want %q", got.Filters.Fields["category"], got.Category(), tt.want)
			}
			again, err := n.Normalize(context.Background(), got.Raw(), "spend on "+tt.in)
			if err != nil {
				t.Fatalf("re-Normalize() error = %v", err)
			}
			if diff := cmp.Diff(got, again); diff != "" {
				t.Errorf("re-Normalize() mismatch (-first +second):\n%s", diff)
			}
		})
	}
}

func TestNormalizeRejectsMalformedPlans(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"unknown type", `{"type": "SELECT", "operation": "list"}`},
		{"missing type", `{"operation": "list"}`},
		{"unknown operation", `{"type": "AGGREGATION", "operation": "average"}`},
		{"missing operation", `{"type": "FILTER"}`},
		{"date leaked into filters", `{"type": "FILTER", "operation": "list", "filters": {"date": "2024-01-01"}}`},
		{"from leaked into filters", `{"type": "FILTER", "operation": "list", "filters": {"from": "2024-01-01"}}`},
		{"to leaked into filters", `{"type": "FILTER", "operation": "list", "filters": {"to": "2024-01-31"}}`},
		{"now leaked into filters", `{"type": "FILTER", "operation": "list", "filters": {"now": true}}`},
		{"range leaked into filters", `{"type": "FILTER", "operation": "list", "filters": {"Range": "last month"}}`},
		{"raw bill_date expression", `{"type": "FILTER", "operation": "list", "filters": {"bill_date": "last month"}}`},
		{"bill_date without bounds", `{"type": "FILTER", "operation": "list", "filters": {"bill_date": {}}}`},
		{"filters as string", `{"type": "FILTER", "operation": "list", "filters": "vendor=x"}`},
	}

	n := newTestNormalizer(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := n.Normalize(context.Background(), rawPlan(t, tt.raw), "show my bills")
			if !errors.Is(err, common.ErrMalformedPlan) {
				t.Fatalf("Normalize() error = %v, want malformed plan", err)
			}
		})
	}
}

func TestNormalizeSemanticDefaultsToList(t *testing.T) {
	n := newTestNormalizer(nil)
	got, err := n.Normalize(context.Background(), rawPlan(t, `{"type": "SEMANTIC", "filters": [], "entities": []}`), "why was my hospital bill so high")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if got.Operation != constants.OperationList {
		t.Errorf("Operation = %q, want list", got.Operation)
	}
	if got.Filters.BillDate != nil {
		t.Errorf("BillDate = %v, want none", got.Filters.BillDate)
	}
}

func TestNormalizeTimeRangeRecovery(t *testing.T) {
	lastMonth := &temporal.Window{Start: utc(2026, time.February, 1, 0, 0, 0), End: utc(2026, time.February, 28, 23, 59, 59)}
	lastThree := &temporal.Window{Start: utc(2025, time.December, 1, 0, 0, 0), End: utc(2026, time.February, 28, 23, 59, 59)}

	tests := []struct {
		name      string
		timeRange string
		query     string
		extractor *fakeExtractor
		want      *temporal.Window
		wantCalls int32
	}{
		{
			name:      "bare string goes to the extractor",
			timeRange: `"last month"`,
			query:     "total for last month",
			extractor: &fakeExtractor{candidate: map[string]any{
				"type": "RELATIVE", "granularity": "month",
				"from": map[string]any{"relative": map[string]any{"unit": "month", "offset": -1}},
			}},
			want:      lastMonth,
			wantCalls: 1,
		},
		{
			name:      "unrecognised shape goes to the extractor",
			timeRange: `{"start": "2024-01-01", "end": "2024-01-31"}`,
			query:     "bills in jan 2024",
			extractor: &fakeExtractor{candidate: map[string]any{
				"type": "ABSOLUTE", "granularity": "month", "from": map[string]any{"year": 2024, "month": 1},
			}},
			want:      &temporal.Window{Start: utc(2024, time.January, 1, 0, 0, 0), End: utc(2024, time.January, 31, 23, 59, 59)},
			wantCalls: 1,
		},
		{
			name:      "extractor error degrades to the phrase table",
			timeRange: `null`,
			query:     "spend in the last 3 months",
			extractor: &fakeExtractor{err: errors.New("model timeout")},
			want:      lastThree,
			wantCalls: 1,
		},
		{
			name:      "extractor result missing granularity is absent",
			timeRange: `"recently"`,
			query:     "what did I pay last month",
			extractor: &fakeExtractor{candidate: map[string]any{
				"type": "RELATIVE", "from": map[string]any{"relative": map[string]any{"unit": "month", "offset": -1}},
			}},
			want:      lastMonth,
			wantCalls: 1,
		},
		{
			name:      "nothing usable drops the constraint",
			timeRange: `"sometime"`,
			query:     "show my pharmacy bills",
			extractor: &fakeExtractor{},
			want:      nil,
			wantCalls: 1,
		},
		{
			name:      "extractor timeout is not fatal",
			timeRange: `null`,
			query:     "fuel bills",
			extractor: &fakeExtractor{delay: time.Second},
			want:      nil,
			wantCalls: 1,
		},
		{
			name:      "valid range skips the extractor",
			timeRange: `{"type": "RELATIVE", "granularity": "month", "from": {"relative": {"unit": "month", "offset": -3}}}`,
			query:     "last 3 months",
			extractor: &fakeExtractor{err: errors.New("must not be called")},
			want:      lastThree,
			wantCalls: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newTestNormalizer(tt.extractor)
			n.extractTimeout = 20 * time.Millisecond
			raw := rawPlan(t, `{"type": "AGGREGATION", "operation": "sum", "time_range": `+tt.timeRange+`}`)
			got, err := n.Normalize(context.Background(), raw, tt.query)
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got.Filters.BillDate); diff != "" {
				t.Errorf("BillDate mismatch (-want +got):\n%s", diff)
			}
			if got.TimeRange == nil {
				t.Fatal("TimeRange is nil, want a complete range")
			}
			if calls := tt.extractor.calls.Load(); calls != tt.wantCalls {
				t.Errorf("extractor calls = %d, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestNormalizeSingleDayCollapse(t *testing.T) {
	n := newTestNormalizer(nil)
	tests := []struct {
		name      string
		from, to  string
		query     string
		wantRange *temporal.TimeRange
		wantDate  *temporal.Window
	}{
		{
			name:  "single date collapses",
			from:  `{"year": 2026, "month": 1, "day": 19}`,
			to:    `{"year": 2026, "month": 1, "day": 19}`,
			query: "bills on 19 jan 2026",
			wantRange: &temporal.TimeRange{Type: temporal.RangeAbsolute, Granularity: temporal.UnitDay,
				From: temporal.Absolute{Year: 2026, Month: 1, Day: 19}},
			wantDate: &temporal.Window{Start: utc(2026, time.January, 19, 0, 0, 0), End: utc(2026, time.January, 19, 23, 59, 59)},
		},
		{
			name:  "over-produced month start collapses onto the named day",
			from:  `{"year": 2026, "month": 1, "day": 1}`,
			to:    `{"year": 2026, "month": 1, "day": 19}`,
			query: "bills on 19 jan 2026",
			wantRange: &temporal.TimeRange{Type: temporal.RangeAbsolute, Granularity: temporal.UnitDay,
				From: temporal.Absolute{Year: 2026, Month: 1, Day: 19}},
			wantDate: &temporal.Window{Start: utc(2026, time.January, 19, 0, 0, 0), End: utc(2026, time.January, 19, 23, 59, 59)},
		},
		{
			name:  "explicit range is preserved",
			from:  `{"year": 2026, "month": 1, "day": 19}`,
			to:    `{"year": 2026, "month": 1, "day": 25}`,
			query: "bills from 19 jan 2026 to 25 jan 2026",
			wantRange: &temporal.TimeRange{Type: temporal.RangeAbsolute, Granularity: temporal.UnitDay,
				From: temporal.Absolute{Year: 2026, Month: 1, Day: 19}, To: temporal.Absolute{Year: 2026, Month: 1, Day: 25}},
			wantDate: &temporal.Window{Start: utc(2026, time.January, 19, 0, 0, 0), End: utc(2026, time.January, 25, 23, 59, 59)},
		},
		{
			name:  "different months never collapse",
			from:  `{"year": 2026, "month": 1, "day": 30}`,
			to:    `{"year": 2026, "month": 2, "day": 2}`,
			query: "bills 30 jan 2026 2 feb 2026",
			wantRange: &temporal.TimeRange{Type: temporal.RangeAbsolute, Granularity: temporal.UnitDay,
				From: temporal.Absolute{Year: 2026, Month: 1, Day: 30}, To: temporal.Absolute{Year: 2026, Month: 2, Day: 2}},
			wantDate: &temporal.Window{Start: utc(2026, time.January, 30, 0, 0, 0), End: utc(2026, time.February, 2, 23, 59, 59)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := rawPlan(t, `{"type": "FILTER", "operation": "list", "time_range": {"type": "ABSOLUTE", "granularity": "day", "from": `+tt.from+`, "to": `+tt.to+`}}`)
			got, err := n.Normalize(context.Background(), raw, tt.query)
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if diff := cmp.Diff(tt.wantRange, got.TimeRange); diff != "" {
				t.Errorf("TimeRange mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantDate, got.Filters.BillDate); diff != "" {
				t.Errorf("BillDate mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	ex := &fakeExtractor{candidate: map[string]any{
		"type": "RELATIVE", "granularity": "month",
		"from": map[string]any{"relative": map[string]any{"unit": "year", "offset": -1}, "month": 11},
	}}
	n := newTestNormalizer(ex)
	raws := []string{
		`{"type": "AGGREGATION", "operation": "sum", "filters": {"category": "Grocery", "total_amount": 10}, "entities": {"item": "Rice"}, "time_range": "last november"}`,
		`{"type": "FILTER", "operation": "list", "time_range": {"type": "ABSOLUTE", "granularity": "day", "from": {"year": 2026, "month": 1, "day": 19}, "to": {"year": 2026, "month": 1, "day": 19}}}`,
		`{"type": "MIXED", "operation": "count", "filters": {"vendor": "Fresh Mart"}, "time_range": {"type": "NONE", "granularity": "year"}, "needs_rag": true}`,
		`{"type": "FILTER", "operation": "list", "filters": {"bill_date": {"gte": "2025-01-01T00:00:00Z", "lte": "2025-01-31T23:59:59Z"}}, "time_range": {"type": "NONE", "granularity": "year"}}`,
	}

	for _, s := range raws {
		first, err := n.Normalize(context.Background(), rawPlan(t, s), "bills on 19 jan 2026 or last november")
		if err != nil {
			t.Fatalf("first Normalize(%s) error = %v", s, err)
		}
		callsAfterFirst := ex.calls.Load()

		second, err := n.Normalize(context.Background(), first.Raw(), "bills on 19 jan 2026 or last november")
		if err != nil {
			t.Fatalf("second Normalize(%s) error = %v", s, err)
		}
		if diff := cmp.Diff(first, second); diff != "" {
			t.Errorf("Normalize is not idempotent for %s (-first +second):\n%s", s, diff)
		}
		if ex.calls.Load() != callsAfterFirst {
			t.Errorf("re-normalizing %s called the extractor again", s)
		}
	}
}

func TestNormalizeUnsupportedRangeIsFatal(t *testing.T) {
	n := newTestNormalizer(nil)
	raw := rawPlan(t, `{"type": "FILTER", "operation": "list", "time_range": {"type": "ABSOLUTE", "granularity": "month", "from": {"year": 2025, "month": 5}, "to": {"year": 2024, "month": 1}}}`)
	_, err := n.Normalize(context.Background(), raw, "bills from may 2025 to jan 2024")
	if !errors.Is(err, common.ErrUnsupportedTimeRange) {
		t.Fatalf("Normalize() error = %v, want unsupported time range", err)
	}
}
