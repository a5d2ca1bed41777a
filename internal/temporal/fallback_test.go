package temporal

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFallback(t *testing.T) {
	lastMonth := &TimeRange{Type: RangeRelative, Granularity: UnitMonth,
		From: Relative{Unit: UnitMonth, Offset: -1}, To: Relative{Unit: UnitMonth, Offset: -1}}
	lastN := func(n int) *TimeRange {
		return &TimeRange{Type: RangeRelative, Granularity: UnitMonth,
			From: Relative{Unit: UnitMonth, Offset: -n}, To: Relative{Unit: UnitMonth, Offset: -1}}
	}

	tests := []struct {
		text string
		want *TimeRange
	}{
		{"total spent last month", lastMonth},
		{"Total bill for LAST MONTH?", lastMonth},
		{"grocery bills in the last 3 months", lastN(3)},
		{"last 12 month spend", lastN(12)},
		{"last 0 months", nil},
		{"show my bills", nil},
		{"last monthly invoice", nil},
		{"yesterday", nil},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Fallback(tt.text)); diff != "" {
				t.Errorf("Fallback(%q) mismatch (-want +got):\n%s", tt.text, diff)
			}
		})
	}
}

func TestFallbackResolvesToCompletedMonths(t *testing.T) {
	w, err := fixedResolver().Resolve(Fallback("spend over the last 3 months"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	want := &Window{Start: utc(2025, 12, 1, 0, 0, 0), End: utc(2026, 2, 28, 23, 59, 59)}
	if diff := cmp.Diff(want, w); diff != "" {
		t.Errorf("Resolve() mismatch (-want +got):\n%s", diff)
	}
}
