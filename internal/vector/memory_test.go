package vector

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/bills-assistant/internal/common"
	"github.com/joseph-ayodele/bills-assistant/internal/entity"
)

func TestMemoryStoreSearch(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(slog.New(slog.DiscardHandler))
	docs := []Document{
		{BillID: "b1", UserID: "u1", Category: "Medical", Text: "Apollo Hospital consultation fee"},
		{BillID: "b2", UserID: "u1", Category: "Medical", Text: "City Pharmacy paracetamol"},
		{BillID: "b3", UserID: "u1", Category: "Grocery", Text: "Fresh Mart rice and dal"},
		{BillID: "b4", UserID: "u2", Category: "Medical", Text: "Apollo Hospital surgery"},
	}
	for _, d := range docs {
		if err := s.Index(ctx, d); err != nil {
			t.Fatalf("Index(%s) error = %v", d.BillID, err)
		}
	}

	tests := []struct {
		name   string
		query  string
		filter Filter
		topK   int
		want   []string
	}{
		{name: "best match first", query: "apollo hospital visit", filter: Filter{UserID: "u1"}, topK: 5, want: []string{"b1", "b2", "b3"}},
		{name: "category scope", query: "rice", filter: Filter{UserID: "u1", Category: "medical"}, topK: 5, want: []string{"b1", "b2"}},
		{name: "top k", query: "fresh mart", filter: Filter{UserID: "u1"}, topK: 1, want: []string{"b3"}},
		{name: "other user", query: "apollo", filter: Filter{UserID: "u2"}, topK: 5, want: []string{"b4"}},
		{name: "unknown user", query: "apollo", filter: Filter{UserID: "u9"}, topK: 5, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Search(ctx, tt.query, tt.filter, tt.topK)
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			ids := []string{}
			for _, p := range got {
				ids = append(ids, p.BillID)
			}
			if diff := cmp.Diff(tt.want, ids); diff != "" {
				t.Errorf("Search() ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMemoryStoreReindexReplaces(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)
	_ = s.Index(ctx, Document{BillID: "b1", UserID: "u1", Text: "old text"})
	_ = s.Index(ctx, Document{BillID: "b1", UserID: "u1", Text: "new text"})

	got, err := s.Search(ctx, "text", Filter{UserID: "u1"}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Text != "new text" || got[0].Score != 1 {
		t.Errorf("Search() = %+v", got)
	}
}

func TestMemoryStoreRejectsUnscoped(t *testing.T) {
	s := NewMemoryStore(nil)
	if _, err := s.Search(context.Background(), "q", Filter{}, 5); !errors.Is(err, common.ErrInvalidInput) {
		t.Errorf("Search() error = %v, want invalid input", err)
	}
	if err := s.Index(context.Background(), Document{BillID: "b1"}); !errors.Is(err, common.ErrInvalidInput) {
		t.Errorf("Index() error = %v, want invalid input", err)
	}
}

func TestDocumentForAndJoinText(t *testing.T) {
	b := &entity.Bill{ID: "b1", UserID: "u1", Vendor: "Fresh Mart", Category: "Grocery", TotalAmount: decimal.RequireFromString("50")}
	if got := DocumentFor(b, "  "); got.Text != "Fresh Mart Grocery 50" || got.Category != "Grocery" {
		t.Errorf("DocumentFor() = %+v", got)
	}
	if got := DocumentFor(b, "raw bill text"); got.Text != "raw bill text" {
		t.Errorf("DocumentFor() with text = %+v", got)
	}
	if got := JoinText([]Passage{{Text: "a"}, {Text: "b"}}); got != "a\nb" {
		t.Errorf("JoinText() = %q", got)
	}
}
