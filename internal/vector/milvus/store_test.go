package milvus

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/cloudwego/eino/components/indexer"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"github.com/google/go-cmp/cmp"

	"github.com/joseph-ayodele/bills-assistant/internal/common"
	"github.com/joseph-ayodele/bills-assistant/internal/vector"
)

type fakeIndexer struct {
	stored []*schema.Document
	err    error
}

func (f *fakeIndexer) Store(_ context.Context, docs []*schema.Document, _ ...indexer.Option) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.stored = append(f.stored, docs...)
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids, nil
}

type fakeRetriever struct {
	query string
	opts  []retriever.Option
	docs  []*schema.Document
	err   error
}

func (f *fakeRetriever) Retrieve(_ context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	f.query, f.opts = query, opts
	return f.docs, f.err
}

type fakeDeleter struct{ exprs []string }

func (f *fakeDeleter) Delete(_ context.Context, _, _ string, expr string) error {
	f.exprs = append(f.exprs, expr)
	return nil
}

func TestBuildExpr(t *testing.T) {
	tests := []struct {
		filter vector.Filter
		want   string
	}{
		{vector.Filter{UserID: "u1"}, `user_id == "u1"`},
		{vector.Filter{UserID: "u1", Category: "Medical"}, `user_id == "u1" && category == "Medical"`},
		{vector.Filter{UserID: `u"1`}, `user_id == "u\"1"`},
	}
	for _, tt := range tests {
		if got := BuildExpr(tt.filter); got != tt.want {
			t.Errorf("BuildExpr(%+v) = %s, want %s", tt.filter, got, tt.want)
		}
	}
}

func TestIndexReplacesRow(t *testing.T) {
	idx, del := &fakeIndexer{}, &fakeDeleter{}
	s := NewWith("bills", idx, &fakeRetriever{}, del, slog.New(slog.DiscardHandler))

	doc := vector.Document{BillID: "b1", UserID: "u1", Category: "Grocery", Text: "Fresh Mart Grocery 50"}
	if err := s.Index(context.Background(), doc); err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	if diff := cmp.Diff([]string{`id in ["b1"]`}, del.exprs); diff != "" {
		t.Errorf("delete exprs mismatch (-want +got):\n%s", diff)
	}
	if len(idx.stored) != 1 || idx.stored[0].ID != "b1" || idx.stored[0].MetaData["user_id"] != "u1" {
		t.Errorf("stored = %+v", idx.stored)
	}

	if err := s.Index(context.Background(), vector.Document{BillID: "b2"}); !errors.Is(err, common.ErrInvalidInput) {
		t.Errorf("Index() without user error = %v", err)
	}

	s = NewWith("bills", &fakeIndexer{err: errors.New("down")}, &fakeRetriever{}, nil, nil)
	if err := s.Index(context.Background(), doc); !errors.Is(err, common.ErrCollaboratorUnavailable) {
		t.Errorf("Index() error = %v, want collaborator unavailable", err)
	}
}

func TestSearch(t *testing.T) {
	retr := &fakeRetriever{docs: []*schema.Document{
		(&schema.Document{ID: "b1", Content: "Apollo Hospital Medical 1200"}).WithScore(0.12),
		(&schema.Document{ID: "b2", Content: "City Pharmacy Medical 120.5"}).WithScore(0.4),
	}}
	s := NewWith("bills", &fakeIndexer{}, retr, nil, nil)

	got, err := s.Search(context.Background(), "hospital visits", vector.Filter{UserID: "u1", Category: "Medical"}, 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	want := []vector.Passage{
		{BillID: "b1", Text: "Apollo Hospital Medical 1200", Score: 0.12},
		{BillID: "b2", Text: "City Pharmacy Medical 120.5", Score: 0.4},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Search() mismatch (-want +got):\n%s", diff)
	}
	if retr.query != "hospital visits" || len(retr.opts) != 2 {
		t.Errorf("retriever called with %q and %d options", retr.query, len(retr.opts))
	}
	if topK := retriever.GetCommonOptions(nil, retr.opts...).TopK; topK == nil || *topK != 5 {
		t.Errorf("top k option = %v", topK)
	}

	if _, err := s.Search(context.Background(), "q", vector.Filter{}, 5); !errors.Is(err, common.ErrInvalidInput) {
		t.Errorf("Search() without user error = %v", err)
	}
	retr.err = errors.New("timeout")
	if _, err := s.Search(context.Background(), "q", vector.Filter{UserID: "u1"}, 5); !errors.Is(err, common.ErrCollaboratorUnavailable) {
		t.Errorf("Search() error = %v, want collaborator unavailable", err)
	}
}
