// Package vector defines the retrieval side of the assistant: bill text is indexed per
// user and searched with an optional category filter.
package vector

import (
	"context"
	"strings"

	"github.com/joseph-ayodele/bills-assistant/internal/entity"
)

// Filter scopes a search. UserID is mandatory; Category is matched exactly.
type Filter struct {
	UserID   string
	Category string
}

// Passage is one search hit.
type Passage struct {
	BillID string
	Text   string
	Score  float64
}

// Document is what gets indexed for a bill.
type Document struct {
	BillID   string
	UserID   string
	Category string
	Text     string
}

type Searcher interface {
	Search(ctx context.Context, query string, filter Filter, topK int) ([]Passage, error)
}

type Indexer interface {
	Index(ctx context.Context, doc Document) error
}

// Store is a backend that can both index and search.
type Store interface {
	Searcher
	Indexer
}

// DocumentFor builds the index document of a bill. Empty text falls back to the bill's
// summary line.
func DocumentFor(b *entity.Bill, text string) Document {
	if strings.TrimSpace(text) == "" {
		text = b.IndexText()
	}
	return Document{BillID: b.ID, UserID: b.UserID, Category: b.Category, Text: text}
}

// JoinText concatenates passage texts, one per line, as answer context.
func JoinText(passages []Passage) string {
	parts := make([]string, 0, len(passages))
	for _, p := range passages {
		parts = append(parts, p.Text)
	}
	return strings.Join(parts, "\n")
}
