package vector

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"unicode"

	"github.com/joseph-ayodele/bills-assistant/internal/common"
)

// MemoryStore is a process-local backend scoring passages by term overlap with the
// query. It serves tests and single-node local runs.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[string]Document
	logger *slog.Logger
}

func NewMemoryStore(logger *slog.Logger) *MemoryStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryStore{docs: make(map[string]Document), logger: logger}
}

// Index adds or replaces the document of a bill.
func (s *MemoryStore) Index(ctx context.Context, doc Document) error {
	if doc.BillID == "" || doc.UserID == "" {
		return common.InvalidInput("index document needs bill_id and user_id")
	}
	s.mu.Lock()
	s.docs[doc.BillID] = doc
	s.mu.Unlock()
	common.LoggerFrom(ctx, s.logger).Debug("vector.memory.index", "bill_id", doc.BillID)
	return nil
}

func (s *MemoryStore) Search(ctx context.Context, query string, filter Filter, topK int) ([]Passage, error) {
	if filter.UserID == "" {
		return nil, common.InvalidInput("vector search requires a user_id")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	terms := tokenize(query)

	s.mu.RLock()
	out := make([]Passage, 0, len(s.docs))
	for _, d := range s.docs {
		if d.UserID != filter.UserID {
			continue
		}
		if filter.Category != "" && !strings.EqualFold(d.Category, filter.Category) {
			continue
		}
		out = append(out, Passage{BillID: d.BillID, Text: d.Text, Score: overlap(terms, tokenize(d.Text))})
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b Passage) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.BillID, b.BillID)
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// overlap is the share of query terms present in the document.
func overlap(query, doc []string) float64 {
	if len(query) == 0 {
		return 0
	}
	hits := 0
	for _, q := range query {
		if slices.Contains(doc, q) {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}
