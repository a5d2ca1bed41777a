// Package queryplan validates and repairs planner output into a QueryPlan whose time
// constraint is fully resolved.
package queryplan

import (
	"context"
	"sort"

	"github.com/joseph-ayodele/bills-assistant/constants"
	"github.com/joseph-ayodele/bills-assistant/internal/temporal"
)

// TimeExtractor is the semantic time extraction collaborator. A nil candidate with a
// nil error means nothing was found.
type TimeExtractor interface {
	ExtractTime(ctx context.Context, text string) (map[string]any, error)
}

// Filters holds the top-level scalar bill predicates. BillDate is the only temporal
// predicate and is always a resolved window.
type Filters struct {
	Fields   map[string]any
	BillDate *temporal.Window
}

// Keys returns the scalar filter keys in a stable order.
func (f Filters) Keys() []string {
	keys := make([]string, 0, len(f.Fields))
	for k := range f.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// QueryPlan is the validated intent for a single request.
type QueryPlan struct {
	Type      constants.QueryType
	Operation constants.Operation
	Filters   Filters
	Entities  map[string]string
	TimeRange *temporal.TimeRange
	NeedsRAG  bool
}

// Item is the item-description pattern, empty for bill-level queries.
func (p *QueryPlan) Item() string {
	return p.Entities["item"]
}

// Category scopes retrieval. The entity wins over a category filter.
func (p *QueryPlan) Category() string {
	if c := p.Entities["category"]; c != "" {
		return c
	}
	if c, ok := p.Filters.Fields["category"].(string); ok {
		return c
	}
	return ""
}

// Raw renders the plan back into planner shape. Normalizing the result yields an
// identical plan.
func (p *QueryPlan) Raw() map[string]any {
	filters := make(map[string]any, len(p.Filters.Fields)+1)
	for k, v := range p.Filters.Fields {
		filters[k] = v
	}
	if p.Filters.BillDate != nil {
		filters["bill_date"] = p.Filters.BillDate.Map()
	}
	entities := make(map[string]any, len(p.Entities))
	for k, v := range p.Entities {
		entities[k] = v
	}
	var tr any
	if p.TimeRange != nil {
		tr = p.TimeRange.Candidate()
	}
	return map[string]any{
		"type":       string(p.Type),
		"operation":  string(p.Operation),
		"filters":    filters,
		"entities":   entities,
		"time_range": tr,
		"needs_rag":  p.NeedsRAG,
	}
}
