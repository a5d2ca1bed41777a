package pipeline

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Run evaluates stages over docs. Input documents are not modified.
func Run(docs []Document, stages []Stage) ([]Row, error) {
	cur := docs
	for _, st := range stages {
		var err error
		switch s := st.(type) {
		case Match:
			cur = runMatch(cur, s)
		case Unwind:
			cur = runUnwind(cur, s)
		case Group:
			cur, err = runGroup(cur, s)
		case Count:
			cur = runCount(cur, s)
		case Project:
			cur = runProject(cur, s)
		case Sort:
			cur = runSort(cur, s)
		case Limit:
			if s.N >= 0 && len(cur) > s.N {
				cur = cur[:s.N]
			}
		default:
			return nil, fmt.Errorf("pipeline: unknown stage %T", st)
		}
		if err != nil {
			return nil, err
		}
	}
	if cur == nil {
		return []Row{}, nil
	}
	return cur, nil
}

func runMatch(docs []Document, s Match) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if Matches(d, s.Conditions) {
			out = append(out, d)
		}
	}
	return out
}

// Matches reports whether d satisfies every condition. Array-valued paths match when
// any element does.
func Matches(d Document, conds []Condition) bool {
	for _, c := range conds {
		if !matchOne(d, c) {
			return false
		}
	}
	return true
}

func matchOne(d Document, c Condition) bool {
	switch c := c.(type) {
	case Eq:
		for _, v := range lookupAll(d, c.Field) {
			if equalValues(v, c.Value) {
				return true
			}
		}
		return false
	case Contains:
		pattern := strings.ToLower(c.Pattern)
		for _, v := range lookupAll(d, c.Field) {
			if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), pattern) {
				return true
			}
		}
		return false
	case Between:
		for _, v := range lookupAll(d, c.Field) {
			if t, ok := asTime(v); ok && c.Window.Contains(t) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func runUnwind(docs []Document, s Unwind) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		raw, ok := lookup(d, s.Field)
		if !ok {
			continue
		}
		for _, el := range asSlice(raw) {
			row := make(Document, len(d))
			for k, v := range d {
				row[k] = v
			}
			setPath(row, s.Field, el)
			out = append(out, row)
		}
	}
	return out
}

type groupState struct {
	key    any
	sums   map[string]decimal.Decimal
	counts map[string]int
}

func runGroup(docs []Document, s Group) ([]Document, error) {
	var order []string
	groups := map[string]*groupState{}
	for _, d := range docs {
		var key any
		if s.By != nil {
			raw, _ := lookup(d, s.By.Field)
			key = bucket(raw, s.By.Bucket)
		}
		id := fmt.Sprintf("%T:%v", key, key)
		g, ok := groups[id]
		if !ok {
			g = &groupState{key: key, sums: map[string]decimal.Decimal{}, counts: map[string]int{}}
			groups[id] = g
			order = append(order, id)
		}
		for _, acc := range s.Accumulators {
			switch acc.Op {
			case AccSum:
				total := g.sums[acc.As]
				for _, v := range lookupAll(d, acc.Field) {
					if n, ok := toDecimal(v); ok {
						total = total.Add(n)
					}
				}
				g.sums[acc.As] = total
			case AccCount:
				g.counts[acc.As]++
			default:
				return nil, fmt.Errorf("pipeline: unknown accumulator %q", acc.Op)
			}
		}
	}

	out := make([]Document, 0, len(order))
	for _, id := range order {
		g := groups[id]
		row := Document{"_id": g.key}
		for _, acc := range s.Accumulators {
			switch acc.Op {
			case AccSum:
				row[acc.As] = g.sums[acc.As].InexactFloat64()
			case AccCount:
				row[acc.As] = g.counts[acc.As]
			}
		}
		out = append(out, row)
	}
	return out, nil
}

func bucket(v any, b Bucket) any {
	if b != BucketMonth {
		return v
	}
	if t, ok := asTime(v); ok {
		return t.UTC().Format("2006-01")
	}
	return nil
}

func runCount(docs []Document, s Count) []Document {
	if len(docs) == 0 {
		return []Document{}
	}
	return []Document{{s.As: len(docs)}}
}

func runProject(docs []Document, s Project) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		row := make(Document, len(s.Fields))
		for _, f := range s.Fields {
			if v, ok := lookup(d, f.Source); ok {
				row[f.Name] = v
			}
		}
		out = append(out, row)
	}
	return out
}

func runSort(docs []Document, s Sort) []Document {
	out := make([]Document, len(docs))
	copy(out, docs)
	sort.SliceStable(out, func(i, j int) bool {
		a, _ := lookup(out[i], s.Field)
		b, _ := lookup(out[j], s.Field)
		c := compareValues(a, b)
		if s.Desc {
			return c > 0
		}
		return c < 0
	})
	return out
}

// lookup follows a dotted path without flattening arrays.
func lookup(d Document, path string) (any, bool) {
	var cur any = d
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// lookupAll follows a dotted path, fanning out through arrays.
func lookupAll(d Document, path string) []any {
	cur := []any{d}
	for _, part := range strings.Split(path, ".") {
		var next []any
		for _, c := range cur {
			for _, el := range asSlice(c) {
				m, ok := asMap(el)
				if !ok {
					continue
				}
				if v, ok := m[part]; ok {
					next = append(next, v)
				}
			}
		}
		cur = next
	}
	var out []any
	for _, c := range cur {
		out = append(out, asSlice(c)...)
	}
	return out
}

func setPath(d Document, path string, v any) {
	parts := strings.Split(path, ".")
	cur := d
	for _, p := range parts[:len(parts)-1] {
		next, ok := asMap(cur[p])
		if !ok {
			next = map[string]any{}
		} else {
			cp := make(map[string]any, len(next))
			for k, val := range next {
				cp[k] = val
			}
			next = cp
		}
		cur[p] = next
		cur = next
	}
	cur[parts[len(parts)-1]] = v
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// asSlice returns arrays as their elements and scalars as a single element.
func asSlice(v any) []any {
	switch x := v.(type) {
	case nil:
		return nil
	case []any:
		return x
	case []map[string]any:
		out := make([]any, len(x))
		for i, m := range x {
			out[i] = m
		}
		return out
	default:
		return []any{v}
	}
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, !t.IsZero()
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		return parsed, err == nil
	default:
		return time.Time{}, false
	}
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case *decimal.Decimal:
		if n == nil {
			return decimal.Zero, false
		}
		return *n, true
	case float64:
		return decimal.NewFromFloat(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int32:
		return decimal.NewFromInt32(n), true
	case int64:
		return decimal.NewFromInt(n), true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}

func equalValues(a, b any) bool {
	if da, ok := toDecimal(a); ok {
		db, ok := toDecimal(b)
		return ok && da.Equal(db)
	}
	if ta, ok := asTime(a); ok {
		if _, isString := a.(string); !isString {
			tb, ok := asTime(b)
			return ok && ta.Equal(tb)
		}
	}
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	}
	return false
}

// compareValues orders missing values first, then numbers, times and strings.
func compareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}
	switch ra {
	case 1:
		da, _ := toDecimal(a)
		db, _ := toDecimal(b)
		return da.Cmp(db)
	case 2:
		ta, _ := asTime(a)
		tb, _ := asTime(b)
		return ta.Compare(tb)
	case 3:
		return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
	return 0
}

func rank(v any) int {
	if v == nil {
		return 0
	}
	if _, ok := toDecimal(v); ok {
		return 1
	}
	if _, ok := v.(string); !ok {
		if _, ok := asTime(v); ok {
			return 2
		}
	}
	return 3
}
