// Package pipeline compiles query plans into aggregation stages over bill documents
// and evaluates those stages in process.
package pipeline

import (
	"fmt"
	"strings"

	"github.com/joseph-ayodele/bills-assistant/internal/temporal"
)

// Document is one bill, or one unwound bill row, keyed by field name.
type Document = map[string]any

// Row is a result row produced by a pipeline.
type Row = map[string]any

// Stage is one step of a pipeline. The set of implementations is closed.
type Stage interface {
	stage()
	String() string
}

// Condition is one predicate inside a Match stage. The set is closed.
type Condition interface {
	condition()
	String() string
}

// Eq matches values equal to Value. Numbers compare numerically.
type Eq struct {
	Field string
	Value any
}

// Contains is a case-insensitive literal substring match.
type Contains struct {
	Field   string
	Pattern string
}

// Between matches instants inside Window, bounds included.
type Between struct {
	Field  string
	Window temporal.Window
}

// Match keeps documents satisfying every condition.
type Match struct {
	Conditions []Condition
}

// Unwind emits one document per element of the array at Field. Documents where the
// field is missing or empty are dropped.
type Unwind struct {
	Field string
}

// Bucket coarsens a group key.
type Bucket string

const (
	BucketNone  Bucket = ""
	BucketMonth Bucket = "month"
)

// GroupKey selects the grouping field. A nil key puts every document in one group.
type GroupKey struct {
	Field  string
	Bucket Bucket
}

type AccOp string

const (
	AccSum   AccOp = "sum"
	AccCount AccOp = "count"
)

type Accumulator struct {
	As    string
	Op    AccOp
	Field string
}

// Group folds documents into one row per key. The key is emitted as "_id".
type Group struct {
	By           *GroupKey
	Accumulators []Accumulator
}

// Count replaces the stream with a single row {As: n}; an empty stream yields nothing.
type Count struct {
	As string
}

type Projection struct {
	Name   string
	Source string
}

// Project keeps only the listed fields, renaming Source to Name.
type Project struct {
	Fields []Projection
}

type Sort struct {
	Field string
	Desc  bool
}

type Limit struct {
	N int
}

func (Match) stage()   {}
func (Unwind) stage()  {}
func (Group) stage()   {}
func (Count) stage()   {}
func (Project) stage() {}
func (Sort) stage()    {}
func (Limit) stage()   {}

func (Eq) condition()       {}
func (Contains) condition() {}
func (Between) condition()  {}

func (c Eq) String() string       { return fmt.Sprintf("%s == %v", c.Field, c.Value) }
func (c Contains) String() string { return fmt.Sprintf("%s ~* %q", c.Field, c.Pattern) }
func (c Between) String() string  { return fmt.Sprintf("%s in %s", c.Field, c.Window) }

func (s Match) String() string {
	parts := make([]string, len(s.Conditions))
	for i, c := range s.Conditions {
		parts[i] = c.String()
	}
	return "$match{" + strings.Join(parts, ", ") + "}"
}

func (s Unwind) String() string { return "$unwind{" + s.Field + "}" }

func (s Group) String() string {
	key := "null"
	if s.By != nil {
		key = s.By.Field
		if s.By.Bucket != BucketNone {
			key += "/" + string(s.By.Bucket)
		}
	}
	accs := make([]string, len(s.Accumulators))
	for i, a := range s.Accumulators {
		accs[i] = fmt.Sprintf("%s=%s(%s)", a.As, a.Op, a.Field)
	}
	return "$group{_id=" + key + ", " + strings.Join(accs, ", ") + "}"
}

func (s Count) String() string { return "$count{" + s.As + "}" }

func (s Project) String() string {
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		if f.Name == f.Source {
			parts[i] = f.Name
		} else {
			parts[i] = f.Name + "=" + f.Source
		}
	}
	return "$project{" + strings.Join(parts, ", ") + "}"
}

func (s Sort) String() string {
	dir := 1
	if s.Desc {
		dir = -1
	}
	return fmt.Sprintf("$sort{%s: %d}", s.Field, dir)
}

func (s Limit) String() string { return fmt.Sprintf("$limit{%d}", s.N) }

// Describe renders stages for logs.
func Describe(stages []Stage) []string {
	out := make([]string, len(stages))
	for i, s := range stages {
		out[i] = s.String()
	}
	return out
}
