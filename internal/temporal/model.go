// Package temporal models semantic time expressions found in bill queries and resolves
// them into concrete UTC windows.
package temporal

import (
	"fmt"

	"github.com/joseph-ayodele/bills-assistant/internal/common"
)

// RangeType tags a TimeRange.
type RangeType string

const (
	RangeAbsolute RangeType = "ABSOLUTE"
	RangeRelative RangeType = "RELATIVE"
	RangeNone     RangeType = "NONE"
)

// Unit is a calendar unit. It serves both as a relative offset unit and as the
// granularity of a range.
type Unit string

const (
	UnitDay   Unit = "day"
	UnitMonth Unit = "month"
	UnitYear  Unit = "year"
)

func parseRangeType(s string) (RangeType, bool) {
	switch RangeType(s) {
	case RangeAbsolute, RangeRelative, RangeNone:
		return RangeType(s), true
	}
	return "", false
}

func parseUnit(s string) (Unit, bool) {
	switch Unit(s) {
	case UnitDay, UnitMonth, UnitYear:
		return Unit(s), true
	}
	return "", false
}

// DatePart is one end of a TimeRange. The set of implementations is closed:
// Absolute, Relative and Hybrid.
type DatePart interface {
	datePart()
	// Candidate renders the part in the loosely-typed wire shape used by planners.
	Candidate() map[string]any
}

// Absolute is a calendar date. Month and Day are zero when unset.
type Absolute struct {
	Year  int
	Month int
	Day   int
}

// Relative is an offset from "now" in the given unit.
type Relative struct {
	Unit   Unit
	Offset int
}

// Hybrid is a relative year/month anchor combined with an explicit month,
// e.g. "last November". Day is carried but month precision is what resolves.
type Hybrid struct {
	Relative Relative
	Month    int
	Day      int
}

func (Absolute) datePart() {}
func (Relative) datePart() {}
func (Hybrid) datePart()   {}

// NewAbsolute validates an absolute calendar date.
func NewAbsolute(year, month, day int) (Absolute, error) {
	if year <= 0 {
		return Absolute{}, common.InvalidTimeExpression("absolute date requires a year")
	}
	if month < 0 || month > 12 {
		return Absolute{}, common.InvalidTimeExpression("month %d out of range", month)
	}
	if day != 0 {
		if month == 0 {
			return Absolute{}, common.InvalidTimeExpression("day %d given without a month", day)
		}
		if day < 1 || day > DaysIn(year, month) {
			return Absolute{}, common.InvalidTimeExpression("day %d out of range for %04d-%02d", day, year, month)
		}
	}
	return Absolute{Year: year, Month: month, Day: day}, nil
}

// NewRelative validates a relative offset.
func NewRelative(unit Unit, offset int) (Relative, error) {
	if _, ok := parseUnit(string(unit)); !ok {
		return Relative{}, common.InvalidTimeExpression("unknown relative unit %q", unit)
	}
	return Relative{Unit: unit, Offset: offset}, nil
}

// NewHybrid validates a relative anchor with an explicit month.
func NewHybrid(rel Relative, month, day int) (Hybrid, error) {
	if rel.Unit != UnitYear && rel.Unit != UnitMonth {
		return Hybrid{}, common.InvalidTimeExpression("hybrid date needs a year or month anchor, got %q", rel.Unit)
	}
	if month < 1 || month > 12 {
		return Hybrid{}, common.InvalidTimeExpression("hybrid month %d out of range", month)
	}
	if day < 0 || day > 31 {
		return Hybrid{}, common.InvalidTimeExpression("hybrid day %d out of range", day)
	}
	return Hybrid{Relative: rel, Month: month, Day: day}, nil
}

func (a Absolute) Candidate() map[string]any {
	m := map[string]any{"year": a.Year}
	if a.Month != 0 {
		m["month"] = a.Month
	}
	if a.Day != 0 {
		m["day"] = a.Day
	}
	return m
}

func (r Relative) Candidate() map[string]any {
	return map[string]any{"relative": map[string]any{"unit": string(r.Unit), "offset": r.Offset}}
}

func (h Hybrid) Candidate() map[string]any {
	m := h.Relative.Candidate()
	m["month"] = h.Month
	if h.Day != 0 {
		m["day"] = h.Day
	}
	return m
}

// TimeRange is a validated time expression. Build it with NewTimeRange or
// ParseCandidate; the zero value is not valid.
type TimeRange struct {
	Type        RangeType
	From        DatePart
	To          DatePart
	Granularity Unit
}

// NewTimeRange validates the tag and granularity. A NONE range never carries parts.
func NewTimeRange(typ RangeType, from, to DatePart, granularity Unit) (*TimeRange, error) {
	if _, ok := parseRangeType(string(typ)); !ok {
		return nil, common.InvalidTimeExpression("unknown time range type %q", typ)
	}
	if granularity == "" {
		return nil, common.InvalidTimeExpression("time range granularity is required")
	}
	if _, ok := parseUnit(string(granularity)); !ok {
		return nil, common.InvalidTimeExpression("unknown granularity %q", granularity)
	}
	if typ == RangeNone {
		from, to = nil, nil
	}
	return &TimeRange{Type: typ, From: from, To: to, Granularity: granularity}, nil
}

// NoneRange is the explicit "no time constraint" expression.
func NoneRange() *TimeRange {
	return &TimeRange{Type: RangeNone, Granularity: UnitYear}
}

// Candidate renders the range in the planner wire shape; ParseCandidate inverts it.
func (tr *TimeRange) Candidate() map[string]any {
	if tr == nil {
		return nil
	}
	m := map[string]any{
		"type":        string(tr.Type),
		"granularity": string(tr.Granularity),
		"from":        nil,
		"to":          nil,
	}
	if tr.From != nil {
		m["from"] = tr.From.Candidate()
	}
	if tr.To != nil {
		m["to"] = tr.To.Candidate()
	}
	return m
}

func (tr *TimeRange) String() string {
	if tr == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s(%s, from=%s, to=%s)", tr.Type, tr.Granularity, partString(tr.From), partString(tr.To))
}

func partString(p DatePart) string {
	switch v := p.(type) {
	case nil:
		return "-"
	case Absolute:
		switch {
		case v.Day != 0:
			return fmt.Sprintf("%04d-%02d-%02d", v.Year, v.Month, v.Day)
		case v.Month != 0:
			return fmt.Sprintf("%04d-%02d", v.Year, v.Month)
		default:
			return fmt.Sprintf("%04d", v.Year)
		}
	case Relative:
		return fmt.Sprintf("%+d%s", v.Offset, v.Unit)
	case Hybrid:
		return fmt.Sprintf("%+d%s@%02d", v.Relative.Offset, v.Relative.Unit, v.Month)
	default:
		return fmt.Sprintf("%T", p)
	}
}
