package temporal

import (
	"fmt"
	"time"

	"github.com/joseph-ayodele/bills-assistant/internal/common"
)

// Window is a resolved, inclusive UTC range. A zero Start or End leaves that side open.
type Window struct {
	Start time.Time `json:"gte"`
	End   time.Time `json:"lte"`
}

// Contains reports whether t falls inside the window, bounds included.
func (w Window) Contains(t time.Time) bool {
	if !w.Start.IsZero() && t.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && t.After(w.End) {
		return false
	}
	return true
}

// Map renders the window as the {gte, lte} range object carried in plan filters.
func (w Window) Map() map[string]any {
	m := make(map[string]any, 2)
	if !w.Start.IsZero() {
		m["gte"] = w.Start
	}
	if !w.End.IsZero() {
		m["lte"] = w.End
	}
	return m
}

func (w Window) String() string {
	f := func(t time.Time) string {
		if t.IsZero() {
			return "*"
		}
		return t.Format(time.RFC3339)
	}
	return fmt.Sprintf("[%s, %s]", f(w.Start), f(w.End))
}

// Resolver turns TimeRanges into Windows against an injected clock. It holds no
// mutable state and is safe for concurrent use.
type Resolver struct {
	now func() time.Time
}

// NewResolver returns a Resolver reading the clock from now; nil uses time.Now.
func NewResolver(now func() time.Time) *Resolver {
	if now == nil {
		now = time.Now
	}
	return &Resolver{now: now}
}

// Resolve returns nil when the range imposes no constraint.
func (r *Resolver) Resolve(tr *TimeRange) (*Window, error) {
	if tr == nil {
		return nil, nil
	}
	now := r.now().UTC()

	switch tr.Type {
	case RangeNone:
		return nil, nil
	case RangeRelative:
		return r.resolveRelative(tr, now)
	case RangeAbsolute:
		return resolveAbsoluteRange(tr)
	default:
		return nil, common.UnsupportedTimeRange("time range type %q", tr.Type)
	}
}

func (r *Resolver) resolveRelative(tr *TimeRange, now time.Time) (*Window, error) {
	switch from := tr.From.(type) {
	case Hybrid:
		year, err := hybridYear(from, now)
		if err != nil {
			return nil, err
		}
		return &Window{Start: MonthStart(year, from.Month), End: MonthEnd(year, from.Month)}, nil
	case Relative:
		if from.Unit == UnitMonth {
			sy, sm := ShiftMonth(now.Year(), int(now.Month()), from.Offset)
			ey, em := sy, sm
			// "last N months" covers N completed months and stops before the current one.
			if from.Offset < -1 {
				ey, em = ShiftMonth(now.Year(), int(now.Month()), -1)
			}
			return &Window{Start: MonthStart(sy, sm), End: MonthEnd(ey, em)}, nil
		}
	}

	if tr.From == nil && tr.To == nil {
		return nil, nil
	}
	start, err := partBound(tr.From, now, true)
	if err != nil {
		return nil, err
	}
	end, err := partBound(tr.To, now, false)
	if err != nil {
		return nil, err
	}
	return checkedWindow(start, end, tr)
}

func hybridYear(h Hybrid, now time.Time) (int, error) {
	switch h.Relative.Unit {
	case UnitYear:
		return now.Year() + h.Relative.Offset, nil
	case UnitMonth:
		y, _ := ShiftMonth(now.Year(), int(now.Month()), h.Relative.Offset)
		return y, nil
	default:
		return 0, common.UnsupportedTimeRange("hybrid anchor unit %q", h.Relative.Unit)
	}
}

// partBound resolves one side of a generic relative range. A nil part is open.
func partBound(p DatePart, now time.Time, start bool) (time.Time, error) {
	switch v := p.(type) {
	case nil:
		return time.Time{}, nil
	case Relative:
		switch v.Unit {
		case UnitDay:
			d := now.AddDate(0, 0, v.Offset)
			if start {
				return DayStart(d.Year(), int(d.Month()), d.Day()), nil
			}
			return DayEnd(d.Year(), int(d.Month()), d.Day()), nil
		case UnitMonth:
			d := AddMonths(now, v.Offset)
			if start {
				return MonthStart(d.Year(), int(d.Month())), nil
			}
			return MonthEnd(d.Year(), int(d.Month())), nil
		case UnitYear:
			d := AddYears(now, v.Offset)
			if start {
				return YearStart(d.Year()), nil
			}
			return YearEnd(d.Year()), nil
		default:
			return time.Time{}, common.UnsupportedTimeRange("relative unit %q", v.Unit)
		}
	case Hybrid:
		year, err := hybridYear(v, now)
		if err != nil {
			return time.Time{}, err
		}
		if start {
			return MonthStart(year, v.Month), nil
		}
		return MonthEnd(year, v.Month), nil
	case Absolute:
		if start {
			return absoluteStart(v), nil
		}
		return absoluteEnd(v), nil
	default:
		return time.Time{}, common.UnsupportedTimeRange("date part %T", p)
	}
}

func resolveAbsoluteRange(tr *TimeRange) (*Window, error) {
	from, ok := tr.From.(Absolute)
	if !ok {
		return nil, common.UnsupportedTimeRange("absolute range needs an absolute start, got %s", partString(tr.From))
	}

	var to *Absolute
	switch v := tr.To.(type) {
	case nil:
	case Absolute:
		to = &v
	default:
		return nil, common.UnsupportedTimeRange("absolute range cannot end at %s", partString(tr.To))
	}

	if to == nil || sameDate(from, *to) {
		return singlePoint(from, tr.Granularity), nil
	}
	return checkedWindow(absoluteStart(from), absoluteEnd(*to), tr)
}

// singlePoint picks the window of one calendar unit around from. A set day always
// wins over a coarser granularity.
func singlePoint(from Absolute, granularity Unit) *Window {
	switch {
	case from.Day != 0:
		return &Window{Start: DayStart(from.Year, from.Month, from.Day), End: DayEnd(from.Year, from.Month, from.Day)}
	case granularity == UnitYear || from.Month == 0:
		return &Window{Start: YearStart(from.Year), End: YearEnd(from.Year)}
	default:
		return &Window{Start: MonthStart(from.Year, from.Month), End: MonthEnd(from.Year, from.Month)}
	}
}

func absoluteStart(a Absolute) time.Time {
	month, day := a.Month, a.Day
	if month == 0 {
		month = 1
	}
	if day == 0 {
		day = 1
	}
	return DayStart(a.Year, month, day)
}

func absoluteEnd(a Absolute) time.Time {
	month, day := a.Month, a.Day
	if month == 0 {
		month = 12
	}
	if day == 0 {
		day = DaysIn(a.Year, month)
	}
	return DayEnd(a.Year, month, day)
}

func checkedWindow(start, end time.Time, tr *TimeRange) (*Window, error) {
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return nil, common.UnsupportedTimeRange("%s resolves to an inverted window", tr)
	}
	return &Window{Start: start, End: end}, nil
}
