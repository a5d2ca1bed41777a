package temporal

import "time"

// DaysIn returns the number of days in the month, proleptic Gregorian.
func DaysIn(year, month int) int {
	// Day 0 of the following month normalizes to the last day of this one.
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ShiftMonth moves (year, month) by offset months, carrying into the year.
func ShiftMonth(year, month, offset int) (int, int) {
	total := year*12 + (month - 1) + offset
	y := floorDiv(total, 12)
	return y, total - y*12 + 1
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// MonthStart is 00:00:00 UTC on the first day of the month.
func MonthStart(year, month int) time.Time {
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
}

// MonthEnd is 23:59:59 UTC on the last day of the month.
func MonthEnd(year, month int) time.Time {
	return time.Date(year, time.Month(month), DaysIn(year, month), 23, 59, 59, 0, time.UTC)
}

func YearStart(year int) time.Time {
	return time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
}

func YearEnd(year int) time.Time {
	return time.Date(year, time.December, 31, 23, 59, 59, 0, time.UTC)
}

func DayStart(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

func DayEnd(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 23, 59, 59, 0, time.UTC)
}

// AddMonths shifts t by n months keeping the time of day. The day of month is
// clamped to the target month's length instead of overflowing, so Mar 31 minus one
// month is the last day of February.
func AddMonths(t time.Time, n int) time.Time {
	y, m := ShiftMonth(t.Year(), int(t.Month()), n)
	d := t.Day()
	if last := DaysIn(y, m); d > last {
		d = last
	}
	return time.Date(y, time.Month(m), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// AddYears shifts t by n years with the same clamping as AddMonths (Feb 29 to Feb 28).
func AddYears(t time.Time, n int) time.Time {
	return AddMonths(t, 12*n)
}

func sameDate(a, b Absolute) bool {
	return a.Year == b.Year && a.Month == b.Month && a.Day == b.Day
}
