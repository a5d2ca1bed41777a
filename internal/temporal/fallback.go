package temporal

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	lastNMonthsRe = regexp.MustCompile(`(?i)\blast\s+(\d+)\s+months?\b`)
	lastMonthRe   = regexp.MustCompile(`(?i)\blast\s+month\b`)
)

// Fallback maps a few literal phrases to a TimeRange when extraction produced
// nothing usable. It returns nil when no phrase matches.
func Fallback(text string) *TimeRange {
	q := strings.TrimSpace(text)
	if m := lastNMonthsRe.FindStringSubmatch(q); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n >= 1 {
			return &TimeRange{
				Type:        RangeRelative,
				From:        Relative{Unit: UnitMonth, Offset: -n},
				To:          Relative{Unit: UnitMonth, Offset: -1},
				Granularity: UnitMonth,
			}
		}
	}
	if lastMonthRe.MatchString(q) {
		return &TimeRange{
			Type:        RangeRelative,
			From:        Relative{Unit: UnitMonth, Offset: -1},
			To:          Relative{Unit: UnitMonth, Offset: -1},
			Granularity: UnitMonth,
		}
	}
	return nil
}
