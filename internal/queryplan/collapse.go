package queryplan

import (
	"regexp"

	"github.com/joseph-ayodele/bills-assistant/internal/temporal"
)

var rangeWordsRe = regexp.MustCompile(`(?i)\b(to|till|until|upto|between|from)\b`)

// CollapseSingleDay rewrites an ABSOLUTE day pair inside one month into a single-day
// range on the later date when the query text names no range. Classifiers tend to
// emit an explicit "to" for a single date. Any other range is returned unchanged.
func CollapseSingleDay(tr *temporal.TimeRange, query string) *temporal.TimeRange {
	if tr == nil || tr.Type != temporal.RangeAbsolute {
		return tr
	}
	from, ok := tr.From.(temporal.Absolute)
	if !ok || from.Day == 0 {
		return tr
	}
	to, ok := tr.To.(temporal.Absolute)
	if !ok || to.Day == 0 {
		return tr
	}
	if from.Year != to.Year || from.Month != to.Month {
		return tr
	}
	if rangeWordsRe.MatchString(query) {
		return tr
	}
	return &temporal.TimeRange{
		Type:        temporal.RangeAbsolute,
		From:        to,
		Granularity: temporal.UnitDay,
	}
}
