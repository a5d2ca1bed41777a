package temporal

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/bills-assistant/internal/common"
)

// ParseCandidate converts an untrusted planner value into a TimeRange. It accepts the
// map produced by decoding planner JSON, a *TimeRange, or raw JSON bytes. Every shape
// outside the closed set fails with an InvalidTimeExpression error.
func ParseCandidate(raw any) (*TimeRange, error) {
	switch v := raw.(type) {
	case nil:
		return nil, common.InvalidTimeExpression("time range is missing")
	case *TimeRange:
		if v == nil {
			return nil, common.InvalidTimeExpression("time range is missing")
		}
		return NewTimeRange(v.Type, v.From, v.To, v.Granularity)
	case json.RawMessage:
		return DecodeCandidate(v)
	case []byte:
		return DecodeCandidate(v)
	case string:
		return nil, common.InvalidTimeExpression("time range given as bare string %q", v)
	case map[string]any:
		return parseRangeMap(v)
	default:
		return nil, common.InvalidTimeExpression("time range has unsupported shape %T", raw)
	}
}

// DecodeCandidate parses planner JSON into a TimeRange.
func DecodeCandidate(data []byte) (*TimeRange, error) {
	var m map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return nil, common.NewAppError(common.CodeInvalidTimeExpression, "time range is not a JSON object", common.ErrInvalidTimeExpression)
	}
	return parseRangeMap(m)
}

func (tr *TimeRange) MarshalJSON() ([]byte, error) {
	return json.Marshal(tr.Candidate())
}

func (tr *TimeRange) UnmarshalJSON(data []byte) error {
	parsed, err := DecodeCandidate(data)
	if err != nil {
		return err
	}
	*tr = *parsed
	return nil
}

func parseRangeMap(m map[string]any) (*TimeRange, error) {
	typStr, ok := m["type"].(string)
	if !ok || typStr == "" {
		return nil, common.InvalidTimeExpression("time range type is required")
	}
	typ, ok := parseRangeType(strings.ToUpper(strings.TrimSpace(typStr)))
	if !ok {
		return nil, common.InvalidTimeExpression("unknown time range type %q", typStr)
	}
	granStr, _ := m["granularity"].(string)
	granStr = strings.ToLower(strings.TrimSpace(granStr))
	if granStr == "" {
		return nil, common.InvalidTimeExpression("time range granularity is required")
	}
	gran, ok := parseUnit(granStr)
	if !ok {
		return nil, common.InvalidTimeExpression("unknown granularity %q", granStr)
	}
	if typ == RangeNone {
		return NewTimeRange(typ, nil, nil, gran)
	}

	from, err := parsePart(m["from"], "from")
	if err != nil {
		return nil, err
	}
	to, err := parsePart(m["to"], "to")
	if err != nil {
		return nil, err
	}
	return NewTimeRange(typ, from, to, gran)
}

// parsePart returns nil for an absent side.
func parsePart(raw any, side string) (DatePart, error) {
	if raw == nil {
		return nil, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, common.InvalidTimeExpression("%s has unsupported shape %T", side, raw)
	}
	if len(m) == 0 {
		return nil, nil
	}

	year, hasYear, err := intField(m, "year")
	if err != nil {
		return nil, err
	}
	month, _, err := intField(m, "month")
	if err != nil {
		return nil, err
	}
	day, _, err := intField(m, "day")
	if err != nil {
		return nil, err
	}

	relRaw, hasRel := m["relative"]
	if !hasRel || relRaw == nil {
		if !hasYear {
			return nil, common.InvalidTimeExpression("%s: absolute date requires a year", side)
		}
		return NewAbsolute(year, month, day)
	}

	relMap, ok := relRaw.(map[string]any)
	if !ok {
		return nil, common.InvalidTimeExpression("%s.relative has unsupported shape %T", side, relRaw)
	}
	unitStr, _ := relMap["unit"].(string)
	unitStr = strings.ToLower(strings.TrimSpace(unitStr))
	if unitStr == "" {
		return nil, common.InvalidTimeExpression("%s.relative requires a unit", side)
	}
	offset, hasOffset, err := intField(relMap, "offset")
	if err != nil {
		return nil, err
	}
	if !hasOffset {
		return nil, common.InvalidTimeExpression("%s.relative requires an offset", side)
	}
	rel, err := NewRelative(Unit(unitStr), offset)
	if err != nil {
		return nil, err
	}
	if hasYear {
		return nil, common.InvalidTimeExpression("%s mixes an absolute year with a relative offset", side)
	}
	if month == 0 {
		if day != 0 {
			return nil, common.InvalidTimeExpression("%s: relative day needs an explicit month", side)
		}
		return rel, nil
	}
	return NewHybrid(rel, month, day)
}

// intField reads an integer leniently: JSON numbers, Go ints and numeric strings.
// A missing or null key reports ok=false.
func intField(m map[string]any, key string) (int, bool, error) {
	raw, present := m[key]
	if !present || raw == nil {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case int:
		return v, true, nil
	case int32:
		return int(v), true, nil
	case int64:
		return int(v), true, nil
	case float64:
		if v != math.Trunc(v) {
			return 0, false, common.InvalidTimeExpression("%s must be an integer, got %v", key, v)
		}
		return int(v), true, nil
	case json.Number:
		n, err := strconv.Atoi(v.String())
		if err != nil {
			return 0, false, common.InvalidTimeExpression("%s must be an integer, got %q", key, v.String())
		}
		return n, true, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false, nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, false, common.InvalidTimeExpression("%s must be an integer, got %q", key, v)
		}
		return n, true, nil
	default:
		return 0, false, common.InvalidTimeExpression("%s must be an integer, got %T", key, raw)
	}
}
