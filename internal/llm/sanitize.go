package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var reAmount = regexp.MustCompile(`-?\d+(\.\d+)?`)

// SanitizePlanJSON repairs the small deviations classifiers make so the plan can pass
// the plan schema:
// - upper-cases "type" and lower-cases "operation"
// - turns [] or "" filters/entities into null
// - drops unknown top-level keys
func SanitizePlanJSON(raw []byte, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize plan: decode: %w", err)
	}

	var changed []string
	if v, ok := m["type"].(string); ok {
		if up := strings.ToUpper(strings.TrimSpace(v)); up != v {
			m["type"] = up
			changed = append(changed, "type(case)")
		}
	}
	if v, ok := m["operation"].(string); ok {
		if low := strings.ToLower(strings.TrimSpace(v)); low != v {
			m["operation"] = low
			changed = append(changed, "operation(case)")
		}
	}
	for _, k := range []string{"filters", "entities"} {
		switch v := m[k].(type) {
		case []any:
			if len(v) == 0 {
				m[k] = nil
				changed = append(changed, k+"(empty_list)")
			}
		case string:
			if strings.TrimSpace(v) == "" {
				m[k] = nil
				changed = append(changed, k+"(empty)")
			}
		}
	}
	if v, ok := m["needs_rag"].(string); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			delete(m, "needs_rag")
		} else {
			m["needs_rag"] = b
		}
		changed = append(changed, "needs_rag(type)")
	}

	allowed := []string{"type", "operation", "entities", "filters", "time_range", "needs_rag"}
	for k := range maps.Clone(m) {
		if !slices.Contains(allowed, k) {
			delete(m, k)
			changed = append(changed, k+"(unknown)")
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, changed, fmt.Errorf("sanitize plan: encode: %w", err)
	}
	if len(changed) > 0 {
		logger.Warn("llm.classify.normalize_sanitize", "changed", changed)
	}
	return out, changed, nil
}

// SanitizeBillJSON normalizes a bill extraction reply:
// - renames item "name" to "description"
// - coerces money strings ("Rs. 12,500", "18%") to numbers
// - drops null or empty optionals
// - moves unknown keys into extra_data
func SanitizeBillJSON(raw []byte, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize bill: decode: %w", err)
	}

	dropped := make([]string, 0, 8)

	for _, k := range []string{"total_amount", "tax_amount"} {
		if _, ok := m[k]; !ok {
			continue
		}
		if n, ok := coerceNumber(m[k]); ok {
			m[k] = n
		} else {
			delete(m, k)
			dropped = append(dropped, k)
		}
	}

	for _, k := range []string{"vendor", "bill_no", "bill_date", "category", "currency", "payment_method"} {
		v, ok := m[k]
		if !ok {
			continue
		}
		s, isString := v.(string)
		if !isString {
			if n, isNum := v.(float64); isNum && k == "bill_no" {
				m[k] = strconv.FormatFloat(n, 'f', -1, 64)
				continue
			}
			delete(m, k)
			dropped = append(dropped, k+"(type)")
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" || strings.EqualFold(s, "null") {
			delete(m, k)
			dropped = append(dropped, k+"(empty)")
			continue
		}
		switch k {
		case "currency":
			s = strings.ToUpper(s)
		case "payment_method":
			s = strings.ToUpper(strings.ReplaceAll(s, " ", "_"))
		}
		m[k] = s
	}
	if c, ok := m["currency"].(string); ok && len(c) != 3 {
		delete(m, "currency")
		dropped = append(dropped, "currency(format)")
	}

	switch items := m["items"].(type) {
	case nil:
		delete(m, "items")
	case []any:
		clean := make([]any, 0, len(items))
		for _, it := range items {
			if item, ok := sanitizeItem(it); ok {
				clean = append(clean, item)
			} else {
				dropped = append(dropped, "items[]")
			}
		}
		m["items"] = clean
	default:
		delete(m, "items")
		dropped = append(dropped, "items(type)")
	}

	extra, _ := m["extra_data"].(map[string]any)
	if extra == nil {
		extra = map[string]any{}
	}
	known := []string{"vendor", "bill_no", "bill_date", "category", "total_amount", "tax_amount", "currency", "payment_method", "items", "extra_data"}
	for k, v := range maps.Clone(m) {
		if slices.Contains(known, k) {
			continue
		}
		if v != nil {
			extra[k] = v
		}
		delete(m, k)
	}
	if len(extra) > 0 {
		m["extra_data"] = extra
	} else {
		delete(m, "extra_data")
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, dropped, fmt.Errorf("sanitize bill: encode: %w", err)
	}
	if len(dropped) > 0 {
		logger.Warn("llm.extract.normalize_sanitize", "dropped", dropped)
	}
	return out, dropped, nil
}

func sanitizeItem(v any) (map[string]any, bool) {
	item, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	if _, has := item["description"]; !has {
		if name, ok := item["name"]; ok {
			item["description"] = name
		}
	}
	delete(item, "name")
	desc, _ := item["description"].(string)
	desc = strings.TrimSpace(desc)
	if desc == "" {
		return nil, false
	}
	out := map[string]any{"description": desc}
	for _, k := range []string{"amount", "quantity", "rate", "gst"} {
		if n, ok := coerceNumber(item[k]); ok {
			out[k] = n
		}
	}
	return out, true
}

// coerceNumber accepts numbers and numeric strings with currency noise, thousands
// separators or a trailing percent sign.
func coerceNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(t), ",", "")
		m := reAmount.FindString(s)
		if m == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(m, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
