package llm

// BuildPlanJSONSchema returns the JSON-Schema (draft 2020-12 subset) a classifier plan
// must satisfy. It checks shape only; the normalizer owns the closed vocabularies.
func BuildPlanJSONSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"type":       map[string]any{"type": "string", "minLength": 1},
			"operation":  map[string]any{"type": []any{"string", "null"}},
			"entities":   map[string]any{"type": []any{"object", "null"}},
			"filters":    map[string]any{"type": []any{"object", "null"}},
			"time_range": map[string]any{"type": []any{"object", "string", "null"}},
			"needs_rag":  map[string]any{"type": []any{"boolean", "null"}},
		},
		"required": []any{"type"},
	}
}

// BuildTimeRangeJSONSchema describes a time expression candidate.
func BuildTimeRangeJSONSchema() map[string]any {
	relative := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"unit":   map[string]any{"type": "string", "enum": []any{"day", "month", "year"}},
			"offset": map[string]any{"type": "integer"},
		},
		"required": []any{"unit", "offset"},
	}
	part := map[string]any{
		"type": []any{"object", "null"},
		"properties": map[string]any{
			"year":     map[string]any{"type": []any{"integer", "null"}, "minimum": 1},
			"month":    map[string]any{"type": []any{"integer", "null"}, "minimum": 1, "maximum": 12},
			"day":      map[string]any{"type": []any{"integer", "null"}, "minimum": 1, "maximum": 31},
			"relative": relative,
		},
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"type":        map[string]any{"type": "string", "enum": []any{"ABSOLUTE", "RELATIVE", "NONE"}},
			"granularity": map[string]any{"type": "string", "enum": []any{"day", "month", "year"}},
			"from":        part,
			"to":          part,
		},
		"required": []any{"type", "granularity"},
	}
}

// BuildBillJSONSchema describes the bill extraction output after sanitizing.
func BuildBillJSONSchema() map[string]any {
	number := map[string]any{"type": []any{"number", "null"}}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"vendor":         map[string]any{"type": "string"},
			"bill_no":        map[string]any{"type": "string"},
			"bill_date":      map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
			"category":       map[string]any{"type": "string"},
			"total_amount":   number,
			"tax_amount":     number,
			"currency":       map[string]any{"type": "string", "minLength": 3, "maxLength": 3},
			"payment_method": map[string]any{"type": "string"},
			"items": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"description": map[string]any{"type": "string", "minLength": 1},
						"amount":      number,
						"quantity":    number,
						"rate":        number,
						"gst":         number,
					},
					"required": []any{"description"},
				},
			},
			"extra_data": map[string]any{"type": "object"},
		},
	}
}
