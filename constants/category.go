package constants

import (
	"strings"
)

type Category string

const (
	Grocery       Category = "Grocery"
	Medical       Category = "Medical"
	Travel        Category = "Travel"
	Fuel          Category = "Fuel"
	Dining        Category = "Dining"
	Utilities     Category = "Utilities"
	Shopping      Category = "Shopping"
	Entertainment Category = "Entertainment"
	Education     Category = "Education"
	Other         Category = "Other"
)

var allCategories = []Category{
	Grocery,
	Medical,
	Travel,
	Fuel,
	Dining,
	Utilities,
	Shopping,
	Entertainment,
	Education,
	Other,
}

func AsStringSlice() []string {
	result := make([]string, len(allCategories))
	for i, cat := range allCategories {
		result[i] = string(cat)
	}
	return result
}

// Canonicalize maps free-form LLM or user category text onto a known Category.
// The second return is false when the input matched nothing and Other was assumed.
func Canonicalize(input string) (Category, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return Other, false
	}

	synonyms := map[string]Category{
		"groceries":   Grocery,
		"supermarket": Grocery,
		"pharmacy":    Medical,
		"hospital":    Medical,
		"medicine":    Medical,
		"healthcare":  Medical,
		"flight":      Travel,
		"airline":     Travel,
		"hotel":       Travel,
		"taxi":        Travel,
		"cab":         Travel,
		"petrol":      Fuel,
		"diesel":      Fuel,
		"restaurant":  Dining,
		"food":        Dining,
		"electricity": Utilities,
		"water":       Utilities,
		"internet":    Utilities,
		"mobile":      Utilities,
		"movies":      Entertainment,
		"tuition":     Education,
	}
	if cat, ok := synonyms[normalized]; ok {
		return cat, true
	}

	for _, cat := range allCategories {
		if normalized == strings.ToLower(string(cat)) {
			return cat, true
		}
	}
	return Other, false
}
