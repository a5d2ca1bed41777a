package constants

import "strings"

// BillsCollection is the collection scope every pipeline runs against.
const BillsCollection = "bills"

// QueryType selects the execution strategy for a normalized plan.
type QueryType string

const (
	QueryTypeFilter      QueryType = "FILTER"
	QueryTypeAggregation QueryType = "AGGREGATION"
	QueryTypeSemantic    QueryType = "SEMANTIC"
	QueryTypeMixed       QueryType = "MIXED"
)

var queryTypes = []QueryType{QueryTypeFilter, QueryTypeAggregation, QueryTypeSemantic, QueryTypeMixed}

// ParseQueryType accepts exactly the four known upper-case tags.
func ParseQueryType(s string) (QueryType, bool) {
	for _, t := range queryTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// Operation is applied by the pipeline compiler after filtering.
type Operation string

const (
	OperationList  Operation = "list"
	OperationSum   Operation = "sum"
	OperationCount Operation = "count"
)

// ParseOperation is case-insensitive; classifiers sometimes emit "SUM".
func ParseOperation(s string) (Operation, bool) {
	switch Operation(strings.ToLower(strings.TrimSpace(s))) {
	case OperationList:
		return OperationList, true
	case OperationSum:
		return OperationSum, true
	case OperationCount:
		return OperationCount, true
	}
	return "", false
}

// ReportTemplate names a canned pipeline outside the list/sum/count vocabulary.
type ReportTemplate string

const (
	TemplateMonthlySummary    ReportTemplate = "MONTHLY_SUMMARY"
	TemplateCategoryBreakdown ReportTemplate = "CATEGORY_BREAKDOWN"
	TemplateRecentBills       ReportTemplate = "RECENT_BILLS"
)

func ParseReportTemplate(s string) (ReportTemplate, bool) {
	switch ReportTemplate(strings.ToUpper(strings.TrimSpace(s))) {
	case TemplateMonthlySummary:
		return TemplateMonthlySummary, true
	case TemplateCategoryBreakdown:
		return TemplateCategoryBreakdown, true
	case TemplateRecentBills:
		return TemplateRecentBills, true
	}
	return "", false
}

// Filter keys the planner may place on top-level bill fields.
var FilterFields = []string{"vendor", "category", "payment_method", "bill_no", "currency", "status", "subcategory"}

// TimeLeakKeys must never appear in plan filters.
var TimeLeakKeys = []string{"date", "from", "to", "now", "range"}
