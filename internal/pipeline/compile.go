package pipeline

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/bills-assistant/constants"
	"github.com/joseph-ayodele/bills-assistant/internal/common"
	"github.com/joseph-ayodele/bills-assistant/internal/queryplan"
)

// Field names of a bill document.
const (
	FieldID            = "id"
	FieldUserID        = "user_id"
	FieldVendor        = "vendor"
	FieldBillNo        = "bill_no"
	FieldBillDate      = "bill_date"
	FieldCategory      = "category"
	FieldPaymentMethod = "payment_method"
	FieldCurrency      = "currency"
	FieldTotalAmount   = "total_amount"
	FieldItems         = "items"
	FieldItemDesc      = "items.description"
	FieldItemAmount    = "items.amount"
	FieldTotal         = "total"
)

var identityFields = []string{FieldID, FieldVendor, FieldBillNo, FieldBillDate, FieldCategory, FieldPaymentMethod}

// Compile turns a normalized plan into stages. The first stage always scopes to userID.
func Compile(plan *queryplan.QueryPlan, userID string) ([]Stage, error) {
	if plan == nil {
		return nil, common.MalformedPlan("plan is nil")
	}
	stages, err := baseStages(plan, userID)
	if err != nil {
		return nil, err
	}

	item := plan.Item()
	if item != "" {
		stages = append(stages,
			Unwind{Field: FieldItems},
			Match{Conditions: []Condition{Contains{Field: FieldItemDesc, Pattern: item}}},
		)
	}

	switch plan.Operation {
	case constants.OperationSum:
		field := FieldTotalAmount
		if item != "" {
			field = FieldItemAmount
		}
		stages = append(stages, Group{Accumulators: []Accumulator{{As: FieldTotal, Op: AccSum, Field: field}}})
	case constants.OperationCount:
		stages = append(stages, Count{As: FieldTotal})
	case constants.OperationList:
		if item != "" {
			stages = append(stages, Project{Fields: append(projections(identityFields...), Projection{Name: "item", Source: FieldItems})})
		} else {
			stages = append(stages, Project{Fields: projections(slices.Concat(identityFields, []string{FieldTotalAmount, FieldCurrency, FieldItems})...)})
		}
		stages = append(stages, Sort{Field: FieldBillDate, Desc: true})
	default:
		return nil, common.MalformedPlan("operation %q cannot be compiled", plan.Operation)
	}
	return stages, nil
}

// baseStages is the tenant scope plus the plan's filters.
func baseStages(plan *queryplan.QueryPlan, userID string) ([]Stage, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, common.InvalidInput("user_id is required")
	}
	conds := []Condition{Eq{Field: FieldUserID, Value: userID}}
	for _, key := range plan.Filters.Keys() {
		switch v := plan.Filters.Fields[key].(type) {
		case string:
			conds = append(conds, Contains{Field: key, Pattern: v})
		case float64, int, int64:
			// Filter fields are stored as text, so a bill_no of 1234 matches "1234".
			conds = append(conds, Contains{Field: key, Pattern: numberText(v)})
		default:
			conds = append(conds, Eq{Field: key, Value: v})
		}
	}
	if w := plan.Filters.BillDate; w != nil {
		conds = append(conds, Between{Field: FieldBillDate, Window: *w})
	}
	return []Stage{Match{Conditions: conds}}, nil
}

func numberText(v any) string {
	if f, ok := v.(float64); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func projections(fields ...string) []Projection {
	out := make([]Projection, len(fields))
	for i, f := range fields {
		out[i] = Projection{Name: f, Source: f}
	}
	return out
}
