package pipeline

import (
	"github.com/joseph-ayodele/bills-assistant/constants"
	"github.com/joseph-ayodele/bills-assistant/internal/common"
	"github.com/joseph-ayodele/bills-assistant/internal/queryplan"
)

// RecentBillsLimit caps the RECENT_BILLS report.
const RecentBillsLimit = 20

// CompileTemplate builds a canned report pipeline. The plan contributes its filters and
// resolved bill_date window; its operation and entities are ignored.
func CompileTemplate(tpl constants.ReportTemplate, plan *queryplan.QueryPlan, userID string) ([]Stage, error) {
	if plan == nil {
		plan = &queryplan.QueryPlan{}
	}
	stages, err := baseStages(plan, userID)
	if err != nil {
		return nil, err
	}

	switch tpl {
	case constants.TemplateMonthlySummary:
		return append(stages,
			Group{
				By: &GroupKey{Field: FieldBillDate, Bucket: BucketMonth},
				Accumulators: []Accumulator{
					{As: FieldTotal, Op: AccSum, Field: FieldTotalAmount},
					{As: "count", Op: AccCount},
				},
			},
			Sort{Field: "_id"},
			Project{Fields: []Projection{{Name: "month", Source: "_id"}, {Name: FieldTotal, Source: FieldTotal}, {Name: "count", Source: "count"}}},
		), nil
	case constants.TemplateCategoryBreakdown:
		return append(stages,
			Group{
				By: &GroupKey{Field: FieldCategory},
				Accumulators: []Accumulator{
					{As: FieldTotal, Op: AccSum, Field: FieldTotalAmount},
					{As: "count", Op: AccCount},
				},
			},
			Sort{Field: FieldTotal, Desc: true},
			Project{Fields: []Projection{{Name: FieldCategory, Source: "_id"}, {Name: FieldTotal, Source: FieldTotal}, {Name: "count", Source: "count"}}},
		), nil
	case constants.TemplateRecentBills:
		return append(stages,
			Sort{Field: FieldBillDate, Desc: true},
			Limit{N: RecentBillsLimit},
			Project{Fields: projections(FieldID, FieldVendor, FieldBillNo, FieldBillDate, FieldCategory, FieldPaymentMethod, FieldTotalAmount, FieldCurrency)},
		), nil
	default:
		return nil, common.InvalidInput("unknown report template %q", tpl)
	}
}
