package repository

import (
	"github.com/joseph-ayodele/bills-assistant/constants"
	"github.com/joseph-ayodele/bills-assistant/internal/common"
	"github.com/joseph-ayodele/bills-assistant/internal/pipeline"
	"github.com/joseph-ayodele/bills-assistant/internal/temporal"
)

// scope is what a store can push down before running the rest of a pipeline in memory.
type scope struct {
	userID string
	window *temporal.Window
}

// scopeOf reads the leading match stage. Every pipeline must start by pinning user_id.
func scopeOf(collection string, stages []pipeline.Stage) (scope, error) {
	if collection != constants.BillsCollection {
		return scope{}, common.InvalidInput("unknown collection %q", collection)
	}
	if len(stages) == 0 {
		return scope{}, common.InvalidInput("pipeline has no stages")
	}
	m, ok := stages[0].(pipeline.Match)
	if !ok {
		return scope{}, common.InvalidInput("pipeline must start with a match stage")
	}

	var sc scope
	for _, c := range m.Conditions {
		switch c := c.(type) {
		case pipeline.Eq:
			if v, ok := c.Value.(string); ok && c.Field == pipeline.FieldUserID && sc.userID == "" {
				sc.userID = v
			}
		case pipeline.Between:
			if c.Field == pipeline.FieldBillDate && sc.window == nil {
				w := c.Window
				sc.window = &w
			}
		}
	}
	if sc.userID == "" {
		return scope{}, common.InvalidInput("pipeline is not scoped to a user")
	}
	return sc, nil
}
