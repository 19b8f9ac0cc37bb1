package domain

// operationCosts is the table-driven credit price per AI operation. Unlisted
// operations cost one credit.
var operationCosts = map[string]int64{
	"survey.quick_generate":  1,
	"survey.guided_generate": 1,
	"survey.edit_question":   1,
	"survey.edit_survey":     1,
	"survey.regenerate":      1,
	"survey.conversation":    1,
	"analytics.insights":     2,
	"responses.synthetic":    1,
}

// CostOf returns the credit price of one unit of the operation.
func CostOf(operation string) int64 {
	if cost, ok := operationCosts[operation]; ok {
		return cost
	}
	return 1
}
