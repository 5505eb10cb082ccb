package core

import (
	"context"
	"fmt"

	"labcore/pkg/domain"
)

// NewNonNegativeStockRule blocks any commit leaving a reagent with negative stock.
func NewNonNegativeStockRule() Rule {
	return nonNegativeStockRule{}
}

type nonNegativeStockRule struct{}

func (nonNegativeStockRule) Name() string { return "non_negative_stock" }

func (r nonNegativeStockRule) Evaluate(_ context.Context, view RuleView, _ []Change) (Result, error) {
	res := Result{}
	for _, reagent := range view.ListReagents() {
		if !reagent.QuantityOnHand.IsNegative() {
			continue
		}
		res.Violations = append(res.Violations, Violation{
			Rule:     r.Name(),
			Severity: SeverityBlock,
			Message:  fmt.Sprintf("reagent %s has negative stock %s %s", reagent.Name, reagent.QuantityOnHand, reagent.Unit),
			Entity:   domain.EntityReagent,
			EntityID: reagent.Name,
		})
	}
	return res, nil
}
