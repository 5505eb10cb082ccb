package core

import (
	"context"
	"fmt"

	"labcore/pkg/domain"
)

// NewBelowThresholdRule warns when a transaction leaves a touched reagent
// below its minimum threshold.
func NewBelowThresholdRule() Rule {
	return belowThresholdRule{}
}

type belowThresholdRule struct{}

func (belowThresholdRule) Name() string { return "reagent_below_threshold" }

func (r belowThresholdRule) Evaluate(_ context.Context, view RuleView, changes []Change) (Result, error) {
	res := Result{}
	seen := make(map[string]struct{})
	for _, change := range changes {
		if change.Entity != domain.EntityReagent {
			continue
		}
		after, ok := change.After.(domain.Reagent)
		if !ok {
			continue
		}
		if _, dup := seen[after.Name]; dup {
			continue
		}
		seen[after.Name] = struct{}{}
		current, ok := view.FindReagent(after.Name)
		if !ok || !current.IsBelowThreshold() {
			continue
		}
		res.Violations = append(res.Violations, Violation{
			Rule:     r.Name(),
			Severity: SeverityWarn,
			Message:  fmt.Sprintf("reagent %s at %s %s is below minimum %s", current.Name, current.QuantityOnHand, current.Unit, current.MinimumThreshold),
			Entity:   domain.EntityReagent,
			EntityID: current.Name,
		})
	}
	return res, nil
}
