package core

import (
	"context"
	"fmt"

	"labcore/pkg/domain"
)

// NewExperimentIntegrityRule blocks experiment records whose validation map
// does not cover exactly the recipe's expected results, whose success flag
// disagrees with the validations, or which name no responsible person.
func NewExperimentIntegrityRule() Rule {
	return experimentIntegrityRule{}
}

type experimentIntegrityRule struct{}

func (experimentIntegrityRule) Name() string { return "experiment_validation_integrity" }

func (r experimentIntegrityRule) Evaluate(_ context.Context, view RuleView, changes []Change) (Result, error) {
	res := Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityExperiment {
			continue
		}
		exp, ok := change.After.(domain.Experiment)
		if !ok {
			continue
		}
		if msg := r.check(view, exp); msg != "" {
			res.Violations = append(res.Violations, Violation{
				Rule:     r.Name(),
				Severity: SeverityBlock,
				Message:  msg,
				Entity:   domain.EntityExperiment,
				EntityID: exp.ID,
			})
		}
	}
	return res, nil
}

func (experimentIntegrityRule) check(view RuleView, exp domain.Experiment) string {
	recipe, ok := view.FindRecipe(exp.RecipeName)
	if !ok {
		return fmt.Sprintf("experiment %s references unknown recipe %s", exp.ID, exp.RecipeName)
	}
	if err := exp.CheckAgainst(recipe); err != nil {
		return err.Error()
	}
	return ""
}
