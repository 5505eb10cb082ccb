package domain

import (
	"fmt"
	"maps"
	"slices"
)

// Validate checks a snapshot before it replaces live state. Stock, threshold
// and cost must not be negative, every recipe must name reagents present in
// the snapshot, and every experiment must reference a known recipe and agree
// with it. Experiment IDs must be unique.
func (s Snapshot) Validate() error {
	for _, key := range slices.Sorted(maps.Keys(s.Reagents)) {
		r := s.Reagents[key]
		field := fmt.Sprintf("reagents[%s]", key)
		if err := ValidateNonNegativeDecimal(field+".quantity_on_hand", r.QuantityOnHand); err != nil {
			return err
		}
		if err := ValidateNonNegativeDecimal(field+".minimum_threshold", r.MinimumThreshold); err != nil {
			return err
		}
		if err := ValidateNonNegativeDecimal(field+".unit_cost", r.UnitCost); err != nil {
			return err
		}
	}
	for _, key := range slices.Sorted(maps.Keys(s.Recipes)) {
		for i, req := range s.Recipes[key].RequiredReagents {
			if _, ok := s.Reagents[req.Reagent]; !ok {
				return UnknownReagentError{Name: req.Reagent}
			}
			if err := ValidatePositiveDecimal(fmt.Sprintf("recipes[%s].required_reagents[%d].quantity", key, i), req.Quantity); err != nil {
				return err
			}
		}
	}
	ids := make(map[string]struct{}, len(s.Experiments))
	for _, e := range s.Experiments {
		if _, dup := ids[e.ID]; dup {
			return ValidationError{Field: "experiments", Value: e.ID, Reason: "duplicate experiment id"}
		}
		ids[e.ID] = struct{}{}
		recipe, ok := s.Recipes[e.RecipeName]
		if !ok {
			return UnknownRecipeError{Name: e.RecipeName}
		}
		if err := e.CheckAgainst(recipe); err != nil {
			return err
		}
	}
	return nil
}
