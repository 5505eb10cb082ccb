package domain

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// ReagentLookup resolves ledger entries by name. Transaction views and stores satisfy it.
type ReagentLookup interface {
	FindReagent(name string) (Reagent, bool)
}

// Range builds an inclusive range expectation.
func Range(lo, hi float64) ExpectedResult {
	return ExpectedResult{Kind: ExpectRange, Min: lo, Max: hi}
}

// Exact builds an exact-value expectation.
func Exact(value float64) ExpectedResult {
	return ExpectedResult{Kind: ExpectExact, Value: value}
}

// Validate checks the expectation is well formed for the given measurement key.
func (e ExpectedResult) Validate(key string) error {
	field := fmt.Sprintf("expected_results[%s]", key)
	switch e.Kind {
	case ExpectRange:
		if err := ValidateFinite(field+".min", e.Min); err != nil {
			return err
		}
		if err := ValidateFinite(field+".max", e.Max); err != nil {
			return err
		}
		if e.Min > e.Max {
			return ValidationError{Field: field, Value: fmt.Sprintf("[%g, %g]", e.Min, e.Max), Reason: "min must not exceed max"}
		}
	case ExpectExact:
		if err := ValidateFinite(field+".value", e.Value); err != nil {
			return err
		}
	default:
		return ValidationError{Field: field + ".kind", Value: string(e.Kind), Reason: "must be range or exact"}
	}
	return nil
}

// Satisfied reports whether value meets the expectation. Exact comparisons use a
// relative tolerance scaled by the larger magnitude, with a floor of 1 so targets
// at zero compare absolutely.
func (e ExpectedResult) Satisfied(value, tolerance float64) bool {
	switch e.Kind {
	case ExpectRange:
		return e.Min <= value && value <= e.Max
	case ExpectExact:
		scale := math.Max(1, math.Max(math.Abs(value), math.Abs(e.Value)))
		return math.Abs(value-e.Value) <= tolerance*scale
	default:
		return false
	}
}

// Target is the range midpoint or the exact value.
func (e ExpectedResult) Target() float64 {
	if e.Kind == ExpectExact {
		return e.Value
	}
	return (e.Min + e.Max) / 2
}

func (e ExpectedResult) String() string {
	if e.Kind == ExpectExact {
		return fmt.Sprintf("= %g", e.Value)
	}
	return fmt.Sprintf("[%g, %g]", e.Min, e.Max)
}

// Deviation returns the percent deviation of value from Target. A zero target yields 0.
func (e ExpectedResult) Deviation(value float64) float64 {
	target := e.Target()
	if target == 0 {
		return 0
	}
	return (value - target) / target * 100
}

// NewRecipe validates and builds a recipe definition.
func NewRecipe(name, objective string, required []RequiredReagent, expected map[string]ExpectedResult, procedure []string) (Recipe, error) {
	r := Recipe{
		Name:             name,
		Objective:        objective,
		RequiredReagents: slices.Clone(required),
		ExpectedResults:  maps.Clone(expected),
		Procedure:        slices.Clone(procedure),
	}
	if err := r.Validate(); err != nil {
		return Recipe{}, err
	}
	return r, nil
}

// Validate checks recipe invariants that do not depend on ledger state.
func (r *Recipe) Validate() error {
	var err error
	if r.Name, err = ValidateNonEmptyText("name", r.Name); err != nil {
		return err
	}
	if r.Objective, err = ValidateNonEmptyText("objective", r.Objective); err != nil {
		return err
	}
	if len(r.RequiredReagents) == 0 {
		return ValidationError{Field: "required_reagents", Reason: "at least one reagent is required"}
	}
	seen := make(map[string]struct{}, len(r.RequiredReagents))
	for i := range r.RequiredReagents {
		req := &r.RequiredReagents[i]
		field := fmt.Sprintf("required_reagents[%d]", i)
		if req.Reagent, err = ValidateNonEmptyText(field+".reagent", req.Reagent); err != nil {
			return err
		}
		if _, dup := seen[req.Reagent]; dup {
			return ValidationError{Field: field + ".reagent", Value: req.Reagent, Reason: "listed more than once"}
		}
		seen[req.Reagent] = struct{}{}
		if err := ValidatePositiveDecimal(field+".quantity", req.Quantity); err != nil {
			return err
		}
	}
	if len(r.ExpectedResults) == 0 {
		return ValidationError{Field: "expected_results", Reason: "at least one expected result is required"}
	}
	for _, key := range r.MeasurementKeys() {
		if _, err := ValidateNonEmptyText("expected_results key", key); err != nil {
			return err
		}
		if err := r.ExpectedResults[key].Validate(key); err != nil {
			return err
		}
	}
	if len(r.Procedure) == 0 {
		return ValidationError{Field: "procedure", Reason: "at least one step is required"}
	}
	return nil
}

// MeasurementKeys returns the expected result keys in sorted order.
func (r Recipe) MeasurementKeys() []string {
	return slices.Sorted(maps.Keys(r.ExpectedResults))
}

// EstimateTotalCost sums required quantity times current unit cost.
func (r Recipe) EstimateTotalCost(ledger ReagentLookup) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, req := range r.RequiredReagents {
		reagent, ok := ledger.FindReagent(req.Reagent)
		if !ok {
			return decimal.Zero, UnknownReagentError{Name: req.Reagent}
		}
		total = total.Add(req.Quantity.Mul(reagent.UnitCost))
	}
	return total, nil
}

// CheckFeasibility returns the required reagents that are under-stocked or expired as of asOf.
// An empty result means the recipe can run now. Missing reagents are a referential error.
func (r Recipe) CheckFeasibility(ledger ReagentLookup, asOf time.Time) ([]BlockingReagent, error) {
	var blocking []BlockingReagent
	for _, req := range r.RequiredReagents {
		reagent, ok := ledger.FindReagent(req.Reagent)
		if !ok {
			return nil, UnknownReagentError{Name: req.Reagent}
		}
		var reasons []BlockingReason
		if reagent.QuantityOnHand.LessThan(req.Quantity) {
			reasons = append(reasons, BlockedInsufficient)
		}
		if reagent.IsExpired(asOf) {
			reasons = append(reasons, BlockedExpired)
		}
		if len(reasons) == 0 {
			continue
		}
		blocking = append(blocking, BlockingReagent{
			Reagent:        req.Reagent,
			Required:       req.Quantity,
			Available:      reagent.QuantityOnHand,
			ExpirationDate: reagent.Clone().ExpirationDate,
			Reasons:        reasons,
		})
	}
	return blocking, nil
}

// Clone returns a deep copy of the recipe.
func (r Recipe) Clone() Recipe {
	cp := r
	cp.RequiredReagents = slices.Clone(r.RequiredReagents)
	cp.ExpectedResults = maps.Clone(r.ExpectedResults)
	cp.Procedure = slices.Clone(r.Procedure)
	return cp
}
