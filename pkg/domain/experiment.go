package domain

import (
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/shopspring/decimal"
)

// DefaultTolerance is the relative tolerance applied to exact-value expectations.
const DefaultTolerance = 1e-9

// MeasurementOutcome is the comparison of a measurement set against a recipe.
type MeasurementOutcome struct {
	Validations map[string]bool
	Deviations  map[string]float64
	Success     bool
}

// EvaluateMeasurements compares measurements with every expected result of the recipe.
// Keys absent from measurements fail. Measurements without an expectation are ignored
// for success but kept by the caller on the record.
func EvaluateMeasurements(recipe Recipe, measurements map[string]float64, tolerance float64) MeasurementOutcome {
	out := MeasurementOutcome{
		Validations: make(map[string]bool, len(recipe.ExpectedResults)),
		Deviations:  make(map[string]float64, len(recipe.ExpectedResults)),
		Success:     true,
	}
	for key, expected := range recipe.ExpectedResults {
		value, ok := measurements[key]
		if !ok {
			out.Validations[key] = false
			out.Success = false
			continue
		}
		passed := expected.Satisfied(value, tolerance)
		out.Validations[key] = passed
		out.Deviations[key] = expected.Deviation(value)
		if !passed {
			out.Success = false
		}
	}
	return out
}

// TotalConsumedCost sums the cost of each consumed line.
func TotalConsumedCost(consumed []ConsumedReagent) decimal.Decimal {
	total := decimal.Zero
	for _, c := range consumed {
		total = total.Add(c.Cost)
	}
	return total
}

// FailedMeasurements lists the measurement keys that did not pass, sorted.
func (e Experiment) FailedMeasurements() []string {
	var out []string
	for key, ok := range e.Validations {
		if !ok {
			out = append(out, key)
		}
	}
	slices.Sort(out)
	return out
}

// InvolvesResearcher reports whether name is one of the responsible people.
func (e Experiment) InvolvesResearcher(name string) bool {
	return slices.Contains(e.ResponsiblePeople, name)
}

// Clone returns a deep copy of the record.
func (e Experiment) Clone() Experiment {
	cp := e
	cp.ResponsiblePeople = slices.Clone(e.ResponsiblePeople)
	cp.Measurements = maps.Clone(e.Measurements)
	cp.Validations = maps.Clone(e.Validations)
	cp.Deviations = maps.Clone(e.Deviations)
	cp.Consumed = slices.Clone(e.Consumed)
	return cp
}

// CheckAgainst reports a ValidationError when the record disagrees with its
// recipe: no responsible person, a validation set that differs from the
// expected result keys, or a Success flag that is not their conjunction.
func (e Experiment) CheckAgainst(recipe Recipe) error {
	field := fmt.Sprintf("experiments[%s]", e.ID)
	if len(e.ResponsiblePeople) == 0 {
		return ValidationError{Field: field + ".responsible_people", Reason: "at least one entry is required"}
	}
	if len(e.Validations) != len(recipe.ExpectedResults) {
		return ValidationError{
			Field:  field + ".validations",
			Reason: fmt.Sprintf("has %d entries, recipe %s expects %d", len(e.Validations), recipe.Name, len(recipe.ExpectedResults)),
		}
	}
	success := true
	for _, key := range recipe.MeasurementKeys() {
		passed, ok := e.Validations[key]
		if !ok {
			return ValidationError{Field: field + ".validations", Value: key, Reason: "expected result has no validation"}
		}
		success = success && passed
	}
	if success != e.Success {
		return ValidationError{Field: field + ".success", Value: strconv.FormatBool(e.Success), Reason: "disagrees with validations"}
	}
	return nil
}
