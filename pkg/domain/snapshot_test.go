package domain

import (
	"errors"
	"testing"
)

func validSnapshot() Snapshot {
	return Snapshot{
		Reagents: map[string]Reagent{
			"NaOH": {Name: "NaOH", QuantityOnHand: dec("0"), MinimumThreshold: dec("5"), UnitCost: dec("1.5")},
		},
		Recipes: map[string]Recipe{
			"Titration": {
				Name:             "Titration",
				RequiredReagents: []RequiredReagent{{Reagent: "NaOH", Quantity: dec("2")}},
				ExpectedResults:  map[string]ExpectedResult{"pH": Range(6, 8)},
			},
		},
		Experiments: []Experiment{{
			ID:                "exp-1",
			RecipeName:        "Titration",
			ResponsiblePeople: []string{"ada"},
			Validations:       map[string]bool{"pH": true},
			Success:           true,
		}},
	}
}

func TestSnapshotValidateAcceptsConsistentState(t *testing.T) {
	if err := validSnapshot().Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := (Snapshot{}).Validate(); err != nil {
		t.Fatalf("empty snapshot: %v", err)
	}
}

func TestSnapshotValidateRejectsNegativeAmounts(t *testing.T) {
	cases := map[string]func(*Reagent){
		"reagents[NaOH].quantity_on_hand":  func(r *Reagent) { r.QuantityOnHand = dec("-5") },
		"reagents[NaOH].minimum_threshold": func(r *Reagent) { r.MinimumThreshold = dec("-1") },
		"reagents[NaOH].unit_cost":         func(r *Reagent) { r.UnitCost = dec("-0.01") },
	}
	for field, mutate := range cases {
		snap := validSnapshot()
		r := snap.Reagents["NaOH"]
		mutate(&r)
		snap.Reagents["NaOH"] = r

		var verr ValidationError
		if err := snap.Validate(); !errors.As(err, &verr) || verr.Field != field {
			t.Fatalf("%s: expected validation error, got %v", field, err)
		}
	}
}

func TestSnapshotValidateRejectsDanglingReferences(t *testing.T) {
	snap := validSnapshot()
	delete(snap.Reagents, "NaOH")
	var unknownReagent UnknownReagentError
	if err := snap.Validate(); !errors.As(err, &unknownReagent) || unknownReagent.Name != "NaOH" {
		t.Fatalf("expected unknown reagent, got %v", err)
	}

	snap = validSnapshot()
	snap.Experiments[0].RecipeName = "Missing"
	var unknownRecipe UnknownRecipeError
	if err := snap.Validate(); !errors.As(err, &unknownRecipe) || unknownRecipe.Name != "Missing" {
		t.Fatalf("expected unknown recipe, got %v", err)
	}
}

func TestSnapshotValidateRejectsInconsistentExperiments(t *testing.T) {
	cases := map[string]func(*Experiment){
		"experiments[exp-1].success":            func(e *Experiment) { e.Success = false },
		"experiments[exp-1].validations":        func(e *Experiment) { e.Validations = map[string]bool{"yield": true} },
		"experiments[exp-1].responsible_people": func(e *Experiment) { e.ResponsiblePeople = nil },
	}
	for field, mutate := range cases {
		snap := validSnapshot()
		mutate(&snap.Experiments[0])
		var verr ValidationError
		if err := snap.Validate(); !errors.As(err, &verr) || verr.Field != field {
			t.Fatalf("%s: expected validation error, got %v", field, err)
		}
	}

	snap := validSnapshot()
	snap.Experiments = append(snap.Experiments, snap.Experiments[0])
	var verr ValidationError
	if err := snap.Validate(); !errors.As(err, &verr) || verr.Reason != "duplicate experiment id" {
		t.Fatalf("expected duplicate id error, got %v", err)
	}
}
