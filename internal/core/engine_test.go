package core_test

import (
	"context"
	"errors"
	"math"
	"reflect"
	"slices"
	"testing"

	"labcore/internal/core"
	"labcore/pkg/domain"
)

func TestExecuteExperimentConsumesStock(t *testing.T) {
	svc := newService()
	mustRegister(t, svc, naoh("100"))
	mustRecipe(t, svc, "Titration", map[string]string{"NaOH": "30"}, phRange())

	summary, res, err := svc.ExecuteExperiment(context.Background(), core.ExecutionRequest{
		RecipeName:        "Titration",
		ResponsiblePeople: []string{" Ada "},
		Measurements:      map[string]float64{"pH": 6.5},
		Notes:             "first run",
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(res.Violations) != 0 {
		t.Fatalf("unexpected violations %+v", res.Violations)
	}
	if !summary.Success || !summary.Validations["pH"] || !summary.Cost.Equal(dec("7.5")) || summary.RecordID == "" {
		t.Fatalf("unexpected summary %+v", summary)
	}

	reagent, err := svc.GetReagent("NaOH")
	if err != nil {
		t.Fatalf("get reagent: %v", err)
	}
	if !reagent.QuantityOnHand.Equal(dec("70")) || reagent.IsBelowThreshold() {
		t.Fatalf("expected 70 on hand and not below threshold, got %s", reagent.QuantityOnHand)
	}
	if len(reagent.UsageHistory) != 1 || reagent.UsageHistory[0].Reference != summary.RecordID {
		t.Fatalf("expected usage movement referencing the record, got %+v", reagent.UsageHistory)
	}

	record, err := svc.GetExperiment(summary.RecordID)
	if err != nil {
		t.Fatalf("get experiment: %v", err)
	}
	if !record.Timestamp.Equal(clockNow) || record.ResponsiblePeople[0] != "Ada" || record.Notes != "first run" {
		t.Fatalf("unexpected record %+v", record)
	}
	if len(record.Consumed) != 1 || !record.Consumed[0].Cost.Equal(dec("7.5")) || !record.Consumed[0].UnitCost.Equal(dec("0.25")) {
		t.Fatalf("unexpected consumption lines %+v", record.Consumed)
	}
	if record.Deviations["pH"] != 0 {
		t.Fatalf("expected zero deviation at the range midpoint, got %v", record.Deviations["pH"])
	}
}

func TestExecuteExperimentInsufficientInventoryLeavesLedgerUnchanged(t *testing.T) {
	svc := newService()
	mustRegister(t, svc, naoh("100"))
	mustRecipe(t, svc, "Bulk", map[string]string{"NaOH": "150"}, phRange())
	before := svc.ExportSnapshot()

	_, _, err := svc.ExecuteExperiment(context.Background(), core.ExecutionRequest{
		RecipeName:        "Bulk",
		ResponsiblePeople: []string{"Ada"},
		Measurements:      map[string]float64{"pH": 6.5},
	})
	var inv domain.InsufficientInventoryError
	if !errors.As(err, &inv) {
		t.Fatalf("expected InsufficientInventoryError, got %v", err)
	}
	if !slices.Equal(inv.Reagents(), []string{"NaOH"}) || inv.Blocking[0].Reasons[0] != domain.BlockedInsufficient {
		t.Fatalf("unexpected blocking list %+v", inv.Blocking)
	}
	if !reflect.DeepEqual(before, svc.ExportSnapshot()) {
		t.Fatalf("expected ledger unchanged after blocked execution")
	}
	r, _ := svc.GetReagent("NaOH")
	if !r.QuantityOnHand.Equal(dec("100")) {
		t.Fatalf("expected stock to remain 100, got %s", r.QuantityOnHand)
	}
}

func TestExecuteExperimentListsOnlyBlockingReagents(t *testing.T) {
	svc := newService()
	plenty := naoh("10")
	plenty.Name = "Buffer"
	plenty.MinimumThreshold = dec("1")
	scarce := naoh("1")
	scarce.Name = "Enzyme"
	expired := naoh("50")
	expired.Name = "Stain"
	expired.ExpirationDate = date("2025-06-01")
	mustRegister(t, svc, plenty, scarce, expired)
	mustRecipe(t, svc, "Assay", map[string]string{"Buffer": "5", "Enzyme": "5", "Stain": "1"}, phRange())

	_, _, err := svc.ExecuteExperiment(context.Background(), core.ExecutionRequest{
		RecipeName:        "Assay",
		ResponsiblePeople: []string{"Ada"},
		Measurements:      map[string]float64{"pH": 6.5},
	})
	var inv domain.InsufficientInventoryError
	if !errors.As(err, &inv) {
		t.Fatalf("expected InsufficientInventoryError, got %v", err)
	}
	got := inv.Reagents()
	slices.Sort(got)
	if !slices.Equal(got, []string{"Enzyme", "Stain"}) {
		t.Fatalf("expected Enzyme and Stain to block, got %v", got)
	}
	for _, b := range inv.Blocking {
		if b.Reagent == "Stain" && !slices.Equal(b.Reasons, []domain.BlockingReason{domain.BlockedExpired}) {
			t.Fatalf("expected Stain blocked for expiry, got %v", b.Reasons)
		}
	}
	buffer, _ := svc.GetReagent("Buffer")
	if !buffer.QuantityOnHand.Equal(dec("10")) || len(buffer.UsageHistory) != 0 {
		t.Fatalf("expected Buffer untouched, got %+v", buffer)
	}
	if len(svc.ListExperiments(core.ExperimentFilter{})) != 0 {
		t.Fatalf("expected no experiment recorded")
	}
}

func TestExecuteExperimentRecordsFailedMeasurements(t *testing.T) {
	svc := newService()
	mustRegister(t, svc, naoh("100"))
	mustRecipe(t, svc, "Titration", map[string]string{"NaOH": "10"}, map[string]domain.ExpectedResult{
		"pH":   domain.Range(6.0, 7.0),
		"temp": domain.Exact(25),
	})
	ctx := context.Background()

	summary, _, err := svc.ExecuteExperiment(ctx, core.ExecutionRequest{
		RecipeName:        "Titration",
		ResponsiblePeople: []string{"Ada", "Grace"},
		Measurements:      map[string]float64{"pH": 7.5, "temp": 25},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if summary.Success || summary.Validations["pH"] || !summary.Validations["temp"] {
		t.Fatalf("expected pH failure only, got %+v", summary.Validations)
	}
	if math.Abs(summary.Record.Deviations["pH"]-15.384615384615385) > 1e-9 {
		t.Fatalf("unexpected pH deviation %v", summary.Record.Deviations["pH"])
	}

	summary, _, err = svc.ExecuteExperiment(ctx, core.ExecutionRequest{
		RecipeName:        "Titration",
		ResponsiblePeople: []string{"Ada"},
		Measurements:      map[string]float64{"pH": 6.5},
	})
	if err != nil {
		t.Fatalf("execute with missing key: %v", err)
	}
	if summary.Success || summary.Validations["temp"] || len(summary.Validations) != 2 {
		t.Fatalf("expected missing temp to fail, got %+v", summary.Validations)
	}
	r, _ := svc.GetReagent("NaOH")
	if !r.QuantityOnHand.Equal(dec("80")) {
		t.Fatalf("expected failed measurements to still consume stock, got %s", r.QuantityOnHand)
	}
}

func TestExecuteExperimentExactTolerance(t *testing.T) {
	svc := newService(core.WithTolerance(0.01))
	if svc.Tolerance() != 0.01 {
		t.Fatalf("expected tolerance option applied")
	}
	mustRegister(t, svc, naoh("100"))
	mustRecipe(t, svc, "Weigh", map[string]string{"NaOH": "1"}, map[string]domain.ExpectedResult{"mass": domain.Exact(100)})
	summary, _, err := svc.ExecuteExperiment(context.Background(), core.ExecutionRequest{
		RecipeName:        "Weigh",
		ResponsiblePeople: []string{"Ada"},
		Measurements:      map[string]float64{"mass": 100.5},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !summary.Success {
		t.Fatalf("expected 100.5 within 1%% of 100")
	}
}

func TestExecuteExperimentRejectsInvalidRequests(t *testing.T) {
	svc := newService()
	mustRegister(t, svc, naoh("100"))
	mustRecipe(t, svc, "Titration", map[string]string{"NaOH": "10"}, phRange())
	ctx := context.Background()
	cases := map[string]core.ExecutionRequest{
		"no people":     {RecipeName: "Titration", Measurements: map[string]float64{"pH": 6.5}},
		"blank person":  {RecipeName: "Titration", ResponsiblePeople: []string{"  "}},
		"blank recipe":  {RecipeName: " ", ResponsiblePeople: []string{"Ada"}},
		"nan":           {RecipeName: "Titration", ResponsiblePeople: []string{"Ada"}, Measurements: map[string]float64{"pH": math.NaN()}},
		"infinite":      {RecipeName: "Titration", ResponsiblePeople: []string{"Ada"}, Measurements: map[string]float64{"pH": math.Inf(1)}},
		"blank measure": {RecipeName: "Titration", ResponsiblePeople: []string{"Ada"}, Measurements: map[string]float64{"": 1}},
		"trimmed clash": {RecipeName: "Titration", ResponsiblePeople: []string{"Ada"}, Measurements: map[string]float64{"pH": 6.5, " pH ": 9}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := svc.ExecuteExperiment(ctx, req)
			var verr domain.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}

	_, _, err := svc.ExecuteExperiment(ctx, core.ExecutionRequest{RecipeName: "Nope", ResponsiblePeople: []string{"Ada"}})
	if !errors.As(err, new(domain.UnknownRecipeError)) {
		t.Fatalf("expected UnknownRecipeError, got %v", err)
	}
	r, _ := svc.GetReagent("NaOH")
	if !r.QuantityOnHand.Equal(dec("100")) {
		t.Fatalf("expected no consumption after rejected requests")
	}
}

func TestCreateRecipeRequiresExpectations(t *testing.T) {
	svc := newService()
	mustRegister(t, svc, naoh("100"))
	recipe, err := domain.NewRecipe("Prep", "prep only",
		[]domain.RequiredReagent{{Reagent: "NaOH", Quantity: dec("1")}},
		map[string]domain.ExpectedResult{"pH": domain.Range(0, 14)},
		[]string{"mix"})
	if err != nil {
		t.Fatalf("new recipe: %v", err)
	}
	recipe.ExpectedResults = map[string]domain.ExpectedResult{}
	if _, _, err := svc.CreateRecipe(context.Background(), recipe); err == nil {
		t.Fatalf("expected recipe without expectations to be rejected")
	}
}

func TestListExperimentsFilters(t *testing.T) {
	svc := newService()
	mustRegister(t, svc, naoh("100"))
	mustRecipe(t, svc, "A", map[string]string{"NaOH": "1"}, phRange())
	mustRecipe(t, svc, "B", map[string]string{"NaOH": "1"}, phRange())
	ctx := context.Background()
	run := func(recipe string, people ...string) {
		if _, _, err := svc.ExecuteExperiment(ctx, core.ExecutionRequest{RecipeName: recipe, ResponsiblePeople: people, Measurements: map[string]float64{"pH": 6.5}}); err != nil {
			t.Fatalf("execute %s: %v", recipe, err)
		}
	}
	run("A", "Ada")
	run("B", "Grace")
	run("A", "Grace", "Ada")

	if got := svc.ListExperiments(core.ExperimentFilter{Recipe: "A"}); len(got) != 2 {
		t.Fatalf("expected 2 runs of A, got %d", len(got))
	}
	if got := svc.ListExperiments(core.ExperimentFilter{Researcher: "Grace"}); len(got) != 2 || got[0].RecipeName != "B" {
		t.Fatalf("expected Grace's runs in execution order, got %+v", got)
	}
	if got := svc.ListExperiments(core.ExperimentFilter{From: clockNow.AddDate(0, 0, 1)}); len(got) != 0 {
		t.Fatalf("expected no runs after tomorrow, got %d", len(got))
	}
	if got := svc.ListExperiments(core.ExperimentFilter{From: clockNow, To: clockNow}); len(got) != 3 {
		t.Fatalf("expected inclusive bounds, got %d", len(got))
	}
	if _, err := svc.GetExperiment("missing"); !errors.As(err, new(domain.UnknownExperimentError)) {
		t.Fatalf("expected UnknownExperimentError, got %v", err)
	}
}
