package core_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"labcore/internal/core"
	"labcore/internal/infra/persistence/memory"
	"labcore/pkg/domain"
)

func names(seq func(func(domain.Reagent) bool)) []string {
	var out []string
	for r := range seq {
		out = append(out, r.Name)
	}
	return out
}

func TestExpiredQuery(t *testing.T) {
	svc := newService()
	today := clockNow
	old := naoh("10")
	old.Name = "Old"
	old.ExpirationDate = date("2025-06-01")
	fresh := naoh("10")
	fresh.Name = "Fresh"
	fresh.ExpirationDate = date("2025-06-03")
	mustRegister(t, svc, old, fresh)

	expired := svc.Expired(today)
	if got := names(expired); !slices.Equal(got, []string{"Old"}) {
		t.Fatalf("expected only Old expired, got %v", got)
	}
	if got := names(svc.Expired(today.AddDate(0, 0, 2))); !slices.Equal(got, []string{"Fresh", "Old"}) {
		t.Fatalf("expected both expired two days later, got %v", got)
	}

	later := naoh("10")
	later.Name = "Ancient"
	later.ExpirationDate = date("2020-01-01")
	mustRegister(t, svc, later)
	if got := names(expired); !slices.Equal(got, []string{"Ancient", "Old"}) {
		t.Fatalf("expected sequence to re-read the ledger, got %v", got)
	}
}

func TestBelowThresholdIsLazyAndStoppable(t *testing.T) {
	svc := newService()
	low := naoh("5")
	low.Name = "Low"
	ok := naoh("50")
	ok.Name = "Ok"
	mustRegister(t, svc, low, ok)
	seq := svc.BelowThreshold()
	if got := names(seq); !slices.Equal(got, []string{"Low"}) {
		t.Fatalf("unexpected below threshold %v", got)
	}
	if _, _, err := svc.ConsumeReagent(context.Background(), "Ok", dec("31"), "spill"); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if got := names(seq); !slices.Equal(got, []string{"Low", "Ok"}) {
		t.Fatalf("expected Ok to join after consumption, got %v", got)
	}
	count := 0
	for range seq {
		count++
		break
	}
	if count != 1 {
		t.Fatalf("expected early break to stop iteration")
	}
}

func TestConsumeReagentWarnsAndRejects(t *testing.T) {
	svc := newService()
	mustRegister(t, svc, naoh("100"))
	ctx := context.Background()

	r, res, err := svc.ConsumeReagent(ctx, "NaOH", dec("85"), "cleaning")
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if !r.QuantityOnHand.Equal(dec("15")) {
		t.Fatalf("expected 15 left, got %s", r.QuantityOnHand)
	}
	warnings := res.Warnings()
	if len(warnings) != 1 || warnings[0].Rule != "reagent_below_threshold" || warnings[0].EntityID != "NaOH" {
		t.Fatalf("expected below threshold warning, got %+v", res.Violations)
	}

	_, _, err = svc.ConsumeReagent(ctx, "NaOH", dec("15.01"), "too much")
	var stockErr domain.InsufficientStockError
	if !errors.As(err, &stockErr) || !stockErr.Available.Equal(dec("15")) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if _, _, err := svc.ConsumeReagent(ctx, "NaOH", dec("0"), "zero"); !errors.As(err, new(domain.ValidationError)) {
		t.Fatalf("expected ValidationError for zero quantity, got %v", err)
	}
	if _, _, err := svc.ConsumeReagent(ctx, "KOH", dec("1"), ""); !errors.As(err, new(domain.UnknownReagentError)) {
		t.Fatalf("expected UnknownReagentError, got %v", err)
	}
	r, _ = svc.GetReagent("NaOH")
	if !r.QuantityOnHand.Equal(dec("15")) || len(r.UsageHistory) != 1 {
		t.Fatalf("expected failed consumptions to be no-ops, got %+v", r)
	}
}

func TestRegisterReagentErrors(t *testing.T) {
	svc := newService()
	mustRegister(t, svc, naoh("1"))
	ctx := context.Background()
	if _, _, err := svc.RegisterReagent(ctx, naoh("2")); !errors.As(err, new(domain.DuplicateNameError)) {
		t.Fatalf("expected DuplicateNameError, got %v", err)
	}
	bad := naoh("1")
	bad.Name = "Bad"
	bad.UnitCost = dec("-1")
	if _, _, err := svc.RegisterReagent(ctx, bad); !errors.As(err, new(domain.ValidationError)) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, err := svc.GetReagent("Missing"); !errors.As(err, new(domain.UnknownReagentError)) {
		t.Fatalf("expected UnknownReagentError, got %v", err)
	}
}

func TestOrderWorkflow(t *testing.T) {
	svc := newService()
	mustRegister(t, svc, naoh("5"))
	ctx := context.Background()

	order, _, err := svc.PlaceOrder(ctx, "NaOH", dec("45"), " Sigma ")
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if order.Status != domain.OrderPending || order.Supplier != "Sigma" || !order.ExpectedDelivery.Equal(clockNow.Add(7*24*time.Hour)) {
		t.Fatalf("unexpected order %+v", order)
	}
	r, _ := svc.GetReagent("NaOH")
	if !r.QuantityOnHand.Equal(dec("5")) || len(r.PendingOrders) != 1 {
		t.Fatalf("expected stock unchanged with one pending order, got %+v", r)
	}
	if report := svc.InventoryReport(clockNow); report.PendingOrder != 1 {
		t.Fatalf("expected pending order in report, got %+v", report)
	}

	r, _, err = svc.ReceiveOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if !r.QuantityOnHand.Equal(dec("50")) || r.PendingOrders[0].Status != domain.OrderReceived || r.PendingOrders[0].ReceivedAt == nil {
		t.Fatalf("unexpected reagent after receipt %+v", r)
	}
	if len(r.PurchaseHistory) != 1 || r.PurchaseHistory[0].Reference != order.ID || r.PurchaseHistory[0].Supplier != "Sigma" {
		t.Fatalf("expected purchase movement for order, got %+v", r.PurchaseHistory)
	}
	if _, _, err := svc.ReceiveOrder(ctx, order.ID); !errors.As(err, new(domain.UnknownOrderError)) {
		t.Fatalf("expected UnknownOrderError on second receipt, got %v", err)
	}
	if _, _, err := svc.PlaceOrder(ctx, "NaOH", dec("1"), ""); !errors.As(err, new(domain.ValidationError)) {
		t.Fatalf("expected supplier validation error, got %v", err)
	}
	if _, _, err := svc.PlaceOrder(ctx, "KOH", dec("1"), "Sigma"); !errors.As(err, new(domain.UnknownReagentError)) {
		t.Fatalf("expected UnknownReagentError, got %v", err)
	}
}

func TestReplenishReagent(t *testing.T) {
	svc := newService()
	mustRegister(t, svc, naoh("5"))
	cost := dec("0.20")
	r, _, err := svc.ReplenishReagent(context.Background(), "NaOH", dec("10"), domain.PurchaseInfo{Supplier: "Merck", Reason: "restock", UnitCost: &cost})
	if err != nil {
		t.Fatalf("replenish: %v", err)
	}
	if !r.QuantityOnHand.Equal(dec("15")) || !r.UnitCost.Equal(dec("0.25")) {
		t.Fatalf("expected stock 15 and unchanged list price, got %+v", r)
	}
	if m := r.PurchaseHistory[0]; !m.PreviousLevel.Equal(dec("5")) || !m.NewLevel.Equal(dec("15")) || !m.UnitCost.Equal(cost) {
		t.Fatalf("unexpected movement %+v", m)
	}
}

func TestAlertsAndInventoryReport(t *testing.T) {
	svc := newService(core.WithExpiryAlertDays(10))
	low := naoh("5")
	low.Name = "Low"
	expiring := naoh("50")
	expiring.Name = "Soon"
	expiring.Category = "stain"
	expiring.StorageLocation = "fridge"
	expiring.ExpirationDate = date("2025-06-12")
	distant := naoh("50")
	distant.Name = "Later"
	distant.ExpirationDate = date("2025-06-13")
	gone := naoh("50")
	gone.Name = "Gone"
	gone.ExpirationDate = date("2025-05-01")
	mustRegister(t, svc, low, expiring, distant, gone)

	alerts := svc.Alerts(clockNow)
	var got []string
	for _, a := range alerts {
		got = append(got, a.Reagent+":"+string(a.Kind))
	}
	want := []string{"Gone:expired", "Low:low_stock", "Soon:expiring"}
	if !slices.Equal(got, want) {
		t.Fatalf("alerts = %v, want %v", got, want)
	}
	if *alerts[2].DaysLeft != 10 {
		t.Fatalf("expected 10 days left, got %d", *alerts[2].DaysLeft)
	}

	report := svc.InventoryReport(clockNow)
	if report.ReagentCount != 4 || report.LowStock != 1 || report.Expired != 1 || report.ExpiringSoon != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if !report.TotalValue.Equal(dec("38.75")) {
		t.Fatalf("expected total value 38.75, got %s", report.TotalValue)
	}
	if report.Categories["base"] != 3 || report.Locations["fridge"] != 1 || report.Locations[domain.DefaultStorageLocation] != 3 {
		t.Fatalf("unexpected groupings %+v %+v", report.Categories, report.Locations)
	}
	if !report.ValueByCat["stain"].Equal(dec("12.5")) {
		t.Fatalf("unexpected category value %s", report.ValueByCat["stain"])
	}
}

func TestUsageStatistics(t *testing.T) {
	svc := newService()
	a := naoh("100")
	a.Name = "A"
	b := naoh("100")
	b.Name = "B"
	c := naoh("100")
	c.Name = "C"
	mustRegister(t, svc, a, b, c)
	ctx := context.Background()
	for _, step := range []struct{ name, qty string }{{"A", "1"}, {"B", "5"}, {"A", "2"}, {"C", "3"}} {
		if _, _, err := svc.ConsumeReagent(ctx, step.name, dec(step.qty), "use"); err != nil {
			t.Fatalf("consume: %v", err)
		}
	}
	stats := svc.UsageStatistics(0)
	if len(stats) != 3 || stats[0].Reagent != "B" || stats[1].Reagent != "A" || stats[1].Uses != 2 || !stats[1].TotalUsed.Equal(dec("3")) {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats[2].Reagent != "C" {
		t.Fatalf("expected ties broken by name, got %+v", stats)
	}
	if top := svc.UsageStatistics(1); len(top) != 1 || top[0].Reagent != "B" {
		t.Fatalf("expected limit to truncate, got %+v", top)
	}
}

func TestRecipeQueries(t *testing.T) {
	svc := newService()
	mustRegister(t, svc, naoh("10"))
	mustRecipe(t, svc, "Titration", map[string]string{"NaOH": "30"}, phRange())
	ctx := context.Background()

	cost, err := svc.EstimateRecipeCost(ctx, "Titration")
	if err != nil || !cost.Equal(dec("7.5")) {
		t.Fatalf("expected cost 7.5, got %s %v", cost, err)
	}
	blocking, err := svc.CheckRecipeFeasibility(ctx, "Titration")
	if err != nil || len(blocking) != 1 || blocking[0].Reagent != "NaOH" {
		t.Fatalf("expected NaOH to block, got %+v %v", blocking, err)
	}
	if _, err := svc.EstimateRecipeCost(ctx, "Nope"); !errors.As(err, new(domain.UnknownRecipeError)) {
		t.Fatalf("expected UnknownRecipeError, got %v", err)
	}
	if _, err := svc.CheckRecipeFeasibility(ctx, "Nope"); !errors.As(err, new(domain.UnknownRecipeError)) {
		t.Fatalf("expected UnknownRecipeError, got %v", err)
	}
	if _, err := svc.GetRecipe("Nope"); !errors.As(err, new(domain.UnknownRecipeError)) {
		t.Fatalf("expected UnknownRecipeError, got %v", err)
	}
	if got := svc.ListRecipes(); len(got) != 1 || got[0].Name != "Titration" {
		t.Fatalf("unexpected recipes %+v", got)
	}
	if _, _, err := svc.ReplenishReagent(ctx, "NaOH", dec("20"), domain.PurchaseInfo{}); err != nil {
		t.Fatalf("replenish: %v", err)
	}
	if blocking, _ := svc.CheckRecipeFeasibility(ctx, "Titration"); len(blocking) != 0 {
		t.Fatalf("expected recipe feasible after restock, got %+v", blocking)
	}
}

func TestSnapshotExportImport(t *testing.T) {
	svc := newService()
	mustRegister(t, svc, naoh("100"))
	mustRecipe(t, svc, "Titration", map[string]string{"NaOH": "30"}, phRange())
	if _, _, err := svc.ExecuteExperiment(context.Background(), core.ExecutionRequest{RecipeName: "Titration", ResponsiblePeople: []string{"Ada"}, Measurements: map[string]float64{"pH": 6.5}}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	snap := svc.ExportSnapshot()
	other := newService()
	if err := other.ImportSnapshot(context.Background(), snap); err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(other.ListExperiments(core.ExperimentFilter{})) != 1 {
		t.Fatalf("expected imported history")
	}
	r, _ := other.GetReagent("NaOH")
	if !r.QuantityOnHand.Equal(dec("70")) {
		t.Fatalf("expected imported stock 70, got %s", r.QuantityOnHand)
	}
}

func TestReceiveOrderStampsTransactionTime(t *testing.T) {
	storeNow := clockNow.Add(90 * time.Minute)
	store := memory.NewStore(core.NewDefaultRulesEngine(), memory.WithClock(func() time.Time { return storeNow }))
	svc := core.NewService(store, fixedClock())
	mustRegister(t, svc, naoh("5"))
	ctx := context.Background()

	order, _, err := svc.PlaceOrder(ctx, "NaOH", dec("10"), "Sigma")
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	r, _, err := svc.ReceiveOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	received := r.PendingOrders[0].ReceivedAt
	if received == nil || !received.Equal(storeNow) || !received.Equal(r.PurchaseHistory[0].At) {
		t.Fatalf("expected receipt stamped with the purchase movement time %s, got %v", r.PurchaseHistory[0].At, received)
	}
}

func TestImportSnapshotRejectsInvalidState(t *testing.T) {
	svc := newService()
	mustRegister(t, svc, naoh("100"))
	ctx := context.Background()

	negative := svc.ExportSnapshot()
	r := negative.Reagents["NaOH"]
	r.QuantityOnHand = dec("-5")
	negative.Reagents["NaOH"] = r
	var verr domain.ValidationError
	if err := svc.ImportSnapshot(ctx, negative); !errors.As(err, &verr) || verr.Field != "reagents[NaOH].quantity_on_hand" {
		t.Fatalf("expected negative stock to be rejected, got %v", err)
	}

	dangling := svc.ExportSnapshot()
	dangling.Recipes = map[string]domain.Recipe{
		"Titration": {
			Name:             "Titration",
			RequiredReagents: []domain.RequiredReagent{{Reagent: "HCl", Quantity: dec("5")}},
			ExpectedResults:  phRange(),
		},
	}
	if err := svc.ImportSnapshot(ctx, dangling); !errors.As(err, new(domain.UnknownReagentError)) {
		t.Fatalf("expected dangling recipe reference to be rejected, got %v", err)
	}

	got, err := svc.GetReagent("NaOH")
	if err != nil || !got.QuantityOnHand.Equal(dec("100")) {
		t.Fatalf("expected stock 100 after rejected imports, got %+v (%v)", got, err)
	}
	if _, err := svc.GetRecipe("Titration"); !errors.As(err, new(domain.UnknownRecipeError)) {
		t.Fatalf("rejected import must not add recipes, got %v", err)
	}
}
