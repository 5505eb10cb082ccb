package core_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"labcore/internal/core"
	"labcore/pkg/domain"
)

var clockNow = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func fixedClock() core.ServiceOption {
	return core.WithClock(core.ClockFunc(func() time.Time { return clockNow }))
}

func newService(opts ...core.ServiceOption) *core.Service {
	return core.NewInMemoryService(core.NewDefaultRulesEngine(), append([]core.ServiceOption{fixedClock()}, opts...)...)
}

func naoh(qty string) domain.Reagent {
	return domain.Reagent{
		Name:             "NaOH",
		UnitCost:         dec("0.25"),
		Category:         "base",
		QuantityOnHand:   dec(qty),
		Unit:             "g",
		MinimumThreshold: dec("20"),
	}
}

func mustRegister(t *testing.T, svc *core.Service, reagents ...domain.Reagent) {
	t.Helper()
	for _, r := range reagents {
		if _, _, err := svc.RegisterReagent(context.Background(), r); err != nil {
			t.Fatalf("register %s: %v", r.Name, err)
		}
	}
}

func mustRecipe(t *testing.T, svc *core.Service, name string, required map[string]string, expected map[string]domain.ExpectedResult) domain.Recipe {
	t.Helper()
	var reqs []domain.RequiredReagent
	for reagent, qty := range required {
		reqs = append(reqs, domain.RequiredReagent{Reagent: reagent, Quantity: dec(qty)})
	}
	recipe, err := domain.NewRecipe(name, "test objective", reqs, expected, []string{"prepare", "measure"})
	if err != nil {
		t.Fatalf("new recipe %s: %v", name, err)
	}
	created, _, err := svc.CreateRecipe(context.Background(), recipe)
	if err != nil {
		t.Fatalf("create recipe %s: %v", name, err)
	}
	return created
}

func phRange() map[string]domain.ExpectedResult {
	return map[string]domain.ExpectedResult{"pH": domain.Range(6.0, 7.0)}
}

func date(s string) *time.Time {
	d, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return &d
}
