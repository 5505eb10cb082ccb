package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"labcore/pkg/domain"

	"github.com/shopspring/decimal"
)

func newReagent(name string) domain.Reagent {
	exp := time.Date(2027, 1, 31, 0, 0, 0, 0, time.UTC)
	return domain.Reagent{
		Name:             name,
		UnitCost:         decimal.RequireFromString("1.25"),
		Category:         "solvent",
		QuantityOnHand:   decimal.RequireFromString("40"),
		Unit:             "mL",
		MinimumThreshold: decimal.RequireFromString("10"),
		ExpirationDate:   &exp,
		SafetyInfo:       map[string]string{"flammable": "yes"},
	}
}

func TestSQLiteStorePersistAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	ctx := context.Background()
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if _, err := tx.CreateReagent(newReagent("Ethanol")); err != nil {
			return err
		}
		if _, err := tx.ConsumeReagent("Ethanol", decimal.RequireFromString("2.5"), "cleaning", ""); err != nil {
			return err
		}
		recipe, err := domain.NewRecipe("Rinse", "rinse glassware",
			[]domain.RequiredReagent{{Reagent: "Ethanol", Quantity: decimal.RequireFromString("5")}},
			map[string]domain.ExpectedResult{"residue": domain.Exact(0)},
			[]string{"rinse"})
		if err != nil {
			return err
		}
		if _, err := tx.CreateRecipe(recipe); err != nil {
			return err
		}
		_, err = tx.CreateExperiment(domain.Experiment{RecipeName: "Rinse", Success: true, Validations: map[string]bool{"residue": true}})
		return err
	}); err != nil {
		t.Fatalf("transaction: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reloaded, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	if reloaded.Path() != path {
		t.Fatalf("unexpected path %s", reloaded.Path())
	}
	got, ok := reloaded.GetReagent("Ethanol")
	if !ok {
		t.Fatalf("expected reagent after reload")
	}
	if !got.QuantityOnHand.Equal(decimal.RequireFromString("37.5")) || len(got.UsageHistory) != 1 {
		t.Fatalf("unexpected reloaded reagent %+v", got)
	}
	if got.SafetyInfo["flammable"] != "yes" || got.ExpirationDate == nil {
		t.Fatalf("lost reagent details on reload: %+v", got)
	}
	if len(reloaded.ListRecipes()) != 1 {
		t.Fatalf("expected recipe after reload")
	}
	history := reloaded.ListExperiments()
	if len(history) != 1 || !history[0].Validations["residue"] {
		t.Fatalf("unexpected experiment history %+v", history)
	}
}

func TestSQLiteStoreCreatesStateTable(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"), domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	var tableName string
	if err := store.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name= ?", "state").Scan(&tableName); err != nil {
		t.Fatalf("lookup state table: %v", err)
	}
	if tableName != "state" {
		t.Fatalf("expected state table, got %s", tableName)
	}
}

func TestSQLiteImportStateWritesThrough(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	snapshot := domain.Snapshot{Reagents: map[string]domain.Reagent{"Acetone": newReagent("Acetone")}}
	if err := store.ImportState(context.Background(), snapshot); err != nil {
		t.Fatalf("import: %v", err)
	}
	_ = store.Close()

	reloaded, err := NewStore(path, nil)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	t.Cleanup(func() { _ = reloaded.Close() })
	if _, ok := reloaded.GetReagent("Acetone"); !ok {
		t.Fatalf("expected imported reagent to persist")
	}
	var buckets int
	if err := reloaded.DB().QueryRow("SELECT COUNT(*) FROM state").Scan(&buckets); err != nil {
		t.Fatalf("count buckets: %v", err)
	}
	if buckets != 3 {
		t.Fatalf("expected 3 buckets, got %d", buckets)
	}
}

func TestSQLiteFailedTransactionDoesNotPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, nil)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.ConsumeReagent("ghost", decimal.RequireFromString("1"), "", "")
		return err
	})
	if err == nil {
		t.Fatalf("expected unknown reagent error")
	}
	var buckets int
	if err := store.DB().QueryRow("SELECT COUNT(*) FROM state").Scan(&buckets); err != nil {
		t.Fatalf("count buckets: %v", err)
	}
	if buckets != 0 {
		t.Fatalf("failed transaction must not snapshot, found %d buckets", buckets)
	}
}

func TestSQLitePersistFailureKeepsPreviousState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	store, err := NewStore(path, domain.NewRulesEngine())
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	ctx := context.Background()
	if _, err := store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.CreateReagent(newReagent("Ethanol"))
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.DB().Close(); err != nil {
		t.Fatalf("close db: %v", err)
	}

	_, err = store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		_, err := tx.ConsumeReagent("Ethanol", decimal.RequireFromString("10"), "cleaning", "")
		return err
	})
	if err == nil {
		t.Fatalf("expected persist error on closed database")
	}
	got, ok := store.GetReagent("Ethanol")
	if !ok || !got.QuantityOnHand.Equal(decimal.RequireFromString("40")) || len(got.UsageHistory) != 0 {
		t.Fatalf("failed persist must leave stock at 40, got %+v", got)
	}

	replacement := domain.Snapshot{Reagents: map[string]domain.Reagent{"Acetone": newReagent("Acetone")}}
	if err := store.ImportState(ctx, replacement); err == nil {
		t.Fatalf("expected import persist error on closed database")
	}
	if _, ok := store.GetReagent("Acetone"); ok {
		t.Fatalf("failed import must keep the previous state")
	}
	if _, ok := store.GetReagent("Ethanol"); !ok {
		t.Fatalf("expected Ethanol to survive the failed import")
	}
}
