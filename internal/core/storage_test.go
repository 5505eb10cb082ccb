package core

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"labcore/internal/config"
	"labcore/internal/infra/persistence/memory"
	"labcore/internal/infra/persistence/sqlite"
	"labcore/pkg/domain"
)

func TestOpenPersistentStoreDrivers(t *testing.T) {
	ctx := context.Background()
	store, err := OpenPersistentStore(ctx, config.Storage{Driver: "memory"}, NewDefaultRulesEngine())
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}

	path := filepath.Join(t.TempDir(), "nested", "lab.db")
	store, err = OpenPersistentStore(ctx, config.Storage{Driver: "sqlite", SQLitePath: path}, NewDefaultRulesEngine())
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	sq, ok := store.(*sqlite.Store)
	if !ok || sq.Path() != path {
		t.Fatalf("expected sqlite store at %s, got %T", path, store)
	}
	if err := sq.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := OpenPersistentStore(ctx, config.Storage{Driver: "mongo"}, nil); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestSQLiteBackedServiceSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	cfg := config.Storage{Driver: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "lab.db")}
	now := func() time.Time { return observedNow }
	open := func() (*Service, io.Closer) {
		t.Helper()
		store, err := OpenPersistentStore(ctx, cfg, NewDefaultRulesEngine(), memory.WithClock(now))
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		return NewService(store, WithClock(ClockFunc(now))), store.(io.Closer)
	}

	svc, closer := open()
	reagent := domain.Reagent{
		Name:             "Agar",
		UnitCost:         decimal.RequireFromString("0.5"),
		Category:         "media",
		QuantityOnHand:   decimal.RequireFromString("40"),
		Unit:             "g",
		MinimumThreshold: decimal.RequireFromString("5"),
	}
	if _, _, err := svc.RegisterReagent(ctx, reagent); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, _, err := svc.ConsumeReagent(ctx, "Agar", decimal.RequireFromString("15"), "plates"); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	svc, closer = open()
	defer func() { _ = closer.Close() }()
	got, err := svc.GetReagent("Agar")
	if err != nil {
		t.Fatalf("get after restart: %v", err)
	}
	if !got.QuantityOnHand.Equal(decimal.RequireFromString("25")) || len(got.UsageHistory) != 1 {
		t.Fatalf("unexpected reagent after restart %+v", got)
	}
}
