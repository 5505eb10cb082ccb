package postgres

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"labcore/internal/infra/persistence/memory"
	"labcore/internal/infra/persistence/postgres/testutil"
	"labcore/pkg/domain"

	"github.com/shopspring/decimal"
)

func useStub(t *testing.T) *testutil.StubConn {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	t.Cleanup(restore)
	return conn
}

func sampleReagent() domain.Reagent {
	return domain.Reagent{
		Name:             "Agarose",
		UnitCost:         decimal.RequireFromString("3.10"),
		Category:         "gel",
		QuantityOnHand:   decimal.RequireFromString("50"),
		Unit:             "g",
		MinimumThreshold: decimal.RequireFromString("5"),
	}
}

func TestNewStoreCreatesStateTable(t *testing.T) {
	conn := useStub(t)
	store, err := NewStore(context.Background(), "", domain.NewRulesEngine())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if store.DB() == nil {
		t.Fatalf("expected db handle")
	}
	var sawDDL bool
	for _, stmt := range conn.Execs {
		if strings.Contains(strings.ToUpper(stmt), "CREATE TABLE IF NOT EXISTS STATE") {
			sawDDL = true
		}
	}
	if !sawDDL {
		t.Fatalf("expected state table DDL, got execs: %v", conn.Execs)
	}
	if len(store.ListReagents()) != 0 {
		t.Fatalf("expected empty store")
	}
}

func TestRunInTransactionPersistsAndReloads(t *testing.T) {
	conn := useStub(t)
	fixed := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)
	store, err := NewStore(context.Background(), "ignored", nil, memory.WithClock(func() time.Time { return fixed }))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateReagent(sampleReagent()); err != nil {
			return err
		}
		_, err := tx.ConsumeReagent("Agarose", decimal.RequireFromString("1.5"), "gel", "")
		return err
	})
	if err != nil {
		t.Fatalf("RunInTransaction: %v", err)
	}
	rows := conn.Rows("state")
	if len(rows) != len(memory.Buckets) {
		t.Fatalf("expected %d buckets, got %d", len(memory.Buckets), len(rows))
	}

	reloaded, err := NewStore(context.Background(), "ignored", nil)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got, ok := reloaded.GetReagent("Agarose")
	if !ok {
		t.Fatalf("expected reagent loaded from snapshot")
	}
	if !got.QuantityOnHand.Equal(decimal.RequireFromString("48.5")) || !got.CreatedAt.Equal(fixed) {
		t.Fatalf("unexpected reloaded reagent %+v", got)
	}
}

func TestRunInTransactionStopsOnUserError(t *testing.T) {
	conn := useStub(t)
	store, err := NewStore(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	before := len(conn.Execs)
	_, err = store.RunInTransaction(context.Background(), func(domain.Transaction) error {
		return domain.UnknownReagentError{Name: "x"}
	})
	if err == nil {
		t.Fatalf("expected user error")
	}
	if len(conn.Execs) != before {
		t.Fatalf("expected no writes after failed transaction")
	}
}

func TestRunInTransactionReportsPersistFailures(t *testing.T) {
	conn := useStub(t)
	store, err := NewStore(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	create := func(tx domain.Transaction) error {
		_, err := tx.CreateReagent(sampleReagent())
		return err
	}

	conn.FailBegin = true
	if _, err := store.RunInTransaction(context.Background(), create); err == nil || !strings.Contains(err.Error(), "begin tx") {
		t.Fatalf("expected begin error, got %v", err)
	}
	if _, ok := store.GetReagent(sampleReagent().Name); ok {
		t.Fatalf("failed persist must not leave the reagent in memory")
	}
	conn.FailBegin = false
	if _, err := store.RunInTransaction(context.Background(), create); err != nil {
		t.Fatalf("create after recovery: %v", err)
	}
	conn.FailCommit = true
	if err := store.ImportState(context.Background(), domain.Snapshot{}); err == nil || !strings.Contains(err.Error(), "commit") {
		t.Fatalf("expected commit error, got %v", err)
	}
	conn.FailCommit = false
	conn.FailExec = true
	if err := store.ImportState(context.Background(), domain.Snapshot{}); err == nil || !strings.Contains(err.Error(), "upsert") {
		t.Fatalf("expected upsert error, got %v", err)
	}
	if got, ok := store.GetReagent(sampleReagent().Name); !ok || !got.QuantityOnHand.Equal(sampleReagent().QuantityOnHand) {
		t.Fatalf("failed imports must keep the previous state, got %+v", got)
	}
}

func TestNewStoreErrors(t *testing.T) {
	restore := OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return nil, sql.ErrConnDone })
	if _, err := NewStore(context.Background(), "", nil); err == nil {
		t.Fatalf("expected open error")
	}
	restore()

	conn := useStub(t)
	conn.FailPing = true
	if _, err := NewStore(context.Background(), "", nil); err == nil || !strings.Contains(err.Error(), "ping") {
		t.Fatalf("expected ping error, got %v", err)
	}
}

func TestNewStoreRejectsCorruptSnapshot(t *testing.T) {
	conn := useStub(t)
	conn.Tables["state"] = []map[string]any{{"bucket": memory.BucketReagents, "payload": []byte("{not json")}}
	if _, err := NewStore(context.Background(), "", nil); err == nil || !strings.Contains(err.Error(), "decode reagents") {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestNewStoreQueryFailure(t *testing.T) {
	conn := useStub(t)
	conn.FailQuery = true
	if _, err := NewStore(context.Background(), "", nil); err == nil || !strings.Contains(err.Error(), "select state") {
		t.Fatalf("expected query error, got %v", err)
	}
}
