// Package core hosts the labcore service: the reagent ledger workflow, the
// recipe book and the experiment execution engine on top of a PersistentStore.
package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"labcore/internal/infra/persistence/memory"
	"labcore/pkg/domain"
)

// Service exposes transactional ledger, recipe and experiment operations.
type Service struct {
	store     PersistentStore
	clock     Clock
	logger    Logger
	audit     AuditRecorder
	metrics   MetricsRecorder
	tracer    Tracer
	tolerance float64
	alertDays int
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	cfg := defaultServiceOptions()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Service{
		store:     store,
		clock:     cfg.clock,
		logger:    cfg.logger,
		audit:     cfg.audit,
		metrics:   cfg.metrics,
		tracer:    cfg.tracer,
		tolerance: cfg.tolerance,
		alertDays: cfg.alertDays,
	}
}

// NewInMemoryService creates a service over a fresh in-memory store. The
// store stamps records with the service clock.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	cfg := defaultServiceOptions()
	for _, opt := range opts {
		opt(&cfg)
	}
	store := memory.NewStore(engine, memory.WithClock(cfg.clock.Now))
	return NewService(store, opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// Now returns the service clock reading.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

// Tolerance returns the relative tolerance used for exact-value expectations.
func (s *Service) Tolerance() float64 {
	return s.tolerance
}

var operationMeta = map[string]struct {
	entity domain.EntityType
	action domain.Action
}{
	opRegisterReagent:   {domain.EntityReagent, domain.ActionCreate},
	opConsumeReagent:    {domain.EntityReagent, domain.ActionUpdate},
	opReplenishReagent:  {domain.EntityReagent, domain.ActionUpdate},
	opPlaceOrder:        {domain.EntityReagent, domain.ActionUpdate},
	opReceiveOrder:      {domain.EntityReagent, domain.ActionUpdate},
	opCreateRecipe:      {domain.EntityRecipe, domain.ActionCreate},
	opExecuteExperiment: {domain.EntityExperiment, domain.ActionCreate},
}

const (
	opRegisterReagent   = "register_reagent"
	opConsumeReagent    = "consume_reagent"
	opReplenishReagent  = "replenish_reagent"
	opPlaceOrder        = "place_order"
	opReceiveOrder      = "receive_order"
	opCreateRecipe      = "create_recipe"
	opExecuteExperiment = "execute_experiment"
	opImportSnapshot    = "import_snapshot"
)

// run executes fn in a store transaction and reports the outcome to the
// tracer, metrics, logger and audit sinks. fn returns the affected entity ID.
func (s *Service) run(ctx context.Context, op string, fn func(tx Transaction) (string, error)) (Result, error) {
	ctx, span := s.tracer.Start(ctx, op)
	started := time.Now()
	var entityID string
	res, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		id, err := fn(tx)
		entityID = id
		return err
	})
	elapsed := time.Since(started)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, elapsed)
	if err != nil {
		s.logger.Error("operation failed", "operation", op, "entity_id", entityID, "error", err)
		s.recordAudit(ctx, op, entityID, elapsed, err)
		return res, err
	}
	for _, w := range res.Warnings() {
		s.logger.Warn("rule warning", "operation", op, "rule", w.Rule, "entity_id", w.EntityID, "message", w.Message)
	}
	s.logger.Debug("operation committed", "operation", op, "entity_id", entityID, "duration", elapsed)
	s.recordAudit(ctx, op, entityID, elapsed, nil)
	return res, nil
}

func (s *Service) recordAudit(ctx context.Context, op, entityID string, duration time.Duration, err error) {
	meta, ok := operationMeta[op]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: op,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  entityID,
		Status:    AuditStatusSuccess,
		Timestamp: s.clock.Now(),
		Duration:  duration,
	}
	if err != nil {
		entry.Status = AuditStatusError
		if errors.As(err, new(RuleViolationError)) {
			entry.Status = AuditStatusBlocked
		}
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

// ExportSnapshot returns a copy of the full ledger, recipe book and history.
func (s *Service) ExportSnapshot() Snapshot {
	return s.store.ExportState()
}

// ImportSnapshot replaces the store state with snapshot.
func (s *Service) ImportSnapshot(ctx context.Context, snapshot Snapshot) error {
	ctx, span := s.tracer.Start(ctx, opImportSnapshot)
	started := time.Now()
	err := s.store.ImportState(ctx, snapshot)
	span.End(err)
	s.metrics.Observe(ctx, opImportSnapshot, err == nil, time.Since(started))
	if err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}
	s.logger.Info("snapshot imported",
		"reagents", len(snapshot.Reagents),
		"recipes", len(snapshot.Recipes),
		"experiments", len(snapshot.Experiments))
	return nil
}
