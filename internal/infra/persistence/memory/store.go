// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"labcore/pkg/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Compile-time contract assertions ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Reagent aliases domain.Reagent for in-memory persistence operations.
	Reagent = domain.Reagent
	// Recipe aliases domain.Recipe.
	Recipe = domain.Recipe
	// Experiment aliases domain.Experiment.
	Experiment = domain.Experiment
	// Snapshot aliases domain.Snapshot, the exported form of the store state.
	Snapshot = domain.Snapshot
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	reagents    map[string]Reagent
	recipes     map[string]Recipe
	experiments []Experiment
	byID        map[string]int
}

func newMemoryState() memoryState {
	return memoryState{
		reagents: make(map[string]Reagent),
		recipes:  make(map[string]Recipe),
		byID:     make(map[string]int),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Reagents:    make(map[string]Reagent, len(state.reagents)),
		Recipes:     make(map[string]Recipe, len(state.recipes)),
		Experiments: make([]Experiment, 0, len(state.experiments)),
	}
	for k, v := range state.reagents {
		s.Reagents[k] = v.Clone()
	}
	for k, v := range state.recipes {
		s.Recipes[k] = v.Clone()
	}
	for _, e := range state.experiments {
		s.Experiments = append(s.Experiments, e.Clone())
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Reagents {
		state.reagents[k] = v.Clone()
	}
	for k, v := range s.Recipes {
		state.recipes[k] = v.Clone()
	}
	for _, e := range s.Experiments {
		state.byID[e.ID] = len(state.experiments)
		state.experiments = append(state.experiments, e.Clone())
	}
	return state
}

// migrateSnapshot normalizes snapshots written by older releases or hand-edited
// documents: nil collections become empty and map keys follow entity names.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	reagents := make(map[string]Reagent, len(snapshot.Reagents))
	for key, r := range snapshot.Reagents {
		if r.Name == "" {
			r.Name = key
		}
		if r.StorageLocation == "" {
			r.StorageLocation = domain.DefaultStorageLocation
		}
		reagents[r.Name] = r
	}
	snapshot.Reagents = reagents

	recipes := make(map[string]Recipe, len(snapshot.Recipes))
	for key, r := range snapshot.Recipes {
		if r.Name == "" {
			r.Name = key
		}
		recipes[r.Name] = r
	}
	snapshot.Recipes = recipes

	snapshot.Experiments = append([]Experiment{}, snapshot.Experiments...)
	sort.SliceStable(snapshot.Experiments, func(i, j int) bool {
		return snapshot.Experiments[i].Timestamp.Before(snapshot.Experiments[j].Timestamp)
	})
	return snapshot
}

func (s memoryState) clone() memoryState {
	return memoryStateFromSnapshot(snapshotFromMemoryState(s))
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used to stamp entities and stock movements.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState validates snapshot and replaces the store state with it.
func (s *Store) ImportState(_ context.Context, snapshot Snapshot) error {
	migrated := migrateSnapshot(snapshot)
	if err := migrated.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrated)
	return nil
}

// Restore replaces the store state without validation. It is meant for state
// this store produced itself: a rollback target or a durable snapshot.
func (s *Store) Restore(snapshot Snapshot) {
	migrated := migrateSnapshot(snapshot)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrated)
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

type transaction struct {
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListReagents returns all reagents within the snapshot sorted by name.
func (v transactionView) ListReagents() []Reagent {
	return listReagents(v.state)
}

// FindReagent retrieves a reagent by name.
func (v transactionView) FindReagent(name string) (Reagent, bool) {
	r, ok := v.state.reagents[name]
	if !ok {
		return Reagent{}, false
	}
	return r.Clone(), true
}

// ListRecipes returns all recipes sorted by name.
func (v transactionView) ListRecipes() []Recipe {
	return listRecipes(v.state)
}

// FindRecipe retrieves a recipe by name.
func (v transactionView) FindRecipe(name string) (Recipe, bool) {
	r, ok := v.state.recipes[name]
	if !ok {
		return Recipe{}, false
	}
	return r.Clone(), true
}

// ListExperiments returns the experiment history in execution order.
func (v transactionView) ListExperiments() []Experiment {
	return listExperiments(v.state)
}

// FindExperiment retrieves an experiment record by ID.
func (v transactionView) FindExperiment(id string) (Experiment, bool) {
	return findExperiment(v.state, id)
}

func listReagents(state *memoryState) []Reagent {
	out := make([]Reagent, 0, len(state.reagents))
	for _, r := range state.reagents {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func listRecipes(state *memoryState) []Recipe {
	out := make([]Recipe, 0, len(state.recipes))
	for _, r := range state.recipes {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func listExperiments(state *memoryState) []Experiment {
	out := make([]Experiment, 0, len(state.experiments))
	for _, e := range state.experiments {
		out = append(out, e.Clone())
	}
	return out
}

func findExperiment(state *memoryState, id string) (Experiment, bool) {
	idx, ok := state.byID[id]
	if !ok {
		return Experiment{}, false
	}
	return state.experiments[idx].Clone(), true
}

// RunInTransaction executes fn within a transactional copy of the store state.
// The copy replaces committed state only when fn succeeds and no rule blocks.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	return fn(newTransactionView(&snapshot))
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// Now returns the timestamp shared by every mutation in the transaction.
func (tx *transaction) Now() time.Time {
	return tx.now
}

// FindReagent exposes reagent lookup within the transaction scope.
func (tx *transaction) FindReagent(name string) (Reagent, bool) {
	return transactionView{state: &tx.state}.FindReagent(name)
}

// FindRecipe exposes recipe lookup within the transaction scope.
func (tx *transaction) FindRecipe(name string) (Recipe, bool) {
	return transactionView{state: &tx.state}.FindRecipe(name)
}

// CreateReagent validates and registers a new reagent.
func (tx *transaction) CreateReagent(r Reagent) (Reagent, error) {
	if err := r.Validate(); err != nil {
		return Reagent{}, err
	}
	if _, exists := tx.state.reagents[r.Name]; exists {
		return Reagent{}, domain.DuplicateNameError{Entity: domain.EntityReagent, Name: r.Name}
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	tx.state.reagents[r.Name] = r.Clone()
	tx.recordChange(Change{Entity: domain.EntityReagent, Action: domain.ActionCreate, After: r.Clone()})
	return r.Clone(), nil
}

// UpdateReagent mutates a reagent using the provided mutator function. The name
// is the ledger key and cannot be changed.
func (tx *transaction) UpdateReagent(name string, mutator func(*Reagent) error) (Reagent, error) {
	current, ok := tx.state.reagents[name]
	if !ok {
		return Reagent{}, domain.UnknownReagentError{Name: name}
	}
	before := current.Clone()
	if err := mutator(&current); err != nil {
		return Reagent{}, err
	}
	current.Name = name
	current.UpdatedAt = tx.now
	tx.state.reagents[name] = current.Clone()
	tx.recordChange(Change{Entity: domain.EntityReagent, Action: domain.ActionUpdate, Before: before, After: current.Clone()})
	return current.Clone(), nil
}

// ConsumeReagent decrements stock and appends a usage movement. A request larger
// than the stock on hand fails without touching the reagent.
func (tx *transaction) ConsumeReagent(name string, quantity decimal.Decimal, reason, reference string) (Reagent, error) {
	if err := domain.ValidatePositiveDecimal("quantity", quantity); err != nil {
		return Reagent{}, err
	}
	current, ok := tx.state.reagents[name]
	if !ok {
		return Reagent{}, domain.UnknownReagentError{Name: name}
	}
	if quantity.GreaterThan(current.QuantityOnHand) {
		return Reagent{}, domain.InsufficientStockError{Reagent: name, Requested: quantity, Available: current.QuantityOnHand}
	}
	return tx.UpdateReagent(name, func(r *Reagent) error {
		next := r.QuantityOnHand.Sub(quantity)
		r.UsageHistory = append(r.UsageHistory, domain.StockMovement{
			Kind:          domain.MovementUsage,
			At:            tx.now,
			Quantity:      quantity,
			PreviousLevel: r.QuantityOnHand,
			NewLevel:      next,
			Reason:        reason,
			Reference:     reference,
		})
		r.QuantityOnHand = next
		return nil
	})
}

// ReplenishReagent increments stock and appends a purchase movement.
func (tx *transaction) ReplenishReagent(name string, quantity decimal.Decimal, purchase domain.PurchaseInfo) (Reagent, error) {
	if err := domain.ValidatePositiveDecimal("quantity", quantity); err != nil {
		return Reagent{}, err
	}
	if _, ok := tx.state.reagents[name]; !ok {
		return Reagent{}, domain.UnknownReagentError{Name: name}
	}
	return tx.UpdateReagent(name, func(r *Reagent) error {
		next := r.QuantityOnHand.Add(quantity)
		movement := domain.StockMovement{
			Kind:          domain.MovementPurchase,
			At:            tx.now,
			Quantity:      quantity,
			PreviousLevel: r.QuantityOnHand,
			NewLevel:      next,
			Reason:        purchase.Reason,
			Reference:     purchase.Reference,
			Supplier:      purchase.Supplier,
		}
		if purchase.UnitCost != nil {
			c := *purchase.UnitCost
			movement.UnitCost = &c
		}
		r.PurchaseHistory = append(r.PurchaseHistory, movement)
		r.QuantityOnHand = next
		return nil
	})
}

// CreateRecipe validates and registers a recipe definition. Every required
// reagent must already be in the ledger.
func (tx *transaction) CreateRecipe(r Recipe) (Recipe, error) {
	if err := r.Validate(); err != nil {
		return Recipe{}, err
	}
	if _, exists := tx.state.recipes[r.Name]; exists {
		return Recipe{}, domain.DuplicateNameError{Entity: domain.EntityRecipe, Name: r.Name}
	}
	for _, req := range r.RequiredReagents {
		if _, ok := tx.state.reagents[req.Reagent]; !ok {
			return Recipe{}, domain.UnknownReagentError{Name: req.Reagent}
		}
	}
	r.CreatedAt = tx.now
	tx.state.recipes[r.Name] = r.Clone()
	tx.recordChange(Change{Entity: domain.EntityRecipe, Action: domain.ActionCreate, After: r.Clone()})
	return r.Clone(), nil
}

// CreateExperiment appends a record to the experiment history.
func (tx *transaction) CreateExperiment(e Experiment) (Experiment, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if _, exists := tx.state.byID[e.ID]; exists {
		return Experiment{}, fmt.Errorf("experiment %q already exists", e.ID)
	}
	if _, ok := tx.state.recipes[e.RecipeName]; !ok {
		return Experiment{}, domain.UnknownRecipeError{Name: e.RecipeName}
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = tx.now
	}
	tx.state.byID[e.ID] = len(tx.state.experiments)
	tx.state.experiments = append(tx.state.experiments, e.Clone())
	tx.recordChange(Change{Entity: domain.EntityExperiment, Action: domain.ActionCreate, After: e.Clone()})
	return e.Clone(), nil
}

// Read helpers ---------------------------------------------------------------

// GetReagent retrieves a reagent by name from committed state.
func (s *Store) GetReagent(name string) (Reagent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return transactionView{state: &s.state}.FindReagent(name)
}

// ListReagents returns all reagents from committed state sorted by name.
func (s *Store) ListReagents() []Reagent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listReagents(&s.state)
}

// GetRecipe retrieves a recipe by name.
func (s *Store) GetRecipe(name string) (Recipe, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return transactionView{state: &s.state}.FindRecipe(name)
}

// ListRecipes returns all recipes sorted by name.
func (s *Store) ListRecipes() []Recipe {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listRecipes(&s.state)
}

// GetExperiment retrieves an experiment record by ID.
func (s *Store) GetExperiment(id string) (Experiment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findExperiment(&s.state, id)
}

// ListExperiments returns the experiment history in execution order.
func (s *Store) ListExperiments() []Experiment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listExperiments(&s.state)
}
