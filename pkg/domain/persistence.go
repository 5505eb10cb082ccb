package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateReagent(Reagent) (Reagent, error)
	UpdateReagent(name string, mutator func(*Reagent) error) (Reagent, error)
	ConsumeReagent(name string, quantity decimal.Decimal, reason, reference string) (Reagent, error)
	ReplenishReagent(name string, quantity decimal.Decimal, purchase PurchaseInfo) (Reagent, error)
	CreateRecipe(Recipe) (Recipe, error)
	CreateExperiment(Experiment) (Experiment, error)
	FindReagent(name string) (Reagent, bool)
	FindRecipe(name string) (Recipe, bool)
	Now() time.Time
}

// TransactionView provides read-only access to snapshot data for rules and queries.
type TransactionView interface {
	ListReagents() []Reagent
	FindReagent(name string) (Reagent, bool)
	ListRecipes() []Recipe
	FindRecipe(name string) (Recipe, bool)
	ListExperiments() []Experiment
	FindExperiment(id string) (Experiment, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetReagent(name string) (Reagent, bool)
	ListReagents() []Reagent
	GetRecipe(name string) (Recipe, bool)
	ListRecipes() []Recipe
	GetExperiment(id string) (Experiment, bool)
	ListExperiments() []Experiment
	ExportState() Snapshot
	ImportState(ctx context.Context, snapshot Snapshot) error
}
