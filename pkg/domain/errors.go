package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ValidationError reports malformed input that the caller must correct.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}

// DuplicateNameError is returned when registering a name that already exists.
type DuplicateNameError struct {
	Entity EntityType
	Name   string
}

func (e DuplicateNameError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Entity, e.Name)
}

// UnknownReagentError is returned when a reagent name is not in the ledger.
type UnknownReagentError struct {
	Name string
}

func (e UnknownReagentError) Error() string {
	return fmt.Sprintf("reagent %q not found", e.Name)
}

// UnknownRecipeError is returned when a recipe name is not registered.
type UnknownRecipeError struct {
	Name string
}

func (e UnknownRecipeError) Error() string {
	return fmt.Sprintf("recipe %q not found", e.Name)
}

// UnknownOrderError is returned when receiving an order that is missing or no longer pending.
type UnknownOrderError struct {
	ID string
}

func (e UnknownOrderError) Error() string {
	return fmt.Sprintf("pending order %q not found", e.ID)
}

// UnknownExperimentError is returned when an experiment ID is not in the history.
type UnknownExperimentError struct {
	ID string
}

func (e UnknownExperimentError) Error() string {
	return fmt.Sprintf("experiment %q not found", e.ID)
}

// InsufficientStockError is returned by a single consumption exceeding stock on hand.
type InsufficientStockError struct {
	Reagent   string
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock of %q: requested %s, available %s", e.Reagent, e.Requested, e.Available)
}

// BlockingReason explains why a reagent blocks execution.
type BlockingReason string

// Blocking reasons reported by feasibility checks.
const (
	BlockedInsufficient BlockingReason = "insufficient"
	BlockedExpired      BlockingReason = "expired"
)

// BlockingReagent describes one required reagent that prevents a recipe from running.
type BlockingReagent struct {
	Reagent        string           `json:"reagent"`
	Required       decimal.Decimal  `json:"required"`
	Available      decimal.Decimal  `json:"available"`
	ExpirationDate *time.Time       `json:"expiration_date,omitempty"`
	Reasons        []BlockingReason `json:"reasons"`
}

// InsufficientInventoryError enumerates the reagents blocking an experiment.
type InsufficientInventoryError struct {
	Recipe   string
	Blocking []BlockingReagent
}

func (e InsufficientInventoryError) Error() string {
	parts := make([]string, 0, len(e.Blocking))
	for _, b := range e.Blocking {
		reasons := make([]string, len(b.Reasons))
		for i, r := range b.Reasons {
			reasons[i] = string(r)
		}
		parts = append(parts, fmt.Sprintf("%s (%s; required %s, available %s)", b.Reagent, strings.Join(reasons, ","), b.Required, b.Available))
	}
	return fmt.Sprintf("recipe %q cannot run: %s", e.Recipe, strings.Join(parts, "; "))
}

// Reagents returns the names of the blocking reagents in order.
func (e InsufficientInventoryError) Reagents() []string {
	out := make([]string, len(e.Blocking))
	for i, b := range e.Blocking {
		out[i] = b.Reagent
	}
	return out
}
